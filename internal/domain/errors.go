package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSameAccount         = errors.New("account ids cannot be the same")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransferUnavailable = errors.New("transfer unavailable, try again later")
	ErrAccountExists       = errors.New("account already exists")
	ErrDuplicateTransfer   = errors.New("transfer already recorded")
)

// Error codes returned to API clients
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeSameAccount         = "SAME_ACCOUNT"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeTransferUnavailable = "TRANSFER_UNAVAILABLE"
	CodeAccountExists       = "ACCOUNT_EXISTS"
	CodeInternal            = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrSameAccount, CodeSameAccount},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrTransferUnavailable, CodeTransferUnavailable},
	{ErrAccountExists, CodeAccountExists},
}

// ErrorCode maps an error (possibly wrapped) to its machine-readable code.
// Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// IsClientError reports whether err is caused by the request itself.
// Client errors are never retried.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case CodeInternal, CodeTransferUnavailable:
		return false
	}
	return true
}
