package domain

import "github.com/shopspring/decimal"

// Account holds an identifier and a mutable balance.
// Balance is only written by the transfer engine while the account's lock
// handle is held.
type Account struct {
	ID      string          `json:"account_id"`
	Balance decimal.Decimal `json:"balance"`
}

// NewAccount creates an account with an opening balance
func NewAccount(id string, balance decimal.Decimal) *Account {
	return &Account{ID: id, Balance: balance}
}
