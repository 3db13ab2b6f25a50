package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer is the immutable record of one committed balance movement.
// Account ids are copied, not referenced, so a record outlives its accounts.
type Transfer struct {
	ID            uuid.UUID       `json:"transfer_id"`
	AccountIDFrom string          `json:"account_id_from"`
	AccountIDTo   string          `json:"account_id_to"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewTransfer builds a record with a fresh random id
func NewTransfer(fromID, toID string, amount decimal.Decimal) Transfer {
	return Transfer{
		ID:            uuid.New(),
		AccountIDFrom: fromID,
		AccountIDTo:   toID,
		Amount:        amount,
		CreatedAt:     time.Now().UTC(),
	}
}
