package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DpsTransfer records one automatic-savings contribution, always from a main
// account to its linked DPS sub-account.
type DpsTransfer struct {
	ID            string          `gorm:"primary_key;size:36" json:"id"`
	UserId        string          `gorm:"index;size:64;not null" json:"user_id"`
	FromAccountId string          `gorm:"index;size:36;not null" json:"from_account_id"`
	ToAccountId   string          `gorm:"index;size:36;not null" json:"to_account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Date          time.Time       `gorm:"not null" json:"date"`
	Note          string          `gorm:"type:text" json:"note"`
	// TransferId is the group id carried by both ledger legs.
	TransferId string `gorm:"uniqueIndex;size:32;not null" json:"transfer_id"`
	// ClosedAt is set when the DPS account was deleted. The income leg was
	// removed with it; only the expense leg on the main account remains.
	ClosedAt  *time.Time `gorm:"index" json:"closed_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
