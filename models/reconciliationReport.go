package models

import "time"

// ReconciliationReport is one invariant finding written by the reconciliation pass.
type ReconciliationReport struct {
	ID            string    `gorm:"primary_key;size:36" json:"id"`
	UserId        string    `gorm:"index;size:64;not null" json:"user_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. BALANCE_DRIFT, TRANSFER_GROUP
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Account, Transfer
	EntityId      string    `gorm:"index;size:64;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
