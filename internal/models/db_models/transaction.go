package db_models

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TxnStatusPending   TransactionStatus = "pending"
	TxnStatusSucceeded TransactionStatus = "succeeded"
	TxnStatusFailed    TransactionStatus = "failed"
	TxnStatusUnknown   TransactionStatus = "unknown"
)

// NormalizeProviderStatus collapses the provider's charge statuses into the
// local set.
func NormalizeProviderStatus(providerStatus string) TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "completed", "paid", "successful", "succeeded":
		return TxnStatusSucceeded
	case "failed":
		return TxnStatusFailed
	case "pending":
		return TxnStatusPending
	default:
		return TxnStatusUnknown
	}
}

// Transaction is one charge attempt against Moniq.
type Transaction struct {
	BaseModel
	OrderID uint64 `gorm:"index;not null"`

	ProviderOrderID        string `gorm:"size:255;index"`
	ProviderTransactionRef string `gorm:"size:255;not null;uniqueIndex"`
	// TransactionID mirrors the reference; the provider reports both names.
	TransactionID string `gorm:"size:255"`

	Status         TransactionStatus `gorm:"size:50;not null;default:pending;index"`
	ProviderStatus string            `gorm:"size:50"`

	Amount   decimal.Decimal `gorm:"type:numeric(19,4);not null"`
	Currency string          `gorm:"size:10;not null"`

	// Last verified provider payload, kept for audit.
	RawPayload datatypes.JSON `gorm:"type:jsonb"`
}

func (Transaction) TableName() string { return "moniq_transactions" }
