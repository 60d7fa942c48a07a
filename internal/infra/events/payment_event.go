package events

import "time"

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// PaymentEvent is published whenever a webhook moves an order to a final
// state.
type PaymentEvent struct {
	Type            string    `json:"type"`
	OrderID         uint64    `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	Status          string    `json:"status"`
	ProviderOrderID string    `json:"provider_order_id"`
	TransactionRef  string    `json:"transaction_ref"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}
