package response_models

import "time"

type CheckoutResponse struct {
	OrderID        uint64 `json:"order_id"`
	RedirectURL    string `json:"redirect_url"`
	TransactionRef string `json:"transaction_ref"`
}

type TransactionResponse struct {
	ID              string    `json:"id"`
	OrderID         uint64    `json:"order_id"`
	ProviderOrderID string    `json:"provider_order_id"`
	TransactionRef  string    `json:"transaction_ref"`
	Status          string    `json:"status"`
	ProviderStatus  string    `json:"provider_status,omitempty"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type OrderPaymentStatusResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ConnectionTestResponse struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type WebhookDeliveryResponse struct {
	ID           string    `json:"id"`
	Outcome      string    `json:"outcome"`
	HTTPStatus   int       `json:"http_status"`
	HasSignature bool      `json:"has_signature"`
	Error        string    `json:"error,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}
