package utils

import "errors"

var (
	// Provider calls
	ErrAuth            = errors.New("moniq authentication failed")
	ErrAPI             = errors.New("moniq api error")
	ErrValidation      = errors.New("charge validation failed")
	ErrInvalidResponse = errors.New("invalid response from payment provider")

	// Webhook authentication and parsing
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrExpiredSignature   = errors.New("webhook timestamp expired")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedPayload   = errors.New("malformed webhook payload")

	// Reconciliation
	ErrOrderNotFound            = errors.New("order not found")
	ErrAmountMismatch           = errors.New("amount mismatch")
	ErrMissingProviderReference = errors.New("missing moniq order id")
	ErrOrderAlreadyFinal        = errors.New("order already in final state")

	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrGatewayDisabled      = errors.New("moniq gateway is not available")
	ErrDatabaseError        = errors.New("database error")
)
