package services

import "moniqgw/internal/models/db_models"

// PaymentMethodID is stored on orders paid through this gateway.
const PaymentMethodID = "moniq"

// PaymentStatusMessage is the buyer-facing text for an order's payment
// state. Statuses without a message return "".
func PaymentStatusMessage(status db_models.OrderStatus) string {
	switch status {
	case db_models.OrderStatusPending, db_models.OrderStatusOnHold:
		return "Your payment is being processed. You will receive confirmation shortly."
	case db_models.OrderStatusFailed:
		return "Payment could not be processed. Please try again."
	case db_models.OrderStatusProcessing, db_models.OrderStatusCompleted:
		return "Thank you. Your payment has been received."
	}
	return ""
}
