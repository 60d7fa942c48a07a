package utils

import (
	"errors"
	"html"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	id, _ := c.Get("trace_id")
	s, _ := id.(string)
	return s
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps service errors to the API envelope. Provider
// messages are passed through escaped, since they are often actionable for
// the buyer.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		RespondError(c, http.StatusNotFound, "Order not found")
	case errors.Is(err, ErrTransactionNotFound):
		RespondError(c, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, ErrOrderAlreadyFinal):
		RespondError(c, http.StatusConflict, "Order has already been paid or closed")
	case errors.Is(err, ErrValidation):
		RespondError(c, http.StatusBadRequest, html.EscapeString(err.Error()))
	case errors.Is(err, ErrGatewayDisabled):
		RespondError(c, http.StatusServiceUnavailable, "Payment method is not available")
	case errors.Is(err, ErrAuth):
		RespondError(c, http.StatusBadGateway, "Payment error: Authentication failed.")
	case errors.Is(err, ErrInvalidResponse):
		RespondError(c, http.StatusBadGateway, "Payment error: Invalid response from payment provider.")
	case errors.Is(err, ErrAPI):
		RespondError(c, http.StatusBadGateway, "Payment error: "+html.EscapeString(ProviderMessage(err)))
	case errors.Is(err, ErrDatabaseError):
		log.Printf("Database error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		log.Printf("Unknown error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Payment error: An unexpected error occurred.")
	}
}

// ProviderMessage returns the provider-supplied text of err when it carries
// one, otherwise err.Error().
func ProviderMessage(err error) string {
	var pm interface{ ProviderMessage() string }
	if errors.As(err, &pm) {
		return pm.ProviderMessage()
	}
	return err.Error()
}
