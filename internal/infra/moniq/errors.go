package moniq

import (
	"encoding/json"
	"fmt"

	"moniqgw/pkg/utils"
)

const unknownAPIError = "An unknown API error occurred."

// APIError is a non-success answer from Moniq. Status is zero when the call
// never produced an HTTP response.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("moniq api error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("moniq api error: %s", e.Message)
}

func (e *APIError) ProviderMessage() string { return e.Message }

func (e *APIError) Is(target error) bool { return target == utils.ErrAPI }

func (e *APIError) Unwrap() error { return e.Err }

// extractError pulls a readable message out of an error body, checking
// result.message, message and error in that order.
func extractError(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return unknownAPIError
	}
	if result, ok := parsed["result"].(map[string]any); ok {
		if msg, ok := joinMessage(result["message"]); ok {
			return msg
		}
	}
	if msg, ok := joinMessage(parsed["message"]); ok {
		return msg
	}
	if msg, ok := joinMessage(parsed["error"]); ok {
		return msg
	}
	return unknownAPIError
}
