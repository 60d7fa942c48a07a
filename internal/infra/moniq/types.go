package moniq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"moniqgw/pkg/utils"
)

// envelope is the shape every Moniq response is wrapped in.
type envelope struct {
	IsError *bool           `json:"isError"`
	Result  json.RawMessage `json:"result"`
}

func (e envelope) ok() bool {
	return e.IsError != nil && !*e.IsError && len(e.Result) > 0 && !bytes.Equal(e.Result, []byte("null"))
}

// FlexString accepts both JSON strings and numbers; Moniq is not consistent
// about identifier types.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("moniq: identifier is neither string nor number: %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

type OrderLine struct {
	ItemName string          `json:"itemName"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// MarshalJSON sends amount as a JSON number; the provider rejects quoted
// amounts.
func (l OrderLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ItemName string      `json:"itemName"`
		Quantity int         `json:"quantity"`
		Amount   json.Number `json:"amount"`
	}{
		ItemName: l.ItemName,
		Quantity: l.Quantity,
		Amount:   json.Number(l.Amount.String()),
	})
}

type CustomerAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ChargeRequest is the body of the charge-creation endpoint.
type ChargeRequest struct {
	Currency        string            `json:"currency"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	CustomerName    string            `json:"customerName"`
	Narration       string            `json:"narration"`
	TransactionRef  string            `json:"transactionRef"`
	ReferenceKey    string            `json:"referenceKey"`
	RedirectURL     string            `json:"redirectUrl"`
	WebhookURL      string            `json:"webhookUrl"`
	OrderLines      []OrderLine       `json:"orderLines"`
	Metadata        map[string]string `json:"metadata"`
	CustomerAddress *CustomerAddress  `json:"customerAddress,omitempty"`
}

type Charge struct {
	TransactionRef FlexString `json:"transactionRef"`
	Status         string     `json:"status"`
	StatusReason   string     `json:"statusReason"`
}

// ChargeResult is the unwrapped result of a successful charge creation.
type ChargeResult struct {
	CheckoutURL string `json:"checkoutURL"`
	Order       struct {
		ID      FlexString `json:"id"`
		Charges []Charge   `json:"charges"`
	} `json:"order"`

	Raw json.RawMessage `json:"-"`
}

func (r *ChargeResult) TransactionRef() string {
	if len(r.Order.Charges) == 0 {
		return ""
	}
	return r.Order.Charges[0].TransactionRef.String()
}

func (r *ChargeResult) ProviderOrderID() string { return r.Order.ID.String() }

func (r *ChargeResult) validate() error {
	if r.CheckoutURL == "" {
		return fmt.Errorf("%w: missing checkoutURL", utils.ErrInvalidResponse)
	}
	if r.TransactionRef() == "" {
		return fmt.Errorf("%w: missing charge transactionRef", utils.ErrInvalidResponse)
	}
	return nil
}

// VerifiedOrder is the authoritative order state returned by the order
// fetch endpoint.
type VerifiedOrder struct {
	ID      FlexString       `json:"id"`
	Amount  *decimal.Decimal `json:"amount"`
	Charges []Charge         `json:"charges"`

	Raw json.RawMessage `json:"-"`
}

// FirstCharge returns the first charge entry, or nil when there is none.
func (v *VerifiedOrder) FirstCharge() *Charge {
	if len(v.Charges) == 0 {
		return nil
	}
	return &v.Charges[0]
}

func (v *VerifiedOrder) validate() error {
	if v.Amount == nil {
		return fmt.Errorf("%w: verified order has no amount", utils.ErrInvalidResponse)
	}
	return nil
}

func joinMessage(v any) (string, bool) {
	switch m := v.(type) {
	case string:
		return m, m != ""
	case float64:
		return strconv.FormatFloat(m, 'f', -1, 64), true
	case []any:
		parts := make([]string, 0, len(m))
		for _, p := range m {
			if s, ok := joinMessage(p); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	}
	return "", false
}
