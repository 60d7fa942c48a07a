package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/events"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/infra/moniq"
	"moniqgw/internal/models/db_models"
	"moniqgw/internal/repositories"
	"moniqgw/pkg/logger"
)

var fixedNow = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC) // unix 1700000000

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store = config.Store{
		Name:          "Test Shop",
		URL:           "https://shop.example.com",
		PublicURL:     "https://gw.example.com",
		PriceDecimals: 2,
	}
	cfg.Gateway = config.Gateway{
		Enabled:              "yes",
		PublicKey:            "pk_test",
		APISecret:            "sk_test",
		WebhookSecret:        "whsec_test",
		OrderStatusOnSuccess: "processing",
	}
	return cfg
}

func testLogger() *logger.Logger { return logger.NewWithWriter(io.Discard, true) }

// fakeMoniq is a hand-written stand-in for the provider client.
type fakeMoniq struct {
	mu sync.Mutex

	chargeResult *moniq.ChargeResult
	chargeErr    error
	charges      []moniq.ChargeRequest
	onCharge     func()

	verified    *moniq.VerifiedOrder
	verifyErr   error
	verifyCalls []string

	testErr   error
	testCalls int
}

func (f *fakeMoniq) CreateCharge(_ context.Context, charge moniq.ChargeRequest) (*moniq.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, charge)
	if f.onCharge != nil {
		f.onCharge()
	}
	return f.chargeResult, f.chargeErr
}

func (f *fakeMoniq) VerifyOrder(_ context.Context, providerOrderID string) (*moniq.VerifiedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, providerOrderID)
	return f.verified, f.verifyErr
}

func (f *fakeMoniq) TestConnection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testCalls++
	return f.testErr
}

func chargeResult(checkoutURL, providerOrderID, ref string) *moniq.ChargeResult {
	res := &moniq.ChargeResult{CheckoutURL: checkoutURL}
	res.Order.ID = moniq.FlexString(providerOrderID)
	if ref != "" {
		res.Order.Charges = []moniq.Charge{{TransactionRef: moniq.FlexString(ref), Status: "pending"}}
	}
	res.Raw = []byte(`{"checkoutURL":"` + checkoutURL + `"}`)
	return res
}

func verifiedOrder(amount, ref, status, reason string) *moniq.VerifiedOrder {
	a := decimal.RequireFromString(amount)
	return &moniq.VerifiedOrder{
		ID:     "po_1",
		Amount: &a,
		Charges: []moniq.Charge{
			{TransactionRef: moniq.FlexString(ref), Status: status, StatusReason: reason},
		},
		Raw: []byte(`{"amount":` + amount + `}`),
	}
}

type recordingPublisher struct {
	events []events.PaymentEvent
	err    error
}

func (p *recordingPublisher) PublishPayment(_ context.Context, e events.PaymentEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// countingOrders records how often the order lookup hits the store.
type countingOrders struct {
	repositories.OrderRepository
	lookups int
}

func (c *countingOrders) FindByMoniqRefs(ctx context.Context, moniqOrderID string, refs ...string) (*db_models.Order, error) {
	c.lookups++
	return c.OrderRepository.FindByMoniqRefs(ctx, moniqOrderID, refs...)
}

func newTestMetrics() *metrics.GatewayMetrics {
	return metrics.NewGatewayMetrics(prometheus.NewRegistry())
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint64) *db_models.Order {
	t.Helper()
	var o db_models.Order
	require.NoError(t, db.First(&o, id).Error)
	return &o
}

func orderNotes(t *testing.T, db *gorm.DB, id uint64) []string {
	t.Helper()
	var notes []db_models.OrderNote
	require.NoError(t, db.Where("order_id = ?", id).Order("id ASC").Find(&notes).Error)
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Content)
	}
	return out
}
