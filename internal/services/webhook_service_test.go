package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/events"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/models/db_models"
	"moniqgw/internal/repositories"
	dbtest "moniqgw/internal/testutil"
	"moniqgw/pkg/utils"
)

type webhookFixture struct {
	db        *gorm.DB
	api       *fakeMoniq
	cfg       *config.Config
	orders    *countingOrders
	publisher *recordingPublisher
	metrics   *metrics.GatewayMetrics
	svc       WebhookService
}

func newWebhookFixture(t *testing.T, mutate ...func(cfg *config.Config)) *webhookFixture {
	t.Helper()
	db := dbtest.NewDB(t)
	f := &webhookFixture{
		db:        db,
		api:       &fakeMoniq{},
		cfg:       testConfig(),
		orders:    &countingOrders{OrderRepository: repositories.NewOrderRepository(db)},
		publisher: &recordingPublisher{},
		metrics:   newTestMetrics(),
	}
	for _, m := range mutate {
		m(f.cfg)
	}

	svc, err := NewWebhookService(WebhookDeps{
		Config:       f.cfg,
		API:          f.api,
		Orders:       f.orders,
		Transactions: repositories.NewTransactionRepository(db),
		Events:       repositories.NewWebhookEventRepository(db),
		Publisher:    f.publisher,
		Metrics:      f.metrics,
		Logger:       testLogger(),
	}, WithWebhookClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	f.svc = svc
	return f
}

// seedPending stores order 42 awaiting payment for po_1 / tx_9, with its
// pending transaction record.
func (f *webhookFixture) seedPending(t *testing.T) *db_models.Order {
	t.Helper()
	order := dbtest.SeedOrder(t, f.db, func(o *db_models.Order) {
		o.ID = 42
		o.MoniqOrderID = "po_1"
		o.MoniqTransactionID = "tx_9"
	})
	require.NoError(t, repositories.NewTransactionRepository(f.db).Insert(context.Background(), &db_models.Transaction{
		OrderID:                order.ID,
		ProviderOrderID:        "po_1",
		ProviderTransactionRef: "tx_9",
		Amount:                 order.Total,
		Currency:               order.Currency,
	}))
	return order
}

func (f *webhookFixture) deliver(t *testing.T, body string) Outcome {
	t.Helper()
	headers := http.Header{}
	headers.Set("X-Moniq-Signature", SignatureHeaderValue(f.cfg.Gateway.WebhookSecret, fixedNow, []byte(body)))
	return f.svc.Reconcile(context.Background(), []byte(body), headers)
}

func (f *webhookFixture) txnStatus(t *testing.T) (db_models.TransactionStatus, string) {
	t.Helper()
	txn, err := repositories.NewTransactionRepository(f.db).FindByReference(context.Background(), "tx_9")
	require.NoError(t, err)
	require.NotNil(t, txn)
	return txn.Status, txn.ProviderStatus
}

func (f *webhookFixture) auditOutcomes(t *testing.T) []string {
	t.Helper()
	var evs []db_models.WebhookEvent
	require.NoError(t, f.db.Order("rowid ASC").Find(&evs).Error)
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Outcome)
	}
	return out
}

const paidBody = `{"orderId":"po_1","transactionRef":"tx_9"}`

func TestWebhook_CompletesVerifiedPayment(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100.00", "tx_9", "completed", "")

	out := f.deliver(t, paidBody)

	assert.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, "OK", out.Body)
	assert.Equal(t, []string{"po_1"}, f.api.verifyCalls)

	order := reloadOrder(t, f.db, 42)
	assert.Equal(t, db_models.OrderStatusProcessing, order.Status)
	assert.True(t, order.IsPaid())
	assert.Equal(t, "tx_9", order.TransactionID)
	assert.Equal(t, []string{"Moniq payment completed. Transaction: tx_9", "Payment confirmed by Moniq."}, orderNotes(t, f.db, 42))

	status, providerStatus := f.txnStatus(t)
	assert.Equal(t, db_models.TxnStatusSucceeded, status)
	assert.Equal(t, "completed", providerStatus)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.EventPaymentSucceeded, f.publisher.events[0].Type)
	assert.Equal(t, uint64(42), f.publisher.events[0].OrderID)
	assert.Equal(t, "tx_9", f.publisher.events[0].TransactionRef)

	assert.Equal(t, []string{"completed"}, f.auditOutcomes(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhooksTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderTransitionsTotal.WithLabelValues("processing")))
}

func TestWebhook_SuccessStatusIsConfigurable(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *config.Config) { cfg.Gateway.OrderStatusOnSuccess = "completed" })
	f.seedPending(t)
	f.api.verified = verifiedOrder("100.00", "tx_9", "Paid", "")

	out := f.deliver(t, paidBody)
	assert.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, db_models.OrderStatusCompleted, reloadOrder(t, f.db, 42).Status)
}

func TestWebhook_SuccessfulStatusesAllComplete(t *testing.T) {
	for _, status := range []string{"completed", "paid", "successful", "succeeded", "SUCCEEDED"} {
		t.Run(status, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.seedPending(t)
			f.api.verified = verifiedOrder("100", "tx_9", status, "")

			assert.Equal(t, OutcomeCompleted, f.deliver(t, paidBody).Kind)
		})
	}
}

func TestWebhook_AmountMismatchNeverCompletes(t *testing.T) {
	for _, status := range []string{"completed", "paid", "successful", "succeeded", "failed", "pending"} {
		t.Run(status, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.seedPending(t)
			f.api.verified = verifiedOrder("50.00", "tx_9", status, "")

			out := f.deliver(t, paidBody)

			assert.Equal(t, OutcomeAmountMismatch, out.Kind)
			assert.Equal(t, http.StatusOK, out.HTTPStatus)
			assert.ErrorIs(t, out.Err, utils.ErrAmountMismatch)

			order := reloadOrder(t, f.db, 42)
			assert.Equal(t, db_models.OrderStatusPending, order.Status)
			assert.False(t, order.IsPaid())

			notes := orderNotes(t, f.db, 42)
			require.Len(t, notes, 1)
			assert.Contains(t, notes[0], "amount did not match")

			txnStatus, _ := f.txnStatus(t)
			assert.Equal(t, db_models.TxnStatusPending, txnStatus)
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestWebhook_AmountWithinTolerance(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100.01", "tx_9", "completed", "")

	assert.Equal(t, OutcomeCompleted, f.deliver(t, paidBody).Kind)
}

func TestWebhook_UnknownOrderIsAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)

	out := f.deliver(t, `{"orderId":"po_unknown"}`)

	assert.Equal(t, OutcomeOrderNotFound, out.Kind)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Empty(t, f.api.verifyCalls)
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
	assert.Empty(t, orderNotes(t, f.db, 42))
	status, _ := f.txnStatus(t)
	assert.Equal(t, db_models.TxnStatusPending, status)
}

func TestWebhook_NoIdentifiersNeverQueries(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)

	for _, body := range []string{`{}`, `{"orderId":"","transactionRef":"  "}`, `null`} {
		out := f.deliver(t, body)
		assert.Equal(t, OutcomeOrderNotFound, out.Kind, body)
		assert.Equal(t, http.StatusOK, out.HTTPStatus, body)
		assert.ErrorIs(t, out.Err, utils.ErrOrderNotFound, body)
	}
	assert.Zero(t, f.orders.lookups)
}

func TestWebhook_ResolvesByTransactionID(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100", "tx_9", "completed", "")

	out := f.deliver(t, `{"transactionId":"tx_9"}`)
	assert.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, uint64(42), out.OrderID)
}

func TestWebhook_NumericIdentifiers(t *testing.T) {
	f := newWebhookFixture(t)
	dbtest.SeedOrder(t, f.db, func(o *db_models.Order) {
		o.ID = 43
		o.MoniqOrderID = "9876"
	})
	f.api.verified = verifiedOrder("100", "555", "failed", "Declined")

	out := f.deliver(t, `{"orderId":9876}`)
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, []string{"9876"}, f.api.verifyCalls)
}

func TestWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100.00", "tx_9", "completed", "")

	first := f.deliver(t, paidBody)
	notesAfterFirst := orderNotes(t, f.db, 42)
	paidAt := reloadOrder(t, f.db, 42).PaidAt

	second := f.deliver(t, paidBody)
	third := f.deliver(t, `{"transactionRef":"tx_9"}`)

	assert.Equal(t, OutcomeCompleted, first.Kind)
	assert.Equal(t, OutcomeAlreadyFinal, second.Kind)
	assert.Equal(t, OutcomeAlreadyFinal, third.Kind)
	assert.Equal(t, http.StatusOK, second.HTTPStatus)

	assert.Len(t, f.api.verifyCalls, 1)
	assert.Equal(t, notesAfterFirst, orderNotes(t, f.db, 42))
	assert.Len(t, f.publisher.events, 1)
	assert.Equal(t, paidAt.Unix(), reloadOrder(t, f.db, 42).PaidAt.Unix())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderTransitionsTotal.WithLabelValues("processing")))
	assert.Equal(t, []string{"completed", "already_final", "already_final"}, f.auditOutcomes(t))
}

func TestWebhook_TerminalStatusesAreLeftAlone(t *testing.T) {
	for _, status := range []db_models.OrderStatus{
		db_models.OrderStatusSucceeded,
		db_models.OrderStatusCompleted,
		db_models.OrderStatusProcessing,
		db_models.OrderStatusFailed,
		db_models.OrderStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newWebhookFixture(t)
			f.seedPending(t)
			require.NoError(t, f.db.Model(&db_models.Order{}).Where("id = ?", 42).Update("status", status).Error)
			f.api.verified = verifiedOrder("100", "tx_9", "completed", "")

			out := f.deliver(t, paidBody)
			assert.Equal(t, OutcomeAlreadyFinal, out.Kind)
			assert.Empty(t, f.api.verifyCalls)
			assert.Equal(t, status, reloadOrder(t, f.db, 42).Status)
		})
	}
}

func TestWebhook_FailedCharge(t *testing.T) {
	tests := []struct {
		reason string
		note   string
	}{
		{"Insufficient funds", "Moniq payment failed: Insufficient funds"},
		{"", "Moniq payment failed: Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.note, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.seedPending(t)
			f.api.verified = verifiedOrder("100", "tx_9", "failed", tt.reason)

			out := f.deliver(t, paidBody)

			assert.Equal(t, OutcomeFailed, out.Kind)
			order := reloadOrder(t, f.db, 42)
			assert.Equal(t, db_models.OrderStatusFailed, order.Status)
			assert.False(t, order.IsPaid())
			assert.Equal(t, []string{tt.note}, orderNotes(t, f.db, 42))

			status, _ := f.txnStatus(t)
			assert.Equal(t, db_models.TxnStatusFailed, status)
			require.Len(t, f.publisher.events, 1)
			assert.Equal(t, events.EventPaymentFailed, f.publisher.events[0].Type)
		})
	}
}

func TestWebhook_UnmappedStatusOnlyUpdatesTransaction(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100", "tx_9", "Processing", "")

	out := f.deliver(t, paidBody)

	assert.Equal(t, OutcomeUnchanged, out.Kind)
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
	assert.Empty(t, orderNotes(t, f.db, 42))

	status, providerStatus := f.txnStatus(t)
	assert.Equal(t, db_models.TxnStatusUnknown, status)
	assert.Equal(t, "processing", providerStatus)
}

func TestWebhook_NoChargeEntry(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100", "tx_9", "completed", "")
	f.api.verified.Charges = nil

	out := f.deliver(t, paidBody)
	assert.Equal(t, OutcomeUnchanged, out.Kind)
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
	status, providerStatus := f.txnStatus(t)
	assert.Equal(t, db_models.TxnStatusPending, status)
	assert.Empty(t, providerStatus)
}

func TestWebhook_MissingProviderReference(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	require.NoError(t, f.db.Model(&db_models.Order{}).Where("id = ?", 42).Update("moniq_order_id", "").Error)

	out := f.deliver(t, `{"transactionRef":"tx_9"}`)

	assert.Equal(t, OutcomeMissingReference, out.Kind)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.ErrorIs(t, out.Err, utils.ErrMissingProviderReference)
	assert.Empty(t, f.api.verifyCalls)
	assert.Equal(t, []string{noteMissingReference}, orderNotes(t, f.db, 42))
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
}

func TestWebhook_VerificationFailure(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verifyErr = errors.New("context deadline exceeded")

	out := f.deliver(t, paidBody)

	assert.Equal(t, OutcomeVerificationFailed, out.Kind)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
	assert.Equal(t, []string{noteVerificationFailed}, orderNotes(t, f.db, 42))
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
}

func TestWebhook_SignatureRejections(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100", "tx_9", "completed", "")
	body := []byte(paidBody)

	tests := []struct {
		name    string
		headers http.Header
		wantErr error
	}{
		{"missing", http.Header{}, utils.ErrMalformedSignature},
		{"expired", http.Header{"X-Moniq-Signature": {SignatureHeaderValue("whsec_test", fixedNow.Add(-10*time.Minute), body)}}, utils.ErrExpiredSignature},
		{"forged", http.Header{"X-Moniq-Signature": {SignatureHeaderValue("attacker", fixedNow, body)}}, utils.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.svc.Reconcile(context.Background(), body, tt.headers)
			assert.Equal(t, OutcomeInvalidSignature, out.Kind)
			assert.Equal(t, http.StatusUnauthorized, out.HTTPStatus)
			assert.Equal(t, "Invalid signature", out.Body)
			assert.ErrorIs(t, out.Err, tt.wantErr)
		})
	}

	assert.Empty(t, f.api.verifyCalls)
	assert.Zero(t, f.orders.lookups)
	assert.Equal(t, db_models.OrderStatusPending, reloadOrder(t, f.db, 42).Status)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	out := f.deliver(t, `{"orderId":`)

	assert.Equal(t, OutcomeMalformedPayload, out.Kind)
	assert.Equal(t, http.StatusBadRequest, out.HTTPStatus)
	assert.Equal(t, "Invalid JSON", out.Body)
	assert.ErrorIs(t, out.Err, utils.ErrMalformedPayload)
	assert.Zero(t, f.orders.lookups)

	var ev db_models.WebhookEvent
	require.NoError(t, f.db.First(&ev).Error)
	assert.Equal(t, "malformed_payload", ev.Outcome)
	assert.True(t, ev.HasSignature)
	assert.Empty(t, ev.Payload)
}

func TestWebhook_NoSecretSkipsVerification(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *config.Config) { cfg.Gateway.WebhookSecret = "" })
	f.seedPending(t)
	f.api.verified = verifiedOrder("100", "tx_9", "completed", "")

	out := f.svc.Reconcile(context.Background(), []byte(paidBody), http.Header{})
	assert.Equal(t, OutcomeCompleted, out.Kind)
}

func TestWebhook_PublishFailureDoesNotFailDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.publisher.err = errors.New("broker unavailable")
	f.api.verified = verifiedOrder("100", "tx_9", "completed", "")

	out := f.deliver(t, paidBody)
	assert.Equal(t, OutcomeCompleted, out.Kind)
	assert.Equal(t, http.StatusOK, out.HTTPStatus)
}

type failingOrders struct {
	repositories.OrderRepository
}

func (failingOrders) FindByMoniqRefs(context.Context, string, ...string) (*db_models.Order, error) {
	return nil, utils.ErrDatabaseError
}

func TestWebhook_StoreFailureIsInternalError(t *testing.T) {
	cfg := testConfig()
	svc, err := NewWebhookService(WebhookDeps{
		Config:  cfg,
		API:     &fakeMoniq{},
		Orders:  failingOrders{},
		Logger:  testLogger(),
		Metrics: newTestMetrics(),
	}, WithWebhookClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	body := []byte(paidBody)
	headers := http.Header{"X-Moniq-Signature": {SignatureHeaderValue(cfg.Gateway.WebhookSecret, fixedNow, body)}}

	out := svc.Reconcile(context.Background(), body, headers)
	assert.Equal(t, OutcomeInternalError, out.Kind)
	assert.Equal(t, http.StatusInternalServerError, out.HTTPStatus)
	assert.Equal(t, "Processing error", out.Body)
}

func TestWebhook_RecentDeliveries(t *testing.T) {
	f := newWebhookFixture(t)
	f.seedPending(t)
	f.api.verified = verifiedOrder("100.00", "tx_9", "completed", "")

	f.deliver(t, paidBody)
	f.deliver(t, paidBody)

	deliveries, err := f.svc.RecentDeliveries(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	outcomes := []string{deliveries[0].Outcome, deliveries[1].Outcome}
	assert.ElementsMatch(t, []string{"completed", "already_final"}, outcomes)
	for _, d := range deliveries {
		assert.Equal(t, http.StatusOK, d.HTTPStatus)
		assert.True(t, d.HasSignature)
		assert.NotEmpty(t, d.ID)
	}

	none, err := f.svc.RecentDeliveries(context.Background(), 7, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
