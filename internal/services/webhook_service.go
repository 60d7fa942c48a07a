package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/events"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/infra/moniq"
	"moniqgw/internal/models/db_models"
	"moniqgw/internal/models/response_models"
	"moniqgw/internal/repositories"
	"moniqgw/pkg/logger"
	"moniqgw/pkg/utils"
)

// AmountTolerance is the largest accepted difference between the order
// total and the amount Moniq reports.
var AmountTolerance = decimal.RequireFromString("0.01")

const (
	noteVerificationFailed = "Moniq webhook received but API verification failed."
	noteMissingReference   = "Moniq webhook received but verification could not proceed: no Moniq order ID is stored on the order."
	notePaymentConfirmed   = "Payment confirmed by Moniq."
)

type OutcomeKind string

const (
	OutcomeCompleted          OutcomeKind = "completed"
	OutcomeFailed             OutcomeKind = "failed"
	OutcomeUnchanged          OutcomeKind = "unchanged"
	OutcomeAlreadyFinal       OutcomeKind = "already_final"
	OutcomeOrderNotFound      OutcomeKind = "order_not_found"
	OutcomeMissingReference   OutcomeKind = "missing_reference"
	OutcomeVerificationFailed OutcomeKind = "verification_failed"
	OutcomeAmountMismatch     OutcomeKind = "amount_mismatch"
	OutcomeInvalidSignature   OutcomeKind = "invalid_signature"
	OutcomeMalformedPayload   OutcomeKind = "malformed_payload"
	OutcomeInternalError      OutcomeKind = "internal_error"
)

// Outcome is the transport-independent result of one webhook delivery.
type Outcome struct {
	Kind       OutcomeKind
	HTTPStatus int
	Body       string
	OrderID    uint64
	// Err is the reason processing stopped early; nil on a clean run.
	Err error
}

func ack(kind OutcomeKind, orderID uint64, err error) Outcome {
	return Outcome{Kind: kind, HTTPStatus: http.StatusOK, Body: "OK", OrderID: orderID, Err: err}
}

type notification struct {
	OrderID        moniq.FlexString `json:"orderId"`
	TransactionRef moniq.FlexString `json:"transactionRef"`
	TransactionID  moniq.FlexString `json:"transactionId"`
}

type WebhookService interface {
	Reconcile(ctx context.Context, body []byte, headers http.Header) Outcome
	RecentDeliveries(ctx context.Context, orderID uint64, limit int) ([]response_models.WebhookDeliveryResponse, error)
}

type WebhookDeps struct {
	Config       *config.Config
	API          MoniqAPI
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Events       repositories.WebhookEventRepository
	Publisher    events.Publisher
	Metrics      *metrics.GatewayMetrics
	Logger       *logger.Logger
}

type WebhookOption func(*webhookService)

func WithWebhookClock(now func() time.Time) WebhookOption {
	return func(s *webhookService) { s.now = now }
}

type webhookService struct {
	verifier      *SignatureVerifier
	successStatus db_models.OrderStatus
	api           MoniqAPI
	orders        repositories.OrderRepository
	txns          repositories.TransactionRepository
	audit         repositories.WebhookEventRepository
	publisher     events.Publisher
	metrics       *metrics.GatewayMetrics
	log           *logger.Logger
	now           func() time.Time
	newID         func() string
}

func NewWebhookService(deps WebhookDeps, opts ...WebhookOption) (WebhookService, error) {
	idGenerator, err := nanoid.Standard(21)
	if err != nil {
		return nil, err
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	s := &webhookService{
		verifier:      NewSignatureVerifier(deps.Config.Gateway.WebhookSecret, deps.Logger),
		successStatus: db_models.OrderStatus(deps.Config.Gateway.OrderStatusOnSuccess),
		api:           deps.API,
		orders:        deps.Orders,
		txns:          deps.Transactions,
		audit:         deps.Events,
		publisher:     publisher,
		metrics:       deps.Metrics,
		log:           deps.Logger,
		now:           time.Now,
		newID:         idGenerator,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Reconcile authenticates a notification and applies the provider's
// authoritative payment state to the matching order.
func (s *webhookService) Reconcile(ctx context.Context, body []byte, headers http.Header) Outcome {
	now := s.now()
	s.log.Info("Webhook received")

	out := s.reconcile(ctx, body, headers, now)

	s.metrics.RecordWebhook(string(out.Kind))
	s.record(ctx, body, headers, out, now)
	return out
}

func (s *webhookService) reconcile(ctx context.Context, body []byte, headers http.Header, now time.Time) Outcome {
	if err := s.verifier.Verify(body, headers, now); err != nil {
		s.log.Error("Invalid webhook signature", "error", err)
		return Outcome{Kind: OutcomeInvalidSignature, HTTPStatus: http.StatusUnauthorized, Body: "Invalid signature", Err: err}
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("Invalid JSON in webhook", "error", err)
		return Outcome{
			Kind:       OutcomeMalformedPayload,
			HTTPStatus: http.StatusBadRequest,
			Body:       "Invalid JSON",
			Err:        fmt.Errorf("%w: %v", utils.ErrMalformedPayload, err),
		}
	}
	if s.log.DebugEnabled() {
		s.log.Debug("Webhook data", "payload", string(body))
	}

	order, err := s.resolveOrder(ctx, n)
	if err != nil {
		if errors.Is(err, utils.ErrOrderNotFound) {
			s.log.Warning("Order not found for webhook: no identifiers in payload")
			return ack(OutcomeOrderNotFound, 0, err)
		}
		return s.internalError(0, err)
	}
	if order == nil {
		s.log.Warning("Order not found for webhook", "moniq_order_id", n.OrderID.String())
		return ack(OutcomeOrderNotFound, 0, utils.ErrOrderNotFound)
	}

	if order.IsFinalForGateway() {
		s.log.Info("Order #"+order.Number+" already in final state", "status", order.Status)
		return ack(OutcomeAlreadyFinal, order.ID, nil)
	}

	verified, out, ok := s.verifyWithAPI(ctx, order)
	if !ok {
		return out
	}

	return s.applyCharge(ctx, order, verified, now)
}

// resolveOrder matches any identifier the payload carries.
func (s *webhookService) resolveOrder(ctx context.Context, n notification) (*db_models.Order, error) {
	orderID := strings.TrimSpace(n.OrderID.String())
	ref := strings.TrimSpace(n.TransactionRef.String())
	txnID := strings.TrimSpace(n.TransactionID.String())

	if orderID == "" && ref == "" && txnID == "" {
		return nil, utils.ErrOrderNotFound
	}
	return s.orders.FindByMoniqRefs(ctx, orderID, ref, txnID)
}

// verifyWithAPI re-fetches the order from Moniq and cross-checks the
// amount. When ok is false the returned Outcome is final.
func (s *webhookService) verifyWithAPI(ctx context.Context, order *db_models.Order) (*moniq.VerifiedOrder, Outcome, bool) {
	if order.MoniqOrderID == "" {
		s.log.Error("No API order ID found for order #"+order.Number, "order_id", order.ID)
		s.addNote(ctx, order.ID, noteMissingReference)
		return nil, ack(OutcomeMissingReference, order.ID, utils.ErrMissingProviderReference), false
	}

	verified, err := s.api.VerifyOrder(ctx, order.MoniqOrderID)
	if err == nil && verified.Amount == nil {
		err = fmt.Errorf("%w: verified order has no amount", utils.ErrInvalidResponse)
	}
	if err != nil {
		s.log.Error("API verification failed: "+utils.ProviderMessage(err), "order_id", order.ID)
		s.addNote(ctx, order.ID, noteVerificationFailed)
		return nil, ack(OutcomeVerificationFailed, order.ID, err), false
	}

	if order.Total.Sub(*verified.Amount).Abs().GreaterThan(AmountTolerance) {
		s.log.Error("Amount mismatch: order="+order.Total.String()+", API="+verified.Amount.String(), "order_id", order.ID)
		s.addNote(ctx, order.ID, fmt.Sprintf(
			"Moniq webhook received but the amount did not match (order %s, Moniq %s). Status left unchanged.",
			order.Total.String(), verified.Amount.String(),
		))
		return nil, ack(OutcomeAmountMismatch, order.ID, utils.ErrAmountMismatch), false
	}

	return verified, Outcome{}, true
}

func (s *webhookService) applyCharge(ctx context.Context, order *db_models.Order, verified *moniq.VerifiedOrder, now time.Time) Outcome {
	charge := verified.FirstCharge()
	if charge == nil {
		s.log.Warning("Verified order has no charges", "order_id", order.ID)
		return ack(OutcomeUnchanged, order.ID, nil)
	}

	status := strings.ToLower(strings.TrimSpace(charge.Status))
	mapped := db_models.NormalizeProviderStatus(status)
	if err := s.txns.UpdateStatus(ctx, order.ID, mapped, status, verified.Raw); err != nil {
		s.log.Error("Transaction status update failed", "order_id", order.ID, "error", err)
	}

	switch mapped {
	case db_models.TxnStatusSucceeded:
		ref := charge.TransactionRef.String()
		if ref == "" {
			ref = order.MoniqTransactionID
		}
		err := s.orders.CompletePayment(ctx, order.ID, ref, s.successStatus,
			"Moniq payment completed. Transaction: "+ref,
			notePaymentConfirmed,
		)
		if err != nil {
			return s.transitionError(order.ID, err)
		}
		s.log.Notice("Payment completed for order #"+order.Number, "order_id", order.ID)
		s.metrics.RecordTransition(string(s.successStatus))
		s.publish(ctx, events.EventPaymentSucceeded, order, s.successStatus, ref, now)
		return ack(OutcomeCompleted, order.ID, nil)

	case db_models.TxnStatusFailed:
		reason := strings.TrimSpace(charge.StatusReason)
		if reason == "" {
			reason = "Unknown"
		}
		if err := s.orders.FailPayment(ctx, order.ID, "Moniq payment failed: "+reason); err != nil {
			return s.transitionError(order.ID, err)
		}
		s.log.Notice("Payment failed for order #"+order.Number, "order_id", order.ID, "reason", reason)
		s.metrics.RecordTransition(string(db_models.OrderStatusFailed))
		s.publish(ctx, events.EventPaymentFailed, order, db_models.OrderStatusFailed, charge.TransactionRef.String(), now)
		return ack(OutcomeFailed, order.ID, nil)

	default:
		s.log.Info("Moniq charge status not actionable", "order_id", order.ID, "status", status)
		return ack(OutcomeUnchanged, order.ID, nil)
	}
}

// transitionError treats a lost race against another delivery as a no-op.
func (s *webhookService) transitionError(orderID uint64, err error) Outcome {
	if errors.Is(err, utils.ErrOrderAlreadyFinal) {
		s.log.Info("Order reached a final state concurrently", "order_id", orderID)
		return ack(OutcomeAlreadyFinal, orderID, nil)
	}
	return s.internalError(orderID, err)
}

func (s *webhookService) internalError(orderID uint64, err error) Outcome {
	s.log.Error("Webhook error: "+err.Error(), "order_id", orderID)
	return Outcome{
		Kind:       OutcomeInternalError,
		HTTPStatus: http.StatusInternalServerError,
		Body:       "Processing error",
		OrderID:    orderID,
		Err:        err,
	}
}

func (s *webhookService) addNote(ctx context.Context, orderID uint64, note string) {
	if err := s.orders.AddNote(ctx, orderID, note); err != nil {
		s.log.Error("Could not add order note", "order_id", orderID, "error", err)
	}
}

func (s *webhookService) publish(ctx context.Context, kind string, order *db_models.Order, status db_models.OrderStatus, ref string, now time.Time) {
	event := events.PaymentEvent{
		Type:            kind,
		OrderID:         order.ID,
		OrderNumber:     order.Number,
		Status:          string(status),
		ProviderOrderID: order.MoniqOrderID,
		TransactionRef:  ref,
		Amount:          order.Total.String(),
		Currency:        order.Currency,
		OccurredAt:      now.UTC(),
	}
	if err := s.publisher.PublishPayment(ctx, event); err != nil {
		s.log.Warning("Payment event not published", "order_id", order.ID, "error", err)
	}
}

// record writes the delivery to the audit log. Failures are logged only.
func (s *webhookService) record(ctx context.Context, body []byte, headers http.Header, out Outcome, now time.Time) {
	if s.audit == nil {
		return
	}

	event := &db_models.WebhookEvent{
		ID:           s.newID(),
		HasSignature: s.verifier.HasSignature(headers),
		Outcome:      string(out.Kind),
		HTTPStatus:   out.HTTPStatus,
		ReceivedAt:   now.UTC(),
	}
	if out.OrderID != 0 {
		id := out.OrderID
		event.OrderID = &id
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}
	if json.Valid(body) {
		event.Payload = body
	}

	if err := s.audit.Record(ctx, event); err != nil {
		s.log.Warning("Webhook audit record failed", "error", err)
	}
}

func (s *webhookService) RecentDeliveries(ctx context.Context, orderID uint64, limit int) ([]response_models.WebhookDeliveryResponse, error) {
	if s.audit == nil {
		return []response_models.WebhookDeliveryResponse{}, nil
	}
	rows, err := s.audit.ListByOrder(ctx, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	out := make([]response_models.WebhookDeliveryResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, response_models.WebhookDeliveryResponse{
			ID:           r.ID,
			Outcome:      r.Outcome,
			HTTPStatus:   r.HTTPStatus,
			HasSignature: r.HasSignature,
			Error:        r.Error,
			ReceivedAt:   r.ReceivedAt,
		})
	}
	return out, nil
}
