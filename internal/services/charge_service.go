package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"moniqgw/internal/config"
	"moniqgw/internal/infra/metrics"
	"moniqgw/internal/infra/moniq"
	"moniqgw/internal/models/db_models"
	"moniqgw/internal/models/response_models"
	"moniqgw/internal/repositories"
	"moniqgw/pkg/logger"
	"moniqgw/pkg/utils"
)

const (
	maxItemNameLength = 255
	awaitingNote      = "Awaiting payment confirmation from Moniq."
)

// MoniqAPI is the provider surface used by the payment services.
// *moniq.Client satisfies it.
type MoniqAPI interface {
	CreateCharge(ctx context.Context, charge moniq.ChargeRequest) (*moniq.ChargeResult, error)
	VerifyOrder(ctx context.Context, providerOrderID string) (*moniq.VerifiedOrder, error)
	TestConnection(ctx context.Context) error
}

// ChargeDecorator may adjust a prepared charge before it is submitted.
type ChargeDecorator func(order *db_models.Order, charge *moniq.ChargeRequest)

// ValidationError names the charge field that was missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

func (e *ValidationError) Unwrap() error { return utils.ErrValidation }

type ChargeService interface {
	IsAvailable() bool
	PrepareCharge(order *db_models.Order) moniq.ChargeRequest
	CreateCharge(ctx context.Context, charge moniq.ChargeRequest) (*moniq.ChargeResult, error)
	ProcessPayment(ctx context.Context, orderID uint64, cartSession string) (*response_models.CheckoutResponse, error)
	TestConnection(ctx context.Context) error
	LatestTransaction(ctx context.Context, orderID uint64) (*response_models.TransactionResponse, error)
	OrderPaymentStatus(ctx context.Context, orderID uint64, orderKey string) (*response_models.OrderPaymentStatusResponse, error)
}

type ChargeDeps struct {
	Config       *config.Config
	API          MoniqAPI
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Carts        repositories.CartRepository
	Metrics      *metrics.GatewayMetrics
	Logger       *logger.Logger
}

type ChargeOption func(*chargeService)

func WithChargeClock(now func() time.Time) ChargeOption {
	return func(s *chargeService) { s.now = now }
}

func WithChargeDecorators(d ...ChargeDecorator) ChargeOption {
	return func(s *chargeService) { s.decorators = append(s.decorators, d...) }
}

type chargeService struct {
	cfg        *config.Config
	api        MoniqAPI
	orders     repositories.OrderRepository
	txns       repositories.TransactionRepository
	carts      repositories.CartRepository
	metrics    *metrics.GatewayMetrics
	log        *logger.Logger
	now        func() time.Time
	decorators []ChargeDecorator
}

func NewChargeService(deps ChargeDeps, opts ...ChargeOption) ChargeService {
	s := &chargeService{
		cfg:     deps.Config,
		api:     deps.API,
		orders:  deps.Orders,
		txns:    deps.Transactions,
		carts:   deps.Carts,
		metrics: deps.Metrics,
		log:     deps.Logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IsAvailable is false when the gateway is switched off or has no
// credentials.
func (s *chargeService) IsAvailable() bool {
	if !s.cfg.Gateway.IsEnabled() {
		return false
	}
	if s.cfg.Gateway.PublicKey == "" || s.cfg.Gateway.APISecret == "" {
		s.log.Warning("Moniq gateway disabled: API credentials are not configured")
		return false
	}
	return true
}

func (s *chargeService) PrepareCharge(order *db_models.Order) moniq.ChargeRequest {
	places := s.cfg.Store.PriceDecimals
	lines := make([]moniq.OrderLine, 0, len(order.Items)+len(order.Fees)+2)

	for _, item := range order.Items {
		unit := decimal.Zero
		if item.Quantity > 0 {
			unit = item.Subtotal.Div(decimal.NewFromInt(int64(item.Quantity)))
		}
		lines = append(lines, moniq.OrderLine{
			ItemName: truncateRunes(item.Name, maxItemNameLength),
			Quantity: item.Quantity,
			Amount:   unit.Round(places),
		})
	}

	if order.ShippingTotal.IsPositive() {
		lines = append(lines, moniq.OrderLine{
			ItemName: truncateRunes("Shipping: "+order.ShippingMethod, maxItemNameLength),
			Quantity: 1,
			Amount:   order.ShippingTotal.Round(places),
		})
	}

	for _, fee := range order.Fees {
		lines = append(lines, moniq.OrderLine{
			ItemName: truncateRunes(fee.Name, maxItemNameLength),
			Quantity: 1,
			Amount:   fee.Total.Round(places),
		})
	}

	pricesIncludeTax := s.cfg.Store.PricesIncludeTax || order.PricesIncludeTax
	if order.TotalTax.IsPositive() && !pricesIncludeTax {
		lines = append(lines, moniq.OrderLine{
			ItemName: "Tax",
			Quantity: 1,
			Amount:   order.TotalTax.Round(places),
		})
	}

	orderID := strconv.FormatUint(order.ID, 10)
	charge := moniq.ChargeRequest{
		Currency:       order.Currency,
		Email:          order.BillingEmail,
		Phone:          order.BillingPhone,
		CustomerName:   customerName(order),
		Narration:      fmt.Sprintf("Order #%s from %s", order.Number, s.cfg.Store.Name),
		TransactionRef: fmt.Sprintf("WC-%s-%d", order.Number, s.now().Unix()),
		ReferenceKey:   order.Key,
		RedirectURL:    s.returnURL(order),
		WebhookURL:     s.cfg.WebhookURL(),
		OrderLines:     lines,
		Metadata: map[string]string{
			"order_id":     orderID,
			"order_number": order.Number,
			"store_url":    s.cfg.Store.URL,
			"store_name":   s.cfg.Store.Name,
		},
	}

	if order.BillingAddress1 != "" {
		charge.CustomerAddress = &moniq.CustomerAddress{
			Line1:      order.BillingAddress1,
			Line2:      order.BillingAddress2,
			City:       order.BillingCity,
			State:      order.BillingState,
			PostalCode: order.BillingPostcode,
			Country:    order.BillingCountry,
		}
	}

	for _, d := range s.decorators {
		d(order, &charge)
	}
	return charge
}

func (s *chargeService) CreateCharge(ctx context.Context, charge moniq.ChargeRequest) (*moniq.ChargeResult, error) {
	switch {
	case charge.Currency == "":
		return nil, &ValidationError{Field: "currency"}
	case charge.Email == "":
		return nil, &ValidationError{Field: "email"}
	case len(charge.OrderLines) == 0:
		return nil, &ValidationError{Field: "orderLines"}
	}
	return s.api.CreateCharge(ctx, charge)
}

// ProcessPayment starts a hosted checkout for the order. Stock and cart
// side effects happen only once the pending transaction is stored.
func (s *chargeService) ProcessPayment(ctx context.Context, orderID uint64, cartSession string) (*response_models.CheckoutResponse, error) {
	if !s.IsAvailable() {
		return nil, utils.ErrGatewayDisabled
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, utils.ErrOrderNotFound
	}
	if order.IsClosedForCheckout() {
		return nil, utils.ErrOrderAlreadyFinal
	}

	s.log.Info("Processing payment for order #"+order.Number, "order_id", order.ID)

	if err := s.orders.MarkCheckoutInitiated(ctx, order.ID, s.now()); err != nil {
		s.log.Warning("Could not record checkout start", "order_id", order.ID, "error", err)
	}

	result, err := s.CreateCharge(ctx, s.PrepareCharge(order))
	if err != nil {
		s.metrics.RecordCharge(chargeResultLabel(err))
		s.log.Error("API Error: "+utils.ProviderMessage(err), "order_id", order.ID)
		return nil, err
	}

	checkoutURL, ref := result.CheckoutURL, result.TransactionRef()
	if checkoutURL == "" || ref == "" {
		s.metrics.RecordCharge(chargeResultLabel(utils.ErrInvalidResponse))
		s.log.Error("Invalid API response structure", "order_id", order.ID)
		return nil, fmt.Errorf("%w: checkoutURL or transactionRef missing", utils.ErrInvalidResponse)
	}

	txn := &db_models.Transaction{
		OrderID:                order.ID,
		ProviderOrderID:        result.ProviderOrderID(),
		ProviderTransactionRef: ref,
		Status:                 db_models.TxnStatusPending,
		Amount:                 order.Total,
		Currency:               order.Currency,
		RawPayload:             []byte(result.Raw),
	}
	if err := s.txns.Insert(ctx, txn); err != nil {
		if !errors.Is(err, utils.ErrDuplicateTransaction) {
			s.metrics.RecordCharge("error")
			s.log.Error("DB Insert Error", "order_id", order.ID, "error", err)
			return nil, err
		}
		s.log.Warning("Transaction already recorded", "order_id", order.ID, "transaction_ref", ref)
	}

	if err := s.orders.AwaitPayment(ctx, order.ID, result.ProviderOrderID(), ref, awaitingNote); err != nil {
		s.log.Error("Could not record awaited payment", "order_id", order.ID, "error", err)
		return nil, err
	}

	if err := s.orders.ReduceStockLevels(ctx, order.ID); err != nil {
		s.log.Error("Stock reduction failed", "order_id", order.ID, "error", err)
	}
	if err := s.carts.EmptyCart(ctx, cartSession); err != nil {
		s.log.Warning("Could not empty cart", "order_id", order.ID, "error", err)
	}

	s.metrics.RecordCharge("created")
	s.log.Info("Redirecting to: "+checkoutURL, "order_id", order.ID)

	return &response_models.CheckoutResponse{
		OrderID:        order.ID,
		RedirectURL:    checkoutURL,
		TransactionRef: ref,
	}, nil
}

// TestConnection forces a fresh credential exchange.
func (s *chargeService) TestConnection(ctx context.Context) error {
	if err := s.api.TestConnection(ctx); err != nil {
		s.log.Error("Moniq connection test failed", "error", err)
		return err
	}
	s.log.Notice("Moniq connection test succeeded")
	return nil
}

func (s *chargeService) LatestTransaction(ctx context.Context, orderID uint64) (*response_models.TransactionResponse, error) {
	txn, err := s.txns.FindLatestByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, utils.ErrTransactionNotFound
	}

	return &response_models.TransactionResponse{
		ID:              txn.ID.String(),
		OrderID:         txn.OrderID,
		ProviderOrderID: txn.ProviderOrderID,
		TransactionRef:  txn.ProviderTransactionRef,
		Status:          string(txn.Status),
		ProviderStatus:  txn.ProviderStatus,
		Amount:          txn.Amount.StringFixed(s.cfg.Store.PriceDecimals),
		Currency:        txn.Currency,
		CreatedAt:       txn.CreatedAt,
		UpdatedAt:       txn.UpdatedAt,
	}, nil
}

// OrderPaymentStatus backs the order-received page. The order key acts as
// the buyer's credential.
func (s *chargeService) OrderPaymentStatus(ctx context.Context, orderID uint64, orderKey string) (*response_models.OrderPaymentStatusResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Key != orderKey || order.PaymentMethod != PaymentMethodID {
		return nil, utils.ErrOrderNotFound
	}

	return &response_models.OrderPaymentStatusResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
		Message: PaymentStatusMessage(order.Status),
	}, nil
}

func (s *chargeService) returnURL(order *db_models.Order) string {
	q := url.Values{}
	q.Set("key", order.Key)
	base := strings.TrimRight(s.cfg.Store.URL, "/")
	return fmt.Sprintf("%s/checkout/order-received/%d/?%s", base, order.ID, q.Encode())
}

func customerName(order *db_models.Order) string {
	name := strings.TrimSpace(order.BillingFirstName + " " + order.BillingLastName)
	if name != "" {
		return name
	}
	if order.BillingEmail != "" {
		return order.BillingEmail
	}
	return "Guest"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func chargeResultLabel(err error) string {
	switch {
	case errors.Is(err, utils.ErrValidation):
		return "validation"
	case errors.Is(err, utils.ErrAuth):
		return "auth"
	case errors.Is(err, utils.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, utils.ErrAPI):
		return "api"
	default:
		return "error"
	}
}
