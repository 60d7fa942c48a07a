package controllers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"moniqgw/internal/models/request_models"
	"moniqgw/internal/models/response_models"
	"moniqgw/internal/services"
	"moniqgw/pkg/utils"
)

// maxWebhookBody caps how much of a notification body is read.
const maxWebhookBody = 1 << 20

type PaymentController struct {
	chargeService  services.ChargeService
	webhookService services.WebhookService
}

func NewPaymentController(chargeService services.ChargeService, webhookService services.WebhookService) *PaymentController {
	return &PaymentController{
		chargeService:  chargeService,
		webhookService: webhookService,
	}
}

// Checkout godoc
// @Summary Start a Moniq hosted checkout for an order
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body request_models.CheckoutRequest true "Checkout Request"
// @Success 200 {object} utils.APIResponse
// @Router /payments/checkout [post]
func (p *PaymentController) Checkout(c *gin.Context) {
	var request request_models.CheckoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	res, err := p.chargeService.ProcessPayment(c.Request.Context(), request.OrderID, request.CartSession)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, res, "Checkout created successfully")
}

// HandleWebhook answers in plain text; the provider only looks at the
// status code.
func (p *PaymentController) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid body")
		return
	}

	out := p.webhookService.Reconcile(c.Request.Context(), body, c.Request.Header)
	c.String(out.HTTPStatus, out.Body)
}

// OrderStatus godoc
// @Summary Payment status of an order for the order-received page
// @Tags Payments
// @Produce json
// @Param orderId path int true "Order ID"
// @Param key query string true "Order key"
// @Success 200 {object} utils.APIResponse
// @Router /payments/orders/{orderId}/status [get]
func (p *PaymentController) OrderStatus(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	var query request_models.OrderStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "key is required")
		return
	}

	res, err := p.chargeService.OrderPaymentStatus(c.Request.Context(), orderID, query.Key)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, res, "Fetched payment status successfully")
}

// TestConnection godoc
// @Summary Check the configured Moniq credentials
// @Tags Admin
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/moniq/test-connection [post]
func (p *PaymentController) TestConnection(c *gin.Context) {
	if err := p.chargeService.TestConnection(c.Request.Context()); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.ConnectionTestResponse{
		Connected: true,
		Message:   "Connection successful!",
	}, "Connection successful!")
}

// GetTransaction godoc
// @Summary Latest Moniq transaction record of an order
// @Tags Admin
// @Produce json
// @Param orderId path int true "Order ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/moniq/transactions/{orderId} [get]
func (p *PaymentController) GetTransaction(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}

	txn, err := p.chargeService.LatestTransaction(c.Request.Context(), orderID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, txn, "Fetched transaction successfully")
}

// GetWebhookDeliveries godoc
// @Summary Recent Moniq webhook deliveries for an order
// @Tags Admin
// @Produce json
// @Param orderId path int true "Order ID"
// @Param limit query int false "Max rows (default 20, max 100)"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /admin/moniq/webhooks/{orderId} [get]
func (p *PaymentController) GetWebhookDeliveries(c *gin.Context) {
	orderID, ok := parseOrderID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	deliveries, err := p.webhookService.RecentDeliveries(c.Request.Context(), orderID, limit)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, deliveries, "Fetched webhook deliveries successfully")
}

func parseOrderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("orderId"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, "Invalid order id")
		return 0, false
	}
	return id, true
}
