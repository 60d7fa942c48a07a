package request_models

type CheckoutRequest struct {
	OrderID     uint64 `json:"order_id" binding:"required"`
	CartSession string `json:"cart_session"`
}

type OrderStatusQuery struct {
	Key string `form:"key" binding:"required"`
}
