package handler

import (
	"errors"
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api")
	payments.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
	{
		payments.GET("/payment/selection", h.GetSelection)
		payments.POST("/orders/:id/payment/select", h.SelectMethod)
		payments.POST("/orders/:id/payment/cash", h.ExecuteCash)
		payments.POST("/orders/:id/payment/checkout", h.CreateCheckout)
		payments.POST("/orders/:id/payment/checkout/confirm", h.ConfirmCheckout)
		payments.POST("/orders/:id/payment/checkout/cancel", h.CancelCheckout)
	}
}

type selectMethodRequest struct {
	Method string `json:"method" binding:"required,oneof=cash online"`
}

type confirmCheckoutRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// GetSelection returns the current payment protocol state
// @Summary      Get payment selection
// @Description  Returns the current method selection and protocol state
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.SelectionView}
// @Router       /api/payment/selection [get]
func (h *PaymentHandler) GetSelection(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.paymentService.Selection()))
}

// SelectMethod toggles a payment method selection for an order
// @Summary      Select payment method
// @Description  Selects cash or online for an order. Re-selecting the same method deselects; selecting another order steals the selection.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Order ID"
// @Param        payload  body      selectMethodRequest  true  "Method"
// @Success      200      {object}  response.Response{data=service.SelectionView}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/payment/select [post]
func (h *PaymentHandler) SelectMethod(c *gin.Context) {
	var req selectMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	view, err := h.paymentService.SelectMethod(c.Request.Context(), c.Param("id"), req.Method)
	if err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// ExecuteCash records the cash preference for the selected order
// @Summary      Execute cash payment
// @Description  Records the in-person cash preference upstream; the selection survives a failure so the operator can retry
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/payment/cash [post]
func (h *PaymentHandler) ExecuteCash(c *gin.Context) {
	if err := h.paymentService.ExecuteCash(c.Request.Context(), userIDFrom(c), c.Param("id")); err != nil {
		h.writePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "cash preference recorded"}))
}

// CreateCheckout opens the hosted checkout for the selected order
// @Summary      Create checkout
// @Description  Requests a payment intent for the remaining amount and returns the hosted-widget configuration
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.CheckoutConfig}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/payment/checkout [post]
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	config, err := h.paymentService.CreateCheckout(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		h.writePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, config))
}

// ConfirmCheckout verifies the widget completion callback
// @Summary      Confirm checkout
// @Description  Verifies the checkout completion upstream. A verification failure is reported as ambiguous and is never retried automatically.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Order ID"
// @Param        payload  body      confirmCheckoutRequest  true  "Completion callback"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/payment/checkout/confirm [post]
func (h *PaymentHandler) ConfirmCheckout(c *gin.Context) {
	var req confirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	err := h.paymentService.ConfirmCheckout(c.Request.Context(), userIDFrom(c), c.Param("id"), req.PaymentID, req.Signature)
	if err != nil {
		h.writePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "payment verified"}))
}

// CancelCheckout handles widget dismissal
// @Summary      Cancel checkout
// @Description  Returns the protocol to method_selected with no upstream call
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/orders/{id}/payment/checkout/cancel [post]
func (h *PaymentHandler) CancelCheckout(c *gin.Context) {
	if err := h.paymentService.CancelCheckout(c.Param("id")); err != nil {
		h.writePaymentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "checkout cancelled"}))
}

func (h *PaymentHandler) writePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrPaymentBusy):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrVerificationAmbiguous):
		// Distinct status so the console renders the needs-operator state
		// instead of a plain retryable failure.
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	}
}

// userIDFrom reads the authenticated operator id set by the auth middleware.
func userIDFrom(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
