package handler

import (
	"errors"
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/pagination"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/orders")
	orders.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
	{
		orders.GET("", h.ListOrders)
		orders.POST("/refresh", h.RefreshOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/stages", h.GetOrderStages)
	}
}

// ListOrders returns the merged, most-recent-first order view
// @Summary      List orders
// @Description  Returns regular and job-work orders merged into one list, newest first, decorated with flow position and settlement verdicts
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        kind           query     string  false  "Filter by kind (regular, job_work)"
// @Param        status         query     string  false  "Filter by status"
// @Param        needs_payment  query     bool    false  "Only orders with an offerable payment action"
// @Param        page           query     int     false  "Page number (default 1)"
// @Param        limit          query     int     false  "Items per page (default 20)"
// @Success      200            {object}  response.Response{data=object}
// @Failure      502            {object}  response.Response
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	params := pagination.Parse(c)
	filter := service.OrderFilter{
		Kind:         c.Query("kind"),
		Status:       c.Query("status"),
		NeedsPayment: c.Query("needs_payment") == "true",
		Page:         params.Page,
		Limit:        params.Limit,
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, service.ErrOrdersUnavailable) {
			c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"orders":   orders,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
		"snapshot": h.orderService.Info(),
	}))
}

// RefreshOrders discards the snapshot and refetches both order feeds
// @Summary      Refresh orders
// @Description  Refetches both order feeds from the ERP and swaps the snapshot
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.SnapshotInfo}
// @Failure      502  {object}  response.Response
// @Router       /api/orders/refresh [post]
func (h *OrderHandler) RefreshOrders(c *gin.Context) {
	if err := h.orderService.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.orderService.Info()))
}

// GetOrder returns one order from the current snapshot
// @Summary      Get order
// @Description  Returns a single normalized order with its settlement verdicts
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Order not found"))
			return
		}
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"order":         order,
		"position":      service.Position(*order),
		"badge":         service.Badge(*order),
		"needs_payment": service.NeedsPayment(*order),
		"remaining":     service.Remaining(*order).StringFixed(2),
		"is_settled":    service.IsSettled(*order),
	}))
}

// GetOrderStages returns the progress flow for the order's kind
// @Summary      Get order stages
// @Description  Returns the fixed stage list for the order's kind plus the order's current position
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=object}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id}/stages [get]
func (h *OrderHandler) GetOrderStages(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Order not found"))
			return
		}
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"stages":   service.Stages(order.Kind),
		"position": service.Position(*order),
	}))
}
