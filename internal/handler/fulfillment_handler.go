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

type FulfillmentHandler struct {
	fulfillmentService service.FulfillmentService
}

func NewFulfillmentHandler(fulfillmentService service.FulfillmentService) *FulfillmentHandler {
	return &FulfillmentHandler{fulfillmentService: fulfillmentService}
}

func (h *FulfillmentHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api")
	api.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
	{
		api.GET("/fleet/available", h.AvailableFleet)
		api.POST("/orders/:id/transport-charge", h.AttachTransportCharge)
		api.POST("/orders/:id/dispatch-slip", h.CreateDispatchSlip)
		api.POST("/orders/:id/dispatch", h.CreateDispatchAssignment)
		api.POST("/orders/:id/mark-dispatched", h.MarkDispatched)
		api.POST("/orders/:id/job-work/advance", h.AdvanceJobWorkStatus)
		api.POST("/orders/:id/job-work/cancel", h.CancelJobWork)
		api.POST("/orders/:id/job-work/breakage", h.RecordBreakage)
	}
}

type jobWorkNotesRequest struct {
	Notes string `json:"notes"`
}

// AvailableFleet lists vehicles and drivers free for assignment
// @Summary      Available fleet
// @Tags         fulfillment
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.FleetRoster}
// @Failure      502  {object}  response.Response
// @Router       /api/fleet/available [get]
func (h *FulfillmentHandler) AvailableFleet(c *gin.Context) {
	roster, err := h.fulfillmentService.AvailableFleet(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roster))
}

// AttachTransportCharge attaches the one-time transport charge to an order
// @Summary      Attach transport charge
// @Description  Allowed in any settlement state but only once per order
// @Tags         fulfillment
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                          true  "Order ID"
// @Param        payload  body      service.TransportChargeRequest  true  "Charge"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/transport-charge [post]
func (h *FulfillmentHandler) AttachTransportCharge(c *gin.Context) {
	var req service.TransportChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.fulfillmentService.AttachTransportCharge(c.Request.Context(), userIDFrom(c), c.Param("id"), req); err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "transport charge attached"}))
}

// CreateDispatchSlip issues the dispatch slip for a settled order
// @Summary      Create dispatch slip
// @Description  Refused locally with the settlement shortfall when the order is not fully collected
// @Tags         fulfillment
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/orders/{id}/dispatch-slip [post]
func (h *FulfillmentHandler) CreateDispatchSlip(c *gin.Context) {
	slipNumber, err := h.fulfillmentService.CreateDispatchSlip(c.Request.Context(), userIDFrom(c), c.Param("id"))
	if err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"slip_number": slipNumber}))
}

// CreateDispatchAssignment assigns a vehicle and driver after slip issuance
// @Summary      Create dispatch assignment
// @Tags         fulfillment
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                             true  "Order ID"
// @Param        payload  body      service.DispatchAssignmentRequest  true  "Assignment"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/orders/{id}/dispatch [post]
func (h *FulfillmentHandler) CreateDispatchAssignment(c *gin.Context) {
	var req service.DispatchAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.fulfillmentService.CreateDispatchAssignment(c.Request.Context(), userIDFrom(c), c.Param("id"), req); err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "dispatch assignment created"}))
}

// MarkDispatched marks a regular order dispatched without a fleet assignment
// @Summary      Mark order dispatched
// @Tags         fulfillment
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/orders/{id}/mark-dispatched [post]
func (h *FulfillmentHandler) MarkDispatched(c *gin.Context) {
	if err := h.fulfillmentService.MarkDispatched(c.Request.Context(), userIDFrom(c), c.Param("id")); err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "order marked dispatched"}))
}

// AdvanceJobWorkStatus moves a job-work order one step along its lifecycle
// @Summary      Advance job-work status
// @Tags         fulfillment
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Order ID"
// @Param        payload  body      jobWorkNotesRequest  false  "Optional notes"
// @Success      200      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/job-work/advance [post]
func (h *FulfillmentHandler) AdvanceJobWorkStatus(c *gin.Context) {
	var req jobWorkNotesRequest
	_ = c.ShouldBindJSON(&req)

	next, err := h.fulfillmentService.AdvanceJobWorkStatus(c.Request.Context(), userIDFrom(c), c.Param("id"), req.Notes)
	if err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": next}))
}

// CancelJobWork cancels a job-work order
// @Summary      Cancel job-work order
// @Tags         fulfillment
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Order ID"
// @Param        payload  body      jobWorkNotesRequest  false  "Optional notes"
// @Success      200      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/orders/{id}/job-work/cancel [post]
func (h *FulfillmentHandler) CancelJobWork(c *gin.Context) {
	var req jobWorkNotesRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.fulfillmentService.CancelJobWork(c.Request.Context(), userIDFrom(c), c.Param("id"), req.Notes); err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "job-work order cancelled"}))
}

// RecordBreakage records a breakage event on a job-work order
// @Summary      Record breakage
// @Tags         fulfillment
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Order ID"
// @Param        payload  body      service.BreakageRequest  true  "Breakage"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/orders/{id}/job-work/breakage [post]
func (h *FulfillmentHandler) RecordBreakage(c *gin.Context) {
	var req service.BreakageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.fulfillmentService.RecordBreakage(c.Request.Context(), userIDFrom(c), c.Param("id"), req); err != nil {
		h.writeFulfillmentError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "breakage recorded"}))
}

func (h *FulfillmentHandler) writeFulfillmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, service.ErrNotSettled):
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
	case errors.Is(err, service.ErrSlipExists),
		errors.Is(err, service.ErrSlipMissing),
		errors.Is(err, service.ErrChargeExists),
		errors.Is(err, service.ErrVehicleAssigned),
		errors.Is(err, service.ErrTerminalStatus):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, service.ErrOrdersUnavailable):
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
	default:
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	}
}
