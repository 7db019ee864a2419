package handler

import (
	"errors"
	"net/http"
	"time"

	"opsconsole/internal/erp"
	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/service"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	ledgerService service.LedgerService
}

func NewLedgerHandler(ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api")
	api.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
	{
		api.GET("/ledger", h.CustomerLedger)
		api.GET("/statistics/shares", h.ShareStatistics)
	}
}

// CustomerLedger returns a customer's ageing summary by phone lookup
// @Summary      Customer ledger
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        phone  query     string  true  "Customer phone"
// @Success      200    {object}  response.Response{data=service.LedgerView}
// @Failure      400    {object}  response.Response
// @Failure      404    {object}  response.Response
// @Failure      502    {object}  response.Response
// @Router       /api/ledger [get]
func (h *LedgerHandler) CustomerLedger(c *gin.Context) {
	phone := c.Query("phone")
	if phone == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "phone query parameter is required"))
		return
	}

	view, err := h.ledgerService.CustomerLedger(c.Request.Context(), phone)
	if err != nil {
		switch {
		case errors.Is(err, erp.ErrNotFound):
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "customer not found"))
		case errors.Is(err, erp.ErrUnavailable):
			c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// ShareStatistics aggregates the local share trail by document and channel
// @Summary      Share statistics
// @Description  Counts shares grouped by document type and channel over a date range (defaults to the last month)
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  false  "Start date (RFC3339 or YYYY-MM-DD)"
// @Param        to    query     string  false  "End date (RFC3339 or YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=object}
// @Failure      400   {object}  response.Response
// @Failure      500   {object}  response.Response
// @Router       /api/statistics/shares [get]
func (h *LedgerHandler) ShareStatistics(c *gin.Context) {
	from, err := parseDateQuery(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid from date"))
		return
	}
	to, err := parseDateQuery(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid to date"))
		return
	}

	stats, err := h.ledgerService.ShareStatistics(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to aggregate share statistics"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"statistics": stats,
	}))
}

func parseDateQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
