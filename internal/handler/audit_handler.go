package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/model"
	"opsconsole/internal/repository"
	"opsconsole/internal/service"
	"opsconsole/pkg/pagination"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/audits", middleware.RequireRole(model.RoleAdmin), h.ListAudits)
}

// ListAudits lists the operator action trail
// @Summary      List action audits
// @Description  Retrieves the recorded operator actions, newest first
// @Tags         audits
// @Produce      json
// @Security     BearerAuth
// @Param        order_id  query     string  false  "Filter by order ID"
// @Param        action    query     string  false  "Filter by action"
// @Param        outcome   query     string  false  "Filter by outcome (ok, refused, failed, ambiguous)"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Failure      500       {object}  response.Response
// @Router       /api/audits [get]
func (h *AuditHandler) ListAudits(c *gin.Context) {
	params := pagination.Parse(c)
	filter := repository.AuditFilter{
		OrderID: c.Query("order_id"),
		Action:  c.Query("action"),
		Outcome: c.Query("outcome"),
		Page:    params.Page,
		Limit:   params.Limit,
	}

	audits, total, err := h.auditService.ListAudits(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch audits"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"audits": audits,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	}))
}
