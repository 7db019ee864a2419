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

type ShareHandler struct {
	shareService service.ShareService
}

func NewShareHandler(shareService service.ShareService) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

func (h *ShareHandler) RegisterRoutes(router *gin.RouterGroup) {
	shares := router.Group("/api/orders/:id")
	shares.Use(middleware.RequireRole(model.RoleAdmin, model.RoleOperator))
	{
		shares.POST("/share", h.Share)
		shares.GET("/share", h.History)
	}
}

// Share dispatches one document through one channel
// @Summary      Share a document
// @Description  Resolves the tokenised document URL and routes it through download, messaging, email or clipboard
// @Tags         sharing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Order ID"
// @Param        payload  body      service.ShareRequest  true  "Share request"
// @Success      200      {object}  response.Response{data=service.ShareResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/orders/{id}/share [post]
func (h *ShareHandler) Share(c *gin.Context) {
	var req service.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.shareService.Share(c.Request.Context(), userIDFrom(c), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		case errors.Is(err, service.ErrNoRecipient):
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		default:
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// History lists the share trail for an order
// @Summary      Share history
// @Tags         sharing
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Order ID"
// @Param        page   query     int     false  "Page"
// @Param        limit  query     int     false  "Limit"
// @Success      200    {object}  response.Response{data=[]model.ShareLog}
// @Failure      500    {object}  response.Response
// @Router       /api/orders/{id}/share [get]
func (h *ShareHandler) History(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.shareService.History(c.Request.Context(), c.Param("id"), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"items": logs,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}))
}
