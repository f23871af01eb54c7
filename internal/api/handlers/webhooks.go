package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parkline/ticketspool/internal/webhook"
)

type WebhookHandler struct {
	sender *webhook.WebhookSender
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewWebhookHandler(sender *webhook.WebhookSender) *WebhookHandler {
	return &WebhookHandler{sender: sender}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	targets := h.sender.Targets()
	c.JSON(http.StatusOK, gin.H{
		"webhooks": targets,
		"count":    len(targets),
	})
}

// TestWebhook sends one test event to the named target and reports whether
// it was accepted. Delivery failures are a 200 with success=false.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	err := h.sender.Test(c.Request.Context(), c.Param("name"))
	if errors.Is(err, webhook.ErrTargetNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, TestWebhookResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, TestWebhookResponse{
		Success: true,
		Message: "test event delivered",
	})
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	r.GET("/webhooks", h.ListWebhooks)
	r.POST("/webhooks/:name/test", h.TestWebhook)
}
