package handler

import (
	"errors"
	"net/http"

	"cadence/internal/queue"
	"cadence/internal/repository"
	"cadence/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	jobs          *queue.Queue
	notifications *service.NotificationService
	payments      *service.PaymentService
	logger        *zap.Logger
}

func NewAdminHandler(
	jobs *queue.Queue,
	notifications *service.NotificationService,
	payments *service.PaymentService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		jobs:          jobs,
		notifications: notifications,
		payments:      payments,
		logger:        logger.Named("admin"),
	}
}

// QueueCounts handles GET /admin/queues.
func (h *AdminHandler) QueueCounts(c *gin.Context) {
	counts, err := h.jobs.AllCounts(c.Request.Context())
	if err != nil {
		h.logger.Error("queue counts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load queue counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": counts})
}

// GetJob handles GET /admin/queues/:queue/jobs/:id.
func (h *AdminHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("queue"), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, job)
	case errors.Is(err, queue.ErrJobNotFound), errors.Is(err, queue.ErrUnknownQueue):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("get job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
	}
}

// Broadcast handles POST /admin/notifications/broadcast.
func (h *AdminHandler) Broadcast(c *gin.Context) {
	var req struct {
		Title string            `json:"title" binding:"required,max=255"`
		Body  string            `json:"body" binding:"required"`
		Data  map[string]string `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.notifications.Broadcast(c.Request.Context(), req.Title, req.Body, req.Data)
	if err != nil {
		if errors.Is(err, service.ErrPushDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("broadcast", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "broadcast failed", "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

// SettlePayment handles POST /admin/payments/:id/status.
func (h *AdminHandler) SettlePayment(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=COMPLETED FAILED"`
		Reason string `json:"reason" binding:"max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.payments.Settle(c.Request.Context(), c.Param("id"), req.Status, req.Reason)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, p)
	case repository.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, service.ErrPaymentSettled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("settle payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
	}
}
