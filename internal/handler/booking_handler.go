package handler

import (
	"errors"
	"net/http"
	"time"

	"cadence/internal/middleware"
	"cadence/internal/repository"
	"cadence/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BookingHandler struct {
	bookings *service.BookingService
	reviews  *service.ReviewService
	logger   *zap.Logger
}

func NewBookingHandler(bookings *service.BookingService, reviews *service.ReviewService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, reviews: reviews, logger: logger.Named("bookings")}
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req struct {
		ServiceID string    `json:"service_id" binding:"required"`
		Date      time.Time `json:"date" binding:"required"`
		Location  string    `json:"location" binding:"max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.bookings.Create(c.Request.Context(), middleware.GetUserID(c), req.ServiceID, req.Date, req.Location)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.bookings.UpdateStatus(c.Request.Context(), middleware.GetUserID(c), middleware.GetRole(c), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"max=512"`
	}
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	b, err := h.bookings.Cancel(c.Request.Context(), middleware.GetUserID(c), middleware.GetRole(c), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) CreateReview(c *gin.Context) {
	var req struct {
		ServiceID string `json:"service_id" binding:"required"`
		Rating    int    `json:"rating" binding:"required"`
		Comment   string `json:"comment" binding:"max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.reviews.Create(c.Request.Context(), middleware.GetUserID(c), req.ServiceID, req.Rating, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *BookingHandler) fail(c *gin.Context, err error) {
	switch {
	case repository.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrBookingClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrDateInPast), errors.Is(err, service.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}
