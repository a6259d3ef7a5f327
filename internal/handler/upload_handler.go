package handler

import (
	"net/http"
	"strings"

	"cadence/internal/middleware"
	"cadence/internal/queue"
	"cadence/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UploadHandler struct {
	cloud  cloudinary.Client
	jobs   *queue.Queue
	logger *zap.Logger
}

func NewUploadHandler(cloud cloudinary.Client, jobs *queue.Queue, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{cloud: cloud, jobs: jobs, logger: logger.Named("upload")}
}

// UploadChatMedia allows any authenticated user to upload an image for chat.
// Returns the URL right away; an optimized copy is produced in the background.
func (h *UploadHandler) UploadChatMedia(c *gin.Context) {
	userID := middleware.GetUserID(c)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	folder := "Cadence/chat/" + userID
	publicID := "img_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer f.Close()

	url, thumb, err := h.cloud.UploadImage(c.Request.Context(), f, folder, publicID)
	if err != nil {
		h.logger.Error("upload failed", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	resp := gin.H{"url": url, "thumbnail": thumb}
	job, err := h.jobs.AddImageProcessingJob(c.Request.Context(), queue.ImageJob{
		ImageURL:   url,
		UserID:     userID,
		Operations: []string{queue.ImageCompress},
	})
	if err != nil {
		h.logger.Warn("queue image processing", zap.String("user_id", userID), zap.Error(err))
	} else {
		resp["job_id"] = job.ID
	}
	c.JSON(http.StatusOK, resp)
}
