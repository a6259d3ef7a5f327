package handler

import (
	"net/http"

	"cadence/internal/ws"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presence *ws.Presence
}

func NewPresenceHandler(presence *ws.Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// Online reports the live online set, or a single user with ?user_id=.
func (h *PresenceHandler) Online(c *gin.Context) {
	if id := c.Query("user_id"); id != "" {
		c.JSON(http.StatusOK, gin.H{"user_id": id, "is_online": h.presence.IsOnline(id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    h.presence.OnlineCount(),
		"user_ids": h.presence.OnlineUserIDs(),
	})
}
