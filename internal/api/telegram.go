package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-insights-go/internal/notify"
)

// telegramWebhook always answers 200 so Telegram does not redeliver.
func (s *Server) telegramWebhook(c *gin.Context) {
	if s.deps.Bot == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	var u notify.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		s.log.WithRequest(c.Request).WithField("error", err.Error()).Warn("unreadable telegram update")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if err := s.deps.Bot.Handle(c.Request.Context(), u); err != nil {
		s.log.WithRequest(c.Request).WithField("error", err.Error()).WithField("update_id", u.UpdateID).Warn("telegram reply failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
