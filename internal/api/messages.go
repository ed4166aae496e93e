package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/notification"
)

func (s *Server) sendMessage(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiverId"`
		Content    string `json:"content"`
	}
	if !bindJSON(c, &req) {
		return
	}
	m, err := s.Messages.Send(c.Request.Context(), auth.UserID(c), req.ReceiverID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) getThread(c *gin.Context) {
	with := strings.TrimSpace(c.Query("with"))
	if with == "" {
		writeError(c, apperr.Invalid("with is required"))
		return
	}
	msgs, err := s.Messages.Thread(c.Request.Context(), auth.UserID(c), with)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) conversations(c *gin.Context) {
	convs, err := s.Messages.Conversations(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) listNotifications(c *gin.Context) {
	limit, ok := queryLimit(c, notification.DefaultListLimit, notification.DefaultListLimit)
	if !ok {
		return
	}
	items, err := s.Notifications.List(c.Request.Context(), auth.UserID(c), int64(limit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// systemOnly lists the notification types only the platform may send to
// another user. Callers can still post them to their own feed.
var systemOnly = map[notification.Type]bool{
	notification.TypeMatch:        true,
	notification.TypeTripApproved: true,
	notification.TypeReview:       true,
}

// createNotification posts a notice into a user's feed. The recipient
// defaults to the caller. A notice for someone else always points back at
// the caller through relatedId.
func (s *Server) createNotification(c *gin.Context) {
	var req struct {
		UserID      string `json:"userId"`
		Type        string `json:"type"`
		Title       string `json:"title"`
		Description string `json:"description"`
		RelatedID   string `json:"relatedId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	kind, ok := notification.ParseType(req.Type)
	if !ok {
		writeError(c, apperr.Invalid("unknown notification type"))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(c, apperr.Invalid("title is required"))
		return
	}
	if res := s.Filter.CheckTerms(title + " " + req.Description); res.Blocked {
		writeError(c, apperr.Invalid(res.Detail))
		return
	}

	ctx := c.Request.Context()
	me := auth.UserID(c)
	recipient := strings.TrimSpace(req.UserID)
	if recipient == "" {
		recipient = me
	}
	relatedID := req.RelatedID
	if recipient != me {
		if systemOnly[kind] {
			writeError(c, apperr.Forbidden("You cannot send this notification type to another user"))
			return
		}
		relatedID = me
	}
	if _, err := s.Users.GetByID(ctx, recipient); err != nil {
		writeError(c, err)
		return
	}

	n, err := s.Notifications.Notify(ctx, recipient, kind, title, strings.TrimSpace(req.Description), relatedID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) markNotificationRead(c *gin.Context) {
	if err := s.Notifications.MarkRead(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (s *Server) markAllNotificationsRead(c *gin.Context) {
	n, err := s.Notifications.MarkAllRead(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
