package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/matching"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/user"
)

const (
	defaultRankLimit = 10
	maxRankLimit     = 50
)

// candidateView is a ranked candidate with their public profile.
type candidateView struct {
	User    user.Public `json:"user"`
	Score   int         `json:"score"`
	Reasons []string    `json:"reasons"`
}

func (s *Server) rankMatches(c *gin.Context) {
	limit, ok := queryLimit(c, defaultRankLimit, maxRankLimit)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	candidates, err := s.Engine.Rank(ctx, auth.UserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.TargetID
	}
	users, err := s.Users.GetByIDs(ctx, ids)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		u, ok := users[cand.TargetID]
		if !ok {
			// Deleted between ranking and lookup.
			log.Printf("[api] rank lookup %s: not found", cand.TargetID)
			continue
		}
		views = append(views, candidateView{User: u.Public(), Score: cand.Score, Reasons: cand.Reasons})
	}
	c.JSON(http.StatusOK, gin.H{"matches": views})
}

func (s *Server) createMatch(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
		TripID string `json:"tripId"`
	}
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	me := auth.UserID(c)
	target := strings.TrimSpace(req.UserID)
	if target == "" {
		writeError(c, apperr.Invalid("userId is required"))
		return
	}
	if _, err := s.Users.GetByID(ctx, target); err != nil {
		writeError(c, err)
		return
	}

	rec, created, err := s.Engine.GetOrCreateMatch(ctx, me, target, strings.TrimSpace(req.TripID))
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.notifyMatch(ctx, rec)
	}
	c.JSON(status, gin.H{"match": rec, "created": created})
}

// notifyMatch tells both participants about a new match. Failures are logged;
// the match itself already exists.
func (s *Server) notifyMatch(ctx context.Context, rec *matching.MatchRecord) {
	names := map[string]string{}
	for _, id := range []string{rec.UserID1, rec.UserID2} {
		names[id] = "a fellow traveller"
		if u, err := s.Users.GetByID(ctx, id); err == nil {
			names[id] = u.Name
		}
	}

	description := fmt.Sprintf("You have a %d%% compatibility match. Start chatting to learn more!", rec.Score)
	for _, recipient := range []string{rec.UserID1, rec.UserID2} {
		other := rec.Partner(recipient)
		title := fmt.Sprintf("You matched with %s!", names[other])
		if _, err := s.Notifications.Notify(ctx, recipient, notification.TypeMatch, title, description, other); err != nil {
			log.Printf("[api] match notice match=%s user=%s: %v", rec.ID, recipient, err)
		}
	}
}

func (s *Server) listMatchRecords(c *gin.Context) {
	var status matching.Status
	if raw := c.Query("status"); raw != "" {
		st, ok := matching.ParseStatus(raw)
		if !ok {
			writeError(c, apperr.Invalid("unknown match status"))
			return
		}
		status = st
	}
	recs, err := s.Engine.ListForUser(c.Request.Context(), auth.UserID(c), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": recs})
}

func (s *Server) updateMatch(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	to, ok := matching.ParseStatus(req.Status)
	if !ok {
		writeError(c, apperr.Invalid("unknown match status"))
		return
	}
	rec, err := s.Engine.Transition(c.Request.Context(), c.Param("id"), auth.UserID(c), to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) scoreWith(c *gin.Context) {
	cand, err := s.Engine.Explain(c.Request.Context(), auth.UserID(c), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cand)
}
