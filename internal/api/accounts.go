package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/user"
)

const (
	defaultUserListLimit = 50
	maxUserListLimit     = 100
)

// userView is the public profile plus presence.
type userView struct {
	user.Public
	Online bool `json:"online"`
}

func (s *Server) signup(c *gin.Context) {
	var req auth.SignupRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Auth.Signup(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) logout(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if err := s.Auth.Logout(c.Request.Context(), claims); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) getProfile(c *gin.Context) {
	u, err := s.Users.GetByID(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// updateProfile moderates free text before storing: a blocked bio is
// rejected, blocked destinations are dropped.
func (s *Server) updateProfile(c *gin.Context) {
	var upd user.ProfileUpdate
	if !bindJSON(c, &upd) {
		return
	}
	if upd.Bio != nil {
		if res := s.Filter.CheckTerms(*upd.Bio); res.Blocked {
			writeError(c, apperr.Invalid(res.Detail))
			return
		}
	}
	if upd.Destinations != nil {
		kept := s.Filter.CheckList(*upd.Destinations)
		upd.Destinations = &kept
	}

	u, err := s.Users.UpdateProfile(c.Request.Context(), auth.UserID(c), upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": u})
}

func (s *Server) listUsers(c *gin.Context) {
	limit, ok := queryLimit(c, defaultUserListLimit, maxUserListLimit)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	users, err := s.Users.List(ctx, auth.UserID(c), int64(limit))
	if err != nil {
		writeError(c, err)
		return
	}

	ids := make([]string, len(users))
	for i := range users {
		ids[i] = users[i].ID
	}
	online := s.onlineAmong(c, ids)

	views := make([]userView, len(users))
	for i := range users {
		views[i] = userView{Public: users[i].Public(), Online: online[users[i].ID]}
	}
	c.JSON(http.StatusOK, gin.H{"users": views})
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.Users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	view := userView{Public: u.Public()}
	if s.Presence != nil {
		online, err := s.Presence.IsOnline(c.Request.Context(), u.ID)
		if err != nil {
			log.Printf("[api] presence lookup %s: %v", u.ID, err)
		}
		view.Online = online
	}
	c.JSON(http.StatusOK, view)
}

// onlineAmong never fails the request; presence is decoration.
func (s *Server) onlineAmong(c *gin.Context, ids []string) map[string]bool {
	if s.Presence == nil || len(ids) == 0 {
		return nil
	}
	online, err := s.Presence.OnlineAmong(c.Request.Context(), ids)
	if err != nil {
		log.Printf("[api] presence lookup: %v", err)
		return nil
	}
	return online
}

func (s *Server) reportUser(c *gin.Context) {
	var req struct {
		Reason  string `json:"reason"`
		Details string `json:"details"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := s.Reports.File(c.Request.Context(), auth.UserID(c), c.Param("id"), req.Reason, req.Details)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Report submitted", "reportId": res.ReportID})
}
