// Package api is the HTTP surface of the platform. Handlers decode requests,
// call the domain services and map their errors to status codes through
// apperr.
package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/matching"
	"github.com/tripmate/companion/internal/message"
	"github.com/tripmate/companion/internal/moderation"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/ratelimit"
	"github.com/tripmate/companion/internal/report"
	"github.com/tripmate/companion/internal/trip"
	"github.com/tripmate/companion/internal/user"
)

// UserStore is the account storage the handlers read and update.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	UpdateProfile(ctx context.Context, id string, upd user.ProfileUpdate) (*user.User, error)
	List(ctx context.Context, excludeID string, limit int64) ([]user.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]user.User, error)
}

// Presence reports which users hold a live push connection.
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
	OnlineAmong(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// RateLimiter is the fixed-window limiter behind the abuse-prone routes.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Deps holds the services the router dispatches to. Presence and Limiter may
// be nil.
type Deps struct {
	Auth          *auth.Service
	Users         UserStore
	Presence      Presence
	Limiter       RateLimiter
	Filter        *moderation.Filter
	Engine        *matching.Engine
	Trips         *trip.Service
	Messages      *message.Service
	Notifications *notification.Service
	Reports       *report.Service
	CORSOrigins   []string
}

// Server carries the handler dependencies.
type Server struct {
	Deps
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(d Deps) *gin.Engine {
	s := &Server{Deps: d}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metricsMiddleware())
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/api/health", s.health)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Endpoint not found"})
	})

	public := r.Group("/api/auth")
	public.POST("/signup", s.rateLimit(ratelimit.RuleSignup, byIP), s.signup)
	public.POST("/login", s.rateLimit(ratelimit.RuleLogin, byIP), s.login)

	api := r.Group("/api", auth.Middleware(d.Auth))
	api.POST("/auth/logout", s.logout)

	api.GET("/profile", s.getProfile)
	api.PUT("/profile", s.updateProfile)

	api.GET("/users", s.listUsers)
	api.GET("/users/:id", s.getUser)
	api.POST("/users/:id/report", s.rateLimit(ratelimit.RuleReport, byUser), s.reportUser)

	api.GET("/trips", s.listTrips)
	api.POST("/trips", s.createTrip)
	api.GET("/trips/:id", s.getTrip)
	api.POST("/trips/:id/join", s.joinTrip)
	api.GET("/trips/:id/reviews", s.listReviews)
	api.POST("/trips/:id/reviews", s.createReview)

	api.GET("/matches", s.rankMatches)
	api.POST("/matches", s.rateLimit(ratelimit.RuleMatchCreate, byUser), s.createMatch)
	api.GET("/matches/records", s.listMatchRecords)
	api.PATCH("/matches/:id", s.updateMatch)
	api.GET("/matches/score/:userId", s.scoreWith)

	api.GET("/messages", s.getThread)
	api.POST("/messages", s.rateLimit(ratelimit.RuleMessage, byUser), s.sendMessage)
	api.GET("/messages/conversations", s.conversations)

	api.GET("/notifications", s.listNotifications)
	api.POST("/notifications", s.rateLimit(ratelimit.RuleNotification, byUser), s.createNotification)
	api.PATCH("/notifications/:id/read", s.markNotificationRead)
	api.POST("/notifications/read-all", s.markAllNotificationsRead)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok", "time": time.Now().UTC()})
}
