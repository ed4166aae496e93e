package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/trip"
)

func (s *Server) listTrips(c *gin.Context) {
	limit, ok := queryLimit(c, trip.DefaultListLimit, trip.DefaultListLimit)
	if !ok {
		return
	}
	trips, err := s.Trips.List(c.Request.Context(), trip.ListFilter{
		Destination: c.Query("destination"),
		OwnerID:     c.Query("owner"),
		Limit:       int64(limit),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}

func (s *Server) createTrip(c *gin.Context) {
	var req trip.CreateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := s.Trips.Create(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) getTrip(c *gin.Context) {
	t, err := s.Trips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) joinTrip(c *gin.Context) {
	t, err := s.Trips.RequestJoin(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Trip request sent successfully", "trip": t})
}

func (s *Server) listReviews(c *gin.Context) {
	reviews, err := s.Trips.ListReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func (s *Server) createReview(c *gin.Context) {
	var req trip.ReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := s.Trips.Review(c.Request.Context(), c.Param("id"), auth.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}
