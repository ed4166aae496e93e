package ws

import (
	"context"
	"log"
	"time"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // how long a silent connection survives (default: 90s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  90 * time.Second,
	}
}

// startHeartbeat pings every connection each Interval, drops connections
// that have been silent for longer than Timeout and refreshes the presence
// TTL of every connected user. It exits when the server's done channel is
// closed.
func (s *Server) startHeartbeat() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Heartbeat.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.checkConnections(time.Now())
			}
		}
	}()
}

func (s *Server) checkConnections(now time.Time) {
	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastSeen()); idle > s.config.Heartbeat.Timeout {
			log.Printf("[ws] heartbeat timeout conn=%s user=%s idle=%s", c.ID, c.UserID, idle.Round(time.Second))
			s.removeConnection(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			log.Printf("[ws] heartbeat ping failed conn=%s: %v", c.ID, err)
			s.removeConnection(c)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, userID := range s.conns.Users() {
		if err := s.presence.MarkOnline(ctx, userID); err != nil {
			log.Printf("[ws] presence refresh user=%s: %v", userID, err)
		}
	}
}
