// Package ws is the push gateway: it holds authenticated WebSocket
// connections, one goroutine per connection, and forwards per-user frames
// received over NATS to every open tab of that user.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/protocol"
)

// Authenticator verifies the token presented on upgrade.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// Presence records which users have a live connection.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
}

// Subscriber attaches a user's push subjects to a delivery callback.
type Subscriber interface {
	SubscribeUser(userID string, handler func(data []byte)) error
	UnsubscribeUser(userID string) error
}

// ServerConfig holds tunable parameters for the gateway.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8081"
	MaxConnections int           // hard cap on total connections
	MaxFrameBytes  int64         // largest client message accepted
	WriteTimeout   time.Duration // deadline for each outgoing frame
	HandlerTimeout time.Duration // deadline for each dispatched client frame
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8081",
		MaxConnections: 10000,
		MaxFrameBytes:  16 << 10,
		WriteTimeout:   10 * time.Second,
		HandlerTimeout: 5 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server upgrades authenticated HTTP requests to WebSocket and keeps the
// user's NATS subscription alive while at least one of their connections is
// open.
type Server struct {
	config     ServerConfig
	conns      *ConnectionManager
	auth       Authenticator
	presence   Presence
	subs       Subscriber
	dispatcher *MessageDispatcher
	onPresence func(userID string, online bool)

	// subMu serialises a user's first-connect subscribe against their
	// last-disconnect unsubscribe.
	subMu sync.Mutex

	// slots counts reserved and registered connections against
	// MaxConnections. A slot is taken before the upgrade and released when
	// the upgrade fails or the connection is removed.
	slots atomic.Int64

	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
	startedAt  time.Time
}

// NewServer creates a gateway. Register client handlers on Dispatcher before
// calling Start.
func NewServer(config ServerConfig, authn Authenticator, presence Presence, subs Subscriber) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		auth:       authn,
		presence:   presence,
		subs:       subs,
		dispatcher: NewMessageDispatcher(config.HandlerTimeout),
		done:       make(chan struct{}),
		startedAt:  time.Now(),
	}
}

// Dispatcher returns the client frame router.
func (s *Server) Dispatcher() *MessageDispatcher {
	return s.dispatcher
}

// OnPresenceChange registers fn to run when a user's first connection opens
// or last connection closes. Call it before Start.
func (s *Server) OnPresenceChange(fn func(userID string, online bool)) {
	s.onPresence = fn
}

// Connections returns the live connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Handler returns the gateway's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins the heartbeat and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.startHeartbeat()

	log.Printf("[ws] listening on %s (max_conns=%d)", s.config.ListenAddr, s.config.MaxConnections)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server: %w", err)
	}
	return nil
}

// reserveSlot claims one of MaxConnections slots, failing when none is free.
func (s *Server) reserveSlot() bool {
	limit := int64(s.config.MaxConnections)
	for {
		n := s.slots.Load()
		if n >= limit {
			return false
		}
		if s.slots.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Server) releaseSlot() {
	s.slots.Add(-1)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.reserveSlot() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	registered := false
	defer func() {
		if !registered {
			s.releaseSlot()
		}
	}()

	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[ws] upgrade user=%s: %v", claims.UserID, err)
		return
	}

	c := newConnection(uuid.NewString(), claims.UserID, netConn, s.config.WriteTimeout)
	if err := s.register(c); err != nil {
		log.Printf("[ws] register conn=%s user=%s: %v", c.ID, c.UserID, err)
		_ = c.Close()
		return
	}
	registered = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(c)
	}()
}

// register adds c and, for the user's first connection, subscribes their
// push subjects and marks them online.
func (s *Server) register(c *Connection) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if first := s.conns.Add(c); first {
		userID := c.UserID
		err := s.subs.SubscribeUser(userID, func(data []byte) {
			s.conns.SendToUser(userID, data)
		})
		if err != nil {
			s.conns.Remove(c.ID)
			return fmt.Errorf("ws: subscribe: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.presence.MarkOnline(ctx, userID); err != nil {
			log.Printf("[ws] mark online user=%s: %v", userID, err)
		}
		cancel()
		if s.onPresence != nil {
			s.onPresence(userID, true)
		}
	}

	metrics.WSConnections.Inc()
	log.Printf("[ws] connected conn=%s user=%s (total=%d)", c.ID, c.UserID, s.conns.Count())
	return nil
}

// removeConnection closes c and, when it was the user's last connection,
// drops their subscription and presence. Safe to call more than once.
func (s *Server) removeConnection(c *Connection) {
	s.subMu.Lock()
	_, last, ok := s.conns.Remove(c.ID)
	if ok && last {
		if err := s.subs.UnsubscribeUser(c.UserID); err != nil {
			log.Printf("[ws] unsubscribe user=%s: %v", c.UserID, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.presence.MarkOffline(ctx, c.UserID); err != nil {
			log.Printf("[ws] mark offline user=%s: %v", c.UserID, err)
		}
		cancel()
		if s.onPresence != nil {
			s.onPresence(c.UserID, false)
		}
	}
	s.subMu.Unlock()

	_ = c.Close()
	if !ok {
		return
	}
	s.releaseSlot()
	metrics.WSConnections.Dec()
	log.Printf("[ws] closed conn=%s user=%s (total=%d)", c.ID, c.UserID, s.conns.Count())
}

// readLoop reads client frames until the connection fails or closes.
// Control frames are answered in place; text messages go to the dispatcher.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	controlHandler := wsutil.ControlFrameHandler(c, ws.StateServerSide)
	rd := &wsutil.Reader{
		Source:         c.Conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: controlHandler,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		c.Touch()

		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, rd); err != nil {
				return
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(rd, s.config.MaxFrameBytes+1))
		if err != nil {
			return
		}
		if int64(len(data)) > s.config.MaxFrameBytes {
			sendError(c, protocol.CodeInvalidPayload, "message too large")
			return
		}
		if len(data) == 0 {
			continue
		}
		s.dispatcher.Dispatch(c, data)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their read loops to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			err = fmt.Errorf("ws: http shutdown: %w", err)
		}
	}
	for _, c := range s.conns.All() {
		s.removeConnection(c)
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("[ws] server stopped")
	return err
}
