package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/ban"
	"github.com/tripmate/companion/internal/config"
	"github.com/tripmate/companion/internal/database"
	"github.com/tripmate/companion/internal/messaging"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/protocol"
	"github.com/tripmate/companion/internal/session"
	"github.com/tripmate/companion/internal/user"
	"github.com/tripmate/companion/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "tripmate-ws"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	sessions := session.NewStore(rdb)

	// --- MongoDB (mark_read) ---
	mdb, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	notifications := notification.NewService(notification.NewMongoStore(mdb.DB), natsClient)
	authn := auth.NewService(user.NewStore(mdb.DB), auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), sessions, ban.NewStore(rdb))

	wsConfig := ws.DefaultServerConfig()
	wsConfig.ListenAddr = cfg.WSAddr
	wsConfig.MaxConnections = cfg.WSMaxConnections

	log.Printf("TripMate push gateway starting")
	log.Printf("  listen_addr:     %s", wsConfig.ListenAddr)
	log.Printf("  max_connections: %d", wsConfig.MaxConnections)
	log.Printf("  write_timeout:   %s", wsConfig.WriteTimeout)
	log.Printf("  heartbeat:       %s/%s", wsConfig.Heartbeat.Interval, wsConfig.Heartbeat.Timeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)

	server := ws.NewServer(wsConfig, authn, sessions, natsClient)
	server.Dispatcher().Register(protocol.TypeTyping, ws.TypingHandler(natsClient))
	server.Dispatcher().Register(protocol.TypeMarkRead, ws.MarkReadHandler(notifications))
	server.OnPresenceChange(func(userID string, online bool) {
		if err := natsClient.PublishPresence(userID, online); err != nil {
			log.Printf("[presence] publish %s: %v", userID, err)
		}
	})

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[metrics] listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ws] shutdown: %v", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	natsClient.Close()
	_ = rdb.Close()
	if err := mdb.Close(); err != nil {
		log.Printf("[mongo] %v", err)
	}
	log.Printf("server stopped")
}
