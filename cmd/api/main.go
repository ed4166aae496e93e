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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tripmate/companion/internal/api"
	"github.com/tripmate/companion/internal/auth"
	"github.com/tripmate/companion/internal/ban"
	"github.com/tripmate/companion/internal/config"
	"github.com/tripmate/companion/internal/database"
	"github.com/tripmate/companion/internal/matching"
	"github.com/tripmate/companion/internal/message"
	"github.com/tripmate/companion/internal/messaging"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/moderation"
	"github.com/tripmate/companion/internal/notification"
	"github.com/tripmate/companion/internal/ratelimit"
	"github.com/tripmate/companion/internal/report"
	"github.com/tripmate/companion/internal/session"
	"github.com/tripmate/companion/internal/trip"
	"github.com/tripmate/companion/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// --- MongoDB ---
	mdb, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	err = mdb.EnsureIndexes(ctx, map[string][]mongo.IndexModel{
		user.CollectionName:         user.Indexes(),
		matching.CollectionName:     matching.Indexes(),
		notification.CollectionName: notification.Indexes(),
		message.CollectionName:      message.Indexes(),
		trip.CollectionName:         trip.Indexes(),
		trip.ReviewsCollectionName:  trip.ReviewIndexes(),
	})
	if err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	// --- Postgres (abuse reports) ---
	pg, err := report.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := report.Migrate(pg); err != nil {
		log.Fatalf("failed to migrate Postgres: %v", err)
	}

	// --- NATS (push fan-out) ---
	// Pushes are best effort, so the API runs without NATS.
	var publisher messaging.Publisher = messaging.NopPublisher{}
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "tripmate-api"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Printf("[api] NATS unavailable, push disabled: %v", err)
	} else {
		publisher = natsClient
	}

	users := user.NewStore(mdb.DB)
	sessions := session.NewStore(rdb)
	bans := ban.NewStore(rdb)
	filter := moderation.NewFilter()

	notifications := notification.NewService(notification.NewMongoStore(mdb.DB), publisher)
	messages := message.NewService(message.NewMongoStore(mdb.DB), users, filter, notifications, publisher)

	router := api.NewRouter(api.Deps{
		Auth:          auth.NewService(users, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), sessions, bans),
		Users:         users,
		Presence:      sessions,
		Limiter:       ratelimit.NewLimiter(rdb),
		Filter:        filter,
		Engine:        matching.NewEngine(users, matching.NewStore(mdb.DB), matching.WithWorkers(cfg.RankWorkers)),
		Trips:         trip.NewService(trip.NewMongoStore(mdb.DB), users, filter, notifications),
		Messages:      messages,
		Notifications: notifications,
		Reports:       report.NewService(report.NewStore(pg), messages, users, bans, sessions),
		CORSOrigins:   cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[api] listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server: %v", err)
		}
	}()
	go func() {
		log.Printf("[metrics] listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[metrics] server: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	if natsClient != nil {
		natsClient.Close()
	}
	_ = pg.Close()
	_ = rdb.Close()
	if err := mdb.Close(); err != nil {
		log.Printf("[mongo] %v", err)
	}
}
