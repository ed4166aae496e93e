package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestStore creates a Store connected to a test Redis instance.
// Requires Redis running on localhost:6379. Tests are skipped if unavailable.
func setupTestStore(t *testing.T) (*Store, *redis.Client, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	rdb.FlushDB(ctx)

	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewStore(rdb), rdb, ctx
}

// ---------- Token registry tests ----------

func TestRegisterAndActive(t *testing.T) {
	s, rdb, ctx := setupTestStore(t)

	if err := s.Register(ctx, "jti-1", "user-1", time.Hour); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ok, err := s.Active(ctx, "jti-1", "user-1")
	if err != nil || !ok {
		t.Fatalf("Active = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = s.Active(ctx, "jti-1", "someone-else")
	if err != nil || ok {
		t.Errorf("Active for wrong user = (%v, %v), want (false, nil)", ok, err)
	}

	ttl := rdb.TTL(ctx, SessionPrefix+"jti-1").Val()
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, want (0, 1h]", ttl)
	}
}

func TestRevoke(t *testing.T) {
	s, _, ctx := setupTestStore(t)

	s.Register(ctx, "jti-1", "user-1", time.Hour)
	s.Register(ctx, "jti-2", "user-1", time.Hour)

	if err := s.Revoke(ctx, "jti-1", "user-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if ok, _ := s.Active(ctx, "jti-1", "user-1"); ok {
		t.Error("jti-1 still active after Revoke")
	}
	if ok, _ := s.Active(ctx, "jti-2", "user-1"); !ok {
		t.Error("jti-2 revoked unexpectedly")
	}

	if err := s.RevokeAll(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if ok, _ := s.Active(ctx, "jti-2", "user-1"); ok {
		t.Error("jti-2 still active after RevokeAll")
	}
}

func TestActive_Unknown(t *testing.T) {
	s, _, ctx := setupTestStore(t)

	ok, err := s.Active(ctx, "never-issued", "user-1")
	if err != nil || ok {
		t.Errorf("Active = (%v, %v), want (false, nil)", ok, err)
	}
}

// ---------- Presence tests ----------

func TestPresence(t *testing.T) {
	s, _, ctx := setupTestStore(t)

	if err := s.MarkOnline(ctx, "user-1"); err != nil {
		t.Fatalf("MarkOnline: %v", err)
	}
	online, err := s.IsOnline(ctx, "user-1")
	if err != nil || !online {
		t.Fatalf("IsOnline = (%v, %v), want (true, nil)", online, err)
	}

	set, err := s.OnlineAmong(ctx, []string{"user-1", "user-2"})
	if err != nil {
		t.Fatalf("OnlineAmong: %v", err)
	}
	if !set["user-1"] || set["user-2"] {
		t.Errorf("OnlineAmong = %v, want only user-1", set)
	}

	if err := s.MarkOffline(ctx, "user-1"); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	if online, _ := s.IsOnline(ctx, "user-1"); online {
		t.Error("user-1 still online after MarkOffline")
	}
}
