// Package report files abuse reports against travellers. Reports are kept in
// PostgreSQL together with a snapshot of the last few direct messages between
// the two users, for moderator review; the ban package decides whether the
// reported account gets suspended.
package report

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Reason values, matching the CHECK constraint on user_reports.
const (
	ReasonHarassment    = "harassment"
	ReasonSpam          = "spam"
	ReasonScam          = "scam"
	ReasonInappropriate = "inappropriate"
	ReasonOther         = "other"
)

var validReasons = map[string]bool{
	ReasonHarassment:    true,
	ReasonSpam:          true,
	ReasonScam:          true,
	ReasonInappropriate: true,
	ReasonOther:         true,
}

// ValidReason reports whether reason is accepted.
func ValidReason(reason string) bool {
	return validReasons[reason]
}

// Report is a single abuse report.
type Report struct {
	ID         string         `json:"id"`
	ReporterID string         `json:"reporterId"`
	ReportedID string         `json:"reportedId"`
	Reason     string         `json:"reason"`
	Details    string         `json:"details,omitempty"`
	Messages   []MessageEntry `json:"messages,omitempty"`
	Flagged    bool           `json:"flagged"` // part of a burst against the same user
	CreatedAt  time.Time      `json:"createdAt"`
}

// MessageEntry is one message in the conversation snapshot attached to a
// report.
type MessageEntry struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("report: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("report: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("report: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("report: migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Printf("[report] schema at version %d (dirty=%v)", version, dirty)
	return nil
}

// Store manages abuse reports in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new report store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a report, assigning its ID and creation time. Messages are
// stored as JSONB.
func (s *Store) Create(ctx context.Context, r *Report) error {
	if !validReasons[r.Reason] {
		return fmt.Errorf("report: invalid reason %q", r.Reason)
	}

	var messagesJSON []byte
	if len(r.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(r.Messages)
		if err != nil {
			return fmt.Errorf("report: marshal messages: %w", err)
		}
	}

	r.ID = uuid.NewString()

	const query = `
		INSERT INTO user_reports (id, reporter_id, reported_id, reason, details, messages, flagged)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		r.ID,
		r.ReporterID,
		r.ReportedID,
		r.Reason,
		r.Details,
		messagesJSON,
		r.Flagged,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("report: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of reports filed against a user within the
// given window.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM user_reports
		WHERE reported_id = $1
		  AND created_at >= NOW() - make_interval(secs => $2)`

	var count int
	err := s.db.QueryRowContext(ctx, query, reportedID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
