package report

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/message"
	"github.com/tripmate/companion/internal/metrics"
	"github.com/tripmate/companion/internal/user"
)

const (
	// SnapshotSize is the number of recent messages attached to a report.
	SnapshotSize = 5

	MaxDetailsChars = 1000

	// A report is flagged for priority review when the user already has
	// BurstThreshold-1 reports within BurstWindow.
	BurstThreshold = 5
	BurstWindow    = time.Hour
)

// Recorder persists reports.
type Recorder interface {
	Create(ctx context.Context, r *Report) error
	CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error)
}

// MessageHistory provides the conversation snapshot.
type MessageHistory interface {
	Recent(ctx context.Context, a, b string, n int64) ([]message.Message, error)
}

// Users checks that the reported account exists.
type Users interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Suspender counts reporters and suspends repeat offenders.
type Suspender interface {
	ReportAndCheck(ctx context.Context, userID, reporterID string) (bool, time.Duration, error)
}

// SessionRevoker logs a suspended user out everywhere.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

// Result is returned to the reporter.
type Result struct {
	ReportID string `json:"reportId"`
}

// Service files reports.
type Service struct {
	store     Recorder
	history   MessageHistory
	users     Users
	suspender Suspender
	sessions  SessionRevoker
}

func NewService(store Recorder, history MessageHistory, users Users, suspender Suspender, sessions SessionRevoker) *Service {
	return &Service{
		store:     store,
		history:   history,
		users:     users,
		suspender: suspender,
		sessions:  sessions,
	}
}

// File stores a report from reporterID against reportedID and applies the
// automatic suspension rule. Failures after the report is stored are logged;
// the report itself is what the reporter is told about.
func (s *Service) File(ctx context.Context, reporterID, reportedID, reason, details string) (*Result, error) {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if !ValidReason(reason) {
		return nil, apperr.Invalid("Reason must be one of harassment, spam, scam, inappropriate, other")
	}
	if reporterID == reportedID {
		return nil, apperr.Invalid("You cannot report yourself")
	}
	details = strings.TrimSpace(details)
	if len([]rune(details)) > MaxDetailsChars {
		return nil, apperr.Invalid("Details are too long")
	}
	if _, err := s.users.GetByID(ctx, reportedID); err != nil {
		return nil, err
	}

	r := &Report{
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		Details:    details,
	}
	if recent, err := s.history.Recent(ctx, reporterID, reportedID, SnapshotSize); err != nil {
		log.Printf("[report] snapshot %s/%s: %v", reporterID, reportedID, err)
	} else {
		for _, m := range recent {
			r.Messages = append(r.Messages, MessageEntry{From: m.SenderID, Text: m.Content, At: m.CreatedAt})
		}
	}

	if recent, err := s.store.CountRecent(ctx, reportedID, BurstWindow); err != nil {
		log.Printf("[report] count recent %s: %v", reportedID, err)
	} else if recent+1 >= BurstThreshold {
		r.Flagged = true
		metrics.ReportsFlagged.Inc()
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("report: file: %w", err)
	}
	log.Printf("[report] report=%s reporter=%s reported=%s reason=%s flagged=%v", r.ID, reporterID, reportedID, reason, r.Flagged)

	suspended, duration, err := s.suspender.ReportAndCheck(ctx, reportedID, reporterID)
	if err != nil {
		log.Printf("[report] suspension check %s: %v", reportedID, err)
	}
	if suspended {
		log.Printf("[report] suspended user=%s for %s", reportedID, duration)
		if err := s.sessions.RevokeAll(ctx, reportedID); err != nil {
			log.Printf("[report] revoke sessions %s: %v", reportedID, err)
		}
	}
	return &Result{ReportID: r.ID}, nil
}
