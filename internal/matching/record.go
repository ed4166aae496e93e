package matching

import (
	"time"
)

// Status is the lifecycle state of a persisted match record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// transitions lists the allowed status changes.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusCompleted},
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted:
		return st, true
	}
	return "", false
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MatchCandidate is one ranked result. It is computed per request and never
// stored.
type MatchCandidate struct {
	TargetID string   `json:"userId"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
}

// MatchRecord is a persisted pairing between two users. UserID1 is the
// initiator. PairKey is the same for both orderings of the pair and carries
// the storage uniqueness constraint.
type MatchRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UserID1   string    `bson:"user_id1" json:"userId1"`
	UserID2   string    `bson:"user_id2" json:"userId2"`
	TripID    string    `bson:"trip_id,omitempty" json:"tripId,omitempty"`
	Status    Status    `bson:"status" json:"status"`
	Score     int       `bson:"match_score" json:"matchScore"`
	Reason    string    `bson:"reason,omitempty" json:"reason,omitempty"`
	PairKey   string    `bson:"pair_key" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Involves reports whether userID is one of the two participants.
func (r *MatchRecord) Involves(userID string) bool {
	return r.UserID1 == userID || r.UserID2 == userID
}

// Partner returns the other participant from userID's point of view.
func (r *MatchRecord) Partner(userID string) string {
	if r.UserID1 == userID {
		return r.UserID2
	}
	return r.UserID1
}

// PairKey returns the canonical key for an unordered pair of user IDs.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
