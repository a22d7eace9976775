package domain

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Decision is a user's answer to one agreement revision.
type Decision int

// Stored values match the legacy submission status column.
const (
	DecisionAccepted Decision = 1
	DecisionRejected Decision = 2
)

func (d Decision) String() string {
	switch d {
	case DecisionAccepted:
		return "accepted"
	case DecisionRejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// ParseDecision accepts "accepted"/"accept" and "rejected"/"reject".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "accept":
		return DecisionAccepted, nil
	case "rejected", "reject":
		return DecisionRejected, nil
	}
	return 0, fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, s)
}

// Submission represents a user's decision against one agreement revision
type Submission struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	AgreementID int64     `db:"agreement_id" json:"agreement_id"`
	RevisionID  int64     `db:"revision_id" json:"revision_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Decision    Decision  `db:"decision" json:"decision"`
	EmailHash   *string   `db:"email_hash" json:"email_hash,omitempty"` // Pointer for NULL
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RecordDecisionParams for inserting a submission
type RecordDecisionParams struct {
	AgreementID int64
	RevisionID  int64
	UserID      string
	Decision    Decision
	EmailHash   *string // Optional
}

// SubmissionName is the display name stored with each submission.
func SubmissionName(userID string, agreementID, revisionID int64) string {
	return fmt.Sprintf("Agreement | User %s - %d (R. %d)", userID, agreementID, revisionID)
}

// HashEmail returns the base64 encoded SHA-256 of a lower-cased email.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
