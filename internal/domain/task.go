package domain

import "time"

// ExpiryTask is queued when a user rejects an agreement revision.
type ExpiryTask struct {
	AgreementID int64     `json:"agreement_id"`
	RevisionID  int64     `json:"revision_id"`
	UserID      string    `json:"user_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Queue names
const QueueExpiry = "user_agreement_queue"
