package handler

import (
	"time"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/service"
)

type revisionResponse struct {
	ID           int64                     `json:"id"`
	AgreementID  int64                     `json:"agreement_id"`
	Langcode     string                    `json:"langcode"`
	Translations map[string]domain.Content `json:"translations"`
	OwnerID      string                    `json:"owner_id,omitempty"`
	Published    bool                      `json:"published"`
	IsDefault    bool                      `json:"is_default"`
	Log          string                    `json:"log,omitempty"`
	AuthoredBy   string                    `json:"authored_by,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
}

func toRevision(r *domain.Revision) *revisionResponse {
	if r == nil {
		return nil
	}
	return &revisionResponse{
		ID:           r.ID,
		AgreementID:  r.AgreementID,
		Langcode:     r.Langcode,
		Translations: r.Translations,
		OwnerID:      r.OwnerID,
		Published:    r.Published,
		IsDefault:    r.IsDefault,
		Log:          r.Log,
		AuthoredBy:   r.AuthoredBy,
		CreatedAt:    r.CreatedAt,
	}
}

type revisionSummaryResponse struct {
	Revision        *revisionResponse    `json:"revision"`
	State           domain.RevisionState `json:"state"`
	SubmissionCount int                  `json:"submission_count"`
	Operations      []string             `json:"operations"`
}

func toSummaries(in []domain.RevisionSummary) []revisionSummaryResponse {
	out := make([]revisionSummaryResponse, 0, len(in))
	for _, s := range in {
		out = append(out, revisionSummaryResponse{
			Revision:        toRevision(s.Revision),
			State:           s.State,
			SubmissionCount: s.SubmissionCount,
			Operations:      s.Operations,
		})
	}
	return out
}

type stepResponse struct {
	SessionID   string            `json:"session_id"`
	State       domain.FlowState  `json:"state"`
	Agreement   *domain.Agreement `json:"agreement,omitempty"`
	Revision    *revisionResponse `json:"revision,omitempty"`
	Remaining   int               `json:"remaining"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Completed   bool              `json:"completed"`
	Cancelled   bool              `json:"cancelled"`
}

func toStep(s *service.StepResult) stepResponse {
	return stepResponse{
		SessionID:   s.SessionID,
		State:       s.State,
		Agreement:   s.Agreement,
		Revision:    toRevision(s.Revision),
		Remaining:   s.Remaining,
		RedirectURL: s.RedirectURL,
		Completed:   s.Completed,
		Cancelled:   s.Cancelled,
	}
}

type submissionResponse struct {
	*domain.Submission
	Decision string `json:"decision"`
}

func toSubmissions(in []*domain.Submission) []submissionResponse {
	out := make([]submissionResponse, 0, len(in))
	for _, s := range in {
		out = append(out, submissionResponse{Submission: s, Decision: s.Decision.String()})
	}
	return out
}
