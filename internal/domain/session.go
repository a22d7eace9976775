package domain

import "time"

// FlowState of an interactive consent session
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowCollecting FlowState = "collecting"
	FlowFinishing  FlowState = "finishing"
)

// FlowKind distinguishes a suspended login from a plain page visit.
type FlowKind string

const (
	FlowLogin FlowKind = "login"
	FlowVisit FlowKind = "visit"
)

// LoginPayload is the suspended external login needed to resume it.
type LoginPayload struct {
	Ticket            string            `json:"ticket"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	ServiceParameters map[string]string `json:"service_parameters,omitempty"`
}

// Email returns the email attribute of the external identity, if any.
func (p *LoginPayload) Email() string {
	if p == nil {
		return ""
	}
	return p.Attributes["email"]
}

// CollectedDecision is an acceptance gathered during the session.
type CollectedDecision struct {
	AgreementID int64 `json:"agreement_id"`
	RevisionID  int64 `json:"revision_id"`
}

// PendingSession is the state bridging the request cycles of one consent flow.
type PendingSession struct {
	ID          string              `json:"id"`
	Kind        FlowKind            `json:"kind"`
	State       FlowState           `json:"state"`
	UserID      string              `json:"user_id"`
	EmailHash   string              `json:"email_hash,omitempty"`
	Payload     *LoginPayload       `json:"payload,omitempty"`
	Destination string              `json:"destination,omitempty"`
	Accepted    []CollectedDecision `json:"accepted,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Collect records an acceptance, replacing an earlier one for the same agreement.
func (s *PendingSession) Collect(agreementID, revisionID int64) {
	for i := range s.Accepted {
		if s.Accepted[i].AgreementID == agreementID {
			s.Accepted[i].RevisionID = revisionID
			return
		}
	}
	s.Accepted = append(s.Accepted, CollectedDecision{AgreementID: agreementID, RevisionID: revisionID})
}
