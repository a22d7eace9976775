package domain

import "time"

// Content holds the translatable fields of an agreement revision.
type Content struct {
	Title             string `json:"title" yaml:"title"`
	Body              string `json:"body" yaml:"body"`
	SupplementaryInfo string `json:"supplementary_info,omitempty" yaml:"supplementary_info"`
}

// Revision is an immutable snapshot of an agreement. Translations are keyed by
// langcode and always contain an entry for Langcode.
type Revision struct {
	ID           int64              `db:"vid"`
	AgreementID  int64              `db:"agreement_id"`
	Langcode     string             `db:"langcode"`
	Translations map[string]Content `db:"translations"`
	OwnerID      string             `db:"owner_id"`
	Published    bool               `db:"published"`
	IsDefault    bool               `db:"is_default"`
	Log          string             `db:"revision_log"`
	AuthoredBy   string             `db:"revision_user"`
	CreatedAt    time.Time          `db:"revision_created"`
}

// Content returns the revision content in its default language.
func (r *Revision) Content() Content {
	return r.Translations[r.Langcode]
}

// Clone returns a deep copy safe to mutate.
func (r *Revision) Clone() *Revision {
	c := *r
	c.Translations = make(map[string]Content, len(r.Translations))
	for lang, content := range r.Translations {
		c.Translations[lang] = content
	}
	return &c
}

// Agreement is the current view of an agreement: identity plus the content of
// its default revision.
type Agreement struct {
	ID                int64     `db:"id" json:"id"`
	DefaultRevisionID int64     `db:"default_vid" json:"revision_id"`
	Langcode          string    `db:"langcode" json:"langcode"`
	Title             string    `db:"title" json:"title"`
	Body              string    `db:"body" json:"body"`
	SupplementaryInfo string    `db:"supplementary_info" json:"supplementary_info,omitempty"`
	Published         bool      `db:"published" json:"published"`
	OwnerID           string    `db:"owner_id" json:"owner_id"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	ChangedAt         time.Time `db:"changed_at" json:"changed_at"`
}

// AgreementFromRevision builds the agreement view from its default revision.
func AgreementFromRevision(rev *Revision, createdAt time.Time) *Agreement {
	content := rev.Content()
	return &Agreement{
		ID:                rev.AgreementID,
		DefaultRevisionID: rev.ID,
		Langcode:          rev.Langcode,
		Title:             content.Title,
		Body:              content.Body,
		SupplementaryInfo: content.SupplementaryInfo,
		Published:         rev.Published,
		OwnerID:           rev.OwnerID,
		CreatedAt:         createdAt,
		ChangedAt:         rev.CreatedAt,
	}
}

// CreateRevisionParams for inserting a new revision
type CreateRevisionParams struct {
	Langcode     string
	Translations map[string]Content
	OwnerID      string
	Published    bool
	Log          string
	AuthoredBy   string
	CreatedAt    time.Time
}

// ParamsFromRevision copies the field values of rev into insert params.
func ParamsFromRevision(rev *Revision) CreateRevisionParams {
	c := rev.Clone()
	return CreateRevisionParams{
		Langcode:     c.Langcode,
		Translations: c.Translations,
		OwnerID:      c.OwnerID,
		Published:    c.Published,
	}
}

// RevisionState is the lifecycle state of one revision.
type RevisionState string

const (
	RevisionDraft   RevisionState = "draft"
	RevisionDefault RevisionState = "default"
	RevisionDeleted RevisionState = "deleted"
)

// Revision operations offered in the history overview
const (
	OperationPublish   = "publish"
	OperationRevert    = "revert"
	OperationSetActive = "set_active"
	OperationEdit      = "edit"
	OperationDelete    = "delete"
)

// RevisionSummary is one row of an agreement's revision history.
type RevisionSummary struct {
	Revision        *Revision
	State           RevisionState
	SubmissionCount int
	Operations      []string
}
