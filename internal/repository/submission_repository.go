package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

const submissionColumns = `id, name, agreement_id, revision_id, user_id, decision, email_hash, created_at`

type submissionRepository struct {
	db *pgxpool.Pool
}

func NewSubmissionRepository(db *pgxpool.Pool) SubmissionLedger {
	return &submissionRepository{db: db}
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		s        domain.Submission
		decision int16
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.AgreementID, &s.RevisionID, &s.UserID, &decision, &s.EmailHash, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Decision = domain.Decision(decision)
	return &s, nil
}

func collectSubmissions(rows pgx.Rows) ([]*domain.Submission, error) {
	defer rows.Close()

	var submissions []*domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return submissions, nil
}

func (r *submissionRepository) RecordDecision(ctx context.Context, params domain.RecordDecisionParams) (*domain.Submission, error) {
	var recorded *domain.Submission
	err := withRetry(ctx, func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		// At most one live submission per triple: the newest decision replaces the old row
		_, err = tx.Exec(ctx, `
            DELETE FROM agreement_submissions
            WHERE agreement_id = $1 AND revision_id = $2 AND user_id = $3
        `, params.AgreementID, params.RevisionID, params.UserID)
		if err != nil {
			return fmt.Errorf("failed to replace submission: %w", err)
		}

		query := `
            INSERT INTO agreement_submissions (
                id, name, agreement_id, revision_id, user_id, decision, email_hash
            ) VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING ` + submissionColumns

		s, err := scanSubmission(tx.QueryRow(ctx, query,
			uuid.NewString(),
			domain.SubmissionName(params.UserID, params.AgreementID, params.RevisionID),
			params.AgreementID, params.RevisionID, params.UserID, int16(params.Decision), params.EmailHash,
		))
		if err != nil {
			return fmt.Errorf("failed to record submission: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		recorded = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func (r *submissionRepository) HasAccepted(ctx context.Context, agreementID, revisionID int64, userID string) (bool, error) {
	var accepted bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM agreement_submissions
            WHERE agreement_id = $1 AND revision_id = $2 AND user_id = $3 AND decision = $4
        )
    `, agreementID, revisionID, userID, int16(domain.DecisionAccepted)).Scan(&accepted)
	if err != nil {
		return false, fmt.Errorf("failed to check acceptance: %w", err)
	}
	return accepted, nil
}

func (r *submissionRepository) CountForRevision(ctx context.Context, agreementID, revisionID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM agreement_submissions
        WHERE agreement_id = $1 AND revision_id = $2
    `, agreementID, revisionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}

func (r *submissionRepository) FindByTriple(ctx context.Context, userID string, agreementID, revisionID int64) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM agreement_submissions
        WHERE agreement_id = $1 AND revision_id = $2 AND user_id = $3
    `
	s, err := scanSubmission(r.db.QueryRow(ctx, query, agreementID, revisionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

func (r *submissionRepository) ListForRevision(ctx context.Context, agreementID, revisionID int64) ([]*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM agreement_submissions
        WHERE agreement_id = $1 AND revision_id = $2
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, agreementID, revisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return collectSubmissions(rows)
}

func (r *submissionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + `
        FROM agreement_submissions
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user submissions: %w", err)
	}
	return collectSubmissions(rows)
}
