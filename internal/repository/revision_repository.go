package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

const revisionColumns = `vid, agreement_id, langcode, translations, owner_id, published,
                  is_default, revision_log, revision_user, revision_created`

type revisionRepository struct {
	db *pgxpool.Pool
}

func NewRevisionRepository(db *pgxpool.Pool) RevisionStore {
	return &revisionRepository{db: db}
}

func scanRevision(row pgx.Row) (*domain.Revision, error) {
	var rev domain.Revision
	err := row.Scan(
		&rev.ID, &rev.AgreementID, &rev.Langcode, &rev.Translations, &rev.OwnerID, &rev.Published,
		&rev.IsDefault, &rev.Log, &rev.AuthoredBy, &rev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func collectRevisions(rows pgx.Rows) ([]*domain.Revision, error) {
	defer rows.Close()

	var revisions []*domain.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revisions, nil
}

func (r *revisionRepository) CreateAgreement(ctx context.Context, params domain.CreateRevisionParams) (*domain.Revision, error) {
	var created *domain.Revision
	err := withRetry(ctx, func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		var agreementID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO agreements (created_at) VALUES ($1) RETURNING id`,
			params.CreatedAt,
		).Scan(&agreementID)
		if err != nil {
			return fmt.Errorf("failed to create agreement: %w", err)
		}

		rtx := &revisionTx{tx: tx, agreementID: agreementID}
		rev, err := rtx.InsertRevision(ctx, params, true)
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		created = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *revisionRepository) CreateRevision(ctx context.Context, agreementID int64, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error) {
	var created *domain.Revision
	err := r.WithinAgreement(ctx, agreementID, func(tx RevisionTx) error {
		rev, err := tx.InsertRevision(ctx, params, makeDefault)
		if err != nil {
			return err
		}
		created = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *revisionRepository) GetDefaultRevisionID(ctx context.Context, agreementID int64) (int64, bool, error) {
	return revisionIDQuery(ctx, r.db, `
        SELECT vid FROM agreement_revisions
        WHERE agreement_id = $1 AND is_default
        LIMIT 1
    `, agreementID)
}

func (r *revisionRepository) GetLatestRevisionID(ctx context.Context, agreementID int64) (int64, bool, error) {
	return revisionIDQuery(ctx, r.db, `
        SELECT vid FROM agreement_revisions
        WHERE agreement_id = $1
        ORDER BY vid DESC
        LIMIT 1
    `, agreementID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func revisionIDQuery(ctx context.Context, q rowQuerier, query string, agreementID int64) (int64, bool, error) {
	var vid int64
	err := q.QueryRow(ctx, query, agreementID).Scan(&vid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get revision id: %w", err)
	}
	return vid, true, nil
}

func (r *revisionRepository) SetDefault(ctx context.Context, agreementID, revisionID int64) error {
	return r.WithinAgreement(ctx, agreementID, func(tx RevisionTx) error {
		return tx.SetDefault(ctx, revisionID)
	})
}

func (r *revisionRepository) DeleteRevision(ctx context.Context, revisionID int64) error {
	var agreementID int64
	err := r.db.QueryRow(ctx,
		`SELECT agreement_id FROM agreement_revisions WHERE vid = $1`, revisionID,
	).Scan(&agreementID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("revision %d: %w", revisionID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to get revision: %w", err)
	}

	return r.WithinAgreement(ctx, agreementID, func(tx RevisionTx) error {
		return tx.DeleteRevision(ctx, revisionID)
	})
}

func (r *revisionRepository) ListRevisionIDs(ctx context.Context, agreementID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT vid FROM agreement_revisions WHERE agreement_id = $1 ORDER BY vid ASC`, agreementID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list revision ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan revision ids: %w", err)
	}
	return ids, nil
}

func (r *revisionRepository) ListRevisions(ctx context.Context, agreementID int64) ([]*domain.Revision, error) {
	query := `SELECT ` + revisionColumns + `
        FROM agreement_revisions
        WHERE agreement_id = $1
        ORDER BY vid ASC
    `
	rows, err := r.db.Query(ctx, query, agreementID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	return collectRevisions(rows)
}

func (r *revisionRepository) GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM agreement_revisions WHERE vid = $1`

	rev, err := scanRevision(r.db.QueryRow(ctx, query, revisionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return rev, nil
}

const agreementQuery = `
        SELECT a.created_at, r.vid, r.agreement_id, r.langcode, r.translations, r.owner_id,
               r.published, r.is_default, r.revision_log, r.revision_user, r.revision_created
        FROM agreements a
        JOIN agreement_revisions r ON r.agreement_id = a.id AND r.is_default
    `

func scanAgreement(row pgx.Row) (*domain.Agreement, error) {
	var (
		createdAt time.Time
		rev       domain.Revision
	)
	err := row.Scan(
		&createdAt, &rev.ID, &rev.AgreementID, &rev.Langcode, &rev.Translations, &rev.OwnerID,
		&rev.Published, &rev.IsDefault, &rev.Log, &rev.AuthoredBy, &rev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return domain.AgreementFromRevision(&rev, createdAt), nil
}

func (r *revisionRepository) GetAgreement(ctx context.Context, agreementID int64) (*domain.Agreement, error) {
	agreement, err := scanAgreement(r.db.QueryRow(ctx, agreementQuery+` WHERE a.id = $1`, agreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get agreement: %w", err)
	}
	return agreement, nil
}

func (r *revisionRepository) ListAgreements(ctx context.Context, publishedOnly bool) ([]*domain.Agreement, error) {
	query := agreementQuery + ` WHERE ($1 = FALSE OR r.published) ORDER BY a.id ASC`

	rows, err := r.db.Query(ctx, query, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	defer rows.Close()

	var agreements []*domain.Agreement
	for rows.Next() {
		agreement, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		agreements = append(agreements, agreement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agreements: %w", err)
	}
	return agreements, nil
}

func (r *revisionRepository) DeleteAgreement(ctx context.Context, agreementID int64) error {
	// Revisions and submissions go with it (ON DELETE CASCADE)
	result, err := r.db.Exec(ctx, `DELETE FROM agreements WHERE id = $1`, agreementID)
	if err != nil {
		return fmt.Errorf("failed to delete agreement: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
	}
	return nil
}

func (r *revisionRepository) WithinAgreement(ctx context.Context, agreementID int64, fn func(tx RevisionTx) error) error {
	return withRetry(ctx, func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		// Row lock serializes every writer of this agreement
		var id int64
		err = tx.QueryRow(ctx, `SELECT id FROM agreements WHERE id = $1 FOR UPDATE`, agreementID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("agreement %d: %w", agreementID, domain.ErrNotFound)
			}
			return fmt.Errorf("failed to lock agreement: %w", err)
		}

		if err := fn(&revisionTx{tx: tx, agreementID: agreementID}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// revisionTx implements RevisionTx on an open pgx transaction.
type revisionTx struct {
	tx          pgx.Tx
	agreementID int64
}

func (t *revisionTx) GetRevision(ctx context.Context, revisionID int64) (*domain.Revision, error) {
	query := `SELECT ` + revisionColumns + `
        FROM agreement_revisions
        WHERE vid = $1 AND agreement_id = $2
    `
	rev, err := scanRevision(t.tx.QueryRow(ctx, query, revisionID, t.agreementID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return rev, nil
}

func (t *revisionTx) DefaultRevisionID(ctx context.Context) (int64, bool, error) {
	return revisionIDQuery(ctx, t.tx, `
        SELECT vid FROM agreement_revisions
        WHERE agreement_id = $1 AND is_default
        LIMIT 1
    `, t.agreementID)
}

func (t *revisionTx) LatestRevisionID(ctx context.Context) (int64, bool, error) {
	return revisionIDQuery(ctx, t.tx, `
        SELECT vid FROM agreement_revisions
        WHERE agreement_id = $1
        ORDER BY vid DESC
        LIMIT 1
    `, t.agreementID)
}

func (t *revisionTx) clearDefault(ctx context.Context) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE agreement_revisions SET is_default = FALSE WHERE agreement_id = $1 AND is_default`,
		t.agreementID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default revision: %w", err)
	}
	return nil
}

func (t *revisionTx) InsertRevision(ctx context.Context, params domain.CreateRevisionParams, makeDefault bool) (*domain.Revision, error) {
	if makeDefault {
		if err := t.clearDefault(ctx); err != nil {
			return nil, err
		}
	}

	query := `
        INSERT INTO agreement_revisions (
            agreement_id, langcode, translations, owner_id, published,
            is_default, revision_log, revision_user, revision_created
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING ` + revisionColumns

	rev, err := scanRevision(t.tx.QueryRow(ctx, query,
		t.agreementID, params.Langcode, params.Translations, params.OwnerID, params.Published,
		makeDefault, params.Log, params.AuthoredBy, params.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create revision: %w", err)
	}
	return rev, nil
}

func (t *revisionTx) UpdateRevision(ctx context.Context, rev *domain.Revision) error {
	result, err := t.tx.Exec(ctx, `
        UPDATE agreement_revisions
        SET langcode = $3, translations = $4, owner_id = $5, published = $6,
            revision_log = $7, revision_user = $8, revision_created = $9
        WHERE vid = $1 AND agreement_id = $2
    `,
		rev.ID, t.agreementID, rev.Langcode, rev.Translations, rev.OwnerID, rev.Published,
		rev.Log, rev.AuthoredBy, rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update revision: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("revision %d of agreement %d: %w", rev.ID, t.agreementID, domain.ErrInvalidRevision)
	}
	return nil
}

func (t *revisionTx) SetDefault(ctx context.Context, revisionID int64) error {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agreement_revisions WHERE vid = $1 AND agreement_id = $2)`,
		revisionID, t.agreementID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check revision: %w", err)
	}
	if !exists {
		return fmt.Errorf("revision %d of agreement %d: %w", revisionID, t.agreementID, domain.ErrInvalidRevision)
	}

	if err := t.clearDefault(ctx); err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`UPDATE agreement_revisions SET is_default = TRUE WHERE vid = $1`, revisionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set default revision: %w", err)
	}
	return nil
}

func (t *revisionTx) DeleteRevision(ctx context.Context, revisionID int64) error {
	var isDefault bool
	err := t.tx.QueryRow(ctx,
		`SELECT is_default FROM agreement_revisions WHERE vid = $1 AND agreement_id = $2`,
		revisionID, t.agreementID,
	).Scan(&isDefault)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("revision %d of agreement %d: %w", revisionID, t.agreementID, domain.ErrInvalidRevision)
		}
		return fmt.Errorf("failed to get revision: %w", err)
	}
	if isDefault {
		return fmt.Errorf("revision %d: %w", revisionID, domain.ErrCannotDeleteDefault)
	}

	// Its submissions go with it (ON DELETE CASCADE)
	_, err = t.tx.Exec(ctx, `DELETE FROM agreement_revisions WHERE vid = $1`, revisionID)
	if err != nil {
		return fmt.Errorf("failed to delete revision: %w", err)
	}
	return nil
}
