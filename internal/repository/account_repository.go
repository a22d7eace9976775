package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thatlq1812/user-agreement/internal/domain"
)

type accountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, email, name, roles, active, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Roles, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, userID string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return a, nil
}

func (r *accountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	roles := account.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO accounts (id, email, name, roles, active)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE
        SET email = EXCLUDED.email, name = EXCLUDED.name, roles = EXCLUDED.roles,
            active = EXCLUDED.active, updated_at = NOW()
    `, account.ID, account.Email, account.Name, roles, account.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Deactivate(ctx context.Context, userID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE accounts SET active = FALSE, updated_at = NOW() WHERE id = $1`, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

type userDataRepository struct {
	db *pgxpool.Pool
}

func NewUserDataRepository(db *pgxpool.Pool) UserDataRepository {
	return &userDataRepository{db: db}
}

// Rejections live in one JSONB object per user keyed by agreement id.
func (r *userDataRepository) RememberRejection(ctx context.Context, userID string, agreementID, revisionID int64) error {
	entry := map[string]int64{strconv.FormatInt(agreementID, 10): revisionID}
	_, err := r.db.Exec(ctx, `
        INSERT INTO user_data (user_id, module, name, value)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id, module, name) DO UPDATE
        SET value = user_data.value || EXCLUDED.value, updated_at = NOW()
    `, userID, domain.UserDataModule, domain.UserDataRejectedRevision, entry)
	if err != nil {
		return fmt.Errorf("failed to remember rejection: %w", err)
	}
	return nil
}

func (r *userDataRepository) RejectedRevisions(ctx context.Context, userID string) (map[int64]int64, error) {
	var raw map[string]int64
	err := r.db.QueryRow(ctx, `
        SELECT value FROM user_data
        WHERE user_id = $1 AND module = $2 AND name = $3
    `, userID, domain.UserDataModule, domain.UserDataRejectedRevision).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[int64]int64{}, nil
		}
		return nil, fmt.Errorf("failed to get rejections: %w", err)
	}

	rejected := make(map[int64]int64, len(raw))
	for key, vid := range raw {
		aid, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		rejected[aid] = vid
	}
	return rejected, nil
}

func (r *userDataRepository) ForgetRejection(ctx context.Context, userID string, agreementID int64) error {
	_, err := r.db.Exec(ctx, `
        UPDATE user_data SET value = value - $4::text, updated_at = NOW()
        WHERE user_id = $1 AND module = $2 AND name = $3
    `, userID, domain.UserDataModule, domain.UserDataRejectedRevision, strconv.FormatInt(agreementID, 10))
	if err != nil {
		return fmt.Errorf("failed to forget rejection: %w", err)
	}
	return nil
}

type settingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (r *settingsRepository) Set(ctx context.Context, name, value string) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO settings (name, value) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `, name, value)
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}
