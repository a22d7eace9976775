package domain

import "time"

// Account represents a site user account
type Account struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Roles     []string  `db:"roles"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasRole reports whether the account carries one of roles.
func (a *Account) HasRole(roles ...string) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// User data keys
const (
	UserDataModule           = "user_agreement"
	UserDataRejectedRevision = "rejected_user_agreements"
)

// Role allowed to administer agreements
const RoleAdministrator = "administrator"
