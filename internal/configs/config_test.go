package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr())
	assert.Equal(t, ":50054", cfg.Server.GRPCAddr())
	assert.Equal(t, DriverRedis, cfg.Session.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, []string{"administrator"}, cfg.Consent.ExemptRoles)
	assert.Equal(t, "/", cfg.Consent.DefaultLanding)
	assert.Equal(t, 7*24*time.Hour, cfg.Sweeper.GracePeriod)
	assert.Equal(t, 20, cfg.Sweeper.Batch)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.False(t, cfg.SMTP.Enabled())
	assert.Equal(t, 5.0, cfg.Limit.RPS)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/agreements")
	t.Setenv("SESSION_DRIVER", "memory")
	t.Setenv("EXEMPT_ROLES", "administrator, auditor ,")
	t.Setenv("GRACE_PERIOD", "48h")
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"administrator", "auditor"}, cfg.Consent.ExemptRoles)
	assert.Equal(t, 48*time.Hour, cfg.Sweeper.GracePeriod)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.True(t, cfg.SMTP.Enabled())
}

func TestLoad_RequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{"JWT_SECRET": "", "STORAGE_DRIVER": "memory"},
			wantErr: "JWT_SECRET",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "postgres", "DATABASE_URL": ""},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "unknown storage driver",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "sqlite"},
			wantErr: "STORAGE_DRIVER",
		},
		{
			name:    "unknown session driver",
			env:     map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "memory", "SESSION_DRIVER": "memcached"},
			wantErr: "SESSION_DRIVER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
