package config_test

import (
	"chatcore/backend/internal/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PRESENCE_TTL", "30s")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file::memory:", cfg.DBDSN)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, ":8080", cfg.HTTPAddr, "defaults apply when unset")
	assert.Equal(t, 72*time.Hour, cfg.JWTTTL)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		DBDriver:    "postgres",
		DBDSN:       "host=db",
		JWTSecret:   "s",
		JWTTTL:      time.Hour,
		PresenceTTL: time.Minute,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.DBDriver = "mysql" }},
		{"empty dsn", func(c *config.Config) { c.DBDSN = "" }},
		{"empty secret", func(c *config.Config) { c.JWTSecret = "" }},
		{"zero presence ttl", func(c *config.Config) { c.PresenceTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
