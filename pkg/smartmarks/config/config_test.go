package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDevMode(t *testing.T) {
	t.Setenv("SMARTMARKS_DEV", "true")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Listen())
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 15*time.Second, cfg.MetaTimeout)
	assert.Equal(t, int64(0), cfg.MetaMaxBodyBytes)
	assert.Equal(t, 8, cfg.ReorderConcurrency)
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SMARTMARKS_PORT", "9090")
	t.Setenv("SMARTMARKS_JWT_SECRET", "s3cret")
	t.Setenv("SMARTMARKS_TOKEN_TTL", "2h")
	t.Setenv("SMARTMARKS_DB_DRIVER", "postgres")
	t.Setenv("SMARTMARKS_DB_DSN", "host=db user=u dbname=d")
	t.Setenv("SMARTMARKS_GOOGLE_CLIENT_ID", "id")
	t.Setenv("SMARTMARKS_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("SMARTMARKS_META_MAX_BODY_BYTES", "1048576")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, int64(1<<20), cfg.MetaMaxBodyBytes)
	assert.True(t, cfg.GoogleEnabled())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartmarks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"7070\"\nJWT_SECRET: from-file\n"), 0o600))
	t.Setenv("SMARTMARKS_CONFIG", path)

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad driver", map[string]string{"SMARTMARKS_DEV": "true", "SMARTMARKS_DB_DRIVER": "mysql"}},
		{"bad concurrency", map[string]string{"SMARTMARKS_DEV": "true", "SMARTMARKS_REORDER_CONCURRENCY": "0"}},
		{"negative body limit", map[string]string{"SMARTMARKS_DEV": "true", "SMARTMARKS_META_MAX_BODY_BYTES": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}
