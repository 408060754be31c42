package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 8080
  upstream_timeout: 3s
database:
  driver: memory
auth:
  jwt_secret: s3cr3t
  code_ttl: 10m
email:
  smtp_user: noreply@example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.UpstreamTimeout)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Auth.CodeTTL)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTPHost)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, "noreply@example.com", cfg.Email.FromEmail)
	assert.Equal(t, "local", cfg.Files.Driver)
	assert.Equal(t, "./files", cfg.Files.RootDir)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 8080
database:
  driver: memory
auth:
  jwt_secret: from-file
`)
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("EMAIL_USER", "mailer@example.com")
	t.Setenv("EMAIL_PASS", "app-password")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "mailer@example.com", cfg.Email.SMTPUser)
	assert.Equal(t, "mailer@example.com", cfg.Email.FromEmail)
	assert.Equal(t, "app-password", cfg.Email.SMTPPassword)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DATABASE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no secret", "database:\n  driver: memory\n"},
		{"postgres without dsn", "auth:\n  jwt_secret: x\n"},
		{"mongo without uri", "auth:\n  jwt_secret: x\ndatabase:\n  driver: mongo\n"},
		{"unknown driver", "auth:\n  jwt_secret: x\ndatabase:\n  driver: sqlite\n"},
		{"s3 without bucket", "auth:\n  jwt_secret: x\ndatabase:\n  driver: memory\nfiles:\n  driver: s3\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unterminated"))
	assert.Error(t, err)
}
