package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  api_key: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 0.5, cfg.Attendance.MatchThreshold)
	assert.Equal(t, 5, cfg.Attendance.EnrollmentQuota)
	assert.Equal(t, "09:00", cfg.Attendance.Cutoff)
	assert.Equal(t, 500*time.Millisecond, cfg.Attendance.Cooldown)
	assert.Equal(t, 128, cfg.Vision.EmbeddingDim)
	assert.Equal(t, "sqlite", cfg.References.Backend)
	assert.Equal(t, "0", cfg.Capture.Device)
	assert.NotEmpty(t, cfg.Attendance.KioskID)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_YAMLValues(t *testing.T) {
	body := `
attendance:
  kiosk_id: lobby
  match_threshold: 0.45
  enrollment_quota: 3
  cutoff: "08:30"
  cooldown: 2s
references:
  backend: postgres
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "lobby", cfg.Attendance.KioskID)
	assert.Equal(t, 0.45, cfg.Attendance.MatchThreshold)
	assert.Equal(t, 3, cfg.Attendance.EnrollmentQuota)
	assert.Equal(t, "08:30", cfg.Attendance.Cutoff)
	assert.Equal(t, 2*time.Second, cfg.Attendance.Cooldown)
	assert.Equal(t, "postgres", cfg.References.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FC_SERVER_PORT", "9090")
	t.Setenv("FC_MATCH_THRESHOLD", "0.55")
	t.Setenv("FC_CUTOFF", "10:15")
	t.Setenv("FC_KIOSK_ID", "gate-2")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.55, cfg.Attendance.MatchThreshold)
	assert.Equal(t, "10:15", cfg.Attendance.Cutoff)
	assert.Equal(t, "gate-2", cfg.Attendance.KioskID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad cutoff", "attendance:\n  cutoff: \"9am\"\n"},
		{"unknown backend", "references:\n  backend: redis\n"},
		{"negative quota", "attendance:\n  enrollment_quota: -1\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:00")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 0, m)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "fc", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/fc?sslmode=disable", d.DSN())
}
