package settings

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	s := Load()
	require.NoError(t, s.Validate())
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, "./data/mcuplan.db", s.DatabasePath)
	assert.Equal(t, "@every 10m", s.CatalogRefresh)
	assert.Equal(t, 5*time.Second, s.FetchTimeout)
	assert.Equal(t, time.Minute, s.Heartbeat)
	assert.False(t, s.DevMode)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MCUPLAN_PORT", "9090")
	t.Setenv("MCUPLAN_DEV_MODE", "true")
	t.Setenv("MCUPLAN_HEARTBEAT", "15s")
	t.Setenv("MCUPLAN_FETCH_TIMEOUT", "garbage")
	s := Load()
	require.NoError(t, s.Validate())
	assert.Equal(t, 9090, s.Port)
	assert.True(t, s.DevMode)
	assert.Equal(t, 15*time.Second, s.Heartbeat)
	assert.Equal(t, 5*time.Second, s.FetchTimeout, "unparsable value keeps the default")
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MCUPLAN_CATALOG_URL", "http://example.invalid/catalog.json")
	t.Setenv("MCUPLAN_CATALOG_REFRESH", "not a schedule")
	assert.ErrorContains(t, Load().Validate(), "MCUPLAN_CATALOG_REFRESH")

	s := &Settings{DatabasePath: "x.db", Port: 70000, FetchTimeout: time.Second, Heartbeat: time.Second}
	assert.Error(t, s.Validate())
}

func TestOverrideFixesInvalidEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MCUPLAN_PORT", "70000")

	s := Load()
	assert.Equal(t, 70000, s.Port)
	assert.ErrorContains(t, s.Validate(), "MCUPLAN_PORT")

	s.Port = 9000
	assert.NoError(t, s.Validate())
}
