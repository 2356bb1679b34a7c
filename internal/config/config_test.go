package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("api-url", "", "")
	fs.String("log-level", "info", "")
	fs.Int("window", 10, "")
	fs.Bool("live", false, "")
	fs.Duration("page-pause", 500*time.Millisecond, "")
	return fs
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archivarr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

// =============================================================================
// Load tests
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	defer SetForTesting(nil)

	c, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 5.0, c.RateLimitRPS)
	assert.Equal(t, 10, c.RateLimitBurst)
	assert.Equal(t, 5, c.BreakerFailureThreshold)
	assert.Equal(t, 30*time.Second, c.BreakerResetTimeout)
	assert.Zero(t, c.MaxRetries)
	assert.Equal(t, 100, c.PageSize)
	assert.Equal(t, 5, c.PauseEveryPages)
	assert.Equal(t, 500*time.Millisecond, c.PagePause)
	assert.Equal(t, 10, c.MaxDepth)
	assert.Equal(t, 10, c.Window)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.Live)
	assert.Same(t, c, Get())
}

func TestLoad_Environment(t *testing.T) {
	defer SetForTesting(nil)
	t.Setenv("ARCHIVARR_API_URL", "https://vault.example.com/API/")
	t.Setenv("ARCHIVARR_RATE_LIMIT_RPS", "2.5")
	t.Setenv("ARCHIVARR_PAGE_PAUSE", "2s")
	t.Setenv("ARCHIVARR_LIVE", "true")
	t.Setenv("ARCHIVARR_WINDOW", "4")

	c, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://vault.example.com/API/", c.APIURL)
	assert.Equal(t, 2.5, c.RateLimitRPS)
	assert.Equal(t, 2*time.Second, c.PagePause)
	assert.True(t, c.Live)
	assert.Equal(t, 4, c.Window)
}

func TestLoad_Precedence(t *testing.T) {
	defer SetForTesting(nil)
	path := writeConfigFile(t, "api-url: https://file.example.com/\nwindow: 3\nlog-level: warn\npage-size: 50\n")
	t.Setenv("ARCHIVARR_WINDOW", "6")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--log-level", "debug"}))

	c, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/", c.APIURL, "file beats default")
	assert.Equal(t, 50, c.PageSize, "file beats default")
	assert.Equal(t, 6, c.Window, "env beats file")
	assert.Equal(t, "debug", c.LogLevel, "flag beats file")
}

func TestLoad_UnchangedFlagsKeepDefaults(t *testing.T) {
	defer SetForTesting(nil)
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--live"}))

	c, err := Load(fs)
	require.NoError(t, err)

	assert.True(t, c.Live)
	assert.Equal(t, 10, c.Window)
	assert.Equal(t, 500*time.Millisecond, c.PagePause)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	defer SetForTesting(nil)
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))

	_, err := Load(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidLogLevelFallsBack(t *testing.T) {
	defer SetForTesting(nil)
	t.Setenv("ARCHIVARR_LOG_LEVEL", "LOUD")

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"ARCHIVARR_PAGE_SIZE", "0"},
		{"ARCHIVARR_MAX_DEPTH", "0"},
		{"ARCHIVARR_RATE_LIMIT_RPS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			defer SetForTesting(nil)
			t.Setenv(tt.env, tt.value)
			_, err := Load(nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ClampsWindow(t *testing.T) {
	defer SetForTesting(nil)
	t.Setenv("ARCHIVARR_WINDOW", "0")

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Window)
}

// =============================================================================
// Validate / singleton tests
// =============================================================================

func TestValidate(t *testing.T) {
	c := NewTestConfig()
	assert.NoError(t, c.Validate())

	c.APIToken = ""
	assert.ErrorContains(t, c.Validate(), "api-token")

	c.APIURL = ""
	assert.ErrorContains(t, c.Validate(), "api-url")
}

func TestGet_PanicsWhenNotLoaded(t *testing.T) {
	SetForTesting(nil)
	assert.Panics(t, func() { Get() })
}

func TestSetForTesting(t *testing.T) {
	defer SetForTesting(nil)
	c := NewTestConfig()
	SetForTesting(c)
	assert.Same(t, c, Get())
	assert.Equal(t, time.Duration(0), Get().PagePause)
}
