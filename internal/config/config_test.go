package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func TestLoadRelay_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ROOM_TTL", "SWEEP_INTERVAL", "MSG_RATE", "MSG_BURST", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, 2*time.Hour, cfg.RoomTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, rate.Limit(20), cfg.MsgRate)
	assert.Equal(t, 40, cfg.MsgBurst)
	assert.Equal(t, Logging{Level: "info", Format: "json"}, cfg.Logging)
}

func TestLoadRelay_ReportsEveryBadValue(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("ROOM_TTL", "-1m")
	t.Setenv("MSG_RATE", "fast")

	_, err := LoadRelay()
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "PORT")
	assert.ErrorContains(t, err, "ROOM_TTL")
	assert.ErrorContains(t, err, "MSG_RATE")
}

func TestLoadHost_OverridesAndValidation(t *testing.T) {
	t.Setenv("RELAY_URL", "http://relay:3000/")
	t.Setenv("ROOM_CODE", "abc123")
	t.Setenv("HOST_TOKEN", "0123456789abcdef0123456789abcdef")
	t.Setenv("EVERYONE_LIES_CHANCE", "0.25")
	t.Setenv("MAX_PLAYERS", "6")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("CONTENT_PROVIDER", "")

	cfg, err := LoadHost()
	require.NoError(t, err)
	assert.Equal(t, "http://relay:3000", cfg.RelayURL)
	assert.Equal(t, "ABC123", cfg.RoomCode)
	assert.Equal(t, 0.25, cfg.Game.EveryoneLiesChance)
	assert.Equal(t, 6, cfg.Game.MaxPlayers)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 5*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, "wikipedia", cfg.ContentProvider)

	t.Setenv("HOST_TOKEN", "")
	t.Setenv("EVERYONE_LIES_CHANCE", "1.5")
	_, err = LoadHost()
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "ROOM_CODE and HOST_TOKEN")
	assert.ErrorContains(t, err, "EVERYONE_LIES_CHANCE")
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NOFUS_TEST_A=fromfile\nNOFUS_TEST_B=fromfile\n"), 0o600))
	t.Setenv("NOFUS_TEST_A", "fromenv")
	t.Cleanup(func() { os.Unsetenv("NOFUS_TEST_B") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "fromenv", os.Getenv("NOFUS_TEST_A"))
	assert.Equal(t, "fromfile", os.Getenv("NOFUS_TEST_B"))
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(Logging{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(Logging{Level: "loud"})
	assert.ErrorIs(t, err, ErrInvalid)
}
