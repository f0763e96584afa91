package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

var ErrInvalid = errors.New("config: invalid value")

type Logging struct {
	Level  string
	Format string
}

type Relay struct {
	Port          int
	RoomTTL       time.Duration
	SweepInterval time.Duration
	MsgRate       rate.Limit
	MsgBurst      int
	Logging       Logging
}

type Host struct {
	RelayURL        string
	RoomCode        string
	HostToken       string
	ContentProvider string
	ContentURL      string
	RecoveryTimeout time.Duration
	TickInterval    time.Duration
	Game            engine.RoomConfig
	Logging         Logging
}

// Addr is the listen address for the relay.
func (r Relay) Addr() string { return fmt.Sprintf(":%d", r.Port) }

// LoadDotEnv reads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func LoadRelay() (Relay, error) {
	e := env{}
	cfg := Relay{
		Port:          e.intVar("PORT", 3000),
		RoomTTL:       e.durationVar("ROOM_TTL", 2*time.Hour),
		SweepInterval: e.durationVar("SWEEP_INTERVAL", 5*time.Minute),
		MsgRate:       rate.Limit(e.floatVar("MSG_RATE", 20)),
		MsgBurst:      e.intVar("MSG_BURST", 40),
		Logging:       e.logging(),
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		e.fail("PORT", strconv.Itoa(cfg.Port))
	}
	return cfg, e.err()
}

func LoadHost() (Host, error) {
	e := env{}
	game := engine.DefaultConfig()
	game.EveryoneLiesChance = e.floatVar("EVERYONE_LIES_CHANCE", game.EveryoneLiesChance)
	game.PlayerAdditionalArticleChance = e.floatVar("ADDITIONAL_ARTICLE_CHANCE", game.PlayerAdditionalArticleChance)
	game.MaxPlayers = e.intVar("MAX_PLAYERS", game.MaxPlayers)

	cfg := Host{
		RelayURL:        strings.TrimRight(e.lookup("RELAY_URL", "http://localhost:3000"), "/"),
		RoomCode:        strings.ToUpper(e.lookup("ROOM_CODE", "")),
		HostToken:       e.lookup("HOST_TOKEN", ""),
		ContentProvider: e.lookup("CONTENT_PROVIDER", "wikipedia"),
		ContentURL:      e.lookup("CONTENT_URL", ""),
		RecoveryTimeout: e.durationVar("RECOVERY_TIMEOUT", 5*time.Second),
		TickInterval:    e.durationVar("TICK_INTERVAL", time.Second),
		Game:            game,
		Logging:         e.logging(),
	}

	if (cfg.RoomCode == "") != (cfg.HostToken == "") {
		e.errs = append(e.errs, fmt.Errorf("%w: ROOM_CODE and HOST_TOKEN must be set together", ErrInvalid))
	}
	if cfg.ContentProvider != "wikipedia" && cfg.ContentProvider != "static" {
		e.fail("CONTENT_PROVIDER", cfg.ContentProvider)
	}
	for name, p := range map[string]float64{
		"EVERYONE_LIES_CHANCE":      game.EveryoneLiesChance,
		"ADDITIONAL_ARTICLE_CHANCE": game.PlayerAdditionalArticleChance,
	} {
		if p < 0 || p > 1 {
			e.fail(name, strconv.FormatFloat(p, 'g', -1, 64))
		}
	}
	if game.MaxPlayers < game.MinPlayers {
		e.fail("MAX_PLAYERS", strconv.Itoa(game.MaxPlayers))
	}
	return cfg, e.err()
}

// NewLogger builds the process logger: JSON by default, console when
// LOG_FORMAT=console.
func NewLogger(l Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL=%q", ErrInvalid, l.Level)
	}
	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// env collects parse failures so every bad variable is reported at once.
type env struct {
	errs []error
}

func (e *env) fail(name, raw string) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q", ErrInvalid, name, raw))
}

func (e *env) err() error { return errors.Join(e.errs...) }

func (e *env) lookup(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func (e *env) intVar(name string, def int) int {
	raw := e.lookup(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(name, raw)
		return def
	}
	return v
}

func (e *env) floatVar(name string, def float64) float64 {
	raw := e.lookup(name, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(name, raw)
		return def
	}
	return v
}

func (e *env) durationVar(name string, def time.Duration) time.Duration {
	raw := e.lookup(name, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		e.fail(name, raw)
		return def
	}
	return v
}

func (e *env) logging() Logging {
	return Logging{
		Level:  e.lookup("LOG_LEVEL", "info"),
		Format: e.lookup("LOG_FORMAT", "json"),
	}
}
