package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Leveled logger used across the membership service, backed by zerolog.
// - Debugf/Infof/Warnf/Errorf/Fatalf for printf-style call sites
// - Component(name) for structured child loggers injected into services

var (
	mu     sync.RWMutex
	base   = zerolog.New(os.Stdout).With().Timestamp().Logger()
	output io.Writer = os.Stdout
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	s := strings.ToLower(strings.TrimSpace(l))
	switch s {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// SetFormat switches between JSON lines ("json", default) and a human
// readable console writer ("console").
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	w := output
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	base = zerolog.New(w).With().Timestamp().Logger()
}

// SetOutput redirects all log output; mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = zerolog.New(w).With().Timestamp().Logger()
}

func get() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// Configure applies a level and a format in one call, as loaded from config.
func Configure(level, format string) {
	Init(level)
	SetFormat(format)
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return get().With().Str("component", name).Logger()
}

func Debugf(format string, v ...interface{}) { get().Debug().Msgf(format, v...) }

func Infof(format string, v ...interface{}) { get().Info().Msgf(format, v...) }

func Warnf(format string, v ...interface{}) { get().Warn().Msgf(format, v...) }

func Errorf(format string, v ...interface{}) { get().Error().Msgf(format, v...) }

func Fatalf(format string, v ...interface{}) {
	get().WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// LevelString returns the current level as text.
func LevelString() string {
	switch zerolog.GlobalLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return "debug"
	case zerolog.WarnLevel:
		return "warn"
	case zerolog.ErrorLevel:
		return "error"
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return "fatal"
	}
	return "info"
}
