package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/wordbiz/internal/observability"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLogLevel     = "WORDBIZ_LOG_LEVEL"
	EnvLogTimestamp = "WORDBIZ_LOG_TIMESTAMP"
	EnvLogNoColor   = "WORDBIZ_LOG_NOCOLOR"
	EnvLogFile      = "WORDBIZ_LOG_FILE"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Options controls where and how much the process logs.
type Options struct {
	App       string
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Console is the human-readable sink; nil means stdout.
	Console io.Writer
	// FilePath enables a rotating JSON log file when set.
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

var testOnce sync.Once

// DefaultOptions returns the baseline for a profile before env overrides.
func DefaultOptions(profile Profile) Options {
	opts := Options{
		App:            "wordbiz",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
	switch profile {
	case ProfileTest:
		opts.Level = zerolog.DebugLevel
		opts.Timestamp = false
	default:
		opts.Level = zerolog.InfoLevel
		opts.Timestamp = true
	}
	return opts
}

// ConfigureTests installs a debug-level logger once per test binary.
func ConfigureTests() {
	testOnce.Do(func() {
		opts := DefaultOptions(ProfileTest)
		ApplyEnvOverrides(&opts)
		Configure(opts)
	})
}

// Configure builds the process logger, installs it as the zerolog global and
// returns it. The returned closer flushes the log file, if any.
func Configure(opts Options) (zerolog.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{observability.ConsoleWriter(console, opts.NoColor, opts.Timestamp)}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.FileMaxSizeMB,
			MaxBackups: opts.FileMaxBackups,
			MaxAge:     opts.FileMaxAgeDays,
		}
		writers = append(writers, rotating)
		closer = rotating
	}

	zerolog.SetGlobalLevel(opts.Level)
	zerolog.TimeFieldFormat = time.RFC3339
	logger := observability.InitLogger(opts.App, zerolog.MultiLevelWriter(writers...), opts.Timestamp)
	return logger, closer
}

// ApplyEnvOverrides lets the environment win over config and flags.
func ApplyEnvOverrides(opts *Options) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		opts.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		opts.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		opts.FilePath = v
	}
}

// ParseLevel maps a config/env level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
