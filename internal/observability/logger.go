package observability

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConsoleWriter renders human-readable lines for terminals.
func ConsoleWriter(out io.Writer, noColor bool, timestamp bool) zerolog.ConsoleWriter {
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.RFC3339,
	}
	if !timestamp {
		w.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	return w
}

// InitLogger builds the app logger and installs it as the package-global one.
func InitLogger(app string, w io.Writer, timestamp bool) zerolog.Logger {
	ctx := zerolog.New(w).With().Str("app", app)
	if timestamp {
		ctx = ctx.Timestamp()
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
