package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger on stdout, or a human readable one in dev.
func New(env, service string) zerolog.Logger {
	return newLogger(os.Stdout, env, service)
}

// Bootstrap returns a logger for the startup phase, before the config has
// been loaded. APP_ENV picks the format and defaults to dev.
func Bootstrap(service string) zerolog.Logger {
	return New(bootEnv(), service)
}

func bootEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return "dev"
}

func newLogger(out io.Writer, env, service string) zerolog.Logger {
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stdout}
	}

	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}
