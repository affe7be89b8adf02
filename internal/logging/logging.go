package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Init sets the default logger to a text handler on stderr.
func Init() {
	slog.SetDefault(New(os.Stderr))
}

// New returns a text logger writing to w at the level named by LOG_LEVEL.
func New(w io.Writer) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: Level(),
		}),
	)
}

// Level reads LOG_LEVEL. Production only shows errors.
func Level() slog.Level {
	level := slog.LevelError

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}
	return level
}

// ToFile points the default logger at path, appending. The returned func
// closes the file.
func ToFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(New(f))
	return f.Close, nil
}

// Discard silences the default logger while a full-screen UI owns the
// terminal.
func Discard() {
	slog.SetDefault(slog.New(slog.DiscardHandler))
}
