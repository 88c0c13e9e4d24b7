package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/juanqu261/bots-brokerwiz/internal/config"
)

// SetupLogger configures a JSON slog logger whose level is driven by the
// log_level configuration field, tagged with service and
// environment attributes on every record.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", "bots-brokerwiz"),
		slog.String("environment", cfg.Environment),
	)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
