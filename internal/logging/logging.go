package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/newsweaver/newsweaver/internal/config"
)

// New constructs a slog.Logger configured according to the provided
// settings. When a log file is configured the returned closer owns it;
// otherwise the closer is a no-op and output goes to stdout.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	out := io.Writer(os.Stdout)
	closer := io.Closer(nopCloser{})

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}

	handler, err := buildHandler(cfg, out)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	return slog.New(handler), closer, nil
}

func buildHandler(cfg config.LoggingConfig, out io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(out, opts), nil
	case "text":
		return slog.NewTextHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
