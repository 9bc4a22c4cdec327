package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options configure New.
type Options struct {
	Verbose bool
	// JSON switches from the colored console handler to JSON lines.
	JSON   bool
	Writer io.Writer
}

// New returns the console logger used by the grid binaries.
func New(verbose bool) *slog.Logger {
	return NewWithOptions(Options{Verbose: verbose})
}

func NewWithOptions(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr,
		}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:       level,
		ReplaceAttr: replaceAttr,
		NoColor:     w != os.Stdout,
	}))
}

// replaceAttr renders timestamps as UTC RFC3339 with milliseconds and drops empty
// string attributes.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
	}
	if s, ok := a.Value.Any().(string); ok && s == "" {
		return slog.Attr{}
	}
	return a
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}
