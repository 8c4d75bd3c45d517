// Package logging wires golog loggers for ragdesk components. The TUI owns the
// terminal, so output is discarded unless a log file is configured.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kataras/golog"
)

const (
	defaultLevel      = "info"
	defaultTimeFormat = "2006-01-02 15:04:05.000"
)

var validLevels = map[string]bool{
	"disable": true,
	"fatal":   true,
	"error":   true,
	"warn":    true,
	"info":    true,
	"debug":   true,
}

// Config selects where logs go and how verbose they are.
type Config struct {
	// File is appended to when set; empty discards output.
	File  string
	Level string
}

var (
	mu   sync.RWMutex
	root = newRoot(io.Discard, defaultLevel)
)

func newRoot(out io.Writer, level string) *golog.Logger {
	logger := golog.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetTimeFormat(defaultTimeFormat)
	return logger
}

// Init replaces the root logger. The returned closer releases the log file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = defaultLevel
	}
	if !validLevels[level] {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	var out io.Writer = io.Discard
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closer = file
	}
	SetOutput(out, level)
	return closer, nil
}

// SetOutput points the root logger at w. Mostly useful in tests.
func SetOutput(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	root = newRoot(w, level)
}

// New returns a logger that prefixes every line with the component name.
// Loggers created before Init keep writing to the previous root.
func New(component string) *golog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Clone().SetPrefix("[" + component + "] ")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
