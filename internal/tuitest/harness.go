package tuitest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
)

const (
	defaultWidth   = 110
	defaultHeight  = 40
	defaultTimeout = 10 * time.Second
)

// Step is one scripted keystroke batch. Delay is waited before Input is
// written; zero writes immediately.
type Step struct {
	Delay time.Duration
	Input []byte
}

// Type returns a step that writes text as if it were typed.
func Type(text string) Step {
	return Step{Input: []byte(text)}
}

// Press returns a step that sends one of the Key sequences below.
func Press(key []byte) Step {
	return Step{Input: key}
}

// Wait returns a step that only pauses the script.
func Wait(d time.Duration) Step {
	return Step{Delay: d}
}

// Raw key sequences for Step.Input.
var (
	KeyEnter = []byte{'\r'}
	KeyTab   = []byte{'\t'}
	KeyEsc   = []byte{27}
	KeyCtrlC = []byte{3}
	KeyCtrlO = []byte{15}
	KeyCtrlS = []byte{19}
	KeyCtrlX = []byte{24}
)

// Config describes the program under test and the script replayed against it.
type Config struct {
	Command          []string
	Dir              string
	Env              []string
	Width            int
	Height           int
	Steps            []Step
	Timeout          time.Duration
	AllowedExitCodes []int
	// AllowInterrupt accepts the exit status bubbletea reports after Ctrl+C.
	AllowInterrupt bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}

func (cfg Config) exitAllowed(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		for _, allowed := range cfg.AllowedExitCodes {
			if code == allowed {
				return true
			}
		}
	}
	return cfg.AllowInterrupt && strings.Contains(err.Error(), "signal: interrupt")
}

// Recording contains the raw terminal stream plus parsed frames.
type Recording struct {
	Raw      []byte
	Frames   []Frame
	Duration time.Duration
}

// Run starts the command on a PTY sized to the config, plays the steps and
// returns everything the program drew until it exited.
func Run(ctx context.Context, cfg Config) (*Recording, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	cfg = cfg.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(cfg.Height), Cols: uint16(cfg.Width)})
	if err != nil {
		return nil, fmt.Errorf("tuitest: start program: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	start := time.Now()
	output, drained := capture(ptmx)
	if err := play(ctx, ptmx, cfg.Steps); err != nil {
		return nil, err
	}
	if err := awaitExit(ctx, cmd, cfg); err != nil {
		return nil, err
	}

	// Closing the PTY lets the reader goroutine finish draining.
	_ = ptmx.Close()
	<-drained

	raw := output.Bytes()
	return &Recording{Raw: raw, Frames: parseFrames(raw), Duration: time.Since(start)}, nil
}

// capture copies the PTY into a buffer until it closes, answering terminal
// queries on the way so the program never waits on a real terminal.
func capture(ptmx io.ReadWriter) (*bytes.Buffer, <-chan struct{}) {
	var output bytes.Buffer
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		replies := newQueryReplier(ptmx)
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				replies.Feed(buf[:n])
				_, _ = output.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return &output, drained
}

func play(ctx context.Context, w io.Writer, steps []Step) error {
	for _, step := range steps {
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("tuitest: context cancelled before script finished: %w", ctx.Err())
			case <-time.After(step.Delay):
			}
		}
		if len(step.Input) == 0 {
			continue
		}
		if _, err := w.Write(step.Input); err != nil {
			return fmt.Errorf("tuitest: write input: %w", err)
		}
	}
	return nil
}

func awaitExit(ctx context.Context, cmd *exec.Cmd, cfg Config) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		if err != nil && !cfg.exitAllowed(err) {
			return fmt.Errorf("tuitest: program exited with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tuitest: timeout waiting for program exit: %w", ctx.Err())
	}
}

func buildEnv(extra []string) []string {
	env := append(os.Environ(), extra...)
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}

// terminalQuery is a request lipgloss or bubbletea writes at startup and the
// canned answer a dark xterm would give.
type terminalQuery struct {
	ask   string
	reply string
}

var terminalQueries = knownQueries()

func knownQueries() []terminalQuery {
	queries := []terminalQuery{{ask: "\x1b[6n", reply: "\x1b[1;1R"}}
	queries = append(queries, colorQuery("10", "cccc/cccc/cccc")...)
	return append(queries, colorQuery("11", "0000/0000/0000")...)
}

// colorQuery covers an OSC colour query with both BEL and ST terminators.
func colorQuery(code, rgb string) []terminalQuery {
	queries := make([]terminalQuery, 0, 2)
	for _, end := range []string{"\x07", "\x1b\\"} {
		queries = append(queries, terminalQuery{
			ask:   "\x1b]" + code + ";?" + end,
			reply: "\x1b]" + code + ";rgb:" + rgb + end,
		})
	}
	return queries
}

// queryReplier answers terminalQueries seen in the output stream, including
// ones split across reads.
type queryReplier struct {
	w       io.Writer
	pending []byte
}

func newQueryReplier(w io.Writer) *queryReplier {
	return &queryReplier{w: w}
}

func (q *queryReplier) Feed(chunk []byte) {
	q.pending = append(q.pending, chunk...)
	for q.answerNext() {
	}
	if len(q.pending) > 256 {
		q.pending = append([]byte(nil), q.pending[len(q.pending)-64:]...)
	}
}

// answerNext replies to the earliest query in pending and drops everything
// up to its end.
func (q *queryReplier) answerNext() bool {
	first, at := -1, -1
	for i, query := range terminalQueries {
		idx := bytes.Index(q.pending, []byte(query.ask))
		if idx >= 0 && (at < 0 || idx < at) {
			first, at = i, idx
		}
	}
	if first < 0 {
		return false
	}
	query := terminalQueries[first]
	q.pending = q.pending[at+len(query.ask):]
	_, _ = io.WriteString(q.w, query.reply)
	return true
}
