package tui

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kataras/golog"

	"github.com/csheth/ragdesk/internal/logging"
)

type jobKind string

type jobStatus string

const (
	jobKindQuery      jobKind = "query"
	jobKindUpload     jobKind = "upload"
	jobKindUploadFile jobKind = "upload-file"
	jobKindDeleteAll  jobKind = "delete-all"
)

const (
	jobStatusRunning    jobStatus = "running"
	jobStatusSucceeded  jobStatus = "succeeded"
	jobStatusFailed     jobStatus = "failed"
	jobStatusSuperseded jobStatus = "superseded"
)

// errSuperseded marks a job whose result was discarded in favour of a newer one.
var errSuperseded = errors.New("superseded by a newer request")

type jobSnapshot struct {
	ID          string
	Kind        jobKind
	Status      jobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Duration    time.Duration
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

type jobBus struct {
	counter int64
	ctx     context.Context
	log     *golog.Logger
}

func newJobBus(ctx context.Context) *jobBus {
	if ctx == nil {
		ctx = context.Background()
	}
	return &jobBus{ctx: ctx, log: logging.New("jobs")}
}

func (b *jobBus) nextID(kind jobKind) string {
	idx := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("%s-%d", kind, idx)
}

func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	id := b.nextID(kind)
	started := time.Now()
	startSnapshot := jobSnapshot{ID: id, Kind: kind, Status: jobStatusRunning, StartedAt: started}
	startCmd := func() tea.Msg {
		return jobSignalMsg{Snapshot: startSnapshot}
	}

	runCmd := func() tea.Msg {
		payload, err := runner(b.ctx)
		snapshot := jobSnapshot{
			ID:          id,
			Kind:        kind,
			StartedAt:   started,
			CompletedAt: time.Now(),
		}
		switch {
		case errors.Is(err, errSuperseded):
			snapshot.Status = jobStatusSuperseded
		case err != nil:
			snapshot.Status = jobStatusFailed
			snapshot.Err = err.Error()
		default:
			snapshot.Status = jobStatusSucceeded
		}
		snapshot.Duration = snapshot.CompletedAt.Sub(started)
		if snapshot.Status == jobStatusFailed {
			b.log.Warnf("%s %s (duration=%s, err=%v)", id, snapshot.Status, snapshot.Duration, err)
		} else {
			b.log.Infof("%s %s (duration=%s)", id, snapshot.Status, snapshot.Duration)
		}
		return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
	}

	return tea.Sequence(startCmd, runCmd)
}
