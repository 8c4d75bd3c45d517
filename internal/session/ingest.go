package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kataras/golog"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/ingest"
	"github.com/csheth/ragdesk/internal/logging"
)

// Ingester is the slice of the gateway an IngestSession needs.
type Ingester interface {
	UploadDocument(ctx context.Context, text string, meta gateway.Metadata) (gateway.UploadResponse, error)
	DeleteAll(ctx context.Context) (gateway.DeleteResponse, error)
}

// IngestStatus is the lifecycle position of the latest knowledge-base action.
type IngestStatus int

const (
	IngestIdle IngestStatus = iota
	IngestBusy
	IngestDone
	IngestFailed
)

func (s IngestStatus) String() string {
	switch s {
	case IngestBusy:
		return "busy"
	case IngestDone:
		return "done"
	case IngestFailed:
		return "failed"
	default:
		return "idle"
	}
}

// IngestAction names the action that last wrote the shared state.
type IngestAction string

const (
	ActionNone       IngestAction = ""
	ActionUpload     IngestAction = "upload"
	ActionUploadFile IngestAction = "upload-file"
	ActionDeleteAll  IngestAction = "delete-all"
)

// IngestState is shared by every knowledge-base action; each run overwrites it.
type IngestState struct {
	Status  IngestStatus
	Action  IngestAction
	Message string
	// Failure classifies a failed action; zero otherwise.
	Failure gateway.Kind
}

// IngestReader is the read-only handle handed to views.
type IngestReader interface {
	State() IngestState
	Subscribe(fn func(IngestState)) func()
}

// IngestSession tracks uploads and wipes. Unlike QuerySession there is no
// supersession: whichever action settles last owns the state.
type IngestSession struct {
	ingester Ingester
	log      *golog.Logger

	// ChunkSize and ChunkOverlap control UploadFile splitting.
	ChunkSize    int
	ChunkOverlap int

	mu      sync.Mutex
	state   IngestState
	version uint64

	subscribers broadcaster[IngestState]
}

// NewIngestSession starts an idle session backed by ingester.
func NewIngestSession(ingester Ingester) *IngestSession {
	return &IngestSession{
		ingester:     ingester,
		log:          logging.New("ingest"),
		ChunkSize:    ingest.DefaultChunkSize,
		ChunkOverlap: ingest.DefaultOverlap,
	}
}

// State returns a copy of the shared state.
func (s *IngestSession) State() IngestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every transition and returns an unsubscribe func.
func (s *IngestSession) Subscribe(fn func(IngestState)) func() {
	return s.subscribers.subscribe(fn)
}

// Upload embeds text into the knowledge base. Blank text is rejected without a
// network call and leaves the state untouched; ok reports whether it ran.
func (s *IngestSession) Upload(ctx context.Context, text string, meta gateway.Metadata) (<-chan IngestState, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	s.apply(IngestState{Status: IngestBusy, Action: ActionUpload})
	return s.run(func() IngestState {
		resp, err := s.ingester.UploadDocument(ctx, text, meta)
		if err != nil {
			return IngestState{Status: IngestFailed, Action: ActionUpload, Message: "Failed to upload: " + err.Error(), Failure: gateway.ErrorKind(err)}
		}
		return IngestState{
			Status:  IngestDone,
			Action:  ActionUpload,
			Message: fmt.Sprintf("Text uploaded successfully! Vector ID: %s", resp.ID),
		}
	}), true
}

// DeleteAll wipes the knowledge base. It always issues exactly one call.
func (s *IngestSession) DeleteAll(ctx context.Context) <-chan IngestState {
	s.apply(IngestState{Status: IngestBusy, Action: ActionDeleteAll})
	return s.run(func() IngestState {
		resp, err := s.ingester.DeleteAll(ctx)
		if err != nil {
			return IngestState{Status: IngestFailed, Action: ActionDeleteAll, Message: "Failed to delete vectors: " + err.Error(), Failure: gateway.ErrorKind(err)}
		}
		return IngestState{Status: IngestDone, Action: ActionDeleteAll, Message: resp.Message}
	})
}

// UploadFile loads a text or PDF file, splits it and uploads the chunks in
// order, stopping at the first failure. Load errors are returned directly and
// leave the state untouched.
func (s *IngestSession) UploadFile(ctx context.Context, path, source string) (<-chan IngestState, error) {
	doc, err := ingest.Load(path)
	if err != nil {
		return nil, err
	}
	chunks := ingest.Split(doc.Text, s.ChunkSize, s.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", doc.Name, ingest.ErrEmptyDocument)
	}
	if source == "" {
		source = doc.Name
	}

	s.apply(IngestState{Status: IngestBusy, Action: ActionUploadFile})
	return s.run(func() IngestState {
		var lastID string
		for _, chunk := range chunks {
			resp, err := s.ingester.UploadDocument(ctx, chunk.Text, gateway.Metadata{
				Source:       source,
				SectionTitle: doc.Name,
				Position:     chunk.Position,
			})
			if err != nil {
				return IngestState{
					Status:  IngestFailed,
					Action:  ActionUploadFile,
					Message: fmt.Sprintf("Failed to upload %s (chunk %d/%d): %v", doc.Name, chunk.Position, len(chunks), err),
					Failure: gateway.ErrorKind(err),
				}
			}
			lastID = resp.ID
		}
		return IngestState{
			Status:  IngestDone,
			Action:  ActionUploadFile,
			Message: fmt.Sprintf("Uploaded %d chunk(s) from %s. Last Vector ID: %s", len(chunks), doc.Name, lastID),
		}
	}), nil
}

func (s *IngestSession) run(call func() IngestState) <-chan IngestState {
	out := make(chan IngestState, 1)
	go func() {
		defer close(out)
		settled := s.apply(call())
		if settled.Status == IngestFailed {
			s.log.Warnf("%s failed: %s", settled.Action, settled.Message)
		} else {
			s.log.Debugf("%s done: %s", settled.Action, settled.Message)
		}
		out <- settled
	}()
	return out
}

func (s *IngestSession) apply(next IngestState) IngestState {
	s.mu.Lock()
	s.state = next
	s.version++
	version := s.version
	s.mu.Unlock()
	s.subscribers.publish(version, next)
	return next
}
