// Package session owns the client-side state of the current query and of the
// current knowledge-base action. Views read snapshots and invoke actions; they
// never mutate state directly.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kataras/golog"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/logging"
)

const (
	unexpectedResponseMessage = "Unexpected response from server"
	genericFailureMessage     = "Something went wrong"
)

// Querier is the slice of the gateway a QuerySession needs.
type Querier interface {
	SubmitQuery(ctx context.Context, query string) (gateway.QueryResponse, error)
}

// QueryStatus is the lifecycle position of the current query.
type QueryStatus int

const (
	QueryIdle QueryStatus = iota
	QueryLoading
	QuerySucceeded
	QueryFailed
)

func (s QueryStatus) String() string {
	switch s {
	case QueryLoading:
		return "loading"
	case QuerySucceeded:
		return "succeeded"
	case QueryFailed:
		return "failed"
	default:
		return "idle"
	}
}

// QueryState is a snapshot of the current query. Error is set only when
// Status is QueryFailed; Answer, Citations and Sources only when it is
// QuerySucceeded.
type QueryState struct {
	Status    QueryStatus
	Query     string
	Answer    string
	Citations []json.RawMessage
	Sources   []json.RawMessage
	Error     string
	// Failure classifies Error so views can label it.
	Failure gateway.Kind
	// Elapsed is the backend-reported processing time.
	Elapsed time.Duration
}

func (s QueryState) clone() QueryState {
	s.Citations = append([]json.RawMessage(nil), s.Citations...)
	s.Sources = append([]json.RawMessage(nil), s.Sources...)
	return s
}

// QueryOutcome is delivered once per Submit. Superseded outcomes were discarded
// because a later submission started first; State then holds the session's
// current state instead.
type QueryOutcome struct {
	State      QueryState
	Superseded bool
}

// QueryReader is the read-only handle handed to views.
type QueryReader interface {
	State() QueryState
	Subscribe(fn func(QueryState)) func()
}

// QuerySession serializes query submissions so the latest one is authoritative.
type QuerySession struct {
	querier Querier
	log     *golog.Logger

	mu      sync.Mutex
	state   QueryState
	token   uint64
	version uint64
	cancel  context.CancelFunc

	subscribers broadcaster[QueryState]
}

// NewQuerySession starts an idle session backed by querier.
func NewQuerySession(querier Querier) *QuerySession {
	return &QuerySession{
		querier: querier,
		log:     logging.New("query"),
	}
}

// State returns a copy of the latest settled or in-progress state.
func (s *QuerySession) State() QueryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every applied transition and returns an unsubscribe func.
func (s *QuerySession) Subscribe(fn func(QueryState)) func() {
	return s.subscribers.subscribe(fn)
}

// Submit resets the session to Loading before returning, then issues exactly one
// backend call in the background. A later Submit supersedes this one: its
// request context is cancelled and its result is never applied.
func (s *QuerySession) Submit(ctx context.Context, query string) <-chan QueryOutcome {
	callCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	token := s.token
	s.cancel = cancel
	s.state = QueryState{Status: QueryLoading, Query: query}
	s.version++
	version, loading := s.version, s.state.clone()
	s.mu.Unlock()
	s.subscribers.publish(version, loading)

	out := make(chan QueryOutcome, 1)
	go func() {
		defer close(out)
		defer cancel()

		resp, err := s.querier.SubmitQuery(callCtx, query)
		next := settleQuery(query, resp, err)

		s.mu.Lock()
		if token != s.token {
			current := s.state.clone()
			s.mu.Unlock()
			s.log.Debugf("discarding superseded query #%d (%s)", token, next.Status)
			out <- QueryOutcome{State: current, Superseded: true}
			return
		}
		s.state = next
		s.cancel = nil
		s.version++
		version, settled := s.version, s.state.clone()
		s.mu.Unlock()

		s.subscribers.publish(version, settled)
		if settled.Status == QueryFailed {
			s.log.Warnf("query #%d failed: %s", token, settled.Error)
		} else {
			s.log.Debugf("query #%d succeeded", token)
		}
		out <- QueryOutcome{State: settled}
	}()
	return out
}

func settleQuery(query string, resp gateway.QueryResponse, err error) QueryState {
	if err != nil {
		message := err.Error()
		if message == "" {
			message = genericFailureMessage
		}
		return QueryState{Status: QueryFailed, Query: query, Error: message, Failure: gateway.ErrorKind(err)}
	}
	if resp.Answer == "" {
		message := resp.Detail
		if message == "" {
			message = unexpectedResponseMessage
		}
		return QueryState{Status: QueryFailed, Query: query, Error: message, Failure: gateway.KindSemantic}
	}
	return QueryState{
		Status:    QuerySucceeded,
		Query:     query,
		Answer:    resp.Answer,
		Citations: resp.Citations,
		Sources:   resp.Sources,
		Elapsed:   time.Duration(resp.TimeTaken * float64(time.Second)),
	}
}
