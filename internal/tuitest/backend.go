package tuitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest is one call the program under test made to a Backend.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Decode unmarshals the recorded JSON body into v.
func (r RecordedRequest) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Backend is a stand-in RAG server that remembers every request it served.
type Backend struct {
	URL string

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewBackend serves handler on a local listener closed at test cleanup.
func NewBackend(t testing.TB, handler http.Handler) *Backend {
	t.Helper()
	backend := &Backend{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		backend.record(RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		r.Body = io.NopCloser(bytes.NewReader(body))
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	backend.URL = server.URL
	return backend
}

func (b *Backend) record(req RecordedRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
}

// Requests returns the calls made to path in arrival order. An empty path
// returns every call.
func (b *Backend) Requests(path string) []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []RecordedRequest
	for _, req := range b.requests {
		if path == "" || req.Path == path {
			out = append(out, req)
		}
	}
	return out
}
