// Package gateway talks to the RAG backend: queries, knowledge-base uploads and
// wipes. Every call is a single request/response with no retries or caching.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kataras/golog"

	"github.com/csheth/ragdesk/internal/logging"
)

const (
	defaultBackendURL = "http://localhost:8000"
	backendURLEnv     = "RAGDESK_BACKEND_URL"

	queryPath  = "/query"
	uploadPath = "/embed-upload"
	deletePath = "/delete_all"
)

const (
	maxIdleConns        = 16
	maxIdleConnsPerHost = 8
	idleConnTimeout     = 60 * time.Second
)

// Config describes how to reach the backend.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Metadata travels with an uploaded document.
type Metadata struct {
	Source       string
	SectionTitle string
	Position     int
}

// QueryResponse is the parsed body of a 2xx /query call. An empty Answer means
// the backend did not produce one.
type QueryResponse struct {
	Answer    string            `json:"answer"`
	Citations []json.RawMessage `json:"citations"`
	Sources   []json.RawMessage `json:"sources"`
	Detail    string            `json:"-"`
	TimeTaken float64           `json:"time_taken"`
}

// UploadResponse is the parsed body of a 2xx /embed-upload call.
type UploadResponse struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	TimeTaken float64        `json:"time_taken"`
}

// DeleteResponse is the parsed body of a 2xx /delete_all call.
type DeleteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Gateway performs the three backend operations.
type Gateway struct {
	base   string
	client *http.Client
	log    *golog.Logger
}

// New builds a gateway for the configured backend, defaulting the base URL.
func New(cfg Config) *Gateway {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBackendURL
	}
	return &Gateway{
		base:   base,
		client: pickHTTPClient(cfg.HTTPClient),
		log:    logging.New("gateway"),
	}
}

// NewFromEnv fills an empty BaseURL from RAGDESK_BACKEND_URL before building the gateway.
func NewFromEnv(cfg Config) *Gateway {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = os.Getenv(backendURLEnv)
	}
	return New(cfg)
}

// BaseURL reports the backend root requests are sent to.
func (g *Gateway) BaseURL() string {
	return g.base
}

// SubmitQuery asks the backend a question. A missing answer is not an error here.
func (g *Gateway) SubmitQuery(ctx context.Context, query string) (QueryResponse, error) {
	var parsed struct {
		QueryResponse
		Detail json.RawMessage `json:"detail"`
	}
	if err := g.do(ctx, http.MethodPost, queryPath, map[string]string{"query": query}, &parsed); err != nil {
		return QueryResponse{}, err
	}
	resp := parsed.QueryResponse
	resp.Detail = RecordText(parsed.Detail)
	return resp, nil
}

// UploadDocument embeds text into the knowledge base.
func (g *Gateway) UploadDocument(ctx context.Context, text string, meta Metadata) (UploadResponse, error) {
	payload := struct {
		Text         string `json:"text"`
		Source       string `json:"source"`
		SectionTitle string `json:"section_title,omitempty"`
		Position     int    `json:"position,omitempty"`
	}{
		Text:         text,
		Source:       meta.Source,
		SectionTitle: meta.SectionTitle,
		Position:     meta.Position,
	}
	var resp UploadResponse
	if err := g.do(ctx, http.MethodPost, uploadPath, payload, &resp); err != nil {
		return UploadResponse{}, err
	}
	if resp.ID == "" {
		return UploadResponse{}, &SemanticError{Op: uploadPath, Reason: "response missing id"}
	}
	return resp, nil
}

// DeleteAll wipes every vector in the knowledge base. Callers own any confirmation step.
func (g *Gateway) DeleteAll(ctx context.Context) (DeleteResponse, error) {
	var resp DeleteResponse
	if err := g.do(ctx, http.MethodDelete, deletePath, nil, &resp); err != nil {
		return DeleteResponse{}, err
	}
	if resp.Message == "" {
		return DeleteResponse{}, &SemanticError{Op: deletePath, Reason: "response missing message"}
	}
	return resp, nil
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	// No client timeout: callers bound requests through their context.
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
		},
	}
}
