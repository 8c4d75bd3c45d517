package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a gateway failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindServer
	KindSemantic
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindSemantic:
		return "semantic"
	default:
		return "unknown"
	}
}

// TransportError wraps connection, DNS, timeout and cancellation failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError reports a non-2xx response.
type ServerError struct {
	StatusCode int
	Status     string
	Body       string
	// Detail is the best human-readable reason found in the response.
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Error %d: %s", e.StatusCode, e.Detail)
}

// SemanticError reports a 2xx response that lacks what the operation needs.
type SemanticError struct {
	Op     string
	Reason string
	Err    error
}

func (e *SemanticError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response from %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("unexpected response from %s: %s", e.Op, e.Reason)
}

func (e *SemanticError) Unwrap() error {
	return e.Err
}

// ErrorKind reports which failure class err belongs to.
func ErrorKind(err error) Kind {
	var transportErr *TransportError
	var serverErr *ServerError
	var semanticErr *SemanticError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &serverErr):
		return KindServer
	case errors.As(err, &semanticErr):
		return KindSemantic
	default:
		return KindUnknown
	}
}

func newServerError(code int, status string, body []byte) *ServerError {
	text := strings.TrimSpace(string(body))
	return &ServerError{
		StatusCode: code,
		Status:     status,
		Body:       text,
		Detail:     serverDetail(text, status),
	}
}

// serverDetail prefers a JSON detail, then message, then the raw body, then the status line.
func serverDetail(body, status string) string {
	if body == "" {
		return status
	}
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil {
		if text := RecordText(envelope.Detail); text != "" {
			return text
		}
		if text := RecordText(envelope.Message); text != "" {
			return text
		}
	}
	var quoted string
	if err := json.Unmarshal([]byte(body), &quoted); err == nil && strings.TrimSpace(quoted) != "" {
		return strings.TrimSpace(quoted)
	}
	return body
}

// RecordText renders an opaque JSON value such as an error detail, a citation
// or a source. Strings come back unquoted and trimmed, anything else compacted.
// Empty and null values render as "".
func RecordText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return string(trimmed)
	}
	return compact.String()
}
