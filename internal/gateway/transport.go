package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func (g *Gateway) do(ctx context.Context, method, path string, payload any, out any) error {
	log := g.log
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return &SemanticError{Op: path, Reason: "encode request", Err: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		log.Warnf("%s %s failed (id=%s, duration=%s): %v", method, path, requestID, time.Since(started), err)
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf("%s %s body read failed (id=%s): %v", method, path, requestID, err)
		return &TransportError{Op: path, Err: err}
	}
	log.Debugf("%s %s -> %s (id=%s, duration=%s)", method, path, resp.Status, requestID, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverErr := newServerError(resp.StatusCode, resp.Status, raw)
		log.Warnf("%s %s rejected (id=%s): %s", method, path, requestID, serverErr.Error())
		return serverErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &SemanticError{Op: path, Reason: "malformed response body", Err: err}
	}
	return nil
}
