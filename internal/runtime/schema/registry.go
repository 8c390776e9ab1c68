package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/jsoncodec"
	"github.com/drblury/protowire/internal/runtime/logging"
)

// DefaultRegistryTimeout bounds each registry request when no client is given.
const DefaultRegistryTimeout = 5 * time.Second

// CorrelationHeader carries the caller's correlation id on registry requests.
const CorrelationHeader = "X-Correlation-ID"

// Registry stores topic contracts.
type Registry interface {
	// Register upserts rec.
	Register(ctx context.Context, rec Record) error
	// Fetch returns the current record for topic, or an error wrapping
	// ErrSchemaRecordNotFound when the registry has none.
	Fetch(ctx context.Context, topic string) (Record, error)
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTPRegistry talks to a registry exposing POST /api/schemas and
// GET /api/{topic}.
type HTTPRegistry struct {
	baseURL string
	client  HTTPDoer
}

// NewHTTPRegistry returns a client for the registry at baseURL. A nil client
// uses an *http.Client with DefaultRegistryTimeout.
func NewHTTPRegistry(baseURL string, client HTTPDoer) (*HTTPRegistry, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errspkg.ErrRegistryRequired
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid schema registry url %q: %w", baseURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultRegistryTimeout}
	}
	return &HTTPRegistry{baseURL: baseURL, client: client}, nil
}

func (r *HTTPRegistry) Register(ctx context.Context, rec Record) error {
	body, err := jsoncodec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode schema record: %w", err)
	}
	req, err := r.newRequest(ctx, http.MethodPost, r.baseURL+"/api/schemas", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("register schema for %q: %w", rec.Topic, err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("register schema for %q: unexpected status %s", rec.Topic, resp.Status)
	}
	return nil
}

func (r *HTTPRegistry) Fetch(ctx context.Context, topic string) (Record, error) {
	req, err := r.newRequest(ctx, http.MethodGet, r.baseURL+"/api/"+url.PathEscape(topic), nil)
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("fetch schema for %q: %w", topic, err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Record{}, fmt.Errorf("%w: %q", errspkg.ErrSchemaRecordNotFound, topic)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Record{}, fmt.Errorf("fetch schema for %q: unexpected status %s", topic, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Record{}, fmt.Errorf("read schema for %q: %w", topic, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Record{}, fmt.Errorf("%w: %q", errspkg.ErrSchemaRecordNotFound, topic)
	}
	var rec Record
	if err := jsoncodec.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode schema for %q: %w", topic, err)
	}
	return rec, nil
}

func (r *HTTPRegistry) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(CorrelationHeader, id)
	}
	return req, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
