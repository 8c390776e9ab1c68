package schema

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/jsoncodec"
	"github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// registryServer mimics the registry's HTTP API.
type registryServer struct {
	mu           sync.Mutex
	records      map[string]Record
	correlations []string
}

func (s *registryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations = append(s.correlations, r.Header.Get(CorrelationHeader))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/schemas":
		var rec Record
		if err := jsoncodec.Decode(r.Body, &rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.records[rec.Topic] = rec
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/"):
		rec, ok := s.records[strings.TrimPrefix(r.URL.Path, "/api/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = jsoncodec.Encode(w, rec)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newRegistryServer(t *testing.T) (*registryServer, *HTTPRegistry) {
	t.Helper()
	srv := &registryServer{records: map[string]Record{}}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	reg, err := NewHTTPRegistry(ts.URL+"/", ts.Client())
	require.NoError(t, err)
	return srv, reg
}

func TestHTTPRegistryRoundTrip(t *testing.T) {
	srv, reg := newRegistryServer(t)
	rec, err := NewRecord("orders.in", (&wrapperspb.StringValue{}).ProtoReflect().Descriptor())
	require.NoError(t, err)

	ctx := logging.WithCorrelationID(context.Background(), "C1")
	require.NoError(t, reg.Register(ctx, rec))

	got, err := reg.Fetch(ctx, "orders.in")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, []string{"C1", "C1"}, srv.correlations)
}

func TestHTTPRegistryFetchMissing(t *testing.T) {
	_, reg := newRegistryServer(t)

	_, err := reg.Fetch(context.Background(), "nobody")
	assert.ErrorIs(t, err, errspkg.ErrSchemaRecordNotFound)
}

func TestHTTPRegistryErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reg, err := NewHTTPRegistry(ts.URL, nil)
	require.NoError(t, err)

	err = reg.Register(context.Background(), Record{Topic: "a"})
	assert.ErrorContains(t, err, "500")

	_, err = reg.Fetch(context.Background(), "a")
	assert.ErrorContains(t, err, "500")
	assert.NotErrorIs(t, err, errspkg.ErrSchemaRecordNotFound)
}

func TestHTTPRegistryEmptyBodyIsAbsent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	reg, err := NewHTTPRegistry(ts.URL, nil)
	require.NoError(t, err)

	_, err = reg.Fetch(context.Background(), "a")
	assert.ErrorIs(t, err, errspkg.ErrSchemaRecordNotFound)
}

func TestNewHTTPRegistryValidatesURL(t *testing.T) {
	_, err := NewHTTPRegistry("  ", nil)
	assert.ErrorIs(t, err, errspkg.ErrRegistryRequired)

	_, err = NewHTTPRegistry("not a url", nil)
	assert.Error(t, err)
}

func TestValidatorOverHTTP(t *testing.T) {
	m := manifest.Manifest{Components: []manifest.ComponentEntry{{
		HandlerKind:       manifest.Consumer,
		HandlerIdentifier: "c",
		ReadTopics:        []manifest.TopicBinding{{TopicName: "x", MessageType: "google.protobuf.StringValue"}},
	}}}

	t.Run("reachable and matching", func(t *testing.T) {
		srv, reg := newRegistryServer(t)
		v, err := NewValidator(reg, nil)
		require.NoError(t, err)

		require.NoError(t, v.Validate(context.Background(), m))
		assert.Contains(t, srv.records, "x")
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		reg, err := NewHTTPRegistry(url, nil)
		require.NoError(t, err)
		v, err := NewValidator(reg, nil)
		require.NoError(t, err)

		assert.NoError(t, v.Validate(context.Background(), m))
	})
}
