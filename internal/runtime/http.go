package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/protowire/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/protowire/internal/runtime/logging"
	"github.com/drblury/protowire/internal/runtime/metrics"
	"github.com/drblury/protowire/internal/runtime/registrar"
)

const httpShutdownTimeout = 5 * time.Second

// ComponentsResponse is served on /api/components.
type ComponentsResponse struct {
	Components []registrar.Registration `json:"components"`
	Counters   []metrics.TopicCount     `json:"counters,omitempty"`
	Resources  ResourceUsage            `json:"resources"`
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) registerDefaultHTTPHandlers() {
	if s.Conf.MetricsEnabled && s.Conf.MetricsPort > 0 {
		handler := promhttp.Handler()
		if s.metricsReg != nil {
			handler = promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{})
		}
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", handler)
	}
	if s.Conf.HealthPort > 0 {
		s.RegisterHTTPHandler(s.Conf.HealthPort, "/health", s.withCORS(s.health))
		s.RegisterHTTPHandler(s.Conf.HealthPort, "/api/components", s.withCORS(http.HandlerFunc(s.handleGetComponents)))
	}
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
	return servers
}

func (s *Service) stopHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Warn("Failed to stop HTTP server", loggingpkg.LogFields{"address": srv.Addr, "error": err.Error()})
		}
	}
}

func (s *Service) handleGetComponents(w http.ResponseWriter, _ *http.Request) {
	body, err := jsoncodec.Marshal(ComponentsResponse{
		Components: s.Registrations(),
		Counters:   s.recorder.Snapshot(),
		Resources:  s.resourceTracker.Snapshot(),
	})
	if err != nil {
		s.Logger.Error("Failed to encode components", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// withCORS sets CORS headers for allowed origins and answers preflight
// requests.
func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := s.getAllowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.CORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
