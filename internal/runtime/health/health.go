// Package health reports whether the bus connection is usable.
package health

import (
	"net/http"

	"github.com/drblury/protowire/internal/runtime/jsoncodec"
	"github.com/drblury/protowire/transport"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// Health is the JSON body served on the health endpoint.
type Health struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// Up reports whether h.Status is StatusUp.
func (h Health) Up() bool {
	return h.Status == StatusUp
}

// Indicator derives Health from a connection.
type Indicator struct {
	conn transport.Connection
}

func NewIndicator(conn transport.Connection) *Indicator {
	return &Indicator{conn: conn}
}

// Check is DOWN when there is no connection or it cannot report a status.
func (i *Indicator) Check() Health {
	if i == nil || i.conn == nil {
		return down("connection is nil or its status is unknown")
	}
	reporter, ok := i.conn.(transport.StatusReporter)
	if !ok {
		return down("connection is nil or its status is unknown")
	}

	st := reporter.Status()
	if !st.Connected {
		return down(st.State)
	}
	details := map[string]any{"status": st.State}
	if st.URL != "" {
		details["url"] = st.URL
	}
	if st.ServerID != "" {
		details["serverId"] = st.ServerID
	}
	return Health{Status: StatusUp, Details: details}
}

// ServeHTTP writes Check as JSON, with 503 when DOWN.
func (i *Indicator) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h := i.Check()
	body, err := jsoncodec.Marshal(h)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !h.Up() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = w.Write(body)
}

func down(status string) Health {
	return Health{Status: StatusDown, Details: map[string]any{"status": status}}
}
