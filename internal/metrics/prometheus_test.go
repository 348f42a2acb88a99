package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc("foo")
	m.Add("bar", 2)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "# TYPE aero_webrtc_signaling_events_total counter") {
		t.Fatalf("missing TYPE header: %s", body)
	}
	if !strings.Contains(body, `aero_webrtc_signaling_events_total{event="bar"} 2`) {
		t.Fatalf("missing bar counter: %s", body)
	}
	if !strings.Contains(body, `aero_webrtc_signaling_events_total{event="foo"} 1`) {
		t.Fatalf("missing foo counter: %s", body)
	}
	// Ensure label escaping matches Prometheus text format rules.
	if !strings.Contains(body, `aero_webrtc_signaling_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("missing escaped counter: %s", body)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(RoomJoins)
	if got := m.Get(RoomJoins); got != 0 {
		t.Fatalf("Get=%d, want 0", got)
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := New()
	m.Inc(RoomJoins)
	m.Inc(RoomJoins)
	m.Add(MessagesRelayed, 5)

	snap := m.Snapshot()
	if snap[RoomJoins] != 2 {
		t.Fatalf("%s=%d, want 2", RoomJoins, snap[RoomJoins])
	}
	if snap[MessagesRelayed] != 5 {
		t.Fatalf("%s=%d, want 5", MessagesRelayed, snap[MessagesRelayed])
	}

	// Snapshot is a copy.
	snap[RoomJoins] = 100
	if got := m.Get(RoomJoins); got != 2 {
		t.Fatalf("Get=%d after mutating snapshot, want 2", got)
	}
}
