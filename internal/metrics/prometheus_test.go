package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := New()
	if got := m.Get(GamesCreated); got != 0 {
		t.Fatalf("Get on fresh metrics=%d, want 0", got)
	}

	m.Inc(GamesCreated)
	m.Inc(GamesCreated)
	m.Inc(SignalsRelayed)

	if got := m.Get(GamesCreated); got != 2 {
		t.Fatalf("games_created=%d, want 2", got)
	}
	if got := m.Get(SignalsRelayed); got != 1 {
		t.Fatalf("signals_relayed=%d, want 1", got)
	}

	snap := m.Snapshot()
	if len(snap) != 2 || snap[GamesCreated] != 2 {
		t.Fatalf("snapshot=%v", snap)
	}

	// Snapshot is a copy.
	snap[GamesCreated] = 99
	if got := m.Get(GamesCreated); got != 2 {
		t.Fatalf("snapshot mutation leaked: %d", got)
	}
}

func TestMetricsZeroValueUsable(t *testing.T) {
	var m Metrics
	m.Inc(WSConnections)
	if got := m.Get(WSConnections); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(GamesCreated)
	m.Inc(HostsVanished)
	m.Inc(HostsVanished)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "# TYPE lobby_relay_events_total counter") {
		t.Fatalf("missing TYPE line:\n%s", body)
	}
	if !strings.Contains(body, `lobby_relay_events_total{event="games_created"} 1`) {
		t.Fatalf("missing games_created line:\n%s", body)
	}
	if !strings.Contains(body, `lobby_relay_events_total{event="hosts_vanished"} 2`) {
		t.Fatalf("missing hosts_vanished line:\n%s", body)
	}
}
