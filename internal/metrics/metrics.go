package metrics

import "sync"

// Event counter names. The set is deliberately small; anything finer-grained
// belongs in a real metrics backend.
const (
	WSConnections = "ws_connections"

	GamesCreated       = "games_created"
	GameCreateRejected = "game_create_rejected"
	ClientsJoined      = "clients_joined"
	JoinRejected       = "join_rejected"

	SignalsRelayed = "signals_relayed"
	SignalsDropped = "signals_dropped"

	HostsVanished   = "hosts_vanished"
	ClientsVanished = "clients_vanished"

	DecodeFailures = "decode_failures"
	RateLimited    = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry. The zero value is
// usable.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot copies all counters for exposition.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
