package lobby

// Conn is one connected peer. The concrete implementation lives in
// internal/signaling (a WebSocket); tests substitute in-memory fakes.
//
// Conns are compared by identity: the same peer is the same Conn value for
// its whole lifetime.
type Conn interface {
	// Send writes one text message to the peer. Errors are the transport's
	// problem; a dead peer eventually surfaces through HandleDisconnect.
	Send(data []byte) error

	// Close tears the connection down. Closing an already-closed Conn is a
	// no-op. Close must not call back into the Hub.
	Close()

	// Ping probes liveness without delivering data. A failed ping does not
	// need to be reported here; it shows up as a read error on the transport.
	Ping() error
}
