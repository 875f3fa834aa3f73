// Package signaling binds the lobby Hub to WebSocket connections.
//
// It owns everything transport-shaped: the upgrade handshake, origin checks,
// message size and rate limits, write deadlines, and idle-timeout handling.
// Protocol semantics live in internal/lobby.
package signaling
