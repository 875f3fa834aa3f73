package lobby

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/openlobby/lobby-relay/internal/metrics"
	"github.com/openlobby/lobby-relay/internal/protocol"
)

// Hub routes decoded requests against the registry and reacts to connection
// loss. Every inbound message and every disconnect is handled to completion
// under one mutex, so handlers never see a half-applied registry state.
// Outbound writes happen after the lock is released.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	reg *Registry
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		log:     logger,
		metrics: m,
		reg:     NewRegistry(),
	}
}

// delivery is one outbound message, optionally followed by closing the
// target connection.
type delivery struct {
	to        Conn
	msg       protocol.Response
	closeConn bool
}

// HandleMessage processes one raw text message from sender. Undecodable
// input gets an error response and leaves the connection open; it is the
// peer's problem, not a protocol violation.
func (h *Hub) HandleMessage(sender Conn, data []byte) {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		h.metrics.Inc(metrics.DecodeFailures)
		h.log.Debug("undecodable message", "err", err)
		h.deliver(delivery{to: sender, msg: protocol.NewError("Invalid message: " + err.Error())})
		return
	}

	h.mu.Lock()
	out := h.dispatch(sender, req)
	h.mu.Unlock()

	for _, d := range out {
		h.deliver(d)
	}
}

// HandleDisconnect reacts to close or error on c. A vanished host takes its
// whole game down: every client is told and force-closed, then the game is
// removed. A vanished client only costs the game that one entry, with a
// notification to the host. A connection with no role is a no-op.
func (h *Hub) HandleDisconnect(c Conn) {
	h.mu.Lock()
	var out []delivery
	if g := h.reg.FindByHost(c); g != nil {
		for _, cl := range g.Clients {
			out = append(out, delivery{to: cl.Conn, msg: protocol.NewError("Host vanished"), closeConn: true})
		}
		h.reg.RemoveGame(g.ID)
		h.metrics.Inc(metrics.HostsVanished)
		h.log.Info("host vanished", "game_id", g.ID, "clients", len(g.Clients))
	} else if g := h.reg.FindByClient(c); g != nil {
		cl := g.clientByConn(c)
		h.reg.RemoveClient(g.ID, cl.ID)
		h.metrics.Inc(metrics.ClientsVanished)
		h.log.Info("client vanished", "game_id", g.ID, "client_id", cl.ID)
		out = append(out, delivery{to: g.Host, msg: protocol.NewClientVanished(g.ID, cl.ID)})
	}
	h.mu.Unlock()

	for _, d := range out {
		h.deliver(d)
	}
}

// Run sends a liveness ping to every registered connection on each tick
// until ctx is done. Pings never touch registry state; a dead peer surfaces
// later as an ordinary disconnect.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	h.mu.Lock()
	conns := h.reg.Conns()
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.Ping(); err != nil {
			h.log.Debug("keepalive ping failed", "err", err)
		}
	}
}

// ActiveGames reports how many games are currently registered.
func (h *Hub) ActiveGames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reg.games)
}

func (h *Hub) dispatch(sender Conn, req protocol.Request) []delivery {
	switch req.Type {
	case protocol.RequestCreateGame:
		return h.handleCreateGame(sender, req)
	case protocol.RequestUpdateGameInfo:
		return h.handleUpdateGameInfo(sender, req)
	case protocol.RequestListGames:
		return h.handleListGames(sender)
	case protocol.RequestJoinGame:
		return h.handleJoinGame(sender, req)
	case protocol.RequestAcceptJoin:
		return h.handleAcceptJoin(sender, req)
	case protocol.RequestRejectJoin:
		return h.handleRejectJoin(sender, req)
	case protocol.RequestWebRTCSignaling:
		return h.handleSignaling(sender, req)
	default:
		// ParseRequest only yields the types above.
		return nil
	}
}

func (h *Hub) handleCreateGame(sender Conn, req protocol.Request) []delivery {
	info := GameInfo{
		ServerName:       req.ServerName,
		PlayerAmount:     1,
		MaxPlayers:       *req.MaxPlayers,
		RequiresPassword: req.RequiresPassword != nil && *req.RequiresPassword,
	}

	g, err := h.reg.Create(req.GameID, info, sender)
	switch {
	case errors.Is(err, ErrAlreadyInGame):
		h.metrics.Inc(metrics.GameCreateRejected)
		return []delivery{{to: sender, msg: protocol.NewError("Already in a game"), closeConn: true}}
	case errors.Is(err, ErrGameIDInUse):
		h.metrics.Inc(metrics.GameCreateRejected)
		return []delivery{{to: sender, msg: protocol.NewError("Game ID already in use"), closeConn: true}}
	case err != nil:
		h.log.Error("failed to create game", "err", err)
		return []delivery{{to: sender, msg: protocol.NewError("Internal error"), closeConn: true}}
	}

	h.metrics.Inc(metrics.GamesCreated)
	h.log.Info("game created", "game_id", g.ID, "server_name", g.Info.ServerName)
	return []delivery{{to: sender, msg: protocol.NewGameCreated(g.ID)}}
}

func (h *Hub) handleUpdateGameInfo(sender Conn, req protocol.Request) []delivery {
	info := GameInfo{
		ServerName:       req.ServerName,
		PlayerAmount:     *req.PlayerAmount,
		MaxPlayers:       *req.MaxPlayers,
		RequiresPassword: req.RequiresPassword != nil && *req.RequiresPassword,
	}
	if !h.reg.UpdateInfo(sender, info) {
		h.log.Debug("updateGameInfo from a connection that hosts nothing")
	}
	return nil
}

func (h *Hub) handleListGames(sender Conn) []delivery {
	games := make([]protocol.GameListEntry, 0, len(h.reg.games))
	for _, g := range h.reg.games {
		games = append(games, protocol.GameListEntry{
			GameID:           g.ID,
			ServerName:       g.Info.ServerName,
			PlayerAmount:     g.Info.PlayerAmount,
			MaxPlayers:       g.Info.MaxPlayers,
			RequiresPassword: g.Info.RequiresPassword,
		})
	}
	return []delivery{{to: sender, msg: protocol.NewGameList(games)}}
}

func (h *Hub) handleJoinGame(sender Conn, req protocol.Request) []delivery {
	g, c, err := h.reg.Join(req.GameID, sender)
	switch {
	case errors.Is(err, ErrAlreadyInGame):
		h.metrics.Inc(metrics.JoinRejected)
		return []delivery{{to: sender, msg: protocol.NewError("Already in a game"), closeConn: true}}
	case errors.Is(err, ErrGameNotFound):
		h.metrics.Inc(metrics.JoinRejected)
		return []delivery{{to: sender, msg: protocol.NewError("Game not found"), closeConn: true}}
	case err != nil:
		h.log.Error("failed to join game", "err", err)
		return []delivery{{to: sender, msg: protocol.NewError("Internal error"), closeConn: true}}
	}

	h.metrics.Inc(metrics.ClientsJoined)
	h.log.Info("client joined", "game_id", g.ID, "client_id", c.ID)
	return []delivery{{to: g.Host, msg: protocol.NewNewClient(g.ID, c.ID, req.Password)}}
}

func (h *Hub) handleAcceptJoin(sender Conn, req protocol.Request) []delivery {
	g, c := h.reg.FindClient(sender, *req.ClientID)
	if c == nil {
		h.log.Debug("acceptJoin for unknown client", "client_id", *req.ClientID)
		return nil
	}
	return []delivery{{to: c.Conn, msg: protocol.NewAcceptJoin(g.ID)}}
}

func (h *Hub) handleRejectJoin(sender Conn, req protocol.Request) []delivery {
	g, c := h.reg.FindClient(sender, *req.ClientID)
	if c == nil {
		h.log.Debug("rejectJoin for unknown client", "client_id", *req.ClientID)
		return nil
	}
	return []delivery{{to: c.Conn, msg: protocol.NewRejectJoin(g.ID, req.Reason)}}
}

// handleSignaling relays an opaque WebRTC payload. The direction is decided
// by the presence of clientId: a host names the client it is talking to, a
// client leaves it out and the payload goes to its own game's host, stamped
// with the client's id. Unresolvable targets are dropped silently; failing
// loudly on stale ids would only punish the surviving peer.
func (h *Hub) handleSignaling(sender Conn, req protocol.Request) []delivery {
	if req.ClientID != nil {
		g, c := h.reg.FindClient(sender, *req.ClientID)
		if c == nil {
			h.metrics.Inc(metrics.SignalsDropped)
			h.log.Debug("signaling to unknown client", "client_id", *req.ClientID)
			return nil
		}
		h.metrics.Inc(metrics.SignalsRelayed)
		return []delivery{{to: c.Conn, msg: protocol.NewSignal(g.ID, "", req.Description, req.Candidate)}}
	}

	g := h.reg.FindByClient(sender)
	if g == nil {
		h.metrics.Inc(metrics.SignalsDropped)
		h.log.Debug("signaling from a connection that joined nothing")
		return nil
	}
	cl := g.clientByConn(sender)
	h.metrics.Inc(metrics.SignalsRelayed)
	return []delivery{{to: g.Host, msg: protocol.NewSignal(g.ID, cl.ID, req.Description, req.Candidate)}}
}

func (h *Hub) deliver(d delivery) {
	if err := d.to.Send(protocol.Encode(d.msg)); err != nil {
		h.log.Debug("send failed", "err", err)
	}
	if d.closeConn {
		d.to.Close()
	}
}
