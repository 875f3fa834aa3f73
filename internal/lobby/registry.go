package lobby

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrGameIDInUse   = errors.New("game id already in use")
	ErrAlreadyInGame = errors.New("connection already belongs to a game")
)

// GameInfo is host-advertised metadata. The server stores whatever the host
// reports; PlayerAmount in particular is not reconciled against the actual
// client count.
type GameInfo struct {
	ServerName       string
	PlayerAmount     uint32
	MaxPlayers       uint32
	RequiresPassword bool
}

// Client is a peer that joined a game. IDs are unique within their game;
// two different games may both contain a client "X".
type Client struct {
	ID   string
	Conn Conn
}

// Game is one advertised session: exactly one host for its whole lifetime,
// zero or more clients in join order.
type Game struct {
	ID      string
	Host    Conn
	Clients []Client
	Info    GameInfo
}

func (g *Game) clientByID(id string) *Client {
	for i := range g.Clients {
		if g.Clients[i].ID == id {
			return &g.Clients[i]
		}
	}
	return nil
}

func (g *Game) clientByConn(c Conn) *Client {
	for i := range g.Clients {
		if g.Clients[i].Conn == c {
			return &g.Clients[i]
		}
	}
	return nil
}

// Registry holds every active game. It is not safe for concurrent use; the
// Hub serializes all access under one mutex so that no handler ever observes
// a half-applied mutation.
type Registry struct {
	games []*Game
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Games returns the active games in creation order.
func (r *Registry) Games() []*Game {
	return r.games
}

func (r *Registry) FindByID(id string) *Game {
	id = NormalizeGameID(id)
	for _, g := range r.games {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (r *Registry) FindByHost(c Conn) *Game {
	for _, g := range r.games {
		if g.Host == c {
			return g
		}
	}
	return nil
}

func (r *Registry) FindByClient(c Conn) *Game {
	for _, g := range r.games {
		if g.clientByConn(c) != nil {
			return g
		}
	}
	return nil
}

// FindClient resolves a client id as seen from a host's own game. Hosts can
// only address clients inside the game they host, which doubles as the
// authorization check for accept/reject/signaling.
func (r *Registry) FindClient(host Conn, clientID string) (*Game, *Client) {
	g := r.FindByHost(host)
	if g == nil {
		return nil, nil
	}
	c := g.clientByID(clientID)
	if c == nil {
		return nil, nil
	}
	return g, c
}

// Create registers a new game hosted by host. A requested id is normalized
// and must be free; an empty requestedID means "pick one for me", where the
// random id is re-checked against active games rather than assumed unique.
func (r *Registry) Create(requestedID string, info GameInfo, host Conn) (*Game, error) {
	if r.FindByHost(host) != nil || r.FindByClient(host) != nil {
		return nil, ErrAlreadyInGame
	}

	id := NormalizeGameID(requestedID)
	if id != "" {
		if r.FindByID(id) != nil {
			return nil, ErrGameIDInUse
		}
	} else {
		for {
			generated, err := newGameID()
			if err != nil {
				return nil, err
			}
			if r.FindByID(generated) == nil {
				id = generated
				break
			}
		}
	}

	g := &Game{ID: id, Host: host, Info: info}
	r.games = append(r.games, g)
	return g, nil
}

// UpdateInfo replaces the advertised metadata on the game hosted by host.
// Reports whether host actually hosts a game.
func (r *Registry) UpdateInfo(host Conn, info GameInfo) bool {
	g := r.FindByHost(host)
	if g == nil {
		return false
	}
	g.Info = info
	return true
}

// Join adds c to the game with the given id (case-insensitively). The new
// client gets an id unique within that game.
func (r *Registry) Join(gameID string, c Conn) (*Game, *Client, error) {
	if r.FindByHost(c) != nil || r.FindByClient(c) != nil {
		return nil, nil, ErrAlreadyInGame
	}
	g := r.FindByID(gameID)
	if g == nil {
		return nil, nil, ErrGameNotFound
	}

	clientID := uuid.NewString()
	for g.clientByID(clientID) != nil {
		clientID = uuid.NewString()
	}
	g.Clients = append(g.Clients, Client{ID: clientID, Conn: c})
	return g, g.clientByID(clientID), nil
}

// RemoveGame drops a game and all its clients. Pure removal: notifying and
// closing the affected connections is the Hub's job.
func (r *Registry) RemoveGame(id string) {
	id = NormalizeGameID(id)
	for i, g := range r.games {
		if g.ID == id {
			r.games = append(r.games[:i], r.games[i+1:]...)
			return
		}
	}
}

// RemoveClient drops a single client from a game, leaving the game and its
// other clients untouched.
func (r *Registry) RemoveClient(gameID, clientID string) {
	g := r.FindByID(gameID)
	if g == nil {
		return
	}
	for i := range g.Clients {
		if g.Clients[i].ID == clientID {
			g.Clients = append(g.Clients[:i], g.Clients[i+1:]...)
			return
		}
	}
}

// Conns returns every connection the registry currently knows about: each
// game's host followed by its clients.
func (r *Registry) Conns() []Conn {
	var out []Conn
	for _, g := range r.games {
		out = append(out, g.Host)
		for _, c := range g.Clients {
			out = append(out, c.Conn)
		}
	}
	return out
}
