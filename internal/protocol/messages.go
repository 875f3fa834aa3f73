package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// RequestType discriminates inbound messages.
type RequestType string

const (
	RequestCreateGame      RequestType = "createGame"
	RequestUpdateGameInfo  RequestType = "updateGameInfo"
	RequestListGames       RequestType = "listGames"
	RequestJoinGame        RequestType = "joinGame"
	RequestAcceptJoin      RequestType = "acceptJoin"
	RequestRejectJoin      RequestType = "rejectJoin"
	RequestWebRTCSignaling RequestType = "webrtcSignaling"
)

// Request is the union of all inbound message shapes. Which fields are
// meaningful depends on Type; validate() rejects anything that doesn't match
// exactly one recognized shape.
//
// Description and Candidate are opaque WebRTC payloads. The relay never
// inspects them, it only ferries them between host and client.
type Request struct {
	Type RequestType `json:"type"`

	// createGame / updateGameInfo
	ServerName       string  `json:"serverName,omitempty"`
	PlayerAmount     *uint32 `json:"playerAmount,omitempty"`
	MaxPlayers       *uint32 `json:"maxPlayers,omitempty"`
	RequiresPassword *bool   `json:"requiresPassword,omitempty"`

	// createGame (optional requested id) / joinGame / acceptJoin / rejectJoin
	GameID string `json:"gameId,omitempty"`

	// joinGame
	Password *string `json:"password,omitempty"`

	// acceptJoin / rejectJoin; for webrtcSignaling its presence selects the
	// host-to-client direction.
	ClientID *string `json:"clientId,omitempty"`

	// rejectJoin
	Reason string `json:"reason,omitempty"`

	// webrtcSignaling
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

// ParseRequest decodes a single inbound message. Unknown fields, trailing
// data, unrecognized types, and shape mismatches are all decode failures;
// none of them panic.
func ParseRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return Request{}, err
	}
	if err := req.validate(); err != nil {
		return Request{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Request{}, fmt.Errorf("unexpected trailing data")
	}
	return req, nil
}

func (r Request) validate() error {
	switch r.Type {
	case RequestCreateGame:
		if r.ServerName == "" {
			return fmt.Errorf("createGame message missing serverName")
		}
		if r.MaxPlayers == nil {
			return fmt.Errorf("createGame message missing maxPlayers")
		}
		if r.PlayerAmount != nil || r.Password != nil || r.ClientID != nil || r.Reason != "" || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("createGame message has unexpected fields")
		}
	case RequestUpdateGameInfo:
		if r.ServerName == "" {
			return fmt.Errorf("updateGameInfo message missing serverName")
		}
		if r.PlayerAmount == nil {
			return fmt.Errorf("updateGameInfo message missing playerAmount")
		}
		if r.MaxPlayers == nil {
			return fmt.Errorf("updateGameInfo message missing maxPlayers")
		}
		if r.GameID != "" || r.Password != nil || r.ClientID != nil || r.Reason != "" || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("updateGameInfo message has unexpected fields")
		}
	case RequestListGames:
		if r.ServerName != "" || r.PlayerAmount != nil || r.MaxPlayers != nil || r.RequiresPassword != nil || r.GameID != "" || r.Password != nil || r.ClientID != nil || r.Reason != "" || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("listGames message has unexpected fields")
		}
	case RequestJoinGame:
		if r.GameID == "" {
			return fmt.Errorf("joinGame message missing gameId")
		}
		if r.ServerName != "" || r.PlayerAmount != nil || r.MaxPlayers != nil || r.RequiresPassword != nil || r.ClientID != nil || r.Reason != "" || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("joinGame message has unexpected fields")
		}
	case RequestAcceptJoin:
		if r.GameID == "" {
			return fmt.Errorf("acceptJoin message missing gameId")
		}
		if r.ClientID == nil || *r.ClientID == "" {
			return fmt.Errorf("acceptJoin message missing clientId")
		}
		if r.ServerName != "" || r.PlayerAmount != nil || r.MaxPlayers != nil || r.RequiresPassword != nil || r.Password != nil || r.Reason != "" || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("acceptJoin message has unexpected fields")
		}
	case RequestRejectJoin:
		if r.GameID == "" {
			return fmt.Errorf("rejectJoin message missing gameId")
		}
		if r.ClientID == nil || *r.ClientID == "" {
			return fmt.Errorf("rejectJoin message missing clientId")
		}
		if r.ServerName != "" || r.PlayerAmount != nil || r.MaxPlayers != nil || r.RequiresPassword != nil || r.Password != nil || r.Description != nil || r.Candidate != nil {
			return fmt.Errorf("rejectJoin message has unexpected fields")
		}
	case RequestWebRTCSignaling:
		if r.ClientID != nil && *r.ClientID == "" {
			return fmt.Errorf("webrtcSignaling message has empty clientId")
		}
		if r.ServerName != "" || r.PlayerAmount != nil || r.MaxPlayers != nil || r.RequiresPassword != nil || r.GameID != "" || r.Password != nil || r.Reason != "" {
			return fmt.Errorf("webrtcSignaling message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", r.Type)
	}
	return nil
}

// Response is implemented by every outbound message shape.
type Response interface {
	responseType() string
}

type Error struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewError(reason string) Error {
	return Error{Type: "error", Reason: reason}
}

type GameCreated struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

func NewGameCreated(gameID string) GameCreated {
	return GameCreated{Type: "gameCreated", GameID: gameID}
}

type GameListEntry struct {
	GameID           string `json:"gameId"`
	ServerName       string `json:"serverName"`
	PlayerAmount     uint32 `json:"playerAmount"`
	MaxPlayers       uint32 `json:"maxPlayers"`
	RequiresPassword bool   `json:"requiresPassword"`
}

type GameList struct {
	Type  string          `json:"type"`
	Games []GameListEntry `json:"games"`
}

func NewGameList(games []GameListEntry) GameList {
	if games == nil {
		games = []GameListEntry{}
	}
	return GameList{Type: "gameList", Games: games}
}

// NewClient notifies a host about a join request. Password is null when the
// joiner supplied none; hosts distinguish "no password" from "empty password".
type NewClient struct {
	Type     string  `json:"type"`
	GameID   string  `json:"gameId"`
	ClientID string  `json:"clientId"`
	Password *string `json:"password"`
}

func NewNewClient(gameID, clientID string, password *string) NewClient {
	return NewClient{Type: "newClient", GameID: gameID, ClientID: clientID, Password: password}
}

type AcceptJoin struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
}

func NewAcceptJoin(gameID string) AcceptJoin {
	return AcceptJoin{Type: "acceptJoin", GameID: gameID}
}

type RejectJoin struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
	Reason string `json:"reason"`
}

func NewRejectJoin(gameID, reason string) RejectJoin {
	return RejectJoin{Type: "rejectJoin", GameID: gameID, Reason: reason}
}

// Signal is a relayed webrtcSignaling payload. ClientID is set only in the
// client-to-host direction, where it identifies which client is talking.
type Signal struct {
	Type        string          `json:"type"`
	GameID      string          `json:"gameId"`
	ClientID    string          `json:"clientId,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
}

func NewSignal(gameID, clientID string, description, candidate json.RawMessage) Signal {
	return Signal{Type: "webrtcSignaling", GameID: gameID, ClientID: clientID, Description: description, Candidate: candidate}
}

type ClientVanished struct {
	Type     string `json:"type"`
	GameID   string `json:"gameId"`
	ClientID string `json:"clientId"`
}

func NewClientVanished(gameID, clientID string) ClientVanished {
	return ClientVanished{Type: "clientVanished", GameID: gameID, ClientID: clientID}
}

func (Error) responseType() string          { return "error" }
func (GameCreated) responseType() string    { return "gameCreated" }
func (GameList) responseType() string       { return "gameList" }
func (NewClient) responseType() string      { return "newClient" }
func (AcceptJoin) responseType() string     { return "acceptJoin" }
func (RejectJoin) responseType() string     { return "rejectJoin" }
func (Signal) responseType() string         { return "webrtcSignaling" }
func (ClientVanished) responseType() string { return "clientVanished" }

// Encode serializes an outbound message. All response shapes marshal without
// error; a failure here indicates a programming bug, so it is reported as a
// generic error message rather than propagated.
func Encode(msg Response) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(NewError("internal error"))
	}
	return data
}
