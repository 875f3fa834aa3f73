package signaling

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// TestWebRTCHandshakeThroughRelay runs the relay's whole reason to exist:
// two real peer connections negotiate over the lobby's signaling channel and
// end up with a working data channel that never touches the relay.
func TestWebRTCHandshakeThroughRelay(t *testing.T) {
	if testing.Short() {
		t.Skip("webrtc handshake test is slow")
	}

	wsURL, _ := newTestServer(t, Config{})

	hostWS := dial(t, wsURL)
	sendText(t, hostWS, `{"type":"createGame","serverName":"e2e","maxPlayers":2}`)
	gameID := readMessage(t, hostWS)["gameId"].(string)

	clientWS := dial(t, wsURL)
	sendText(t, clientWS, `{"type":"joinGame","gameId":"`+gameID+`"}`)
	newClient := readMessage(t, hostWS)
	clientID := newClient["clientId"].(string)
	sendText(t, hostWS, `{"type":"acceptJoin","gameId":"`+gameID+`","clientId":"`+clientID+`"}`)
	if msg := readMessage(t, clientWS); msg["type"] != "acceptJoin" {
		t.Fatalf("client got %v, want acceptJoin", msg)
	}

	// Loopback-only; no STUN needed.
	hostPC, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("host peer connection: %v", err)
	}
	defer hostPC.Close()
	clientPC, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("client peer connection: %v", err)
	}
	defer clientPC.Close()

	hostPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, _ := json.Marshal(c.ToJSON())
		sendSignal(t, hostWS, `{"type":"webrtcSignaling","clientId":"`+clientID+`","candidate":`+string(payload)+`}`)
	})
	clientPC.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, _ := json.Marshal(c.ToJSON())
		sendSignal(t, clientWS, `{"type":"webrtcSignaling","candidate":`+string(payload)+`}`)
	})

	received := make(chan string, 1)
	hostPC.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			select {
			case received <- string(msg.Data):
			default:
			}
		})
	})

	dc, err := clientPC.CreateDataChannel("game", nil)
	if err != nil {
		t.Fatalf("create data channel: %v", err)
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	// Host side: apply whatever the relay forwards.
	go pumpSignals(t, hostWS, hostPC, func(desc webrtc.SessionDescription) {
		if err := hostPC.SetRemoteDescription(desc); err != nil {
			t.Errorf("host set remote: %v", err)
			return
		}
		answer, err := hostPC.CreateAnswer(nil)
		if err != nil {
			t.Errorf("create answer: %v", err)
			return
		}
		if err := hostPC.SetLocalDescription(answer); err != nil {
			t.Errorf("host set local: %v", err)
			return
		}
		payload, _ := json.Marshal(answer)
		sendSignal(t, hostWS, `{"type":"webrtcSignaling","clientId":"`+clientID+`","description":`+string(payload)+`}`)
	})
	go pumpSignals(t, clientWS, clientPC, func(desc webrtc.SessionDescription) {
		if err := clientPC.SetRemoteDescription(desc); err != nil {
			t.Errorf("client set remote: %v", err)
		}
	})

	offer, err := clientPC.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := clientPC.SetLocalDescription(offer); err != nil {
		t.Fatalf("client set local: %v", err)
	}
	payload, _ := json.Marshal(offer)
	sendSignal(t, clientWS, `{"type":"webrtcSignaling","description":`+string(payload)+`}`)

	select {
	case <-opened:
	case <-time.After(15 * time.Second):
		t.Fatalf("data channel never opened")
	}

	if err := dc.SendText("hello through webrtc"); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-received:
		if got != "hello through webrtc" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message never arrived")
	}
}

// signalWriteLocks serializes writes per socket: pion fires callbacks on its
// own goroutines and gorilla allows one concurrent writer.
var signalWriteLocks sync.Map // *websocket.Conn -> *sync.Mutex

func sendSignal(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	muAny, _ := signalWriteLocks.LoadOrStore(c, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Logf("signal write: %v", err)
	}
}

// pumpSignals reads relayed messages and feeds descriptions and candidates
// into pc until the socket closes. Candidates that arrive before the remote
// description are held back, since AddICECandidate rejects them until then.
func pumpSignals(t *testing.T, c *websocket.Conn, pc *webrtc.PeerConnection, onDesc func(webrtc.SessionDescription)) {
	var pending []webrtc.ICECandidateInit
	addCandidate := func(cand webrtc.ICECandidateInit) {
		if pc.RemoteDescription() == nil {
			pending = append(pending, cand)
			return
		}
		for _, p := range pending {
			if err := pc.AddICECandidate(p); err != nil {
				t.Logf("add candidate: %v", err)
			}
		}
		pending = nil
		if err := pc.AddICECandidate(cand); err != nil {
			t.Logf("add candidate: %v", err)
		}
	}

	for {
		_ = c.SetReadDeadline(time.Now().Add(20 * time.Second))
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type        string          `json:"type"`
			Description json.RawMessage `json:"description"`
			Candidate   json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "webrtcSignaling" {
			continue
		}
		if len(msg.Description) > 0 {
			var desc webrtc.SessionDescription
			if err := json.Unmarshal(msg.Description, &desc); err != nil {
				t.Errorf("bad description: %v", err)
				continue
			}
			onDesc(desc)
			for _, p := range pending {
				if err := pc.AddICECandidate(p); err != nil {
					t.Logf("add candidate: %v", err)
				}
			}
			pending = nil
		}
		if len(msg.Candidate) > 0 {
			var cand webrtc.ICECandidateInit
			if err := json.Unmarshal(msg.Candidate, &cand); err != nil {
				t.Errorf("bad candidate: %v", err)
				continue
			}
			addCandidate(cand)
		}
	}
}
