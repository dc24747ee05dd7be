package node

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"

	"github.com/selvany/otoha/sys"
)

const (
	MsgSocketConnecting  = "Connecting to %s..."
	MsgSocketReady       = "Session ready (ID: %s, resumed: %t)"
	MsgSocketConnectFail = "Connection failed: %v. Retrying in %s..."
	MsgSocketReadFail    = "Read failed: %v. Reconnecting..."
	MsgSocketClosed      = "Socket closed."
	MsgSocketBadPayload  = "Dropping malformed payload: %v"
	MsgSocketNoListener  = "Event received before listener was registered"
)

const clientName = "otoha/1.0"

// RunSocket connects to the node's websocket and dispatches events until ctx
// is cancelled. Reconnects with capped exponential backoff.
func (n *Node) RunSocket(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		default:
		}

		n.mu.RLock()
		userID := n.userID
		n.mu.RUnlock()

		header := http.Header{}
		header.Set("Authorization", n.password)
		header.Set("User-Id", userID.String())
		header.Set("Client-Name", clientName)

		sys.LogNode(MsgSocketConnecting, n.wsURL)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, n.wsURL, header)
		if err != nil {
			sys.LogNodeWarn(MsgSocketConnectFail, err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-n.stop:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		n.readLoop(ctx, conn)
		_ = conn.Close()
	}
}

// CloseSocket stops the socket daemon permanently.
func (n *Node) CloseSocket() {
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
}

func (n *Node) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-n.stop:
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				sys.LogNode(MsgSocketClosed)
			case <-n.stop:
				sys.LogNode(MsgSocketClosed)
			default:
				sys.LogNodeWarn(MsgSocketReadFail, err)
			}
			return
		}
		n.handlePayload(data)
	}
}

type socketPayload struct {
	Op        string       `json:"op"`
	SessionID string       `json:"sessionId"`
	Resumed   bool         `json:"resumed"`
	Type      string       `json:"type"`
	GuildID   snowflake.ID `json:"guildId"`
	Track     Track        `json:"track"`
	Exception Exception    `json:"exception"`
	Threshold int64        `json:"thresholdMs"`
}

func (n *Node) handlePayload(data []byte) {
	var p socketPayload
	if err := json.Unmarshal(data, &p); err != nil {
		sys.LogNodeWarn(MsgSocketBadPayload, err)
		return
	}

	switch p.Op {
	case "ready":
		n.setSessionID(p.SessionID)
		sys.LogNode(MsgSocketReady, p.SessionID, p.Resumed)
	case "event":
		n.dispatchEvent(p, data)
	case "playerUpdate", "stats":
		// position/state telemetry, nothing to do
	}
}

func (n *Node) dispatchEvent(p socketPayload, raw []byte) {
	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	if listener == nil {
		sys.LogNodeWarn(MsgSocketNoListener)
		return
	}

	switch p.Type {
	case "TrackEndEvent":
		// "reason" is overloaded across event types, decode per event
		var end struct {
			Reason EndReason `json:"reason"`
		}
		_ = json.Unmarshal(raw, &end)
		listener.OnTrackEnd(TrackEndEvent{
			GuildID: p.GuildID,
			Track:   p.Track,
			Reason:  end.Reason,
		})
	case "TrackExceptionEvent":
		listener.OnTrackException(TrackExceptionEvent{
			GuildID:   p.GuildID,
			Track:     p.Track,
			Exception: p.Exception,
		})
	case "TrackStuckEvent":
		listener.OnTrackStuck(TrackStuckEvent{
			GuildID:     p.GuildID,
			Track:       p.Track,
			ThresholdMs: p.Threshold,
		})
	case "WebSocketClosedEvent":
		var closed struct {
			Code     int    `json:"code"`
			Reason   string `json:"reason"`
			ByRemote bool   `json:"byRemote"`
		}
		_ = json.Unmarshal(raw, &closed)
		listener.OnSocketClosed(WebSocketClosedEvent{
			GuildID:  p.GuildID,
			Code:     closed.Code,
			Reason:   closed.Reason,
			ByRemote: closed.ByRemote,
		})
	}
}
