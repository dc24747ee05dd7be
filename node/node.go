package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/selvany/otoha/sys"
)

const (
	MsgNodeRequestFail   = "node request failed: %w"
	MsgNodeStatus        = "node returned status %d: %s"
	MsgNodeNoSession     = "node session is not established yet"
	MsgNodeResolve       = "Resolving: %s"
	MsgNodePlayerDestroy = "Destroyed player for guild %s"
)

const resolveTimeout = 10 * time.Second

type Options struct {
	Host     string
	Port     int
	Password string
	Secure   bool
}

// Node talks to one external audio node. REST calls go through here; the
// websocket event stream lives in socket.go and feeds the sessionID.
type Node struct {
	restURL  string
	wsURL    string
	password string
	http     *http.Client

	// loadtracks hits the node's upstream sources, keep it polite
	resolveLimiter *rate.Limiter

	mu        sync.RWMutex
	userID    snowflake.ID
	sessionID string
	listener  EventListener

	players   map[snowflake.ID]*Player
	playersMu sync.Mutex

	stop chan struct{}
}

func New(opts Options) *Node {
	scheme, wsScheme := "http", "ws"
	if opts.Secure {
		scheme, wsScheme = "https", "wss"
	}
	return &Node{
		restURL:        fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port),
		wsURL:          fmt.Sprintf("%s://%s:%d/v4/websocket", wsScheme, opts.Host, opts.Port),
		password:       opts.Password,
		http:           &http.Client{Timeout: 30 * time.Second},
		resolveLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		players:        map[snowflake.ID]*Player{},
		stop:           make(chan struct{}),
	}
}

// SetListener registers the consumer of player lifecycle events. Must be
// called before the socket daemon starts.
func (n *Node) SetListener(l EventListener) {
	n.mu.Lock()
	n.listener = l
	n.mu.Unlock()
}

func (n *Node) SetUserID(id snowflake.ID) {
	n.mu.Lock()
	n.userID = id
	n.mu.Unlock()
}

func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

func (n *Node) setSessionID(id string) {
	n.mu.Lock()
	n.sessionID = id
	n.mu.Unlock()
}

// Resolve loads tracks for an identifier via /v4/loadtracks.
func (n *Node) Resolve(ctx context.Context, identifier string) (*LoadResult, error) {
	if err := n.resolveLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	sys.LogNode(MsgNodeResolve, identifier)

	endpoint := n.restURL + "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", n.password)

	res, err := n.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf(MsgNodeRequestFail, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf(MsgNodeStatus, res.StatusCode, string(body))
	}

	var result LoadResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PlayerTrack is the "track" block of a player update. A present block with a
// nil Encoded stops the current track; an absent block leaves it untouched.
type PlayerTrack struct {
	Encoded *string `json:"encoded"`
}

type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

type PlayerUpdate struct {
	Track  omit.Omit[PlayerTrack] `json:"track,omitzero"`
	Volume omit.Omit[int]         `json:"volume,omitzero"`
	Paused omit.Omit[bool]        `json:"paused,omitzero"`
	Voice  omit.Omit[VoiceState]  `json:"voice,omitzero"`
}

func (n *Node) UpdatePlayer(ctx context.Context, guildID snowflake.ID, update PlayerUpdate) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return fmt.Errorf(MsgNodeNoSession)
	}

	body, err := json.Marshal(update)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v4/sessions/%s/players/%s?noReplace=false", n.restURL, sessionID, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.password)
	req.Header.Set("Content-Type", "application/json")

	res, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf(MsgNodeRequestFail, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf(MsgNodeStatus, res.StatusCode, string(msg))
	}
	return nil
}

func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	sessionID := n.SessionID()
	if sessionID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/v4/sessions/%s/players/%s", n.restURL, sessionID, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.password)

	res, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf(MsgNodeRequestFail, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 && res.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf(MsgNodeStatus, res.StatusCode, string(msg))
	}

	n.playersMu.Lock()
	delete(n.players, guildID)
	n.playersMu.Unlock()

	sys.LogNode(MsgNodePlayerDestroy, guildID)
	return nil
}
