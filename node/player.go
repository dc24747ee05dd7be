package node

import (
	"context"
	"sync"

	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// Player is the per-guild handle onto the node. It caches the Discord voice
// credentials and pushes them to the node once both halves have arrived.
type Player struct {
	node    *Node
	guildID snowflake.ID

	mu             sync.Mutex
	paused         bool
	voiceToken     string
	voiceEndpoint  string
	voiceSessionID string
}

// Player returns the handle for a guild, creating it on first use.
func (n *Node) Player(guildID snowflake.ID) *Player {
	n.playersMu.Lock()
	defer n.playersMu.Unlock()

	if p, ok := n.players[guildID]; ok {
		return p
	}
	p := &Player{node: n, guildID: guildID}
	n.players[guildID] = p
	return p
}

func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

func (p *Player) Play(ctx context.Context, encoded string, volume int) error {
	err := p.node.UpdatePlayer(ctx, p.guildID, PlayerUpdate{
		Track:  omit.New(PlayerTrack{Encoded: &encoded}),
		Volume: omit.New(volume),
		Paused: omit.New(false),
	})
	if err == nil {
		p.mu.Lock()
		p.paused = false
		p.mu.Unlock()
	}
	return err
}

// Stop sends a present-but-null track, which halts playback without
// destroying the player.
func (p *Player) Stop(ctx context.Context) error {
	return p.node.UpdatePlayer(ctx, p.guildID, PlayerUpdate{
		Track: omit.New(PlayerTrack{Encoded: nil}),
	})
}

func (p *Player) SetVolume(ctx context.Context, volume int) error {
	return p.node.UpdatePlayer(ctx, p.guildID, PlayerUpdate{
		Volume: omit.New(volume),
	})
}

func (p *Player) SetPaused(ctx context.Context, paused bool) error {
	err := p.node.UpdatePlayer(ctx, p.guildID, PlayerUpdate{
		Paused: omit.New(paused),
	})
	if err == nil {
		p.mu.Lock()
		p.paused = paused
		p.mu.Unlock()
	}
	return err
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Destroy(ctx context.Context) error {
	return p.node.DestroyPlayer(ctx, p.guildID)
}

// OnVoiceServerUpdate stores the token/endpoint half of the voice handshake.
func (p *Player) OnVoiceServerUpdate(ctx context.Context, token string, endpoint string) {
	p.mu.Lock()
	p.voiceToken = token
	p.voiceEndpoint = endpoint
	p.mu.Unlock()
	p.pushVoiceState(ctx)
}

// OnVoiceStateUpdate stores the session half of the voice handshake.
func (p *Player) OnVoiceStateUpdate(ctx context.Context, sessionID string) {
	p.mu.Lock()
	p.voiceSessionID = sessionID
	p.mu.Unlock()
	p.pushVoiceState(ctx)
}

func (p *Player) pushVoiceState(ctx context.Context) {
	p.mu.Lock()
	ready := p.voiceToken != "" && p.voiceEndpoint != "" && p.voiceSessionID != ""
	vs := VoiceState{
		Token:     p.voiceToken,
		Endpoint:  p.voiceEndpoint,
		SessionID: p.voiceSessionID,
	}
	p.mu.Unlock()

	if !ready {
		return
	}
	_ = p.node.UpdatePlayer(ctx, p.guildID, PlayerUpdate{
		Voice: omit.New(vs),
	})
}
