package proc

import (
	"context"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/selvany/otoha/node"
	"github.com/selvany/otoha/sys"
)

const (
	MsgEngineWired      = "Music engine wired to node %s:%d"
	MsgVoiceJoinFail    = "Failed to join voice channel %s: %v"
	MsgVoiceSessionPush = "Forwarding voice session for guild %s"
)

var (
	onceNode  sync.Once
	audioNode *node.Node
)

// GetAudioNode returns the process-wide node client. Valid after config load.
func GetAudioNode() *node.Node {
	onceNode.Do(func() {
		cfg := sys.GlobalConfig
		audioNode = node.New(node.Options{
			Host:     cfg.LavalinkHost,
			Port:     cfg.LavalinkPort,
			Password: cfg.LavalinkPassword,
			Secure:   cfg.LavalinkSecure,
		})
	})
	return audioNode
}

// nodeEventAdapter translates node callbacks into engine transitions.
type nodeEventAdapter struct {
	system *MusicSystem
}

func (a *nodeEventAdapter) OnTrackEnd(event node.TrackEndEvent) {
	a.system.HandleTrackEnd(sys.AppContext, event.GuildID, event.Reason)
}

func (a *nodeEventAdapter) OnTrackException(event node.TrackExceptionEvent) {
	a.system.HandleTrackException(sys.AppContext, event.GuildID, event.Exception)
}

func (a *nodeEventAdapter) OnTrackStuck(event node.TrackStuckEvent) {
	a.system.HandleTrackStuck(sys.AppContext, event.GuildID, event.ThresholdMs)
}

func (a *nodeEventAdapter) OnSocketClosed(event node.WebSocketClosedEvent) {
	a.system.HandleSocketClosed(sys.AppContext, event.GuildID, event.Code)
}

// clientVoiceGateway joins and leaves voice through the Discord gateway.
type clientVoiceGateway struct {
	mu     sync.RWMutex
	client *bot.Client
}

func (g *clientVoiceGateway) setClient(client bot.Client) {
	g.mu.Lock()
	g.client = &client
	g.mu.Unlock()
}

func (g *clientVoiceGateway) get() *bot.Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

func (g *clientVoiceGateway) Connect(ctx context.Context, guildID snowflake.ID, channelID snowflake.ID) error {
	client := g.get()
	if client == nil {
		return ErrVoiceTargetUnavailable
	}

	ch, err := client.Rest.GetChannel(channelID)
	if err != nil {
		return ErrVoiceTargetUnavailable
	}
	if _, ok := ch.(discord.GuildAudioChannel); !ok {
		return ErrVoiceTargetUnavailable
	}

	if err := client.UpdateVoiceState(ctx, guildID, &channelID, false, true); err != nil {
		sys.LogMusicError(MsgVoiceJoinFail, channelID, err)
		return ErrVoiceTargetUnavailable
	}
	return nil
}

func (g *clientVoiceGateway) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	client := g.get()
	if client == nil {
		return nil
	}
	return client.UpdateVoiceState(ctx, guildID, nil, false, false)
}

var voiceGateway = &clientVoiceGateway{}

func init() {
	sys.OnClientReady(func(ctx context.Context, client bot.Client) {
		cfg := sys.GlobalConfig
		n := GetAudioNode()
		n.SetUserID(client.ApplicationID)

		system := GetMusicManager()
		n.SetListener(&nodeEventAdapter{system: system})

		voiceGateway.setClient(client)
		system.Configure(n, func(guildID snowflake.ID) PlayerHandle {
			return n.Player(guildID)
		}, voiceGateway)

		sys.LogMusic(MsgEngineWired, cfg.LavalinkHost, cfg.LavalinkPort)
	})

	// Forward the Discord voice handshake halves to the node player.
	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		client := event.Client()
		if event.VoiceState.UserID != client.ApplicationID {
			return
		}
		if event.VoiceState.ChannelID == nil {
			return
		}
		sys.LogDebug(MsgVoiceSessionPush, event.VoiceState.GuildID)
		GetAudioNode().
			Player(event.VoiceState.GuildID).
			OnVoiceStateUpdate(sys.AppContext, event.VoiceState.SessionID)
	})

	sys.RegisterVoiceServerUpdateHandler(func(event *events.VoiceServerUpdate) {
		if event.Endpoint == nil {
			return
		}
		GetAudioNode().
			Player(event.GuildID).
			OnVoiceServerUpdate(sys.AppContext, event.Token, *event.Endpoint)
	})

	// Node socket daemon: connects once the client is ready and the node has
	// a user ID to present.
	sys.RegisterDaemon(sys.LogNode, func(ctx context.Context) (bool, func(), func()) {
		n := GetAudioNode()
		return true, func() { n.RunSocket(ctx) }, n.CloseSocket
	})
}
