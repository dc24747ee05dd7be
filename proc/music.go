package proc

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"github.com/selvany/otoha/node"
	"github.com/selvany/otoha/sys"
)

const (
	MsgMusicPlayFail      = "Failed to play track in guild %s, skipping: %v"
	MsgMusicRetryExceeded = "Giving up on guild %s after %d failed play attempts"
	MsgMusicException     = "Player exception in guild %s: %s"
	MsgMusicStuck         = "Track stuck in guild %s, threshold %dms"
	MsgMusicSocketClosed  = "Voice socket closed for guild %s (code %d), dropping queue"
	MsgMusicTeardown      = "Queue for guild %s exhausted, leaving"
	MsgMusicSettingsFail  = "Failed to persist settings for guild %s: %v"
)

type LoopMode string

const (
	LoopOff   LoopMode = "off"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

var loopSequence = []LoopMode{LoopOff, LoopTrack, LoopQueue}

type Requester struct {
	ID   string
	Name string
}

type AutoplayInfo struct {
	Genre       string
	Query       string
	DisplayName string
}

type QueueItem struct {
	Track     node.Track
	Requester *Requester
	Autoplay  *AutoplayInfo
}

type AutoplayState struct {
	Enabled bool
	Genre   string
}

// PlayerHandle is the slice of the node player the engine drives.
type PlayerHandle interface {
	Play(ctx context.Context, encoded string, volume int) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	SetPaused(ctx context.Context, paused bool) error
	Paused() bool
	Destroy(ctx context.Context) error
}

// VoiceGateway joins and leaves guild voice channels on the Discord side.
type VoiceGateway interface {
	Connect(ctx context.Context, guildID snowflake.ID, channelID snowflake.ID) error
	Disconnect(ctx context.Context, guildID snowflake.ID) error
}

// GuildQueue holds one guild's playback state. Its mutex serializes every
// mutating operation end to end, node calls included, so concurrent commands
// and node events cannot interleave mid-transition.
type GuildQueue struct {
	mu sync.Mutex

	guildID        snowflake.ID
	voiceChannelID snowflake.ID
	player         PlayerHandle

	current  *QueueItem
	items    []*QueueItem
	loopMode LoopMode
	autoplay AutoplayState
	volume   int

	// set under mu when the queue is torn down; a holder of a stale
	// pointer must treat the queue as gone
	closed bool
}

// QueueSnapshot is a read-only copy handed to renderers.
type QueueSnapshot struct {
	Current        *QueueItem
	Items          []*QueueItem
	LoopMode       LoopMode
	Autoplay       AutoplayState
	Volume         int
	Paused         bool
	VoiceChannelID snowflake.ID
}

type MusicSystem struct {
	mu     sync.Mutex
	queues map[snowflake.ID]*GuildQueue

	resolver Resolver
	players  func(guildID snowflake.ID) PlayerHandle
	voice    VoiceGateway
}

var (
	onceMusic   sync.Once
	musicSystem *MusicSystem
)

// GetMusicManager returns the process-wide music system.
func GetMusicManager() *MusicSystem {
	onceMusic.Do(func() {
		musicSystem = &MusicSystem{
			queues: map[snowflake.ID]*GuildQueue{},
		}
	})
	return musicSystem
}

// Configure wires the external dependencies. Called once at startup before
// any command can reach the engine.
func (m *MusicSystem) Configure(resolver Resolver, players func(snowflake.ID) PlayerHandle, voice VoiceGateway) {
	m.mu.Lock()
	m.resolver = resolver
	m.players = players
	m.voice = voice
	m.mu.Unlock()
}

func (m *MusicSystem) lookup(guildID snowflake.ID) *GuildQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[guildID]
}

// lockLive returns the guild's queue with its mutex held, or nil when the
// guild has none. A queue that was torn down while we waited for the lock
// counts as absent.
func (m *MusicSystem) lockLive(guildID snowflake.ID) *GuildQueue {
	q := m.lookup(guildID)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	return q
}

func (m *MusicSystem) getOrCreateQueue(ctx context.Context, guildID snowflake.ID) *GuildQueue {
	m.mu.Lock()
	if q, ok := m.queues[guildID]; ok {
		m.mu.Unlock()
		return q
	}

	settings, err := sys.GetGuildMusicSettings(ctx, guildID)
	if err != nil {
		settings = sys.DefaultGuildMusicSettings()
	}

	q := &GuildQueue{
		guildID:  guildID,
		player:   m.players(guildID),
		loopMode: LoopMode(settings.LoopMode),
		autoplay: AutoplayState{Enabled: settings.AutoplayEnabled, Genre: settings.AutoplayGenre},
		volume:   clampVolume(settings.Volume),
	}
	m.queues[guildID] = q
	m.mu.Unlock()

	_ = q.player.SetVolume(ctx, q.volume)
	return q
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Enqueue resolves a query, appends the first matching track, and starts
// playback when the guild was idle. Returns the enqueued item.
func (m *MusicSystem) Enqueue(ctx context.Context, guildID snowflake.ID, channelID snowflake.ID, query string, requester *Requester) (*QueueItem, error) {
	if _, err := NormalizeIdentifier(query); err != nil {
		return nil, err
	}

	if err := m.voice.Connect(ctx, guildID, channelID); err != nil {
		return nil, err
	}

	q := m.getOrCreateQueue(ctx, guildID)
	q.mu.Lock()
	for q.closed {
		// torn down while we waited for the lock, start over on a fresh queue
		q.mu.Unlock()
		q = m.getOrCreateQueue(ctx, guildID)
		q.mu.Lock()
	}
	defer q.mu.Unlock()
	q.voiceChannelID = channelID

	tracks, err := NewTrackResolver(m.resolver).Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}

	item := &QueueItem{Track: tracks[0], Requester: requester}
	q.items = append(q.items, item)

	if q.current == nil {
		m.playNextLocked(ctx, q)
	}
	return item, nil
}

// Skip stops the current track; the resulting end event advances the queue.
func (m *MusicSystem) Skip(ctx context.Context, guildID snowflake.ID) error {
	q := m.lockLive(guildID)
	if q == nil {
		return ErrNoActiveQueue
	}
	defer q.mu.Unlock()
	return q.player.Stop(ctx)
}

// Stop clears everything and leaves voice. Missing queue is a no-op.
func (m *MusicSystem) Stop(ctx context.Context, guildID snowflake.ID) error {
	q := m.lockLive(guildID)
	if q == nil {
		return nil
	}
	defer q.mu.Unlock()

	q.items = nil
	q.current = nil
	q.loopMode = LoopOff
	q.autoplay = AutoplayState{}
	_ = q.player.Stop(ctx)
	if err := sys.DeleteGuildMusicSettings(ctx, q.guildID); err != nil {
		sys.LogMusicError(MsgMusicSettingsFail, q.guildID, err)
	}
	m.teardownLocked(ctx, q)
	return nil
}

// Shuffle randomizes pending items in place and returns a snapshot of them.
func (m *MusicSystem) Shuffle(ctx context.Context, guildID snowflake.ID) ([]*QueueItem, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return nil, ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	if len(q.items) < 2 {
		return nil, ErrInsufficientItems
	}
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
	return append([]*QueueItem(nil), q.items...), nil
}

// SetVolume clamps to [0,100], forwards to the player, and persists.
func (m *MusicSystem) SetVolume(ctx context.Context, guildID snowflake.ID, volume int) (int, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return 0, ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	q.volume = clampVolume(volume)
	if err := q.player.SetVolume(ctx, q.volume); err != nil {
		return q.volume, err
	}
	m.persistSettingsLocked(ctx, q)
	return q.volume, nil
}

// CycleLoopMode steps off → track → queue → off.
func (m *MusicSystem) CycleLoopMode(ctx context.Context, guildID snowflake.ID) (LoopMode, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return "", ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	for i, mode := range loopSequence {
		if mode == q.loopMode {
			q.loopMode = loopSequence[(i+1)%len(loopSequence)]
			m.persistSettingsLocked(ctx, q)
			return q.loopMode, nil
		}
	}
	q.loopMode = LoopTrack
	m.persistSettingsLocked(ctx, q)
	return q.loopMode, nil
}

// SetAutoplay enables or disables autoplay. Disabling always succeeds and
// clears the genre. Enabling validates the genre and falls back to the
// previous one, then random.
func (m *MusicSystem) SetAutoplay(ctx context.Context, guildID snowflake.ID, enabled bool, genre string) (AutoplayState, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return AutoplayState{}, ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	if !enabled {
		q.autoplay = AutoplayState{}
		m.persistSettingsLocked(ctx, q)
		return q.autoplay, nil
	}

	if genre != "" && !IsValidGenre(genre) {
		return q.autoplay, ErrUnknownGenre
	}

	target := genre
	if target == "" {
		target = q.autoplay.Genre
	}
	if target == "" {
		target = GenreRandom
	}

	q.autoplay = AutoplayState{Enabled: true, Genre: target}
	m.persistSettingsLocked(ctx, q)
	return q.autoplay, nil
}

// CycleAutoplayGenre steps through the catalog, enabling autoplay if it was
// off (starting at lofi, matching the button behavior).
func (m *MusicSystem) CycleAutoplayGenre(ctx context.Context, guildID snowflake.ID) (AutoplayState, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return AutoplayState{}, ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	if !q.autoplay.Enabled || q.autoplay.Genre == "" {
		q.autoplay = AutoplayState{Enabled: true, Genre: "lofi"}
		m.persistSettingsLocked(ctx, q)
		return q.autoplay, nil
	}

	keys := GenreKeys()
	for i, k := range keys {
		if k == q.autoplay.Genre {
			q.autoplay = AutoplayState{Enabled: true, Genre: keys[(i+1)%len(keys)]}
			m.persistSettingsLocked(ctx, q)
			return q.autoplay, nil
		}
	}
	q.autoplay = AutoplayState{Enabled: true, Genre: keys[0]}
	m.persistSettingsLocked(ctx, q)
	return q.autoplay, nil
}

// TogglePause flips the paused state and returns the new one.
func (m *MusicSystem) TogglePause(ctx context.Context, guildID snowflake.ID) (bool, error) {
	q := m.lockLive(guildID)
	if q == nil {
		return false, ErrNoActiveQueue
	}
	defer q.mu.Unlock()

	target := !q.player.Paused()
	if err := q.player.SetPaused(ctx, target); err != nil {
		return q.player.Paused(), err
	}
	return q.player.Paused(), nil
}

// Queue returns a point-in-time snapshot, or nil when the guild is idle.
func (m *MusicSystem) Queue(guildID snowflake.ID) *QueueSnapshot {
	q := m.lockLive(guildID)
	if q == nil {
		return nil
	}
	defer q.mu.Unlock()

	return &QueueSnapshot{
		Current:        q.current,
		Items:          append([]*QueueItem(nil), q.items...),
		LoopMode:       q.loopMode,
		Autoplay:       q.autoplay,
		Volume:         q.volume,
		Paused:         q.player.Paused(),
		VoiceChannelID: q.voiceChannelID,
	}
}

// playNextLocked picks the next item and starts it. Selection order: queue
// head, then loop-track reuse, then autoplay, then teardown. Play failures
// drop the item and retry, bounded so a poisoned queue cannot spin forever.
func (m *MusicSystem) playNextLocked(ctx context.Context, q *GuildQueue) {
	budget := len(q.items) + 2

	for attempt := 0; attempt < budget; attempt++ {
		var next *QueueItem

		if len(q.items) > 0 {
			next = q.items[0]
			q.items = q.items[1:]
		} else if q.loopMode == LoopTrack && q.current != nil {
			next = q.current
		} else if q.autoplay.Enabled {
			next = GenerateAutoplayTrack(ctx, m.resolver, q.guildID.String(), q.autoplay.Genre)
		}

		if next == nil {
			m.teardownLocked(ctx, q)
			return
		}

		q.current = next
		if err := q.player.Play(ctx, next.Track.Encoded, q.volume); err != nil {
			sys.LogMusicError(MsgMusicPlayFail, q.guildID, err)
			q.current = nil
			continue
		}
		return
	}

	sys.LogMusicError(MsgMusicRetryExceeded, q.guildID, budget)
	m.teardownLocked(ctx, q)
}

// teardownLocked destroys the player, leaves voice, and drops the guild
// entry. Caller holds q.mu; the map lock is taken afterwards, never nested
// the other way.
func (m *MusicSystem) teardownLocked(ctx context.Context, q *GuildQueue) {
	q.current = nil
	q.closed = true
	_ = q.player.Destroy(ctx)
	if m.voice != nil {
		_ = m.voice.Disconnect(ctx, q.guildID)
	}

	m.mu.Lock()
	delete(m.queues, q.guildID)
	m.mu.Unlock()

	sys.LogMusic(MsgMusicTeardown, q.guildID)
}

func (m *MusicSystem) persistSettingsLocked(ctx context.Context, q *GuildQueue) {
	err := sys.SaveGuildMusicSettings(ctx, q.guildID, sys.GuildMusicSettings{
		Volume:          q.volume,
		LoopMode:        string(q.loopMode),
		AutoplayEnabled: q.autoplay.Enabled,
		AutoplayGenre:   q.autoplay.Genre,
	})
	if err != nil {
		sys.LogMusicError(MsgMusicSettingsFail, q.guildID, err)
	}
}

// --- Node event transitions ---

// HandleTrackEnd advances the queue. Stop, replace and cleanup reasons skip
// the loop-queue push so a skipped track is not re-queued.
func (m *MusicSystem) HandleTrackEnd(ctx context.Context, guildID snowflake.ID, reason node.EndReason) {
	q := m.lockLive(guildID)
	if q == nil {
		return
	}
	defer q.mu.Unlock()

	switch reason {
	case node.EndReasonReplaced, node.EndReasonCleanup, node.EndReasonStopped:
	case node.EndReasonFinished:
		if q.loopMode == LoopQueue && q.current != nil {
			q.items = append(q.items, q.current)
		}
	}

	m.playNextLocked(ctx, q)
}

func (m *MusicSystem) HandleTrackException(ctx context.Context, guildID snowflake.ID, exception node.Exception) {
	q := m.lockLive(guildID)
	if q == nil {
		return
	}
	defer q.mu.Unlock()

	msg := "unknown"
	if exception.Message != nil {
		msg = *exception.Message
	}
	sys.LogMusicError(MsgMusicException, guildID, msg)
	m.playNextLocked(ctx, q)
}

func (m *MusicSystem) HandleTrackStuck(ctx context.Context, guildID snowflake.ID, thresholdMs int64) {
	q := m.lockLive(guildID)
	if q == nil {
		return
	}
	defer q.mu.Unlock()

	sys.LogMusicError(MsgMusicStuck, guildID, thresholdMs)
	m.playNextLocked(ctx, q)
}

// HandleSocketClosed drops the guild entry outright. The voice connection is
// gone, so there is nothing left to drive. It still queues behind the guild
// mutex so an operation already past the map lookup finishes first.
func (m *MusicSystem) HandleSocketClosed(ctx context.Context, guildID snowflake.ID, code int) {
	q := m.lockLive(guildID)
	if q == nil {
		return
	}
	defer q.mu.Unlock()

	q.closed = true
	m.mu.Lock()
	delete(m.queues, guildID)
	m.mu.Unlock()

	sys.LogMusic(MsgMusicSocketClosed, guildID, code)
}
