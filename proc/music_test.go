package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/selvany/otoha/node"
)

type fakePlayer struct {
	mu        sync.Mutex
	played    []string
	playErr   error
	stops     int
	destroys  int
	paused    bool
	volume    int
	pausedErr error
}

func (p *fakePlayer) Play(ctx context.Context, encoded string, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, encoded)
	p.volume = volume
	p.paused = false
	return nil
}

func (p *fakePlayer) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePlayer) SetVolume(ctx context.Context, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	return nil
}

func (p *fakePlayer) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pausedErr != nil {
		return p.pausedErr
	}
	p.paused = paused
	return nil
}

func (p *fakePlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakePlayer) Destroy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroys++
	return nil
}

func (p *fakePlayer) playedList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

type fakeResolver struct {
	results map[string]*node.LoadResult
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, identifier string) (*node.LoadResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	if res, ok := r.results[identifier]; ok {
		return res, nil
	}
	return &node.LoadResult{LoadType: node.LoadTypeEmpty}, nil
}

type fakeVoice struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	connectErr  error
}

func (v *fakeVoice) Connect(ctx context.Context, guildID snowflake.ID, channelID snowflake.ID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connectErr != nil {
		return v.connectErr
	}
	v.connects++
	return nil
}

func (v *fakeVoice) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnects++
	return nil
}

func mkTrack(encoded string, title string, length int64) node.Track {
	return node.Track{
		Encoded: encoded,
		Info: node.TrackInfo{
			Identifier: encoded,
			Title:      title,
			Length:     length,
			IsSeekable: true,
			SourceName: "youtube",
		},
	}
}

func searchResultFor(tracks ...node.Track) *node.LoadResult {
	return &node.LoadResult{LoadType: node.LoadTypeSearch, Tracks: tracks}
}

const (
	testGuild   = snowflake.ID(100)
	testChannel = snowflake.ID(200)
)

func newTestSystem(player *fakePlayer, resolver *fakeResolver, voice *fakeVoice) *MusicSystem {
	m := &MusicSystem{queues: map[snowflake.ID]*GuildQueue{}}
	m.Configure(resolver, func(snowflake.ID) PlayerHandle { return player }, voice)
	return m
}

func TestEnqueueStartsPlaybackWhenIdle(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:song one": searchResultFor(mkTrack("enc1", "Song One", 120000)),
	}}
	voice := &fakeVoice{}
	m := newTestSystem(player, resolver, voice)

	item, err := m.Enqueue(context.Background(), testGuild, testChannel, "song one", &Requester{ID: "1", Name: "tester"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if item.Track.Encoded != "enc1" {
		t.Errorf("unexpected track: %s", item.Track.Encoded)
	}

	snap := m.Queue(testGuild)
	if snap == nil || snap.Current == nil {
		t.Fatal("expected a current track")
	}
	if snap.Current.Track.Encoded != "enc1" {
		t.Errorf("current = %s, want enc1", snap.Current.Track.Encoded)
	}
	if len(snap.Items) != 0 {
		t.Errorf("items should be empty, got %d", len(snap.Items))
	}
	if got := player.playedList(); len(got) != 1 || got[0] != "enc1" {
		t.Errorf("played = %v", got)
	}
	if voice.connects != 1 {
		t.Errorf("connects = %d, want 1", voice.connects)
	}
}

func TestEnqueueAppendsWhilePlaying(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)

	snap := m.Queue(testGuild)
	if snap.Current.Track.Encoded != "encA" {
		t.Errorf("current = %s, want encA", snap.Current.Track.Encoded)
	}
	if len(snap.Items) != 1 || snap.Items[0].Track.Encoded != "encB" {
		t.Errorf("items = %+v", snap.Items)
	}
	if got := player.playedList(); len(got) != 1 {
		t.Errorf("second enqueue must not interrupt playback, played %v", got)
	}
}

func TestEnqueueErrors(t *testing.T) {
	player := &fakePlayer{}
	m := newTestSystem(player, &fakeResolver{}, &fakeVoice{})

	if _, err := m.Enqueue(context.Background(), testGuild, testChannel, "   ", nil); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: got %v, want ErrEmptyQuery", err)
	}
	if _, err := m.Enqueue(context.Background(), testGuild, testChannel, "nothing here", nil); !errors.Is(err, ErrNoResults) {
		t.Errorf("no match: got %v, want ErrNoResults", err)
	}
}

func TestLoopTrackReplaysCurrent(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	q := m.lookup(testGuild)
	q.mu.Lock()
	q.loopMode = LoopTrack
	q.mu.Unlock()

	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonFinished)
	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonFinished)

	got := player.playedList()
	if len(got) != 3 {
		t.Fatalf("played %d times, want 3", len(got))
	}
	for _, enc := range got {
		if enc != "encA" {
			t.Errorf("loop track played %s", enc)
		}
	}
}

func TestLoopQueueRotates(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
		"ytsearch:c": searchResultFor(mkTrack("encC", "C", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "c", nil)

	q := m.lookup(testGuild)
	q.mu.Lock()
	q.loopMode = LoopQueue
	q.mu.Unlock()

	// A finishes: A goes to the tail, B starts
	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonFinished)

	snap := m.Queue(testGuild)
	if snap.Current.Track.Encoded != "encB" {
		t.Errorf("current = %s, want encB", snap.Current.Track.Encoded)
	}
	if len(snap.Items) != 2 || snap.Items[0].Track.Encoded != "encC" || snap.Items[1].Track.Encoded != "encA" {
		t.Errorf("items after rotation = %+v", snap.Items)
	}
}

func TestStoppedEndDoesNotRequeue(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)

	q := m.lookup(testGuild)
	q.mu.Lock()
	q.loopMode = LoopQueue
	q.mu.Unlock()

	// skip-initiated end: A must not be pushed back even under loop queue
	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonStopped)

	snap := m.Queue(testGuild)
	if snap.Current.Track.Encoded != "encB" {
		t.Errorf("current = %s, want encB", snap.Current.Track.Encoded)
	}
	if len(snap.Items) != 0 {
		t.Errorf("skipped track was re-queued: %+v", snap.Items)
	}
}

func TestSkipStopsPlayer(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	if err := m.Skip(context.Background(), testGuild); !errors.Is(err, ErrNoActiveQueue) {
		t.Errorf("skip without queue: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	if err := m.Skip(context.Background(), testGuild); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if player.stops != 1 {
		t.Errorf("stops = %d, want 1", player.stops)
	}
}

func TestStopTearsDownEverything(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
	}}
	voice := &fakeVoice{}
	m := newTestSystem(player, resolver, voice)

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)

	if err := m.Stop(context.Background(), testGuild); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.Queue(testGuild) != nil {
		t.Error("queue should be gone after stop")
	}
	if player.destroys != 1 {
		t.Errorf("destroys = %d, want 1", player.destroys)
	}
	if voice.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", voice.disconnects)
	}

	// stopping again is a no-op
	if err := m.Stop(context.Background(), testGuild); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestExhaustionTearsDown(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	voice := &fakeVoice{}
	m := newTestSystem(player, resolver, voice)

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonFinished)

	if m.Queue(testGuild) != nil {
		t.Error("queue should be removed when nothing is left to play")
	}
	if voice.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", voice.disconnects)
	}
}

func TestShuffle(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
		"ytsearch:c": searchResultFor(mkTrack("encC", "C", 120000)),
		"ytsearch:d": searchResultFor(mkTrack("encD", "D", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	if _, err := m.Shuffle(context.Background(), testGuild); !errors.Is(err, ErrNoActiveQueue) {
		t.Errorf("shuffle without queue: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)

	if _, err := m.Shuffle(context.Background(), testGuild); !errors.Is(err, ErrInsufficientItems) {
		t.Errorf("shuffle with one pending item: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "c", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "d", nil)

	items, err := m.Shuffle(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("Shuffle failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("shuffled length = %d, want 3", len(items))
	}
	seen := map[string]bool{}
	for _, item := range items {
		seen[item.Track.Encoded] = true
	}
	for _, want := range []string{"encB", "encC", "encD"} {
		if !seen[want] {
			t.Errorf("shuffle lost %s", want)
		}
	}
}

func TestSetVolumeClamps(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	if _, err := m.SetVolume(context.Background(), testGuild, 50); !errors.Is(err, ErrNoActiveQueue) {
		t.Errorf("volume without queue: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)

	if v, _ := m.SetVolume(context.Background(), testGuild, 150); v != 100 {
		t.Errorf("150 clamped to %d, want 100", v)
	}
	if v, _ := m.SetVolume(context.Background(), testGuild, -10); v != 0 {
		t.Errorf("-10 clamped to %d, want 0", v)
	}
	if v, _ := m.SetVolume(context.Background(), testGuild, 42); v != 42 {
		t.Errorf("42 became %d", v)
	}
}

func TestCycleLoopMode(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)

	want := []LoopMode{LoopTrack, LoopQueue, LoopOff}
	for _, expected := range want {
		mode, err := m.CycleLoopMode(context.Background(), testGuild)
		if err != nil {
			t.Fatalf("CycleLoopMode failed: %v", err)
		}
		if mode != expected {
			t.Errorf("mode = %s, want %s", mode, expected)
		}
	}
}

func TestSetAutoplay(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)

	if _, err := m.SetAutoplay(context.Background(), testGuild, true, "polka"); !errors.Is(err, ErrUnknownGenre) {
		t.Errorf("bogus genre: got %v", err)
	}

	state, err := m.SetAutoplay(context.Background(), testGuild, true, "")
	if err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if !state.Enabled || state.Genre != GenreRandom {
		t.Errorf("default state = %+v, want random", state)
	}

	state, _ = m.SetAutoplay(context.Background(), testGuild, true, "jazz")
	if state.Genre != "jazz" {
		t.Errorf("genre = %s, want jazz", state.Genre)
	}

	// disabling clears the genre; re-enabling without one falls back to random
	state, _ = m.SetAutoplay(context.Background(), testGuild, false, "")
	if state.Enabled || state.Genre != "" {
		t.Errorf("disabled state = %+v", state)
	}
	state, _ = m.SetAutoplay(context.Background(), testGuild, true, "")
	if state.Genre != GenreRandom {
		t.Errorf("re-enabled genre = %s, want random", state.Genre)
	}
}

func TestTogglePause(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	if _, err := m.TogglePause(context.Background(), testGuild); !errors.Is(err, ErrNoActiveQueue) {
		t.Errorf("toggle without queue: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)

	if paused, _ := m.TogglePause(context.Background(), testGuild); !paused {
		t.Error("first toggle should pause")
	}
	if paused, _ := m.TogglePause(context.Background(), testGuild); paused {
		t.Error("second toggle should resume")
	}
}

func TestCycleAutoplayGenre(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	if _, err := m.CycleAutoplayGenre(context.Background(), testGuild); !errors.Is(err, ErrNoActiveQueue) {
		t.Errorf("cycle without queue: got %v", err)
	}

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)

	// cycling from off enables autoplay starting at lofi
	state, err := m.CycleAutoplayGenre(context.Background(), testGuild)
	if err != nil {
		t.Fatalf("CycleAutoplayGenre failed: %v", err)
	}
	if !state.Enabled || state.Genre != "lofi" {
		t.Errorf("state = %+v, want lofi enabled", state)
	}

	// next step follows the sorted catalog
	state, _ = m.CycleAutoplayGenre(context.Background(), testGuild)
	if state.Genre != "metal" {
		t.Errorf("genre = %s, want metal", state.Genre)
	}

	// random sits at the end, so cycling past it wraps to the first genre
	_, _ = m.SetAutoplay(context.Background(), testGuild, true, GenreRandom)
	state, _ = m.CycleAutoplayGenre(context.Background(), testGuild)
	if state.Genre != GenreKeys()[0] {
		t.Errorf("genre = %s, want %s", state.Genre, GenreKeys()[0])
	}
}

func TestSocketClosedDropsQueue(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	voice := &fakeVoice{}
	m := newTestSystem(player, resolver, voice)

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	m.HandleSocketClosed(context.Background(), testGuild, 4006)

	if m.Queue(testGuild) != nil {
		t.Error("queue should be dropped on socket close")
	}
	// hard delete: no teardown side effects
	if player.destroys != 0 || voice.disconnects != 0 {
		t.Errorf("socket close must not destroy (destroys=%d disconnects=%d)", player.destroys, voice.disconnects)
	}
}

func TestExceptionAdvances(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)

	msg := "decoder blew up"
	m.HandleTrackException(context.Background(), testGuild, node.Exception{Message: &msg, Severity: "fault"})

	snap := m.Queue(testGuild)
	if snap == nil || snap.Current == nil || snap.Current.Track.Encoded != "encB" {
		t.Fatalf("exception should advance to encB, snapshot: %+v", snap)
	}
}

func TestPlayFailureRetryIsBounded(t *testing.T) {
	player := &fakePlayer{playErr: errors.New("node rejected track")}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
	}}
	voice := &fakeVoice{}
	m := newTestSystem(player, resolver, voice)

	_, err := m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// every play fails, so the engine must give up and tear down
	if m.Queue(testGuild) != nil {
		t.Error("queue should be torn down after bounded retries")
	}
	if voice.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", voice.disconnects)
	}
}

func TestPlayFailureSkipsToNextItem(t *testing.T) {
	player := &fakePlayer{}
	resolver := &fakeResolver{results: map[string]*node.LoadResult{
		"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
		"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
		"ytsearch:c": searchResultFor(mkTrack("encC", "C", 120000)),
	}}
	m := newTestSystem(player, resolver, &fakeVoice{})

	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "a", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)
	_, _ = m.Enqueue(context.Background(), testGuild, testChannel, "c", nil)

	// the next play attempt fails once, then works: B is dropped, C plays
	calls := 0
	failOnce := &flakyPlayer{fakePlayer: player, failures: 1, calls: &calls}

	q := m.lookup(testGuild)
	q.mu.Lock()
	q.player = failOnce
	q.mu.Unlock()

	m.HandleTrackEnd(context.Background(), testGuild, node.EndReasonFinished)

	snap := m.Queue(testGuild)
	if snap == nil || snap.Current == nil || snap.Current.Track.Encoded != "encC" {
		t.Fatalf("engine should drop the failing item and continue, snapshot: %+v", snap)
	}
	if len(snap.Items) != 0 {
		t.Errorf("items = %+v, want empty", snap.Items)
	}
}

func TestSocketCloseWaitsForInFlightEnqueue(t *testing.T) {
	player := &fakePlayer{}
	resolver := &gateResolver{
		inner: &fakeResolver{results: map[string]*node.LoadResult{
			"ytsearch:a": searchResultFor(mkTrack("encA", "A", 120000)),
			"ytsearch:b": searchResultFor(mkTrack("encB", "B", 120000)),
		}},
		gate:    "ytsearch:b",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := &MusicSystem{queues: map[snowflake.ID]*GuildQueue{}}
	m.Configure(resolver, func(snowflake.ID) PlayerHandle { return player }, &fakeVoice{})

	if _, err := m.Enqueue(context.Background(), testGuild, testChannel, "a", nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// second enqueue parks mid-resolve while holding the guild lock
	enqueueDone := make(chan error, 1)
	go func() {
		_, err := m.Enqueue(context.Background(), testGuild, testChannel, "b", nil)
		enqueueDone <- err
	}()
	<-resolver.started

	closeDone := make(chan struct{})
	go func() {
		m.HandleSocketClosed(context.Background(), testGuild, 4006)
		close(closeDone)
	}()

	// the close must queue behind the in-flight enqueue, not race past it
	select {
	case <-closeDone:
		t.Fatal("socket close completed while an enqueue was mid-operation")
	case <-time.After(100 * time.Millisecond):
	}

	close(resolver.release)
	if err := <-enqueueDone; err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	<-closeDone

	if m.Queue(testGuild) != nil {
		t.Error("queue should be gone after the close event")
	}

	// the guild accepts new work on a fresh queue afterwards
	if _, err := m.Enqueue(context.Background(), testGuild, testChannel, "a", nil); err != nil {
		t.Fatalf("Enqueue after close failed: %v", err)
	}
	snap := m.Queue(testGuild)
	if snap == nil || snap.Current == nil || snap.Current.Track.Encoded != "encA" {
		t.Fatalf("fresh queue not started, snapshot: %+v", snap)
	}
}

type gateResolver struct {
	inner   Resolver
	gate    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gateResolver) Resolve(ctx context.Context, identifier string) (*node.LoadResult, error) {
	if identifier == r.gate {
		r.once.Do(func() { close(r.started) })
		<-r.release
	}
	return r.inner.Resolve(ctx, identifier)
}

type flakyPlayer struct {
	*fakePlayer
	failures int
	calls    *int
}

func (p *flakyPlayer) Play(ctx context.Context, encoded string, volume int) error {
	*p.calls++
	if *p.calls <= p.failures {
		return errors.New("transient failure")
	}
	return p.fakePlayer.Play(ctx, encoded, volume)
}
