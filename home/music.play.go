package home

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/selvany/otoha/proc"
	"github.com/selvany/otoha/sys"
)

const (
	MsgPlayError    = "Playback error: %v"
	MsgPlayNotInVC  = "You need to be in a voice channel first."
	MsgPlayAdded    = "✅ Added to queue: "
	MsgPlayFailed   = "Failed to play: "
	MsgSearchFailed = "Search failed for %q: %v"
)

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")

	var voiceState discord.VoiceState
	var ok bool
	if event.Member() != nil {
		voiceState, ok = event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	}
	if !ok || voiceState.ChannelID == nil {
		_ = event.CreateMessage(discord.NewMessageCreateBuilder().
			SetContent(MsgPlayNotInVC).
			SetEphemeral(true).
			Build())
		return
	}

	// Instant Defer
	_ = event.DeferCreateMessage(false)

	requester := &proc.Requester{
		ID:   event.User().ID.String(),
		Name: event.User().Username,
	}

	item, err := proc.GetMusicManager().Enqueue(
		context.Background(), *event.GuildID(), *voiceState.ChannelID, query, requester)
	if err != nil {
		sys.LogError(MsgPlayError, err)
		_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
			SetContent(MsgPlayFailed+err.Error()).
			Build())
		return
	}

	content := MsgPlayAdded + formatTrackLink(item)
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdateBuilder().
		SetContent(content).
		Build())
}

func formatTrackLink(item *proc.QueueItem) string {
	title := item.Track.Info.Title
	if item.Track.Info.URI != nil {
		return "[" + title + "](" + *item.Track.Info.URI + ")"
	}
	return title
}

// --- Query autocomplete ---

type searchResult struct {
	Title string
	URL   string
}

type cachedSearch struct {
	results   []searchResult
	expiresAt time.Time
}

var queryCache = struct {
	sync.RWMutex
	items map[string]cachedSearch
}{items: map[string]cachedSearch{}}

func handleQueryAutocomplete(event *events.AutocompleteInteractionCreate) {
	query := event.Data.Focused().String()
	if query == "" {
		_ = event.AutocompleteResult(nil)
		return
	}

	results := searchTracks(query)

	var choices []discord.AutocompleteChoice
	for i, r := range results {
		if i >= 25 {
			break
		}
		name := r.Title
		if len(name) > 100 {
			name = name[:97] + "..."
		}
		val := r.URL
		if len(val) > 100 {
			val = r.Title
			if len(val) > 100 {
				val = val[:100]
			}
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  name,
			Value: val,
		})
	}
	_ = event.AutocompleteResult(choices)
}

// searchTracks runs YouTube and YouTube Music lookups concurrently, dedupes
// by video ID, and caches the merged list for an hour.
func searchTracks(q string) []searchResult {
	queryCache.RLock()
	if item, ok := queryCache.items[q]; ok {
		if time.Now().Before(item.expiresAt) {
			queryCache.RUnlock()
			return item.results
		}
	}
	queryCache.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []searchResult
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(q)
		r, err := s.Next()
		if err != nil {
			sys.LogDebug(MsgSearchFailed, q, err)
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			title := v.Title
			if len(v.Artists) > 0 {
				title = v.Artists[0].Name + " - " + title
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, searchResult{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: title})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, err := c.Search(ctx, q)
		if err != nil {
			sys.LogDebug(MsgSearchFailed, q, err)
			return
		}
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, searchResult{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: v.Title})
			}
			resMu.Unlock()
		}
	}()

	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	}

	resMu.Lock()
	defer resMu.Unlock()
	fin := append(append([]searchResult(nil), ytm...), yt...)
	if len(fin) > 25 {
		fin = fin[:25]
	}

	if len(fin) > 0 {
		queryCache.Lock()
		queryCache.items[q] = cachedSearch{results: fin, expiresAt: time.Now().Add(1 * time.Hour)}
		queryCache.Unlock()
	}

	return fin
}
