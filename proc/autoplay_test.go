package proc

import (
	"context"
	"strings"
	"testing"

	"github.com/selvany/otoha/node"
)

func eligibleInfo(title string, length int64) node.TrackInfo {
	return node.TrackInfo{Title: title, Length: length}
}

func TestAutoplayEligibility(t *testing.T) {
	tests := []struct {
		name string
		info node.TrackInfo
		want bool
	}{
		{"normal track", eligibleInfo("Artist - Song (Official Video)", 200000), true},
		{"stream", node.TrackInfo{Title: "Radio", Length: 200000, IsStream: true}, false},
		{"too short", eligibleInfo("Short", 10000), false},
		{"too long", eligibleInfo("Long", 700000), false},
		{"boundary min", eligibleInfo("Exactly 30s", 30000), true},
		{"boundary max", eligibleInfo("Exactly 10min", 600000), true},
		{"tutorial keyword", eligibleInfo("Guitar tutorial for beginners", 200000), false},
		{"keyword behind dash", eligibleInfo("how-to play piano", 200000), false},
		{"keyword behind underscore", eligibleInfo("dj_set summer edition", 200000), false},
		{"mix keyword", eligibleInfo("Full Album Mix", 200000), false},
		{"case insensitive keyword", eligibleInfo("PODCAST episode 4", 200000), false},
		{"too many brackets", eligibleInfo("[A] (B) {C} [D] (E)", 200000), false},
		{"four brackets ok", eligibleInfo("Song [Official] (HD)", 200000), true},
		{"too many emoji", eligibleInfo("Song 🎵🎵🎵🎵🎵", 200000), false},
		{"some emoji ok", eligibleInfo("Song [Official Video] 🎵", 200000), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAutoplayEligible(tt.info); got != tt.want {
				t.Errorf("isAutoplayEligible(%q) = %t, want %t", tt.info.Title, got, tt.want)
			}
		})
	}
}

func TestBuildSearchPlan(t *testing.T) {
	plan := buildSearchPlan("jazz")
	if len(plan) != 3 {
		t.Fatalf("jazz plan has %d entries, want 3", len(plan))
	}
	for _, entry := range plan {
		if entry.Genre != "jazz" {
			t.Errorf("plan entry genre = %s", entry.Genre)
		}
		if !strings.HasPrefix(entry.Query, "ytsearch:") {
			t.Errorf("query %q not prefixed for search", entry.Query)
		}
	}

	random := buildSearchPlan(GenreRandom)
	if len(random) != maxSearchPlanSize {
		t.Errorf("random plan has %d entries, want cap %d", len(random), maxSearchPlanSize)
	}
	for _, entry := range random {
		if entry.Genre == GenreRandom {
			t.Error("random plan must only contain concrete genres")
		}
	}

	// unknown genre falls back to the full catalog
	fallback := buildSearchPlan("zydeco")
	if len(fallback) != maxSearchPlanSize {
		t.Errorf("fallback plan has %d entries, want %d", len(fallback), maxSearchPlanSize)
	}
}

func TestGenreValidation(t *testing.T) {
	for _, genre := range []string{"pop", "lofi", "kpop", GenreRandom} {
		if !IsValidGenre(genre) {
			t.Errorf("%s should be valid", genre)
		}
	}
	for _, genre := range []string{"", "polka", "POP"} {
		if IsValidGenre(genre) {
			t.Errorf("%s should be invalid", genre)
		}
	}

	if GenreDisplayName("hiphop") != "Hip-Hop" {
		t.Errorf("display name = %s", GenreDisplayName("hiphop"))
	}
	if GenreDisplayName(GenreRandom) != "Random" {
		t.Errorf("random display name = %s", GenreDisplayName(GenreRandom))
	}

	keys := GenreKeys()
	if keys[len(keys)-1] != GenreRandom {
		t.Error("random should be listed last")
	}
	if len(keys) != 20 {
		t.Errorf("catalog size = %d, want 20", len(keys))
	}
}

type scriptedResolver struct {
	calls   int
	results []*node.LoadResult
	errs    []error
}

func (r *scriptedResolver) Resolve(ctx context.Context, identifier string) (*node.LoadResult, error) {
	i := r.calls
	r.calls++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i < len(r.results) {
		return r.results[i], nil
	}
	return &node.LoadResult{LoadType: node.LoadTypeEmpty}, nil
}

func TestGenerateAutoplayPrefersOfficial(t *testing.T) {
	resolver := &scriptedResolver{
		results: []*node.LoadResult{
			{LoadType: node.LoadTypeSearch, Tracks: []node.Track{
				mkTrack("plain", "Some Song", 200000),
				mkTrack("official", "Some Song (Official Video)", 200000),
			}},
		},
	}

	item := GenerateAutoplayTrack(context.Background(), resolver, "g", "jazz")
	if item == nil {
		t.Fatal("expected a generated item")
	}
	if item.Track.Encoded != "official" {
		t.Errorf("picked %s, want the official upload", item.Track.Encoded)
	}
	if item.Autoplay == nil || item.Autoplay.Genre != "jazz" || item.Autoplay.DisplayName != "Jazz" {
		t.Errorf("provenance = %+v", item.Autoplay)
	}
	if item.Requester == nil || item.Requester.ID != "autoplay" {
		t.Errorf("requester = %+v", item.Requester)
	}
}

func TestGenerateAutoplaySkipsIneligibleBatches(t *testing.T) {
	resolver := &scriptedResolver{
		results: []*node.LoadResult{
			{LoadType: node.LoadTypeSearch, Tracks: []node.Track{
				mkTrack("bad", "Guitar tutorial", 200000),
			}},
			{LoadType: node.LoadTypeSearch, Tracks: []node.Track{
				mkTrack("good", "Nice Song", 200000),
			}},
		},
	}

	item := GenerateAutoplayTrack(context.Background(), resolver, "g", "jazz")
	if item == nil || item.Track.Encoded != "good" {
		t.Fatalf("expected second batch to win, got %+v", item)
	}
}

func TestGenerateAutoplayExhaustsToNil(t *testing.T) {
	resolver := &scriptedResolver{}
	if item := GenerateAutoplayTrack(context.Background(), resolver, "g", "jazz"); item != nil {
		t.Errorf("expected nil on exhaustion, got %+v", item)
	}
	if resolver.calls != 3 {
		t.Errorf("tried %d queries, want all 3", resolver.calls)
	}
}
