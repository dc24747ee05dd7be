package proc

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/selvany/otoha/node"
	"github.com/selvany/otoha/sys"
)

const (
	MsgAutoplaySearching = "[%s] Searching %s with query %q"
	MsgAutoplayNodeError = "[%s] Node error while searching %q: %v"
	MsgAutoplayNoMatch   = "[%s] No eligible track for %q"
	MsgAutoplayPicked    = "[%s] Picked %q (%ds)"
	MsgAutoplayExhausted = "[%s] No suitable track found after trying every query"
)

// GenreRandom rotates across the whole catalog instead of a single genre.
const GenreRandom = "random"

type GenreConfig struct {
	DisplayName string
	SearchTerms []string
}

var autoplayGenres = map[string]GenreConfig{
	"pop": {
		DisplayName: "Pop",
		SearchTerms: []string{
			"pop hits 2024 official music video",
			"top pop songs official",
			"pop music video official hd",
		},
	},
	"rock": {
		DisplayName: "Rock",
		SearchTerms: []string{
			"rock hits official video",
			"modern rock music official",
			"classic rock songs official",
		},
	},
	"hiphop": {
		DisplayName: "Hip-Hop",
		SearchTerms: []string{
			"hip hop songs official video",
			"rap hits 2024 official",
			"hip hop music official",
		},
	},
	"electronic": {
		DisplayName: "Electronic",
		SearchTerms: []string{
			"edm music official",
			"electronic dance music 2024",
			"house music official video",
		},
	},
	"jazz": {
		DisplayName: "Jazz",
		SearchTerms: []string{
			"smooth jazz music official",
			"coffee jazz official",
			"jazz classics official",
		},
	},
	"classical": {
		DisplayName: "Classical",
		SearchTerms: []string{
			"classical music masterpiece official",
			"symphony orchestra official",
			"classical piano official",
		},
	},
	"metal": {
		DisplayName: "Metal",
		SearchTerms: []string{
			"metal music official video",
			"heavy metal official",
			"metalcore official video",
		},
	},
	"country": {
		DisplayName: "Country",
		SearchTerms: []string{
			"country music official video",
			"country hits 2024 official",
			"country songs official",
		},
	},
	"rnb": {
		DisplayName: "R&B",
		SearchTerms: []string{
			"rnb music official",
			"r&b hits 2024 official",
			"soul rnb official video",
		},
	},
	"indie": {
		DisplayName: "Indie",
		SearchTerms: []string{
			"indie music official",
			"indie pop official video",
			"indie rock official",
		},
	},
	"latin": {
		DisplayName: "Latin",
		SearchTerms: []string{
			"latin music official",
			"reggaeton official video",
			"latin hits 2024 official",
		},
	},
	"kpop": {
		DisplayName: "K-Pop",
		SearchTerms: []string{
			"kpop official mv",
			"korean pop music official",
			"kpop songs 2024 mv",
		},
	},
	"anime": {
		DisplayName: "Anime",
		SearchTerms: []string{
			"anime opening official",
			"anime songs official",
			"best anime op official",
		},
	},
	"lofi": {
		DisplayName: "Lo-Fi",
		SearchTerms: []string{
			"lofi hip hop music",
			"lofi beats official",
			"chill lofi music official",
		},
	},
	"blues": {
		DisplayName: "Blues",
		SearchTerms: []string{
			"blues music official",
			"blues guitar official",
			"blues classics official",
		},
	},
	"reggae": {
		DisplayName: "Reggae",
		SearchTerms: []string{
			"reggae music official",
			"roots reggae official",
			"reggae classics official",
		},
	},
	"disco": {
		DisplayName: "Disco",
		SearchTerms: []string{
			"disco music official",
			"70s disco official",
			"nu disco official",
		},
	},
	"punk": {
		DisplayName: "Punk",
		SearchTerms: []string{
			"punk rock official video",
			"pop punk official",
			"punk music video official",
		},
	},
	"ambient": {
		DisplayName: "Ambient",
		SearchTerms: []string{
			"ambient music official",
			"ambient chill official",
			"ambient soundscapes official",
		},
	},
}

var forbiddenTitleKeywords = []string{
	"tutorial",
	"lesson",
	"course",
	"how to",
	"how-to",
	"guide",
	"podcast",
	"interview",
	"talk",
	"speech",
	"lecture",
	"review",
	"unboxing",
	"reaction",
	"gameplay",
	"full movie",
	"full album",
	"documentary",
	"asmr",
	"audiobook",
	"story",
	"meditation",
	"mix",
	"compilation",
	"dj set",
	"live set",
}

const (
	maxAutoplayEmojis     = 4
	maxAutoplayBrackets   = 4
	minAutoplayDurationMs = 30_000
	maxAutoplayDurationMs = 600_000
	maxSearchPlanSize     = 30
)

// IsValidGenre accepts any catalog genre plus the random meta-genre.
func IsValidGenre(genre string) bool {
	if genre == GenreRandom {
		return true
	}
	_, ok := autoplayGenres[genre]
	return ok
}

// GenreDisplayName returns the human name for a genre, or the key itself when
// unknown.
func GenreDisplayName(genre string) string {
	if genre == GenreRandom {
		return "Random"
	}
	if cfg, ok := autoplayGenres[genre]; ok {
		return cfg.DisplayName
	}
	return genre
}

// GenreKeys lists all concrete genres plus random, sorted for stable
// autocomplete output.
func GenreKeys() []string {
	keys := make([]string, 0, len(autoplayGenres)+1)
	for k := range autoplayGenres {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return append(keys, GenreRandom)
}

type searchPlanEntry struct {
	Genre string
	Query string
}

// buildSearchPlan expands a genre into its shuffled search queries. Random
// walks the whole catalog in shuffled order. Capped to keep a generation
// bounded.
func buildSearchPlan(genre string) []searchPlanEntry {
	var targets []string
	if genre != "" && genre != GenreRandom {
		if _, ok := autoplayGenres[genre]; ok {
			targets = []string{genre}
		}
	}
	if targets == nil {
		for k := range autoplayGenres {
			targets = append(targets, k)
		}
		rand.Shuffle(len(targets), func(i, j int) {
			targets[i], targets[j] = targets[j], targets[i]
		})
	}

	var plan []searchPlanEntry
	for _, g := range targets {
		terms := append([]string(nil), autoplayGenres[g].SearchTerms...)
		rand.Shuffle(len(terms), func(i, j int) {
			terms[i], terms[j] = terms[j], terms[i]
		})
		for _, term := range terms {
			plan = append(plan, searchPlanEntry{Genre: g, Query: prepareAutoplayQuery(term)})
		}
	}

	if len(plan) > maxSearchPlanSize {
		plan = plan[:maxSearchPlanSize]
	}
	return plan
}

func prepareAutoplayQuery(term string) string {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return "ytsearch:music"
	}
	identifier, err := NormalizeIdentifier(trimmed)
	if err != nil {
		return "ytsearch:music"
	}
	return identifier
}

// isAutoplayEligible rejects streams, tracks outside 30s-10min, clickbait
// keywords, and titles drowning in brackets or emoji.
func isAutoplayEligible(info node.TrackInfo) bool {
	if info.IsStream {
		return false
	}
	if info.Length < minAutoplayDurationMs || info.Length > maxAutoplayDurationMs {
		return false
	}

	title := strings.ToLower(info.Title)
	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(title)
	for _, keyword := range forbiddenTitleKeywords {
		if strings.Contains(normalized, keyword) {
			return false
		}
	}

	brackets := 0
	for _, r := range info.Title {
		switch r {
		case '[', ']', '(', ')', '{', '}':
			brackets++
		}
	}
	if brackets > maxAutoplayBrackets {
		return false
	}

	if countPictographic(info.Title) > maxAutoplayEmojis {
		return false
	}

	return true
}

// countPictographic approximates the Extended_Pictographic property with the
// emoji blocks that actually show up in video titles.
func countPictographic(s string) int {
	count := 0
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF, // symbols, emoticons, supplemental
			r >= 0x2600 && r <= 0x27BF, // misc symbols + dingbats
			r >= 0x2B00 && r <= 0x2BFF,
			r == 0x2764, r == 0x2763,
			r >= 0x1F000 && r <= 0x1F0FF:
			count++
		}
	}
	return count
}

// GenerateAutoplayTrack walks the search plan until an eligible track turns
// up. Titles containing "official" win within a batch. Returns nil when every
// query is exhausted.
func GenerateAutoplayTrack(ctx context.Context, resolver Resolver, guildID string, genre string) *QueueItem {
	plan := buildSearchPlan(genre)

	for _, entry := range plan {
		displayName := GenreDisplayName(entry.Genre)
		sys.LogAutoplay(MsgAutoplaySearching, guildID, displayName, entry.Query)

		result, err := resolver.Resolve(ctx, entry.Query)
		if err != nil {
			sys.LogAutoplay(MsgAutoplayNodeError, guildID, entry.Query, err)
			continue
		}

		tracks, err := FlattenLoadResult(result)
		if err != nil {
			sys.LogAutoplay(MsgAutoplayNodeError, guildID, entry.Query, err)
			continue
		}

		var filtered []node.Track
		for _, t := range tracks {
			if isAutoplayEligible(t.Info) {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) == 0 {
			sys.LogAutoplay(MsgAutoplayNoMatch, guildID, entry.Query)
			continue
		}

		selected := filtered[0]
		for _, t := range filtered {
			if strings.Contains(strings.ToLower(t.Info.Title), "official") {
				selected = t
				break
			}
		}

		sys.LogAutoplay(MsgAutoplayPicked, guildID, selected.Info.Title, selected.Info.Length/1000)

		return &QueueItem{
			Track: selected,
			Requester: &Requester{
				ID:   "autoplay",
				Name: "Autoplay (" + displayName + ")",
			},
			Autoplay: &AutoplayInfo{
				Genre:       entry.Genre,
				Query:       entry.Query,
				DisplayName: displayName,
			},
		}
	}

	sys.LogAutoplay(MsgAutoplayExhausted, guildID)
	return nil
}
