package proc

import (
	"context"
	"strings"

	"github.com/selvany/otoha/node"
)

// Resolver is the slice of the node client the engine needs for lookups.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*node.LoadResult, error)
}

var identifierPrefixes = []string{
	"http://",
	"https://",
	"ytsearch:",
	"ytmsearch:",
	"scsearch:",
}

// NormalizeIdentifier trims the query and turns bare text into a search
// identifier. Direct URLs and explicit search prefixes pass through.
func NormalizeIdentifier(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", ErrEmptyQuery
	}
	lowered := strings.ToLower(trimmed)
	for _, prefix := range identifierPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return trimmed, nil
		}
	}
	return "ytsearch:" + trimmed, nil
}

// TrackResolver flattens node load results into a plain track list.
type TrackResolver struct {
	node Resolver
}

func NewTrackResolver(n Resolver) *TrackResolver {
	return &TrackResolver{node: n}
}

// Resolve normalizes the query, asks the node, and flattens the result.
// An empty slice means nothing matched; a *ResolveError means the node
// itself failed.
func (r *TrackResolver) Resolve(ctx context.Context, query string) ([]node.Track, error) {
	identifier, err := NormalizeIdentifier(query)
	if err != nil {
		return nil, err
	}

	result, err := r.node.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	return FlattenLoadResult(result)
}

// FlattenLoadResult maps each loadType onto a track list. Unknown load types
// collapse to empty rather than failing.
func FlattenLoadResult(result *node.LoadResult) ([]node.Track, error) {
	switch result.LoadType {
	case node.LoadTypeTrack, node.LoadTypeSearch:
		return result.Tracks, nil
	case node.LoadTypePlaylist:
		if result.Playlist == nil {
			return nil, nil
		}
		return result.Playlist.Tracks, nil
	case node.LoadTypeEmpty:
		return nil, nil
	case node.LoadTypeError:
		re := &ResolveError{Message: "unknown error"}
		if result.Exception != nil {
			re.Severity = result.Exception.Severity
			if result.Exception.Message != nil {
				re.Message = *result.Exception.Message
			}
		}
		return nil, re
	default:
		return nil, nil
	}
}
