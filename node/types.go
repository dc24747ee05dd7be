// Package node implements a minimal client for a Lavalink v4 compatible
// audio node: track resolution over REST, per-guild player updates, and the
// websocket event stream.
package node

import (
	"encoding/json"

	"github.com/disgoorg/snowflake/v2"
)

type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypeSearch   LoadType = "search"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

type TrackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Position   int64   `json:"position"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	ISRC       *string `json:"isrc"`
	SourceName string  `json:"sourceName"`
}

type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

type Playlist struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []Track      `json:"tracks"`
}

type Exception struct {
	Message  *string `json:"message"`
	Severity string  `json:"severity"`
	Cause    string  `json:"cause"`
}

// LoadResult is the response of /v4/loadtracks. The shape of "data" depends
// on loadType, so decoding happens in two passes.
type LoadResult struct {
	LoadType  LoadType
	Tracks    []Track
	Playlist  *Playlist
	Exception *Exception
}

func (r *LoadResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		LoadType LoadType        `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.LoadType = raw.LoadType
	r.Tracks = nil
	r.Playlist = nil
	r.Exception = nil

	switch raw.LoadType {
	case LoadTypeTrack:
		var t Track
		if err := json.Unmarshal(raw.Data, &t); err != nil {
			return err
		}
		r.Tracks = []Track{t}
	case LoadTypeSearch:
		if err := json.Unmarshal(raw.Data, &r.Tracks); err != nil {
			return err
		}
	case LoadTypePlaylist:
		var p Playlist
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return err
		}
		r.Playlist = &p
	case LoadTypeError:
		var e Exception
		if err := json.Unmarshal(raw.Data, &e); err != nil {
			return err
		}
		r.Exception = &e
	case LoadTypeEmpty:
		// data is {} and carries nothing
	}

	return nil
}

// EndReason values from the node's TrackEndEvent.
type EndReason string

const (
	EndReasonFinished   EndReason = "finished"
	EndReasonLoadFailed EndReason = "loadFailed"
	EndReasonStopped    EndReason = "stopped"
	EndReasonReplaced   EndReason = "replaced"
	EndReasonCleanup    EndReason = "cleanup"
)

type TrackEndEvent struct {
	GuildID snowflake.ID
	Track   Track
	Reason  EndReason
}

type TrackExceptionEvent struct {
	GuildID   snowflake.ID
	Track     Track
	Exception Exception
}

type TrackStuckEvent struct {
	GuildID     snowflake.ID
	Track       Track
	ThresholdMs int64
}

type WebSocketClosedEvent struct {
	GuildID  snowflake.ID
	Code     int
	Reason   string
	ByRemote bool
}

// EventListener receives player lifecycle events from the node socket.
// Dispatch is keyed by guild inside each payload.
type EventListener interface {
	OnTrackEnd(event TrackEndEvent)
	OnTrackException(event TrackExceptionEvent)
	OnTrackStuck(event TrackStuckEvent)
	OnSocketClosed(event WebSocketClosedEvent)
}
