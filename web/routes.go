// Package web exposes the playback engine over a small JSON API for the
// dashboard.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/selvany/otoha/proc"
	"github.com/selvany/otoha/sys"
)

const (
	MsgWebListening    = "Listening on %s"
	MsgWebListenFail   = "Listener failed: %v"
	MsgWebShutdown     = "Shutting down..."
	MsgWebBadRequest   = "invalid request body"
	MsgWebBadGuildID   = "invalid guildId"
	MsgWebBadChannelID = "invalid channelId"
)

type errorResponse struct {
	Error string `json:"error"`
}

type trackInfoDTO struct {
	Identifier string  `json:"identifier"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	URI        *string `json:"uri,omitempty"`
	Length     int64   `json:"length"`
	SourceName string  `json:"sourceName"`
	ArtworkURL *string `json:"artworkUrl,omitempty"`
	IsStream   bool    `json:"isStream"`
	IsSeekable bool    `json:"isSeekable"`
	Position   int64   `json:"position"`
	ISRC       *string `json:"isrc,omitempty"`
}

type requesterDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type autoplayInfoDTO struct {
	Genre       string `json:"genre"`
	Query       string `json:"query"`
	DisplayName string `json:"displayName"`
}

type queueItemDTO struct {
	Encoded   string           `json:"encoded"`
	Info      trackInfoDTO     `json:"info"`
	Requester *requesterDTO    `json:"requester,omitempty"`
	Autoplay  *autoplayInfoDTO `json:"autoplay,omitempty"`
}

func toQueueItemDTO(item *proc.QueueItem) *queueItemDTO {
	if item == nil {
		return nil
	}
	dto := &queueItemDTO{
		Encoded: item.Track.Encoded,
		Info: trackInfoDTO{
			Identifier: item.Track.Info.Identifier,
			Title:      item.Track.Info.Title,
			Author:     item.Track.Info.Author,
			URI:        item.Track.Info.URI,
			Length:     item.Track.Info.Length,
			SourceName: item.Track.Info.SourceName,
			ArtworkURL: item.Track.Info.ArtworkURL,
			IsStream:   item.Track.Info.IsStream,
			IsSeekable: item.Track.Info.IsSeekable,
			Position:   item.Track.Info.Position,
			ISRC:       item.Track.Info.ISRC,
		},
	}
	if item.Requester != nil {
		dto.Requester = &requesterDTO{ID: item.Requester.ID, Name: item.Requester.Name}
	}
	if item.Autoplay != nil {
		dto.Autoplay = &autoplayInfoDTO{
			Genre:       item.Autoplay.Genre,
			Query:       item.Autoplay.Query,
			DisplayName: item.Autoplay.DisplayName,
		}
	}
	return dto
}

type autoplayDTO struct {
	Enabled bool   `json:"enabled"`
	Genre   string `json:"genre,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses. Node failures are a bad
// gateway; everything the caller got wrong is a 4xx.
func writeError(w http.ResponseWriter, err error) {
	var re *proc.ResolveError
	switch {
	case errors.As(err, &re):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: re.Error()})
	case errors.Is(err, proc.ErrNoActiveQueue),
		errors.Is(err, proc.ErrNoResults),
		errors.Is(err, proc.ErrVoiceTargetUnavailable):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, proc.ErrEmptyQuery),
		errors.Is(err, proc.ErrInsufficientItems),
		errors.Is(err, proc.ErrUnknownGenre):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func handlePlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GuildID   string `json:"guildId"`
		ChannelID string `json:"channelId"`
		Query     string `json:"query"`
		Requester string `json:"requester"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadRequest})
		return
	}

	guildID, err := snowflake.Parse(body.GuildID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadGuildID})
		return
	}
	channelID, err := snowflake.Parse(body.ChannelID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadChannelID})
		return
	}

	var requester *proc.Requester
	if body.Requester != "" {
		requester = &proc.Requester{ID: body.Requester, Name: body.Requester}
	}

	item, err := proc.GetMusicManager().Enqueue(r.Context(), guildID, channelID, body.Query, requester)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Track enqueued",
		"track":   toQueueItemDTO(item),
	})
}

func guildIDFromBody(w http.ResponseWriter, r *http.Request) (snowflake.ID, bool) {
	var body struct {
		GuildID string `json:"guildId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadRequest})
		return 0, false
	}
	guildID, err := snowflake.Parse(body.GuildID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadGuildID})
		return 0, false
	}
	return guildID, true
}

func handleSkip(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromBody(w, r)
	if !ok {
		return
	}
	if err := proc.GetMusicManager().Skip(r.Context(), guildID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Skipped current track"})
}

func handleStop(w http.ResponseWriter, r *http.Request) {
	guildID, ok := guildIDFromBody(w, r)
	if !ok {
		return
	}
	if err := proc.GetMusicManager().Stop(r.Context(), guildID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stopped playback and disconnected"})
}

func handleQueue(w http.ResponseWriter, r *http.Request) {
	guildIDStr := r.PathValue("guildId")
	guildID, err := snowflake.Parse(guildIDStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: MsgWebBadGuildID})
		return
	}

	snapshot := proc.GetMusicManager().Queue(guildID)
	if snapshot == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"guildId":  guildIDStr,
			"status":   "idle",
			"loopMode": "off",
			"autoplay": autoplayDTO{},
			"volume":   100,
		})
		return
	}

	status := "idle"
	if snapshot.Current != nil {
		if snapshot.Paused {
			status = "paused"
		} else {
			status = "playing"
		}
	}

	upcoming := make([]*queueItemDTO, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		upcoming = append(upcoming, toQueueItemDTO(item))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"guildId":        guildIDStr,
		"status":         status,
		"paused":         snapshot.Paused,
		"loopMode":       snapshot.LoopMode,
		"autoplay":       autoplayDTO{Enabled: snapshot.Autoplay.Enabled, Genre: snapshot.Autoplay.Genre},
		"volume":         snapshot.Volume,
		"voiceChannelId": snapshot.VoiceChannelID.String(),
		"current":        toQueueItemDTO(snapshot.Current),
		"upcoming":       upcoming,
	})
}

// NewMux builds the route table. Split out so tests can drive it directly.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /music/play", handlePlay)
	mux.HandleFunc("POST /music/skip", handleSkip)
	mux.HandleFunc("POST /music/stop", handleStop)
	mux.HandleFunc("GET /music/queue/{guildId}", handleQueue)
	return mux
}

func init() {
	sys.RegisterDaemon(sys.LogWeb, func(ctx context.Context) (bool, func(), func()) {
		cfg := sys.GlobalConfig
		if cfg == nil || cfg.AppAddr == "" {
			return false, nil, nil
		}

		server := &http.Server{
			Addr:              cfg.AppAddr,
			Handler:           NewMux(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		run := func() {
			sys.LogWeb(MsgWebListening, cfg.AppAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sys.LogError(MsgWebListenFail, err)
			}
		}
		shutdown := func() {
			sys.LogWeb(MsgWebShutdown)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
		return true, run, shutdown
	})
}
