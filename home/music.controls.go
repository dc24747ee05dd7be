package home

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/selvany/otoha/proc"
)

const (
	MsgQueueEmpty      = "Nothing is playing."
	MsgSkipped         = "⏭️ Skipped."
	MsgStopped         = "⏹️ Stopped and left the channel."
	MsgShuffled        = "🔀 Shuffled %d tracks."
	MsgVolumeSet       = "🔊 Volume set to %d."
	MsgLoopMode        = "🔁 Loop mode: %s"
	MsgAutoplayOn      = "♾️ Autoplay on (%s)."
	MsgAutoplayOff     = "♾️ Autoplay off."
	MsgPaused          = "⏸️ Paused."
	MsgResumed         = "▶️ Resumed."
	MsgCommandFailed   = "Something went wrong: "
	MsgNowPlayingLabel = "**Now playing:** "
)

func respond(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
}

func respondError(event *events.ApplicationCommandInteractionCreate, err error) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(MsgCommandFailed + err.Error()).
		SetEphemeral(true).
		Build())
}

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if err := proc.GetMusicManager().Skip(context.Background(), *event.GuildID()); err != nil {
		respondError(event, err)
		return
	}
	respond(event, MsgSkipped)
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if err := proc.GetMusicManager().Stop(context.Background(), *event.GuildID()); err != nil {
		respondError(event, err)
		return
	}
	respond(event, MsgStopped)
}

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	snapshot := proc.GetMusicManager().Queue(*event.GuildID())
	if snapshot == nil || (snapshot.Current == nil && len(snapshot.Items) == 0) {
		respond(event, MsgQueueEmpty)
		return
	}
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(renderQueue(snapshot)).
		AddComponents(musicControlRows()...).
		Build())
}

func renderQueue(s *proc.QueueSnapshot) string {
	var b strings.Builder

	if s.Current != nil {
		b.WriteString(MsgNowPlayingLabel)
		b.WriteString(formatTrackLink(s.Current))
		b.WriteString(" `")
		b.WriteString(formatDuration(s.Current.Track.Info.Length))
		b.WriteString("`")
		if s.Current.Autoplay != nil {
			b.WriteString(" _(autoplay: " + s.Current.Autoplay.DisplayName + ")_")
		}
		b.WriteString("\n")
	}

	for i, item := range s.Items {
		if i >= 10 {
			fmt.Fprintf(&b, "…and %d more\n", len(s.Items)-10)
			break
		}
		fmt.Fprintf(&b, "%d. %s `%s`", i+1, formatTrackLink(item), formatDuration(item.Track.Info.Length))
		if item.Requester != nil {
			b.WriteString(" — " + item.Requester.Name)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nLoop: `%s` | Volume: `%d`", s.LoopMode, s.Volume)
	if s.Autoplay.Enabled {
		fmt.Fprintf(&b, " | Autoplay: `%s`", proc.GenreDisplayName(s.Autoplay.Genre))
	}
	return b.String()
}

func formatDuration(ms int64) string {
	total := ms / 1000
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func handleMusicShuffle(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	items, err := proc.GetMusicManager().Shuffle(context.Background(), *event.GuildID())
	if err != nil {
		respondError(event, err)
		return
	}
	respond(event, fmt.Sprintf(MsgShuffled, len(items)))
}

func handleMusicVolume(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	level, _ := data.OptInt("level")
	volume, err := proc.GetMusicManager().SetVolume(context.Background(), *event.GuildID(), level)
	if err != nil {
		respondError(event, err)
		return
	}
	respond(event, fmt.Sprintf(MsgVolumeSet, volume))
}

func handleMusicLoop(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	mode, err := proc.GetMusicManager().CycleLoopMode(context.Background(), *event.GuildID())
	if err != nil {
		respondError(event, err)
		return
	}
	respond(event, fmt.Sprintf(MsgLoopMode, mode))
}

func handleMusicAutoplay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	state, _ := data.OptString("state")
	genre, _ := data.OptString("genre")

	autoplay, err := proc.GetMusicManager().SetAutoplay(
		context.Background(), *event.GuildID(), state == "on", genre)
	if err != nil {
		respondError(event, err)
		return
	}

	if autoplay.Enabled {
		respond(event, fmt.Sprintf(MsgAutoplayOn, proc.GenreDisplayName(autoplay.Genre)))
	} else {
		respond(event, MsgAutoplayOff)
	}
}

func handleMusicPause(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	paused, err := proc.GetMusicManager().TogglePause(context.Background(), *event.GuildID())
	if err != nil {
		respondError(event, err)
		return
	}
	if paused {
		respond(event, MsgPaused)
	} else {
		respond(event, MsgResumed)
	}
}

func handleGenreAutocomplete(event *events.AutocompleteInteractionCreate) {
	prefix := strings.ToLower(event.Data.Focused().String())

	var choices []discord.AutocompleteChoice
	for _, key := range proc.GenreKeys() {
		if prefix != "" && !strings.Contains(key, prefix) &&
			!strings.Contains(strings.ToLower(proc.GenreDisplayName(key)), prefix) {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  proc.GenreDisplayName(key),
			Value: key,
		})
		if len(choices) >= 25 {
			break
		}
	}
	_ = event.AutocompleteResult(choices)
}
