package home

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/selvany/otoha/proc"
	"github.com/selvany/otoha/sys"
)

func init() {
	sys.RegisterComponentHandler("music:", handleMusicButton)
}

// musicControlRows builds the control panel attached to queue messages.
func musicControlRows() []discord.LayoutComponent {
	return []discord.LayoutComponent{
		discord.NewActionRow(
			discord.NewSecondaryButton("⏯️", "music:pause"),
			discord.NewSecondaryButton("⏭️", "music:skip"),
			discord.NewSecondaryButton("⏹️", "music:stop"),
		),
		discord.NewActionRow(
			discord.NewSecondaryButton("🔀", "music:shuffle"),
			discord.NewSecondaryButton("🔁", "music:loop"),
			discord.NewSecondaryButton("🎶", "music:genre"),
		),
	}
}

func handleMusicButton(event *events.ComponentInteractionCreate) {
	if event.GuildID() == nil {
		return
	}
	guildID := *event.GuildID()
	action := strings.TrimPrefix(event.Data.CustomID(), "music:")

	ctx := context.Background()
	m := proc.GetMusicManager()

	var note string
	var err error
	switch action {
	case "pause":
		var paused bool
		if paused, err = m.TogglePause(ctx, guildID); err == nil {
			note = MsgResumed
			if paused {
				note = MsgPaused
			}
		}
	case "skip":
		err = m.Skip(ctx, guildID)
		note = MsgSkipped
	case "stop":
		err = m.Stop(ctx, guildID)
		note = MsgStopped
	case "shuffle":
		var items []*proc.QueueItem
		if items, err = m.Shuffle(ctx, guildID); err == nil {
			note = fmt.Sprintf(MsgShuffled, len(items))
		}
	case "loop":
		var mode proc.LoopMode
		if mode, err = m.CycleLoopMode(ctx, guildID); err == nil {
			note = fmt.Sprintf(MsgLoopMode, mode)
		}
	case "genre":
		var autoplay proc.AutoplayState
		if autoplay, err = m.CycleAutoplayGenre(ctx, guildID); err == nil {
			note = fmt.Sprintf(MsgAutoplayOn, proc.GenreDisplayName(autoplay.Genre))
		}
	default:
		return
	}

	if err != nil {
		_ = event.CreateMessage(discord.NewMessageCreateBuilder().
			SetContent(MsgCommandFailed + err.Error()).
			SetEphemeral(true).
			Build())
		return
	}

	snapshot := m.Queue(guildID)
	if snapshot == nil || (snapshot.Current == nil && len(snapshot.Items) == 0) {
		_ = event.UpdateMessage(discord.NewMessageUpdateBuilder().
			SetContent(note).
			ClearComponents().
			Build())
		return
	}

	_ = event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetContent(note + "\n\n" + renderQueue(snapshot)).
		Build())
}
