package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/selvany/otoha/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music playback",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a track or add it to the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "A URL or song name",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback and leave the voice channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the current queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the pending queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the playback volume",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "level",
						Description: "Volume from 0 to 100",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "loop",
				Description: "Cycle the loop mode (off, track, queue)",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "autoplay",
				Description: "Configure autoplay",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "state",
						Description: "Turn autoplay on or off",
						Required:    true,
						Choices: []discord.ApplicationCommandOptionChoiceString{
							{Name: "on", Value: "on"},
							{Name: "off", Value: "off"},
						},
					},
					discord.ApplicationCommandOptionString{
						Name:         "genre",
						Description:  "Genre to draw tracks from",
						Required:     false,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause or resume playback",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}

		switch *data.SubCommandName {
		case "play":
			handleMusicPlay(event, data)
		case "skip":
			handleMusicSkip(event, data)
		case "stop":
			handleMusicStop(event, data)
		case "queue":
			handleMusicQueue(event, data)
		case "shuffle":
			handleMusicShuffle(event, data)
		case "volume":
			handleMusicVolume(event, data)
		case "loop":
			handleMusicLoop(event, data)
		case "autoplay":
			handleMusicAutoplay(event, data)
		case "pause":
			handleMusicPause(event, data)
		}
	})

	sys.RegisterAutocompleteHandler("music", func(event *events.AutocompleteInteractionCreate) {
		switch event.Data.Focused().Name {
		case "query":
			handleQueryAutocomplete(event)
		case "genre":
			handleGenreAutocomplete(event)
		}
	})
}
