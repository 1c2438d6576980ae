package main

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
)

// ============================================================================
// Announcements Constants
// ============================================================================

const (
	MsgAnnounceErrGuildOnly = "This command can only be used in a server."
	MsgAnnounceErrSendFail  = "Failed to post the announcement."
	MsgAnnounceSent         = "Announcement posted in <#%s>."

	AnnounceColorNews      = 0x5865F2
	AnnounceColorChangelog = 0x57F287
	AnnounceColorTeam      = 0xEB459E
)

// ===========================
// Command Registration
// ===========================

func init() {
	messagesPerm := discord.PermissionManageMessages

	announceOptions := []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionChannel{
			Name:        "channel",
			Description: "Channel to post in",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "title",
			Description: "Announcement title",
			Required:    true,
		},
		discord.ApplicationCommandOptionString{
			Name:        "message",
			Description: "Announcement body",
			Required:    true,
		},
		discord.ApplicationCommandOptionRole{
			Name:        "mention",
			Description: "Role to ping with the announcement",
			Required:    false,
		},
	}

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "announce",
		Description:              "Post formatted announcements",
		DefaultMemberPermissions: omit.New(&messagesPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "news",
				Description: "Post a news announcement",
				Options:     announceOptions,
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "changelog",
				Description: "Post a changelog entry",
				Options:     announceOptions,
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "team",
				Description: "Post a team announcement",
				Options:     announceOptions,
			},
		},
	}, handleAnnounce)
}

func handleAnnounce(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	if event.GuildID() == nil {
		respondText(event, MsgAnnounceErrGuildOnly, true)
		return
	}

	var header string
	var color int
	switch *data.SubCommandName {
	case "news":
		header, color = "📰 News", AnnounceColorNews
	case "changelog":
		header, color = "🛠️ Changelog", AnnounceColorChangelog
	case "team":
		header, color = "👋 Team", AnnounceColorTeam
	default:
		return
	}

	channelID := data.Snowflake("channel")
	embed := discord.NewEmbedBuilder().
		SetAuthorName(header).
		SetTitle(data.String("title")).
		SetDescription(data.String("message")).
		SetColor(color).
		SetFooterText(fmt.Sprintf("Posted by %s", event.User().Username)).
		SetTimestamp(time.Now()).
		Build()

	client := *event.Client()
	var err error
	if roleID, ok := data.OptSnowflake("mention"); ok {
		_, err = client.Rest.CreateMessage(channelID, discord.MessageCreate{
			Content: fmt.Sprintf("<@&%s>", roleID),
			Embeds:  []discord.Embed{embed},
		})
	} else {
		err = sendChannelEmbed(client, channelID, embed)
	}
	if err != nil {
		LogBot("Failed to post announcement in %s: %v", channelID, err)
		respondText(event, MsgAnnounceErrSendFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgAnnounceSent, channelID), true)
}
