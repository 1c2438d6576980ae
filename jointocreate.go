package main

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Join To Create Constants
// ============================================================================

const (
	MsgLobbyErrGuildOnly     = "This command can only be used in a server."
	MsgLobbyErrAlreadySet    = "That channel is already a join-to-create lobby."
	MsgLobbyErrSaveFail      = "Failed to save the lobby configuration."
	MsgLobbyErrNotFound      = "That channel is not a tracked lobby."
	MsgLobbySetSuccess       = "Joining <#%s> now creates a private channel under <#%s>."
	MsgLobbyRemoved          = "Lobby removed."
	MsgLobbyListNone         = "No join-to-create lobbies are set up."
	MsgLobbyChannelReady     = "🔊 <@%s>, your private channel is ready: <#%s>"
	MsgLobbyDMInvite         = "Here is the invite to your private channel: https://discord.gg/%s"
	MsgLobbyLogCategoryGone  = "Lobby %s in guild %s points at a missing category"
	MsgLobbyLogCreateFail    = "Failed to create private channel for user %s in guild %s: %v"
	MsgLobbyLogMoveFail      = "Failed to move user %s into channel %s: %v"
	MsgLobbyLogReused        = "Reusing private channel %s for user %s"
	MsgLobbyLogCreated       = "Created private channel %s for user %s in guild %s"
	LobbyPrivateChannelStart = "private-"
)

// ===========================
// Command Registration
// ===========================

func init() {
	channelsPerm := discord.PermissionManageChannels

	RegisterVoiceStateUpdateHandler(onLobbyVoiceState)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "jointocreate",
		Description:              "Join-to-create voice lobbies",
		DefaultMemberPermissions: omit.New(&channelsPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "set",
				Description: "Track a voice channel as a lobby",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "The lobby voice channel",
						Required:    true,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "category",
						Description: "Category for private channels",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List tracked lobbies",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Stop tracking a lobby",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "The lobby voice channel",
						Required:    true,
					},
				},
			},
		},
	}, handleJoinToCreate)
}

func handleJoinToCreate(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "set":
		handleLobbySet(event, data)
	case "list":
		handleLobbyList(event)
	case "remove":
		handleLobbyRemove(event, data)
	}
}

func handleLobbySet(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgLobbyErrGuildOnly, true)
		return
	}

	lobby := &Lobby{
		GuildID:    *guildID,
		ChannelID:  data.Snowflake("channel"),
		CategoryID: data.Snowflake("category"),
	}

	err := CreateLobby(AppContext, lobby)
	if err == ErrAlreadyTracked {
		respondText(event, MsgLobbyErrAlreadySet, true)
		return
	}
	if err != nil {
		LogLobby("Failed to save lobby in guild %s: %v", guildID, err)
		respondText(event, MsgLobbyErrSaveFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgLobbySetSuccess, lobby.ChannelID, lobby.CategoryID), true)
}

func handleLobbyList(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgLobbyErrGuildOnly, true)
		return
	}

	lobbies, err := ListLobbies(AppContext, *guildID)
	if err != nil || len(lobbies) == 0 {
		respondText(event, MsgLobbyListNone, true)
		return
	}

	var sb strings.Builder
	for _, l := range lobbies {
		users, _ := GetLobbyUsers(AppContext, l.ID)
		fmt.Fprintf(&sb, "<#%s> → <#%s> (%d users)\n", l.ChannelID, l.CategoryID, len(users))
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Join-To-Create Lobbies").
		SetDescription(sb.String()).
		SetColor(0x5865F2).
		Build(), true)
}

func handleLobbyRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgLobbyErrGuildOnly, true)
		return
	}

	removed, err := DeleteLobby(AppContext, *guildID, data.Snowflake("channel"))
	if err != nil || !removed {
		respondText(event, MsgLobbyErrNotFound, true)
		return
	}

	respondText(event, MsgLobbyRemoved, true)
}

// ===========================
// Voice State Handling
// ===========================

// onLobbyVoiceState reacts to members joining a tracked lobby and prunes
// the tracked set when they leave a spawned channel. Joins to untracked
// channels fall through immediately without any lookup beyond the single
// registry read.
func onLobbyVoiceState(event *events.GuildVoiceStateUpdate) {
	newChannelID := event.VoiceState.ChannelID
	oldChannelID := event.OldVoiceState.ChannelID
	if oldChannelID != nil && newChannelID != nil && *oldChannelID == *newChannelID {
		return
	}
	if oldChannelID != nil {
		pruneLobbyUser(event, *oldChannelID)
	}
	if newChannelID == nil {
		return
	}

	guildID := event.VoiceState.GuildID
	lobby, err := GetLobby(AppContext, guildID, *newChannelID)
	if err != nil || lobby == nil {
		return
	}

	client := *event.Client()
	if err := GuardLobbyEnter(NewResolver(client), lobby); err != nil {
		LogLobby(MsgLobbyLogCategoryGone, lobby.ChannelID, guildID)
		return
	}

	user := event.Member.User
	name := LobbyPrivateChannelStart + SanitizeChannelName(user.Username)

	// An existing private channel for this member is reused instead of
	// stacking duplicates.
	var privateID snowflake.ID
	if channels, err := client.Rest.GetGuildChannels(guildID); err == nil {
		for _, ch := range channels {
			if ch.Type() == discord.ChannelTypeGuildVoice && ch.Name() == name {
				privateID = ch.ID()
				break
			}
		}
	}

	if privateID == 0 {
		channel, err := client.Rest.CreateGuildChannel(guildID, discord.GuildVoiceChannelCreate{
			Name:     name,
			ParentID: lobby.CategoryID,
			PermissionOverwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{
					RoleID: guildID, // @everyone
					Deny:   discord.PermissionConnect | discord.PermissionSpeak,
				},
				discord.MemberPermissionOverwrite{
					UserID: user.ID,
					Allow:  discord.PermissionConnect | discord.PermissionSpeak,
				},
			},
		})
		if err != nil {
			LogLobby(MsgLobbyLogCreateFail, user.ID, guildID, err)
			return
		}
		privateID = channel.ID()
		LogLobby(MsgLobbyLogCreated, privateID, user.ID, guildID)
	} else {
		LogLobby(MsgLobbyLogReused, privateID, user.ID)
	}

	if _, err := client.Rest.UpdateMember(guildID, user.ID, discord.MemberUpdate{
		ChannelID: &privateID,
	}); err != nil {
		LogLobby(MsgLobbyLogMoveFail, user.ID, privateID, err)
		return
	}

	_ = AddLobbyUser(AppContext, lobby.ID, user.ID)

	_ = sendChannelEmbed(client, lobby.ChannelID, discord.NewEmbedBuilder().
		SetDescription(fmt.Sprintf(MsgLobbyChannelReady, user.ID, privateID)).
		SetColor(0x57F287).
		Build())

	// Invite and DM are best effort; the member is already in the channel.
	unlimited := 0
	invite, err := client.Rest.CreateInvite(privateID, discord.InviteCreate{
		MaxAge:  &unlimited,
		MaxUses: &unlimited,
	})
	if err != nil {
		return
	}
	dmChannel, err := client.Rest.CreateDMChannel(user.ID)
	if err != nil {
		return
	}
	_ = sendChannelEmbed(client, dmChannel.ID(), discord.NewEmbedBuilder().
		SetDescription(fmt.Sprintf(MsgLobbyDMInvite, invite.Code)).
		SetColor(0x5865F2).
		Build())
}

// pruneLobbyUser drops the member from a lobby's tracked set when the
// channel they left is a spawned private channel under that lobby's
// category.
func pruneLobbyUser(event *events.GuildVoiceStateUpdate, leftChannelID snowflake.ID) {
	client := *event.Client()
	ch, ok := client.Caches.Channel(leftChannelID)
	if !ok || !strings.HasPrefix(ch.Name(), LobbyPrivateChannelStart) {
		return
	}
	parentID := ch.ParentID()
	if parentID == nil {
		return
	}

	lobbies, err := ListLobbies(AppContext, event.VoiceState.GuildID)
	if err != nil {
		return
	}
	for _, lobby := range lobbies {
		if lobby.CategoryID != *parentID {
			continue
		}
		if err := RemoveLobbyUser(AppContext, lobby.ID, event.Member.User.ID); err != nil {
			LogLobby("Failed to untrack user %s for lobby %s: %v", event.Member.User.ID, lobby.ChannelID, err)
		}
	}
}
