package main

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Activity Tracking Constants
// ============================================================================

const (
	MsgActivityErrGuildOnly   = "This command can only be used in a server."
	MsgActivityErrLookupFail  = "Failed to look up activity data."
	MsgActivityNone           = "No activity recorded in the last %d days."
	MsgActivityLeaderboardNil = "No activity recorded yet."
	MsgActivityLeaderboardRow = "%d. %s — %d events"

	ActivityWindowDays      = 30
	ActivityLeaderboardTop  = 10
	ActivityTypeMessage     = "message"
	ActivityTypeVoiceJoin   = "voice_join"
	ActivityTypeVoiceLeave  = "voice_leave"
	ActivityCommandPrefix   = "command:"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterMessageCreateHandler(onActivityMessage)
	RegisterVoiceStateUpdateHandler(onActivityVoiceState)
	RegisterCommandUseObserver(onActivityCommandUse)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "activity",
		Description: "Member activity tracking",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "me",
				Description: "Show your daily activity over the last 30 days",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leaderboard",
				Description: "Show the most active members",
			},
		},
	}, handleActivity)
}

func handleActivity(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgActivityErrGuildOnly, true)
		return
	}

	switch *data.SubCommandName {
	case "me":
		handleActivityMe(event, *guildID)
	case "leaderboard":
		handleActivityLeaderboard(event, *guildID)
	}
}

func handleActivityMe(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	daily, err := GetDailyActivity(AppContext, guildID, event.User().ID, ActivityWindowDays)
	if err != nil {
		respondText(event, MsgActivityErrLookupFail, true)
		return
	}
	if len(daily) == 0 {
		respondText(event, fmt.Sprintf(MsgActivityNone, ActivityWindowDays), true)
		return
	}

	var sb strings.Builder
	total := 0
	for _, d := range daily {
		fmt.Fprintf(&sb, "`%s` — %d\n", d.Day, d.Count)
		total += d.Count
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Your Activity").
		SetDescription(sb.String()).
		SetFooterText(fmt.Sprintf("%d events over %d days", total, ActivityWindowDays)).
		SetColor(0x5865F2).
		Build(), true)
}

func handleActivityLeaderboard(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	ranks, err := GetActivityLeaderboard(AppContext, guildID, ActivityLeaderboardTop)
	if err != nil {
		respondText(event, MsgActivityErrLookupFail, true)
		return
	}
	if len(ranks) == 0 {
		respondText(event, MsgActivityLeaderboardNil, true)
		return
	}

	var sb strings.Builder
	for i, r := range ranks {
		name := r.UserName
		if name == "" {
			name = fmt.Sprintf("<@%s>", r.UserID)
		}
		fmt.Fprintf(&sb, MsgActivityLeaderboardRow+"\n", i+1, name, r.Count)
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Activity Leaderboard").
		SetDescription(sb.String()).
		SetColor(0xFEE75C).
		Build(), false)
}

// ===========================
// Event Recording
// ===========================

func recordActivity(guildID, userID snowflake.ID, userName, activityType string) {
	err := AddActivity(AppContext, &ActivityEntry{
		GuildID:  guildID,
		UserID:   userID,
		UserName: userName,
		Type:     activityType,
	})
	if err != nil {
		LogActivity("Failed to record %s for %s: %v", activityType, userID, err)
	}
}

func onActivityMessage(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}
	recordActivity(*event.GuildID, event.Message.Author.ID, event.Message.Author.Username, ActivityTypeMessage)
}

func onActivityVoiceState(event *events.GuildVoiceStateUpdate) {
	if event.Member.User.Bot {
		return
	}

	oldID := event.OldVoiceState.ChannelID
	newID := event.VoiceState.ChannelID
	guildID := event.VoiceState.GuildID
	user := event.Member.User

	switch {
	case oldID == nil && newID != nil:
		recordActivity(guildID, user.ID, user.Username, ActivityTypeVoiceJoin)
	case oldID != nil && newID == nil:
		recordActivity(guildID, user.ID, user.Username, ActivityTypeVoiceLeave)
	}
}

func onActivityCommandUse(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil || event.User().Bot {
		return
	}
	recordActivity(*guildID, event.User().ID, event.User().Username, ActivityCommandPrefix+event.Data.CommandName())
}
