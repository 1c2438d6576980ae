package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Leveling Constants
// ============================================================================

const (
	MsgLevelErrGuildOnly   = "This command can only be used in a server."
	MsgLevelErrLookupFail  = "Failed to look up level data."
	MsgLevelNoRecord       = "You haven't earned any XP yet. Say something!"
	MsgLevelCurrent        = "You are level **%d** with **%d** XP."
	MsgLevelProgress       = "Level **%d** — **%d** / **%d** XP (%d to go)"
	MsgLevelLeaderboardRow = "%d. <@%s> — Level %d (%d XP)"
	MsgLevelLeaderboardNil = "Nobody has earned XP yet."
	MsgLevelCongrats       = "🎉 Congrats <@%s>, you reached level **%d**!"
	MsgLevelCongratsSelf   = "🎉 Congrats, you reached level **%d**!"

	LevelXPPerLevel       = 100
	LevelCongratsChance   = 10
	LevelCongratsAutoDel  = 5 * time.Second
	LevelLeaderboardLimit = 10
	XPReasonMessage       = "message"
	XPReasonVoiceJoin     = "voice_join"
	XPReasonCommand       = "command"
)

// LevelForXP maps a lifetime XP total onto a level.
func LevelForXP(xp int) int {
	if xp < 0 {
		return 0
	}
	return xp / LevelXPPerLevel
}

// NextLevelXP returns the XP total at which the given level is left behind.
func NextLevelXP(level int) int {
	return (level + 1) * LevelXPPerLevel
}

func xpAmount() int {
	min, max := 5, 14
	if GlobalConfig != nil {
		min, max = GlobalConfig.XPMin, GlobalConfig.XPMax
	}
	return RandomIntRange(min, max)
}

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterMessageCreateHandler(onLevelMessage)
	RegisterVoiceStateUpdateHandler(onLevelVoiceJoin)
	RegisterCommandUseObserver(onLevelCommandUse)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "level",
		Description: "XP and levels",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "current",
				Description: "Show your current level",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "progress",
				Description: "Show progress towards the next level",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leaderboard",
				Description: "Show the top members by level",
			},
		},
	}, handleLevel)
}

func handleLevel(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgLevelErrGuildOnly, true)
		return
	}

	switch *data.SubCommandName {
	case "current":
		handleLevelCurrent(event, *guildID)
	case "progress":
		handleLevelProgress(event, *guildID)
	case "leaderboard":
		handleLevelLeaderboard(event, *guildID)
	}
}

func handleLevelCurrent(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	record, err := GetLevelRecord(AppContext, guildID, event.User().ID)
	if err != nil {
		respondText(event, MsgLevelErrLookupFail, true)
		return
	}
	if record == nil {
		respondText(event, MsgLevelNoRecord, true)
		return
	}
	respondText(event, fmt.Sprintf(MsgLevelCurrent, record.Level, record.XP), true)
}

func handleLevelProgress(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	record, err := GetLevelRecord(AppContext, guildID, event.User().ID)
	if err != nil {
		respondText(event, MsgLevelErrLookupFail, true)
		return
	}
	if record == nil {
		respondText(event, MsgLevelNoRecord, true)
		return
	}
	next := NextLevelXP(record.Level)
	respondText(event, fmt.Sprintf(MsgLevelProgress, record.Level, record.XP, next, next-record.XP), true)
}

func handleLevelLeaderboard(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	records, err := GetLevelLeaderboard(AppContext, guildID, LevelLeaderboardLimit)
	if err != nil {
		respondText(event, MsgLevelErrLookupFail, true)
		return
	}
	if len(records) == 0 {
		respondText(event, MsgLevelLeaderboardNil, true)
		return
	}

	var sb strings.Builder
	for i, r := range records {
		fmt.Fprintf(&sb, MsgLevelLeaderboardRow+"\n", i+1, r.UserID, r.Level, r.XP)
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Level Leaderboard").
		SetDescription(sb.String()).
		SetColor(0xFEE75C).
		Build(), false)
}

// ===========================
// XP Awarding
// ===========================

func onLevelMessage(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}

	record, leveledUp, err := AwardXP(AppContext, *event.GuildID, event.Message.Author.ID, xpAmount(), XPReasonMessage)
	if err != nil {
		LogLevel("Failed to award XP to %s: %v", event.Message.Author.ID, err)
		return
	}
	if !leveledUp || RandomIntRange(1, 100) > LevelCongratsChance {
		return
	}

	client := *event.Client()
	msg, err := client.Rest.CreateMessage(event.ChannelID, discord.NewMessageCreate().
		WithContent(fmt.Sprintf(MsgLevelCongrats, event.Message.Author.ID, record.Level)))
	if err != nil {
		return
	}

	channelID := event.ChannelID
	messageID := msg.ID
	time.AfterFunc(LevelCongratsAutoDel, func() {
		_ = client.Rest.DeleteMessage(channelID, messageID)
	})
}

func onLevelVoiceJoin(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.ChannelID == nil || event.Member.User.Bot {
		return
	}
	if event.OldVoiceState.ChannelID != nil {
		return
	}

	_, _, err := AwardXP(AppContext, event.VoiceState.GuildID, event.Member.User.ID, xpAmount(), XPReasonVoiceJoin)
	if err != nil {
		LogLevel("Failed to award voice XP to %s: %v", event.Member.User.ID, err)
	}
}

func onLevelCommandUse(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil || event.User().Bot {
		return
	}

	record, leveledUp, err := AwardXP(AppContext, *guildID, event.User().ID, xpAmount(), XPReasonCommand)
	if err != nil {
		LogLevel("Failed to award command XP to %s: %v", event.User().ID, err)
		return
	}
	if leveledUp && RandomIntRange(1, 100) <= LevelCongratsChance {
		client := *event.Client()
		_, _ = client.Rest.CreateFollowupMessage(event.ApplicationID(), event.Token(), discord.NewMessageCreate().
			WithContent(fmt.Sprintf(MsgLevelCongratsSelf, record.Level)).
			WithEphemeral(true))
	}
}
