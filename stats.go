package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ============================================================================
// Server Stats Constants
// ============================================================================

const (
	MsgStatsErrGuildOnly    = "This command can only be used in a server."
	MsgStatsErrUnknownType  = "Unknown stat type. Valid types: %s"
	MsgStatsErrDuplicate    = "A channel for that stat already exists. Remove it first."
	MsgStatsErrCreateFail   = "Failed to create the stat channel."
	MsgStatsErrSaveFail     = "Failed to save the stat configuration."
	MsgStatsErrNotFound     = "No stat channel of that type is configured."
	MsgStatsSetSuccess      = "Stat channel <#%s> now tracks **%s**."
	MsgStatsRemoved         = "Stat channel removed."
	MsgStatsListNone        = "No stat channels are configured."
	MsgStatsRefreshSkipped  = "Refresh already in flight, skipping this cycle"
	MsgStatsRefreshStart    = "Refreshing %d stat channels"
	MsgStatsRenameFail      = "Failed to rename stat channel %s: %v"
	MsgStatsGuildFetchFail  = "Failed to fetch guild %s for stats: %v"
	MsgStatsDaemonShutdown  = "Stats refresher stopped."
	MsgStatsCooldown        = "Rate limited, pausing stat renames for one cycle"
	StatsRenamePerInterval  = 2
	StatsRenameMinSpacing   = 5 * time.Second
	StatsCountPlaceholder   = "{count}"
)

const (
	StatTypeMembers       = "members"
	StatTypeOnline        = "online"
	StatTypeBoosts        = "boosts"
	StatTypeVoiceChannels = "voice_channels"
	StatTypeTextChannels  = "text_channels"
	StatTypeRoles         = "roles"
	StatTypeEmojis        = "emojis"
	StatTypeAllChannels   = "all_channels"
	StatTypeTier          = "tier"
)

// statTemplates maps each stat type to its default channel name template.
// The {count} placeholder is substituted on every refresh.
var statTemplates = map[string]string{
	StatTypeMembers:       "👥 Members: {count}",
	StatTypeOnline:        "🟢 Online: {count}",
	StatTypeBoosts:        "🚀 Boosts: {count}",
	StatTypeVoiceChannels: "🔊 Voice Channels: {count}",
	StatTypeTextChannels:  "💬 Text Channels: {count}",
	StatTypeRoles:         "🎭 Roles: {count}",
	StatTypeEmojis:        "😀 Emojis: {count}",
	StatTypeAllChannels:   "📚 Channels: {count}",
	StatTypeTier:          "⭐ Tier: {count}",
}

var statsRefreshInFlight atomic.Bool
var statsCooldownUntil atomic.Int64
var statsRenameLimiter = rate.NewLimiter(rate.Every(StatsRenameMinSpacing), StatsRenamePerInterval)

// ===========================
// Command Registration
// ===========================

func init() {
	managePerm := discord.PermissionManageChannels

	OnClientReady(func(ctx context.Context, client bot.Client) {
		RegisterDaemon(LogStats, func(ctx context.Context) (bool, func(), func()) { return StartStatsRefresher(ctx, client) })
	})

	statChoices := make([]discord.ApplicationCommandOptionChoiceString, 0, len(statTemplates))
	for statType := range statTemplates {
		statChoices = append(statChoices, discord.ApplicationCommandOptionChoiceString{
			Name:  statType,
			Value: statType,
		})
	}

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "stats",
		Description:              "Server stat channels",
		DefaultMemberPermissions: omit.New(&managePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "set",
				Description: "Create a channel tracking a server stat",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "type",
						Description: "The stat to display",
						Required:    true,
						Choices:     statChoices,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "Existing voice channel to repurpose, omit to create one",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "template",
						Description: "Channel name template, {count} is replaced with the value",
						Required:    false,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "category",
						Description: "Category to place a created channel under",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List configured stat channels",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a stat channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "type",
						Description: "The stat to stop tracking",
						Required:    true,
						Choices:     statChoices,
					},
				},
			},
		},
	}, handleStats)
}

func handleStats(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgStatsErrGuildOnly, true)
		return
	}

	switch *data.SubCommandName {
	case "set":
		handleStatsSet(event, data, *guildID)
	case "list":
		handleStatsList(event, *guildID)
	case "remove":
		handleStatsRemove(event, data, *guildID)
	}
}

func handleStatsSet(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, guildID snowflake.ID) {
	statType := data.String("type")
	template, ok := statTemplates[statType]
	if !ok {
		respondText(event, fmt.Sprintf(MsgStatsErrUnknownType, statTypeList()), true)
		return
	}
	if custom, ok := data.OptString("template"); ok && strings.Contains(custom, StatsCountPlaceholder) {
		template = custom
	}

	client := *event.Client()
	value := computeStatValue(AppContext, client, guildID, statType)
	name := RenderStatName(template, value)

	channelID, adopted := data.OptSnowflake("channel")
	if !adopted {
		create := discord.GuildVoiceChannelCreate{
			Name: name,
			PermissionOverwrites: []discord.PermissionOverwrite{
				discord.RolePermissionOverwrite{
					RoleID: guildID, // @everyone
					Deny:   discord.PermissionConnect,
				},
			},
		}
		if categoryID, ok := data.OptSnowflake("category"); ok {
			create.ParentID = categoryID
		}

		channel, err := client.Rest.CreateGuildChannel(guildID, create)
		if err != nil {
			LogStats("Failed to create stat channel in guild %s: %v", guildID, err)
			respondText(event, MsgStatsErrCreateFail, true)
			return
		}
		channelID = channel.ID()
	}

	// An adopted channel keeps its current name until the first refresh.
	lastName := name
	if adopted {
		lastName = ""
	}

	err := CreateStatChannel(AppContext, &StatChannel{
		GuildID:   guildID,
		StatType:  statType,
		ChannelID: channelID,
		Template:  template,
		LastName:  lastName,
	})
	if err == ErrDuplicateStat {
		if !adopted {
			_ = client.Rest.DeleteChannel(channelID)
		}
		respondText(event, MsgStatsErrDuplicate, true)
		return
	}
	if err != nil {
		if !adopted {
			_ = client.Rest.DeleteChannel(channelID)
		}
		respondText(event, MsgStatsErrSaveFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgStatsSetSuccess, channelID, statType), true)
}

func handleStatsList(event *events.ApplicationCommandInteractionCreate, guildID snowflake.ID) {
	ReconcileStatChannels(AppContext, NewResolver(*event.Client()))

	stats, err := GetStatChannels(AppContext, guildID)
	if err != nil || len(stats) == 0 {
		respondText(event, MsgStatsListNone, true)
		return
	}

	var sb strings.Builder
	for _, s := range stats {
		fmt.Fprintf(&sb, "**%s** → <#%s>\n", s.StatType, s.ChannelID)
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Stat Channels").
		SetDescription(sb.String()).
		SetColor(0x5865F2).
		Build(), true)
}

func handleStatsRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, guildID snowflake.ID) {
	statType := data.String("type")

	stats, err := GetStatChannels(AppContext, guildID)
	if err != nil {
		respondText(event, MsgStatsErrNotFound, true)
		return
	}

	var target *StatChannel
	for _, s := range stats {
		if s.StatType == statType {
			target = s
			break
		}
	}
	if target == nil {
		respondText(event, MsgStatsErrNotFound, true)
		return
	}

	client := *event.Client()
	_ = client.Rest.DeleteChannel(target.ChannelID)

	removed, err := DeleteStatChannel(AppContext, guildID, statType)
	if err != nil || !removed {
		respondText(event, MsgStatsErrNotFound, true)
		return
	}

	respondText(event, MsgStatsRemoved, true)
}

func statTypeList() string {
	types := make([]string, 0, len(statTemplates))
	for t := range statTemplates {
		types = append(types, t)
	}
	return strings.Join(types, ", ")
}

// RenderStatName substitutes the count placeholder in a template.
func RenderStatName(template, value string) string {
	return strings.ReplaceAll(template, StatsCountPlaceholder, value)
}

// ===========================
// Refresh Daemon
// ===========================

func StartStatsRefresher(ctx context.Context, client bot.Client) (bool, func(), func()) {
	interval := 10 * time.Minute
	if GlobalConfig != nil && GlobalConfig.StatsRefreshMins > 0 {
		interval = time.Duration(GlobalConfig.StatsRefreshMins) * time.Minute
	}

	// Back off a full cycle when Discord starts rate limiting us.
	OnRateLimitExceeded(func() {
		statsCooldownUntil.Store(time.Now().Add(interval).Unix())
		LogStats(MsgStatsCooldown)
	})

	refreshAllStats(ctx, client)

	return true, func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					refreshAllStats(ctx, client)
				case <-ctx.Done():
					return
				}
			}
		}, func() {
			LogStats(MsgStatsDaemonShutdown)
		}
}

// refreshAllStats runs at most once at a time. Overlapping cycles are
// skipped rather than queued so a slow Discord API cannot stack work.
func refreshAllStats(ctx context.Context, client bot.Client) {
	if time.Now().Unix() < statsCooldownUntil.Load() {
		return
	}
	if !statsRefreshInFlight.CompareAndSwap(false, true) {
		LogStats(MsgStatsRefreshSkipped)
		return
	}
	defer statsRefreshInFlight.Store(false)

	ReconcileStatChannels(ctx, NewResolver(client))

	stats, err := GetAllStatChannels(ctx)
	if err != nil || len(stats) == 0 {
		return
	}
	LogStats(MsgStatsRefreshStart, len(stats))

	for _, s := range stats {
		value := computeStatValue(ctx, client, s.GuildID, s.StatType)
		name := RenderStatName(s.Template, value)
		if name == s.LastName {
			continue
		}

		if err := statsRenameLimiter.Wait(ctx); err != nil {
			return
		}
		if _, err := client.Rest.UpdateChannel(s.ChannelID, discord.GuildVoiceChannelUpdate{
			Name: &name,
		}); err != nil {
			LogStats(MsgStatsRenameFail, s.ChannelID, err)
			continue
		}
		_ = SetStatChannelLastName(ctx, s.ID, name)
	}
}

func computeStatValue(ctx context.Context, client bot.Client, guildID snowflake.ID, statType string) string {
	switch statType {
	case StatTypeMembers, StatTypeOnline, StatTypeBoosts, StatTypeTier:
		guild, err := client.Rest.GetGuild(guildID, true)
		if err != nil {
			LogStats(MsgStatsGuildFetchFail, guildID, err)
			return "?"
		}
		switch statType {
		case StatTypeMembers:
			return fmt.Sprintf("%d", guild.ApproximateMemberCount)
		case StatTypeOnline:
			return fmt.Sprintf("%d", guild.ApproximatePresenceCount)
		case StatTypeBoosts:
			return fmt.Sprintf("%d", guild.PremiumSubscriptionCount)
		case StatTypeTier:
			return fmt.Sprintf("%d", guild.PremiumTier)
		}
	case StatTypeRoles:
		roles, err := client.Rest.GetRoles(guildID)
		if err != nil {
			return "?"
		}
		return fmt.Sprintf("%d", len(roles))
	case StatTypeEmojis:
		emojis, err := client.Rest.GetEmojis(guildID)
		if err != nil {
			return "?"
		}
		return fmt.Sprintf("%d", len(emojis))
	case StatTypeVoiceChannels, StatTypeTextChannels, StatTypeAllChannels:
		return fmt.Sprintf("%d", countGuildChannels(client, guildID, statType))
	}
	return "?"
}

func countGuildChannels(client bot.Client, guildID snowflake.ID, statType string) int {
	count := 0
	for ch := range client.Caches.Channels() {
		if ch.GuildID() != guildID {
			continue
		}
		switch statType {
		case StatTypeVoiceChannels:
			if ch.Type() == discord.ChannelTypeGuildVoice || ch.Type() == discord.ChannelTypeGuildStageVoice {
				count++
			}
		case StatTypeTextChannels:
			if ch.Type() == discord.ChannelTypeGuildText || ch.Type() == discord.ChannelTypeGuildNews {
				count++
			}
		case StatTypeAllChannels:
			count++
		}
	}
	return count
}
