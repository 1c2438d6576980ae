package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Reaction Role Constants
// ============================================================================

const (
	MsgRoleErrGuildOnly    = "This command can only be used in a server."
	MsgRoleErrNoMappings   = "No valid role mappings found. Use the format `emoji -> @Role, emoji -> @Role`."
	MsgRoleErrNoRecord     = "No reaction roles found for this message."
	MsgRoleErrNoRole       = "No role is mapped to this emoji."
	MsgRoleErrRoleGone     = "The mapped role no longer exists."
	MsgRoleErrSaveFail     = "Failed to save the reaction role message."
	MsgRoleErrToggleFail   = "Could not update your role. Please try again later."
	MsgRoleErrNotFound     = "No reaction role message found with that ID."
	MsgRoleAdded           = "✅ You now have the <@&%s> role."
	MsgRoleRemoved         = "❌ The <@&%s> role has been removed."
	MsgRoleCreated         = "Reaction role message posted with %d mappings."
	MsgRoleDeleted         = "Reaction role message deleted."
	MsgRoleListNone        = "No reaction role messages are set up."
	MsgRoleLogToggle       = "Toggled role %s (%s) for user %s in guild %s"
	MsgRoleLogCreateFail   = "Failed to create reaction role record in guild %s: %v"
	MsgRoleActionAdded     = "added"
	MsgRoleActionRemoved   = "removed"
	ReactionRoleButtonsMax = 5
)

var roleMappingRe = regexp.MustCompile(`^(.+?)\s*->\s*<@&(\d+)>$`)

// ===========================
// Command Registration
// ===========================

func init() {
	rolesPerm := discord.PermissionManageRoles

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "reactionrole",
		Description:              "Self-assignable role messages",
		DefaultMemberPermissions: omit.New(&rolesPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "create",
				Description: "Post a reaction role message in this channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "title",
						Description: "Embed title",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "description",
						Description: "Embed description",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "roles",
						Description: "Mappings: emoji -> @Role, emoji -> @Role",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List reaction role messages",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "delete",
				Description: "Delete a reaction role message",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "message_id",
						Description: "ID of the reaction role message",
						Required:    true,
					},
				},
			},
		},
	}, handleReactionRole)

	RegisterComponentHandler("reaction_role:", handleRoleToggle)
}

func handleReactionRole(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "create":
		handleReactionRoleCreate(event, data)
	case "list":
		handleReactionRoleList(event)
	case "delete":
		handleReactionRoleDelete(event, data)
	}
}

// ParseRoleMappings parses the `emoji -> @Role` comma-separated syntax.
// Duplicate emojis keep the first mapping.
func ParseRoleMappings(input string) ([]RoleMapping, error) {
	var mappings []RoleMapping
	seen := map[string]bool{}

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := roleMappingRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		emoji := strings.TrimSpace(m[1])
		if emoji == "" || seen[emoji] {
			continue
		}
		roleID, err := snowflake.Parse(m[2])
		if err != nil {
			continue
		}
		seen[emoji] = true
		mappings = append(mappings, RoleMapping{Emoji: emoji, RoleID: roleID})
	}

	if len(mappings) == 0 {
		return nil, ErrRoleMappingNotFound
	}
	return mappings, nil
}

func handleReactionRoleCreate(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgRoleErrGuildOnly, true)
		return
	}

	mappings, err := ParseRoleMappings(data.String("roles"))
	if err != nil {
		respondText(event, MsgRoleErrNoMappings, true)
		return
	}

	var assigned strings.Builder
	for _, m := range mappings {
		fmt.Fprintf(&assigned, "%s — <@&%s>\n", m.Emoji, m.RoleID)
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(data.String("title")).
		SetDescription(data.String("description")).
		AddField("Assigned Roles", assigned.String(), false).
		SetColor(0x5865F2).
		Build()

	var rows []discord.LayoutComponent
	var row []discord.InteractiveComponent
	for _, m := range mappings {
		row = append(row, discord.NewSecondaryButton(m.Emoji, "reaction_role:"+m.Emoji))
		if len(row) == ReactionRoleButtonsMax {
			rows = append(rows, discord.NewActionRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discord.NewActionRow(row...))
	}

	client := *event.Client()
	channelID := event.Channel().ID()
	msg, err := client.Rest.CreateMessage(channelID, discord.NewMessageCreate().
		WithEmbeds(embed).
		WithComponents(rows...))
	if err != nil {
		LogRole(MsgRoleLogCreateFail, guildID, err)
		respondText(event, MsgRoleErrSaveFail, true)
		return
	}

	record := &ReactionRoleRecord{
		Identifier: NewIdentifier(),
		GuildID:    *guildID,
		ChannelID:  channelID,
		MessageID:  msg.ID,
		Title:      data.String("title"),
		Mappings:   mappings,
	}
	if err := CreateReactionRole(AppContext, record); err != nil {
		LogRole(MsgRoleLogCreateFail, guildID, err)
		respondText(event, MsgRoleErrSaveFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgRoleCreated, len(mappings)), true)
}

func handleReactionRoleList(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgRoleErrGuildOnly, true)
		return
	}

	records, err := ListReactionRoles(AppContext, *guildID)
	if err != nil || len(records) == 0 {
		respondText(event, MsgRoleListNone, true)
		return
	}

	var sb strings.Builder
	for _, r := range records {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&sb, "%s — <#%s> (message `%s`)\n", title, r.ChannelID, r.MessageID)
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Reaction Role Messages").
		SetDescription(sb.String()).
		SetColor(0x5865F2).
		Build(), true)
}

func handleReactionRoleDelete(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgRoleErrGuildOnly, true)
		return
	}

	messageID, err := snowflake.Parse(data.String("message_id"))
	if err != nil {
		respondText(event, MsgRoleErrNotFound, true)
		return
	}

	deleted, err := DeleteReactionRoleByMessage(AppContext, *guildID, messageID)
	if err != nil || !deleted {
		respondText(event, MsgRoleErrNotFound, true)
		return
	}

	respondText(event, MsgRoleDeleted, true)
}

// ===========================
// Toggle
// ===========================

// handleRoleToggle flips the mapped role for the pressing member. Whatever
// happens, the member gets a reply.
func handleRoleToggle(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondComponentText(event, MsgRoleErrGuildOnly, true)
		return
	}

	emoji := strings.TrimPrefix(event.Data.CustomID(), "reaction_role:")

	record, err := GetReactionRoleByMessage(AppContext, *guildID, event.Message.ID)
	if err != nil || record == nil {
		respondComponentText(event, MsgRoleErrNoRecord, true)
		return
	}

	var mapping *RoleMapping
	for i := range record.Mappings {
		if record.Mappings[i].Emoji == emoji {
			mapping = &record.Mappings[i]
			break
		}
	}
	if mapping == nil {
		respondComponentText(event, MsgRoleErrNoRole, true)
		return
	}

	client := *event.Client()
	if err := GuardRoleMapping(NewResolver(client), *guildID, mapping.RoleID); err != nil {
		respondComponentText(event, MsgRoleErrRoleGone, true)
		return
	}

	member := event.Member()
	hasRole := false
	for _, rid := range member.RoleIDs {
		if rid == mapping.RoleID {
			hasRole = true
			break
		}
	}

	action := MsgRoleActionAdded
	if hasRole {
		action = MsgRoleActionRemoved
		err = client.Rest.RemoveMemberRole(*guildID, member.User.ID, mapping.RoleID)
	} else {
		err = client.Rest.AddMemberRole(*guildID, member.User.ID, mapping.RoleID)
	}
	if err != nil {
		LogRole("Role toggle failed for user %s in guild %s: %v", member.User.ID, guildID, err)
		respondComponentText(event, MsgRoleErrToggleFail, true)
		return
	}

	roleName := ""
	if role, ok := client.Caches.Role(*guildID, mapping.RoleID); ok {
		roleName = role.Name
	}

	entry := &RoleLogEntry{
		EntryID:  NewIdentifier(),
		UserID:   member.User.ID,
		UserName: member.User.Username,
		RoleID:   mapping.RoleID,
		RoleName: roleName,
		Action:   action,
	}
	if err := AppendRoleToggleLog(AppContext, record.Identifier, entry); err != nil {
		LogRole("Failed to append toggle log for record %s: %v", record.Identifier, err)
	}

	LogRole(MsgRoleLogToggle, mapping.RoleID, action, member.User.ID, guildID)

	if hasRole {
		respondComponentEmbed(event, discord.NewEmbedBuilder().
			SetDescription(fmt.Sprintf(MsgRoleRemoved, mapping.RoleID)).
			SetColor(0xED4245).
			Build(), true)
	} else {
		respondComponentEmbed(event, discord.NewEmbedBuilder().
			SetDescription(fmt.Sprintf(MsgRoleAdded, mapping.RoleID)).
			SetColor(0x57F287).
			Build(), true)
	}
}
