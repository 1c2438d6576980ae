package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Ticket System Constants
// ============================================================================

const (
	MsgTicketErrGuildOnly       = "This command can only be used in a server."
	MsgTicketErrAlreadySetup    = "The ticket system is already set up for this server."
	MsgTicketErrNotSetup        = "The ticket system is not set up for this server."
	MsgTicketErrRoleMissing     = "A configured support role no longer exists. Ask an admin to reconfigure the ticket system."
	MsgTicketErrCategoryMissing = "The configured ticket category no longer exists."
	MsgTicketErrArchiveMissing  = "The archive category no longer exists. Archiving is unavailable."
	MsgTicketErrLogsMissing     = "The logs channel no longer exists. The ticket cannot be closed until it is restored."
	MsgTicketErrCreateFail      = "Failed to create the ticket channel. Please try again later."
	MsgTicketErrNotTicket       = "This channel is not a ticket."
	MsgTicketErrAlreadyClaimed  = "This ticket has already been claimed."
	MsgTicketErrLowRole         = "Your role is not high enough to claim this ticket."
	MsgTicketErrReasonTimeout   = "The claim window expired. Press the claim button again."
	MsgTicketErrNotConfirmed    = "Close was not confirmed in time."
	MsgTicketErrTranscriptFail  = "Failed to deliver the transcript. The ticket was left open."
	MsgTicketErrSetupSaveFail   = "Failed to save the ticket configuration."
	MsgTicketSetupSuccess       = "Ticket system configured! Panel channel: <#%s>"
	MsgTicketPanelPosted        = "Ticket panel posted in <#%s>."
	MsgTicketCreated            = "Your ticket has been created: <#%s>"
	MsgTicketClaimedBy          = "Ticket claimed by <@%s>."
	MsgTicketArchived           = "Ticket archived."
	MsgTicketCloseConfirm       = "Are you sure you want to close this ticket?"
	MsgTicketClosingSoon        = "Ticket will be closed in 5 seconds..."
	MsgTicketCloseCanceled      = "Close canceled."
	MsgTicketTranscript         = "📝 Transcript for the ticket: %s"
	MsgTicketTeardownConfirm    = "Are you sure you want to remove the ticket configuration? Existing ticket channels are kept."
	MsgTicketTeardownDone       = "Ticket configuration removed."
	MsgTicketTeardownCanceled   = "Teardown canceled."
	MsgTicketListNone           = "There are no open tickets."
	MsgTicketLogCreated         = "Created ticket %s in guild %s for user %s"
	MsgTicketLogClaimed         = "Ticket %s claimed by %s"
	MsgTicketLogArchived        = "Ticket %s archived"
	MsgTicketLogClosed          = "Ticket %s closed, channel %s deleted"
	MsgTicketLogCloseAborted    = "Close of ticket %s aborted: %v"
	MsgTicketLogCreateFail      = "Channel creation failed in guild %s: %v"

	TicketTranscriptChunk   = 100
	TicketTranscriptMaxSize = 8 << 20
	TicketClaimWindow       = 60 * time.Second
	TicketCloseWindow       = 15 * time.Second
	TicketCloseGrace        = 5 * time.Second
)

// pending claim and close windows, keyed by ticket identifier
var pendingClaims sync.Map
var pendingCloses sync.Map

type pendingClaim struct {
	userID    snowflake.ID
	channelID snowflake.ID
	messageID snowflake.ID
	expires   time.Time
}

type pendingClose struct {
	userID  snowflake.ID
	expires time.Time
}

// ===========================
// Command Registration
// ===========================

func init() {
	managePerm := discord.PermissionManageGuild

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "ticket",
		Description:              "Ticket system management",
		DefaultMemberPermissions: omit.New(&managePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "setup",
				Description: "Configure the ticket system",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "panel",
						Description: "Channel where the ticket panel will be posted",
						Required:    true,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "category",
						Description: "Category for new ticket channels",
						Required:    true,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "archive_category",
						Description: "Category for archived tickets",
						Required:    true,
					},
					discord.ApplicationCommandOptionRole{
						Name:        "support_role",
						Description: "Role that handles tickets",
						Required:    true,
					},
					discord.ApplicationCommandOptionRole{
						Name:        "advisor_role",
						Description: "Role allowed to claim tickets",
						Required:    true,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "logs",
						Description: "Channel that receives ticket transcripts",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "panel",
				Description: "Post the ticket creation panel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "title",
						Description: "Panel embed title",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "description",
						Description: "Panel embed description",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "button_label",
						Description: "Label on the create button",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "image",
						Description: "Embed image URL",
						Required:    false,
					},
					discord.ApplicationCommandOptionString{
						Name:        "thumbnail",
						Description: "Embed thumbnail URL",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List open tickets",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "teardown",
				Description: "Remove the ticket configuration",
			},
		},
	}, handleTicket)

	RegisterComponentHandler("create_ticket", handleTicketCreate)
	RegisterComponentHandler("claim_ticket", handleTicketClaim)
	RegisterComponentHandler("archive_ticket", handleTicketArchive)
	RegisterComponentHandler("close_ticket", handleTicketClose)
	RegisterComponentHandler("ticket_close_confirm:", handleTicketCloseConfirm)
	RegisterComponentHandler("ticket_close_cancel:", handleTicketCloseCancel)
	RegisterComponentHandler("ticket_teardown_confirm:", handleTicketTeardownConfirm)
	RegisterComponentHandler("ticket_teardown_cancel:", handleTicketTeardownCancel)
	RegisterModalHandler("claim_ticket_modal:", handleTicketClaimModal)
}

func handleTicket(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "setup":
		handleTicketSetup(event, data)
	case "panel":
		handleTicketPanel(event, data)
	case "list":
		handleTicketList(event)
	case "teardown":
		handleTicketTeardown(event)
	}
}

// ===========================
// Setup & Panel
// ===========================

func handleTicketSetup(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgTicketErrGuildOnly, true)
		return
	}

	setup := &TicketSetup{
		GuildID:           *guildID,
		Identifier:        NewIdentifier(),
		PanelChannelID:    data.Snowflake("panel"),
		CategoryID:        data.Snowflake("category"),
		ArchiveCategoryID: data.Snowflake("archive_category"),
		SupportRoleID:     data.Snowflake("support_role"),
		AdvisorRoleID:     data.Snowflake("advisor_role"),
		LogsChannelID:     data.Snowflake("logs"),
	}

	err := CreateTicketSetup(AppContext, setup)
	if errors.Is(err, ErrAlreadyConfigured) {
		respondText(event, MsgTicketErrAlreadySetup, true)
		return
	}
	if err != nil {
		LogTicket("Failed to save setup for guild %s: %v", guildID, err)
		respondText(event, MsgTicketErrSetupSaveFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgTicketSetupSuccess, setup.PanelChannelID), true)
}

func handleTicketPanel(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgTicketErrGuildOnly, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondText(event, MsgTicketErrNotSetup, true)
		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(data.String("title")).
		SetDescription(data.String("description")).
		SetColor(0x5865F2)
	if img, ok := data.OptString("image"); ok {
		embed.SetImage(img)
	}
	if thumb, ok := data.OptString("thumbnail"); ok {
		embed.SetThumbnail(thumb)
	}

	label := "🎟️ Create Ticket"
	if l, ok := data.OptString("button_label"); ok {
		label = l
	}

	client := *event.Client()
	_, err = client.Rest.CreateMessage(setup.PanelChannelID, discord.NewMessageCreate().
		WithEmbeds(embed.Build()).
		WithComponents(discord.NewActionRow(discord.NewPrimaryButton(label, "create_ticket"))))
	if err != nil {
		LogTicket("Failed to post panel in guild %s: %v", guildID, err)
		respondText(event, MsgTicketErrCreateFail, true)
		return
	}

	respondText(event, fmt.Sprintf(MsgTicketPanelPosted, setup.PanelChannelID), true)
}

func handleTicketList(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgTicketErrGuildOnly, true)
		return
	}

	client := *event.Client()
	ReconcileTickets(AppContext, NewResolver(client), *guildID)

	tickets, err := GetTicketsForGuild(AppContext, *guildID)
	if err != nil || len(tickets) == 0 {
		respondText(event, MsgTicketListNone, true)
		return
	}

	var sb strings.Builder
	for _, t := range tickets {
		fmt.Fprintf(&sb, "<#%s> — `%s` (owner <@%s>)\n", t.ChannelID, t.State, t.OwnerID)
	}

	respondEmbed(event, discord.NewEmbedBuilder().
		SetTitle("Open Tickets").
		SetDescription(sb.String()).
		SetColor(0x5865F2).
		Build(), true)
}

// ===========================
// Create
// ===========================

func handleTicketCreate(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondComponentText(event, MsgTicketErrGuildOnly, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	client := *event.Client()
	if err := GuardTicketCreate(NewResolver(client), setup); err != nil {
		if errors.Is(err, ErrCategoryMissing) {
			respondComponentText(event, MsgTicketErrCategoryMissing, true)
		} else {
			respondComponentText(event, MsgTicketErrRoleMissing, true)
		}
		return
	}

	user := event.User()
	identifier := NewIdentifier()
	name := fmt.Sprintf("┠%s-ticket-%s", SanitizeChannelName(user.Username), ShortIdentifier(identifier))

	overwrites := ticketOverwrites(setup, user.ID)
	channel, err := client.Rest.CreateGuildChannel(*guildID, discord.GuildTextChannelCreate{
		Name:                 name,
		ParentID:             setup.CategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		LogTicket(MsgTicketLogCreateFail, guildID, err)
		respondComponentText(event, MsgTicketErrCreateFail, true)
		return
	}

	_, err = client.Rest.CreateMessage(channel.ID(), discord.NewMessageCreate().
		WithEmbeds(buildTicketEmbed(identifier, user.ID, 0, "", nil)).
		WithComponents(discord.NewActionRow(
			discord.NewPrimaryButton("🎯 Claim", "claim_ticket"),
			discord.NewSecondaryButton("📦 Archive", "archive_ticket"),
			discord.NewDangerButton("🚪 Close", "close_ticket"),
		)))
	if err != nil {
		LogTicket("Failed to post ticket embed for %s: %v", identifier, err)
	}

	ticket := &Ticket{
		Identifier: identifier,
		GuildID:    *guildID,
		ChannelID:  channel.ID(),
		OwnerID:    user.ID,
	}
	if err := CreateTicket(AppContext, ticket); err != nil {
		LogTicket("Failed to persist ticket %s: %v", identifier, err)
		_ = client.Rest.DeleteChannel(channel.ID())
		respondComponentText(event, MsgTicketErrCreateFail, true)
		return
	}

	LogTicket(MsgTicketLogCreated, identifier, guildID, user.ID)
	respondComponentText(event, fmt.Sprintf(MsgTicketCreated, channel.ID()), true)
}

func ticketOverwrites(s *TicketSetup, ownerID snowflake.ID) []discord.PermissionOverwrite {
	return []discord.PermissionOverwrite{
		discord.RolePermissionOverwrite{
			RoleID: s.GuildID, // @everyone
			Deny:   discord.PermissionViewChannel,
		},
		discord.MemberPermissionOverwrite{
			UserID: ownerID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionAttachFiles | discord.PermissionEmbedLinks,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.SupportRoleID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionManageChannels,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.AdvisorRoleID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages,
		},
	}
}

// claimedOverwrites revokes the support role's send permission and grants the
// claimant full access.
func claimedOverwrites(s *TicketSetup, ownerID, claimantID snowflake.ID) []discord.PermissionOverwrite {
	return []discord.PermissionOverwrite{
		discord.RolePermissionOverwrite{
			RoleID: s.GuildID,
			Deny:   discord.PermissionViewChannel,
		},
		discord.MemberPermissionOverwrite{
			UserID: ownerID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionAttachFiles | discord.PermissionEmbedLinks,
		},
		discord.MemberPermissionOverwrite{
			UserID: claimantID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.SupportRoleID,
			Allow:  discord.PermissionViewChannel,
			Deny:   discord.PermissionSendMessages,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.AdvisorRoleID,
			Allow:  discord.PermissionViewChannel | discord.PermissionSendMessages,
		},
	}
}

func archivedOverwrites(s *TicketSetup) []discord.PermissionOverwrite {
	return []discord.PermissionOverwrite{
		discord.RolePermissionOverwrite{
			RoleID: s.GuildID,
			Deny:   discord.PermissionViewChannel,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.SupportRoleID,
			Allow:  discord.PermissionViewChannel,
		},
		discord.RolePermissionOverwrite{
			RoleID: s.AdvisorRoleID,
			Allow:  discord.PermissionViewChannel,
		},
	}
}

func buildTicketEmbed(identifier string, ownerID, claimedBy snowflake.ID, reason string, claimedAt *time.Time) discord.Embed {
	claimant := "No one yet."
	if claimedBy != 0 {
		claimant = fmt.Sprintf("<@%s>", claimedBy)
	}
	claimReason := "Not provided yet."
	if reason != "" {
		claimReason = reason
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("🎟️ Ticket Created").
		SetDescription(fmt.Sprintf("Opened by <@%s>. The team will be with you shortly.", ownerID)).
		SetColor(0x57F287).
		AddField("Identifier", fmt.Sprintf("||%s||", identifier), false).
		AddField("Claimed by", claimant, true).
		AddField("Claim Reason", claimReason, true)
	if claimedAt != nil {
		builder.AddField("Claimed at", fmt.Sprintf("<t:%d:f>", claimedAt.Unix()), true)
	}
	return builder.Build()
}

// ===========================
// Claim
// ===========================

func handleTicketClaim(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondComponentText(event, MsgTicketErrGuildOnly, true)
		return
	}

	ticket, err := GetTicketByChannel(AppContext, event.Channel().ID())
	if err != nil || ticket == nil {
		respondComponentText(event, MsgTicketErrNotTicket, true)
		return
	}

	if ticket.State != TicketStateCreated {
		respondComponentText(event, MsgTicketErrAlreadyClaimed, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	client := *event.Client()
	if err := GuardTicketClaim(NewResolver(client), setup, event.Member().RoleIDs); err != nil {
		if errors.Is(err, ErrInsufficientRole) {
			respondComponentText(event, MsgTicketErrLowRole, true)
		} else {
			respondComponentText(event, MsgTicketErrRoleMissing, true)
		}
		return
	}

	identifier := ticket.Identifier
	pendingClaims.Store(identifier, pendingClaim{
		userID:    event.User().ID,
		channelID: ticket.ChannelID,
		messageID: event.Message.ID,
		expires:   time.Now().Add(TicketClaimWindow),
	})
	time.AfterFunc(TicketClaimWindow, func() {
		if v, ok := pendingClaims.Load(identifier); ok {
			if pc, ok := v.(pendingClaim); ok && !pc.expires.After(time.Now()) {
				pendingClaims.Delete(identifier)
			}
		}
	})

	_ = event.Modal(discord.NewModalCreate("claim_ticket_modal:"+identifier, "Claim Ticket", []discord.LayoutComponent{
		discord.NewLabel("Why are you claiming this ticket?",
			discord.NewParagraphTextInput("claim_reason").WithRequired(true)),
	}))
}

func handleTicketClaimModal(event *events.ModalSubmitInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}

	identifier := strings.TrimPrefix(event.Data.CustomID, "claim_ticket_modal:")
	v, ok := pendingClaims.Load(identifier)
	if !ok {
		respondModalText(event, MsgTicketErrReasonTimeout, true)
		return
	}
	pc := v.(pendingClaim)
	pendingClaims.Delete(identifier)
	if time.Now().After(pc.expires) {
		respondModalText(event, MsgTicketErrReasonTimeout, true)
		return
	}

	// The modal was a suspension point. Re-read and re-validate before
	// committing: the record may have been claimed or torn down meanwhile.
	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondModalText(event, MsgTicketErrNotSetup, true)
		return
	}

	client := *event.Client()
	if err := GuardTicketClaim(NewResolver(client), setup, event.Member().RoleIDs); err != nil {
		if errors.Is(err, ErrInsufficientRole) {
			respondModalText(event, MsgTicketErrLowRole, true)
		} else {
			respondModalText(event, MsgTicketErrRoleMissing, true)
		}
		return
	}

	reason := event.Data.Text("claim_reason")
	claimant := event.User().ID

	claimed, err := ClaimTicket(AppContext, identifier, claimant, reason)
	if err != nil {
		respondModalText(event, MsgTicketErrCreateFail, true)
		return
	}
	if !claimed {
		respondModalText(event, MsgTicketErrAlreadyClaimed, true)
		return
	}

	ticket, err := GetTicket(AppContext, identifier)
	if err != nil || ticket == nil {
		return
	}

	ov := claimedOverwrites(setup, ticket.OwnerID, claimant)
	_, err = client.Rest.UpdateChannel(pc.channelID, discord.GuildTextChannelUpdate{
		PermissionOverwrites: &ov,
	})
	if err != nil {
		LogTicket("Failed to update overwrites for ticket %s: %v", identifier, err)
	}

	now := time.Now()
	_, err = client.Rest.UpdateMessage(pc.channelID, pc.messageID, discord.NewMessageUpdate().
		WithEmbeds(buildTicketEmbed(identifier, ticket.OwnerID, claimant, reason, &now)))
	if err != nil {
		LogTicket("Failed to update ticket embed for %s: %v", identifier, err)
	}

	LogTicket(MsgTicketLogClaimed, identifier, claimant)
	respondModalText(event, fmt.Sprintf(MsgTicketClaimedBy, claimant), false)
}

// ===========================
// Archive
// ===========================

func handleTicketArchive(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondComponentText(event, MsgTicketErrGuildOnly, true)
		return
	}

	ticket, err := GetTicketByChannel(AppContext, event.Channel().ID())
	if err != nil || ticket == nil {
		respondComponentText(event, MsgTicketErrNotTicket, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	// Archiving an archived ticket succeeds without change.
	if ticket.State == TicketStateArchived {
		respondComponentText(event, MsgTicketArchived, true)
		return
	}

	client := *event.Client()
	if err := GuardTicketArchive(NewResolver(client), setup); err != nil {
		respondComponentText(event, MsgTicketErrArchiveMissing, true)
		return
	}

	ov := archivedOverwrites(setup)
	archiveID := setup.ArchiveCategoryID
	_, err = client.Rest.UpdateChannel(ticket.ChannelID, discord.GuildTextChannelUpdate{
		ParentID:             &archiveID,
		PermissionOverwrites: &ov,
	})
	if err != nil {
		LogTicket("Failed to archive channel for ticket %s: %v", ticket.Identifier, err)
		respondComponentText(event, MsgTicketErrCreateFail, true)
		return
	}

	if err := SetTicketState(AppContext, ticket.Identifier, TicketStateArchived); err != nil {
		LogTicket("Failed to persist archive state for %s: %v", ticket.Identifier, err)
	}

	LogTicket(MsgTicketLogArchived, ticket.Identifier)
	respondComponentText(event, MsgTicketArchived, false)
}

// ===========================
// Close
// ===========================

func handleTicketClose(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondComponentText(event, MsgTicketErrGuildOnly, true)
		return
	}

	ticket, err := GetTicketByChannel(AppContext, event.Channel().ID())
	if err != nil || ticket == nil {
		respondComponentText(event, MsgTicketErrNotTicket, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	client := *event.Client()
	if err := GuardTicketClose(NewResolver(client), setup); err != nil {
		respondComponentText(event, MsgTicketErrLogsMissing, true)
		return
	}

	identifier := ticket.Identifier
	pendingCloses.Store(identifier, pendingClose{
		userID:  event.User().ID,
		expires: time.Now().Add(TicketCloseWindow),
	})
	time.AfterFunc(TicketCloseWindow, func() {
		if v, ok := pendingCloses.Load(identifier); ok {
			if pcl, ok := v.(pendingClose); ok && !pcl.expires.After(time.Now()) {
				pendingCloses.Delete(identifier)
			}
		}
	})

	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(MsgTicketCloseConfirm).
		WithComponents(discord.NewActionRow(
			discord.NewDangerButton("Close", "ticket_close_confirm:"+identifier),
			discord.NewSecondaryButton("Cancel", "ticket_close_cancel:"+identifier),
		)).
		WithEphemeral(true))
}

func handleTicketCloseConfirm(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}

	identifier := strings.TrimPrefix(event.Data.CustomID(), "ticket_close_confirm:")
	v, ok := pendingCloses.Load(identifier)
	if !ok {
		respondComponentText(event, MsgTicketErrNotConfirmed, true)
		return
	}
	pcl := v.(pendingClose)
	pendingCloses.Delete(identifier)
	if time.Now().After(pcl.expires) {
		respondComponentText(event, MsgTicketErrNotConfirmed, true)
		return
	}

	ticket, err := GetTicket(AppContext, identifier)
	if err != nil || ticket == nil {
		respondComponentText(event, MsgTicketErrNotTicket, true)
		return
	}

	setup, err := RequireTicketSetup(AppContext, *guildID)
	if err != nil {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	client := *event.Client()

	// The confirmation window was a suspension point. Re-validate the logs
	// channel before warning and again after the grace sleep.
	if err := GuardTicketClose(NewResolver(client), setup); err != nil {
		LogTicket(MsgTicketLogCloseAborted, identifier, err)
		respondComponentText(event, MsgTicketErrLogsMissing, true)
		return
	}

	respondComponentText(event, MsgTicketClosingSoon, false)

	select {
	case <-AppContext.Done():
		return
	case <-time.After(TicketCloseGrace):
	}

	if err := GuardTicketClose(NewResolver(client), setup); err != nil {
		LogTicket(MsgTicketLogCloseAborted, identifier, err)
		_ = sendChannelText(client, ticket.ChannelID, MsgTicketErrLogsMissing)
		return
	}

	channelName := identifier
	if ch, ok := client.Caches.Channel(ticket.ChannelID); ok {
		channelName = ch.Name()
	}

	transcript := buildTranscript(client, ticket.ChannelID)
	_, err = client.Rest.CreateMessage(setup.LogsChannelID, discord.NewMessageCreate().
		WithContent(fmt.Sprintf(MsgTicketTranscript, channelName)).
		WithFiles(discord.NewFile("transcript-"+channelName+".txt", "", bytes.NewReader(transcript))))
	if err != nil {
		LogTicket(MsgTicketLogCloseAborted, identifier, err)
		_ = sendChannelText(client, ticket.ChannelID, MsgTicketErrTranscriptFail)
		return
	}

	if err := client.Rest.DeleteChannel(ticket.ChannelID); err != nil {
		LogTicket("Failed to delete channel for ticket %s: %v", identifier, err)
		return
	}

	if err := DeleteTicket(AppContext, identifier); err != nil {
		LogTicket("Failed to delete ticket record %s: %v", identifier, err)
		return
	}

	LogTicket(MsgTicketLogClosed, identifier, ticket.ChannelID)
}

func handleTicketCloseCancel(event *events.ComponentInteractionCreate) {
	identifier := strings.TrimPrefix(event.Data.CustomID(), "ticket_close_cancel:")
	pendingCloses.Delete(identifier)
	respondComponentText(event, MsgTicketCloseCanceled, true)
}

// buildTranscript pages through the channel history oldest-first and renders
// a plain text log, truncated to stay under the upload limit.
func buildTranscript(client bot.Client, channelID snowflake.ID) []byte {
	var all []discord.Message
	var beforeID snowflake.ID

	for {
		msgs, err := client.Rest.GetMessages(channelID, 0, beforeID, 0, TicketTranscriptChunk)
		if err != nil || len(msgs) == 0 {
			break
		}
		all = append(all, msgs...)
		beforeID = msgs[len(msgs)-1].ID
		if len(msgs) < TicketTranscriptChunk {
			break
		}
	}

	var sb strings.Builder
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Author.Username, m.Content)
		if sb.Len() > TicketTranscriptMaxSize {
			sb.WriteString("... transcript truncated\n")
			break
		}
	}
	return []byte(sb.String())
}

// ===========================
// Teardown
// ===========================

func handleTicketTeardown(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		respondText(event, MsgTicketErrGuildOnly, true)
		return
	}

	if _, err := RequireTicketSetup(AppContext, *guildID); err != nil {
		respondText(event, MsgTicketErrNotSetup, true)
		return
	}

	key := "teardown:" + guildID.String()
	pendingCloses.Store(key, pendingClose{
		userID:  event.User().ID,
		expires: time.Now().Add(TicketCloseWindow),
	})
	time.AfterFunc(TicketCloseWindow, func() {
		if v, ok := pendingCloses.Load(key); ok {
			if pcl, ok := v.(pendingClose); ok && !pcl.expires.After(time.Now()) {
				pendingCloses.Delete(key)
			}
		}
	})

	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(MsgTicketTeardownConfirm).
		WithComponents(discord.NewActionRow(
			discord.NewDangerButton("Remove", "ticket_teardown_confirm:"+guildID.String()),
			discord.NewSecondaryButton("Cancel", "ticket_teardown_cancel:"+guildID.String()),
		)).
		WithEphemeral(true))
}

func handleTicketTeardownConfirm(event *events.ComponentInteractionCreate) {
	guildIDStr := strings.TrimPrefix(event.Data.CustomID(), "ticket_teardown_confirm:")
	guildID, err := snowflake.Parse(guildIDStr)
	if err != nil {
		return
	}

	key := "teardown:" + guildIDStr
	v, ok := pendingCloses.Load(key)
	if !ok {
		respondComponentText(event, MsgTicketErrNotConfirmed, true)
		return
	}
	pcl := v.(pendingClose)
	pendingCloses.Delete(key)
	if time.Now().After(pcl.expires) {
		respondComponentText(event, MsgTicketErrNotConfirmed, true)
		return
	}

	removed, err := DeleteTicketSetup(AppContext, guildID)
	if err != nil || !removed {
		respondComponentText(event, MsgTicketErrNotSetup, true)
		return
	}

	respondComponentText(event, MsgTicketTeardownDone, true)
}

func handleTicketTeardownCancel(event *events.ComponentInteractionCreate) {
	guildIDStr := strings.TrimPrefix(event.Data.CustomID(), "ticket_teardown_cancel:")
	pendingCloses.Delete("teardown:" + guildIDStr)
	respondComponentText(event, MsgTicketTeardownCanceled, true)
}
