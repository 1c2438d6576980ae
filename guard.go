package main

import (
	"context"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Reconciliation Guard
// ============================================================================

const (
	MsgGuardOrphanTicket = "Dropped orphaned ticket %s (channel %s is gone)"
	MsgGuardOrphanStat   = "Dropped orphaned stat entry %s/%s (channel %s is gone)"
)

// ResourceResolver answers existence questions about externally owned
// resources. The cache-backed implementation is used in production; tests
// substitute a fake.
type ResourceResolver interface {
	HasChannel(id snowflake.ID) bool
	HasRole(guildID, id snowflake.ID) bool
	RolePosition(guildID, id snowflake.ID) (int, bool)
}

type cacheResolver struct {
	client bot.Client
}

func NewResolver(client bot.Client) ResourceResolver {
	return cacheResolver{client: client}
}

func (r cacheResolver) HasChannel(id snowflake.ID) bool {
	_, ok := r.client.Caches.Channel(id)
	return ok
}

func (r cacheResolver) HasRole(guildID, id snowflake.ID) bool {
	_, ok := r.client.Caches.Role(guildID, id)
	return ok
}

func (r cacheResolver) RolePosition(guildID, id snowflake.ID) (int, bool) {
	role, ok := r.client.Caches.Role(guildID, id)
	if !ok {
		return 0, false
	}
	return role.Position, true
}

// Every pre-commit validation funnels through these checks. Transitions with
// suspension points (modal waits, confirmation windows, grace sleeps) call
// the relevant guard again after resuming, before any write.

// GuardTicketCreate validates the resources a new ticket needs.
func GuardTicketCreate(res ResourceResolver, s *TicketSetup) error {
	if !res.HasRole(s.GuildID, s.SupportRoleID) || !res.HasRole(s.GuildID, s.AdvisorRoleID) {
		return ErrRoleMissing
	}
	if !res.HasChannel(s.CategoryID) {
		return ErrCategoryMissing
	}
	return nil
}

// GuardTicketClaim validates the advisor role and the claimant's standing.
// The actor's highest role must sit at or above the advisor role.
func GuardTicketClaim(res ResourceResolver, s *TicketSetup, actorRoleIDs []snowflake.ID) error {
	advisorPos, ok := res.RolePosition(s.GuildID, s.AdvisorRoleID)
	if !ok {
		return ErrRoleMissing
	}

	topPos := -1
	for _, rid := range actorRoleIDs {
		if pos, ok := res.RolePosition(s.GuildID, rid); ok && pos > topPos {
			topPos = pos
		}
	}
	if topPos < advisorPos {
		return ErrInsufficientRole
	}
	return nil
}

func GuardTicketArchive(res ResourceResolver, s *TicketSetup) error {
	if !res.HasChannel(s.ArchiveCategoryID) {
		return ErrCategoryMissing
	}
	return nil
}

func GuardTicketClose(res ResourceResolver, s *TicketSetup) error {
	if !res.HasChannel(s.LogsChannelID) {
		return ErrLogsChannelMissing
	}
	return nil
}

func GuardLobbyEnter(res ResourceResolver, l *Lobby) error {
	if !res.HasChannel(l.CategoryID) {
		return ErrCategoryMissing
	}
	return nil
}

// GuardRoleMapping verifies the mapped role still resolves before a toggle.
func GuardRoleMapping(res ResourceResolver, guildID, roleID snowflake.ID) error {
	if !res.HasRole(guildID, roleID) {
		return ErrRoleMissing
	}
	return nil
}

// ReconcileTickets drops ticket records whose channel was deleted out from
// under the bot. Best effort; a failed delete is left for the next run.
func ReconcileTickets(ctx context.Context, res ResourceResolver, guildID snowflake.ID) {
	tickets, err := GetTicketsForGuild(ctx, guildID)
	if err != nil {
		return
	}
	for _, t := range tickets {
		if !res.HasChannel(t.ChannelID) {
			if err := DeleteTicket(ctx, t.Identifier); err == nil {
				LogGuard(MsgGuardOrphanTicket, t.Identifier, t.ChannelID)
			}
		}
	}
}

// ReconcileStatChannels drops stat entries whose channel was deleted.
func ReconcileStatChannels(ctx context.Context, res ResourceResolver) {
	stats, err := GetAllStatChannels(ctx)
	if err != nil {
		return
	}
	for _, s := range stats {
		if !res.HasChannel(s.ChannelID) {
			if err := DeleteStatChannelByID(ctx, s.ID); err == nil {
				LogGuard(MsgGuardOrphanStat, s.GuildID, s.StatType, s.ChannelID)
			}
		}
	}
}
