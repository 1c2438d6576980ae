package main

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

// fakeResolver backs guard tests without a gateway connection.
type fakeResolver struct {
	channels map[snowflake.ID]bool
	roles    map[snowflake.ID]int
}

func (f fakeResolver) HasChannel(id snowflake.ID) bool {
	return f.channels[id]
}

func (f fakeResolver) HasRole(guildID, id snowflake.ID) bool {
	_, ok := f.roles[id]
	return ok
}

func (f fakeResolver) RolePosition(guildID, id snowflake.ID) (int, bool) {
	pos, ok := f.roles[id]
	return pos, ok
}

func fullResolver(s *TicketSetup) fakeResolver {
	return fakeResolver{
		channels: map[snowflake.ID]bool{
			s.PanelChannelID:    true,
			s.CategoryID:        true,
			s.ArchiveCategoryID: true,
			s.LogsChannelID:     true,
		},
		roles: map[snowflake.ID]int{
			s.SupportRoleID: 5,
			s.AdvisorRoleID: 10,
		},
	}
}

func TestGuardTicketCreate(t *testing.T) {
	s := testSetup(1)

	if err := GuardTicketCreate(fullResolver(s), s); err != nil {
		t.Errorf("all resources present: %v", err)
	}

	res := fullResolver(s)
	delete(res.roles, s.SupportRoleID)
	if err := GuardTicketCreate(res, s); err != ErrRoleMissing {
		t.Errorf("missing support role: expected ErrRoleMissing, got %v", err)
	}

	res = fullResolver(s)
	res.channels[s.CategoryID] = false
	if err := GuardTicketCreate(res, s); err != ErrCategoryMissing {
		t.Errorf("missing category: expected ErrCategoryMissing, got %v", err)
	}
}

func TestGuardTicketClaim(t *testing.T) {
	s := testSetup(1)
	res := fullResolver(s)

	// Actor holding the advisor role itself.
	if err := GuardTicketClaim(res, s, []snowflake.ID{s.AdvisorRoleID}); err != nil {
		t.Errorf("advisor claiming: %v", err)
	}

	// Actor holding only a lower role.
	if err := GuardTicketClaim(res, s, []snowflake.ID{s.SupportRoleID}); err != ErrInsufficientRole {
		t.Errorf("low role: expected ErrInsufficientRole, got %v", err)
	}

	// Actor with no recognized roles at all.
	if err := GuardTicketClaim(res, s, nil); err != ErrInsufficientRole {
		t.Errorf("no roles: expected ErrInsufficientRole, got %v", err)
	}

	// Advisor role deleted between setup and claim.
	delete(res.roles, s.AdvisorRoleID)
	if err := GuardTicketClaim(res, s, []snowflake.ID{s.SupportRoleID}); err != ErrRoleMissing {
		t.Errorf("deleted advisor role: expected ErrRoleMissing, got %v", err)
	}
}

func TestGuardTicketClose(t *testing.T) {
	s := testSetup(1)

	if err := GuardTicketClose(fullResolver(s), s); err != nil {
		t.Errorf("logs channel present: %v", err)
	}

	res := fullResolver(s)
	res.channels[s.LogsChannelID] = false
	if err := GuardTicketClose(res, s); err != ErrLogsChannelMissing {
		t.Errorf("missing logs channel: expected ErrLogsChannelMissing, got %v", err)
	}
}

func TestGuardTicketArchive(t *testing.T) {
	s := testSetup(1)

	res := fullResolver(s)
	res.channels[s.ArchiveCategoryID] = false
	if err := GuardTicketArchive(res, s); err != ErrCategoryMissing {
		t.Errorf("missing archive category: expected ErrCategoryMissing, got %v", err)
	}
}

func TestGuardLobbyEnter(t *testing.T) {
	lobby := &Lobby{GuildID: 1, ChannelID: 800, CategoryID: 801}

	res := fakeResolver{channels: map[snowflake.ID]bool{801: true}}
	if err := GuardLobbyEnter(res, lobby); err != nil {
		t.Errorf("category present: %v", err)
	}

	res = fakeResolver{channels: map[snowflake.ID]bool{}}
	if err := GuardLobbyEnter(res, lobby); err != ErrCategoryMissing {
		t.Errorf("missing category: expected ErrCategoryMissing, got %v", err)
	}
}

func TestGuardRoleMapping(t *testing.T) {
	res := fakeResolver{roles: map[snowflake.ID]int{700: 3}}

	if err := GuardRoleMapping(res, 1, 700); err != nil {
		t.Errorf("role present: %v", err)
	}
	if err := GuardRoleMapping(res, 1, 701); err != ErrRoleMissing {
		t.Errorf("role gone: expected ErrRoleMissing, got %v", err)
	}
}

func TestReconcileTickets(t *testing.T) {
	ctx := openTestDB(t)

	alive := &Ticket{Identifier: NewIdentifier(), GuildID: 1, ChannelID: 500, OwnerID: 42}
	orphan := &Ticket{Identifier: NewIdentifier(), GuildID: 1, ChannelID: 501, OwnerID: 42}
	for _, tk := range []*Ticket{alive, orphan} {
		if err := CreateTicket(ctx, tk); err != nil {
			t.Fatalf("CreateTicket: %v", err)
		}
	}

	res := fakeResolver{channels: map[snowflake.ID]bool{500: true}}
	ReconcileTickets(ctx, res, 1)

	tickets, err := GetTicketsForGuild(ctx, 1)
	if err != nil {
		t.Fatalf("GetTicketsForGuild: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected 1 surviving ticket, got %d", len(tickets))
	}
	if tickets[0].Identifier != alive.Identifier {
		t.Errorf("wrong survivor %s", tickets[0].Identifier)
	}
}

func TestReconcileStatChannels(t *testing.T) {
	ctx := openTestDB(t)

	alive := &StatChannel{GuildID: 1, StatType: StatTypeMembers, ChannelID: 900, Template: "a {count}"}
	orphan := &StatChannel{GuildID: 1, StatType: StatTypeRoles, ChannelID: 901, Template: "b {count}"}
	for _, s := range []*StatChannel{alive, orphan} {
		if err := CreateStatChannel(ctx, s); err != nil {
			t.Fatalf("CreateStatChannel: %v", err)
		}
	}

	res := fakeResolver{channels: map[snowflake.ID]bool{900: true}}
	ReconcileStatChannels(ctx, res)

	stats, err := GetAllStatChannels(ctx)
	if err != nil {
		t.Fatalf("GetAllStatChannels: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 surviving stat, got %d", len(stats))
	}
	if stats[0].StatType != StatTypeMembers {
		t.Errorf("wrong survivor %s", stats[0].StatType)
	}
}
