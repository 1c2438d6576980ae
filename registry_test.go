package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

func openTestDB(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := InitDatabase(ctx, path); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(CloseDatabase)
	return ctx
}

func testSetup(guildID snowflake.ID) *TicketSetup {
	return &TicketSetup{
		GuildID:           guildID,
		Identifier:        NewIdentifier(),
		PanelChannelID:    100,
		CategoryID:        101,
		ArchiveCategoryID: 102,
		SupportRoleID:     200,
		AdvisorRoleID:     201,
		LogsChannelID:     103,
	}
}

func TestTicketSetupSingleton(t *testing.T) {
	ctx := openTestDB(t)
	guildID := snowflake.ID(1)

	if err := CreateTicketSetup(ctx, testSetup(guildID)); err != nil {
		t.Fatalf("first setup: %v", err)
	}

	err := CreateTicketSetup(ctx, testSetup(guildID))
	if err != ErrAlreadyConfigured {
		t.Fatalf("second setup: expected ErrAlreadyConfigured, got %v", err)
	}

	s, err := GetTicketSetup(ctx, guildID)
	if err != nil || s == nil {
		t.Fatalf("GetTicketSetup: %v, %v", s, err)
	}
	if s.GuildID != guildID {
		t.Errorf("expected guild %s, got %s", guildID, s.GuildID)
	}

	// A second guild is unaffected.
	if err := CreateTicketSetup(ctx, testSetup(snowflake.ID(2))); err != nil {
		t.Fatalf("other guild setup: %v", err)
	}
}

func TestTicketSetupMissing(t *testing.T) {
	ctx := openTestDB(t)

	s, err := GetTicketSetup(ctx, snowflake.ID(99))
	if err != nil {
		t.Fatalf("GetTicketSetup: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil setup for unconfigured guild, got %+v", s)
	}
}

func TestRequireTicketSetup(t *testing.T) {
	ctx := openTestDB(t)
	guildID := snowflake.ID(1)

	if _, err := RequireTicketSetup(ctx, guildID); err != ErrNotConfigured {
		t.Fatalf("unconfigured guild: expected ErrNotConfigured, got %v", err)
	}

	if err := CreateTicketSetup(ctx, testSetup(guildID)); err != nil {
		t.Fatalf("CreateTicketSetup: %v", err)
	}

	s, err := RequireTicketSetup(ctx, guildID)
	if err != nil || s == nil {
		t.Fatalf("configured guild: %v, %v", s, err)
	}
}

func TestClaimTicketRace(t *testing.T) {
	ctx := openTestDB(t)

	ticket := &Ticket{
		Identifier: NewIdentifier(),
		GuildID:    1,
		ChannelID:  500,
		OwnerID:    42,
	}
	if err := CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]bool, 2)
	claimants := []snowflake.ID{77, 88}
	for i := range claimants {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := ClaimTicket(ctx, ticket.Identifier, claimants[i], "racing")
			if err != nil {
				t.Errorf("ClaimTicket %d: %v", i, err)
				return
			}
			results[i] = claimed
		}(i)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("expected exactly one winner, got %v and %v", results[0], results[1])
	}

	got, err := GetTicket(ctx, ticket.Identifier)
	if err != nil || got == nil {
		t.Fatalf("GetTicket: %v, %v", got, err)
	}
	if got.State != TicketStateClaimed {
		t.Errorf("expected state claimed, got %s", got.State)
	}
	if got.ClaimedBy != 77 && got.ClaimedBy != 88 {
		t.Errorf("unexpected claimant %s", got.ClaimedBy)
	}
}

func TestClaimTicketAlreadyClaimed(t *testing.T) {
	ctx := openTestDB(t)

	ticket := &Ticket{Identifier: NewIdentifier(), GuildID: 1, ChannelID: 501, OwnerID: 42}
	if err := CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	claimed, err := ClaimTicket(ctx, ticket.Identifier, 77, "first")
	if err != nil || !claimed {
		t.Fatalf("first claim: %v, %v", claimed, err)
	}

	claimed, err = ClaimTicket(ctx, ticket.Identifier, 88, "second")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed {
		t.Error("second claim should not win")
	}

	got, _ := GetTicket(ctx, ticket.Identifier)
	if got.ClaimedBy != 77 {
		t.Errorf("claimant overwritten: %s", got.ClaimedBy)
	}
	if got.ClaimReason != "first" {
		t.Errorf("reason overwritten: %q", got.ClaimReason)
	}
}

func TestTicketArchiveIdempotent(t *testing.T) {
	ctx := openTestDB(t)

	ticket := &Ticket{Identifier: NewIdentifier(), GuildID: 1, ChannelID: 502, OwnerID: 42}
	if err := CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	if err := SetTicketState(ctx, ticket.Identifier, TicketStateArchived); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	if err := SetTicketState(ctx, ticket.Identifier, TicketStateArchived); err != nil {
		t.Fatalf("second archive: %v", err)
	}

	got, _ := GetTicket(ctx, ticket.Identifier)
	if got.State != TicketStateArchived {
		t.Errorf("expected archived, got %s", got.State)
	}
}

func TestTicketLookupByChannel(t *testing.T) {
	ctx := openTestDB(t)

	ticket := &Ticket{Identifier: NewIdentifier(), GuildID: 1, ChannelID: 503, OwnerID: 42}
	if err := CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	got, err := GetTicketByChannel(ctx, 503)
	if err != nil || got == nil {
		t.Fatalf("GetTicketByChannel: %v, %v", got, err)
	}
	if got.Identifier != ticket.Identifier {
		t.Errorf("wrong ticket: %s", got.Identifier)
	}

	if err := DeleteTicket(ctx, ticket.Identifier); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	got, err = GetTicketByChannel(ctx, 503)
	if err != nil {
		t.Fatalf("lookup after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestRoleToggleLogOrder(t *testing.T) {
	ctx := openTestDB(t)

	record := &ReactionRoleRecord{
		Identifier: NewIdentifier(),
		GuildID:    1,
		ChannelID:  600,
		MessageID:  601,
		Title:      "Pick your roles",
		Mappings: []RoleMapping{
			{Emoji: "🔵", RoleID: 700},
		},
	}
	if err := CreateReactionRole(ctx, record); err != nil {
		t.Fatalf("CreateReactionRole: %v", err)
	}

	actions := []string{"assigned", "removed", "assigned"}
	for _, action := range actions {
		err := AppendRoleToggleLog(ctx, record.Identifier, &RoleLogEntry{
			EntryID:  NewIdentifier(),
			UserID:   42,
			UserName: "tester",
			RoleID:   700,
			RoleName: "Blue",
			Action:   action,
		})
		if err != nil {
			t.Fatalf("AppendRoleToggleLog: %v", err)
		}
	}

	logs, err := GetRoleToggleLogs(ctx, record.Identifier)
	if err != nil {
		t.Fatalf("GetRoleToggleLogs: %v", err)
	}
	if len(logs) != len(actions) {
		t.Fatalf("expected %d entries, got %d", len(actions), len(logs))
	}
	for i, action := range actions {
		if logs[i].Action != action {
			t.Errorf("entry %d: expected %q, got %q", i, action, logs[i].Action)
		}
	}
}

func TestReactionRoleCascadeDelete(t *testing.T) {
	ctx := openTestDB(t)

	record := &ReactionRoleRecord{
		Identifier: NewIdentifier(),
		GuildID:    1,
		ChannelID:  600,
		MessageID:  602,
		Title:      "Temp",
		Mappings:   []RoleMapping{{Emoji: "🟢", RoleID: 701}},
	}
	if err := CreateReactionRole(ctx, record); err != nil {
		t.Fatalf("CreateReactionRole: %v", err)
	}

	removed, err := DeleteReactionRoleByMessage(ctx, 1, 602)
	if err != nil || !removed {
		t.Fatalf("DeleteReactionRoleByMessage: %v, %v", removed, err)
	}

	got, err := GetReactionRoleByMessage(ctx, 1, 602)
	if err != nil {
		t.Fatalf("lookup after delete: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestLobbyDuplicate(t *testing.T) {
	ctx := openTestDB(t)

	lobby := &Lobby{GuildID: 1, ChannelID: 800, CategoryID: 801}
	if err := CreateLobby(ctx, lobby); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}

	err := CreateLobby(ctx, &Lobby{GuildID: 1, ChannelID: 800, CategoryID: 801})
	if err != ErrAlreadyTracked {
		t.Fatalf("expected ErrAlreadyTracked, got %v", err)
	}

	got, err := GetLobby(ctx, 1, 800)
	if err != nil || got == nil {
		t.Fatalf("GetLobby: %v, %v", got, err)
	}

	// Untracked channels resolve to nothing.
	got, err = GetLobby(ctx, 1, 999)
	if err != nil {
		t.Fatalf("GetLobby untracked: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for untracked channel, got %+v", got)
	}
}

func TestLobbyUserTracking(t *testing.T) {
	ctx := openTestDB(t)

	lobby := &Lobby{GuildID: 1, ChannelID: 800, CategoryID: 801}
	if err := CreateLobby(ctx, lobby); err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}

	if err := AddLobbyUser(ctx, lobby.ID, 42); err != nil {
		t.Fatalf("AddLobbyUser: %v", err)
	}
	if err := AddLobbyUser(ctx, lobby.ID, 43); err != nil {
		t.Fatalf("AddLobbyUser: %v", err)
	}
	// A re-join is not a second entry.
	if err := AddLobbyUser(ctx, lobby.ID, 42); err != nil {
		t.Fatalf("AddLobbyUser rejoin: %v", err)
	}

	users, err := GetLobbyUsers(ctx, lobby.ID)
	if err != nil {
		t.Fatalf("GetLobbyUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 tracked users, got %d", len(users))
	}

	// Leaving the spawned channel prunes the user from the set.
	if err := RemoveLobbyUser(ctx, lobby.ID, 42); err != nil {
		t.Fatalf("RemoveLobbyUser: %v", err)
	}
	users, err = GetLobbyUsers(ctx, lobby.ID)
	if err != nil {
		t.Fatalf("GetLobbyUsers after remove: %v", err)
	}
	if len(users) != 1 || users[0] != 43 {
		t.Fatalf("expected only user 43 tracked, got %v", users)
	}
}

func TestStatChannelDuplicate(t *testing.T) {
	ctx := openTestDB(t)

	stat := &StatChannel{GuildID: 1, StatType: StatTypeMembers, ChannelID: 900, Template: "👥 Members: {count}"}
	if err := CreateStatChannel(ctx, stat); err != nil {
		t.Fatalf("CreateStatChannel: %v", err)
	}

	err := CreateStatChannel(ctx, &StatChannel{GuildID: 1, StatType: StatTypeMembers, ChannelID: 901, Template: "x {count}"})
	if err != ErrDuplicateStat {
		t.Fatalf("expected ErrDuplicateStat, got %v", err)
	}

	// Same type in another guild is fine.
	err = CreateStatChannel(ctx, &StatChannel{GuildID: 2, StatType: StatTypeMembers, ChannelID: 902, Template: "y {count}"})
	if err != nil {
		t.Fatalf("other guild: %v", err)
	}
}

func TestAwardXPLevelUp(t *testing.T) {
	ctx := openTestDB(t)

	record, leveledUp, err := AwardXP(ctx, 1, 42, 60, XPReasonMessage)
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if leveledUp {
		t.Error("60 XP should not level up")
	}
	if record.XP != 60 || record.Level != 0 {
		t.Errorf("expected 60 XP level 0, got %d XP level %d", record.XP, record.Level)
	}

	record, leveledUp, err = AwardXP(ctx, 1, 42, 50, XPReasonMessage)
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if !leveledUp {
		t.Error("110 XP should cross level 1")
	}
	if record.XP != 110 || record.Level != 1 || record.LevelUpCount != 1 {
		t.Errorf("unexpected record %+v", record)
	}

	got, err := GetLevelRecord(ctx, 1, 42)
	if err != nil || got == nil {
		t.Fatalf("GetLevelRecord: %v, %v", got, err)
	}
	if got.XP != 110 {
		t.Errorf("persisted XP %d", got.XP)
	}
}

func TestLevelLeaderboardOrder(t *testing.T) {
	ctx := openTestDB(t)

	if _, _, err := AwardXP(ctx, 1, 10, 250, XPReasonMessage); err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if _, _, err := AwardXP(ctx, 1, 20, 450, XPReasonMessage); err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if _, _, err := AwardXP(ctx, 1, 30, 40, XPReasonMessage); err != nil {
		t.Fatalf("AwardXP: %v", err)
	}

	records, err := GetLevelLeaderboard(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetLevelLeaderboard: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].UserID != 20 || records[1].UserID != 10 || records[2].UserID != 30 {
		t.Errorf("wrong order: %s, %s, %s", records[0].UserID, records[1].UserID, records[2].UserID)
	}
}

func TestActivityRecording(t *testing.T) {
	ctx := openTestDB(t)

	entries := []string{ActivityTypeMessage, ActivityTypeVoiceJoin, ActivityCommandPrefix + "level"}
	for _, typ := range entries {
		err := AddActivity(ctx, &ActivityEntry{GuildID: 1, UserID: 42, UserName: "tester", Type: typ})
		if err != nil {
			t.Fatalf("AddActivity %s: %v", typ, err)
		}
	}

	daily, err := GetDailyActivity(ctx, 1, 42, ActivityWindowDays)
	if err != nil {
		t.Fatalf("GetDailyActivity: %v", err)
	}
	total := 0
	for _, d := range daily {
		total += d.Count
	}
	if total != len(entries) {
		t.Errorf("expected %d events, got %d", len(entries), total)
	}

	ranks, err := GetActivityLeaderboard(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetActivityLeaderboard: %v", err)
	}
	if len(ranks) != 1 || ranks[0].UserID != 42 || ranks[0].Count != len(entries) {
		t.Errorf("unexpected leaderboard %+v", ranks)
	}
}
