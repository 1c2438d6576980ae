package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Entry Registry
// ============================================================================

const (
	MsgDBParseGuildIDFail   = "failed to parse guild ID '%s': %w"
	MsgDBParseChannelIDFail = "failed to parse channel ID '%s': %w"
	MsgDBParseRoleIDFail    = "failed to parse role ID '%s': %w"
	MsgDBParseUserIDFail    = "failed to parse user ID '%s': %w"
	MsgDBParseMessageIDFail = "failed to parse message ID '%s': %w"
)

// --- Ticket setup ---

type TicketSetup struct {
	GuildID           snowflake.ID
	Identifier        string
	PanelChannelID    snowflake.ID
	CategoryID        snowflake.ID
	ArchiveCategoryID snowflake.ID
	SupportRoleID     snowflake.ID
	AdvisorRoleID     snowflake.ID
	LogsChannelID     snowflake.ID
	CreatedAt         time.Time
}

func GetTicketSetup(ctx context.Context, guildID snowflake.ID) (*TicketSetup, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT guild_id, identifier, panel_channel_id, category_id, archive_category_id,
		       support_role_id, advisor_role_id, logs_channel_id, created_at
		FROM ticket_setups WHERE guild_id = ?
	`, guildID.String())

	s := &TicketSetup{}
	var gid, pcid, cid, acid, srid, arid, lcid string
	err := row.Scan(&gid, &s.Identifier, &pcid, &cid, &acid, &srid, &arid, &lcid, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if s.GuildID, err = snowflake.Parse(gid); err != nil {
		return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
	}
	if s.PanelChannelID, err = snowflake.Parse(pcid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, pcid, err)
	}
	if s.CategoryID, err = snowflake.Parse(cid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
	}
	if s.ArchiveCategoryID, err = snowflake.Parse(acid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, acid, err)
	}
	if s.SupportRoleID, err = snowflake.Parse(srid); err != nil {
		return nil, fmt.Errorf(MsgDBParseRoleIDFail, srid, err)
	}
	if s.AdvisorRoleID, err = snowflake.Parse(arid); err != nil {
		return nil, fmt.Errorf(MsgDBParseRoleIDFail, arid, err)
	}
	if s.LogsChannelID, err = snowflake.Parse(lcid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, lcid, err)
	}
	return s, nil
}

// RequireTicketSetup resolves the guild's setup or fails with
// ErrNotConfigured. Lifecycle transitions depend on a setup existing.
func RequireTicketSetup(ctx context.Context, guildID snowflake.ID) (*TicketSetup, error) {
	s, err := GetTicketSetup(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotConfigured
	}
	return s, nil
}

// CreateTicketSetup inserts the guild's setup. Uniqueness is checked by
// reading first; an existing row yields ErrAlreadyConfigured and no write.
func CreateTicketSetup(ctx context.Context, s *TicketSetup) error {
	existing, err := GetTicketSetup(ctx, s.GuildID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyConfigured
	}

	_, err = DB.ExecContext(ctx, `
		INSERT INTO ticket_setups (guild_id, identifier, panel_channel_id, category_id,
			archive_category_id, support_role_id, advisor_role_id, logs_channel_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.GuildID.String(), s.Identifier, s.PanelChannelID.String(), s.CategoryID.String(),
		s.ArchiveCategoryID.String(), s.SupportRoleID.String(), s.AdvisorRoleID.String(),
		s.LogsChannelID.String())
	return err
}

func DeleteTicketSetup(ctx context.Context, guildID snowflake.ID) (bool, error) {
	res, err := DB.ExecContext(ctx, "DELETE FROM ticket_setups WHERE guild_id = ?", guildID.String())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- Tickets ---

type TicketState string

const (
	TicketStateCreated  TicketState = "created"
	TicketStateClaimed  TicketState = "claimed"
	TicketStateArchived TicketState = "archived"
)

type Ticket struct {
	Identifier  string
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	OwnerID     snowflake.ID
	State       TicketState
	ClaimedBy   snowflake.ID
	ClaimReason string
	CreatedAt   time.Time
	ClaimedAt   sql.NullTime
}

func CreateTicket(ctx context.Context, t *Ticket) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO tickets (identifier, guild_id, channel_id, owner_id, state)
		VALUES (?, ?, ?, ?, ?)
	`, t.Identifier, t.GuildID.String(), t.ChannelID.String(), t.OwnerID.String(), string(TicketStateCreated))
	return err
}

func scanTicket(row *sql.Row) (*Ticket, error) {
	t := &Ticket{}
	var gid, cid, oid, state string
	var claimedBy, claimReason sql.NullString
	err := row.Scan(&t.Identifier, &gid, &cid, &oid, &state, &claimedBy, &claimReason, &t.CreatedAt, &t.ClaimedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.State = TicketState(state)
	if t.GuildID, err = snowflake.Parse(gid); err != nil {
		return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
	}
	if t.ChannelID, err = snowflake.Parse(cid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
	}
	if t.OwnerID, err = snowflake.Parse(oid); err != nil {
		return nil, fmt.Errorf(MsgDBParseUserIDFail, oid, err)
	}
	if claimedBy.Valid && claimedBy.String != "" {
		if t.ClaimedBy, err = snowflake.Parse(claimedBy.String); err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, claimedBy.String, err)
		}
	}
	if claimReason.Valid {
		t.ClaimReason = claimReason.String
	}
	return t, nil
}

const ticketColumns = "identifier, guild_id, channel_id, owner_id, state, claimed_by, claim_reason, created_at, claimed_at"

func GetTicketByChannel(ctx context.Context, channelID snowflake.ID) (*Ticket, error) {
	row := DB.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE channel_id = ?", channelID.String())
	return scanTicket(row)
}

func GetTicket(ctx context.Context, identifier string) (*Ticket, error) {
	row := DB.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE identifier = ?", identifier)
	return scanTicket(row)
}

// ClaimTicket commits a claim only if the ticket is still unclaimed. The
// database arbitrates races: of two concurrent claimants exactly one sees
// a true result.
func ClaimTicket(ctx context.Context, identifier string, claimedBy snowflake.ID, reason string) (bool, error) {
	res, err := DB.ExecContext(ctx, `
		UPDATE tickets SET state = ?, claimed_by = ?, claim_reason = ?, claimed_at = CURRENT_TIMESTAMP
		WHERE identifier = ? AND state = ?
	`, string(TicketStateClaimed), claimedBy.String(), reason, identifier, string(TicketStateCreated))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func SetTicketState(ctx context.Context, identifier string, state TicketState) error {
	_, err := DB.ExecContext(ctx, "UPDATE tickets SET state = ? WHERE identifier = ?", string(state), identifier)
	return err
}

func DeleteTicket(ctx context.Context, identifier string) error {
	_, err := DB.ExecContext(ctx, "DELETE FROM tickets WHERE identifier = ?", identifier)
	return err
}

func GetTicketsForGuild(ctx context.Context, guildID snowflake.ID) ([]*Ticket, error) {
	rows, err := DB.QueryContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE guild_id = ? ORDER BY created_at ASC", guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t := &Ticket{}
		var gid, cid, oid, state string
		var claimedBy, claimReason sql.NullString
		if err := rows.Scan(&t.Identifier, &gid, &cid, &oid, &state, &claimedBy, &claimReason, &t.CreatedAt, &t.ClaimedAt); err != nil {
			return nil, err
		}
		t.State = TicketState(state)
		if t.GuildID, err = snowflake.Parse(gid); err != nil {
			return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
		}
		if t.ChannelID, err = snowflake.Parse(cid); err != nil {
			return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
		}
		if t.OwnerID, err = snowflake.Parse(oid); err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, oid, err)
		}
		if claimedBy.Valid && claimedBy.String != "" {
			if t.ClaimedBy, err = snowflake.Parse(claimedBy.String); err != nil {
				return nil, fmt.Errorf(MsgDBParseUserIDFail, claimedBy.String, err)
			}
		}
		if claimReason.Valid {
			t.ClaimReason = claimReason.String
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// --- Reaction roles ---

type ReactionRoleRecord struct {
	Identifier string
	GuildID    snowflake.ID
	ChannelID  snowflake.ID
	MessageID  snowflake.ID
	Title      string
	Mappings   []RoleMapping
	CreatedAt  time.Time
}

type RoleMapping struct {
	Emoji  string
	RoleID snowflake.ID
}

type RoleLogEntry struct {
	EntryID   string
	UserID    snowflake.ID
	UserName  string
	RoleID    snowflake.ID
	RoleName  string
	Action    string
	CreatedAt time.Time
}

func CreateReactionRole(ctx context.Context, r *ReactionRoleRecord) error {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reaction_roles (identifier, guild_id, channel_id, message_id, title)
		VALUES (?, ?, ?, ?, ?)
	`, r.Identifier, r.GuildID.String(), r.ChannelID.String(), r.MessageID.String(), r.Title)
	if err != nil {
		return err
	}

	for _, m := range r.Mappings {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reaction_role_mappings (record_id, emoji, role_id) VALUES (?, ?, ?)
		`, r.Identifier, m.Emoji, m.RoleID.String())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func GetReactionRoleByMessage(ctx context.Context, guildID, messageID snowflake.ID) (*ReactionRoleRecord, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT identifier, guild_id, channel_id, message_id, COALESCE(title, ''), created_at
		FROM reaction_roles WHERE guild_id = ? AND message_id = ?
	`, guildID.String(), messageID.String())

	r := &ReactionRoleRecord{}
	var gid, cid, mid string
	err := row.Scan(&r.Identifier, &gid, &cid, &mid, &r.Title, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.GuildID, err = snowflake.Parse(gid); err != nil {
		return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
	}
	if r.ChannelID, err = snowflake.Parse(cid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
	}
	if r.MessageID, err = snowflake.Parse(mid); err != nil {
		return nil, fmt.Errorf(MsgDBParseMessageIDFail, mid, err)
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT emoji, role_id FROM reaction_role_mappings WHERE record_id = ? ORDER BY id ASC
	`, r.Identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m RoleMapping
		var rid string
		if err := rows.Scan(&m.Emoji, &rid); err != nil {
			return nil, err
		}
		if m.RoleID, err = snowflake.Parse(rid); err != nil {
			return nil, fmt.Errorf(MsgDBParseRoleIDFail, rid, err)
		}
		r.Mappings = append(r.Mappings, m)
	}
	return r, rows.Err()
}

func ListReactionRoles(ctx context.Context, guildID snowflake.ID) ([]*ReactionRoleRecord, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT identifier, guild_id, channel_id, message_id, COALESCE(title, ''), created_at
		FROM reaction_roles WHERE guild_id = ? ORDER BY created_at ASC
	`, guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ReactionRoleRecord
	for rows.Next() {
		r := &ReactionRoleRecord{}
		var gid, cid, mid string
		if err := rows.Scan(&r.Identifier, &gid, &cid, &mid, &r.Title, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.GuildID, err = snowflake.Parse(gid); err != nil {
			return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
		}
		if r.ChannelID, err = snowflake.Parse(cid); err != nil {
			return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
		}
		if r.MessageID, err = snowflake.Parse(mid); err != nil {
			return nil, fmt.Errorf(MsgDBParseMessageIDFail, mid, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteReactionRoleByMessage is a find-and-delete. Mappings and logs go
// with the parent via ON DELETE CASCADE.
func DeleteReactionRoleByMessage(ctx context.Context, guildID, messageID snowflake.ID) (bool, error) {
	res, err := DB.ExecContext(ctx, `
		DELETE FROM reaction_roles WHERE guild_id = ? AND message_id = ?
	`, guildID.String(), messageID.String())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendRoleToggleLog appends one entry to the record's toggle log. The log
// is insert-only; nothing ever rewrites it.
func AppendRoleToggleLog(ctx context.Context, recordID string, e *RoleLogEntry) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO reaction_role_logs (record_id, entry_id, user_id, user_name, role_id, role_name, action)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, recordID, e.EntryID, e.UserID.String(), e.UserName, e.RoleID.String(), e.RoleName, e.Action)
	return err
}

func GetRoleToggleLogs(ctx context.Context, recordID string) ([]*RoleLogEntry, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT entry_id, user_id, user_name, role_id, COALESCE(role_name, ''), action, created_at
		FROM reaction_role_logs WHERE record_id = ? ORDER BY id ASC
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*RoleLogEntry
	for rows.Next() {
		e := &RoleLogEntry{}
		var uid, rid string
		if err := rows.Scan(&e.EntryID, &uid, &e.UserName, &rid, &e.RoleName, &e.Action, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.UserID, err = snowflake.Parse(uid); err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, uid, err)
		}
		if e.RoleID, err = snowflake.Parse(rid); err != nil {
			return nil, fmt.Errorf(MsgDBParseRoleIDFail, rid, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Join-to-create lobbies ---

type Lobby struct {
	ID         int64
	GuildID    snowflake.ID
	ChannelID  snowflake.ID
	CategoryID snowflake.ID
	CreatedAt  time.Time
}

// CreateLobby tracks a lobby channel. A duplicate (guild, channel) pair
// yields ErrAlreadyTracked without writing.
func CreateLobby(ctx context.Context, l *Lobby) error {
	existing, err := GetLobby(ctx, l.GuildID, l.ChannelID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyTracked
	}

	res, err := DB.ExecContext(ctx, `
		INSERT INTO lobbies (guild_id, channel_id, category_id) VALUES (?, ?, ?)
	`, l.GuildID.String(), l.ChannelID.String(), l.CategoryID.String())
	if err != nil {
		return err
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

func GetLobby(ctx context.Context, guildID, channelID snowflake.ID) (*Lobby, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT id, guild_id, channel_id, category_id, created_at
		FROM lobbies WHERE guild_id = ? AND channel_id = ?
	`, guildID.String(), channelID.String())

	l := &Lobby{}
	var gid, cid, catid string
	err := row.Scan(&l.ID, &gid, &cid, &catid, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if l.GuildID, err = snowflake.Parse(gid); err != nil {
		return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
	}
	if l.ChannelID, err = snowflake.Parse(cid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
	}
	if l.CategoryID, err = snowflake.Parse(catid); err != nil {
		return nil, fmt.Errorf(MsgDBParseChannelIDFail, catid, err)
	}
	return l, nil
}

func ListLobbies(ctx context.Context, guildID snowflake.ID) ([]*Lobby, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, channel_id, category_id, created_at
		FROM lobbies WHERE guild_id = ? ORDER BY id ASC
	`, guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []*Lobby
	for rows.Next() {
		l := &Lobby{}
		var gid, cid, catid string
		if err := rows.Scan(&l.ID, &gid, &cid, &catid, &l.CreatedAt); err != nil {
			return nil, err
		}
		if l.GuildID, err = snowflake.Parse(gid); err != nil {
			return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
		}
		if l.ChannelID, err = snowflake.Parse(cid); err != nil {
			return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
		}
		if l.CategoryID, err = snowflake.Parse(catid); err != nil {
			return nil, fmt.Errorf(MsgDBParseChannelIDFail, catid, err)
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

func DeleteLobby(ctx context.Context, guildID, channelID snowflake.ID) (bool, error) {
	res, err := DB.ExecContext(ctx, `
		DELETE FROM lobbies WHERE guild_id = ? AND channel_id = ?
	`, guildID.String(), channelID.String())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func AddLobbyUser(ctx context.Context, lobbyID int64, userID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO lobby_users (lobby_id, user_id) VALUES (?, ?)
		ON CONFLICT(lobby_id, user_id) DO NOTHING
	`, lobbyID, userID.String())
	return err
}

func RemoveLobbyUser(ctx context.Context, lobbyID int64, userID snowflake.ID) error {
	_, err := DB.ExecContext(ctx, `
		DELETE FROM lobby_users WHERE lobby_id = ? AND user_id = ?
	`, lobbyID, userID.String())
	return err
}

func GetLobbyUsers(ctx context.Context, lobbyID int64) ([]snowflake.ID, error) {
	rows, err := DB.QueryContext(ctx, "SELECT user_id FROM lobby_users WHERE lobby_id = ?", lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []snowflake.ID
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		id, err := snowflake.Parse(uid)
		if err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, uid, err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// --- Levels ---

type LevelRecord struct {
	GuildID      snowflake.ID
	UserID       snowflake.ID
	XP           int
	Level        int
	LevelUpCount int
}

func GetLevelRecord(ctx context.Context, guildID, userID snowflake.ID) (*LevelRecord, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT xp, level, level_up_count FROM levels WHERE guild_id = ? AND user_id = ?
	`, guildID.String(), userID.String())

	r := &LevelRecord{GuildID: guildID, UserID: userID}
	err := row.Scan(&r.XP, &r.Level, &r.LevelUpCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// AwardXP adds xp to the member's record, recomputes the level, and appends
// an xp history row. Returns the updated record and whether a level-up
// happened.
func AwardXP(ctx context.Context, guildID, userID snowflake.ID, amount int, reason string) (*LevelRecord, bool, error) {
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	r := &LevelRecord{GuildID: guildID, UserID: userID}
	err = tx.QueryRowContext(ctx, `
		SELECT xp, level, level_up_count FROM levels WHERE guild_id = ? AND user_id = ?
	`, guildID.String(), userID.String()).Scan(&r.XP, &r.Level, &r.LevelUpCount)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, err
	}

	r.XP += amount
	newLevel := LevelForXP(r.XP)
	leveledUp := newLevel > r.Level
	r.Level = newLevel
	if leveledUp {
		r.LevelUpCount++
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO levels (guild_id, user_id, xp, level, level_up_count) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			xp = excluded.xp, level = excluded.level,
			level_up_count = excluded.level_up_count, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), userID.String(), r.XP, r.Level, r.LevelUpCount)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO xp_history (guild_id, user_id, amount, reason) VALUES (?, ?, ?, ?)
	`, guildID.String(), userID.String(), amount, reason)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return r, leveledUp, nil
}

func GetLevelLeaderboard(ctx context.Context, guildID snowflake.ID, limit int) ([]*LevelRecord, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT user_id, xp, level, level_up_count FROM levels
		WHERE guild_id = ? ORDER BY level DESC, xp DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*LevelRecord
	for rows.Next() {
		r := &LevelRecord{GuildID: guildID}
		var uid string
		if err := rows.Scan(&uid, &r.XP, &r.Level, &r.LevelUpCount); err != nil {
			return nil, err
		}
		if r.UserID, err = snowflake.Parse(uid); err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, uid, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Stat channels ---

type StatChannel struct {
	ID        int64
	GuildID   snowflake.ID
	StatType  string
	ChannelID snowflake.ID
	Template  string
	LastName  string
}

// CreateStatChannel adds a stat entry; a duplicate (guild, type) yields
// ErrDuplicateStat without writing.
func CreateStatChannel(ctx context.Context, s *StatChannel) error {
	var existing int
	err := DB.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM stat_channels WHERE guild_id = ? AND stat_type = ?
	`, s.GuildID.String(), s.StatType).Scan(&existing)
	if err != nil {
		return err
	}
	if existing > 0 {
		return ErrDuplicateStat
	}

	res, err := DB.ExecContext(ctx, `
		INSERT INTO stat_channels (guild_id, stat_type, channel_id, template) VALUES (?, ?, ?, ?)
	`, s.GuildID.String(), s.StatType, s.ChannelID.String(), s.Template)
	if err != nil {
		return err
	}
	s.ID, _ = res.LastInsertId()
	return nil
}

func scanStatChannels(rows *sql.Rows) ([]*StatChannel, error) {
	var stats []*StatChannel
	for rows.Next() {
		s := &StatChannel{}
		var gid, cid string
		var template, lastName sql.NullString
		if err := rows.Scan(&s.ID, &gid, &s.StatType, &cid, &template, &lastName); err != nil {
			return nil, err
		}
		var err error
		if s.GuildID, err = snowflake.Parse(gid); err != nil {
			return nil, fmt.Errorf(MsgDBParseGuildIDFail, gid, err)
		}
		if s.ChannelID, err = snowflake.Parse(cid); err != nil {
			return nil, fmt.Errorf(MsgDBParseChannelIDFail, cid, err)
		}
		if template.Valid {
			s.Template = template.String
		}
		if lastName.Valid {
			s.LastName = lastName.String
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func GetAllStatChannels(ctx context.Context) ([]*StatChannel, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, stat_type, channel_id, template, last_name FROM stat_channels ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatChannels(rows)
}

func GetStatChannels(ctx context.Context, guildID snowflake.ID) ([]*StatChannel, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, stat_type, channel_id, template, last_name FROM stat_channels
		WHERE guild_id = ? ORDER BY id ASC
	`, guildID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatChannels(rows)
}

func DeleteStatChannel(ctx context.Context, guildID snowflake.ID, statType string) (bool, error) {
	res, err := DB.ExecContext(ctx, `
		DELETE FROM stat_channels WHERE guild_id = ? AND stat_type = ?
	`, guildID.String(), statType)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func DeleteStatChannelByID(ctx context.Context, id int64) error {
	_, err := DB.ExecContext(ctx, "DELETE FROM stat_channels WHERE id = ?", id)
	return err
}

func SetStatChannelLastName(ctx context.Context, id int64, name string) error {
	_, err := DB.ExecContext(ctx, "UPDATE stat_channels SET last_name = ? WHERE id = ?", name, id)
	return err
}

// --- Activity ---

type ActivityEntry struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	UserName  string
	Type      string
	CreatedAt time.Time
}

func AddActivity(ctx context.Context, a *ActivityEntry) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO activities (guild_id, user_id, user_name, activity_type) VALUES (?, ?, ?, ?)
	`, a.GuildID.String(), a.UserID.String(), a.UserName, a.Type)
	return err
}

type DailyActivity struct {
	Day   string
	Count int
}

func GetDailyActivity(ctx context.Context, guildID, userID snowflake.ID, days int) ([]DailyActivity, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT date(created_at) AS day, COUNT(1)
		FROM activities
		WHERE guild_id = ? AND user_id = ? AND created_at >= datetime('now', ?)
		GROUP BY day ORDER BY day ASC
	`, guildID.String(), userID.String(), fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var daily []DailyActivity
	for rows.Next() {
		var d DailyActivity
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

type ActivityRank struct {
	UserID   snowflake.ID
	UserName string
	Count    int
}

func GetActivityLeaderboard(ctx context.Context, guildID snowflake.ID, limit int) ([]ActivityRank, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT user_id, MAX(user_name), COUNT(1) AS cnt
		FROM activities WHERE guild_id = ?
		GROUP BY user_id ORDER BY cnt DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranks []ActivityRank
	for rows.Next() {
		var r ActivityRank
		var uid string
		if err := rows.Scan(&uid, &r.UserName, &r.Count); err != nil {
			return nil, err
		}
		if r.UserID, err = snowflake.Parse(uid); err != nil {
			return nil, fmt.Errorf(MsgDBParseUserIDFail, uid, err)
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}
