package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
)

// ProfileRecord is a projected event profile.
type ProfileRecord struct {
	EventKey string
	Profile  domain.RiskProfile
	SetAt    time.Time
	EntryID  string
}

// Snapshot is a projected market snapshot.
type Snapshot struct {
	SnapshotID string
	EventKey   string
	Type       domain.SnapshotType
	Timestamp  time.Time
	Data       map[string]any
}

// Event is a registered event joined with its names.
type Event struct {
	EventKey     string
	Sport        string
	League       string
	Home         string
	Away         string
	Date         string
	MarketScope  string
	RegisteredAt time.Time
}

// TokenFilter narrows a token sum. The zero value sums every entry.
type TokenFilter struct {
	EventKey string
	Actor    string
}

// EntryQuery selects ledger rows. Zero fields do not filter; Limit 0 means
// no limit. Rows come back in ledger order.
type EntryQuery struct {
	EventKey   string
	ActionType ledger.ActionType
	Status     ledger.Status
	Limit      int
}

// Profile returns the profile of key, if one is set.
func (m *Mirror) Profile(ctx context.Context, key string) (ProfileRecord, bool, error) {
	var (
		rec   ProfileRecord
		prof  string
		setAt string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT event_key, profile, set_at, entry_id
		FROM event_profiles
		WHERE event_key = ?
	`, key).Scan(&rec.EventKey, &prof, &setAt, &rec.EntryID)
	if errors.Is(err, sql.ErrNoRows) {
		return ProfileRecord{}, false, nil
	}
	if err != nil {
		return ProfileRecord{}, false, fmt.Errorf("read profile: %w", err)
	}

	rec.Profile = domain.RiskProfile(prof)
	if rec.SetAt, err = parseTS(setAt); err != nil {
		return ProfileRecord{}, false, fmt.Errorf("read profile: %w", err)
	}
	return rec, true, nil
}

// State returns the projected lifecycle state of key. ok is false when no
// transition has been recorded.
func (m *Mirror) State(ctx context.Context, key string) (state domain.State, ok bool, err error) {
	var s string
	err = m.db.QueryRowContext(ctx, `
		SELECT state FROM lifecycle_states WHERE event_key = ?
	`, key).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read state: %w", err)
	}
	return domain.State(s), true, nil
}

// TokenSum returns the sum of token_delta over the entries matching f.
func (m *Mirror) TokenSum(ctx context.Context, f TokenFilter) (int64, error) {
	query := `SELECT COALESCE(SUM(token_delta), 0) FROM ledger`
	var (
		where []string
		args  []any
	)
	if f.EventKey != "" {
		where = append(where, "event_key = ?")
		args = append(args, f.EventKey)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var sum int64
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum token deltas: %w", err)
	}
	return sum, nil
}

// WalletBalance reads the global balance from the wallet view.
func (m *Mirror) WalletBalance(ctx context.Context) (int64, error) {
	var balance int64
	if err := m.db.QueryRowContext(ctx, `SELECT balance FROM wallet`).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read wallet: %w", err)
	}
	return balance, nil
}

// CountEntries returns the number of mirrored ledger rows.
func (m *Mirror) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Snapshot returns the snapshot with the given ID.
func (m *Mirror) Snapshot(ctx context.Context, id string) (Snapshot, bool, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT snapshot_id, event_key, type, timestamp, data
		FROM snapshots
		WHERE snapshot_id = ?
	`, id)
	return scanSnapshot(row)
}

// LatestSnapshot returns the snapshot of key most recently recorded or
// referenced by a ledger entry, optionally restricted to one type.
// Re-recording identical data writes nothing, so a run against an older
// snapshot is what brings it back to the front.
func (m *Mirror) LatestSnapshot(ctx context.Context, key string, typ domain.SnapshotType) (Snapshot, bool, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT s.snapshot_id, s.event_key, s.type, s.timestamp, s.data
		FROM snapshots s
		LEFT JOIN ledger l ON l.snapshot_id = s.snapshot_id AND l.event_key = s.event_key
		WHERE s.event_key = ? AND (? = '' OR s.type = ?)
		GROUP BY s.snapshot_id
		ORDER BY MAX(COALESCE(l.seq, s.seq)) DESC
		LIMIT 1
	`, key, string(typ), string(typ))
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (Snapshot, bool, error) {
	var (
		s       Snapshot
		typ, ts string
		data    string
	)
	err := row.Scan(&s.SnapshotID, &s.EventKey, &typ, &ts, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	s.Type = domain.SnapshotType(typ)
	if s.Timestamp, err = parseTS(ts); err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot data: %w", err)
	}
	return s, true, nil
}

// Event returns the registration of key.
func (m *Mirror) Event(ctx context.Context, key string) (Event, bool, error) {
	var (
		ev Event
		ts string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT e.event_key, s.name, l.name, h.name, a.name, e.event_date, e.market_scope, e.registered_at
		FROM events e
		JOIN leagues l  ON l.league_id = e.league_id
		JOIN sports s   ON s.sport_id = l.sport_id
		JOIN entities h ON h.entity_id = e.home_entity_id
		JOIN entities a ON a.entity_id = e.away_entity_id
		WHERE e.event_key = ?
	`, key).Scan(&ev.EventKey, &ev.Sport, &ev.League, &ev.Home, &ev.Away, &ev.Date, &ev.MarketScope, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("read event: %w", err)
	}
	if ev.RegisteredAt, err = parseTS(ts); err != nil {
		return Event{}, false, fmt.Errorf("read event: %w", err)
	}
	return ev, true, nil
}

// Entries returns the mirrored ledger rows matching q in ledger order.
func (m *Mirror) Entries(ctx context.Context, q EntryQuery) ([]ledger.Entry, error) {
	query := `
		SELECT entry_id, ts, action_type, event_key, snapshot_id, status,
		       payload_hash, payload, token_delta, actor, schema_version
		FROM ledger`
	var (
		where []string
		args  []any
	)
	if q.EventKey != "" {
		where = append(where, "event_key = ?")
		args = append(args, q.EventKey)
	}
	if q.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(q.ActionType))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// LastEntry returns the most recent entry of key with the given action type
// and status.
func (m *Mirror) LastEntry(ctx context.Context, key string, action ledger.ActionType, status ledger.Status) (ledger.Entry, bool, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT entry_id, ts, action_type, event_key, snapshot_id, status,
		       payload_hash, payload, token_delta, actor, schema_version
		FROM ledger
		WHERE event_key = ? AND action_type = ? AND status = ?
		ORDER BY seq DESC
		LIMIT 1
	`, key, string(action), string(status))
	if err != nil {
		return ledger.Entry{}, false, fmt.Errorf("query last entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return ledger.Entry{}, false, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e          ledger.Entry
		ts, action string
		status     string
		payload    string
	)
	err := rows.Scan(&e.EntryID, &ts, &action, &e.EventKey, &e.SnapshotID, &status,
		&e.PayloadHash, &payload, &e.TokenDelta, &e.Actor, &e.SchemaVersion)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	if e.Timestamp, err = parseTS(ts); err != nil {
		return ledger.Entry{}, fmt.Errorf("scan entry %s: %w", e.EntryID, err)
	}
	e.ActionType = ledger.ActionType(action)
	e.Status = ledger.Status(status)
	e.PayloadJSON = json.RawMessage(payload)
	if e.Payload, err = ledger.DecodePayload(e.ActionType, e.PayloadJSON); err != nil {
		return ledger.Entry{}, fmt.Errorf("scan entry %s: %w", e.EntryID, err)
	}
	return e, nil
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
