package mirror

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/ledger"
)

// Apply records e in the ledger table and, for SUCCESS entries, updates the
// projections. Everything happens in one transaction.
//
// Apply implements ledger.Sink.
func (m *Mirror) Apply(ctx context.Context, e ledger.Entry) error {
	payloadJSON := e.PayloadJSON
	if len(payloadJSON) == 0 {
		var err error
		if payloadJSON, err = domain.MarshalCanonical(e.Payload); err != nil {
			return fmt.Errorf("apply %s: %w", e.EntryID, err)
		}
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply %s: begin tx: %w", e.EntryID, err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger
		(entry_id, ts, action_type, event_key, snapshot_id, status, payload_hash, payload, token_delta, actor, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.EntryID,
		ledger.FormatTimestamp(e.Timestamp),
		string(e.ActionType),
		e.EventKey,
		e.SnapshotID,
		string(e.Status),
		e.PayloadHash,
		string(payloadJSON),
		e.TokenDelta,
		e.Actor,
		e.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("apply %s: insert ledger row: %w", e.EntryID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("apply %s: read seq: %w", e.EntryID, err)
	}

	if e.Status == ledger.StatusSuccess {
		if err := project(ctx, tx, e, seq); err != nil {
			return fmt.Errorf("apply %s: project %s: %w", e.EntryID, e.ActionType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply %s: commit: %w", e.EntryID, err)
	}
	return nil
}

// project updates the projection tables for a SUCCESS entry.
func project(ctx context.Context, tx *sql.Tx, e ledger.Entry, seq int64) error {
	ts := ledger.FormatTimestamp(e.Timestamp)

	switch p := e.Payload.(type) {
	case ledger.ProfileSet:
		// First writer wins; the registry never lets a second one through.
		_, err := tx.ExecContext(ctx, `
			INSERT INTO event_profiles (event_key, profile, set_at, entry_id, seq)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(event_key) DO NOTHING
		`, e.EventKey, string(p.Profile), ts, e.EntryID, seq)
		return err

	case ledger.StateTransition:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lifecycle_states (event_key, state, updated_at, seq)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(event_key) DO UPDATE SET
				state = excluded.state,
				updated_at = excluded.updated_at,
				seq = excluded.seq
		`, e.EventKey, string(p.To), ts, seq)
		return err

	case ledger.SnapshotCreated:
		data, err := domain.MarshalCanonical(nonNil(p.Data))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshots (snapshot_id, event_key, type, timestamp, data, seq)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(snapshot_id) DO NOTHING
		`, e.SnapshotID, e.EventKey, string(p.Type), ts, string(data), seq)
		return err

	case ledger.EventRegistered:
		return projectEvent(ctx, tx, e.EventKey, p, ts)

	default:
		return nil
	}
}

func projectEvent(ctx context.Context, tx *sql.Tx, key string, p ledger.EventRegistered, ts string) error {
	sportID, err := upsertID(ctx, tx,
		`INSERT INTO sports (name) VALUES (?) ON CONFLICT(name) DO NOTHING`,
		`SELECT sport_id FROM sports WHERE name = ?`,
		p.Sport)
	if err != nil {
		return fmt.Errorf("sport: %w", err)
	}

	leagueID, err := upsertID(ctx, tx,
		`INSERT INTO leagues (sport_id, name) VALUES (?, ?) ON CONFLICT(sport_id, name) DO NOTHING`,
		`SELECT league_id FROM leagues WHERE sport_id = ? AND name = ?`,
		sportID, p.League)
	if err != nil {
		return fmt.Errorf("league: %w", err)
	}

	const insertEntity = `INSERT INTO entities (sport_id, name) VALUES (?, ?) ON CONFLICT(sport_id, name) DO NOTHING`
	const selectEntity = `SELECT entity_id FROM entities WHERE sport_id = ? AND name = ?`
	homeID, err := upsertID(ctx, tx, insertEntity, selectEntity, sportID, p.Home)
	if err != nil {
		return fmt.Errorf("home entity: %w", err)
	}
	awayID, err := upsertID(ctx, tx, insertEntity, selectEntity, sportID, p.Away)
	if err != nil {
		return fmt.Errorf("away entity: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (event_key, league_id, home_entity_id, away_entity_id, event_date, market_scope, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_key) DO NOTHING
	`, key, leagueID, homeID, awayID, p.Date, p.MarketScope, ts)
	if err != nil {
		return fmt.Errorf("event: %w", err)
	}
	return nil
}

// upsertID inserts a row if missing and returns its integer key.
func upsertID(ctx context.Context, tx *sql.Tx, insert, lookup string, args ...any) (int64, error) {
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, lookup, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
