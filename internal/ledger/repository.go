package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the movement ledger operations.
type Repository interface {
	SaveReceived(ctx context.Context, externalID string, movement any) error
	DeleteReceived(ctx context.Context, externalID string, result any) error
	ListReceived(ctx context.Context, q Query) ([]Entry, error)
	Received(ctx context.Context) ([]Entry, error)

	SavePendingError(ctx context.Context, externalID string, movement, result any) error
	SavePendingErrorNoRetry(ctx context.Context, externalID string, movement, result any) error
	SavePendingOK(ctx context.Context, externalID string, movement, result any) error
	ListPending(ctx context.Context, q Query) ([]Entry, error)
	ListPendingArchive(ctx context.Context, q Query) ([]Entry, error)
	ListReceivedArchive(ctx context.Context, q Query) ([]Entry, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed ledger.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// SaveReceived records a movement received from the external system.
//
// A movement already in the ledger is a redelivery: its retry counter and
// updated_at are bumped and the row is snapshotted into the archive.
// Otherwise a new row is inserted with zero retries.
//
// Parameters:
//   - ctx: Context for cancellation
//   - externalID: The external system's id for the movement
//   - movement: Stored as JSON
//
// Returns:
//   - error: ErrNoExternalID, ErrEncode or a database error
func (r *SQLiteRepository) SaveReceived(ctx context.Context, externalID string, movement any) error {
	if externalID == "" {
		return ErrNoExternalID
	}
	msg, err := encode(movement)
	if err != nil {
		return err
	}
	now := r.now().UnixMilli()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		id, found, err := findID(ctx, tx, "msg_received", externalID)
		if err != nil {
			return err
		}
		if !found {
			const insert = `INSERT INTO msg_received (external_id, from_actor, to_actor, message, created_at, retries)
				VALUES (?, ?, ?, ?, ?, 0)`
			if _, err := tx.ExecContext(ctx, insert, externalID, ActorExternal, ActorPTL, msg, now); err != nil {
				return fmt.Errorf("inserting received %s: %w", externalID, err)
			}
			return nil
		}

		const update = `UPDATE msg_received SET retries = retries + 1, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, update, now, id); err != nil {
			return fmt.Errorf("updating received %s: %w", externalID, err)
		}
		const archive = `INSERT INTO msg_received_arch
			(received_id, external_id, from_actor, to_actor, message, created_at, updated_at, retries)
			SELECT id, external_id, from_actor, to_actor, message, created_at, updated_at, retries
			FROM msg_received WHERE id = ?`
		if _, err := tx.ExecContext(ctx, archive, id); err != nil {
			return fmt.Errorf("archiving received %s: %w", externalID, err)
		}
		return nil
	})
}

// DeleteReceived archives a received movement with its processing result and
// removes it from the live table. Unknown ids are ignored.
func (r *SQLiteRepository) DeleteReceived(ctx context.Context, externalID string, result any) error {
	res, err := encode(result)
	if err != nil {
		return err
	}
	now := r.now().UnixMilli()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		id, found, err := findID(ctx, tx, "msg_received", externalID)
		if err != nil || !found {
			return err
		}
		const archive = `INSERT INTO msg_received_arch
			(received_id, external_id, from_actor, to_actor, message, created_at, updated_at, processed_at, retries, result)
			SELECT id, external_id, from_actor, to_actor, message, created_at, updated_at, ?, retries, ?
			FROM msg_received WHERE id = ?`
		if _, err := tx.ExecContext(ctx, archive, now, res, id); err != nil {
			return fmt.Errorf("archiving received %s: %w", externalID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM msg_received WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting received %s: %w", externalID, err)
		}
		return nil
	})
}

// ListReceived returns a page of received movements, most recently touched
// first.
func (r *SQLiteRepository) ListReceived(ctx context.Context, q Query) ([]Entry, error) {
	limit, offset := q.bounds()
	const query = `SELECT id, 0, external_id, from_actor, to_actor, message, created_at, updated_at,
		NULL, NULL, retries, NULL
		FROM msg_received
		WHERE from_actor = ? AND to_actor = ?
		ORDER BY COALESCE(updated_at, created_at) DESC, id DESC
		LIMIT ? OFFSET ?`
	return r.query(ctx, query, ActorExternal, ActorPTL, limit, offset)
}

// Received returns every received movement in arrival order. It is used to
// restore the lights after a restart.
func (r *SQLiteRepository) Received(ctx context.Context) ([]Entry, error) {
	const query = `SELECT id, 0, external_id, from_actor, to_actor, message, created_at, updated_at,
		NULL, NULL, retries, NULL
		FROM msg_received
		ORDER BY id`
	return r.query(ctx, query)
}

// SavePendingError records a failed delivery that should be retried.
//
// An existing row gets its retry counter, result and updated_at refreshed and
// is snapshotted into the archive. A new row starts with zero retries.
func (r *SQLiteRepository) SavePendingError(ctx context.Context, externalID string, movement, result any) error {
	return r.savePending(ctx, externalID, movement, result, false)
}

// SavePendingErrorNoRetry records a delivery the external system rejected.
// It behaves like SavePendingError but also sets sent_at, which removes the
// row from the redelivery set.
func (r *SQLiteRepository) SavePendingErrorNoRetry(ctx context.Context, externalID string, movement, result any) error {
	return r.savePending(ctx, externalID, movement, result, true)
}

func (r *SQLiteRepository) savePending(ctx context.Context, externalID string, movement, result any, terminal bool) error {
	if externalID == "" {
		return ErrNoExternalID
	}
	msg, err := encode(movement)
	if err != nil {
		return err
	}
	res, err := encode(result)
	if err != nil {
		return err
	}
	now := r.now().UnixMilli()
	var sentAt sql.NullInt64
	if terminal {
		sentAt = sql.NullInt64{Int64: now, Valid: true}
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		id, found, err := findID(ctx, tx, "msg_pending_to_send", externalID)
		if err != nil {
			return err
		}
		if !found {
			const insert = `INSERT INTO msg_pending_to_send
				(external_id, from_actor, to_actor, message, created_at, sent_at, retries, result)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
			if _, err := tx.ExecContext(ctx, insert,
				externalID, ActorPTL, ActorExternal, msg, now, sentAt, res); err != nil {
				return fmt.Errorf("inserting pending %s: %w", externalID, err)
			}
			return nil
		}

		const update = `UPDATE msg_pending_to_send
			SET retries = retries + 1, result = ?, updated_at = ?, sent_at = COALESCE(?, sent_at)
			WHERE id = ?`
		if _, err := tx.ExecContext(ctx, update, res, now, sentAt, id); err != nil {
			return fmt.Errorf("updating pending %s: %w", externalID, err)
		}
		const archive = `INSERT INTO msg_pending_to_send_arch
			(pending_id, external_id, from_actor, to_actor, message, created_at, updated_at, sent_at, retries, result)
			SELECT id, external_id, from_actor, to_actor, message, created_at, updated_at, sent_at, retries, result
			FROM msg_pending_to_send WHERE id = ?`
		if _, err := tx.ExecContext(ctx, archive, id); err != nil {
			return fmt.Errorf("archiving pending %s: %w", externalID, err)
		}
		return nil
	})
}

// SavePendingOK records a delivery the external system accepted. A pending
// row is archived as sent and removed; without one, the delivery goes
// straight into the archive.
func (r *SQLiteRepository) SavePendingOK(ctx context.Context, externalID string, movement, result any) error {
	if externalID == "" {
		return ErrNoExternalID
	}
	msg, err := encode(movement)
	if err != nil {
		return err
	}
	res, err := encode(result)
	if err != nil {
		return err
	}
	now := r.now().UnixMilli()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		id, found, err := findID(ctx, tx, "msg_pending_to_send", externalID)
		if err != nil {
			return err
		}
		if !found {
			const insert = `INSERT INTO msg_pending_to_send_arch
				(external_id, from_actor, to_actor, message, created_at, sent_at, retries, result)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
			if _, err := tx.ExecContext(ctx, insert,
				externalID, ActorPTL, ActorExternal, msg, now, now, res); err != nil {
				return fmt.Errorf("archiving delivered %s: %w", externalID, err)
			}
			return nil
		}

		const archive = `INSERT INTO msg_pending_to_send_arch
			(pending_id, external_id, from_actor, to_actor, message, created_at, updated_at, sent_at, retries, result)
			SELECT id, external_id, from_actor, to_actor, message, created_at, ?, ?, retries, ?
			FROM msg_pending_to_send WHERE id = ?`
		if _, err := tx.ExecContext(ctx, archive, now, now, res, id); err != nil {
			return fmt.Errorf("archiving pending %s: %w", externalID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM msg_pending_to_send WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting pending %s: %w", externalID, err)
		}
		return nil
	})
}

// ListPending returns a page of undelivered reports, newest first. With
// q.OnlyPending set, rows already marked sent are excluded.
func (r *SQLiteRepository) ListPending(ctx context.Context, q Query) ([]Entry, error) {
	limit, offset := q.bounds()
	query := `SELECT id, 0, external_id, from_actor, to_actor, message, created_at, updated_at,
		sent_at, NULL, retries, result
		FROM msg_pending_to_send
		WHERE from_actor = ? AND to_actor = ?`
	if q.OnlyPending {
		query += ` AND sent_at IS NULL`
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, ActorPTL, ActorExternal, limit, offset)
}

// ListPendingArchive returns a page of archived delivery snapshots, newest
// first.
func (r *SQLiteRepository) ListPendingArchive(ctx context.Context, q Query) ([]Entry, error) {
	limit, offset := q.bounds()
	const query = `SELECT id, COALESCE(pending_id, 0), external_id, from_actor, to_actor, message,
		created_at, updated_at, sent_at, NULL, retries, result
		FROM msg_pending_to_send_arch
		WHERE from_actor = ? AND to_actor = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`
	return r.query(ctx, query, ActorPTL, ActorExternal, limit, offset)
}

// ListReceivedArchive returns a page of archived received movements, newest
// first.
func (r *SQLiteRepository) ListReceivedArchive(ctx context.Context, q Query) ([]Entry, error) {
	limit, offset := q.bounds()
	const query = `SELECT id, received_id, external_id, from_actor, to_actor, message,
		created_at, updated_at, NULL, processed_at, retries, result
		FROM msg_received_arch
		ORDER BY id DESC
		LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, offset)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ledger: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var msg string
		var created int64
		var updated, sent, processed sql.NullInt64
		var result sql.NullString
		if err := rows.Scan(&e.ID, &e.SourceID, &e.ExternalID, &e.From, &e.To, &msg,
			&created, &updated, &sent, &processed, &e.Retries, &result); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		e.Message = json.RawMessage(msg)
		e.CreatedAt = time.UnixMilli(created)
		e.UpdatedAt = millis(updated)
		e.SentAt = millis(sent)
		e.ProcessedAt = millis(processed)
		if result.Valid {
			e.Result = json.RawMessage(result.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger: %w", err)
	}
	return entries, nil
}

// findID returns the live row id for externalID in table.
func findID(ctx context.Context, tx *sql.Tx, table, externalID string) (int64, bool, error) {
	query := "SELECT id FROM " + table + " WHERE external_id = ?" //nolint:gosec // fixed table names
	var id int64
	err := tx.QueryRowContext(ctx, query, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up %s in %s: %w", externalID, table, err)
	}
	return id, true, nil
}

func encode(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok && len(raw) > 0 {
		return string(raw), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return string(b), nil
}

func millis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
