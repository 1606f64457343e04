package topology

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// Repository defines the persistence operations for the configured topology.
type Repository interface {
	Load(ctx context.Context) (Units, error)
	Save(ctx context.Context, units Units) (Units, error)
	Clear(ctx context.Context) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed topology repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load returns every configured unit joined with its shelf and endpoint,
// ordered by unit id.
func (r *SQLiteRepository) Load(ctx context.Context) (Units, error) {
	const query = `SELECT u.id, u.location, u.node_id, u.channel_id, u.node_type,
		s.id, s.code, s.shelf_type_id, st.code,
		e.id, e.ip, e.port
		FROM units u
		JOIN shelves s ON s.id = u.shelf_id
		JOIN shelf_types st ON st.id = s.shelf_type_id
		JOIN endpoints e ON e.id = u.endpoint_id
		ORDER BY u.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying units: %w", err)
	}
	defer rows.Close()

	var units Units
	for rows.Next() {
		var u Unit
		var nodeType int
		if err := rows.Scan(&u.ID, &u.Location, &u.NodeID, &u.ChannelID, &nodeType,
			&u.Shelf.ID, &u.Shelf.Code, &u.Shelf.TypeID, &u.Shelf.TypeCode,
			&u.Endpoint.ID, &u.Endpoint.IP, &u.Endpoint.Port); err != nil {
			return nil, fmt.Errorf("scanning unit: %w", err)
		}
		u.Type = protocol.NodeType(nodeType)
		u.TypeName = u.Type.Name()
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating units: %w", err)
	}
	return units, nil
}

// Save replaces the whole topology with units in a single transaction.
//
// Endpoints are deduplicated by ip:port and shelves by code. A unit or
// endpoint with a positive ID keeps it; otherwise SQLite assigns one.
//
// Parameters:
//   - ctx: Context for cancellation
//   - units: The complete new topology
//
// Returns:
//   - Units: The stored units with their assigned IDs
//   - error: Validation or database failure; nothing is changed on error
func (r *SQLiteRepository) Save(ctx context.Context, units Units) (Units, error) {
	if err := Validate(units); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := clearTx(ctx, tx); err != nil {
		return nil, err
	}

	endpointIDs := make(map[string]int64)
	shelfIDs := make(map[string]int64)
	saved := make(Units, 0, len(units))

	for _, u := range units {
		addr := u.Endpoint.Addr()
		epID, ok := endpointIDs[addr]
		if !ok {
			epID, err = insertEndpoint(ctx, tx, u.Endpoint)
			if err != nil {
				return nil, err
			}
			endpointIDs[addr] = epID
		}
		u.Endpoint.ID = epID

		if u.Shelf.Code == "" {
			u.Shelf.Code = protocol.DefaultShelfCode
		}
		if u.Shelf.TypeID == 0 {
			u.Shelf.TypeID = protocol.DefaultShelfType
		}
		shelfID, ok := shelfIDs[u.Shelf.Code]
		if !ok {
			shelfID, err = insertShelf(ctx, tx, u.Shelf)
			if err != nil {
				return nil, err
			}
			shelfIDs[u.Shelf.Code] = shelfID
		}
		u.Shelf.ID = shelfID
		u.Shelf.TypeCode = ShelfTypeCode(u.Shelf.TypeID)

		u.ID, err = insertUnit(ctx, tx, u)
		if err != nil {
			return nil, err
		}
		u.TypeName = u.Type.Name()
		saved = append(saved, u)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing topology: %w", err)
	}
	return saved, nil
}

// Clear removes every unit, shelf and endpoint.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := clearTx(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

func clearTx(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"units", "shelves", "endpoints"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { //nolint:gosec // fixed table names
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func insertEndpoint(ctx context.Context, tx *sql.Tx, ep Endpoint) (int64, error) {
	const query = `INSERT INTO endpoints (id, ip, port) VALUES (?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, nullID(ep.ID), ep.IP, ep.Port)
	if err != nil {
		return 0, fmt.Errorf("inserting endpoint %s: %w", ep.Addr(), err)
	}
	return res.LastInsertId()
}

func insertShelf(ctx context.Context, tx *sql.Tx, s Shelf) (int64, error) {
	const query = `INSERT INTO shelves (code, shelf_type_id) VALUES (?, ?)`
	res, err := tx.ExecContext(ctx, query, s.Code, s.TypeID)
	if err != nil {
		return 0, fmt.Errorf("inserting shelf %s: %w", s.Code, err)
	}
	return res.LastInsertId()
}

func insertUnit(ctx context.Context, tx *sql.Tx, u Unit) (int64, error) {
	const query = `INSERT INTO units (id, location, shelf_id, node_id, channel_id, node_type, endpoint_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query,
		nullID(u.ID), u.Location, u.Shelf.ID, u.NodeID, u.ChannelID, int(u.Type), u.Endpoint.ID)
	if err != nil {
		return 0, fmt.Errorf("inserting unit %s: %w", u.Location, err)
	}
	return res.LastInsertId()
}

// nullID lets SQLite assign the rowid when no id was supplied.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
