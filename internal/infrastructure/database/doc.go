// Package database provides SQLite connectivity for PTL Core.
//
// The database holds the unit topology (endpoints, shelves, units) and the
// movement ledger exchanged with the external order system. Schema changes
// are SQL files named YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql, embedded by the migrations package.
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Tests open database.MemoryPath for a private in-memory database.
package database
