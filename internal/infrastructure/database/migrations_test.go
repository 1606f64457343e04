package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
)

func withMigrations(t *testing.T, files fs.FS) {
	t.Helper()
	oldFS, oldDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = files, "."
	t.Cleanup(func() { MigrationsFS, MigrationsDir = oldFS, oldDir })
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_endpoints.up.sql":   {Data: []byte("CREATE TABLE endpoints (id INTEGER PRIMARY KEY, ip TEXT);")},
		"20260301_090000_endpoints.down.sql": {Data: []byte("DROP TABLE endpoints;")},
		"20260301_091500_units.up.sql":       {Data: []byte("CREATE TABLE units (id INTEGER PRIMARY KEY);")},
		"20260301_091500_units.down.sql":     {Data: []byte("DROP TABLE units;")},
		"README.md":                          {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	withMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"endpoints", "units"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after Migrate", table)
		}
	}

	// A second run is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d; want 2, 0", len(applied), len(pending))
	}
	if applied[0].Version != "20260301_090000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied[0] = %+v", applied[0])
	}
}

func TestMigrateStopsAtFailure(t *testing.T) {
	files := testMigrations()
	files["20260301_091500_units.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE broken (")}
	withMigrations(t, files)
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err == nil {
		t.Fatal("Migrate() expected error")
	}
	applied, pending, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "units" {
		t.Errorf("applied = %+v, pending = %+v", applied, pending)
	}
}

func TestMigrateDown(t *testing.T) {
	withMigrations(t, testMigrations())
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "units") {
		t.Error("units still exists after MigrateDown")
	}
	if !tableExists(t, db, "endpoints") {
		t.Error("endpoints removed by MigrateDown")
	}
}

func TestMigrateWithoutFiles(t *testing.T) {
	withMigrations(t, nil)
	db := openTestDB(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  string
		name     string
		up       bool
		ok       bool
	}{
		{"20260301_090000_topology.up.sql", "20260301_090000", "topology", true, true},
		{"20260301_091500_movement_ledger.down.sql", "20260301_091500", "movement_ledger", false, true},
		{"20260301_090000.up.sql", "20260301_090000", "20260301_090000", true, true},
		{"20260301_090000_topology.sql", "", "", false, false},
		{"20260301_090000_topology.up.txt", "", "", false, false},
		{"topology.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if version != tt.version || name != tt.name || up != tt.up || ok != tt.ok {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, %v; want %q, %q, %v, %v",
					tt.filename, version, name, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}
