package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/ptl-core/internal/infrastructure/database"
	_ "github.com/nerrad567/ptl-core/migrations"
)

type movement struct {
	ExternalID string `json:"externalId"`
	Location   string `json:"locationCode"`
	Quantity   int    `json:"quantity"`
}

// setupTestRepo opens a migrated database with a controllable clock.
func setupTestRepo(t *testing.T) (*SQLiteRepository, *time.Time) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "ledger.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewSQLiteRepository(db.DB)
	repo.now = func() time.Time { return clock }
	return repo, &clock
}

func countRows(t *testing.T, repo *SQLiteRepository, table string) int {
	t.Helper()
	var n int
	if err := repo.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestSaveReceived(t *testing.T) {
	repo, clock := setupTestRepo(t)
	ctx := context.Background()
	m := movement{ExternalID: "100", Location: "A-01", Quantity: 3}

	if err := repo.SaveReceived(ctx, "100", m); err != nil {
		t.Fatalf("SaveReceived() error = %v", err)
	}
	*clock = clock.Add(time.Minute)
	if err := repo.SaveReceived(ctx, "100", m); err != nil {
		t.Fatalf("second SaveReceived() error = %v", err)
	}

	entries, err := repo.ListReceived(ctx, Query{})
	if err != nil {
		t.Fatalf("ListReceived() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ListReceived() = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Retries != 1 || e.From != ActorExternal || e.To != ActorPTL {
		t.Errorf("entry = %+v", e)
	}
	if e.UpdatedAt == nil || !e.UpdatedAt.Equal(*clock) {
		t.Errorf("UpdatedAt = %v, want %v", e.UpdatedAt, *clock)
	}

	var got movement
	if err := json.Unmarshal(e.Message, &got); err != nil || got != m {
		t.Errorf("Message = %s (%v)", e.Message, err)
	}

	if n := countRows(t, repo, "msg_received_arch"); n != 1 {
		t.Errorf("archive rows = %d, want 1 redelivery snapshot", n)
	}

	if err := repo.SaveReceived(ctx, "", m); !errors.Is(err, ErrNoExternalID) {
		t.Errorf("SaveReceived(\"\") error = %v, want ErrNoExternalID", err)
	}
}

func TestDeleteReceived(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2"} {
		if err := repo.SaveReceived(ctx, id, movement{ExternalID: id}); err != nil {
			t.Fatalf("SaveReceived(%s) error = %v", id, err)
		}
	}

	if err := repo.DeleteReceived(ctx, "1", map[string]string{"status": "OK"}); err != nil {
		t.Fatalf("DeleteReceived() error = %v", err)
	}
	// Unknown ids are ignored.
	if err := repo.DeleteReceived(ctx, "404", nil); err != nil {
		t.Fatalf("DeleteReceived(unknown) error = %v", err)
	}

	left, err := repo.Received(ctx)
	if err != nil {
		t.Fatalf("Received() error = %v", err)
	}
	if len(left) != 1 || left[0].ExternalID != "2" {
		t.Errorf("Received() = %+v", left)
	}

	arch, err := repo.ListReceivedArchive(ctx, Query{Limit: 10})
	if err != nil {
		t.Fatalf("ListReceivedArchive() error = %v", err)
	}
	if len(arch) != 1 || arch[0].ExternalID != "1" || arch[0].ProcessedAt == nil {
		t.Fatalf("archive = %+v", arch)
	}
	if string(arch[0].Result) != `{"status":"OK"}` {
		t.Errorf("archived result = %s", arch[0].Result)
	}
}

func TestReceivedKeepsArrivalOrder(t *testing.T) {
	repo, clock := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"10", "11", "12"} {
		if err := repo.SaveReceived(ctx, id, movement{ExternalID: id}); err != nil {
			t.Fatalf("SaveReceived(%s) error = %v", id, err)
		}
		*clock = clock.Add(time.Second)
	}
	// A redelivery of the first moves it to the top of the listing only.
	if err := repo.SaveReceived(ctx, "10", movement{ExternalID: "10"}); err != nil {
		t.Fatalf("SaveReceived() error = %v", err)
	}

	all, err := repo.Received(ctx)
	if err != nil {
		t.Fatalf("Received() error = %v", err)
	}
	if len(all) != 3 || all[0].ExternalID != "10" || all[2].ExternalID != "12" {
		t.Errorf("Received() order = %v", ids(all))
	}

	page, err := repo.ListReceived(ctx, Query{Limit: 2})
	if err != nil {
		t.Fatalf("ListReceived() error = %v", err)
	}
	if got := ids(page); len(got) != 2 || got[0] != "10" || got[1] != "12" {
		t.Errorf("ListReceived() page 0 = %v, want [10 12]", got)
	}
	page, err = repo.ListReceived(ctx, Query{Limit: 2, Page: 1})
	if err != nil {
		t.Fatalf("ListReceived() error = %v", err)
	}
	if got := ids(page); len(got) != 1 || got[0] != "11" {
		t.Errorf("ListReceived() page 1 = %v, want [11]", got)
	}
}

func TestPendingLifecycle(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()
	m := movement{ExternalID: "200", Quantity: 1}
	timeout := map[string]string{"error": "timeout"}

	// Two connectivity failures: one live row with a retry, one snapshot.
	for range 2 {
		if err := repo.SavePendingError(ctx, "200", m, timeout); err != nil {
			t.Fatalf("SavePendingError() error = %v", err)
		}
	}
	pending, err := repo.ListPending(ctx, Query{OnlyPending: true})
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].Retries != 1 || pending[0].SentAt != nil {
		t.Fatalf("pending = %+v", pending)
	}
	if string(pending[0].Result) != `{"error":"timeout"}` {
		t.Errorf("pending result = %s", pending[0].Result)
	}

	// Delivery succeeds: row leaves the live table.
	if err := repo.SavePendingOK(ctx, "200", m, map[string]int{"status": 200}); err != nil {
		t.Fatalf("SavePendingOK() error = %v", err)
	}
	if n := countRows(t, repo, "msg_pending_to_send"); n != 0 {
		t.Errorf("live rows = %d, want 0", n)
	}

	arch, err := repo.ListPendingArchive(ctx, Query{})
	if err != nil {
		t.Fatalf("ListPendingArchive() error = %v", err)
	}
	if len(arch) != 2 {
		t.Fatalf("archive = %d rows, want 2", len(arch))
	}
	if arch[0].SentAt == nil || string(arch[0].Result) != `{"status":200}` || arch[0].SourceID == 0 {
		t.Errorf("delivered snapshot = %+v", arch[0])
	}
}

func TestSavePendingOKWithoutPendingRow(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SavePendingOK(ctx, "300", movement{ExternalID: "300"}, "ok"); err != nil {
		t.Fatalf("SavePendingOK() error = %v", err)
	}
	arch, err := repo.ListPendingArchive(ctx, Query{})
	if err != nil {
		t.Fatalf("ListPendingArchive() error = %v", err)
	}
	if len(arch) != 1 || arch[0].ExternalID != "300" || arch[0].SourceID != 0 || arch[0].Retries != 0 {
		t.Errorf("archive = %+v", arch)
	}
}

func TestSavePendingErrorNoRetry(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SavePendingError(ctx, "400", movement{ExternalID: "400"}, "refused"); err != nil {
		t.Fatalf("SavePendingError() error = %v", err)
	}
	if err := repo.SavePendingErrorNoRetry(ctx, "401", movement{ExternalID: "401"}, "rejected"); err != nil {
		t.Fatalf("SavePendingErrorNoRetry() error = %v", err)
	}
	if err := repo.SavePendingErrorNoRetry(ctx, "400", movement{ExternalID: "400"}, "rejected"); err != nil {
		t.Fatalf("SavePendingErrorNoRetry(existing) error = %v", err)
	}

	all, err := repo.ListPending(ctx, Query{})
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListPending() = %d rows, want 2", len(all))
	}
	for _, e := range all {
		if e.SentAt == nil {
			t.Errorf("entry %s not marked sent", e.ExternalID)
		}
	}

	only, err := repo.ListPending(ctx, Query{OnlyPending: true})
	if err != nil {
		t.Fatalf("ListPending(only) error = %v", err)
	}
	if len(only) != 0 {
		t.Errorf("ListPending(only) = %v, want none", ids(only))
	}
}

func TestQueryBounds(t *testing.T) {
	tests := []struct {
		q          Query
		wantLimit  int
		wantOffset int
	}{
		{Query{}, DefaultPageSize, 0},
		{Query{Limit: 10, Page: 3}, 10, 30},
		{Query{Limit: -1, Page: -2}, DefaultPageSize, 0},
	}
	for _, tt := range tests {
		limit, offset := tt.q.bounds()
		if limit != tt.wantLimit || offset != tt.wantOffset {
			t.Errorf("%+v.bounds() = %d, %d", tt.q, limit, offset)
		}
	}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ExternalID)
	}
	return out
}
