package ledger

import (
	"encoding/json"
	"time"
)

// Actors recorded in the from/to columns.
const (
	ActorPTL      = "PTL"
	ActorExternal = "EXTERNAL"
)

// DefaultPageSize is used by list calls given a non-positive limit.
const DefaultPageSize = 100

// Entry is one row of a live table or an archive.
type Entry struct {
	ID          int64           `json:"id"`
	SourceID    int64           `json:"source_id,omitempty"`
	ExternalID  string          `json:"external_id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Message     json.RawMessage `json:"message"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Retries     int             `json:"retries"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Query selects a page of entries, newest first.
type Query struct {
	Limit int
	Page  int

	// OnlyPending restricts pending-to-send listings to rows never marked
	// sent.
	OnlyPending bool
}

func (q Query) bounds() (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	return limit, page * limit
}
