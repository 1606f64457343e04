package picking

import (
	"strconv"
	"strings"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Movement is one pick the external system asked an operator to make.
type Movement struct {
	ID           int64         `json:"id"`
	ExternalID   int64         `json:"externalId"`
	Unit         topology.Unit `json:"ptl"`
	UserID       int64         `json:"userId,omitempty"`
	Color        int           `json:"color"`
	LocationCode string        `json:"locationCode"`
	Display      string        `json:"display,omitempty"`
	Quantity     int           `json:"quantity"`
	Active       bool          `json:"active"`
}

// Key returns the ledger key of the movement.
func (m Movement) Key() string {
	return strconv.FormatInt(m.ExternalID, 10)
}

// Text is what the unit shows: the display text if set, else the quantity.
func (m Movement) Text() string {
	if strings.TrimSpace(m.Display) == "" {
		return strconv.Itoa(m.Quantity)
	}
	return m.Display
}

// Selector picks a movement by external id or, when that is zero, by id.
type Selector struct {
	ID         int64 `json:"id,omitempty"`
	ExternalID int64 `json:"externalId,omitempty"`
}

func (s Selector) matches(m Movement) bool {
	if s.ExternalID != 0 {
		return m.ExternalID == s.ExternalID
	}
	return m.ID == s.ID
}

// Deletion is the payload of the delMovement action.
type Deletion struct {
	Selector
	Reason string `json:"reason"`
}

// deletionResult is archived with a removed movement.
type deletionResult struct {
	Reason   string   `json:"reason"`
	Movement Movement `json:"movement"`
}

// Reasons recorded when a movement leaves the queue.
const (
	ReasonConfirmed = "Confirmed in PTL by user"
	ReasonDeleted   = "Deleted movement by external system"
)

// render builds the display for the active movement of a unit. Units with
// more than one queued movement blink.
func render(active Movement, queued int) protocol.Display {
	d := protocol.NewDisplay(active.Text(), protocol.ColorLED(active.Color))
	if queued > 1 {
		d.Blink = protocol.Blink500
	}
	return d
}
