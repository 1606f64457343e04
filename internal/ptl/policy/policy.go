package policy

import (
	"context"
	"fmt"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Action names accepted by Process.
const (
	ActionKeyPressed           = "key-pressed"
	ActionReloadMovements      = "reloadMovements"
	ActionGetMovements         = "getMovements"
	ActionGetPendingToSend     = "getMovementsPendingToSend"
	ActionGetPendingToSendArch = "getMovementsPendingToSendArch"
	ActionGetReceivedFromExt   = "getMovementsReceivedFromExternal"
	ActionGetMovement          = "getMovement"
	ActionAddMovement          = "addMovement"
	ActionDelMovement          = "delMovement"
	ActionSendToExternalSystem = "sendToExternalSystem"

	// ActionEndpointReady is raised by the orchestrator after a controller
	// connects and its displays are blanked.
	ActionEndpointReady = "endpointReady"
)

var knownActions = map[string]bool{
	ActionKeyPressed:           true,
	ActionReloadMovements:      true,
	ActionGetMovements:         true,
	ActionGetPendingToSend:     true,
	ActionGetPendingToSendArch: true,
	ActionGetReceivedFromExt:   true,
	ActionGetMovement:          true,
	ActionAddMovement:          true,
	ActionDelMovement:          true,
	ActionSendToExternalSystem: true,
	ActionEndpointReady:        true,
}

// Target selects where a command goes. A non-zero UnitID wins; otherwise the
// command goes to the controller EndpointID.
type Target struct {
	EndpointID int64 `json:"endpoint_id,omitempty"`
	UnitID     int64 `json:"unit_id,omitempty"`
}

// ToUnit targets a single unit.
func ToUnit(id int64) Target { return Target{UnitID: id} }

// ToEndpoint targets a controller.
func ToEndpoint(id int64) Target { return Target{EndpointID: id} }

// Sender routes commands to devices.
type Sender interface {
	Send(ctx context.Context, target Target, cmd protocol.Command) link.SendResult
}

// Policy is a control mode driven by device events and API requests.
type Policy interface {
	// Name returns the mode name the policy was built for.
	Name() string

	// Process runs action with payload against the current units.
	Process(ctx context.Context, units topology.Units, action string, payload any) (any, error)
}

// KeyPress is the payload of ActionKeyPressed.
type KeyPress struct {
	Unit  topology.Unit     `json:"unit"`
	Event protocol.KeyEvent `json:"event"`
}

// Key returns the first pressed key token.
func (k KeyPress) Key() string { return k.Event.FirstKey() }

// EndpointReady is the payload of ActionEndpointReady.
type EndpointReady struct {
	EndpointID int64 `json:"endpoint_id"`
}

// ListQuery is the payload of the ledger listing actions.
type ListQuery struct {
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	OnlyPending bool `json:"only_pending"`
}

// Handler implements one action.
type Handler func(ctx context.Context, units topology.Units, payload any) (any, error)

// Table maps action names to handlers.
type Table map[string]Handler

// Dispatch runs the handler for action.
//
// Returns:
//   - ErrUnknownAction if no policy defines action
//   - ErrUnsupportedAction if action is known but absent from t
func (t Table) Dispatch(ctx context.Context, units topology.Units, action string, payload any) (any, error) {
	h, ok := t[action]
	if !ok {
		if knownActions[action] {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return h(ctx, units, payload)
}

// IsKnownAction reports whether action is one of the defined action names.
func IsKnownAction(action string) bool { return knownActions[action] }

// SendError wraps a failed SendResult as ErrSendFailed.
func SendError(res link.SendResult) error {
	if res.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrSendFailed, res.Result, res.Message)
}
