// Package mode builds the control policy selected by configuration.
package mode

import (
	"errors"
	"fmt"

	"github.com/nerrad567/ptl-core/internal/ledger"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/game"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/picking"
)

// ErrUnknownMode is returned for a mode name no policy implements.
var ErrUnknownMode = errors.New("mode: unknown mode")

// Logger is satisfied by the structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Deps is everything any mode may need. Each mode checks its own subset.
type Deps struct {
	Sender    policy.Sender
	Ledger    ledger.Repository
	Confirmer picking.Confirmer
	Picking   picking.Options
	Recorder  picking.Recorder
	Logger    Logger
}

// Names lists the available modes.
func Names() []string { return []string{picking.Name, game.Name} }

// New builds the policy called name.
//
// Parameters:
//   - name: "picking" or "game"
//   - deps: Collaborators; the picking mode needs Ledger and Confirmer
//
// Returns:
//   - policy.Policy: The policy in its initial state
//   - error: ErrUnknownMode, or the policy's missing-dependency error
func New(name string, deps Deps) (policy.Policy, error) {
	switch name {
	case picking.Name:
		p, err := picking.New(picking.Deps{
			Sender:    deps.Sender,
			Ledger:    deps.Ledger,
			Confirmer: deps.Confirmer,
			Options:   deps.Picking,
			Recorder:  deps.Recorder,
			Logger:    deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building %s mode: %w", name, err)
		}
		return p, nil
	case game.Name:
		g, err := game.New(game.Deps{Sender: deps.Sender, Logger: deps.Logger})
		if err != nil {
			return nil, fmt.Errorf("building %s mode: %w", name, err)
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}
