package mode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/ptl-core/internal/ledger"
	"github.com/nerrad567/ptl-core/internal/ptl/external"
	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/game"
	"github.com/nerrad567/ptl-core/internal/ptl/policy/picking"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

type nopSender struct{}

func (nopSender) Send(context.Context, policy.Target, protocol.Command) link.SendResult {
	return link.SendResult{Result: link.ResultOK}
}

type nopConfirmer struct{}

func (nopConfirmer) Confirm(context.Context, external.Confirmation) (external.Result, error) {
	return external.Result{}, nil
}

type nopLedger struct{ ledger.Repository }

func TestNew(t *testing.T) {
	deps := Deps{Sender: nopSender{}, Ledger: nopLedger{}, Confirmer: nopConfirmer{}}

	for _, name := range Names() {
		p, err := New(name, deps)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}

	p, err := New(picking.Name, deps)
	require.NoError(t, err)
	assert.IsType(t, &picking.Policy{}, p)

	p, err = New(game.Name, Deps{Sender: nopSender{}})
	require.NoError(t, err)
	assert.IsType(t, &game.Policy{}, p)
}

func TestNewErrors(t *testing.T) {
	_, err := New("sorting", Deps{Sender: nopSender{}})
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = New(picking.Name, Deps{Sender: nopSender{}})
	assert.ErrorIs(t, err, picking.ErrMissingDependency)

	_, err = New(game.Name, Deps{})
	assert.ErrorIs(t, err, game.ErrMissingDependency)
}
