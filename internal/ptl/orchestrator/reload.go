package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// TopologySource loads the configured units, typically the topology repository.
type TopologySource interface {
	Load(ctx context.Context) (topology.Units, error)
}

// ReloadFrom loads the topology from src, applies it with Reload and asks the
// policy to restore its persisted state. Policies without persisted state
// answer ErrUnsupportedAction, which is not an error here.
//
// Returns:
//   - topology.Units: The units now configured
//   - error: Load, Reload or restore failure
func (o *Orchestrator) ReloadFrom(ctx context.Context, src TopologySource) (topology.Units, error) {
	units, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading topology: %w", err)
	}
	if err := o.Reload(ctx, units); err != nil {
		return nil, err
	}
	if _, err := o.Process(ctx, policy.ActionReloadMovements, nil); err != nil &&
		!errors.Is(err, policy.ErrUnsupportedAction) && !errors.Is(err, ErrNoPolicy) {
		return units, fmt.Errorf("restoring policy state: %w", err)
	}
	return units, nil
}

// Reload replaces the unit registry and the controller links.
//
// Every current link is discarded and closed; one link is then created per
// distinct ip:port among units and started. Logs are kept.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the loop
//   - units: The full new topology
//
// Returns:
//   - error: ErrNotStarted, ErrStopped or the context error
func (o *Orchestrator) Reload(ctx context.Context, units topology.Units) error {
	units = append(topology.Units(nil), units...)
	return o.do(ctx, func(context.Context) { o.reload(units) })
}

func (o *Orchestrator) reload(units topology.Units) {
	old := o.linksByAddr
	o.linksByAddr = make(map[string]Link)
	o.endpoints = make(map[int64]topology.Endpoint)
	o.units = nil

	// Close blocks until the link's read goroutine exits, and that goroutine
	// may be posting to this loop.
	for _, l := range old {
		o.setLinkConnected(l, false)
		go l.Close() //nolint:errcheck // replaced link, result unused
	}

	for _, ep := range units.Endpoints() {
		addr := ep.Addr()
		if _, ok := o.linksByAddr[addr]; ok {
			continue
		}
		l := o.opts.NewLink(link.Config{
			ID:             ep.ID,
			Host:           ep.IP,
			Port:           ep.Port,
			ReconnectDelay: o.opts.ReconnectDelay,
			ConnectTimeout: o.opts.ConnectTimeout,
			WriteTimeout:   o.opts.WriteTimeout,
		})
		o.attach(l)
		o.linksByAddr[addr] = l
		o.endpoints[ep.ID] = ep
		l.Start(o.ctx)
	}

	// Units on a deduplicated endpoint row are re-pointed at the id that owns
	// the link, so ByAddress lookups with the link id succeed.
	byAddr := make(map[string]topology.Endpoint, len(o.endpoints))
	for _, ep := range o.endpoints {
		byAddr[ep.Addr()] = ep
	}
	o.units = make(topology.Units, 0, len(units))
	for _, u := range units {
		if ep, ok := byAddr[u.Endpoint.Addr()]; ok {
			u.Endpoint = ep
		}
		o.units = append(o.units, u)
	}

	o.logInfo("configuration reloaded", "units", len(o.units), "endpoints", len(o.endpoints))
	o.updateGauges()
}
