package orchestrator

import (
	"context"
	"sort"

	"github.com/nerrad567/ptl-core/internal/topology"
)

// Process runs a policy action on the loop, against the current units.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the loop
//   - action: One of the policy action names
//   - payload: The action's payload
//
// Returns:
//   - any: The action's result
//   - error: ErrNoPolicy, a loop error, or the policy's error
func (o *Orchestrator) Process(ctx context.Context, action string, payload any) (any, error) {
	var (
		out  any
		perr error
	)
	err := o.do(ctx, func(ctx context.Context) {
		if o.policy == nil {
			perr = ErrNoPolicy
			return
		}
		out, perr = o.policy.Process(ctx, o.units, action, payload)
		o.observePolicy(action, perr)
	})
	if err != nil {
		return nil, err
	}
	return out, perr
}

// PolicyName returns the active policy's name, or "" when none is set.
func (o *Orchestrator) PolicyName() string {
	if o.policy == nil {
		return ""
	}
	return o.policy.Name()
}

// Units returns a copy of the unit registry.
func (o *Orchestrator) Units(ctx context.Context) (topology.Units, error) {
	var out topology.Units
	err := o.do(ctx, func(context.Context) {
		out = append(topology.Units(nil), o.units...)
	})
	return out, err
}

// UnitByLocation looks up a unit by its location code.
func (o *Orchestrator) UnitByLocation(ctx context.Context, location string) (topology.Unit, bool, error) {
	var (
		u  topology.Unit
		ok bool
	)
	err := o.do(ctx, func(context.Context) { u, ok = o.units.ByLocation(location) })
	return u, ok, err
}

// Zone returns the zone unit, if one is configured.
func (o *Orchestrator) Zone(ctx context.Context) (topology.Unit, bool, error) {
	var (
		u  topology.Unit
		ok bool
	)
	err := o.do(ctx, func(context.Context) { u, ok = o.units.Zone() })
	return u, ok, err
}

// Endpoints returns every controller with its link statistics, ordered by id.
func (o *Orchestrator) Endpoints(ctx context.Context) ([]EndpointStatus, error) {
	var out []EndpointStatus
	err := o.do(ctx, func(context.Context) { out = o.endpointStatus() })
	return out, err
}

func (o *Orchestrator) endpointStatus() []EndpointStatus {
	counts := make(map[int64]int)
	for _, u := range o.units {
		counts[u.Endpoint.ID]++
	}
	out := make([]EndpointStatus, 0, len(o.endpoints))
	for id, ep := range o.endpoints {
		st := EndpointStatus{Endpoint: ep, Units: counts[id]}
		if l, ok := o.linksByAddr[ep.Addr()]; ok {
			st.Stats = l.Stats()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint.ID < out[j].Endpoint.ID })
	return out
}

// SentLog returns a copy of the sent log, oldest first.
func (o *Orchestrator) SentLog(ctx context.Context) ([]SentRecord, error) {
	var out []SentRecord
	err := o.do(ctx, func(context.Context) { out = o.sent.snapshot() })
	return out, err
}

// ReceivedLog returns a copy of the received log, oldest first.
func (o *Orchestrator) ReceivedLog(ctx context.Context) ([]ReceivedRecord, error) {
	var out []ReceivedRecord
	err := o.do(ctx, func(context.Context) { out = o.received.snapshot() })
	return out, err
}

// PendingLog returns a copy of the displays still waiting for an ack.
func (o *Orchestrator) PendingLog(ctx context.Context) ([]SentRecord, error) {
	var out []SentRecord
	err := o.do(ctx, func(context.Context) { out = o.pending.snapshot() })
	return out, err
}

// AlarmLog returns a copy of the alarm log, oldest first.
func (o *Orchestrator) AlarmLog(ctx context.Context) ([]ReceivedRecord, error) {
	var out []ReceivedRecord
	err := o.do(ctx, func(context.Context) { out = o.alarms.snapshot() })
	return out, err
}

// Status summarises the registry and logs.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := o.do(ctx, func(context.Context) { st = o.status() })
	return st, err
}

func (o *Orchestrator) status() Status {
	st := Status{
		Policy:     o.PolicyName(),
		Units:      len(o.units),
		Endpoints:  len(o.endpoints),
		Sent:       o.sent.len(),
		Received:   o.received.len(),
		PendingAck: o.pending.len(),
		Alarms:     o.alarms.len(),
	}
	for _, l := range o.linksByAddr {
		if l.IsConnected() {
			st.EndpointsConnected++
		}
	}
	return st
}
