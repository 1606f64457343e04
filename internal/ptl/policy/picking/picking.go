package picking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/ptl-core/internal/ledger"
	"github.com/nerrad567/ptl-core/internal/ptl/external"
	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Name is the mode name of this policy.
const Name = "picking"

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("picking: missing dependency")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Confirmer reports completed movements to the external system.
// *external.Client satisfies it.
type Confirmer interface {
	Confirm(ctx context.Context, conf external.Confirmation) (external.Result, error)
}

// Recorder stores one time-series point per confirmation attempt.
// *influxdb.Client satisfies it.
type Recorder interface {
	WriteConfirmation(location string, externalID int64, quantity int, outcome, code string, took time.Duration)
}

// Options toggles the optional keys.
type Options struct {
	// EnableAddKey lets '+' raise the active quantity.
	EnableAddKey bool

	// EnableSubKey lets '-' lower the active quantity.
	EnableSubKey bool

	// EnableFunctionKey lets 'F' switch between the movements of a unit.
	EnableFunctionKey bool
}

// Deps holds the collaborators of the policy.
type Deps struct {
	Sender    policy.Sender
	Ledger    ledger.Repository
	Confirmer Confirmer
	Options   Options
	Logger    Logger

	// Recorder is optional.
	Recorder Recorder
}

// Policy mirrors movements from the external system onto the units and
// confirms them when the operator presses V.
//
// Thread Safety: Process must only be called from the orchestrator loop.
// Confirm, Redeliver and Wait are safe from any goroutine.
type Policy struct {
	sender    policy.Sender
	ledger    ledger.Repository
	confirmer Confirmer
	opts      Options
	logger    Logger
	recorder  Recorder

	// movements is the live queue in arrival order.
	movements []Movement
	table     policy.Table

	inflight sync.WaitGroup
}

// New creates the picking policy with an empty queue. Persisted movements are
// restored by the reloadMovements action.
func New(deps Deps) (*Policy, error) {
	if deps.Sender == nil || deps.Ledger == nil || deps.Confirmer == nil {
		return nil, ErrMissingDependency
	}
	p := &Policy{
		sender:    deps.Sender,
		ledger:    deps.Ledger,
		confirmer: deps.Confirmer,
		opts:      deps.Options,
		logger:    deps.Logger,
		recorder:  deps.Recorder,
	}
	p.table = policy.Table{
		policy.ActionKeyPressed:           p.handleKey,
		policy.ActionReloadMovements:      p.handleReload,
		policy.ActionGetMovements:         p.handleList,
		policy.ActionGetMovement:          p.handleGet,
		policy.ActionAddMovement:          p.handleAdd,
		policy.ActionDelMovement:          p.handleDel,
		policy.ActionGetPendingToSend:     p.handlePending,
		policy.ActionGetPendingToSendArch: p.handlePendingArchive,
		policy.ActionGetReceivedFromExt:   p.handleReceived,
		policy.ActionSendToExternalSystem: p.handleSend,
		policy.ActionEndpointReady:        p.handleEndpointReady,
	}
	return p, nil
}

// Name implements policy.Policy.
func (p *Policy) Name() string { return Name }

// Process implements policy.Policy.
func (p *Policy) Process(ctx context.Context, units topology.Units, action string, payload any) (any, error) {
	return p.table.Dispatch(ctx, units, action, payload)
}

// Wait blocks until every confirmation started by a V key has finished.
func (p *Policy) Wait() {
	p.inflight.Wait()
}

func (p *Policy) handleAdd(ctx context.Context, units topology.Units, payload any) (any, error) {
	m, err := movementPayload(payload)
	if err != nil {
		return nil, err
	}
	return p.add(ctx, units, m, true)
}

func (p *Policy) handleDel(ctx context.Context, _ topology.Units, payload any) (any, error) {
	var d Deletion
	switch v := payload.(type) {
	case Deletion:
		d = v
	case *Deletion:
		d = *v
	case Selector:
		d = Deletion{Selector: v}
	default:
		return nil, fmt.Errorf("%w: %T for %s", policy.ErrInvalidPayload, payload, policy.ActionDelMovement)
	}
	if d.Reason == "" {
		d.Reason = ReasonDeleted
	}
	return p.del(ctx, d.Selector, d.Reason)
}

func (p *Policy) handleList(context.Context, topology.Units, any) (any, error) {
	return append([]Movement{}, p.movements...), nil
}

func (p *Policy) handleGet(_ context.Context, _ topology.Units, payload any) (any, error) {
	var sel Selector
	switch v := payload.(type) {
	case Selector:
		sel = v
	case int64:
		sel = Selector{ID: v}
	default:
		return nil, fmt.Errorf("%w: %T for %s", policy.ErrInvalidPayload, payload, policy.ActionGetMovement)
	}
	i := p.find(sel)
	if i < 0 {
		return nil, fmt.Errorf("%w: movement %d", policy.ErrNotFound, sel.ID+sel.ExternalID)
	}
	return p.movements[i], nil
}

func (p *Policy) handleReload(ctx context.Context, units topology.Units, _ any) (any, error) {
	entries, err := p.ledger.Received(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading received movements: %w", err)
	}
	p.logInfo("restoring movements", "count", len(entries))

	loaded := 0
	var touched []int64
	for _, e := range entries {
		var m Movement
		if err := json.Unmarshal(e.Message, &m); err != nil {
			p.logError("skipping unreadable movement", "external_id", e.ExternalID, "error", err)
			continue
		}
		if p.find(Selector{ExternalID: m.ExternalID}) >= 0 {
			p.logDebug("movement already queued", "external_id", m.ExternalID)
			continue
		}
		queued, err := p.queue(ctx, units, m, false)
		if err != nil {
			p.logError("restoring movement failed", "external_id", e.ExternalID, "error", err)
			continue
		}
		if !slices.Contains(touched, queued.Unit.ID) {
			touched = append(touched, queued.Unit.ID)
		}
		loaded++
	}

	// Units on a controller that is still connecting are redrawn by
	// endpointReady once it opens.
	for _, id := range touched {
		_ = p.refresh(ctx, id)
	}
	return loaded, nil
}

// handleEndpointReady redraws every unit of the endpoint that has queued
// movements. The controller has just blanked all of its displays.
func (p *Policy) handleEndpointReady(ctx context.Context, units topology.Units, payload any) (any, error) {
	var ready policy.EndpointReady
	switch v := payload.(type) {
	case policy.EndpointReady:
		ready = v
	case *policy.EndpointReady:
		if v == nil {
			return nil, fmt.Errorf("%w: nil endpoint", policy.ErrInvalidPayload)
		}
		ready = *v
	case int64:
		ready = policy.EndpointReady{EndpointID: v}
	default:
		return nil, fmt.Errorf("%w: %T for %s", policy.ErrInvalidPayload, payload, policy.ActionEndpointReady)
	}

	var (
		redrawn []int64
		errs    []error
	)
	for _, m := range p.movements {
		if slices.Contains(redrawn, m.Unit.ID) {
			continue
		}
		unit, ok := units.ByID(m.Unit.ID)
		if !ok || unit.Endpoint.ID != ready.EndpointID {
			continue
		}
		redrawn = append(redrawn, unit.ID)
		errs = append(errs, p.refresh(ctx, unit.ID))
	}
	if len(redrawn) > 0 {
		p.logInfo("displays redrawn", "endpoint", ready.EndpointID, "units", len(redrawn))
	}
	return len(redrawn), errors.Join(errs...)
}

func (p *Policy) handlePending(ctx context.Context, _ topology.Units, payload any) (any, error) {
	return p.ledger.ListPending(ctx, ledgerQuery(payload))
}

func (p *Policy) handlePendingArchive(ctx context.Context, _ topology.Units, payload any) (any, error) {
	return p.ledger.ListPendingArchive(ctx, ledgerQuery(payload))
}

func (p *Policy) handleReceived(ctx context.Context, _ topology.Units, payload any) (any, error) {
	return p.ledger.ListReceived(ctx, ledgerQuery(payload))
}

func (p *Policy) handleSend(ctx context.Context, _ topology.Units, payload any) (any, error) {
	m, err := movementPayload(payload)
	if err != nil {
		return nil, err
	}
	p.confirmAsync(ctx, m)
	return m, nil
}

// add queues m and renders its unit.
func (p *Policy) add(ctx context.Context, units topology.Units, m Movement, persist bool) (Movement, error) {
	m, err := p.queue(ctx, units, m, persist)
	if err != nil {
		return m, err
	}
	err = p.refresh(ctx, m.Unit.ID)
	if i := p.find(Selector{ExternalID: m.ExternalID}); i >= 0 {
		m = p.movements[i]
	}
	return m, err
}

// queue appends m to the live queue without touching the display.
//
// The unit is resolved from the location code, falling back to the unit id
// carried by m, so restored movements follow a changed topology. When persist
// is set the movement is first written to the received ledger.
func (p *Policy) queue(ctx context.Context, units topology.Units, m Movement, persist bool) (Movement, error) {
	if p.find(Selector{ExternalID: m.ExternalID}) >= 0 {
		return m, fmt.Errorf("%w: externalId %d", policy.ErrDuplicate, m.ExternalID)
	}
	unit, ok := units.ByLocation(m.LocationCode)
	if !ok && m.Unit.ID != 0 {
		unit, ok = units.ByID(m.Unit.ID)
	}
	if !ok {
		return m, fmt.Errorf("%w: location %q", policy.ErrNotFound, m.LocationCode)
	}
	m.Unit = unit
	m.LocationCode = unit.Location
	if m.ID == 0 {
		m.ID = m.ExternalID
	}
	m.Active = false

	if persist {
		if err := p.ledger.SaveReceived(ctx, m.Key(), m); err != nil {
			return m, fmt.Errorf("saving movement %s: %w", m.Key(), err)
		}
	}
	p.movements = append(p.movements, m)
	p.logInfo("movement queued", "external_id", m.ExternalID, "location", unit.Location, "quantity", m.Quantity)
	return m, nil
}

// del removes the selected movement, archives it and renders its unit.
func (p *Policy) del(ctx context.Context, sel Selector, reason string) (Movement, error) {
	i := p.find(sel)
	if i < 0 {
		return Movement{}, fmt.Errorf("%w: movement id %d externalId %d", policy.ErrNotFound, sel.ID, sel.ExternalID)
	}
	m := p.movements[i]
	p.movements = append(p.movements[:i], p.movements[i+1:]...)
	p.logInfo("movement removed", "external_id", m.ExternalID, "location", m.Unit.Location, "reason", reason)

	ledgerErr := p.ledger.DeleteReceived(ctx, m.Key(), deletionResult{Reason: reason, Movement: m})
	if ledgerErr != nil {
		ledgerErr = fmt.Errorf("archiving movement %s: %w", m.Key(), ledgerErr)
		p.logError("archiving movement failed", "external_id", m.ExternalID, "error", ledgerErr)
	}
	return m, errors.Join(ledgerErr, p.refresh(ctx, m.Unit.ID))
}

// refresh makes sure exactly one queued movement of the unit is active and
// shows it, or blanks the unit when nothing is queued.
func (p *Policy) refresh(ctx context.Context, unitID int64) error {
	idx := p.forUnit(unitID)
	if len(idx) == 0 {
		return p.show(ctx, unitID, protocol.BlankDisplay())
	}
	active := p.activeIndex(idx)
	if active < 0 {
		active = idx[0]
		p.movements[active].Active = true
	}
	return p.show(ctx, unitID, render(p.movements[active], len(idx)))
}

func (p *Policy) show(ctx context.Context, unitID int64, d protocol.Display) error {
	res := p.sender.Send(ctx, policy.ToUnit(unitID), protocol.DisplayCommand(d))
	if err := policy.SendError(res); err != nil {
		if res.Result == link.ResultNotSent {
			p.logWarn("display deferred until the controller connects", "unit", unitID, "message", res.Message)
		} else {
			p.logError("display failed", "unit", unitID, "result", res.Result, "message", res.Message)
		}
		return err
	}
	return nil
}

func (p *Policy) find(sel Selector) int {
	for i, m := range p.movements {
		if sel.matches(m) {
			return i
		}
	}
	return -1
}

// forUnit returns the queue indexes of the unit's movements, in order.
func (p *Policy) forUnit(unitID int64) []int {
	var idx []int
	for i, m := range p.movements {
		if m.Unit.ID == unitID {
			idx = append(idx, i)
		}
	}
	return idx
}

func (p *Policy) activeIndex(idx []int) int {
	for _, i := range idx {
		if p.movements[i].Active {
			return i
		}
	}
	return -1
}

func movementPayload(payload any) (Movement, error) {
	switch v := payload.(type) {
	case Movement:
		return v, nil
	case *Movement:
		return *v, nil
	default:
		return Movement{}, fmt.Errorf("%w: %T is not a movement", policy.ErrInvalidPayload, payload)
	}
}

func ledgerQuery(payload any) ledger.Query {
	switch v := payload.(type) {
	case policy.ListQuery:
		return ledger.Query{Limit: v.Limit, Page: v.Page, OnlyPending: v.OnlyPending}
	case *policy.ListQuery:
		return ledger.Query{Limit: v.Limit, Page: v.Page, OnlyPending: v.OnlyPending}
	default:
		return ledger.Query{}
	}
}

func (p *Policy) logDebug(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, kv...)
	}
}

func (p *Policy) logInfo(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Info(msg, kv...)
	}
}

func (p *Policy) logWarn(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, kv...)
	}
}

func (p *Policy) logError(msg string, kv ...any) {
	if p.logger != nil {
		p.logger.Error(msg, kv...)
	}
}
