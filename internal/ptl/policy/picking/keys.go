package picking

import (
	"context"

	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Keys understood by the picking policy.
const (
	KeyConfirm  = "V"
	KeyFunction = "F"
	KeyAdd      = "+"
	KeySub      = "-"
)

func (p *Policy) handleKey(ctx context.Context, _ topology.Units, payload any) (any, error) {
	var kp policy.KeyPress
	switch v := payload.(type) {
	case policy.KeyPress:
		kp = v
	case *policy.KeyPress:
		if v == nil {
			return nil, policy.ErrInvalidPayload
		}
		kp = *v
	default:
		return nil, policy.ErrInvalidPayload
	}

	idx := p.forUnit(kp.Unit.ID)
	if len(idx) == 0 {
		p.logDebug("key on idle unit", "unit", kp.Unit.Location, "key", kp.Key())
		return nil, nil
	}

	switch key := kp.Key(); key {
	case KeyConfirm:
		return p.confirmActive(ctx, idx)
	case KeyFunction:
		if !p.opts.EnableFunctionKey {
			return nil, nil
		}
		return nil, p.rotate(ctx, kp.Unit.ID, idx)
	case KeyAdd:
		if !p.opts.EnableAddKey {
			return nil, nil
		}
		return nil, p.adjust(ctx, kp.Unit.ID, idx, 1)
	case KeySub:
		if !p.opts.EnableSubKey {
			return nil, nil
		}
		return nil, p.adjust(ctx, kp.Unit.ID, idx, -1)
	default:
		p.logWarn("unhandled key", "unit", kp.Unit.Location, "key", key)
		return nil, nil
	}
}

// confirmActive removes the active movement of the unit and reports it to
// the external system in the background.
func (p *Policy) confirmActive(ctx context.Context, idx []int) (any, error) {
	active := p.activeIndex(idx)
	if active < 0 {
		active = idx[0]
	}
	m, err := p.del(ctx, Selector{ExternalID: p.movements[active].ExternalID}, ReasonConfirmed)
	p.confirmAsync(ctx, m)
	return m, err
}

// rotate makes the next movement of the unit active.
func (p *Policy) rotate(ctx context.Context, unitID int64, idx []int) error {
	pos := 0
	for n, i := range idx {
		if p.movements[i].Active {
			pos = n
			p.movements[i].Active = false
			break
		}
	}
	next := idx[(pos+1)%len(idx)]
	p.movements[next].Active = true
	return p.show(ctx, unitID, render(p.movements[next], len(idx)))
}

// adjust changes the active quantity by delta, never below zero.
func (p *Policy) adjust(ctx context.Context, unitID int64, idx []int, delta int) error {
	active := p.activeIndex(idx)
	if active < 0 {
		active = idx[0]
		p.movements[active].Active = true
	}
	m := &p.movements[active]
	m.Quantity = max(m.Quantity+delta, 0)
	return p.show(ctx, unitID, render(*m, len(idx)))
}
