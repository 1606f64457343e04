package orchestrator

import (
	"context"
	"errors"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// attach wires a link's callbacks to the loop.
func (o *Orchestrator) attach(l Link) {
	l.SetOnMessage(func(frame []byte, msg protocol.Message, key *protocol.KeyEvent) {
		data := append([]byte(nil), frame...)
		o.post(func(ctx context.Context) { o.receive(ctx, l, data, msg, key) })
	})
	l.SetOnReady(func(code int) {
		if code != link.ReadyOpened {
			return
		}
		o.post(func(ctx context.Context) { o.onLinkReady(ctx, l) })
	})
}

// current reports whether l is still the registered link for its address.
// Events from links replaced by a reload are dropped.
func (o *Orchestrator) current(l Link) bool {
	return o.linksByAddr[l.Addr()] == l
}

// receive records an inbound telegram, matches acknowledgements and hands
// key presses to the policy.
func (o *Orchestrator) receive(ctx context.Context, l Link, frame []byte, msg protocol.Message, key *protocol.KeyEvent) {
	if !o.current(l) {
		return
	}
	endpointID := l.ID()
	rec := ReceivedRecord{
		Time:       o.now(),
		EndpointID: endpointID,
		Frame:      string(frame),
		Message:    msg,
	}
	o.received.push(rec)
	if msg.Type == protocol.TypeAlarm {
		o.alarms.push(rec)
		o.logWarn("device alarm", "endpoint", endpointID, "node", msg.NodeID, "code", msg.Code,
			"message", msg.CodeMessage)
	}
	o.observeReceive(msg.Type)
	o.publish(rec)

	if msg.IsAckOK() {
		o.ack(endpointID, msg.MessageID)
	}

	if key == nil {
		return
	}
	unit, ok := o.units.ByAddress(key.NodeID, key.ChannelID, endpointID)
	if !ok {
		o.logWarn("key press from unknown unit", "endpoint", endpointID, "node", key.NodeID,
			"channel", key.ChannelID)
		return
	}
	if o.policy == nil {
		o.logWarn("key press without control policy", "location", unit.Location)
		return
	}

	press := policy.KeyPress{Unit: unit, Event: *key}
	_, err := o.policy.Process(ctx, o.units, policy.ActionKeyPressed, press)
	o.observePolicy(policy.ActionKeyPressed, err)
	if err != nil {
		o.logError("key press handling failed", "location", unit.Location, "key", press.Key(), "error", err)
	}
}

// onLinkReady opens a session on a freshly connected controller, blanks
// every display behind it and lets the policy redraw its units there.
func (o *Orchestrator) onLinkReady(ctx context.Context, l Link) {
	if !o.current(l) {
		return
	}
	o.logInfo("controller connected", "endpoint", l.ID(), "addr", l.Addr())
	o.setLinkConnected(l, true)

	target := policy.ToEndpoint(l.ID())
	if res := o.send(ctx, target, protocol.Command{Type: protocol.CmdOpenSession}); !res.OK() {
		o.logError("open session failed", "endpoint", l.ID(), "result", res.Result, "message", res.Message)
		return
	}
	blank := protocol.Command{Type: protocol.CmdBroadcast, Display: protocol.BlankDisplay()}
	if res := o.send(ctx, target, blank); !res.OK() {
		o.logError("blanking displays failed", "endpoint", l.ID(), "result", res.Result, "message", res.Message)
		return
	}

	if o.policy == nil {
		return
	}
	_, err := o.policy.Process(ctx, o.units, policy.ActionEndpointReady, policy.EndpointReady{EndpointID: l.ID()})
	if errors.Is(err, policy.ErrUnsupportedAction) {
		return
	}
	o.observePolicy(policy.ActionEndpointReady, err)
	if err != nil {
		o.logError("redrawing displays failed", "endpoint", l.ID(), "error", err)
	}
}
