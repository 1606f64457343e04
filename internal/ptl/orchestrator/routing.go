package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

const (
	msgTargetNotFound = "PTL or DPI not found"
	msgNotImplemented = "message.type not implemented"
)

// Send encodes cmd and writes it to the controller behind target.
//
// The unit id wins when both ids are set; the unit's endpoint then selects
// the link. Successful writes are appended to the sent log, and ack-seeking
// displays also to the pending log, replacing any older pending display for
// the same unit.
//
// Parameters:
//   - ctx: Context for cancellation while waiting for the loop
//   - target: Unit or endpoint to address
//   - cmd: The command to encode
//
// Returns:
//   - link.SendResult: NOT_SENT for an unknown target, invalid fields or an
//     unknown command type; otherwise the link's result
func (o *Orchestrator) Send(ctx context.Context, target policy.Target, cmd protocol.Command) link.SendResult {
	var res link.SendResult
	if err := o.do(ctx, func(ctx context.Context) { res = o.send(ctx, target, cmd) }); err != nil {
		return link.SendResult{Result: link.ResultNotSent, Message: err.Error()}
	}
	return res
}

// Resend writes previously encoded bytes again, routed like Send. The bytes
// are not re-encoded.
func (o *Orchestrator) Resend(ctx context.Context, target policy.Target, typ protocol.CommandType, raw []byte) link.SendResult {
	var res link.SendResult
	if err := o.do(ctx, func(ctx context.Context) { res = o.resend(ctx, target, typ, raw) }); err != nil {
		return link.SendResult{Result: link.ResultNotSent, Message: err.Error()}
	}
	return res
}

// resolve finds the link for target and, for a unit target, the unit.
func (o *Orchestrator) resolve(target policy.Target) (Link, *topology.Unit, bool) {
	if target.UnitID != 0 {
		u, ok := o.units.ByID(target.UnitID)
		if !ok {
			return nil, nil, false
		}
		l, ok := o.linksByAddr[u.Endpoint.Addr()]
		return l, &u, ok
	}
	if target.EndpointID != 0 {
		ep, ok := o.endpoints[target.EndpointID]
		if !ok {
			return nil, nil, false
		}
		l, ok := o.linksByAddr[ep.Addr()]
		return l, nil, ok
	}
	return nil, nil, false
}

func (o *Orchestrator) send(_ context.Context, target policy.Target, cmd protocol.Command) link.SendResult {
	l, unit, ok := o.resolve(target)
	if !ok || (cmd.NeedsUnit() && unit == nil) {
		o.logError("send target not found", "unit", target.UnitID, "endpoint", target.EndpointID,
			"type", cmd.Type, "error", ErrTargetNotFound)
		o.observeSend(cmd.Type, link.ResultNotSent)
		return link.SendResult{Result: link.ResultNotSent, Message: msgTargetNotFound}
	}

	var nodeID, channel string
	var unitID int64
	if unit != nil {
		nodeID, channel, unitID = unit.NodeID, unit.ChannelID, unit.ID
	}

	frames, msgID, err := cmd.Encode(nodeID, channel, l.MessageIDs())
	if err != nil {
		msg := err.Error()
		if errors.Is(err, protocol.ErrUnknownType) {
			msg = msgNotImplemented
		}
		o.logError("encoding command failed", "endpoint", l.ID(), "unit", unitID, "type", cmd.Type, "error", err)
		o.observeSend(cmd.Type, link.ResultNotSent)
		return link.SendResult{Result: link.ResultNotSent, Message: msg}
	}

	var res link.SendResult
	for _, frame := range frames {
		res = l.Send(frame)
		o.observeSend(cmd.Type, res.Result)
		if !res.OK() {
			o.logError("send failed", "endpoint", l.ID(), "unit", unitID, "type", cmd.Type,
				"result", res.Result, "message", res.Message)
			return res
		}
		o.recordSent(SentRecord{
			Type:       cmd.Type,
			EndpointID: l.ID(),
			UnitID:     unitID,
			MessageID:  msgID,
			Data:       string(frame),
		})
	}
	return res
}

func (o *Orchestrator) resend(_ context.Context, target policy.Target, typ protocol.CommandType, raw []byte) link.SendResult {
	l, unit, ok := o.resolve(target)
	if !ok {
		o.logError("resend target not found", "unit", target.UnitID, "endpoint", target.EndpointID,
			"error", ErrTargetNotFound)
		o.observeSend(typ, link.ResultNotSent)
		return link.SendResult{Result: link.ResultNotSent, Message: msgTargetNotFound}
	}
	switch typ {
	case protocol.CmdDisplay, protocol.CmdDisplayAck, protocol.CmdBroadcast, protocol.CmdOpenSession,
		protocol.CmdVersion, protocol.CmdNetwork, protocol.CmdRelay:
	default:
		o.logError("resend of unknown command type", "type", typ)
		o.observeSend(typ, link.ResultNotSent)
		return link.SendResult{Result: link.ResultNotSent, Message: msgNotImplemented}
	}

	res := l.Send(raw)
	o.observeSend(typ, res.Result)
	if !res.OK() {
		o.logError("resend failed", "endpoint", l.ID(), "type", typ, "result", res.Result, "message", res.Message)
		return res
	}

	rec := SentRecord{Type: typ, EndpointID: l.ID(), Data: string(raw)}
	if unit != nil {
		rec.UnitID = unit.ID
	}
	if typ == protocol.CmdDisplayAck {
		rec.MessageID = ackMessageID(raw)
	}
	o.recordSent(rec)
	return res
}

// recordSent appends to the sent log and, for ack-seeking displays, to the
// pending log.
func (o *Orchestrator) recordSent(rec SentRecord) {
	rec.Time = o.now()
	o.sent.push(rec)

	if rec.Type != protocol.CmdDisplayAck {
		return
	}
	if n := o.pending.removeAll(func(p SentRecord) bool {
		return p.UnitID == rec.UnitID && p.EndpointID == rec.EndpointID
	}); n > 0 {
		o.logDebug("superseded pending displays", "unit", rec.UnitID, "count", n)
	}
	if o.pending.push(rec) {
		o.logError("pending ack log full, oldest entry evicted",
			"capacity", o.opts.LogCapacity, "error", fmt.Sprintf("unit %d message %s", rec.UnitID, rec.MessageID))
	}
}

// ack marks the newest un-acked sent record for (endpointID, msgID) as
// acknowledged and drops the matching pending entry.
func (o *Orchestrator) ack(endpointID int64, msgID string) {
	o.sent.updateLast(func(r *SentRecord) bool {
		if r.MessageID == msgID && r.EndpointID == endpointID && !r.Acked {
			r.Acked = true
			return true
		}
		return false
	})
	o.pending.removeFirst(func(p SentRecord) bool {
		return p.MessageID == msgID && p.EndpointID == endpointID
	})
}

// sweep resends every pending display older than ResendAge. A successful
// resend replaces the entry with a fresh one; a failed one stays queued.
func (o *Orchestrator) sweep(ctx context.Context) {
	now := o.now()
	for _, p := range o.pending.snapshot() {
		if now.Sub(p.Time) < o.opts.ResendAge {
			continue
		}
		o.logInfo("resending un-acked display", "endpoint", p.EndpointID, "unit", p.UnitID, "message_id", p.MessageID)

		target := policy.Target{EndpointID: p.EndpointID, UnitID: p.UnitID}
		o.pending.removeFirst(func(q SentRecord) bool {
			return q.MessageID == p.MessageID && q.EndpointID == p.EndpointID
		})
		if res := o.resend(ctx, target, p.Type, []byte(p.Data)); !res.OK() {
			o.logError("resend sweep failed", "endpoint", p.EndpointID, "unit", p.UnitID,
				"message_id", p.MessageID, "result", res.Result)
			o.pending.push(p)
		}
	}
}

// ackMessageID extracts the message id from an encoded display-ack frame.
func ackMessageID(raw []byte) string {
	const start = 3 // STX, type, US
	const end = start + 3
	if len(raw) < end || raw[1] != byte(protocol.TypeDisplayAck) {
		return ""
	}
	return string(raw[start:end])
}
