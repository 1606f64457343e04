package game

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Name is the mode name of this policy.
const Name = "game"

// State is a step of the game machine.
type State string

// Game states.
const (
	StateWaitBegin   State = "WAIT_BEGIN"
	StateWaitPlayers State = "WAIT_PLAYERS"
	StateWaitStart   State = "WAIT_START"
	StateWaitKeyV    State = "WAIT_KEY_V"
)

// Game limits.
const (
	MinPlayers = 1
	MaxPlayers = 4
	Steps      = 8
)

// Prompts shown on the zone unit.
const (
	PromptPlayers      = "Players 1-4"
	PromptZoneOnly     = "Error, press on the PTL Zone"
	PromptPlayersError = "Players error 1-4 ..."
	PromptNotEnough    = "Error, need 2 PTL"
	PromptStart        = "V to start"
)

// Keys used by the game.
const (
	keyConfirm = "V"
	keyAdd     = "+"
	keySub     = "-"
)

// ErrNoZone is returned when the topology has no zone unit to prompt on.
var ErrNoZone = errors.New("game: no zone unit configured")

// ErrMissingDependency is returned by New without a Sender.
var ErrMissingDependency = errors.New("game: missing dependency")

// playerColors is the LED colour of each player, in turn order.
var playerColors = [...]string{
	protocol.LEDRed,
	protocol.LEDBlue,
	protocol.LEDGreen,
	protocol.LEDYellow,
	protocol.LEDMagenta,
	protocol.LEDCyan,
	protocol.LEDWhite,
}

// Random draws target units. *rand.Rand from math/rand/v2 satisfies it.
type Random interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Deps holds the collaborators of the game.
type Deps struct {
	Sender policy.Sender
	Logger Logger

	// Random defaults to the math/rand/v2 global source.
	Random Random

	// Now defaults to time.Now.
	Now func() time.Time
}

// Round is one player's run through the targets.
type Round struct {
	Color    string          `json:"color"`
	Targets  []topology.Unit `json:"targets"`
	Current  int             `json:"current"`
	Begin    time.Time       `json:"begin"`
	End      time.Time       `json:"end"`
	Finished bool            `json:"finished"`
}

// Elapsed is the time the player took, zero until the round is finished.
func (r Round) Elapsed() time.Duration {
	if !r.Finished {
		return 0
	}
	return r.End.Sub(r.Begin)
}

func (r Round) target() topology.Unit { return r.Targets[r.Current] }

// Policy is a reaction game for one to four players. Each player in turn
// presses V on eight randomly lit units; the fastest wins.
//
// Thread Safety: Process must only be called from the orchestrator loop.
type Policy struct {
	sender policy.Sender
	logger Logger
	random Random
	now    func() time.Time

	state   State
	players int
	rounds  []Round
	current int

	table policy.Table
}

// New creates the game in WAIT_BEGIN.
func New(deps Deps) (*Policy, error) {
	if deps.Sender == nil {
		return nil, ErrMissingDependency
	}
	p := &Policy{
		sender: deps.Sender,
		logger: deps.Logger,
		random: deps.Random,
		now:    deps.Now,
		state:  StateWaitBegin,
	}
	if p.random == nil {
		p.random = globalRandom{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.table = policy.Table{policy.ActionKeyPressed: p.handleKey}
	return p, nil
}

// Name implements policy.Policy.
func (p *Policy) Name() string { return Name }

// Process implements policy.Policy.
func (p *Policy) Process(ctx context.Context, units topology.Units, action string, payload any) (any, error) {
	return p.table.Dispatch(ctx, units, action, payload)
}

// State returns the current machine state.
func (p *Policy) State() State { return p.state }

// Rounds returns a copy of the generated rounds.
func (p *Policy) Rounds() []Round { return slices.Clone(p.rounds) }

func (p *Policy) handleKey(ctx context.Context, units topology.Units, payload any) (any, error) {
	var kp policy.KeyPress
	switch v := payload.(type) {
	case policy.KeyPress:
		kp = v
	case *policy.KeyPress:
		if v == nil {
			return nil, fmt.Errorf("%w: nil key press", policy.ErrInvalidPayload)
		}
		kp = *v
	default:
		return nil, fmt.Errorf("%w: %T for %s", policy.ErrInvalidPayload, payload, policy.ActionKeyPressed)
	}
	zone, ok := units.Zone()
	if !ok {
		p.logError("no zone unit configured")
		return nil, ErrNoZone
	}

	var err error
	switch p.state {
	case StateWaitBegin:
		err = p.show(ctx, zone, PromptPlayers, protocol.LEDWhite)
		p.state = StateWaitPlayers
	case StateWaitPlayers:
		err = p.waitPlayers(ctx, units, zone, kp)
	case StateWaitStart:
		err = p.waitStart(ctx, zone, kp)
	case StateWaitKeyV:
		err = p.waitKeyV(ctx, zone, kp)
	}
	return p.state, err
}

func (p *Policy) waitPlayers(ctx context.Context, units topology.Units, zone topology.Unit, kp policy.KeyPress) error {
	if !kp.Unit.IsZone() {
		return p.show(ctx, zone, PromptZoneOnly, protocol.LEDWhite)
	}

	switch kp.Key() {
	case keyAdd:
		p.players = min(p.players+1, MaxPlayers)
		return p.show(ctx, zone, "Players "+strconv.Itoa(p.players), protocol.LEDWhite)
	case keySub:
		p.players = max(p.players-1, MinPlayers)
		return p.show(ctx, zone, "Players "+strconv.Itoa(p.players), protocol.LEDWhite)
	case keyConfirm:
		if p.players < MinPlayers || p.players > MaxPlayers {
			return p.show(ctx, zone, PromptPlayersError, protocol.LEDWhite)
		}
		targets := units.Interactive()
		if len(targets) < 2 {
			p.logWarn("not enough interactive units for a game", "units", len(targets))
			return p.show(ctx, zone, PromptNotEnough, protocol.LEDWhite)
		}
		p.generate(targets)
		p.state = StateWaitStart
		p.logInfo("game generated", "players", p.players)
		return p.show(ctx, zone, PromptStart, protocol.LEDWhite)
	default:
		return nil
	}
}

// generate draws Steps targets per player. A draw that repeats the previous
// target is redrawn.
func (p *Policy) generate(targets topology.Units) {
	p.rounds = make([]Round, p.players)
	p.current = 0
	for i := range p.rounds {
		seq := make([]topology.Unit, 0, Steps)
		for len(seq) < Steps {
			u := targets[p.random.IntN(len(targets))]
			if len(seq) > 0 && seq[len(seq)-1].ID == u.ID {
				continue
			}
			seq = append(seq, u)
		}
		p.rounds[i] = Round{Color: playerColors[i%len(playerColors)], Targets: seq}
	}
}

func (p *Policy) waitStart(ctx context.Context, zone topology.Unit, kp policy.KeyPress) error {
	if kp.Key() != keyConfirm {
		return p.show(ctx, zone, PromptStart, protocol.LEDWhite)
	}
	p.current = 0
	p.state = StateWaitKeyV
	target := p.rounds[0].target()
	err := p.light(ctx)
	if target.ID != zone.ID {
		err = errors.Join(err, p.blank(ctx, zone))
	}
	return err
}

func (p *Policy) waitKeyV(ctx context.Context, zone topology.Unit, kp policy.KeyPress) error {
	r := &p.rounds[p.current]
	if kp.Key() != keyConfirm || kp.Unit.ID != r.target().ID {
		return p.light(ctx)
	}

	now := p.now()
	if r.Current == 0 {
		r.Begin = now
	}
	if r.Current < Steps-1 {
		r.Current++
		return p.advance(ctx, kp.Unit)
	}

	r.End = now
	r.Finished = true
	if p.current < len(p.rounds)-1 {
		p.current++
		p.rounds[p.current].Begin = now
		return p.advance(ctx, kp.Unit)
	}

	p.state = StateWaitBegin
	text := p.winners()
	p.logInfo("game finished", "result", text)
	err := p.show(ctx, zone, text, protocol.LEDWhite)
	if kp.Unit.ID != zone.ID {
		err = errors.Join(err, p.blank(ctx, kp.Unit))
	}
	return err
}

// advance lights the next target and blanks the unit just hit when it is a
// different one.
func (p *Policy) advance(ctx context.Context, hit topology.Unit) error {
	err := p.light(ctx)
	if hit.ID != p.rounds[p.current].target().ID {
		err = errors.Join(err, p.blank(ctx, hit))
	}
	return err
}

// light shows the current step of the current player on its target.
func (p *Policy) light(ctx context.Context) error {
	r := p.rounds[p.current]
	return p.show(ctx, r.target(), "P. "+strconv.Itoa(r.Current+1), r.Color)
}

// winners ranks the players by elapsed time, fastest first.
func (p *Policy) winners() string {
	order := make([]int, len(p.rounds))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(p.rounds[a].Elapsed(), p.rounds[b].Elapsed())
	})
	parts := make([]string, 0, len(order)+1)
	parts = append(parts, "Winners")
	for _, i := range order {
		parts = append(parts, strconv.Itoa(i+1))
	}
	return strings.Join(parts, " ")
}

func (p *Policy) blank(ctx context.Context, u topology.Unit) error {
	return p.show(ctx, u, " ", protocol.LEDBlack)
}

func (p *Policy) show(ctx context.Context, u topology.Unit, text, led string) error {
	res := p.sender.Send(ctx, policy.ToUnit(u.ID), protocol.DisplayCommand(protocol.NewDisplay(text, led)))
	if err := policy.SendError(res); err != nil {
		p.logError("display failed", "unit", u.Location, "result", res.Result, "message", res.Message)
		return err
	}
	return nil
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
