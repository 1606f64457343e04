package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// Defaults for Options.
const (
	DefaultLogCapacity    = 500
	DefaultResendInterval = time.Second
	DefaultResendAge      = time.Second

	inboxSize = 256
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Link is the part of a controller connection the orchestrator drives.
// *link.Link satisfies it.
type Link interface {
	link.Connector
	Start(ctx context.Context)
	SetOnMessage(handler link.MessageHandler)
	SetOnReady(handler link.ReadyHandler)
}

// LinkFactory creates a link for a controller.
type LinkFactory func(cfg link.Config) Link

// Options configures an Orchestrator. Only Policy-independent fields are
// required; every publisher is optional.
type Options struct {
	// Link timing applied to every controller link.
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// ResendInterval is how often un-acked displays are checked and
	// ResendAge how old one must be before it is sent again.
	ResendInterval time.Duration
	ResendAge      time.Duration

	// LogCapacity bounds each of the sent, received, pending and alarm
	// logs. Default: 500.
	LogCapacity int

	// NewLink overrides link creation, mainly for tests.
	NewLink LinkFactory

	Logger    Logger
	Events    EventPublisher
	Hub       Broadcaster
	Points    PointWriter
	Metrics   Metrics
	TopicSite string
}

// Orchestrator owns the controller links and the unit registry, routes
// commands to the right link, tracks acknowledgements and feeds device
// events to the active control policy.
//
// Thread Safety: all methods are safe for concurrent use. Registry, log and
// policy state is only touched from a single loop goroutine; other callers
// submit work to it.
type Orchestrator struct {
	opts Options
	now  func() time.Time

	inbox   chan func()
	quit    chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	// Loop-owned state.
	policy      policy.Policy
	units       topology.Units
	endpoints   map[int64]topology.Endpoint
	linksByAddr map[string]Link
	sent        *ringLog[SentRecord]
	received    *ringLog[ReceivedRecord]
	pending     *ringLog[SentRecord]
	alarms      *ringLog[ReceivedRecord]
}

type onLoopKey struct{}

// New creates an orchestrator with no units and no policy. Call SetPolicy,
// then Start, then Reload.
func New(opts Options) *Orchestrator {
	if opts.ResendInterval <= 0 {
		opts.ResendInterval = DefaultResendInterval
	}
	if opts.ResendAge <= 0 {
		opts.ResendAge = DefaultResendAge
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = DefaultLogCapacity
	}
	o := &Orchestrator{
		opts:        opts,
		now:         time.Now,
		inbox:       make(chan func(), inboxSize),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		started:     make(chan struct{}),
		endpoints:   make(map[int64]topology.Endpoint),
		linksByAddr: make(map[string]Link),
		sent:        newRingLog[SentRecord](opts.LogCapacity),
		received:    newRingLog[ReceivedRecord](opts.LogCapacity),
		pending:     newRingLog[SentRecord](opts.LogCapacity),
		alarms:      newRingLog[ReceivedRecord](opts.LogCapacity),
	}
	if o.opts.NewLink == nil {
		o.opts.NewLink = o.defaultLink
	}
	return o
}

// SetPolicy installs the control policy. It must be called before Start.
func (o *Orchestrator) SetPolicy(p policy.Policy) {
	o.policy = p
}

// Start launches the event loop. It returns immediately; the loop runs until
// ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		select {
		case <-o.quit:
			return
		default:
		}
		o.ctx, o.cancel = context.WithCancel(ctx)
		close(o.started)
		go o.loop()
	})
}

// Stop ends the event loop and closes every link. Safe to call multiple
// times.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.quit)
		select {
		case <-o.started:
			o.cancel()
			<-o.stopped
		default:
			close(o.stopped)
		}
		// The loop has exited, so link callbacks can no longer block on it.
		for _, l := range o.linksByAddr {
			l.Close() //nolint:errcheck // best-effort during shutdown
		}
		o.logInfo("orchestrator stopped")
	})
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)

	ticker := time.NewTicker(o.opts.ResendInterval)
	defer ticker.Stop()

	ctx := context.WithValue(o.ctx, onLoopKey{}, true)
	for {
		select {
		case <-o.quit:
			return
		case <-o.ctx.Done():
			return
		case task := <-o.inbox:
			task()
		case <-ticker.C:
			o.sweep(ctx)
			o.updateGauges()
		}
	}
}

// do runs fn on the loop and waits for it. Calls made from the loop itself,
// recognised by their context, run inline.
func (o *Orchestrator) do(ctx context.Context, fn func(ctx context.Context)) error {
	if ctx.Value(onLoopKey{}) != nil {
		fn(ctx)
		return nil
	}
	select {
	case <-o.started:
	default:
		return ErrNotStarted
	}

	done := make(chan struct{})
	loopCtx := context.WithValue(ctx, onLoopKey{}, true)
	task := func() {
		defer close(done)
		fn(loopCtx)
	}

	select {
	case o.inbox <- task:
	case <-o.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-o.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// post queues fn without waiting. Used by link callbacks, which must never
// block a link past Stop.
func (o *Orchestrator) post(fn func(ctx context.Context)) {
	select {
	case <-o.started:
	default:
		return
	}
	ctx := context.WithValue(o.ctx, onLoopKey{}, true)
	select {
	case o.inbox <- func() { fn(ctx) }:
	case <-o.quit:
	}
}

func (o *Orchestrator) defaultLink(cfg link.Config) Link {
	l := link.New(cfg)
	if o.opts.Logger != nil {
		l.SetLogger(o.opts.Logger)
	}
	return l
}

func (o *Orchestrator) logDebug(msg string, kv ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Debug(msg, kv...)
	}
}

func (o *Orchestrator) logInfo(msg string, kv ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Info(msg, kv...)
	}
}

func (o *Orchestrator) logWarn(msg string, kv ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Warn(msg, kv...)
	}
}

func (o *Orchestrator) logError(msg string, kv ...any) {
	if o.opts.Logger != nil {
		o.opts.Logger.Error(msg, kv...)
	}
}
