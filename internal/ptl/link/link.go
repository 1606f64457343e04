package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults for controller communication.
const (
	// DefaultReconnectDelay is the fixed wait between connection attempts.
	DefaultReconnectDelay = 10 * time.Second

	defaultConnectTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second

	readBufferSize = 1024

	// maxPending caps bytes held while waiting for an ETX.
	maxPending = 4096
)

// ReadyOpened is passed to the ready callback when a connection is established.
const ReadyOpened = 0

// Result classifies the outcome of a Send.
type Result string

// Send outcomes.
const (
	ResultOK        Result = "OK"
	ResultNotSent   Result = "NOT_SENT"
	ResultException Result = "EXCEPTION"
)

// SendResult is returned by Send. Message is a human-readable outcome and
// DataSent the bytes that were (or would have been) written.
type SendResult struct {
	Result   Result `json:"result"`
	Message  string `json:"message"`
	DataSent []byte `json:"data_sent"`
}

// OK reports whether the bytes were handed to the socket.
func (r SendResult) OK() bool { return r.Result == ResultOK }

// Config identifies a controller and tunes the connection.
type Config struct {
	// ID is the endpoint id from the topology.
	ID int64

	Host string
	Port int

	// ReconnectDelay is the wait after a failed dial or a dropped
	// connection. Default: 10 seconds.
	ReconnectDelay time.Duration

	// ConnectTimeout bounds a single dial. Default: 5 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds a single write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// Addr returns the dial address "host:port".
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx        uint64    `json:"frames_tx"`
	FramesRx        uint64    `json:"frames_rx"`
	DecodeErrors    uint64    `json:"decode_errors"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MessageHandler receives every parsed inbound telegram. key is non-nil for
// key-pressed telegrams.
type MessageHandler func(frame []byte, msg protocol.Message, key *protocol.KeyEvent)

// ReadyHandler is called with ReadyOpened each time a connection is
// established, including after a reconnect.
type ReadyHandler func(code int)

// Connector is the part of a Link the orchestrator depends on.
type Connector interface {
	ID() int64
	Addr() string
	Send(data []byte) SendResult
	MessageIDs() *protocol.MessageIDGenerator
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Link implements Connector.
var _ Connector = (*Link)(nil)

// Link is the persistent connection to one controller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks run on the link's read goroutine, one at a time.
type Link struct {
	cfg Config
	ids protocol.MessageIDGenerator

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	callbackMu sync.RWMutex
	onMessage  MessageHandler
	onReady    ReadyHandler

	startOnce sync.Once
	done      *closeOnce
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	decodeErrors    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// New creates a link for the given controller. It does not dial until Start
// is called.
func New(cfg Config) *Link {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Link{cfg: cfg, done: newCloseOnce()}
}

// ID returns the endpoint id.
func (l *Link) ID() int64 { return l.cfg.ID }

// Addr returns the controller address "host:port".
func (l *Link) Addr() string { return l.cfg.Addr() }

// MessageIDs returns the message id generator owned by this link.
func (l *Link) MessageIDs() *protocol.MessageIDGenerator { return &l.ids }

// Start launches the connection loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called. Calling Start more than once has
// no effect.
func (l *Link) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run(ctx)

		go func() {
			select {
			case <-ctx.Done():
				l.Close() //nolint:errcheck // Close always returns nil
			case <-l.done.Done():
			}
		}()
	})
}

// run dials, reads until the connection drops, waits the fixed delay and
// dials again.
func (l *Link) run(ctx context.Context) {
	defer l.wg.Done()

	first := true
	for {
		if l.isClosed() || ctx.Err() != nil {
			return
		}

		conn, err := l.dial(ctx)
		if err != nil {
			l.errorsTotal.Add(1)
			l.logWarn("connect failed, retrying", "endpoint", l.cfg.ID, "addr", l.Addr(),
				"retry_in", l.cfg.ReconnectDelay.String(), "error", err)
			if !l.wait(ctx) {
				return
			}
			continue
		}

		l.connMu.Lock()
		l.conn = conn
		l.connected = true
		l.connMu.Unlock()
		l.lastActivity.Store(time.Now().Unix())

		if !first {
			l.reconnectsTotal.Add(1)
		}
		first = false
		l.logInfo("connected", "endpoint", l.cfg.ID, "addr", l.Addr())

		l.callbackMu.RLock()
		ready := l.onReady
		l.callbackMu.RUnlock()
		if ready != nil {
			l.safeCall(func() { ready(ReadyOpened) })
		}

		l.readLoop(conn)

		l.connMu.Lock()
		l.connected = false
		if l.conn == conn {
			l.conn = nil
		}
		l.connMu.Unlock()
		conn.Close() //nolint:errcheck // connection already failed

		if l.isClosed() || ctx.Err() != nil {
			return
		}
		l.logWarn("connection closed, reconnecting", "endpoint", l.cfg.ID, "addr", l.Addr(),
			"retry_in", l.cfg.ReconnectDelay.String())
		if !l.wait(ctx) {
			return
		}
	}
}

func (l *Link) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", l.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	return conn, nil
}

// wait sleeps for the reconnect delay. It returns false if shutdown was
// signalled meanwhile.
func (l *Link) wait(ctx context.Context) bool {
	timer := time.NewTimer(l.cfg.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.done.Done():
		return false
	case <-timer.C:
		return true
	}
}

// readLoop reads chunks, reassembles frames and dispatches them until the
// connection fails.
func (l *Link) readLoop(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	var pending []byte

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			l.lastActivity.Store(time.Now().Unix())
			pending = l.consume(append(pending, buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !l.isClosed() {
				l.errorsTotal.Add(1)
				l.logError("read failed", "endpoint", l.cfg.ID, "error", err)
			}
			return
		}
	}
}

// consume decodes the buffered bytes, dispatches complete frames and returns
// the remainder to keep.
func (l *Link) consume(data []byte) []byte {
	frames, rest := protocol.Decode(data)

	for _, frame := range frames {
		l.framesRx.Add(1)

		msg, err := protocol.Parse(frame)
		if err != nil {
			l.decodeErrors.Add(1)
			l.logWarn("dropping frame", "endpoint", l.cfg.ID, "frame", fmt.Sprintf("%q", frame), "error", err)
			continue
		}

		var key *protocol.KeyEvent
		if ev, ok := msg.KeyEvent(); ok {
			key = &ev
		}

		l.callbackMu.RLock()
		handler := l.onMessage
		l.callbackMu.RUnlock()
		if handler != nil {
			l.safeCall(func() { handler(frame, msg, key) })
		}
	}

	if len(rest) > maxPending {
		l.decodeErrors.Add(1)
		l.logWarn("discarding unframed input", "endpoint", l.cfg.ID, "bytes", len(rest), "error", ErrBufferOverflow)
		return nil
	}
	return rest
}

func (l *Link) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logError("callback panic", "endpoint", l.cfg.ID, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Send writes a complete telegram to the controller.
//
// Parameters:
//   - data: An encoded telegram
//
// Returns:
//   - SendResult: NOT_SENT without a live connection, EXCEPTION if the write
//     fails, OK once the bytes are handed to the socket
func (l *Link) Send(data []byte) SendResult {
	l.connMu.RLock()
	conn := l.conn
	connected := l.connected
	l.connMu.RUnlock()

	if conn == nil || !connected {
		msg := fmt.Sprintf("Client %d: error sending, connection not available", l.cfg.ID)
		l.logWarn("send skipped", "endpoint", l.cfg.ID, "error", ErrNotConnected)
		return SendResult{Result: ResultNotSent, Message: msg, DataSent: data}
	}

	if err := conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		l.errorsTotal.Add(1)
		return SendResult{Result: ResultException, Message: fmt.Sprintf("Client %d: set deadline: %v", l.cfg.ID, err), DataSent: data}
	}
	if _, err := conn.Write(data); err != nil {
		l.errorsTotal.Add(1)
		msg := fmt.Sprintf("Client %d: exception sending %v", l.cfg.ID, err)
		l.logError("write failed", "endpoint", l.cfg.ID, "error", err)
		return SendResult{Result: ResultException, Message: msg, DataSent: data}
	}

	l.framesTx.Add(1)
	l.lastActivity.Store(time.Now().Unix())
	l.logDebug("sent", "endpoint", l.cfg.ID, "frame", fmt.Sprintf("%q", data))
	return SendResult{Result: ResultOK, Message: "Sent ok", DataSent: data}
}

// SetOnMessage sets the callback for parsed inbound telegrams.
func (l *Link) SetOnMessage(handler MessageHandler) {
	l.callbackMu.Lock()
	l.onMessage = handler
	l.callbackMu.Unlock()
}

// SetOnReady sets the callback for established connections.
func (l *Link) SetOnReady(handler ReadyHandler) {
	l.callbackMu.Lock()
	l.onReady = handler
	l.callbackMu.Unlock()
}

// SetLogger sets the logger for this link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// IsConnected returns true while a connection to the controller is open.
func (l *Link) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.connected
}

// Stats returns current operational statistics.
func (l *Link) Stats() Stats {
	var last time.Time
	if ts := l.lastActivity.Load(); ts > 0 {
		last = time.Unix(ts, 0)
	}
	return Stats{
		FramesTx:        l.framesTx.Load(),
		FramesRx:        l.framesRx.Load(),
		DecodeErrors:    l.decodeErrors.Load(),
		ErrorsTotal:     l.errorsTotal.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		LastActivity:    last,
		Connected:       l.IsConnected(),
	}
}

// HealthCheck verifies the connection is open.
func (l *Link) HealthCheck(_ context.Context) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close stops the connection loop and closes the socket. Safe to call
// multiple times.
func (l *Link) Close() error {
	l.done.Close()

	l.connMu.Lock()
	l.connected = false
	if l.conn != nil {
		l.conn.Close() //nolint:errcheck // best-effort during shutdown
	}
	l.connMu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

func (l *Link) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

func (l *Link) logDebug(msg string, kv ...any) {
	if lg := l.getLogger(); lg != nil {
		lg.Debug(msg, kv...)
	}
}

func (l *Link) logInfo(msg string, kv ...any) {
	if lg := l.getLogger(); lg != nil {
		lg.Info(msg, kv...)
	}
}

func (l *Link) logWarn(msg string, kv ...any) {
	if lg := l.getLogger(); lg != nil {
		lg.Warn(msg, kv...)
	}
}

func (l *Link) logError(msg string, kv ...any) {
	if lg := l.getLogger(); lg != nil {
		lg.Error(msg, kv...)
	}
}
