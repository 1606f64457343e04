package link

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// mockController accepts connections and records everything it reads.
type mockController struct {
	listener net.Listener

	mu       sync.Mutex
	conn     net.Conn
	accepted int
	received []byte
}

func newMockController(t *testing.T) *mockController {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &mockController{listener: listener}
	go s.acceptLoop()
	return s
}

func (s *mockController) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.accepted++
		s.mu.Unlock()

		go func(c net.Conn) {
			buf := make([]byte, 256)
			for {
				n, err := c.Read(buf)
				if n > 0 {
					s.mu.Lock()
					s.received = append(s.received, buf[:n]...)
					s.mu.Unlock()
				}
				if err != nil {
					return
				}
			}
		}(conn)
	}
}

func (s *mockController) config() Config {
	addr := s.listener.Addr().(*net.TCPAddr)
	return Config{
		ID:             7,
		Host:           "127.0.0.1",
		Port:           addr.Port,
		ReconnectDelay: 50 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
}

func (s *mockController) write(t *testing.T, data string) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no connection to write to")
	}
	if _, err := conn.Write([]byte(data)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (s *mockController) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *mockController) Received() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.received)
}

func (s *mockController) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

func (s *mockController) Close() {
	s.listener.Close()
	s.dropConnection()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type received struct {
	frame string
	msg   protocol.Message
	key   *protocol.KeyEvent
}

type recorder struct {
	mu     sync.Mutex
	msgs   []received
	readys int
}

func (r *recorder) onMessage(frame []byte, msg protocol.Message, key *protocol.KeyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, received{frame: string(frame), msg: msg, key: key})
}

func (r *recorder) onReady(code int) {
	if code != ReadyOpened {
		return
	}
	r.mu.Lock()
	r.readys++
	r.mu.Unlock()
}

func (r *recorder) messages() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.msgs...)
}

func (r *recorder) readyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readys
}

func TestConfigDefaults(t *testing.T) {
	l := New(Config{ID: 1, Host: "10.0.0.1", Port: 16})

	if l.cfg.ReconnectDelay != 10*time.Second {
		t.Errorf("ReconnectDelay = %v, want 10s", l.cfg.ReconnectDelay)
	}
	if l.Addr() != "10.0.0.1:16" {
		t.Errorf("Addr() = %q", l.Addr())
	}
	if l.ID() != 1 {
		t.Errorf("ID() = %d", l.ID())
	}
	if got := l.MessageIDs().Next(); got != "001" {
		t.Errorf("first message id = %q", got)
	}
}

func TestSendNotConnected(t *testing.T) {
	l := New(Config{ID: 3, Host: "127.0.0.1", Port: 1})

	res := l.Send(protocol.EncodeOpenSession())
	if res.Result != ResultNotSent {
		t.Errorf("Result = %s, want NOT_SENT", res.Result)
	}
	if res.OK() {
		t.Error("OK() = true without connection")
	}
	if !errors.Is(l.HealthCheck(context.Background()), ErrNotConnected) {
		t.Error("HealthCheck() should report ErrNotConnected")
	}
}

func TestConnectAndSend(t *testing.T) {
	server := newMockController(t)
	defer server.Close()

	rec := &recorder{}
	l := New(server.config())
	l.SetOnReady(rec.onReady)
	l.Start(context.Background())
	defer l.Close()

	waitFor(t, "ready callback", func() bool { return rec.readyCount() == 1 })
	if !l.IsConnected() {
		t.Fatal("IsConnected() = false after ready")
	}

	res := l.Send(protocol.EncodeOpenSession())
	if res.Result != ResultOK || res.Message != "Sent ok" {
		t.Fatalf("Send() = %+v", res)
	}
	waitFor(t, "bytes at controller", func() bool { return server.Received() == "\x02\x32\x05\x03" })

	if stats := l.Stats(); stats.FramesTx != 1 || !stats.Connected {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestReceiveReassemblesFrames(t *testing.T) {
	server := newMockController(t)
	defer server.Close()

	rec := &recorder{}
	l := New(server.config())
	l.SetOnMessage(rec.onMessage)
	l.SetOnReady(rec.onReady)
	l.Start(context.Background())
	defer l.Close()

	waitFor(t, "connection", func() bool { return rec.readyCount() == 1 })

	// One ack split across writes, then a key press merged with a version
	// reply and a malformed alarm.
	server.write(t, "\x02\x42\x05250\x05001")
	time.Sleep(20 * time.Millisecond)
	server.write(t, "\x052\x059\x03")
	server.write(t, "\x02\x36\x05001\x052\x051,2,V\x03\x02\x33\x05bad\x03\x02\x31\x051.0\x03")

	waitFor(t, "three messages", func() bool { return len(rec.messages()) == 3 })
	msgs := rec.messages()

	if msgs[0].msg.Type != protocol.TypeDisplayAck || msgs[0].msg.MessageID != "250" || msgs[0].key != nil {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[0].frame != "\x42\x05250\x05001\x052\x059" {
		t.Errorf("first frame = %q", msgs[0].frame)
	}
	if msgs[1].key == nil || msgs[1].key.NodeID != "001" || msgs[1].key.FirstKey() != "V" {
		t.Errorf("second message key = %+v", msgs[1].key)
	}
	if msgs[2].msg.Type != protocol.TypeVersion || msgs[2].msg.Value != "1.0" {
		t.Errorf("third message = %+v", msgs[2].msg)
	}

	stats := l.Stats()
	if stats.FramesRx != 4 {
		t.Errorf("FramesRx = %d, want 4", stats.FramesRx)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	server := newMockController(t)
	defer server.Close()

	rec := &recorder{}
	l := New(server.config())
	l.SetOnReady(rec.onReady)
	l.Start(context.Background())
	defer l.Close()

	waitFor(t, "first connection", func() bool { return rec.readyCount() == 1 })

	server.dropConnection()
	waitFor(t, "second connection", func() bool { return rec.readyCount() == 2 })

	if server.Accepted() != 2 {
		t.Errorf("Accepted() = %d, want 2", server.Accepted())
	}
	if got := l.Stats().ReconnectsTotal; got != 1 {
		t.Errorf("ReconnectsTotal = %d, want 1", got)
	}
}

func TestRetriesUntilControllerAppears(t *testing.T) {
	// Reserve a port, then release it so the first dials are refused.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	rec := &recorder{}
	l := New(Config{ID: 9, Host: "127.0.0.1", Port: port, ReconnectDelay: 30 * time.Millisecond})
	l.SetOnReady(rec.onReady)
	l.Start(context.Background())
	defer l.Close()

	waitFor(t, "failed dials", func() bool { return l.Stats().ErrorsTotal >= 2 })

	listener, err = net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		t.Skipf("port %d no longer available: %v", port, err)
	}
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	waitFor(t, "connection", func() bool { return rec.readyCount() == 1 })
}

func TestContextCancellationStopsLink(t *testing.T) {
	server := newMockController(t)
	defer server.Close()

	rec := &recorder{}
	l := New(server.config())
	l.SetOnReady(rec.onReady)

	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	waitFor(t, "connection", func() bool { return rec.readyCount() == 1 })

	cancel()
	waitFor(t, "disconnect", func() bool { return !l.IsConnected() })

	if res := l.Send(protocol.EncodeVersionRequest()); res.Result != ResultNotSent {
		t.Errorf("Send() after cancel = %s, want NOT_SENT", res.Result)
	}

	// Close after cancellation is a no-op.
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCallbackPanicDoesNotKillLink(t *testing.T) {
	server := newMockController(t)
	defer server.Close()

	rec := &recorder{}
	calls := 0
	var mu sync.Mutex

	l := New(server.config())
	l.SetOnReady(rec.onReady)
	l.SetOnMessage(func(_ []byte, _ protocol.Message, _ *protocol.KeyEvent) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("boom")
		}
	})
	l.Start(context.Background())
	defer l.Close()

	waitFor(t, "connection", func() bool { return rec.readyCount() == 1 })
	server.write(t, "\x02\x31\x051.0\x03")
	server.write(t, "\x02\x31\x051.1\x03")

	waitFor(t, "second callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
	if !l.IsConnected() {
		t.Error("link disconnected after callback panic")
	}
}

func TestUnframedInputIsBounded(t *testing.T) {
	l := New(Config{ID: 1, Host: "127.0.0.1", Port: 1})

	junk := make([]byte, maxPending+10)
	for i := range junk {
		junk[i] = 'x'
	}
	if rest := l.consume(junk); rest != nil {
		t.Errorf("consume() kept %d bytes, want none", len(rest))
	}
	if l.Stats().DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", l.Stats().DecodeErrors)
	}

	if rest := l.consume([]byte("\x02\x31\x05")); string(rest) != "\x02\x31\x05" {
		t.Errorf("consume() rest = %q", rest)
	}
}

func TestMalformedNetworkCountKeepsStream(t *testing.T) {
	l := New(Config{ID: 1, Host: "127.0.0.1", Port: 1})

	var got []protocol.Message
	l.SetOnMessage(func(_ []byte, msg protocol.Message, _ *protocol.KeyEvent) {
		got = append(got, msg)
	})

	rest := l.consume([]byte("\x02\x39\x051,99999999999999\x03\x02\x31\x051.0\x03"))
	if len(rest) != 0 {
		t.Errorf("consume() rest = %q", rest)
	}
	if l.Stats().DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", l.Stats().DecodeErrors)
	}
	if len(got) != 1 || got[0].Type != protocol.TypeVersion {
		t.Fatalf("messages = %+v, want the version reply after the bad frame", got)
	}
}
