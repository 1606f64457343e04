package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
)

// fakeServer answers /ping and collects line protocol posted to /api/v2/write.
type fakeServer struct {
	*httptest.Server
	mu    sync.Mutex
	lines []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
				if line != "" {
					f.lines = append(f.lines, line)
				}
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "ptl-dev-token",
		Org:           "ptl",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := Connect(cfg, "wh1"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(testConfig(url), "wh1"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClientOptionsDefaults(t *testing.T) {
	cfg := testConfig("")
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	opts := clientOptions(cfg, "wh1")
	if opts.BatchSize() != 100 {
		t.Errorf("BatchSize() = %d, want 100", opts.BatchSize())
	}
	if opts.FlushInterval() != 10*millisecondsPerSecond {
		t.Errorf("FlushInterval() = %d, want 10000", opts.FlushInterval())
	}
	if got := opts.WriteOptions().DefaultTags()[TagSite]; got != "wh1" {
		t.Errorf("site tag = %q, want wh1", got)
	}
}

func TestWritesReachServer(t *testing.T) {
	srv := newFakeServer(t)

	c, err := Connect(testConfig(srv.URL), "wh1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	var (
		mu       sync.Mutex
		writeErr error
	)
	c.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	c.WritePointWithTime("ptl_key",
		map[string]string{"endpoint": "2", "node": "001"},
		map[string]interface{}{"key": "V"},
		time.Unix(1700000000, 0))
	c.WriteConfirmation("A-01", 42, 3, "ok", "200", 12*time.Millisecond)
	c.Flush()

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Fatalf("write error = %v", writeErr)
	}

	lines := srv.written()
	if len(lines) != 2 {
		t.Fatalf("written %d lines, want 2: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "ptl_key,endpoint=2,node=001,site=wh1 ") {
		t.Errorf("key line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "ptl_confirmation,location=A-01,outcome=ok,site=wh1 ") {
		t.Errorf("confirmation line = %q", lines[1])
	}
}

func TestConfirmationPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	p := confirmationPoint("A-01", 42, 3, "retry", "TIMEOUT", 1500*time.Millisecond, ts)

	if p.Name() != MeasurementConfirmation {
		t.Errorf("Name() = %q", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags[TagLocation] != "A-01" || tags[TagOutcome] != "retry" {
		t.Errorf("tags = %v", tags)
	}
	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["external_id"] != "42" || fields["code"] != "TIMEOUT" || fields["duration_ms"] != int64(1500) {
		t.Errorf("fields = %v", fields)
	}
	if !p.Time().Equal(ts) {
		t.Errorf("Time() = %v", p.Time())
	}
}

func TestClosedClientDropsWrites(t *testing.T) {
	srv := newFakeServer(t)

	c, err := Connect(testConfig(srv.URL), "wh1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	c.WriteConfirmation("A-01", 1, 1, "ok", "200", time.Millisecond)
	c.Flush()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if n := len(srv.written()); n != 0 {
		t.Errorf("written %d lines after Close", n)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
