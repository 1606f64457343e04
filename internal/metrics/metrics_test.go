package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestObservations(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveSend("display-ack", "OK")
	c.ObserveSend("display-ack", "OK")
	c.ObserveSend("display-ack", "NOT_SENT")
	c.ObserveReceive("key")
	c.ObservePolicy("key-pressed", nil)
	c.ObservePolicy("addMovement", errors.New("duplicate"))
	c.SetLogSizes(3, 2, 1, 0)
	c.SetLinkConnected("1", true)
	c.SetLinkConnected("2", false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"sent ok", testutil.ToFloat64(c.CommandsSent.WithLabelValues("display-ack", "OK")), 2},
		{"sent not sent", testutil.ToFloat64(c.CommandsSent.WithLabelValues("display-ack", "NOT_SENT")), 1},
		{"received key", testutil.ToFloat64(c.MessagesReceived.WithLabelValues("key")), 1},
		{"policy ok", testutil.ToFloat64(c.PolicyActions.WithLabelValues("key-pressed", "ok")), 1},
		{"policy error", testutil.ToFloat64(c.PolicyActions.WithLabelValues("addMovement", "error")), 1},
		{"sent log", testutil.ToFloat64(c.LogEntries.WithLabelValues(LogSent)), 3},
		{"pending log", testutil.ToFloat64(c.LogEntries.WithLabelValues(LogPending)), 1},
		{"link up", testutil.ToFloat64(c.LinkConnected.WithLabelValues("1")), 1},
		{"link down", testutil.ToFloat64(c.LinkConnected.WithLabelValues("2")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestNewTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	second, err := New(reg)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}

	first.ObserveReceive("ack")
	if got := testutil.ToFloat64(second.MessagesReceived.WithLabelValues("ack")); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveSend("x", "OK")
	c.ObserveReceive("x")
	c.ObservePolicy("x", nil)
	c.SetLogSizes(1, 1, 1, 1)
	c.SetLinkConnected("1", true)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	if c.Middleware(next) == nil {
		t.Error("Middleware() returned nil")
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	c := newTestCollector(t)

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	for _, path := range []string{"/ok", "/ok", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ptl_http_requests_total") {
		t.Errorf("exposition missing ptl_http_requests_total:\n%s", body)
	}
}
