// Package metrics exposes PTL counters and gauges to Prometheus.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "ptl"

// Log names used as the "log" label of ptl_log_entries.
const (
	LogSent     = "sent"
	LogReceived = "received"
	LogPending  = "pending"
	LogAlarms   = "alarms"
)

// Collector holds the registered metrics. Its methods are nil-safe so a
// disabled collector can be passed around as a nil pointer.
type Collector struct {
	gatherer prometheus.Gatherer

	CommandsSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	PolicyActions    *prometheus.CounterVec
	LogEntries       *prometheus.GaugeVec
	LinkConnected    *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDurations    *prometheus.HistogramVec
}

// New registers the PTL metrics against reg, or the default registry when
// reg is nil. Registering twice against the same registry returns the
// already registered collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.CommandsSent, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "commands_sent_total",
		Help:      "Commands sent to the controllers, by command type and send result.",
	}, []string{"type", "result"})); err != nil {
		return nil, err
	}
	if c.MessagesReceived, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "messages_received_total",
		Help:      "Telegrams received from the controllers, by message type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}
	if c.PolicyActions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "policy_actions_total",
		Help:      "Actions processed by the active mode, by action and outcome.",
	}, []string{"action", "result"})); err != nil {
		return nil, err
	}
	if c.LogEntries, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "log_entries",
		Help:      "Entries held by each in-memory log.",
	}, []string{"log"})); err != nil {
		return nil, err
	}
	if c.LinkConnected, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "link_connected",
		Help:      "1 while the connection to a controller is up.",
	}, []string{"endpoint"})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "http_requests_total",
		Help:      "HTTP API requests, by method and status code.",
	}, []string{"method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP API latency in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method"})); err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveSend counts one command handed to a controller.
func (c *Collector) ObserveSend(commandType string, result string) {
	if c == nil {
		return
	}
	c.CommandsSent.WithLabelValues(commandType, result).Inc()
}

// ObserveReceive counts one telegram received from a controller.
func (c *Collector) ObserveReceive(messageType string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(messageType).Inc()
}

// ObservePolicy counts one policy action; result is "ok" or "error".
func (c *Collector) ObservePolicy(action string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.PolicyActions.WithLabelValues(action, result).Inc()
}

// SetLogSizes publishes the current size of each in-memory log.
func (c *Collector) SetLogSizes(sent, received, pending, alarms int) {
	if c == nil {
		return
	}
	c.LogEntries.WithLabelValues(LogSent).Set(float64(sent))
	c.LogEntries.WithLabelValues(LogReceived).Set(float64(received))
	c.LogEntries.WithLabelValues(LogPending).Set(float64(pending))
	c.LogEntries.WithLabelValues(LogAlarms).Set(float64(alarms))
}

// SetLinkConnected records the state of one controller connection.
func (c *Collector) SetLinkConnected(endpoint string, connected bool) {
	if c == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	c.LinkConnected.WithLabelValues(endpoint).Set(v)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts and times HTTP requests.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		c.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		c.HTTPDurations.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes WebSocket upgrades through to the underlying writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// register adds col to reg, returning the existing collector of the same
// type when one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return col, fmt.Errorf("metrics: collector already registered with incompatible type: %w", err)
		}
		return col, fmt.Errorf("metrics: %w", err)
	}
	return col, nil
}
