package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthStatus is the overall service state.
type HealthStatus string

// Health states.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
	HealthOffline  HealthStatus = "offline"
)

// HealthMessage is the retained payload on the health topic.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	Site          string       `json:"site"`
	Version       string       `json:"version,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Orchestrator  *Status      `json:"orchestrator,omitempty"`
}

// StatusSource provides the orchestrator summary. *Orchestrator satisfies it.
type StatusSource interface {
	Status(ctx context.Context) (Status, error)
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Site    string
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher EventPublisher
	Source    StatusSource
	Logger    Logger
}

// HealthReporter publishes a retained health message at a fixed interval.
type HealthReporter struct {
	site      string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher EventPublisher
	source    StatusSource
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHealthInterval
	}
	if cfg.Site == "" {
		cfg.Site = DefaultTopicSite
	}
	return &HealthReporter{
		site:      cfg.Site,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  cfg.Interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to call
// multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best-effort during shutdown
		h.publish(context.Background(), HealthStopping, "")
	})
}

// Topic returns the health topic, also used for the MQTT last will.
func (h *HealthReporter) Topic() string {
	return HealthTopic(h.site)
}

// LWTPayload returns the last will message published by the broker if the
// service drops off without a clean disconnect.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	return OfflinePayload(h.site)
}

// OfflinePayload is the health message the broker publishes on behalf of a
// site whose connection dropped.
func OfflinePayload(site string) ([]byte, error) {
	return json.Marshal(HealthMessage{Status: HealthOffline, Site: site, Timestamp: time.Now().UTC()})
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	return h.publish(ctx, "", "")
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(ctx); err != nil {
		h.logError("failed to publish initial health", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// publish sends status, or the evaluated status when status is empty.
func (h *HealthReporter) publish(ctx context.Context, status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	msg := HealthMessage{
		Status:        status,
		Site:          h.site,
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.source != nil && status != HealthStopping {
		if st, err := h.source.Status(ctx); err == nil {
			msg.Orchestrator = &st
		}
	}
	if msg.Status == "" {
		msg.Status, msg.Reason = evaluate(msg.Orchestrator)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.Topic(), payload, 1, true)
}

// evaluate derives the health state from the orchestrator summary.
func evaluate(st *Status) (HealthStatus, string) {
	switch {
	case st == nil:
		return HealthDegraded, "orchestrator unavailable"
	case st.Endpoints == 0:
		return HealthStarting, "no controllers configured"
	case st.EndpointsConnected < st.Endpoints:
		return HealthDegraded, "controller disconnected"
	default:
		return HealthHealthy, ""
	}
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
}
