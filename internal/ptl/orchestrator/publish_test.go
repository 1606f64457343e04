package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/ptl-core/internal/ptl/policy"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	msgs      []published
	connected bool
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool { return m.connected }

func (m *mockPublisher) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *mockHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	h.channels = append(h.channels, channel)
	h.mu.Unlock()
}

type mockPoints struct {
	mu           sync.Mutex
	measurements []string
	tags         []map[string]string
}

func (p *mockPoints) WritePointWithTime(m string, tags map[string]string, _ map[string]interface{}, _ time.Time) {
	p.mu.Lock()
	p.measurements = append(p.measurements, m)
	p.tags = append(p.tags, tags)
	p.mu.Unlock()
}

type mockMetrics struct {
	mu       sync.Mutex
	sends    map[string]int
	receives map[string]int
	sizes    [4]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{sends: map[string]int{}, receives: map[string]int{}}
}

func (m *mockMetrics) ObserveSend(typ, result string) {
	m.mu.Lock()
	m.sends[typ+"/"+result]++
	m.mu.Unlock()
}

func (m *mockMetrics) ObserveReceive(typ string) {
	m.mu.Lock()
	m.receives[typ]++
	m.mu.Unlock()
}

func (m *mockMetrics) ObservePolicy(string, error) {}

func (m *mockMetrics) SetLogSizes(sent, received, pending, alarms int) {
	m.mu.Lock()
	m.sizes = [4]int{sent, received, pending, alarms}
	m.mu.Unlock()
}

func (m *mockMetrics) SetLinkConnected(string, bool) {}

func TestPublishInboundEvents(t *testing.T) {
	pub := &mockPublisher{connected: true}
	hub := &mockHub{}
	points := &mockPoints{}
	f := newFixture(t, Options{Events: pub, Hub: hub, Points: points, TopicSite: "wh1"})
	f.start(t, nil)

	l := f.link(t, addr2)
	l.emit(protocol.Message{Type: protocol.TypeKey, NodeID: "001", Channel: "1", Keys: "1,001,V", Key: "V"})
	l.emit(protocol.Message{Type: protocol.TypeAlarm, NodeID: "001", Channel: "1", Code: protocol.AlarmHardware})
	f.sync(t)

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ptl/wh1/event/2", msgs[0].topic)
	assert.Equal(t, "ptl/wh1/alarm/2", msgs[1].topic)
	assert.False(t, msgs[0].retained)

	var ev Event
	require.NoError(t, json.Unmarshal(msgs[0].payload, &ev))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "key", ev.Type)
	assert.Equal(t, "V", ev.Message.Key)

	assert.Equal(t, []string{ChannelEvents, ChannelEvents, ChannelAlarms}, hub.channels)
	assert.Equal(t, []string{MeasurementKey}, points.measurements)
	assert.Equal(t, "2", points.tags[0]["endpoint"])

	alarms, err := f.o.AlarmLog(context.Background())
	require.NoError(t, err)
	require.Len(t, alarms, 1)
	assert.Equal(t, protocol.AlarmHardware, alarms[0].Message.Code)
}

func TestPublishSkipsDisconnectedBroker(t *testing.T) {
	pub := &mockPublisher{}
	f := newFixture(t, Options{Events: pub})
	f.start(t, nil)

	f.link(t, addr1).emit(ackFor("001"))
	f.sync(t)
	assert.Empty(t, pub.messages())
}

func TestMetricsObserved(t *testing.T) {
	m := newMockMetrics()
	f := newFixture(t, Options{Metrics: m})
	f.start(t, nil)
	ctx := context.Background()

	require.True(t, f.o.Send(ctx, policy.ToUnit(1), protocol.BlankCommand()).OK())
	f.o.Send(ctx, policy.ToUnit(99), protocol.BlankCommand())
	f.link(t, addr1).emit(ackFor("001"))
	f.sync(t)
	require.NoError(t, f.o.do(ctx, func(context.Context) { f.o.updateGauges() }))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.sends["display-ack/OK"])
	assert.Equal(t, 1, m.sends["display-ack/NOT_SENT"])
	assert.Equal(t, 1, m.receives["print"])
	assert.Equal(t, [4]int{1, 1, 0, 0}, m.sizes)
}

func TestHealthEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		status *Status
		want   HealthStatus
	}{
		{"no orchestrator", nil, HealthDegraded},
		{"no endpoints", &Status{}, HealthStarting},
		{"one down", &Status{Endpoints: 2, EndpointsConnected: 1}, HealthDegraded},
		{"all up", &Status{Endpoints: 2, EndpointsConnected: 2}, HealthHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := evaluate(tt.status)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthReporterPublishesRetained(t *testing.T) {
	pub := &mockPublisher{connected: true}
	f := newFixture(t, Options{})
	f.start(t, nil)

	h := NewHealthReporter(HealthReporterConfig{Site: "wh1", Version: "1.0.0", Publisher: pub, Source: f.o})
	require.NoError(t, h.PublishNow(context.Background()))
	h.Stop()

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ptl/wh1/health", msgs[0].topic)
	assert.True(t, msgs[0].retained)

	var first, last HealthMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &first))
	require.NoError(t, json.Unmarshal(msgs[1].payload, &last))
	assert.Equal(t, HealthHealthy, first.Status)
	require.NotNil(t, first.Orchestrator)
	assert.Equal(t, 4, first.Orchestrator.Units)
	assert.Equal(t, HealthStopping, last.Status)

	lwt, err := h.LWTPayload()
	require.NoError(t, err)
	assert.Contains(t, string(lwt), `"status":"offline"`)
}
