package orchestrator

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/ptl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// DefaultTopicSite is used in MQTT topics when Options.TopicSite is empty.
const DefaultTopicSite = "default"

// Hub channels used for WebSocket broadcasts.
const (
	ChannelEvents = "ptl.events"
	ChannelAlarms = "ptl.alarms"
)

// InfluxDB measurements.
const (
	MeasurementKey = "ptl_key"
	MeasurementAck = "ptl_ack"
)

// EventPublisher publishes device events, typically the MQTT client.
type EventPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Broadcaster pushes events to live subscribers, typically the WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// PointWriter records time-series points, typically the InfluxDB client.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time)
}

// Metrics receives counters and gauges, typically the Prometheus collector.
type Metrics interface {
	ObserveSend(commandType string, result string)
	ObserveReceive(messageType string)
	ObservePolicy(action string, err error)
	SetLogSizes(sent, received, pending, alarms int)
	SetLinkConnected(endpoint string, connected bool)
}

// Event is the payload published for every inbound telegram.
type Event struct {
	ID         string           `json:"id"`
	Time       time.Time        `json:"time"`
	Site       string           `json:"site"`
	EndpointID int64            `json:"endpoint_id"`
	Type       string           `json:"type"`
	Message    protocol.Message `json:"message"`
}

// EventTopic returns the MQTT topic for events from one controller.
func EventTopic(site string, endpointID int64) string {
	return mqtt.Topics{Site: site}.Event(endpointID)
}

// AlarmTopic returns the MQTT topic for alarms from one controller.
func AlarmTopic(site string, endpointID int64) string {
	return mqtt.Topics{Site: site}.Alarm(endpointID)
}

// HealthTopic returns the MQTT topic for health status.
func HealthTopic(site string) string {
	return mqtt.Topics{Site: site}.Health()
}

func (o *Orchestrator) site() string {
	if o.opts.TopicSite == "" {
		return DefaultTopicSite
	}
	return o.opts.TopicSite
}

// publish fans a received telegram out to MQTT, the hub and InfluxDB.
func (o *Orchestrator) publish(rec ReceivedRecord) {
	ev := Event{
		ID:         uuid.NewString(),
		Time:       rec.Time,
		Site:       o.site(),
		EndpointID: rec.EndpointID,
		Type:       rec.Message.Type.String(),
		Message:    rec.Message,
	}
	alarm := rec.Message.Type == protocol.TypeAlarm

	if o.opts.Hub != nil {
		o.opts.Hub.Broadcast(ChannelEvents, ev)
		if alarm {
			o.opts.Hub.Broadcast(ChannelAlarms, ev)
		}
	}

	if o.opts.Events != nil && o.opts.Events.IsConnected() {
		payload, err := json.Marshal(ev)
		if err != nil {
			o.logError("encoding event failed", "error", err)
		} else {
			topic := EventTopic(ev.Site, ev.EndpointID)
			if alarm {
				topic = AlarmTopic(ev.Site, ev.EndpointID)
			}
			if err := o.opts.Events.Publish(topic, payload, 1, false); err != nil {
				o.logWarn("publishing event failed", "topic", topic, "error", err)
			}
		}
	}

	if o.opts.Points == nil {
		return
	}
	tags := map[string]string{
		"site":     ev.Site,
		"endpoint": strconv.FormatInt(ev.EndpointID, 10),
		"node":     rec.Message.NodeID,
		"channel":  rec.Message.Channel,
	}
	switch rec.Message.Type {
	case protocol.TypeKey:
		o.opts.Points.WritePointWithTime(MeasurementKey, tags,
			map[string]interface{}{"key": rec.Message.Key, "keys": rec.Message.Keys}, rec.Time)
	case protocol.TypeDisplayAck:
		o.opts.Points.WritePointWithTime(MeasurementAck, tags,
			map[string]interface{}{"code": rec.Message.Code, "ok": rec.Message.IsAckOK()}, rec.Time)
	}
}

func (o *Orchestrator) observeSend(typ protocol.CommandType, result link.Result) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveSend(string(typ), string(result))
	}
}

func (o *Orchestrator) observeReceive(typ protocol.MessageType) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObserveReceive(typ.String())
	}
}

func (o *Orchestrator) observePolicy(action string, err error) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.ObservePolicy(action, err)
	}
}

func (o *Orchestrator) setLinkConnected(l Link, connected bool) {
	if o.opts.Metrics != nil {
		o.opts.Metrics.SetLinkConnected(l.Addr(), connected)
	}
}

// updateGauges refreshes the log size and connectivity gauges.
func (o *Orchestrator) updateGauges() {
	if o.opts.Metrics == nil {
		return
	}
	o.opts.Metrics.SetLogSizes(o.sent.len(), o.received.len(), o.pending.len(), o.alarms.len())
	for addr, l := range o.linksByAddr {
		o.opts.Metrics.SetLinkConnected(addr, l.IsConnected())
	}
}
