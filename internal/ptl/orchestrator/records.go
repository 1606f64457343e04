package orchestrator

import (
	"time"

	"github.com/nerrad567/ptl-core/internal/ptl/link"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// SentRecord is one frame handed to a controller.
type SentRecord struct {
	Time       time.Time            `json:"time"`
	Type       protocol.CommandType `json:"type"`
	EndpointID int64                `json:"endpoint_id"`
	UnitID     int64                `json:"unit_id,omitempty"`
	MessageID  string               `json:"message_id,omitempty"`
	Data       string               `json:"data"`
	Acked      bool                 `json:"acked"`
}

// ReceivedRecord is one frame read from a controller.
type ReceivedRecord struct {
	Time       time.Time        `json:"time"`
	EndpointID int64            `json:"endpoint_id"`
	Frame      string           `json:"frame"`
	Message    protocol.Message `json:"message"`
}

// EndpointStatus describes one controller link.
type EndpointStatus struct {
	Endpoint topology.Endpoint `json:"endpoint"`
	Units    int               `json:"units"`
	Stats    link.Stats        `json:"stats"`
}

// Status summarises the orchestrator for health reporting.
type Status struct {
	Policy             string `json:"policy"`
	Units              int    `json:"units"`
	Endpoints          int    `json:"endpoints"`
	EndpointsConnected int    `json:"endpoints_connected"`
	Sent               int    `json:"sent"`
	Received           int    `json:"received"`
	PendingAck         int    `json:"pending_ack"`
	Alarms             int    `json:"alarms"`
}
