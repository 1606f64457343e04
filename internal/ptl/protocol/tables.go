package protocol

import "fmt"

// LED colours as "r,g,b" triplets understood by display units.
const (
	LEDBlack   = "0,0,0"
	LEDBlue    = "0,0,1"
	LEDGreen   = "0,1,0"
	LEDCyan    = "0,1,1"
	LEDRed     = "1,0,0"
	LEDMagenta = "1,0,1"
	LEDYellow  = "1,1,0"
	LEDWhite   = "1,1,1"
)

// Blink modes.
const (
	BlinkNone = "0"
	Blink250  = "1"
	Blink500  = "2"
	Blink1000 = "4"
)

// Arrow indicators.
const (
	ArrowsNone      = "0"
	ArrowsLeftUp    = "1"
	ArrowsRightUp   = "2"
	ArrowsLeftDown  = "3"
	ArrowsRightDown = "4"
	ArrowsLeft      = "5"
	ArrowsRight     = "6"
	ArrowsUp        = "7"
	ArrowsDown      = "8"
)

// Key sound and beep patterns.
const (
	SoundOff = "0"
	SoundOn  = "1"

	BeepNone       = "0"
	BeepOne        = "1"
	BeepShortShort = "2"
	BeepShortLong  = "4"
)

// Channels and the reserved broadcast node.
const (
	Channel1      = "1"
	Channel2      = "2"
	BroadcastNode = "252"
)

// Alarm codes carried by 0x33 telegrams.
const (
	AlarmRingBroken       = "1"
	AlarmNodeDisconnected = "2"
	AlarmHardware         = "3"
	AlarmWrongFormat      = "4"
	AlarmNotConfigured    = "5"
	AlarmTransmissionFail = "6"
)

// Ack codes carried by 0x42 replies.
const (
	AckOK               = "9"
	AckNodeDisconnected = "2"
	AckHardware         = "3"
	AckWrongFormat      = "4"
	AckNotConfigured    = "5"
	AckTransmissionFail = "6"
)

// Node status codes reported in a network distribution.
const (
	NodeStatusUnknown     = "0"
	NodeStatusInit        = "1"
	NodeStatusLocal       = "2"
	NodeStatusNormal      = "3"
	NodeStatusError       = "4"
	NodeStatusProgramming = "5"
)

// NodeType identifies the hardware behind a node id.
type NodeType int

// Node types reported in a network distribution.
const (
	NodeTypeNotConfig NodeType = iota
	NodeTypeDPA1
	NodeTypeDPAZ1
	NodeTypeDPM1
	NodeTypeDPMZ1
	NodeTypeLC1
	NodeTypeLCI2
	NodeTypeDPW1
	NodeTypeDPA2
)

var ledByIndex = [...]string{LEDBlack, LEDBlue, LEDGreen, LEDCyan, LEDRed, LEDMagenta, LEDYellow, LEDWhite}

// ColorLED maps a 0..7 colour index to its LED triplet. Out-of-range
// indexes map to black.
func ColorLED(index int) string {
	if index < 0 || index >= len(ledByIndex) {
		return LEDBlack
	}
	return ledByIndex[index]
}

// AlarmMessage describes an alarm code for the given node and channel.
func AlarmMessage(code, nodeID, channel string) string {
	switch code {
	case AlarmRingBroken:
		return fmt.Sprintf("Comunication Ring on channel %s is broken", channel)
	case AlarmNodeDisconnected:
		return fmt.Sprintf("Node %s detected as disconnected", nodeID)
	case AlarmHardware:
		return fmt.Sprintf("Node %s detected with hardware problems", nodeID)
	case AlarmWrongFormat:
		return "Frame with wrong format"
	case AlarmNotConfigured:
		return fmt.Sprintf("Alarm when trying to send data to node %s not configured in DPI interface", nodeID)
	case AlarmTransmissionFail:
		return fmt.Sprintf("Impossible to transmit the frame to node %s", nodeID)
	default:
		return fmt.Sprintf("Alarm code %s unexpected", code)
	}
}

// AckMessage describes an ack code for the given node.
func AckMessage(code, nodeID string) string {
	switch code {
	case AckOK:
		return "Transmission ok"
	case AckNodeDisconnected:
		return fmt.Sprintf("Node %s detected as disconnected", nodeID)
	case AckHardware:
		return fmt.Sprintf("Node %s detected with hardware problems", nodeID)
	case AckWrongFormat:
		return "Frame with wrong format"
	case AckNotConfigured:
		return fmt.Sprintf("Alarm when trying to send data to node %s not configured in DPI interface", nodeID)
	case AckTransmissionFail:
		return fmt.Sprintf("Impossible to transmit the frame to node %s", nodeID)
	default:
		return fmt.Sprintf("ACK code %s unexpected", code)
	}
}

// NodeStatusDescription returns the description of a node status code, or
// "" for unknown codes.
func NodeStatusDescription(status string) string {
	switch status {
	case NodeStatusUnknown:
		return "Unknown"
	case NodeStatusInit:
		return "Node initializing"
	case NodeStatusLocal:
		return "Node in local mode"
	case NodeStatusNormal:
		return "Node in normal state"
	case NodeStatusError:
		return "Node in Error state"
	case NodeStatusProgramming:
		return "Node in programming state"
	default:
		return ""
	}
}

type nodeTypeInfo struct {
	name string
	desc string
}

var nodeTypes = map[NodeType]nodeTypeInfo{
	NodeTypeNotConfig: {"NotConfig", "Node ID not configured"},
	NodeTypeDPA1:      {"DPA1", "DPA1: Display 4 digits 14seg"},
	NodeTypeDPAZ1:     {"DPAZ1", "DPAZ1: Display 12 digits 14seg"},
	NodeTypeDPM1:      {"DPM1", "DPM1: Display 4 digits dotmatrix"},
	NodeTypeDPMZ1:     {"DPMZ1", "DPMZ1: Display 12 digits dotmatrix"},
	NodeTypeLC1:       {"LC1", "LC1: Display low cost 1 led 1 pushbutton"},
	NodeTypeLCI2:      {"LCI2/LCIN1", "LCI2/LCIN1: Interface DP/LC"},
	NodeTypeDPW1:      {"DPW1", "DPW1: Interface DP/RS232"},
	NodeTypeDPA2:      {"DPA2", "DPA2: Display 2 digits 14seg"},
}

// Name returns the short hardware name, or "" for unknown types.
func (t NodeType) Name() string { return nodeTypes[t].name }

// Description returns the long hardware description, or "" for unknown types.
func (t NodeType) Description() string { return nodeTypes[t].desc }

// IsZone reports whether the type is a wide display used for zone prompts.
func (t NodeType) IsZone() bool {
	return t == NodeTypeDPAZ1 || t == NodeTypeDPMZ1
}

// IsInteractive reports whether the type has a light and a confirm key.
// Interface boxes are not interactive.
func (t NodeType) IsInteractive() bool {
	return t != NodeTypeDPW1 && t != NodeTypeLCI2
}
