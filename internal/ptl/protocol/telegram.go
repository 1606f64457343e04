package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame delimiters.
const (
	STX byte = 0x02
	ETX byte = 0x03
	US  byte = 0x05
)

// MessageType is the telegram type byte that follows STX.
type MessageType byte

// Telegram types.
const (
	TypeVersion    MessageType = 0x31
	TypeOpen       MessageType = 0x32
	TypeAlarm      MessageType = 0x33
	TypeDisplay    MessageType = 0x34
	TypeRelay      MessageType = 0x35
	TypeKey        MessageType = 0x36
	TypeNetwork    MessageType = 0x39
	TypeDisplayAck MessageType = 0x42
)

// String returns the short name used in logs, metrics and event payloads.
func (t MessageType) String() string {
	switch t {
	case TypeVersion:
		return "version"
	case TypeOpen:
		return "sessions"
	case TypeAlarm:
		return "alarm"
	case TypeDisplay:
		return "display"
	case TypeRelay:
		return "relay"
	case TypeKey:
		return "key"
	case TypeNetwork:
		return "network"
	case TypeDisplayAck:
		return "print"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// Message is one parsed inbound telegram. Only the fields relevant to its
// Type are populated.
type Message struct {
	Type MessageType `json:"type"`

	// Frame is the telegram without STX and ETX.
	Frame string `json:"frame"`

	// Value is a human-readable summary of the telegram.
	Value string `json:"value"`

	NodeID    string `json:"node_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	MessageID string `json:"message_id,omitempty"`

	// Code is the alarm code for alarms and the ack type for display acks.
	Code        string `json:"code,omitempty"`
	CodeMessage string `json:"code_message,omitempty"`

	// Keys is the raw comma-joined key field of a key-pressed telegram and
	// Key the current key.
	Keys string `json:"keys,omitempty"`
	Key  string `json:"key,omitempty"`

	Channels []NetworkChannel `json:"channels,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// IsAckOK reports whether the message is a display ack confirming delivery.
func (m Message) IsAckOK() bool {
	return m.Type == TypeDisplayAck && m.Code == AckOK
}

// KeyEvent returns the normalised key press carried by a key-pressed
// telegram. The boolean is false for every other type.
func (m Message) KeyEvent() (KeyEvent, bool) {
	if m.Type != TypeKey {
		return KeyEvent{}, false
	}
	return KeyEvent{
		NodeID:    m.NodeID,
		ChannelID: m.Channel,
		KeysMsg:   m.Keys,
		Keys:      ParseKeys(m.Keys),
	}, true
}

// KeyEvent is a button press on a unit.
type KeyEvent struct {
	NodeID    string   `json:"node_id"`
	ChannelID string   `json:"channel_id"`
	KeysMsg   string   `json:"keys_msg"`
	Keys      []string `json:"keys"`
}

// FirstKey returns the first pressed key, or "" when none is present.
func (k KeyEvent) FirstKey() string {
	if len(k.Keys) == 0 {
		return ""
	}
	return k.Keys[0]
}

// NetworkChannel is one channel of a network distribution reply.
type NetworkChannel struct {
	Channel  string        `json:"channel"`
	NumNodes int           `json:"num_nodes"`
	Nodes    []NetworkNode `json:"nodes"`
}

// NetworkNode is one node record of a network distribution reply.
type NetworkNode struct {
	NodeID     string   `json:"node_id"`
	Status     string   `json:"status"`
	StatusDesc string   `json:"status_desc"`
	Type       NodeType `json:"type"`
	TypeDesc   string   `json:"type_desc"`
}

// Decode splits an accumulated byte stream into complete frames.
//
// The stream is split on STX. A segment containing ETX yields the bytes before
// the first ETX as a frame. The final segment without ETX is returned as the
// remainder with STX restored, and any bytes after the ETX of the final
// segment are returned as the remainder as-is. Non-final segments without ETX
// are discarded. The first segment is accepted even without a leading STX.
//
// Parameters:
//   - data: Unconsumed bytes from the previous call followed by the new chunk
//
// Returns:
//   - [][]byte: Complete frames without STX and ETX, in arrival order
//   - []byte: Bytes to prepend to the next chunk (nil when none)
func Decode(data []byte) (frames [][]byte, rest []byte) {
	if len(data) == 0 {
		return nil, nil
	}

	segments := bytes.Split(data, []byte{STX})
	last := len(segments) - 1

	for i, seg := range segments {
		if len(seg) == 0 {
			// A trailing STX starts a frame whose body has not arrived yet.
			if i == last && i > 0 {
				rest = []byte{STX}
			}
			continue
		}

		end := bytes.IndexByte(seg, ETX)
		if end == -1 {
			if i == last {
				rest = make([]byte, 0, len(seg)+1)
				rest = append(rest, STX)
				rest = append(rest, seg...)
			}
			continue
		}

		frame := make([]byte, end)
		copy(frame, seg[:end])
		frames = append(frames, frame)

		if i == last && end < len(seg)-1 {
			rest = append([]byte(nil), seg[end+1:]...)
		}
	}

	return frames, rest
}

// Parse converts one frame (without STX and ETX) into a Message.
//
// Parameters:
//   - frame: A frame as returned by Decode
//
// Returns:
//   - Message: The parsed telegram with ReceivedAt set to now
//   - error: *DecodeError for malformed frames, ErrUnknownType for types a
//     controller never sends
func Parse(frame []byte) (Message, error) {
	if len(frame) == 0 {
		return Message{}, &DecodeError{Reason: "Error, empty frame"}
	}

	msg := string(frame)
	var (
		out Message
		err error
	)

	switch MessageType(frame[0]) {
	case TypeVersion:
		out, err = parseVersion(msg)
	case TypeOpen:
		out, err = parseOpenSession(msg)
	case TypeAlarm:
		out, err = parseAlarm(msg)
	case TypeDisplayAck:
		out, err = parseDisplayAck(msg)
	case TypeKey:
		out, err = parseKeyPressed(msg)
	case TypeNetwork:
		out, err = parseNetwork(msg)
	default:
		return Message{}, fmt.Errorf("%w: message type 0x%02x", ErrUnknownType, frame[0])
	}
	if err != nil {
		return Message{}, err
	}

	out.Frame = msg
	out.ReceivedAt = time.Now()
	return out, nil
}

// ParseKeys returns the pressed keys of a key field such as "1,2,V,+". The
// first two tokens echo the channel and node and are dropped.
func ParseKeys(keysMsg string) []string {
	if keysMsg == "" {
		return nil
	}
	tokens := strings.Split(keysMsg, ",")
	if len(tokens) <= 2 { //nolint:mnd // channel and node echoes
		return nil
	}
	keys := make([]string, len(tokens)-2) //nolint:mnd // channel and node echoes
	copy(keys, tokens[2:])
	return keys
}

// checkFrame validates the separator positions of a frame. Parse has already
// matched the type byte. Positions in error texts are 1-based.
func checkFrame(msg, label string, separators ...int) error {
	for _, pos := range separators {
		if msg[pos] != US {
			return &DecodeError{
				Frame:  msg,
				Reason: fmt.Sprintf("Error, %s %s must have a separator in byte %d", label, msg, pos+1),
			}
		}
	}
	return nil
}

func parseVersion(msg string) (Message, error) {
	if len(msg) != 5 { //nolint:mnd // fixed frame length
		return Message{}, &DecodeError{Frame: msg, Reason: fmt.Sprintf("Error, version response %s must have 5 bytes", msg)}
	}
	if err := checkFrame(msg, "version response", 1); err != nil {
		return Message{}, err
	}
	return Message{Type: TypeVersion, Value: msg[2:5]}, nil
}

func parseOpenSession(msg string) (Message, error) {
	if len(msg) != 3 { //nolint:mnd // fixed frame length
		return Message{}, &DecodeError{Frame: msg, Reason: fmt.Sprintf("Error, open session response %s must have 3 bytes", msg)}
	}
	if err := checkFrame(msg, "open session response", 1); err != nil {
		return Message{}, err
	}
	return Message{Type: TypeOpen, Value: msg[2:3]}, nil
}

func parseAlarm(msg string) (Message, error) {
	if len(msg) != 9 { //nolint:mnd // fixed frame length
		return Message{}, &DecodeError{Frame: msg, Reason: fmt.Sprintf("Error, alarm %s must have 9 bytes", msg)}
	}
	if err := checkFrame(msg, "alarm", 1, 5, 7); err != nil {
		return Message{}, err
	}

	out := Message{
		Type:    TypeAlarm,
		NodeID:  msg[2:5],
		Channel: msg[6:7],
		Code:    msg[8:9],
	}
	out.CodeMessage = AlarmMessage(out.Code, out.NodeID, out.Channel)
	out.Value = fmt.Sprintf("Node %s, channel %s, alarm code %s, %s", out.NodeID, out.Channel, out.Code, out.CodeMessage)
	return out, nil
}

func parseDisplayAck(msg string) (Message, error) {
	if len(msg) != 13 { //nolint:mnd // fixed frame length
		return Message{}, &DecodeError{Frame: msg, Reason: fmt.Sprintf("Error, print response %s must have 13 bytes", msg)}
	}
	if err := checkFrame(msg, "print response", 1, 5, 9, 11); err != nil {
		return Message{}, err
	}

	out := Message{
		Type:      TypeDisplayAck,
		MessageID: msg[2:5],
		NodeID:    msg[6:9],
		Channel:   msg[10:11],
		Code:      msg[12:13],
	}
	out.CodeMessage = AckMessage(out.Code, out.NodeID)
	out.Value = fmt.Sprintf("Message %s, Node %s, channel %s, ack type %s,  %s",
		out.MessageID, out.NodeID, out.Channel, out.Code, out.CodeMessage)
	return out, nil
}

func parseKeyPressed(msg string) (Message, error) {
	if len(msg) <= 9 || len(msg) > 15 { //nolint:mnd // frame length bounds
		return Message{}, &DecodeError{
			Frame:  msg,
			Reason: fmt.Sprintf("Error, key pressed %s must have a length between 9 an 15 bytes", msg),
		}
	}
	if err := checkFrame(msg, "key pressed", 1, 5, 7); err != nil {
		return Message{}, err
	}

	out := Message{
		Type:    TypeKey,
		NodeID:  msg[2:5],
		Channel: msg[6:7],
		Keys:    msg[8:],
	}
	if keys := ParseKeys(out.Keys); len(keys) > 0 {
		out.Key = keys[len(keys)-1]
	}
	out.Value = fmt.Sprintf("Node %s, channel %s, keys %s, key %s", out.NodeID, out.Channel, out.Keys, out.Key)
	return out, nil
}

func parseNetwork(msg string) (Message, error) {
	if len(msg) <= 4 { //nolint:mnd // minimum frame length
		return Message{}, &DecodeError{
			Frame:  msg,
			Reason: fmt.Sprintf("Error, network distribution %s must have a minumum length of 4 bytes", msg),
		}
	}
	if err := checkFrame(msg, "network distribution", 1); err != nil {
		return Message{}, err
	}

	parts := strings.Split(msg[2:], string(US))
	var channels []NetworkChannel
	nodes := 0

	for i := 0; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}

		header := strings.Split(parts[i], ",")
		if len(header) != 2 { //nolint:mnd // channel id and node count
			return Message{}, &DecodeError{
				Frame:  msg,
				Reason: fmt.Sprintf("Error, processing network distribution, expected channel with id and total nodes and found %s", parts[i]),
			}
		}
		for _, c := range channels {
			if c.Channel == header[0] {
				return Message{}, &DecodeError{
					Frame:  msg,
					Reason: fmt.Sprintf("Error, processing network distribution, current channel is repeted %s", parts[i]),
				}
			}
		}
		count, err := strconv.Atoi(header[1])
		if err != nil || count < 0 {
			return Message{}, &DecodeError{
				Frame:  msg,
				Reason: fmt.Sprintf("Error, processing network distribution, invalid node count in %s", parts[i]),
			}
		}
		// The count is device input; it cannot exceed the fields that follow.
		if count > len(parts)-i-1 {
			return Message{}, &DecodeError{
				Frame: msg,
				Reason: fmt.Sprintf("Error, processing network distribution, channel %s announces %d nodes and the frame carries %d fields",
					header[0], count, len(parts)-i-1),
			}
		}

		channel := NetworkChannel{Channel: header[0], NumNodes: count, Nodes: make([]NetworkNode, 0, count)}
		for j := 0; j < count; j++ {
			idx := i + j + 1
			var fields []string
			if idx < len(parts) {
				fields = strings.Split(parts[idx], ",")
			}
			var nodeType int
			if len(fields) == 3 { //nolint:mnd // id, status and type
				nodeType, err = strconv.Atoi(fields[2])
			}
			if len(fields) != 3 || err != nil { //nolint:mnd // id, status and type
				found := ""
				if idx < len(parts) {
					found = parts[idx]
				}
				return Message{}, &DecodeError{
					Frame: msg,
					Reason: fmt.Sprintf("Error, processing channel %s and node %d, current node has invalid format %s",
						header[0], j+1, found),
				}
			}
			t := NodeType(nodeType)
			channel.Nodes = append(channel.Nodes, NetworkNode{
				NodeID:     fields[0],
				Status:     fields[1],
				StatusDesc: NodeStatusDescription(fields[1]),
				Type:       t,
				TypeDesc:   t.Description(),
			})
		}

		i += count
		nodes += count
		channels = append(channels, channel)
	}

	return Message{
		Type:     TypeNetwork,
		Channels: channels,
		Value:    fmt.Sprintf("channels %d, nodes %d", len(channels), nodes),
	}, nil
}
