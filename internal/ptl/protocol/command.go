package protocol

import "fmt"

// CommandType names a high-level device instruction.
type CommandType string

// Command types understood by Command.Encode.
const (
	CmdDisplay     CommandType = "display"
	CmdDisplayAck  CommandType = "display-ack"
	CmdBroadcast   CommandType = "broadcast"
	CmdOpenSession CommandType = "open-session"
	CmdVersion     CommandType = "version"
	CmdNetwork     CommandType = "network"
	CmdRelay       CommandType = "relay"
)

// Command is an instruction for a unit or a whole controller. Display is
// used by the display types, Output by relay.
type Command struct {
	Type    CommandType `json:"type"`
	Display Display     `json:"display"`
	Output  string      `json:"output,omitempty"`
}

// DisplayCommand returns an ack-seeking display command.
func DisplayCommand(d Display) Command {
	return Command{Type: CmdDisplayAck, Display: d}
}

// BlankCommand returns an ack-seeking command that clears a unit.
func BlankCommand() Command {
	return DisplayCommand(BlankDisplay())
}

// Encode builds the frames for c.
//
// nodeID and channel address the unit for display commands and are ignored
// otherwise. ids is consulted only for CmdDisplayAck.
//
// Parameters:
//   - nodeID, channel: Unit address on the controller
//   - ids: The controller's message id generator
//
// Returns:
//   - [][]byte: One frame, or two for a broadcast
//   - string: The message id of an ack-seeking display, "" otherwise
//   - error: *ValidationError for invalid fields, ErrUnknownType otherwise
func (c Command) Encode(nodeID, channel string, ids *MessageIDGenerator) ([][]byte, string, error) {
	switch c.Type {
	case CmdDisplay:
		frame, err := EncodeDisplay(nodeID, channel, c.Display)
		return one(frame, err)
	case CmdDisplayAck:
		if ids == nil {
			return nil, "", fmt.Errorf("%w: display-ack without message ids", ErrUnknownType)
		}
		msgID := ids.Next()
		frame, err := EncodeDisplayAck(msgID, nodeID, channel, c.Display)
		if err != nil {
			return nil, "", err
		}
		return [][]byte{frame}, msgID, nil
	case CmdBroadcast:
		frames, err := EncodeBroadcast(c.Display)
		return frames, "", err
	case CmdOpenSession:
		return [][]byte{EncodeOpenSession()}, "", nil
	case CmdVersion:
		return [][]byte{EncodeVersionRequest()}, "", nil
	case CmdNetwork:
		return [][]byte{EncodeNetworkRequest()}, "", nil
	case CmdRelay:
		frame, err := EncodeRelay(c.Output)
		return one(frame, err)
	default:
		return nil, "", fmt.Errorf("%w: command %q", ErrUnknownType, c.Type)
	}
}

// NeedsUnit reports whether the command addresses a single unit.
func (c Command) NeedsUnit() bool {
	return c.Type == CmdDisplay || c.Type == CmdDisplayAck
}

func one(frame []byte, err error) ([][]byte, string, error) {
	if err != nil {
		return nil, "", err
	}
	return [][]byte{frame}, "", nil
}
