package protocol

import (
	"strconv"
)

const maxDisplayLen = 31

// Display holds the rendering fields shared by display-print telegrams.
type Display struct {
	Text   string `json:"text"`
	LED    string `json:"led"`
	Blink  string `json:"blink"`
	Arrows string `json:"arrows"`
	Sound  string `json:"sound"`
	Beep   string `json:"beep"`
}

// NewDisplay returns a steady display with the given text and LED colour and
// no arrows, key sound or beep.
func NewDisplay(text, led string) Display {
	return Display{
		Text:   text,
		LED:    led,
		Blink:  BlinkNone,
		Arrows: ArrowsNone,
		Sound:  SoundOff,
		Beep:   BeepNone,
	}
}

// BlankDisplay clears a unit: a single space with the LED off.
func BlankDisplay() Display {
	return NewDisplay(" ", LEDBlack)
}

// EncodeVersionRequest builds a version query.
func EncodeVersionRequest() []byte {
	return []byte{STX, byte(TypeVersion), US, ETX}
}

// EncodeOpenSession builds an open-session request.
func EncodeOpenSession() []byte {
	return []byte{STX, byte(TypeOpen), US, ETX}
}

// EncodeNetworkRequest builds a network distribution query.
func EncodeNetworkRequest() []byte {
	return []byte{STX, byte(TypeNetwork), US, ETX}
}

// EncodeDisplay builds a display-print telegram without delivery ack.
//
// Parameters:
//   - nodeID: Three digit node id, "001" to "255"
//   - channel: "1" or "2"
//   - d: Text and indicators; an empty text is sent as a single space
//
// Returns:
//   - []byte: The framed telegram
//   - error: *ValidationError naming the first invalid field
func EncodeDisplay(nodeID, channel string, d Display) ([]byte, error) {
	if err := validateAddress(nodeID, channel); err != nil {
		return nil, err
	}
	body, err := displayBody(d)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 16+len(body)) //nolint:mnd // header and delimiters
	buf = append(buf, STX, byte(TypeDisplay), US)
	buf = append(buf, nodeID...)
	buf = append(buf, US)
	buf = append(buf, channel...)
	buf = append(buf, US)
	buf = append(buf, body...)
	return append(buf, ETX), nil
}

// EncodeDisplayAck builds a display-print telegram that the controller
// answers with a 0x42 ack carrying messageID.
//
// Parameters:
//   - messageID: Three digit message id from a MessageIDGenerator
//   - nodeID: Three digit node id, "001" to "255"
//   - channel: "1" or "2"
//   - d: Text and indicators
//
// Returns:
//   - []byte: The framed telegram
//   - error: *ValidationError naming the first invalid field
func EncodeDisplayAck(messageID, nodeID, channel string, d Display) ([]byte, error) {
	if !isNodeID(messageID) {
		return nil, invalid("messageId", messageID)
	}
	if err := validateAddress(nodeID, channel); err != nil {
		return nil, err
	}
	body, err := displayBody(d)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 20+len(body)) //nolint:mnd // header and delimiters
	buf = append(buf, STX, byte(TypeDisplayAck), US)
	buf = append(buf, messageID...)
	buf = append(buf, US)
	buf = append(buf, nodeID...)
	buf = append(buf, US)
	buf = append(buf, channel...)
	buf = append(buf, US)
	buf = append(buf, body...)
	return append(buf, ETX), nil
}

// EncodeBroadcast builds the two display-print telegrams that address every
// node on channel 1 and channel 2 through the broadcast node id.
func EncodeBroadcast(d Display) ([][]byte, error) {
	frames := make([][]byte, 0, 2) //nolint:mnd // two channels
	for _, ch := range []string{Channel1, Channel2} {
		f, err := EncodeDisplay(BroadcastNode, ch, d)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// EncodeRelay builds a relay output telegram. output is "d,d,d" with each
// digit 0 or 1.
func EncodeRelay(output string) ([]byte, error) {
	if !isTriplet(output) {
		return nil, invalid("output", output)
	}
	buf := make([]byte, 0, 4+len(output)) //nolint:mnd // header and delimiters
	buf = append(buf, STX, byte(TypeRelay), US)
	buf = append(buf, output...)
	return append(buf, ETX), nil
}

func validateAddress(nodeID, channel string) error {
	if !isNodeID(nodeID) {
		return invalid("nodeId", nodeID)
	}
	if channel != Channel1 && channel != Channel2 {
		return invalid("channelNumber", channel)
	}
	return nil
}

func displayBody(d Display) (string, error) {
	if len(d.Text) > maxDisplayLen {
		e := invalid("displayData", d.Text)
		e.msg = "Error: displayData " + d.Text + " is invalid, must have less than 31 characters"
		return "", e
	}
	if !isTriplet(d.LED) {
		return "", invalid("ledLight", d.LED)
	}
	if !oneOf(d.Blink, "0124") {
		return "", invalid("ledBlinkMode", d.Blink)
	}
	if !oneOf(d.Arrows, "012345678") {
		return "", invalid("arrows", d.Arrows)
	}
	if !oneOf(d.Sound, "01") {
		return "", invalid("keySound", d.Sound)
	}
	if !oneOf(d.Beep, "0124") {
		return "", invalid("makeBeep", d.Beep)
	}

	text := d.Text
	if text == "" {
		text = " "
	}
	return text + "," + d.LED + "," + d.Blink + "," + d.Arrows + "," + d.Sound + "," + d.Beep, nil
}

// isNodeID accepts exactly three digits with a value of at most 255.
func isNodeID(s string) bool {
	if len(s) != 3 { //nolint:mnd // fixed width id
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(s)
	return err == nil && n <= 255
}

// isTriplet accepts "d,d,d" with each digit 0 or 1.
func isTriplet(s string) bool {
	if len(s) != 5 { //nolint:mnd // three digits and two commas
		return false
	}
	return oneOf(s[0:1], "01") && s[1] == ',' &&
		oneOf(s[2:3], "01") && s[3] == ',' &&
		oneOf(s[4:5], "01")
}

// oneOf reports whether s is a single character from allowed.
func oneOf(s, allowed string) bool {
	if len(s) != 1 {
		return false
	}
	for i := 0; i < len(allowed); i++ {
		if s[0] == allowed[i] {
			return true
		}
	}
	return false
}
