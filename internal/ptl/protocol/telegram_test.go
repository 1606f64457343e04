package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		want     []string
		wantRest string
	}{
		{
			name: "version",
			data: "\x02\x31\x051.0\x03",
			want: []string{"\x31\x051.0"},
		},
		{
			name: "open session",
			data: "\x02\x32\x051\x03",
			want: []string{"\x32\x051"},
		},
		{
			name: "alarm",
			data: "\x02\x33\x05001\x051\x051\x03",
			want: []string{"\x33\x05001\x051\x051"},
		},
		{
			name: "key pressed",
			data: "\x02\x36\x05001\x051\x051,2,V\x03",
			want: []string{"\x36\x05001\x051\x051,2,V"},
		},
		{
			name: "two equal frames",
			data: "\x02\x31\x051.0\x03\x02\x31\x051.0\x03",
			want: []string{"\x31\x051.0", "\x31\x051.0"},
		},
		{
			name: "three frames",
			data: "\x02\x31\x051.0\x03\x02\x32\x051\x03\x02\x36\x05001\x051\x051,2,V\x03",
			want: []string{"\x31\x051.0", "\x32\x051", "\x36\x05001\x051\x051,2,V"},
		},
		{
			name:     "partial frame only",
			data:     "\x02\x31\x051.0",
			wantRest: "\x02\x31\x051.0",
		},
		{
			name:     "two frames and a partial one",
			data:     "\x02\x31\x051.0\x03\x02\x32\x051\x03\x02\x36\x05001\x051\x051,2,V",
			want:     []string{"\x31\x051.0", "\x32\x051"},
			wantRest: "\x02\x36\x05001\x051\x051,2,V",
		},
		{
			name: "missing leading STX",
			data: "\x31\x051.0\x03",
			want: []string{"\x31\x051.0"},
		},
		{
			name:     "frame without STX after the last ETX is kept",
			data:     "\x02\x31\x051.0\x03\x02\x32\x051\x03\x36\x05001\x051\x051,2,V\x03",
			want:     []string{"\x31\x051.0", "\x32\x051"},
			wantRest: "\x36\x05001\x051\x051,2,V\x03",
		},
		{
			name: "second ETX in a middle segment is cut",
			data: "\x02\x31\x051.0\x03\x32\x051\x03\x02\x36\x05001\x051\x051,2,V\x03",
			want: []string{"\x31\x051.0", "\x36\x05001\x051\x051,2,V"},
		},
		{
			name: "leading garbage is discarded",
			data: "1341342fgsdrfgs\x02\x36\x05001\x051\x051,2,V\x03",
			want: []string{"\x36\x05001\x051\x051,2,V"},
		},
		{
			name: "garbage between frames is discarded",
			data: "\x36\x05001\x051\x051,2,V\x031341342fgsdrfgs\x02\x36\x05001\x051\x051,2,V\x03",
			want: []string{"\x36\x05001\x051\x051,2,V", "\x36\x05001\x051\x051,2,V"},
		},
		{
			name:     "trailing bytes are kept",
			data:     "\x02\x36\x05001\x051\x051,2,V\x031341342fgsdrfgs",
			want:     []string{"\x36\x05001\x051\x051,2,V"},
			wantRest: "1341342fgsdrfgs",
		},
		{
			name:     "trailing STX is kept",
			data:     "\x02\x31\x051.0\x03\x02",
			want:     []string{"\x31\x051.0"},
			wantRest: "\x02",
		},
		{
			name: "empty input",
			data: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest := Decode([]byte(tt.data))

			got := make([]string, 0, len(frames))
			for _, f := range frames {
				got = append(got, string(f))
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Decode() frames = %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if string(rest) != tt.wantRest {
				t.Errorf("Decode() rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestDecodeSplitAtEveryBoundary(t *testing.T) {
	stream := []byte("\x02\x42\x05250\x05001\x052\x059\x03")

	for cut := 0; cut <= len(stream); cut++ {
		var rest []byte
		var frames [][]byte

		f, r := Decode(append(rest, stream[:cut]...))
		frames = append(frames, f...)
		rest = r
		f, r = Decode(append(rest, stream[cut:]...))
		frames = append(frames, f...)

		if len(frames) != 1 {
			t.Fatalf("cut %d: got %d frames %q, want 1", cut, len(frames), frames)
		}
		if string(frames[0]) != string(stream[1:len(stream)-1]) {
			t.Errorf("cut %d: frame = %q", cut, frames[0])
		}
		if len(r) != 0 {
			t.Errorf("cut %d: rest = %q, want empty", cut, r)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Message
		wantErr string
	}{
		{
			name:  "version",
			frame: "\x31\x051.0",
			want:  Message{Type: TypeVersion, Value: "1.0"},
		},
		{
			name:  "open session",
			frame: "\x32\x054",
			want:  Message{Type: TypeOpen, Value: "4"},
		},
		{
			name:  "alarm node disconnected",
			frame: "\x33\x05003\x051\x052",
			want: Message{
				Type:        TypeAlarm,
				Value:       "Node 003, channel 1, alarm code 2, Node 003 detected as disconnected",
				NodeID:      "003",
				Channel:     "1",
				Code:        "2",
				CodeMessage: "Node 003 detected as disconnected",
			},
		},
		{
			name:  "alarm unknown code",
			frame: "\x33\x05003\x051\x057",
			want: Message{
				Type:        TypeAlarm,
				Value:       "Node 003, channel 1, alarm code 7, Alarm code 7 unexpected",
				NodeID:      "003",
				Channel:     "1",
				Code:        "7",
				CodeMessage: "Alarm code 7 unexpected",
			},
		},
		{
			name:  "display ack ok",
			frame: "\x42\x05250\x05001\x052\x059",
			want: Message{
				Type:        TypeDisplayAck,
				Value:       "Message 250, Node 001, channel 2, ack type 9,  Transmission ok",
				MessageID:   "250",
				NodeID:      "001",
				Channel:     "2",
				Code:        "9",
				CodeMessage: "Transmission ok",
			},
		},
		{
			name:  "key pressed",
			frame: "\x36\x05001\x052\x051,2,V",
			want: Message{
				Type:    TypeKey,
				Value:   "Node 001, channel 2, keys 1,2,V, key V",
				NodeID:  "001",
				Channel: "2",
				Keys:    "1,2,V",
				Key:     "V",
			},
		},
		{
			name:  "key pressed two keys",
			frame: "\x36\x05001\x052\x051,2,V,+",
			want: Message{
				Type:    TypeKey,
				Value:   "Node 001, channel 2, keys 1,2,V,+, key +",
				NodeID:  "001",
				Channel: "2",
				Keys:    "1,2,V,+",
				Key:     "+",
			},
		},
		{
			name:    "version too short",
			frame:   "\x31\x051.",
			wantErr: "Error, version response \x31\x051. must have 5 bytes",
		},
		{
			name:    "open session missing separator",
			frame:   "\x32\x064",
			wantErr: "Error, open session response \x32\x064 must have a separator in byte 2",
		},
		{
			name:    "alarm wrong length",
			frame:   "\x33\x05001\x05001\x051\x051",
			wantErr: "Error, alarm \x33\x05001\x05001\x051\x051 must have 9 bytes",
		},
		{
			name:    "alarm separator",
			frame:   "\x33\x05003-1\x052",
			wantErr: "Error, alarm \x33\x05003-1\x052 must have a separator in byte 6",
		},
		{
			name:    "display ack separator",
			frame:   "\x42\x05250\x05001\x052-9",
			wantErr: "Error, print response \x42\x05250\x05001\x052-9 must have a separator in byte 12",
		},
		{
			name:    "key pressed too short",
			frame:   "\x36\x05001\x052\x05V",
			wantErr: "Error, key pressed \x36\x05001\x052\x05V must have a length between 9 an 15 bytes",
		},
		{
			name:    "network too short",
			frame:   "\x39\x051,",
			wantErr: "Error, network distribution \x39\x051, must have a minumum length of 4 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.frame))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Parse() expected error %q", tt.wantErr)
				}
				if err.Error() != tt.wantErr {
					t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
				}
				if !errors.Is(err, ErrDecode) {
					t.Errorf("error %v does not wrap ErrDecode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if got.ReceivedAt.IsZero() {
				t.Error("ReceivedAt not set")
			}
			if got.Frame != tt.frame {
				t.Errorf("Frame = %q, want %q", got.Frame, tt.frame)
			}
			got.ReceivedAt = tt.want.ReceivedAt
			got.Frame = ""
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse([]byte("\x34\x05001\x051\x05 ,0,0,0,0,0,0,0"))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Parse() error = %v, want ErrUnknownType", err)
	}
	if _, err := Parse(nil); !errors.Is(err, ErrDecode) {
		t.Errorf("Parse(nil) error = %v, want ErrDecode", err)
	}
}

func TestParseNetwork(t *testing.T) {
	frame := "\x39\x051,4\x051,3,1\x052,3,1\x053,3,1\x054,3,1\x052,2\x05001,3,1\x05002,3,1\x05"

	got, err := Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	node := func(id string) NetworkNode {
		return NetworkNode{
			NodeID:     id,
			Status:     NodeStatusNormal,
			StatusDesc: "Node in normal state",
			Type:       NodeTypeDPA1,
			TypeDesc:   "DPA1: Display 4 digits 14seg",
		}
	}
	want := []NetworkChannel{
		{Channel: "1", NumNodes: 4, Nodes: []NetworkNode{node("1"), node("2"), node("3"), node("4")}},
		{Channel: "2", NumNodes: 2, Nodes: []NetworkNode{node("001"), node("002")}},
	}
	if !reflect.DeepEqual(got.Channels, want) {
		t.Errorf("Channels = %+v, want %+v", got.Channels, want)
	}
	if got.Type != TypeNetwork {
		t.Errorf("Type = %v, want network", got.Type)
	}
	if got.Value != "channels 2, nodes 6" {
		t.Errorf("Value = %q", got.Value)
	}
}

func TestParseNetworkErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr string
	}{
		{
			name:    "channel without count",
			frame:   "\x39\x051\x051,3,1",
			wantErr: "Error, processing network distribution, expected channel with id and total nodes and found 1",
		},
		{
			name:    "repeated channel",
			frame:   "\x39\x051,1\x051,3,1\x051,1\x052,3,1",
			wantErr: "Error, processing network distribution, current channel is repeted 1,1",
		},
		{
			name:    "node with two fields",
			frame:   "\x39\x051,2\x051,3,1\x052,3",
			wantErr: "Error, processing channel 1 and node 2, current node has invalid format 2,3",
		},
		{
			name:    "count beyond the frame",
			frame:   "\x39\x051,3\x051,3,1\x052,3,1",
			wantErr: "Error, processing network distribution, channel 1 announces 3 nodes and the frame carries 2 fields",
		},
		{
			name:    "oversized count",
			frame:   "\x39\x051,99999999999999",
			wantErr: "Error, processing network distribution, channel 1 announces 99999999999999 nodes and the frame carries 0 fields",
		},
		{
			name:    "count reaching a trailing empty field",
			frame:   "\x39\x051,2\x051,3,1\x05",
			wantErr: "Error, processing channel 1 and node 2, current node has invalid format ",
		},
		{
			name:    "count not numeric",
			frame:   "\x39\x051,x\x051,3,1",
			wantErr: "Error, processing network distribution, invalid node count in 1,x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.frame))
			if err == nil {
				t.Fatalf("Parse() expected error %q", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestKeyEvent(t *testing.T) {
	msg, err := Parse([]byte("\x36\x05007\x051\x051,7,F,+"))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}

	ev, ok := msg.KeyEvent()
	if !ok {
		t.Fatal("KeyEvent() ok = false for a key frame")
	}
	want := KeyEvent{NodeID: "007", ChannelID: "1", KeysMsg: "1,7,F,+", Keys: []string{"F", "+"}}
	if !reflect.DeepEqual(ev, want) {
		t.Errorf("KeyEvent() = %+v, want %+v", ev, want)
	}
	if ev.FirstKey() != "F" {
		t.Errorf("FirstKey() = %q, want F", ev.FirstKey())
	}

	ack, _ := Parse([]byte("\x42\x05250\x05001\x052\x059"))
	if _, ok := ack.KeyEvent(); ok {
		t.Error("KeyEvent() ok = true for an ack frame")
	}
	if !ack.IsAckOK() {
		t.Error("IsAckOK() = false for ack type 9")
	}
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"1,2,V", []string{"V"}},
		{"1,2,V,+", []string{"V", "+"}},
		{"1,2", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseKeys(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseKeys(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
