// Package protocol implements the telegram codec spoken by PTL device
// interfaces (DPI controllers).
//
// A telegram is a short ASCII frame delimited by STX/ETX:
//
//	STX(0x02) TYPE US field US field ... ETX(0x03)
//
// where US (0x05) separates fields and ',' separates sub-fields. The package
// is pure: it has no state beyond the message-id generator and performs no
// I/O, so every function can be exercised directly in table tests.
//
// # Outbound
//
// Encoders validate their fields and return either the encoded frame or a
// *ValidationError whose text is the operator-facing message, for example
// "Error: nodeId 256 is invalid". Encoders never panic.
//
//	frame, err := protocol.EncodeDisplay("001", "1", protocol.NewDisplay("12", protocol.LEDRed))
//
// # Inbound
//
// Decode splits an accumulated byte stream into complete frames and returns
// the unconsumed remainder, so a reader can call it after every chunk:
//
//	frames, rest := protocol.Decode(append(rest, chunk...))
//	for _, f := range frames {
//	    msg, err := protocol.Parse(f)
//	    ...
//	}
//
// Parse turns one frame into a Message carrying the typed fields and a
// human-readable Value.
package protocol
