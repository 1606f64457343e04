// Package link owns the TCP connection to one PTL controller.
//
// A Link dials its controller, reads the byte stream, reassembles telegrams
// with protocol.Decode and hands every parsed message to a callback. When the
// connection drops it waits a fixed delay and dials again, forever, until the
// context passed to Start is cancelled or Close is called.
//
// Writes are fire-and-forget: a SendResult of OK only means the bytes were
// handed to the socket. Delivery confidence comes from display acks, which the
// orchestrator tracks.
//
//	l := link.New(link.Config{ID: 1, Host: "192.168.1.222", Port: 16})
//	l.SetOnMessage(func(frame []byte, msg protocol.Message, key *protocol.KeyEvent) { ... })
//	l.SetOnReady(func(code int) { ... })
//	l.Start(ctx)
//	defer l.Close()
package link
