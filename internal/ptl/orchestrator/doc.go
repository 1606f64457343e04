// Package orchestrator routes commands and events between the control policy
// and the PTL controllers.
//
// # Architecture
//
//	┌──────────────┐  Process   ┌──────────────┐   Send    ┌────────────┐
//	│  API / jobs  │───────────►│ Orchestrator │──────────►│ link.Link  │──► controller
//	└──────────────┘            │  (one loop)  │◄──────────│ (per ip:port)
//	                            └──────┬───────┘  frames   └────────────┘
//	                                   │ key-pressed
//	                                   ▼
//	                            ┌──────────────┐
//	                            │ policy.Policy│
//	                            └──────────────┘
//
// # Thread Safety
//
// A single loop goroutine owns the unit registry, the links, the four
// bounded logs (sent, received, pending ack, alarms) and the policy state.
// Exported methods submit a closure to the loop and wait for it. Link
// callbacks post without waiting. A policy calling Send from inside Process
// runs inline, since it is already on the loop.
//
// # Acknowledgements
//
// Every display-ack command is kept in the pending log until the controller
// acknowledges its message id. Once a second, entries older than the resend
// age are written again verbatim. There is no retry limit; an entry leaves
// the log when it is acked, superseded by a newer display on the same unit,
// or evicted by overflow.
//
// # Publishing
//
// Inbound telegrams are published to MQTT under ptl/{site}/event/{endpoint}
// (alarms under ptl/{site}/alarm/{endpoint}), broadcast to the WebSocket hub
// and, for key presses and acks, written to InfluxDB. All publishers are
// optional.
package orchestrator
