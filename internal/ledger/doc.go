// Package ledger persists the movements exchanged with the external order
// system.
//
// Two live tables track work in flight:
//
//   - msg_received: movements received from the external system that are
//     still shown on the lights (EXTERNAL -> PTL).
//   - msg_pending_to_send: completion reports that the external system has
//     not yet accepted (PTL -> EXTERNAL).
//
// Every state change of a live row is snapshotted into the matching _arch
// table, and rows leave the live tables only by being archived. Each
// operation runs in one transaction, so the repository is safe to call from
// concurrent goroutines.
package ledger
