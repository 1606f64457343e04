// Package picking implements the pick-to-light mode.
//
// The external system adds and deletes movements through the API. Each
// movement is shown on the unit at its location code in the movement's
// colour; a unit with more than one queued movement blinks. The operator
// confirms the active movement with V, which removes it from the queue and
// reports it to the external system in the background.
//
// Optional keys:
//
//	F   switch to the next movement of the unit
//	+   raise the active quantity by one
//	-   lower the active quantity by one, not below zero
//
// # Persistence
//
// Queued movements live in the received ledger so they survive a restart
// (see the reloadMovements action). A controller blanks its displays when it
// connects; the endpointReady action then redraws its queued units.
// Confirmations land in the pending-to-send
// ledger; those that failed with a retryable error are retried by
// RunRedelivery.
package picking
