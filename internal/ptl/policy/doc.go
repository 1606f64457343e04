// Package policy defines the contract between the orchestrator and the
// control policies that drive the lights.
//
// A Policy owns its state and is dispatched by action name. The orchestrator
// calls Process from its event loop, so implementations need no locking of
// their own for state touched only from Process. Commands go back to the
// devices through a Sender.
//
// Concrete policies live in the picking and game subpackages.
package policy
