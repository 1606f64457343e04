// Package api implements the HTTP REST API and WebSocket feed of the PTL service.
//
// This package provides:
//   - REST endpoints for movements, locations, controllers and the in-memory logs
//   - a WebSocket hub that relays orchestrator events to subscribed clients
//   - Prometheus exposition on the configured metrics path
//   - middleware for request ids, logging, recovery, CORS and body limits
//
// # Architecture
//
// Handlers never touch devices directly. Every request becomes an
// Orchestrator call: movement requests are forwarded to the active mode as
// policy actions, reads return copies of the orchestrator's registry and logs.
//
// # Responses
//
// Every response uses the same envelope:
//
//	{"status": "OK", "data": ..., "errors": []}
//	{"status": "ERROR", "data": null, "errors": [{"code": "MOVEMENT-002", "message": ..., "detail": ..., "help": ...}]}
//
// Each error code has a help entry served under /api/v1/help/error.
package api
