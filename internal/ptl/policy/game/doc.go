// Package game implements a reaction game on the pick-to-light units.
//
// Every press drives a four-state machine:
//
//	WAIT_BEGIN ──any key──► WAIT_PLAYERS ──V──► WAIT_START ──V──► WAIT_KEY_V
//	     ▲                                                             │
//	     └────────────────────── last player done ─────────────────────┘
//
// The player count is set with + and - on the zone unit. Each player then
// gets eight targets drawn at random from the interactive units, never the
// same unit twice in a row, and presses V on each lit target in turn. The
// zone unit shows the ranking when the last player finishes.
package game
