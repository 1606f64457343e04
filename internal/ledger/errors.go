package ledger

import "errors"

var (
	// ErrNoExternalID is returned when a movement is saved without an
	// external id.
	ErrNoExternalID = errors.New("ledger: external id is required")

	// ErrEncode is returned when a movement or result cannot be stored as JSON.
	ErrEncode = errors.New("ledger: encoding message")
)
