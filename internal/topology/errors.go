package topology

import "errors"

var (
	// ErrInvalidUnit is returned when a unit fails validation.
	ErrInvalidUnit = errors.New("topology: invalid unit")

	// ErrDuplicateUnit is returned when two units share a location or an
	// address.
	ErrDuplicateUnit = errors.New("topology: duplicate unit")

	// ErrImport is returned when a workbook cannot be turned into units.
	ErrImport = errors.New("topology: import failed")
)
