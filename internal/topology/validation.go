package topology

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxLocationLength = 50

// ValidateUnit checks a single unit's addressing fields.
func ValidateUnit(u Unit) error {
	loc := strings.TrimSpace(u.Location)
	if loc == "" {
		return fmt.Errorf("%w: unit %d has no location", ErrInvalidUnit, u.ID)
	}
	if len(loc) > maxLocationLength {
		return fmt.Errorf("%w: location %q exceeds %d characters", ErrInvalidUnit, loc, maxLocationLength)
	}
	n, err := strconv.Atoi(u.NodeID)
	if len(u.NodeID) != 3 || err != nil || n < 1 || n > 255 {
		return fmt.Errorf("%w: location %s has node id %q, want 001-255", ErrInvalidUnit, loc, u.NodeID)
	}
	if u.ChannelID != "1" && u.ChannelID != "2" {
		return fmt.Errorf("%w: location %s has channel %q, want 1 or 2", ErrInvalidUnit, loc, u.ChannelID)
	}
	if u.Endpoint.IP == "" || u.Endpoint.Port <= 0 || u.Endpoint.Port > 65535 {
		return fmt.Errorf("%w: location %s has endpoint %q", ErrInvalidUnit, loc, u.Endpoint.Addr())
	}
	return nil
}

// Validate checks every unit and rejects duplicate locations and addresses.
// All problems are reported together.
func Validate(units Units) error {
	var errs []error
	locations := make(map[string]bool)
	addresses := make(map[string]bool)

	for _, u := range units {
		if err := ValidateUnit(u); err != nil {
			errs = append(errs, err)
			continue
		}
		if locations[u.Location] {
			errs = append(errs, fmt.Errorf("%w: location %s", ErrDuplicateUnit, u.Location))
		}
		locations[u.Location] = true

		addr := u.Endpoint.Addr() + "/" + u.ChannelID + "/" + u.NodeID
		if addresses[addr] {
			errs = append(errs, fmt.Errorf("%w: address %s", ErrDuplicateUnit, addr))
		}
		addresses[addr] = true
	}
	return errors.Join(errs...)
}
