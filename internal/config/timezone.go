package config

import (
	"fmt"
	"time"
)

// LoadTimezone resolves an IANA timezone name. The weekly drop number is
// computed in this fixed zone so re-runs land on the same week key.
func LoadTimezone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}
