package model

import (
	"fmt"
	"math"
	"strings"
)

// Never marks a ReferenceState that has no pending or past default.
const Never uint64 = math.MaxUint64

// Status is the collateral health derived from whenDefault and the clock.
type Status uint8

const (
	StatusSound Status = iota
	StatusIffy
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusSound:
		return "SOUND"
	case StatusIffy:
		return "IFFY"
	case StatusDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name into a Status.
func ParseStatus(input string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "SOUND":
		return StatusSound, nil
	case "IFFY":
		return StatusIffy, nil
	case "DISABLED":
		return StatusDisabled, nil
	default:
		return StatusSound, fmt.Errorf("unknown status: %s", input)
	}
}

// StatusAt derives the status for a whenDefault value at time now.
func StatusAt(whenDefault, now uint64) Status {
	switch {
	case whenDefault == Never:
		return StatusSound
	case whenDefault > now:
		return StatusIffy
	default:
		return StatusDisabled
	}
}
