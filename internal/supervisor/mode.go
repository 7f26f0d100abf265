package supervisor

import "fmt"

// Mode is the connection mode.
type Mode int

const (
	Idle Mode = iota
	Connecting
	Station
	AccessPoint
	AccessPointDraining
)

// Modes lists every mode, in declaration order.
var Modes = []Mode{Idle, Connecting, Station, AccessPoint, AccessPointDraining}

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Station:
		return "station"
	case AccessPoint:
		return "access_point"
	case AccessPointDraining:
		return "access_point_draining"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText renders the mode name in JSON snapshots.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	for _, candidate := range Modes {
		if candidate.String() == string(text) {
			*m = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}
