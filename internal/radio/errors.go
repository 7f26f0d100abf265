package radio

import (
	"fmt"
	"time"
)

// FaultKind classifies recoverable failures. None of them stop the
// supervisor: they are logged, counted and shown on the info page.
type FaultKind int

const (
	// FaultConfiguration is an invalid setting that was replaced with a
	// fallback, such as an AP passphrase outside 8..63 characters.
	FaultConfiguration FaultKind = iota
	// FaultScan is a scan that returned a failure sentinel.
	FaultScan
	// FaultConnectionTimeout is a join that did not associate in time.
	FaultConnectionTimeout
	// FaultDuplicateInitialization is a start request for something already
	// running.
	FaultDuplicateInitialization
)

func (k FaultKind) String() string {
	switch k {
	case FaultConfiguration:
		return "configuration"
	case FaultScan:
		return "scan"
	case FaultConnectionTimeout:
		return "connection_timeout"
	case FaultDuplicateInitialization:
		return "duplicate_initialization"
	default:
		return "unknown"
	}
}

// Fault is a recoverable failure record.
type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
	At      time.Time
}

// NewFault builds a fault stamped with the current time.
func NewFault(kind FaultKind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err, At: time.Now()}
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// FaultReporter receives faults from components that cannot return them.
type FaultReporter func(*Fault)

// Report calls r if it is set.
func (r FaultReporter) Report(f *Fault) {
	if r != nil {
		r(f)
	}
}
