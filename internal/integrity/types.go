// Package integrity implements periodic verification of protected resources:
// a registry of expected hashes, a background monitor that re-hashes
// resources and drives a threat-level state machine, and severity-keyed
// violation responses.
package integrity

import "time"

// ThreatLevel classifies a batch of violations. Levels are ordered; the
// monitor reports the maximum severity across the records of one tick.
type ThreatLevel int

const (
	ThreatNone ThreatLevel = iota
	ThreatLow
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatNames = map[ThreatLevel]string{
	ThreatNone:     "none",
	ThreatLow:      "low",
	ThreatMedium:   "medium",
	ThreatHigh:     "high",
	ThreatCritical: "critical",
}

func (l ThreatLevel) String() string {
	if s, ok := threatNames[l]; ok {
		return s
	}
	return "unknown"
}

// ParseThreatLevel maps a level name to its ThreatLevel. Unknown names map
// to ThreatNone with ok=false.
func ParseThreatLevel(s string) (ThreatLevel, bool) {
	for l, name := range threatNames {
		if name == s {
			return l, true
		}
	}
	return ThreatNone, false
}

// Status is the monitor's process-wide state.
type Status int

const (
	// StatusMonitoring is the initial state: the loop is active and no tick
	// has been evaluated yet.
	StatusMonitoring Status = iota

	// StatusSecure means the last tick found zero violations.
	StatusSecure

	// StatusCompromised means a tick found at least one violation. The state
	// latches until Acknowledge is called.
	StatusCompromised

	// StatusOffline means the last tick errored, or the monitor was shut down.
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusMonitoring:
		return "monitoring"
	case StatusSecure:
		return "secure"
	case StatusCompromised:
		return "compromised"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Record describes one expected/actual hash mismatch discovered during a
// tick. Records live for the duration of the tick and its response dispatch;
// they are not persisted beyond logging.
type Record struct {
	ID           string
	Resource     string
	ExpectedHash string
	ActualHash   string
	Timestamp    time.Time
	Severity     ThreatLevel
}

// StateChange is published to subscribers whenever the monitor's status or
// threat level changes.
type StateChange struct {
	Status      Status
	ThreatLevel ThreatLevel
	At          time.Time
}
