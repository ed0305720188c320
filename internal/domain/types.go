package domain

import "fmt"

// RiskProfile is the risk appetite attached to an event key.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "CONSERVATIVE"
	ProfileNeutral      RiskProfile = "NEUTRAL"
	ProfileRisky        RiskProfile = "RISKY"
)

// Valid reports whether p is one of the known profiles.
func (p RiskProfile) Valid() bool {
	switch p {
	case ProfileConservative, ProfileNeutral, ProfileRisky:
		return true
	}
	return false
}

// ParseRiskProfile converts a wire name into a RiskProfile.
func ParseRiskProfile(s string) (RiskProfile, error) {
	p := RiskProfile(s)
	if !p.Valid() {
		return "", NewInvalidInput(fmt.Sprintf("unknown risk profile %q", s))
	}
	return p, nil
}

// Zone is the traffic-light verdict derived from PLS and a risk profile.
type Zone string

const (
	ZoneGreen  Zone = "GREEN"
	ZoneYellow Zone = "YELLOW"
	ZoneRed    Zone = "RED"
)

// Valid reports whether z is one of the three zones.
func (z Zone) Valid() bool {
	return z == ZoneGreen || z == ZoneYellow || z == ZoneRed
}

// State is a lifecycle state of an event key.
type State string

const (
	StateCreated       State = "CREATED"
	StateProfileSet    State = "PROFILE_SET"
	StateSnapshotTaken State = "SNAPSHOT_TAKEN"
	StateSimulated     State = "SIMULATED"
	StateLocked        State = "LOCKED"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateProfileSet, StateSnapshotTaken, StateSimulated, StateLocked:
		return true
	}
	return false
}

// ParseState converts a wire name into a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", NewInvalidInput(fmt.Sprintf("unknown lifecycle state %q", s))
	}
	return st, nil
}

// SnapshotType classifies when a snapshot of event data was captured.
type SnapshotType string

const (
	SnapshotPrematch SnapshotType = "PREMATCH"
	SnapshotLive     SnapshotType = "LIVE"
	SnapshotFinal    SnapshotType = "FINAL"
)

// Valid reports whether t is a known snapshot type.
func (t SnapshotType) Valid() bool {
	return t == SnapshotPrematch || t == SnapshotLive || t == SnapshotFinal
}

// ParseSnapshotType converts a wire name into a SnapshotType.
func ParseSnapshotType(s string) (SnapshotType, error) {
	t := SnapshotType(s)
	if !t.Valid() {
		return "", NewInvalidInput(fmt.Sprintf("unknown snapshot type %q", s))
	}
	return t, nil
}
