package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
)

// ActionType names the kind of an entry and selects its payload shape.
type ActionType string

const (
	ActionProfileSet      ActionType = "EVENT_PROFILE_SET"
	ActionProviderError   ActionType = "PROVIDER_ERROR"
	ActionStateTransition ActionType = "STATE_TRANSITION"
	ActionLifecycleError  ActionType = "LIFECYCLE_ERROR"
	ActionTokensSpent     ActionType = "TOKENS_SPENT"
	ActionSnapshotCreated ActionType = "SNAPSHOT_CREATED"
	ActionSimulationRun   ActionType = "SIMULATION_RUN"
	ActionEventRegistered ActionType = "EVENT_REGISTERED"
)

// Payload is the action-specific body of an entry.
type Payload interface {
	ActionType() ActionType
}

// validator is implemented by payloads with field-level rules.
type validator interface {
	Validate() error
}

// ProfileSet fixes the risk profile of an event.
type ProfileSet struct {
	Profile domain.RiskProfile `json:"profile"`
}

func (ProfileSet) ActionType() ActionType { return ActionProfileSet }

func (p ProfileSet) Validate() error {
	if !p.Profile.Valid() {
		return fmt.Errorf("invalid profile %q", p.Profile)
	}
	return nil
}

// ProviderError records a rejected attempt to change a profile.
type ProviderError struct {
	Existing  domain.RiskProfile `json:"existing"`
	Attempted domain.RiskProfile `json:"attempted"`
	Message   string             `json:"msg"`
}

func (ProviderError) ActionType() ActionType { return ActionProviderError }

// StateTransition records an accepted lifecycle move.
type StateTransition struct {
	From domain.State `json:"from"`
	To   domain.State `json:"to"`
}

func (StateTransition) ActionType() ActionType { return ActionStateTransition }

func (p StateTransition) Validate() error {
	if !p.From.Valid() || !p.To.Valid() {
		return fmt.Errorf("invalid transition %q -> %q", p.From, p.To)
	}
	return nil
}

// LifecycleError records a rejected lifecycle move.
type LifecycleError struct {
	Error     string       `json:"error"`
	Current   domain.State `json:"current"`
	Attempted domain.State `json:"attempted"`
}

func (LifecycleError) ActionType() ActionType { return ActionLifecycleError }

// TokensSpent records a debit. The entry's token_delta carries the signed
// amount; Amount repeats it as a positive number.
type TokensSpent struct {
	Amount   int64             `json:"amount"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (TokensSpent) ActionType() ActionType { return ActionTokensSpent }

func (p TokensSpent) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", p.Amount)
	}
	return nil
}

// SnapshotCreated records market data captured for an event. The snapshot
// ID lives on the entry.
type SnapshotCreated struct {
	Type domain.SnapshotType `json:"type"`
	Data map[string]any      `json:"data"`
}

func (SnapshotCreated) ActionType() ActionType { return ActionSnapshotCreated }

func (p SnapshotCreated) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("invalid snapshot type %q", p.Type)
	}
	return nil
}

// SimulationRun records a completed risk evaluation and the inputs that
// produced it.
type SimulationRun struct {
	RiskProfile domain.RiskProfile            `json:"risk_profile"`
	Stake       float64                       `json:"stake"`
	Seed        int64                         `json:"seed"`
	Features    map[string]float64            `json:"features"`
	Result      contract.RiskEvaluationResult `json:"result"`
}

func (SimulationRun) ActionType() ActionType { return ActionSimulationRun }

func (p SimulationRun) Validate() error {
	return p.Result.Validate()
}

// EventRegistered records the identity an event key was derived from.
type EventRegistered struct {
	Sport       string `json:"sport"`
	League      string `json:"league"`
	Home        string `json:"home"`
	Away        string `json:"away"`
	Date        string `json:"date"`
	MarketScope string `json:"market_scope"`
}

func (EventRegistered) ActionType() ActionType { return ActionEventRegistered }

func (p EventRegistered) Validate() error {
	if p.Sport == "" || p.League == "" || p.Home == "" || p.Away == "" || p.Date == "" {
		return fmt.Errorf("incomplete event identity")
	}
	return nil
}

// Opaque carries a payload whose action type this version does not model.
// It round-trips byte-for-byte so older logs replay unchanged.
type Opaque struct {
	Type ActionType
	Raw  json.RawMessage
}

func (o Opaque) ActionType() ActionType { return o.Type }

// MarshalJSON returns the raw payload.
func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("{}"), nil
	}
	return o.Raw, nil
}

// DecodePayload decodes raw into the payload type registered for action.
// Unknown action types decode as Opaque.
func DecodePayload(action ActionType, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch action {
	case ActionProfileSet:
		p, err = decodeAs[ProfileSet](raw)
	case ActionProviderError:
		p, err = decodeAs[ProviderError](raw)
	case ActionStateTransition:
		p, err = decodeAs[StateTransition](raw)
	case ActionLifecycleError:
		p, err = decodeAs[LifecycleError](raw)
	case ActionTokensSpent:
		p, err = decodeAs[TokensSpent](raw)
	case ActionSnapshotCreated:
		p, err = decodeAs[SnapshotCreated](raw)
	case ActionSimulationRun:
		p, err = decodeAs[SimulationRun](raw)
	case ActionEventRegistered:
		p, err = decodeAs[EventRegistered](raw)
	default:
		return Opaque{Type: action, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", action, err)
	}
	if v, ok := p.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", action, err)
		}
	}
	return p, nil
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
