package sim

import (
	"fmt"

	"github.com/roach88/riskledger/internal/domain"
)

// MaxSafeSeed is the largest seed magnitude that survives canonical JSON
// number encoding without loss.
const MaxSafeSeed = 1<<53 - 1

// SignatureInput is exactly the set of inputs covered by a determinism
// signature. Nothing else may influence it.
type SignatureInput struct {
	Snapshot    map[string]any     `json:"snapshot"`
	Features    Features           `json:"features"`
	RiskProfile domain.RiskProfile `json:"risk_profile"`
	Stake       float64            `json:"stake"`
	Seed        int64              `json:"seed"`
}

// Signature returns the SHA-256 hex digest of the canonical JSON of in.
// A nil snapshot or feature map signs the same as an empty one.
func Signature(in SignatureInput) (string, error) {
	if in.Seed > MaxSafeSeed || in.Seed < -MaxSafeSeed {
		return "", domain.NewInvalidInput(fmt.Sprintf("seed %d outside signable range", in.Seed))
	}
	if in.Snapshot == nil {
		in.Snapshot = map[string]any{}
	}
	if in.Features == nil {
		in.Features = Features{}
	}
	sig, err := domain.CanonicalHash(in)
	if err != nil {
		return "", domain.NewInvalidInput(fmt.Sprintf("signature inputs not canonicalizable: %v", err))
	}
	return sig, nil
}
