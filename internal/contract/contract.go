// Package contract defines the RiskEvaluationResult output shape and its
// validation.
//
// The shape is declared once as a CUE definition and every write and read
// path validates against it. A result that fails validation is a contract
// violation, never coerced.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/riskledger/internal/domain"
)

// TailPercentiles are points on the lower tail of the outcome distribution.
type TailPercentiles struct {
	P5  float64 `json:"p5" yaml:"p5"`
	P10 float64 `json:"p10" yaml:"p10"`
	P25 float64 `json:"p25" yaml:"p25"`
}

// RiskEvaluationResult is the signed verdict returned by an evaluation.
// Field names are plain and policy-neutral; export tooling relies on that.
type RiskEvaluationResult struct {
	PLS                  float64         `json:"pls" yaml:"pls"`
	Zone                 domain.Zone     `json:"zone" yaml:"zone"`
	Fragility            float64         `json:"fragility" yaml:"fragility"`
	TailPercentiles      TailPercentiles `json:"tail_percentiles" yaml:"tail_percentiles"`
	NSims                int             `json:"n_sims" yaml:"n_sims"`
	DeterminismSignature string          `json:"determinism_signature" yaml:"determinism_signature"`
	SnapshotID           string          `json:"snapshot_id" yaml:"snapshot_id"`
}

const schemaSource = `
#TailPercentiles: {
	p5:  number
	p10: number & >=p5
	p25: number & >=p10
}

#RiskEvaluationResult: {
	pls:                   number & >=0 & <=1
	zone:                  "GREEN" | "YELLOW" | "RED"
	fragility:             number & >=0
	tail_percentiles:      #TailPercentiles
	n_sims:                int & >0
	determinism_signature: =~"^[0-9a-f]{64}$"
	snapshot_id:           string & !=""
}
`

// The CUE context is not shared across goroutines without this lock.
var (
	schemaMu  sync.Mutex
	schemaCtx *cue.Context
	schemaDef cue.Value
)

func loadSchema() (*cue.Context, cue.Value, error) {
	if schemaCtx != nil {
		return schemaCtx, schemaDef, nil
	}
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("contract.cue"))
	if err := v.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("compile contract schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#RiskEvaluationResult"))
	if err := def.Err(); err != nil {
		return nil, cue.Value{}, fmt.Errorf("lookup contract definition: %w", err)
	}
	schemaCtx, schemaDef = ctx, def
	return schemaCtx, schemaDef, nil
}

// Validate checks r against the contract.
func (r RiskEvaluationResult) Validate() error {
	data, err := json.Marshal(r)
	if err != nil {
		// NaN and infinities land here.
		return domain.NewContractViolation("result is not representable as JSON", err)
	}
	return ValidateJSON(data)
}

// ValidateJSON checks a serialized result against the contract.
// Unknown fields are rejected.
func ValidateJSON(data []byte) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := loadSchema()
	if err != nil {
		return domain.NewContractViolation("contract schema unavailable", err)
	}

	v := ctx.CompileBytes(data, cue.Filename("result.json"))
	if err := v.Err(); err != nil {
		return domain.NewContractViolation("result is not valid JSON", firstCUEError(err))
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return domain.NewContractViolation("result does not match contract", firstCUEError(err))
	}
	return nil
}

// Decode parses and validates a serialized result.
func Decode(data []byte) (RiskEvaluationResult, error) {
	if err := ValidateJSON(data); err != nil {
		return RiskEvaluationResult{}, err
	}
	var r RiskEvaluationResult
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return RiskEvaluationResult{}, domain.NewContractViolation("decode result", err)
	}
	return r, nil
}

// firstCUEError reduces a CUE error list to its first entry.
func firstCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
