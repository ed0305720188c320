// Package verify re-runs recorded evaluations and checks that they still
// produce the same result.
//
// A suite is a YAML (or JSON) list of cases. Each case holds the scenario
// inputs and the result recorded when the baseline was taken. Verifying
// re-runs the inputs with the recorded n_sims, validates the result
// against the contract and compares pls, zone and determinism_signature.
package verify

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/sim"
)

// Inputs are the scenario fields of a case.
type Inputs struct {
	EventKey     string             `yaml:"event_key" json:"event_key"`
	RiskProfile  domain.RiskProfile `yaml:"risk_profile" json:"risk_profile"`
	Stake        float64            `yaml:"stake" json:"stake"`
	Features     sim.Features       `yaml:"features" json:"features"`
	SnapshotID   string             `yaml:"snapshot_id" json:"snapshot_id"`
	SnapshotData map[string]any     `yaml:"snapshot_data,omitempty" json:"snapshot_data,omitempty"`
	Seed         int64              `yaml:"seed" json:"seed"`
}

// Expected is the recorded part of a result a re-run must reproduce.
type Expected struct {
	PLS                  float64     `yaml:"pls" json:"pls"`
	Zone                 domain.Zone `yaml:"zone" json:"zone"`
	DeterminismSignature string      `yaml:"determinism_signature" json:"determinism_signature"`
	NSims                int         `yaml:"n_sims" json:"n_sims"`
}

// Case is one baseline.
type Case struct {
	Name     string   `yaml:"name" json:"name"`
	Inputs   Inputs   `yaml:"inputs" json:"inputs"`
	Expected Expected `yaml:"expected_output" json:"expected_output"`
}

func (in Inputs) scenario(nSims int) sim.Scenario {
	return sim.Scenario{
		EventKey:     in.EventKey,
		RiskProfile:  in.RiskProfile,
		Stake:        in.Stake,
		Features:     in.Features,
		SnapshotID:   in.SnapshotID,
		SnapshotData: in.SnapshotData,
		Seed:         in.Seed,
		NSims:        nSims,
	}
}

// ParseSuite decodes a suite document.
func ParseSuite(data []byte) ([]Case, error) {
	var cases []Case
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cases); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode suite: %w", err)
	}
	for i, c := range cases {
		if c.Name == "" {
			return nil, fmt.Errorf("case %d: name is required", i+1)
		}
		if c.Expected.NSims <= 0 {
			return nil, fmt.Errorf("case %q: expected_output.n_sims must be positive", c.Name)
		}
	}
	return cases, nil
}

// LoadSuite reads and decodes the suite at path.
func LoadSuite(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return ParseSuite(data)
}

// WriteSuite encodes cases as YAML.
func WriteSuite(w io.Writer, cases []Case) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cases); err != nil {
		return fmt.Errorf("encode suite: %w", err)
	}
	return enc.Close()
}

// Baseline evaluates inputs with nSims trials and records the result as a
// case. nSims of zero uses the adaptive policy and records its trial count.
func Baseline(name string, in Inputs, nSims int) (Case, error) {
	res, err := sim.Evaluate(in.scenario(nSims))
	if err != nil {
		return Case{}, fmt.Errorf("baseline %q: %w", name, err)
	}
	return Case{
		Name:   name,
		Inputs: in,
		Expected: Expected{
			PLS:                  res.PLS,
			Zone:                 res.Zone,
			DeterminismSignature: res.DeterminismSignature,
			NSims:                res.NSims,
		},
	}, nil
}

// Outcome is the verdict on one case.
type Outcome struct {
	Name      string
	Signature string
	Diffs     []string
	Err       error
}

// Passed reports whether the case reproduced its baseline.
func (o Outcome) Passed() bool { return o.Err == nil && len(o.Diffs) == 0 }

// Report collects the outcomes of a suite run in case order.
type Report struct {
	Outcomes []Outcome
}

// Passed counts passing cases.
func (r Report) Passed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Passed() {
			n++
		}
	}
	return n
}

// Failed counts failing cases.
func (r Report) Failed() int { return len(r.Outcomes) - r.Passed() }

// OK reports whether every case passed.
func (r Report) OK() bool { return r.Failed() == 0 }

// Check re-runs one case.
func Check(c Case) Outcome {
	out := Outcome{Name: c.Name}

	res, err := sim.Evaluate(c.Inputs.scenario(c.Expected.NSims))
	if err != nil {
		out.Err = err
		return out
	}
	if err := res.Validate(); err != nil {
		out.Err = err
		return out
	}
	out.Signature = res.DeterminismSignature

	if res.PLS != c.Expected.PLS {
		out.Diffs = append(out.Diffs, fmt.Sprintf("pls: expected %v, got %v", c.Expected.PLS, res.PLS))
	}
	if res.Zone != c.Expected.Zone {
		out.Diffs = append(out.Diffs, fmt.Sprintf("zone: expected %s, got %s", c.Expected.Zone, res.Zone))
	}
	if res.DeterminismSignature != c.Expected.DeterminismSignature {
		out.Diffs = append(out.Diffs, fmt.Sprintf("determinism_signature: expected %s, got %s",
			c.Expected.DeterminismSignature, res.DeterminismSignature))
	}
	return out
}

// Run checks every case in order.
func Run(cases []Case) Report {
	r := Report{Outcomes: make([]Outcome, 0, len(cases))}
	for _, c := range cases {
		r.Outcomes = append(r.Outcomes, Check(c))
	}
	return r
}

// WriteText renders r as one line per case followed by a summary.
func (r Report) WriteText(w io.Writer) error {
	var buf bytes.Buffer
	for _, o := range r.Outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(&buf, "[FAIL] %s: %v\n", o.Name, o.Err)
		case len(o.Diffs) > 0:
			fmt.Fprintf(&buf, "[FAIL] %s:\n", o.Name)
			for _, d := range o.Diffs {
				fmt.Fprintf(&buf, "  - %s\n", d)
			}
		default:
			fmt.Fprintf(&buf, "[PASS] %s (signature %s...)\n", o.Name, o.Signature[:8])
		}
	}
	fmt.Fprintf(&buf, "TOTAL: %d | PASS: %d | FAIL: %d\n", len(r.Outcomes), r.Passed(), r.Failed())
	_, err := w.Write(buf.Bytes())
	return err
}
