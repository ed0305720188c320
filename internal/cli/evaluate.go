package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/riskledger/internal/contract"
	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/oracle"
	"github.com/roach88/riskledger/internal/sim"
	"github.com/roach88/riskledger/internal/tokens"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	RequestFile  string
	EventKey     string
	Profile      string
	Stake        float64
	Features     map[string]string
	Seed         int64
	NSims        int
	Cost         int64
	Tier         string
	SnapshotType string
	Snapshot     string
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a risk evaluation for an event",
		Long: `Run a risk evaluation for an event.

The event's profile is set on first use and cannot change afterwards. The
lifecycle advances to SIMULATED, recording a snapshot on the way. A cost
or tier charges tokens before the simulation runs.

Inputs come from flags, from a YAML request file, or both; flags win.

Example:
  riskledger evaluate --event ekey_1 --profile NEUTRAL --stake 100 \
      --feature rating_diff=50 --seed 42 --n-sims 100
  riskledger evaluate --request req.yaml --tier deep`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RequestFile, "request", "", "YAML request file")
	f.StringVar(&opts.EventKey, "event", "", "event key")
	f.StringVar(&opts.Profile, "profile", "", "risk profile (CONSERVATIVE|NEUTRAL|RISKY)")
	f.Float64Var(&opts.Stake, "stake", 0, "stake size")
	f.StringToStringVar(&opts.Features, "feature", nil, "feature values as name=number")
	f.Int64Var(&opts.Seed, "seed", 0, "random seed (default from RISKLEDGER_DEFAULT_SEED)")
	f.IntVar(&opts.NSims, "n-sims", 0, "force this many trials (0 = adaptive)")
	f.Int64Var(&opts.Cost, "cost", 0, "tokens to charge")
	f.StringVar(&opts.Tier, "tier", "", "charge the price of a tier (base|deep|live|comparison)")
	f.StringVar(&opts.SnapshotType, "snapshot-type", "", "snapshot type (PREMATCH|LIVE|FINAL)")
	f.StringVar(&opts.Snapshot, "snapshot", "", "snapshot data as a JSON object")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	req, err := buildRequest(opts, cmd)
	if err != nil {
		return out.Fail("invalid evaluation request", err)
	}

	s, err := openSession(opts.RootOptions, cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.Evaluate(commandContext(cmd), req)
	if err != nil {
		return out.Fail("evaluation failed", err)
	}
	return out.Success(resultView{EventKey: req.EventKey, RiskEvaluationResult: res})
}

// buildRequest merges the request file, the flags that were set and the
// configured defaults.
func buildRequest(opts *EvaluateOptions, cmd *cobra.Command) (oracle.Request, error) {
	req := oracle.Request{Seed: opts.DefaultSeed, Actor: opts.Actor}

	if opts.RequestFile != "" {
		data, err := os.ReadFile(opts.RequestFile)
		if err != nil {
			return req, fmt.Errorf("read request: %w", err)
		}
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if err := dec.Decode(&req); err != nil {
			return req, domain.NewInvalidInput(fmt.Sprintf("decode request %s: %v", opts.RequestFile, err))
		}
	}

	changed := cmd.Flags().Changed
	if changed("event") {
		req.EventKey = opts.EventKey
	}
	if changed("profile") {
		req.RiskProfile = domain.RiskProfile(strings.ToUpper(opts.Profile))
	}
	if changed("stake") {
		req.Stake = opts.Stake
	}
	if changed("seed") {
		req.Seed = opts.Seed
	}
	if changed("n-sims") {
		req.NSims = opts.NSims
	}
	if changed("snapshot-type") {
		req.SnapshotType = domain.SnapshotType(strings.ToUpper(opts.SnapshotType))
	}
	if changed("feature") {
		if req.Features == nil {
			req.Features = sim.Features{}
		}
		for name, raw := range opts.Features {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, domain.NewInvalidInput(fmt.Sprintf("feature %s: %q is not a number", name, raw))
			}
			req.Features[name] = v
		}
	}
	if changed("snapshot") {
		var data map[string]any
		if err := json.Unmarshal([]byte(opts.Snapshot), &data); err != nil || data == nil {
			return req, domain.NewInvalidInput("--snapshot must be a JSON object")
		}
		req.SnapshotData = data
	}

	switch {
	case changed("cost") && changed("tier"):
		return req, domain.NewInvalidInput("--cost and --tier are mutually exclusive")
	case changed("cost"):
		req.Cost = opts.Cost
	case changed("tier"):
		cost, err := tokens.CostOf(tokens.Tier(opts.Tier))
		if err != nil {
			return req, err
		}
		req.Cost = cost
	}

	if req.Actor == "" {
		req.Actor = opts.Actor
	}
	return req, req.Validate()
}

// resultView is an evaluation result as the CLI prints it.
type resultView struct {
	EventKey string `json:"event_key"`
	contract.RiskEvaluationResult
}

func (v resultView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "event_key:  %s\n", v.EventKey)
	fmt.Fprintf(&b, "zone:       %s\n", v.Zone)
	fmt.Fprintf(&b, "pls:        %.4f\n", v.PLS)
	fmt.Fprintf(&b, "fragility:  %.4f\n", v.Fragility)
	fmt.Fprintf(&b, "tail:       p5=%.4f p10=%.4f p25=%.4f\n",
		v.TailPercentiles.P5, v.TailPercentiles.P10, v.TailPercentiles.P25)
	fmt.Fprintf(&b, "n_sims:     %d\n", v.NSims)
	fmt.Fprintf(&b, "snapshot:   %s\n", v.SnapshotID)
	fmt.Fprintf(&b, "signature:  %s", v.DeterminismSignature)
	return b.String()
}
