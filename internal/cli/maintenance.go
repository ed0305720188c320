package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/oracle"
	"github.com/roach88/riskledger/internal/verify"
)

type rehydrateView struct {
	Entries int    `json:"entries"`
	Mirror  string `json:"mirror"`
}

func (v rehydrateView) String() string {
	return fmt.Sprintf("rebuilt %s from %d entries", v.Mirror, v.Entries)
}

// NewRehydrateCommand creates the rehydrate command.
func NewRehydrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rehydrate",
		Short: "Rebuild the mirror from the ledger",
		Long: `Discard the SQLite mirror and rebuild it by replaying every ledger
entry in order. The ledger is read but never modified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, true)
			if err != nil {
				return err
			}
			defer s.close()
			return s.out.Success(rehydrateView{Entries: s.Rehydrated, Mirror: rootOpts.MirrorPath})
		},
	}

	return cmd
}

type healthView struct {
	oracle.Health
}

func (v healthView) String() string {
	status := "consistent"
	if !v.Consistent {
		status = "MISMATCH"
	}
	return fmt.Sprintf("ledger entries: %d\nmirror entries: %d\nbalance:        %d\nstatus:         %s",
		v.LedgerEntries, v.MirrorEntries, v.Balance, status)
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the ledger and mirror for consistency",
		Long: `Verify the ledger file, compare its entry count with the mirror and
report the global token balance. Exits 1 on a mismatch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			h, err := s.Check(commandContext(cmd))
			if err != nil {
				return s.out.Fail("check failed", err)
			}
			if err := s.out.Success(healthView{h}); err != nil {
				return err
			}
			if !h.Consistent {
				return NewExitError(ExitFailure, "mirror does not match ledger")
			}
			return nil
		},
	}

	return cmd
}

type verifyView struct {
	Suite  string        `json:"suite"`
	Total  int           `json:"total"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Cases  []caseVerdict `json:"cases"`
	report verify.Report
}

type caseVerdict struct {
	Name      string   `json:"name"`
	Passed    bool     `json:"passed"`
	Signature string   `json:"signature,omitempty"`
	Diffs     []string `json:"diffs,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (v verifyView) String() string {
	var b strings.Builder
	_ = v.report.WriteText(&b)
	return strings.TrimSuffix(b.String(), "\n")
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "verify <suite.yaml>",
		Short: "Re-run baseline evaluations and compare results",
		Long: `Re-run every case of a baseline suite with its recorded n_sims and
compare pls, zone and determinism_signature with the recorded values.
The ledger is not touched. Exits 1 if any case fails.

With --update the suite file is rewritten with freshly recorded results.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			cases, err := verify.LoadSuite(args[0])
			if err != nil {
				return out.Fail("invalid suite", err)
			}
			if update {
				if err := rerecord(args[0], cases); err != nil {
					return out.Fail("update suite failed", err)
				}
				out.VerboseLog("re-recorded %d case(s) in %s", len(cases), args[0])
			}

			report := verify.Run(cases)
			view := verifyView{
				Suite:  args[0],
				Total:  len(report.Outcomes),
				Passed: report.Passed(),
				Failed: report.Failed(),
				Cases:  make([]caseVerdict, 0, len(report.Outcomes)),
				report: report,
			}
			for _, o := range report.Outcomes {
				cv := caseVerdict{Name: o.Name, Passed: o.Passed(), Signature: o.Signature, Diffs: o.Diffs}
				if o.Err != nil {
					cv.Error = o.Err.Error()
				}
				view.Cases = append(view.Cases, cv)
			}
			if err := out.Success(view); err != nil {
				return err
			}
			if !report.OK() {
				return NewExitError(ExitFailure, fmt.Sprintf("%d of %d cases failed", report.Failed(), view.Total))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "re-record every case before verifying")

	return cmd
}

// rerecord replaces the expected output of every case with a fresh
// baseline and rewrites the suite file in place.
func rerecord(path string, cases []verify.Case) error {
	for i, c := range cases {
		fresh, err := verify.Baseline(c.Name, c.Inputs, c.Expected.NSims)
		if err != nil {
			return err
		}
		cases[i] = fresh
	}

	var buf bytes.Buffer
	if err := verify.WriteSuite(&buf, cases); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
