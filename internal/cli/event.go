package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/lifecycle"
	"github.com/roach88/riskledger/internal/profile"
)

type profileView struct {
	EventKey string             `json:"event_key"`
	Profile  domain.RiskProfile `json:"profile,omitempty"`
	Outcome  profile.Outcome    `json:"outcome,omitempty"`
}

func (v profileView) String() string {
	if v.Profile == "" {
		return fmt.Sprintf("%s: no profile set", v.EventKey)
	}
	if v.Outcome != "" {
		return fmt.Sprintf("%s: %s (%s)", v.EventKey, v.Profile, v.Outcome)
	}
	return fmt.Sprintf("%s: %s", v.EventKey, v.Profile)
}

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <event-key> [CONSERVATIVE|NEUTRAL|RISKY]",
		Short: "Show or set the risk profile of an event",
		Long: `Show the risk profile of an event, or set it.

A profile can be set once. Setting the same profile again is a no-op;
setting a different one is rejected and the attempt is logged.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := commandContext(cmd)
			key := args[0]

			if len(args) == 1 {
				p, _, err := s.Profiles.Profile(ctx, key)
				if err != nil {
					return s.out.Fail("read profile failed", err)
				}
				return s.out.Success(profileView{EventKey: key, Profile: p})
			}

			p := domain.RiskProfile(strings.ToUpper(args[1]))
			outcome, err := s.Profiles.SetProfile(ctx, key, p, rootOpts.Actor)
			if err != nil {
				return s.out.Fail("set profile failed", err)
			}
			return s.out.Success(profileView{EventKey: key, Profile: p, Outcome: outcome})
		},
	}

	return cmd
}

type stateView struct {
	EventKey string         `json:"event_key"`
	State    domain.State   `json:"state"`
	Next     []domain.State `json:"next"`
}

func (v stateView) String() string {
	next := "none"
	if len(v.Next) > 0 {
		parts := make([]string, len(v.Next))
		for i, s := range v.Next {
			parts[i] = string(s)
		}
		next = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s: %s (next: %s)", v.EventKey, v.State, next)
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "state <event-key>",
		Short:         "Show the lifecycle state of an event",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			state, err := s.Lifecycle.State(commandContext(cmd), args[0])
			if err != nil {
				return s.out.Fail("read state failed", err)
			}
			next := lifecycle.Next(state)
			if next == nil {
				next = []domain.State{}
			}
			return s.out.Success(stateView{EventKey: args[0], State: state, Next: next})
		},
	}

	return cmd
}

// NewLockCommand creates the lock command.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <event-key>",
		Short: "Lock a simulated event against further evaluation",
		Long: `Move an event to LOCKED. Only a SIMULATED event can be locked; any
other attempt is rejected and logged.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.Lock(commandContext(cmd), args[0], rootOpts.Actor); err != nil {
				return s.out.Fail("lock failed", err)
			}
			return s.out.Success(stateView{EventKey: args[0], State: domain.StateLocked, Next: []domain.State{}})
		},
	}

	return cmd
}

// NewResultCommand creates the result command.
func NewResultCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "result <event-key>",
		Short:         "Show the latest evaluation of an event",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			res, ok, err := s.LastResult(commandContext(cmd), args[0])
			if err != nil {
				return s.out.Fail("read result failed", err)
			}
			if !ok {
				return s.out.Fail("no result", NewExitError(ExitFailure, "no evaluation recorded for "+args[0]))
			}
			return s.out.Success(resultView{EventKey: args[0], RiskEvaluationResult: res})
		},
	}

	return cmd
}
