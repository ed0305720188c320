package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/tokens"
)

type balanceView struct {
	EventKey string `json:"event_key,omitempty"`
	Actor    string `json:"actor,omitempty"`
	Balance  int64  `json:"balance"`
}

func (v balanceView) String() string {
	scope := "global"
	switch {
	case v.EventKey != "" && v.Actor != "":
		scope = v.EventKey + " / " + v.Actor
	case v.EventKey != "":
		scope = v.EventKey
	case v.Actor != "":
		scope = v.Actor
	}
	return fmt.Sprintf("%s: %d tokens", scope, v.Balance)
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var scope tokens.Scope

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a token balance",
		Long: `Show a token balance: the base grant plus every token delta in scope.
Without filters the global balance is shown; spends are checked against it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			b, err := s.Tokens.Balance(commandContext(cmd), scope)
			if err != nil {
				return s.out.Fail("read balance failed", err)
			}
			return s.out.Success(balanceView{EventKey: scope.EventKey, Actor: scope.Actor, Balance: b})
		},
	}

	cmd.Flags().StringVar(&scope.EventKey, "event", "", "only entries of this event")
	cmd.Flags().StringVar(&scope.Actor, "by", "", "only entries written by this actor")

	return cmd
}

type spendView struct {
	EntryID string `json:"entry_id"`
	Amount  int64  `json:"amount"`
	Balance int64  `json:"balance"`
}

func (v spendView) String() string {
	return fmt.Sprintf("spent %d tokens (entry %s), balance %d", v.Amount, v.EntryID, v.Balance)
}

// NewSpendCommand creates the spend command.
func NewSpendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		amount   int64
		tier     string
		reason   string
		eventKey string
	)

	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Spend tokens",
		Long: `Spend tokens from the global balance. A spend larger than the
balance is refused and writes nothing.

Example:
  riskledger spend --tier comparison --reason "derby comparison"
  riskledger spend --amount 3 --event ekey_1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			changed := cmd.Flags().Changed
			if changed("amount") == changed("tier") {
				return out.Fail("invalid spend", domain.NewInvalidInput("exactly one of --amount and --tier is required"))
			}
			meta := map[string]string{}
			if changed("tier") {
				cost, err := tokens.CostOf(tokens.Tier(tier))
				if err != nil {
					return out.Fail("invalid spend", err)
				}
				amount = cost
				meta["tier"] = tier
				if !changed("reason") {
					reason = tier
				}
			}

			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()
			ctx := commandContext(cmd)

			id, err := s.Tokens.Spend(ctx, tokens.SpendRequest{
				Amount:   amount,
				Reason:   reason,
				EventKey: eventKey,
				Actor:    rootOpts.Actor,
				Metadata: meta,
			})
			if err != nil {
				return s.out.Fail("spend failed", err)
			}
			b, err := s.Tokens.Balance(ctx, tokens.Scope{})
			if err != nil {
				return s.out.Fail("read balance failed", err)
			}
			return s.out.Success(spendView{EntryID: id, Amount: amount, Balance: b})
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 0, "tokens to spend")
	cmd.Flags().StringVar(&tier, "tier", "", "spend the price of a tier (base|deep|live|comparison)")
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the spend")
	cmd.Flags().StringVar(&eventKey, "event", "", "event the spend is for (default GLOBAL)")

	return cmd
}
