package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/riskledger/internal/domain"
	"github.com/roach88/riskledger/internal/eventkey"
)

// identityFlags collects the fields of an event identity.
type identityFlags struct {
	Sport       string
	League      string
	Home        string
	Away        string
	Date        string
	MarketScope string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.Sport, "sport", "", "sport name")
	fs.StringVar(&f.League, "league", "", "league name")
	fs.StringVar(&f.Home, "home", "", "home team")
	fs.StringVar(&f.Away, "away", "", "away team")
	fs.StringVar(&f.Date, "date", "", "event date (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.MarketScope, "scope", "", "market scope (default \"default\")")
}

func (f *identityFlags) identity() (eventkey.Identity, error) {
	date, err := parseEventDate(f.Date)
	if err != nil {
		return eventkey.Identity{}, err
	}
	id := eventkey.Identity{
		Sport:       f.Sport,
		League:      f.League,
		Home:        f.Home,
		Away:        f.Away,
		Date:        date,
		MarketScope: f.MarketScope,
	}
	return id, id.Validate()
}

func parseEventDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.NewInvalidInput("event identity: date is required")
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.NewInvalidInput(fmt.Sprintf("invalid date %q", s))
	}
	return t, nil
}

// eventKeyView is a derived key and the normalized identity behind it.
type eventKeyView struct {
	EventKey string            `json:"event_key"`
	Identity eventkey.Identity `json:"identity"`
}

func (v eventKeyView) String() string { return v.EventKey }

// NewEventKeyCommand creates the eventkey command.
func NewEventKeyCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "eventkey",
		Short: "Derive the key of an event without recording it",
		Long: `Derive the stable key of an event.

Text fields are trimmed, NFC normalized and lower-cased; only the UTC day
of the date counts. Nothing is written to the ledger.

Example:
  riskledger eventkey --sport football --league "Premier League" \
      --home Arsenal --away Chelsea --date 2026-10-15`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			id, err := flags.identity()
			if err != nil {
				return out.Fail("invalid event identity", err)
			}
			return out.Success(eventKeyView{EventKey: eventkey.Derive(id), Identity: id.Normalized()})
		},
	}
	flags.register(cmd)

	return cmd
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &identityFlags{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Record an event and print its key",
		Long: `Record an event's identity in the ledger and print its key.

Registering the same event again prints the same key and writes nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			id, err := flags.identity()
			if err != nil {
				return out.Fail("invalid event identity", err)
			}

			s, err := openSession(rootOpts, cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			key, err := s.RegisterEvent(commandContext(cmd), id, rootOpts.Actor)
			if err != nil {
				return out.Fail("registration failed", err)
			}
			return out.Success(eventKeyView{EventKey: key, Identity: id.Normalized()})
		},
	}
	flags.register(cmd)

	return cmd
}
