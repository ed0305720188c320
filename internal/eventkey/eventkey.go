// Package eventkey derives stable identifiers for sporting events.
//
// A key is the SHA-256 hex digest of the normalized tuple
//
//	sport|league|home|away|YYYY-MM-DD|market_scope
//
// Components are trimmed, NFC normalized and lower-cased, so the same logical
// event always yields the same key. Home and away are positional: swapping
// them produces a different key. Only the UTC calendar day of the start time
// participates.
package eventkey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/riskledger/internal/domain"
)

// DefaultMarketScope is used when an Identity leaves MarketScope empty.
const DefaultMarketScope = "default"

// Identity is the set of fields that name a logical event.
type Identity struct {
	Sport       string    `json:"sport" yaml:"sport"`
	League      string    `json:"league" yaml:"league"`
	Home        string    `json:"home" yaml:"home"`
	Away        string    `json:"away" yaml:"away"`
	Date        time.Time `json:"date" yaml:"date"`
	MarketScope string    `json:"market_scope,omitempty" yaml:"market_scope,omitempty"`
}

// Normalized returns a copy of id with every text field normalized and the
// date truncated to its UTC day.
func (id Identity) Normalized() Identity {
	// cases.Caser is stateful; one per call keeps Derive safe for concurrent use.
	lower := cases.Lower(language.Und)
	clean := func(s string) string {
		return lower.String(norm.NFC.String(strings.TrimSpace(s)))
	}

	scope := clean(id.MarketScope)
	if scope == "" {
		scope = DefaultMarketScope
	}
	d := id.Date.UTC()
	return Identity{
		Sport:       clean(id.Sport),
		League:      clean(id.League),
		Home:        clean(id.Home),
		Away:        clean(id.Away),
		Date:        time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		MarketScope: scope,
	}
}

// Validate checks that every naming field is present.
func (id Identity) Validate() error {
	n := id.Normalized()
	switch {
	case n.Sport == "":
		return domain.NewInvalidInput("event identity: sport is required")
	case n.League == "":
		return domain.NewInvalidInput("event identity: league is required")
	case n.Home == "":
		return domain.NewInvalidInput("event identity: home entity is required")
	case n.Away == "":
		return domain.NewInvalidInput("event identity: away entity is required")
	case id.Date.IsZero():
		return domain.NewInvalidInput("event identity: date is required")
	}
	return nil
}

// Derive returns the 64-character hex key for id.
// Derive does not validate; call Validate first when the fields come from
// user input.
func Derive(id Identity) string {
	n := id.Normalized()
	raw := strings.Join([]string{
		n.Sport,
		n.League,
		n.Home,
		n.Away,
		n.Date.Format("2006-01-02"),
		n.MarketScope,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
