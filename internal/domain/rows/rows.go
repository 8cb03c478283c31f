// Package rows picks the single console row that an operation may act on.
package rows

import (
	"errors"
	"fmt"

	"github.com/target/cashier/internal/domain/money"
	apperrors "github.com/target/cashier/internal/errors"
)

var (
	// ErrNoExactMatch is returned when no actionable row matches the target exactly.
	ErrNoExactMatch = errors.New("no exact unique match")
	// ErrMultipleMatches is returned when more than one actionable row matches the target exactly.
	ErrMultipleMatches = errors.New("multiple exact matches")
)

// Candidate is one listing row as scraped from the console.
type Candidate struct {
	// Index is the row position in the listing; it is what SelectRowIndex returns.
	Index int
	// HasActionableControl reports whether the row exposes the control the operation needs.
	HasActionableControl bool
	// DisplayedIdentities are the usernames/aliases rendered in the row.
	DisplayedIdentities []string
	// NormalizedRowText is the full row text, passed through money.NormalizeText.
	NormalizedRowText string
	// BalanceText is the raw balance cell, empty when the listing has no balance column.
	BalanceText string
}

// Matches reports whether the candidate carries an exact boundary-delimited match of target.
func (c Candidate) Matches(target string) bool {
	for _, id := range c.DisplayedIdentities {
		if money.ContainsExact(id, target) {
			return true
		}
	}
	return money.ContainsExact(c.NormalizedRowText, target)
}

// Select returns the unique actionable candidate matching target.
func Select(candidates []Candidate, target string) (Candidate, error) {
	var (
		found Candidate
		count int
	)
	for _, c := range candidates {
		if !c.HasActionableControl || !c.Matches(target) {
			continue
		}
		found = c
		count++
	}

	switch count {
	case 1:
		return found, nil
	case 0:
		return Candidate{}, wrapAmbiguity(ErrNoExactMatch, target, count)
	default:
		return Candidate{}, wrapAmbiguity(ErrMultipleMatches, target, count)
	}
}

// SelectRowIndex returns the Index of the unique actionable candidate matching target.
func SelectRowIndex(candidates []Candidate, target string) (int, error) {
	c, err := Select(candidates, target)
	if err != nil {
		return -1, err
	}
	return c.Index, nil
}

func wrapAmbiguity(sentinel error, target string, count int) error {
	return apperrors.Wrap(
		fmt.Errorf("%w for %q (%d candidates)", sentinel, target, count),
		apperrors.ErrCodeAmbiguity,
		"row disambiguation failed",
	)
}
