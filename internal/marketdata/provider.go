// Package marketdata abstracts access to raw bar, adjustment-factor, and
// instrument-list data so the replay engine never knows whether that data
// came from CSV files, a cache, or some future live feed.
package marketdata

import (
	"context"
	"time"

	"replaytrainer/internal/domain"
)

// Provider is the read-only market-data collaborator the session manager
// constructs a replay engine against.
type Provider interface {
	// ListInstruments returns every known instrument with its display name.
	ListInstruments(ctx context.Context) ([]domain.Instrument, error)

	// Validate reports an error if code is unknown or date falls outside
	// the instrument's available history.
	Validate(ctx context.Context, code string, date time.Time) error

	// RandomPick selects an instrument and start date within sector and
	// yearRange ("Y1-Y2"), trying a bounded number of random candidates.
	// CSVProvider returns a fixed fallback instrument and date when none of
	// its attempts fits.
	RandomPick(ctx context.Context, sector domain.Sector, yearRange string) (code string, start time.Time, err error)

	// LoadBars returns the full raw (unadjusted) bar history for code,
	// ordered by date ascending.
	LoadBars(ctx context.Context, code string) ([]domain.Bar, error)

	// LoadFactors returns the adjustment-factor table for code, ordered by
	// date ascending. It need not cover every bar date; callers forward
	// fill gaps and default to 1.0 before the first recorded factor.
	LoadFactors(ctx context.Context, code string) ([]domain.AdjustFactor, error)
}
