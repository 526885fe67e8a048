package portfolio

import (
	"time"

	"github.com/elys-network/ara/internal/types"
)

// Store defines the interface to portfolio state. It is the sole source of
// truth for current allocations; the core never caches a Portfolio across an
// analysis/execution boundary.
type Store interface {
	// GetCurrentPortfolio recomputes and returns the derived portfolio
	// snapshot from all open positions.
	GetCurrentPortfolio() (types.Portfolio, error)

	// RecordTrade decrements a source position by the spent USD amount.
	// A position whose balance would reach zero or below is removed.
	RecordTrade(positionID string, spentUSD float64, at time.Time) error

	// AddPosition opens a destination position, or merges the balance into
	// an existing position with the same ID.
	AddPosition(pos types.Position) error

	// AccrueYield advances unrealized P&L on every non-idle position from
	// its current APY and the elapsed time since its last update.
	AccrueYield(now time.Time) error
}
