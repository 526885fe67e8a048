package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/elys-network/ara/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrInvalidAmount    = errors.New("amount is invalid")
)

// MemoryStore is an in-process Store implementation. It backs tests and
// dry-run deployments; production agents use the Postgres-backed store.
type MemoryStore struct {
	logger    zerolog.Logger
	mu        sync.Mutex
	positions map[string]types.Position
}

// NewMemoryStore creates an empty in-memory portfolio store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logger:    logger.GetForComponent("portfolio_store"),
		positions: make(map[string]types.Position),
	}
}

// GetCurrentPortfolio recomputes the derived snapshot on every call.
// Positions are ordered by ID so repeated reads are deterministic.
func (s *MemoryStore) GetCurrentPortfolio() (types.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make([]types.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return types.NewPortfolio(positions), nil
}

// AddPosition opens a new position or merges into an existing one.
func (s *MemoryStore) AddPosition(pos types.Position) error {
	if pos.BalanceUSD < 0 {
		return fmt.Errorf("%w: balance %f", ErrInvalidAmount, pos.BalanceUSD)
	}
	if pos.ID == "" {
		pos.ID = types.PositionID(pos.ChainID, pos.Protocol, pos.PoolID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.positions[pos.ID]; ok {
		existing.BalanceUSD += pos.BalanceUSD
		existing.CurrentAPY = pos.CurrentAPY
		existing.UpdatedAt = pos.UpdatedAt
		s.positions[pos.ID] = existing
		s.logger.Debug().Str("position", pos.ID).Float64("balance", existing.BalanceUSD).Msg("Merged into existing position")
		return nil
	}
	s.positions[pos.ID] = pos
	s.logger.Debug().Str("position", pos.ID).Float64("balance", pos.BalanceUSD).Msg("Opened new position")
	return nil
}

// RecordTrade decrements a source position; a balance at or below zero
// removes it entirely.
func (s *MemoryStore) RecordTrade(positionID string, spentUSD float64, at time.Time) error {
	if spentUSD < 0 {
		return fmt.Errorf("%w: spent %f", ErrInvalidAmount, spentUSD)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[positionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}

	pos.BalanceUSD -= spentUSD
	pos.UpdatedAt = at
	if pos.BalanceUSD <= 0 {
		delete(s.positions, positionID)
		s.logger.Debug().Str("position", positionID).Msg("Position fully spent, removed")
		return nil
	}
	s.positions[positionID] = pos
	return nil
}

// AccrueYield advances unrealized P&L from current APY since each position's
// last update.
func (s *MemoryStore) AccrueYield(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, pos := range s.positions {
		if pos.Idle || pos.UpdatedAt.IsZero() || !now.After(pos.UpdatedAt) {
			continue
		}
		elapsedDays := now.Sub(pos.UpdatedAt).Hours() / 24
		pos.UnrealizedPnL += pos.BalanceUSD * pos.CurrentAPY / 100 * elapsedDays / 365
		pos.UpdatedAt = now
		s.positions[id] = pos
	}
	return nil
}
