package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func looseLimits() domain.SymbolLimits {
	return domain.SymbolLimits{StepSize: 0.001, MinQuantity: 0.001, MinNotional: 5}
}

func TestSizeFormula(t *testing.T) {
	s := NewSizer(SizerConfig{RiskFraction: 0.01})

	// 10_000 * 1% = 100 risked; stop distance 2 → 50 units.
	qty, err := s.Size(10_000, 100, 98, looseLimits())
	require.NoError(t, err)
	assert.InDelta(t, 50, qty, 1e-9)

	// Direction does not matter, only the distance.
	qty, err = s.Size(10_000, 100, 102, looseLimits())
	require.NoError(t, err)
	assert.InDelta(t, 50, qty, 1e-9)
}

func TestSizeZeroStopDistance(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())

	_, err := s.Size(10_000, 100, 100, looseLimits())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSizing)
}

func TestSizeRoundsDownToStep(t *testing.T) {
	s := NewSizer(SizerConfig{RiskFraction: 0.01})

	limits := looseLimits()
	limits.StepSize = 0.1
	// 100 / 0.3 = 333.33... → floored to 333.3
	qty, err := s.Size(10_000, 10, 9.7, limits)
	require.NoError(t, err)
	assert.InDelta(t, 333.3, qty, 1e-9)
}

func TestSizeBelowExchangeMinimums(t *testing.T) {
	s := NewSizer(SizerConfig{RiskFraction: 0.01})

	limits := looseLimits()
	limits.MinQuantity = 1
	// 10 * 1% = 0.1 risked; distance 10 → qty 0.01, below lot minimum.
	_, err := s.Size(10, 50_000, 49_990, limits)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSizing)

	limits = looseLimits()
	limits.MinNotional = 1_000_000
	_, err = s.Size(10_000, 100, 98, limits)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSizing)
}

func TestSizeNonPositiveEquity(t *testing.T) {
	s := NewSizer(DefaultSizerConfig())
	_, err := s.Size(0, 100, 98, looseLimits())
	assert.ErrorIs(t, err, domain.ErrSizing)
}
