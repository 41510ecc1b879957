package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseForexSymbol(t *testing.T) {
	t.Run("valid symbol", func(t *testing.T) {
		s, err := ParseForexSymbol("gbpusd")
		require.NoError(t, err)
		assert.Equal(t, Currency("GBP"), s.Base)
		assert.Equal(t, Currency("USD"), s.Quote)
		assert.Equal(t, "GBPUSD", s.String())
		assert.Equal(t, "USDGBP", s.Inverse().String())
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := ParseForexSymbol("EURUS")
		assert.ErrorIs(t, err, ErrInvalidSymbol)
	})

	t.Run("non letters", func(t *testing.T) {
		_, err := ParseForexSymbol("EUR1SD")
		assert.ErrorIs(t, err, ErrInvalidSymbol)
		assert.ErrorIs(t, err, ErrInvalidCurrency)
	})

	t.Run("must panics on bad input", func(t *testing.T) {
		assert.Panics(t, func() { MustForexSymbol("X") })
	})
}

func TestVolume(t *testing.T) {
	assert.Equal(t, Volume(420_000), NewVolume(42, MiniLot))
	assert.Equal(t, "4.2 LOT", NewVolume(42, MiniLot).String())
	assert.Equal(t, "0.0003 LOT", Volume(30).String())
	assert.Equal(t, Volume(12_000), Volume(12_345).RoundDown(NewVolume(1, MicroLot)))
	assert.Equal(t, Volume(7), Volume(7).RoundDown(0))
}

func TestMoney(t *testing.T) {
	m := MoneyFromMinor(100_050, "EUR")
	assert.Equal(t, "1000.50 EUR", m.String())
	assert.Equal(t, int64(100_050), m.Minor())
	assert.True(t, decimal.RequireFromString("1000.5").Equal(m.Amount))
}

func TestPrice(t *testing.T) {
	assert.Equal(t, int64(150), NewPrice(0.0015).Pipettes())
	assert.Equal(t, "0.0015", PriceFromPipettes(150).String())
	assert.InDelta(t, 1.2345, NewPrice(1.2345).Float64(), 1e-12)
}

func TestRatio(t *testing.T) {
	assert.True(t, Percent(1).Within())
	assert.True(t, Percent(100).Within())
	assert.False(t, Percent(101).Within())
	assert.False(t, Percent(-1).Within())
	assert.Equal(t, "1%", Percent(1).String())
}
