package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedResolver(book *FeedBook, decimals int32, now time.Time) *Resolver {
	r := NewResolver(book, decimals)
	r.now = func() time.Time { return now }
	return r
}

func TestResolverFreshPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := NewFeedBook()
	require.NoError(t, book.SetDecimal("sol/usd", "23.4567", now.Add(-30*time.Second)))

	price, err := fixedResolver(book, 2, now).GetPrice(context.Background(), "SOL/USD", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint64(2345), price)
}

func TestResolverRejectsStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	book := NewFeedBook()
	require.NoError(t, book.SetDecimal("ETH/USD", "1800", now.Add(-61*time.Second)))

	_, err := fixedResolver(book, 0, now).GetPrice(context.Background(), "ETH/USD", 60*time.Second)
	assert.True(t, errors.Is(err, ErrPriceTooOld))
	assert.Equal(t, "too_old", Reason(err))

	price, err := fixedResolver(book, 0, now).GetPrice(context.Background(), "ETH/USD", 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1800), price)
}

func TestResolverMissingFeed(t *testing.T) {
	_, err := NewResolver(NewFeedBook(), 0).GetPrice(context.Background(), "BTC/USD", time.Minute)
	assert.True(t, errors.Is(err, ErrFeedNotFound))
	assert.Equal(t, "not_found", Reason(err))

	var nilResolver *Resolver
	_, err = nilResolver.GetPrice(context.Background(), "BTC/USD", time.Minute)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
}

func TestReadingMinorUnits(t *testing.T) {
	r := Reading{FeedID: "X", Answer: 2_345_000_000, Decimals: 8}
	assert.Equal(t, "23.45000000", r.String())

	v, err := r.MinorUnits(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2345), v)

	_, err = Reading{FeedID: "X", Answer: -5, Decimals: 0}.MinorUnits(0)
	assert.True(t, errors.Is(err, ErrInvalidPrice))

	_, err = Reading{FeedID: "X", Answer: 1, Decimals: 4}.MinorUnits(2)
	assert.True(t, errors.Is(err, ErrInvalidPrice), "sub-minor-unit price rounds to zero")
}

func TestParseReading(t *testing.T) {
	ts := time.Unix(10, 0)
	r, err := ParseReading(" btc/usd ", "101.250", ts)
	require.NoError(t, err)
	assert.Equal(t, Reading{FeedID: "BTC/USD", Answer: 101250, Decimals: 3, UpdatedAt: ts}, r)

	r, err = ParseReading("x", "1E+3", ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r.Answer)
	assert.Equal(t, int32(0), r.Decimals)

	_, err = ParseReading("x", "abc", ts)
	assert.True(t, errors.Is(err, ErrInvalidPrice))

	for _, raw := range []string{"1E-39", "1E+39", "1E-2147483647"} {
		_, err = ParseReading("x", raw, ts)
		assert.True(t, errors.Is(err, ErrInvalidPrice), raw)
	}
}

func TestMinorUnitsRejectsOutOfRangeDecimals(t *testing.T) {
	r := Reading{FeedID: "X", Answer: 1, Decimals: 2147483647}
	_, err := r.MinorUnits(2)
	assert.True(t, errors.Is(err, ErrInvalidPrice))

	r.Decimals = -1
	_, err = r.MinorUnits(2)
	assert.True(t, errors.Is(err, ErrInvalidPrice))

	r.Decimals = 0
	_, err = r.MinorUnits(MaxDecimals + 1)
	assert.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestFeedBookKeepsNewestRound(t *testing.T) {
	book := NewFeedBook()
	newer := time.Unix(200, 0)
	require.NoError(t, book.SetDecimal("a", "2", newer))
	assert.False(t, book.Set(Reading{FeedID: "A", Answer: 1, UpdatedAt: time.Unix(100, 0)}))

	r, err := book.Latest(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Answer)
	assert.Equal(t, []string{"A"}, book.Feeds())
}
