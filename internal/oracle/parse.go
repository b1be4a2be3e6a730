package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseReading builds a Reading from a decimal string, keeping its exponent as Decimals.
func ParseReading(feedID, answer string, ts time.Time) (Reading, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(answer))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, answer, err)
	}
	if exp := d.Exponent(); exp < -MaxDecimals || exp > MaxDecimals {
		return Reading{}, fmt.Errorf("%w: %q exponent out of range", ErrInvalidPrice, answer)
	}
	coef, decimals := d.BigInt(), int32(0)
	if d.Exponent() < 0 {
		coef, decimals = d.Coefficient(), -d.Exponent()
	}
	if !coef.IsInt64() {
		return Reading{}, fmt.Errorf("%w: %q exceeds 64-bit precision", ErrInvalidPrice, answer)
	}
	return Reading{
		FeedID:    normaliseFeed(feedID),
		Answer:    coef.Int64(),
		Decimals:  decimals,
		UpdatedAt: ts,
	}, nil
}
