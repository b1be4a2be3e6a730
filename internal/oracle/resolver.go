package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrFeedNotFound      = errors.New("oracle: feed not found")
	ErrPriceTooOld       = errors.New("oracle: price older than allowed age")
	ErrOracleUnavailable = errors.New("oracle: unavailable")
	ErrInvalidPrice      = errors.New("oracle: invalid price")
)

// MaxDecimals bounds the scale accepted from a feed round.
const MaxDecimals = 38

// PriceResolver returns the current price of a feed in minor units, rejecting
// readings older than maxAge. A non-positive maxAge disables the age check.
type PriceResolver interface {
	GetPrice(ctx context.Context, feedID string, maxAge time.Duration) (uint64, error)
}

// FeedReader exposes the latest raw round published for a feed.
type FeedReader interface {
	Latest(ctx context.Context, feedID string) (Reading, error)
}

// Reading is one published round: Answer scaled by 10^-Decimals.
type Reading struct {
	FeedID      string    `json:"feed_id"`
	Answer      int64     `json:"answer"`
	Decimals    int32     `json:"decimals"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r Reading) Decimal() decimal.Decimal {
	return decimal.New(r.Answer, -r.Decimals)
}

// String renders the answer with its full decimal precision, e.g. "23.45000000".
func (r Reading) String() string {
	return r.Decimal().StringFixed(r.Decimals)
}

// MinorUnits converts the reading into an integer price with priceDecimals
// fractional digits, truncating the remainder.
func (r Reading) MinorUnits(priceDecimals int32) (uint64, error) {
	if r.Answer <= 0 {
		return 0, fmt.Errorf("%w: non-positive answer %d for %s", ErrInvalidPrice, r.Answer, r.FeedID)
	}
	if r.Decimals < 0 || r.Decimals > MaxDecimals || priceDecimals < 0 || priceDecimals > MaxDecimals {
		return 0, fmt.Errorf("%w: decimals %d out of range for %s", ErrInvalidPrice, r.Decimals, r.FeedID)
	}
	scaled := r.Decimal().Shift(priceDecimals).Truncate(0).BigInt()
	if scaled.Sign() <= 0 || !scaled.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit the price domain", ErrInvalidPrice, r.String())
	}
	return scaled.Uint64(), nil
}

// Resolver turns any FeedReader into a PriceResolver with an age bound.
type Resolver struct {
	reader        FeedReader
	priceDecimals int32
	now           func() time.Time
}

func NewResolver(reader FeedReader, priceDecimals int32) *Resolver {
	return &Resolver{reader: reader, priceDecimals: priceDecimals, now: time.Now}
}

func (r *Resolver) GetPrice(ctx context.Context, feedID string, maxAge time.Duration) (uint64, error) {
	if r == nil || r.reader == nil {
		return 0, ErrOracleUnavailable
	}
	reading, err := r.reader.Latest(ctx, feedID)
	if err != nil {
		return 0, err
	}
	if maxAge > 0 && r.now().Sub(reading.UpdatedAt) > maxAge {
		return 0, fmt.Errorf("%w: %s updated %s ago", ErrPriceTooOld, feedID, r.now().Sub(reading.UpdatedAt).Round(time.Second))
	}
	return reading.MinorUnits(r.priceDecimals)
}

// Reason classifies a resolver error for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFeedNotFound):
		return "not_found"
	case errors.Is(err, ErrPriceTooOld):
		return "too_old"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}
