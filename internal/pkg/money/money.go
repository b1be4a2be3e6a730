// Package money holds the integer arithmetic used for positions and valuations.
// Ledger amounts use checked addition; valuations saturate at math.MaxUint64.
package money

import (
	"math"

	"github.com/holiman/uint256"
)

// Unbounded marks a saturated value or an obligation without measurable debt.
const Unbounded uint64 = math.MaxUint64

// maxValueDecimals is the largest scale that can still leave a non-zero quotient:
// amount*price < 2^128 < 10^39.
const maxValueDecimals = 38

// CheckedAdd returns a+b, or ok=false when the sum does not fit in 64 bits.
func CheckedAdd(a, b uint64) (uint64, bool) {
	sum := new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b))
	if !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

func SaturatingAdd(a, b uint64) uint64 {
	return clamp(new(uint256.Int).Add(uint256.NewInt(a), uint256.NewInt(b)))
}

func SaturatingMul(a, b uint64) uint64 {
	return clamp(new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b)))
}

// DivOrZero returns a/b, or zero when b is zero.
func DivOrZero(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Value converts amount native units at a per-whole-unit price into minor units:
// amount * price / 10^decimals, computed exactly and saturated to 64 bits.
func Value(amount, price uint64, decimals uint8) uint64 {
	if decimals > maxValueDecimals {
		return 0
	}
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(price))
	if decimals > 0 {
		scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
		product.Div(product, scale)
	}
	return clamp(product)
}

// ValueCeil is Value rounded up: any non-zero product is worth at least one minor unit.
func ValueCeil(amount, price uint64, decimals uint8) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(price))
	if product.IsZero() {
		return 0
	}
	if decimals > maxValueDecimals {
		return 1
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	quo, rem := new(uint256.Int), new(uint256.Int)
	quo.DivMod(product, scale, rem)
	if !rem.IsZero() {
		quo.AddUint64(quo, 1)
	}
	return clamp(quo)
}

func clamp(v *uint256.Int) uint64 {
	if !v.IsUint64() {
		return Unbounded
	}
	return v.Uint64()
}
