package walletmodel

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Tokens is an amount in the smallest currency unit.
type Tokens uint64

// UnitsPerCoin is the number of Tokens in one whole coin.
const UnitsPerCoin = 100000000

const coinDecimals = 8

// Add returns t+o, saturating at math.MaxUint64. ok is false on overflow.
func (t Tokens) Add(o Tokens) (sum Tokens, ok bool) {
	if t > math.MaxUint64-o {
		return math.MaxUint64, false
	}
	return t + o, true
}

// Coins returns the amount in whole coins.
func (t Tokens) Coins() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(t)), -coinDecimals)
}

// String renders the amount in coins with all 8 decimal places, e.g. 0.00001000
func (t Tokens) String() string {
	return t.Coins().StringFixed(coinDecimals)
}

// SumTokens adds up amounts, saturating on overflow.
func SumTokens(ts ...Tokens) Tokens {
	var out Tokens
	for _, t := range ts {
		out, _ = out.Add(t)
	}
	return out
}
