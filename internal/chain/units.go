package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// tokenDecimals is the fixed-point scale of the exchange contract. Prices
// and quantities cross the wire as uint256 at this scale.
const tokenDecimals = 18

func ToUnits(value decimal.Decimal) *big.Int {
	return value.Shift(tokenDecimals).BigInt()
}

func FromUnits(value *big.Int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -tokenDecimals)
}
