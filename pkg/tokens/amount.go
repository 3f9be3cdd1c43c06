package tokens

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDisplay scales a raw amount by 10^decimals. Precision beyond a float64
// mantissa is dropped.
func ToDisplay(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}
