package trading

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

const (
	DefaultFeeTier         uint32 = 3000
	DefaultDeadlineMinutes        = 20

	maxFeeTier = 1<<24 - 1
	bpsDenom   = 10_000
)

// SwapParameters mirrors the swap contract's SwapParams tuple; field names must match
// the ABI components. SqrtPriceLimitX96 is always zero: no price limit beyond AmountOutMinimum.
type SwapParameters struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
	Deadline          *big.Int
}

// ValidateSwapParams checks the parameters at construction time. The deadline must be
// strictly after now.
func ValidateSwapParams(p SwapParameters, now time.Time) error {
	if p.TokenIn == (common.Address{}) {
		return chain.NewValidationError("tokenIn", "invalid token address")
	}
	if p.TokenOut == (common.Address{}) {
		return chain.NewValidationError("tokenOut", "invalid token address")
	}
	if p.TokenIn == p.TokenOut {
		return chain.NewValidationError("tokenOut", "input and output tokens must differ")
	}
	if p.Recipient == (common.Address{}) {
		return chain.NewValidationError("recipient", "recipient address is required")
	}
	if p.Fee == nil || p.Fee.Sign() <= 0 || p.Fee.Cmp(big.NewInt(maxFeeTier)) > 0 {
		return chain.NewValidationError("fee", "fee tier must be between 1 and 16777215")
	}
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return chain.NewValidationError("amountIn", "input amount must be greater than 0")
	}
	if p.AmountOutMinimum == nil || p.AmountOutMinimum.Sign() <= 0 {
		return chain.NewValidationError("amountOutMinimum", "minimum output amount must be greater than 0")
	}
	if p.Deadline == nil || p.Deadline.Cmp(big.NewInt(now.Unix())) <= 0 {
		return chain.NewValidationError("deadline", "deadline must be in the future")
	}
	return nil
}

// GetDeadlineTimestamp returns now plus minutes as a unix timestamp.
// Non-positive minutes fall back to DefaultDeadlineMinutes.
func GetDeadlineTimestamp(minutes int, now time.Time) *big.Int {
	if minutes <= 0 {
		minutes = DefaultDeadlineMinutes
	}
	return big.NewInt(now.Add(time.Duration(minutes) * time.Minute).Unix())
}

// MinimumOutput applies a slippage tolerance in basis points to an expected output.
func MinimumOutput(expected *big.Int, slippageBps uint32) *big.Int {
	if expected == nil || expected.Sign() <= 0 || slippageBps >= bpsDenom {
		return new(big.Int)
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(bpsDenom-slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenom))
}
