package trading

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

var now = time.Unix(1_700_000_000, 0)

func validParams() SwapParameters {
	return SwapParameters{
		TokenIn:           common.HexToAddress("0x01"),
		TokenOut:          common.HexToAddress("0x02"),
		Fee:               big.NewInt(3000),
		Recipient:         common.HexToAddress("0x03"),
		AmountIn:          big.NewInt(100),
		AmountOutMinimum:  big.NewInt(1),
		SqrtPriceLimitX96: new(big.Int),
		Deadline:          GetDeadlineTimestamp(20, now),
	}
}

func TestValidateSwapParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SwapParameters)
		field  string
	}{
		{name: "valid", mutate: func(p *SwapParameters) {}},
		{name: "zero token in", mutate: func(p *SwapParameters) { p.TokenIn = common.Address{} }, field: "tokenIn"},
		{name: "zero token out", mutate: func(p *SwapParameters) { p.TokenOut = common.Address{} }, field: "tokenOut"},
		{name: "same tokens", mutate: func(p *SwapParameters) { p.TokenOut = p.TokenIn }, field: "tokenOut"},
		{name: "zero recipient", mutate: func(p *SwapParameters) { p.Recipient = common.Address{} }, field: "recipient"},
		{name: "zero fee", mutate: func(p *SwapParameters) { p.Fee = big.NewInt(0) }, field: "fee"},
		{name: "fee over uint24", mutate: func(p *SwapParameters) { p.Fee = big.NewInt(1 << 24) }, field: "fee"},
		{name: "zero amount in", mutate: func(p *SwapParameters) { p.AmountIn = big.NewInt(0) }, field: "amountIn"},
		{name: "nil amount in", mutate: func(p *SwapParameters) { p.AmountIn = nil }, field: "amountIn"},
		{name: "zero minimum out", mutate: func(p *SwapParameters) { p.AmountOutMinimum = big.NewInt(0) }, field: "amountOutMinimum"},
		{name: "deadline now", mutate: func(p *SwapParameters) { p.Deadline = big.NewInt(now.Unix()) }, field: "deadline"},
		{name: "deadline past", mutate: func(p *SwapParameters) { p.Deadline = big.NewInt(now.Unix() - 1) }, field: "deadline"},
		{name: "nil deadline", mutate: func(p *SwapParameters) { p.Deadline = nil }, field: "deadline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := ValidateSwapParams(p, now)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *chain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGetDeadlineTimestamp_AcceptedUntilExpiry(t *testing.T) {
	p := validParams()
	p.Deadline = GetDeadlineTimestamp(20, now)

	assert.Equal(t, now.Unix()+20*60, p.Deadline.Int64())
	assert.NoError(t, ValidateSwapParams(p, now))
	assert.NoError(t, ValidateSwapParams(p, now.Add(19*time.Minute+59*time.Second)))
	assert.Error(t, ValidateSwapParams(p, now.Add(20*time.Minute)))
	assert.Error(t, ValidateSwapParams(p, now.Add(time.Hour)))
}

func TestGetDeadlineTimestamp_DefaultsMinutes(t *testing.T) {
	assert.Equal(t, now.Unix()+DefaultDeadlineMinutes*60, GetDeadlineTimestamp(0, now).Int64())
	assert.Equal(t, now.Unix()+5*60, GetDeadlineTimestamp(5, now).Int64())
}

func TestMinimumOutput(t *testing.T) {
	tests := []struct {
		name     string
		expected *big.Int
		bps      uint32
		want     int64
	}{
		{name: "one percent", expected: big.NewInt(10_000), bps: 100, want: 9_900},
		{name: "no slippage", expected: big.NewInt(10_000), bps: 0, want: 10_000},
		{name: "rounds down", expected: big.NewInt(999), bps: 50, want: 994},
		{name: "full slippage", expected: big.NewInt(10_000), bps: 10_000, want: 0},
		{name: "nil expected", expected: nil, bps: 100, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinimumOutput(tt.expected, tt.bps).Int64())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, DefaultConfig().WithFeeTier(0).Validate())
	assert.Error(t, DefaultConfig().WithFeeTier(1<<24).Validate())
	assert.Error(t, DefaultConfig().WithDeadlineMinutes(0).Validate())
	assert.Error(t, DefaultConfig().WithPath("uniswap").Validate())
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("")
	require.NoError(t, err)
	assert.Equal(t, PathLiquidityManager, p)

	p, err = ParsePath("swap-handler")
	require.NoError(t, err)
	assert.Equal(t, PathSwapHandler, p)

	_, err = ParsePath("sdk")
	assert.Error(t, err)
}
