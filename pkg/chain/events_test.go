package chain_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/chain/chaintest"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

func mustABI(t *testing.T, name string) registry.Contract {
	t.Helper()
	parsed, err := registry.ABI(name)
	require.NoError(t, err)
	return registry.Contract{Name: name, ABI: parsed}
}

func TestEventTopic_KnownSignatures(t *testing.T) {
	tests := []struct {
		signature string
		topic     string
	}{
		{"Transfer(address,address,uint256)", "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		{"Approval(address,address,uint256)", "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"},
	}
	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			assert.Equal(t, common.HexToHash(tt.topic), chain.EventTopic(tt.signature))
		})
	}
}

func TestEventTopic_MatchesRegisteredABIs(t *testing.T) {
	factory := mustABI(t, registry.ContentFactory)
	lm := mustABI(t, registry.LiquidityManager)

	assert.Equal(t, factory.ABI.Events["ContentTokenCreated"].ID,
		chain.EventTopic("ContentTokenCreated(address,address,string,string,string)"))
	assert.Equal(t, lm.ABI.Events["SwapExecuted"].ID,
		chain.EventTopic("SwapExecuted(address,address,uint256,uint256)"))
}

func TestDecodeLog_RawTransferFixture(t *testing.T) {
	token := mustABI(t, registry.ContentToken)

	// Mint of 1,000,000,000 units to 0xf39F...2266 as emitted by an ERC-20.
	log := &types.Log{
		Address: common.HexToAddress("0x8552f3d5F8B9401D09b1376fACB29A3B5a6A23B2"),
		Topics: []common.Hash{
			common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
			common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000000"),
			common.HexToHash("0x000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266"),
		},
		Data: hexutil.MustDecode("0x000000000000000000000000000000000000000000000000000000003b9aca00"),
	}

	decoded, err := chain.DecodeLog(token.ABI, log)
	require.NoError(t, err)
	assert.Equal(t, "Transfer", decoded.Name)
	assert.Equal(t, common.Address{}, decoded.Args["from"])
	to, ok := decoded.AddressArg("to")
	require.True(t, ok)
	assert.Equal(t, chaintest.TestAccount, to)
	assert.Equal(t, big.NewInt(1_000_000_000), decoded.Args["value"])
}

func TestDecodeLog_ContentTokenCreated(t *testing.T) {
	factory := mustABI(t, registry.ContentFactory)
	tokenAddr := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	log := chaintest.EventLog(factory.ABI, common.HexToAddress("0x31A4c9b78422295d4c44b2E30783d3e26E1D5771"),
		"ContentTokenCreated", tokenAddr, chaintest.TestAccount, "Test", "TEST", "ipfs://x")

	decoded, err := chain.DecodeLog(factory.ABI, log)
	require.NoError(t, err)
	assert.Equal(t, "ContentTokenCreated", decoded.Name)
	assert.Equal(t, tokenAddr, decoded.Args["tokenAddress"])
	assert.Equal(t, chaintest.TestAccount, decoded.Args["creator"])
	assert.Equal(t, "Test", decoded.Args["name"])
	assert.Equal(t, "TEST", decoded.Args["symbol"])
	assert.Equal(t, "ipfs://x", decoded.Args["contentURI"])
}

func TestDecodeLog_UnknownOrMismatchedLogs_ReturnEventNotFound(t *testing.T) {
	token := mustABI(t, registry.ContentToken)

	tests := []struct {
		name string
		log  *types.Log
	}{
		{name: "no topics", log: &types.Log{}},
		{name: "unknown topic", log: &types.Log{Topics: []common.Hash{chain.EventTopic("Unknown(uint256)")}}},
		{
			// ERC-721 Transfer indexes the token ID as a third topic.
			name: "topic count mismatch",
			log: &types.Log{Topics: []common.Hash{
				chain.EventTopic("Transfer(address,address,uint256)"),
				{}, {}, common.BigToHash(big.NewInt(7)),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chain.DecodeLog(token.ABI, tt.log)
			assert.ErrorIs(t, err, chain.ErrEventNotFound)
		})
	}
}

func TestFindEvent_FiltersByEmitter(t *testing.T) {
	lm := mustABI(t, registry.LiquidityManager)
	router := common.HexToAddress("0xCC4C6076b5FDdC0dE71Cf548B310A351dbcEDcfC")
	other := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	tokenIn := common.HexToAddress("0x01")
	tokenOut := common.HexToAddress("0x02")

	receipt := &types.Receipt{Logs: []*types.Log{
		chaintest.EventLog(lm.ABI, other, "SwapExecuted", tokenIn, tokenOut, big.NewInt(1), big.NewInt(999)),
		chaintest.EventLog(lm.ABI, router, "SwapExecuted", tokenIn, tokenOut, big.NewInt(1), big.NewInt(42)),
	}}

	decoded, err := chain.FindEvent(lm.ABI, receipt, "SwapExecuted", &router)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), decoded.Args["amountOut"])

	decoded, err = chain.FindEvent(lm.ABI, receipt, "SwapExecuted", nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(999), decoded.Args["amountOut"])

	_, err = chain.FindEvent(lm.ABI, receipt, "PoolCreated", nil)
	assert.ErrorIs(t, err, chain.ErrEventNotFound)

	_, err = chain.FindEvent(lm.ABI, receipt, "NotAnEvent", nil)
	assert.ErrorIs(t, err, chain.ErrEventNotFound)
}
