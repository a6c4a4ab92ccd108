// Package trading executes buy and sell swaps of content tokens, including the ERC20
// approval that must be confirmed before a swap can spend a token.
package trading

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

const swapExecutedEvent = "SwapExecuted"

// Quoter prices a token in the paired asset. *query.Service satisfies it.
type Quoter interface {
	Quote(ctx context.Context, token common.Address) (query.Quote, error)
}

type BuyRequest struct {
	Token    common.Address
	AmountIn *big.Int
	// AmountOutMinimum may be nil when SlippageBps is set; it is then derived from a quote.
	AmountOutMinimum *big.Int
	SlippageBps      uint32
	// Deadline defaults to now plus the configured deadline minutes.
	Deadline *big.Int
	// InputToken nil spends the native asset.
	InputToken *common.Address
	FeeTier    *uint32
	// Recipient defaults to the signer.
	Recipient common.Address
	ProjectID string
}

type SellRequest struct {
	Token            common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	SlippageBps      uint32
	Deadline         *big.Int
	// OutputToken nil receives the wrapped native asset.
	OutputToken *common.Address
	FeeTier     *uint32
	Recipient   common.Address
	ProjectID   string
}

type Gateway struct {
	adapter          *chain.Adapter
	swapContract     registry.Contract
	liquidityManager registry.Contract
	erc20            abi.ABI
	quoter           Quoter
	journal          journal.Journal
	config           *Config
	logger           logging.Logger
}

// NewGateway resolves the swap contract for the configured path. quoter and j may be nil:
// without a quoter AmountOutMinimum is required, without a journal writes are not journaled.
func NewGateway(adapter *chain.Adapter, deployment *registry.Deployment, quoter Quoter, j journal.Journal, config *Config, logger logging.Logger) (*Gateway, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trading config: %w", err)
	}

	swapContract, err := deployment.Contract(config.Path.contractName())
	if err != nil {
		return nil, fmt.Errorf("trading path %s: %w", config.Path, err)
	}
	if !swapContract.HasAddress() {
		return nil, fmt.Errorf("trading path %s: %s has no address", config.Path, swapContract.Name)
	}
	liquidityManager, err := deployment.Contract(registry.LiquidityManager)
	if err != nil {
		return nil, err
	}
	token, err := deployment.Contract(registry.ContentToken)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		adapter:          adapter,
		swapContract:     swapContract,
		liquidityManager: liquidityManager,
		erc20:            token.ABI,
		quoter:           quoter,
		journal:          j,
		config:           config,
		logger:           logger,
	}, nil
}

// SwapContract is the address approvals are granted to.
func (g *Gateway) SwapContract() common.Address {
	return g.swapContract.Address
}

// WrappedNative returns the configured WETH9 address, or reads it from the LiquidityManager.
func (g *Gateway) WrappedNative(ctx context.Context) (common.Address, error) {
	if g.config.WrappedNative != (common.Address{}) {
		return g.config.WrappedNative, nil
	}
	return chain.CallOne[common.Address](ctx, g.adapter, chain.CallRequest{
		To:     g.liquidityManager.Address,
		ABI:    g.liquidityManager.ABI,
		Method: "WETH9",
	})
}

// Buy swaps InputToken (or the native asset) for Token. Spending a token other than the
// native or wrapped native asset requires a confirmed approval first.
func (g *Gateway) Buy(ctx context.Context, req BuyRequest, signer chain.TxSigner) (*TransactionOutcome, error) {
	if signer == nil {
		return nil, chain.NewValidationError("signer", "a signing account is required")
	}
	if err := g.precheck(req.Token, "inputToken", req.InputToken, req.AmountIn, req.AmountOutMinimum, req.SlippageBps, req.FeeTier, req.Deadline); err != nil {
		return nil, err
	}
	weth, err := g.WrappedNative(ctx)
	if err != nil {
		return nil, err
	}

	tokenIn := weth
	if req.InputToken != nil {
		tokenIn = *req.InputToken
	}
	spendsNative := req.InputToken == nil || tokenIn == weth

	minOut, err := g.minimumOutput(ctx, SideBuy, req.Token, req.AmountIn, req.AmountOutMinimum, req.SlippageBps)
	if err != nil {
		return nil, err
	}
	params := g.buildParams(tokenIn, req.Token, req.FeeTier, recipientOr(req.Recipient, signer), req.AmountIn, minOut, req.Deadline)

	var approve *common.Address
	value := new(big.Int)
	if spendsNative {
		value = params.AmountIn
	} else {
		approve = &tokenIn
	}
	return g.execute(ctx, SideBuy, req.Token, req.ProjectID, params, approve, value, signer)
}

// Sell swaps Token for OutputToken (or the wrapped native asset). The token approval is
// always confirmed before the swap is submitted.
func (g *Gateway) Sell(ctx context.Context, req SellRequest, signer chain.TxSigner) (*TransactionOutcome, error) {
	if signer == nil {
		return nil, chain.NewValidationError("signer", "a signing account is required")
	}
	if err := g.precheck(req.Token, "outputToken", req.OutputToken, req.AmountIn, req.AmountOutMinimum, req.SlippageBps, req.FeeTier, req.Deadline); err != nil {
		return nil, err
	}

	var tokenOut common.Address
	if req.OutputToken != nil {
		tokenOut = *req.OutputToken
	} else {
		weth, err := g.WrappedNative(ctx)
		if err != nil {
			return nil, err
		}
		tokenOut = weth
	}

	minOut, err := g.minimumOutput(ctx, SideSell, req.Token, req.AmountIn, req.AmountOutMinimum, req.SlippageBps)
	if err != nil {
		return nil, err
	}
	params := g.buildParams(req.Token, tokenOut, req.FeeTier, recipientOr(req.Recipient, signer), req.AmountIn, minOut, req.Deadline)

	approve := req.Token
	return g.execute(ctx, SideSell, req.Token, req.ProjectID, params, &approve, new(big.Int), signer)
}

// precheck rejects a request using only its own fields and the clock, before any chain
// read. execute validates the assembled parameters again once WETH9 and quotes are known.
func (g *Gateway) precheck(token common.Address, counterField string, counter *common.Address, amountIn, explicitMin *big.Int, slippageBps uint32, fee *uint32, deadline *big.Int) error {
	if token == (common.Address{}) {
		return chain.NewValidationError("token", "invalid token address")
	}
	if counter != nil {
		if *counter == (common.Address{}) {
			return chain.NewValidationError(counterField, "invalid token address")
		}
		if *counter == token {
			return chain.NewValidationError(counterField, "input and output tokens must differ")
		}
	}
	feeTier := g.config.FeeTier
	if fee != nil {
		feeTier = *fee
	}
	if feeTier == 0 || feeTier > maxFeeTier {
		return chain.NewValidationError("fee", "fee tier must be between 1 and 16777215")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return chain.NewValidationError("amountIn", "input amount must be greater than 0")
	}
	if explicitMin != nil {
		if explicitMin.Sign() <= 0 {
			return chain.NewValidationError("amountOutMinimum", "minimum output amount must be greater than 0")
		}
	} else if g.quoter == nil || slippageBps == 0 {
		return chain.NewValidationError("amountOutMinimum", "minimum output amount or slippage tolerance is required")
	} else if slippageBps >= bpsDenom {
		return chain.NewValidationError("slippageBps", "slippage tolerance must be below 10000 basis points")
	}
	if deadline != nil && deadline.Cmp(big.NewInt(g.config.Now().Unix())) <= 0 {
		return chain.NewValidationError("deadline", "deadline must be in the future")
	}
	return nil
}

func recipientOr(recipient common.Address, signer chain.TxSigner) common.Address {
	if recipient == (common.Address{}) {
		return signer.Address()
	}
	return recipient
}

func (g *Gateway) buildParams(tokenIn, tokenOut common.Address, fee *uint32, recipient common.Address, amountIn, minOut, deadline *big.Int) SwapParameters {
	feeTier := g.config.FeeTier
	if fee != nil {
		feeTier = *fee
	}
	if deadline == nil {
		deadline = GetDeadlineTimestamp(g.config.DeadlineMinutes, g.config.Now())
	}
	return SwapParameters{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               new(big.Int).SetUint64(uint64(feeTier)),
		Recipient:         recipient,
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
		Deadline:          deadline,
	}
}

// minimumOutput returns the caller's floor, or derives one from a pool quote and slippage.
func (g *Gateway) minimumOutput(ctx context.Context, side Side, token common.Address, amountIn, explicit *big.Int, slippageBps uint32) (*big.Int, error) {
	if explicit != nil {
		return explicit, nil
	}
	if g.quoter == nil || slippageBps == 0 {
		return nil, chain.NewValidationError("amountOutMinimum", "minimum output amount or slippage tolerance is required")
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, chain.NewValidationError("amountIn", "input amount must be greater than 0")
	}

	quote, err := g.quoter.Quote(ctx, token)
	if err != nil {
		return nil, err
	}
	if !quote.HasPool || !quote.Price.IsPositive() {
		return nil, fmt.Errorf("%w for %s", ErrNoLiquidityPool, token.Hex())
	}

	in := decimal.NewFromBigInt(amountIn, 0)
	var expected decimal.Decimal
	if side == SideBuy {
		expected = in.DivRound(quote.Price, 0)
	} else {
		expected = in.Mul(quote.Price).Floor()
	}
	return MinimumOutput(expected.BigInt(), slippageBps), nil
}

func (g *Gateway) execute(ctx context.Context, side Side, token common.Address, projectID string, params SwapParameters, approveToken *common.Address, value *big.Int, signer chain.TxSigner) (*TransactionOutcome, error) {
	run := &swapRun{side: side, token: token, state: StateConstructed, observer: g.config.Observer}
	if err := ValidateSwapParams(params, g.config.Now()); err != nil {
		return nil, err
	}

	outcome := &TransactionOutcome{}
	if approveToken != nil {
		run.moveTo(StateApprovalPending, common.Hash{})
		hash, err := g.approve(ctx, *approveToken, params.AmountIn, projectID, signer)
		if err != nil {
			run.moveTo(StateAborted, hash)
			metrics.SwapsTotal.WithLabelValues(string(side), string(StateAborted)).Inc()
			return nil, fmt.Errorf("%w: %w", ErrApprovalFailed, err)
		}
		outcome.ApprovalTxHash = &hash
	}
	run.moveTo(StateApprovalConfirmed, common.Hash{})

	op := journal.OpBuy
	if side == SideSell {
		op = journal.OpSell
	}
	tracker, err := journal.Begin(ctx, g.journal, g.logger, journal.Entry{
		Operation: op,
		ProjectID: projectID,
		Account:   signer.Address().Hex(),
		Target:    token.Hex(),
	})
	if err != nil {
		run.moveTo(StateAborted, common.Hash{})
		return nil, err
	}

	pending, err := g.adapter.Submit(ctx, signer, chain.TxRequest{
		To:     g.swapContract.Address,
		ABI:    g.swapContract.ABI,
		Method: "swap",
		Args:   []interface{}{params},
		Value:  value,
	})
	if err != nil {
		tracker.Finish(ctx, err)
		if chain.IsReverted(err) {
			run.moveTo(StateSwapReverted, common.Hash{})
			metrics.SwapsTotal.WithLabelValues(string(side), string(StateSwapReverted)).Inc()
			return nil, &SwapRevertedError{Err: err}
		}
		run.moveTo(StateAborted, common.Hash{})
		metrics.SwapsTotal.WithLabelValues(string(side), string(StateAborted)).Inc()
		return nil, err
	}
	tracker.Submitted(ctx, pending.Hash)
	run.moveTo(StateSwapSubmitted, pending.Hash)

	receipt, err := g.adapter.WaitForConfirmation(ctx, pending)
	tracker.Finish(ctx, err)
	if err != nil {
		if chain.IsReverted(err) {
			run.moveTo(StateSwapReverted, pending.Hash)
			metrics.SwapsTotal.WithLabelValues(string(side), string(StateSwapReverted)).Inc()
			g.logger.Warn("Swap reverted", "side", side, "token", token.Hex(), "tx_hash", pending.Hash.Hex())
			return nil, &SwapRevertedError{TxHash: pending.Hash, Err: err}
		}
		run.moveTo(StateUnknown, pending.Hash)
		metrics.SwapsTotal.WithLabelValues(string(side), string(StateUnknown)).Inc()
		return nil, err
	}

	run.moveTo(StateSwapConfirmed, pending.Hash)
	metrics.SwapsTotal.WithLabelValues(string(side), string(StateSwapConfirmed)).Inc()
	outcome.TxHash = pending.Hash
	outcome.State = StateSwapConfirmed

	amountOut, err := g.amountOut(receipt)
	if err != nil {
		metrics.SwapsUnreconciledTotal.Inc()
		outcome.ReconcileErr = fmt.Errorf("%w: %w", ErrSwapReconciliation, err)
		g.logger.Warn("Swap confirmed without a readable SwapExecuted event",
			"side", side,
			"token", token.Hex(),
			"tx_hash", pending.Hash.Hex(),
			"error", err)
		return outcome, nil
	}
	outcome.AmountOut = amountOut
	outcome.Reconciled = true

	g.logger.Info("Swap confirmed",
		"side", side,
		"token", token.Hex(),
		"amount_in", params.AmountIn.String(),
		"amount_out", amountOut.String(),
		"tx_hash", pending.Hash.Hex())
	return outcome, nil
}

// approve grants the swap contract an allowance of amount and waits for it to be mined.
func (g *Gateway) approve(ctx context.Context, token common.Address, amount *big.Int, projectID string, signer chain.TxSigner) (common.Hash, error) {
	tracker, err := journal.Begin(ctx, g.journal, g.logger, journal.Entry{
		Operation: journal.OpApprove,
		ProjectID: projectID,
		Account:   signer.Address().Hex(),
		Target:    token.Hex(),
	})
	if err != nil {
		return common.Hash{}, err
	}

	pending, err := g.adapter.Submit(ctx, signer, chain.TxRequest{
		To:     token,
		ABI:    g.erc20,
		Method: "approve",
		Args:   []interface{}{g.swapContract.Address, amount},
	})
	if err != nil {
		tracker.Finish(ctx, err)
		return common.Hash{}, err
	}
	tracker.Submitted(ctx, pending.Hash)

	_, err = g.adapter.WaitForConfirmation(ctx, pending)
	tracker.Finish(ctx, err)
	if err != nil {
		return pending.Hash, err
	}
	return pending.Hash, nil
}

func (g *Gateway) amountOut(receipt *types.Receipt) (*big.Int, error) {
	emitter := g.swapContract.Address
	event, err := chain.FindEvent(g.swapContract.ABI, receipt, swapExecutedEvent, &emitter)
	if err != nil {
		return nil, err
	}
	amount, ok := event.Args["amountOut"].(*big.Int)
	if !ok || amount == nil {
		return nil, fmt.Errorf("%w: %s has no amountOut", chain.ErrEventNotFound, swapExecutedEvent)
	}
	return amount, nil
}
