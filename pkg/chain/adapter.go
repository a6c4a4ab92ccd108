package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/retry"
)

// CallRequest is a read-only contract call.
type CallRequest struct {
	To     common.Address
	ABI    abi.ABI
	Method string
	Args   []interface{}
}

// TxRequest is a state-changing contract call.
type TxRequest struct {
	To     common.Address
	ABI    abi.ABI
	Method string
	Args   []interface{}
	Value  *big.Int
}

// PendingTx is the handle returned as soon as a transaction is accepted by the node.
type PendingTx struct {
	Hash        common.Hash
	From        common.Address
	To          common.Address
	Nonce       uint64
	Method      string
	SubmittedAt time.Time
}

// Adapter wraps an EthClient with pack/unpack, signing and confirmation handling.
// It holds no state besides the cached chain ID and is safe for concurrent use.
type Adapter struct {
	client   EthClient
	config   *Config
	logger   logging.Logger
	observer Observer

	chainIDMu sync.Mutex
	chainID   *big.Int
}

func NewAdapter(client EthClient, config *Config, logger logging.Logger) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("eth client is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain config: %w", err)
	}
	observer := config.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Adapter{
		client:   client,
		config:   config,
		logger:   logger,
		observer: observer,
	}, nil
}

// ChainID returns the connected chain's ID, fetched once.
func (a *Adapter) ChainID(ctx context.Context) (*big.Int, error) {
	a.chainIDMu.Lock()
	defer a.chainIDMu.Unlock()

	if a.chainID != nil {
		return a.chainID, nil
	}
	id, err := a.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get chain ID: %v", ErrChainRead, err)
	}
	a.chainID = id
	return id, nil
}

// Call packs the arguments, runs eth_call against the latest block and unpacks the outputs.
func (a *Adapter) Call(ctx context.Context, req CallRequest) ([]interface{}, error) {
	start := time.Now()
	out, err := a.call(ctx, req)
	a.observer.ObserveRead(req.Method, time.Since(start), err)
	return out, err
}

func (a *Adapter) call(ctx context.Context, req CallRequest) ([]interface{}, error) {
	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack %s: %v", ErrValidation, req.Method, err)
	}

	to := req.To
	msg := ethereum.CallMsg{To: &to, Data: data}
	raw, err := retry.Retry(ctx, func() ([]byte, error) {
		out, callErr := a.client.CallContract(ctx, msg, nil)
		if callErr != nil {
			if revert, ok := asRevert(callErr); ok {
				return nil, retry.Permanent(revert)
			}
			return nil, callErr
		}
		return out, nil
	}, a.config.ReadRetry, a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s: %w", ErrChainRead, req.Method, req.To.Hex(), err)
	}

	values, err := req.ABI.Unpack(req.Method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unpack %s from %s: %v", ErrChainRead, req.Method, req.To.Hex(), err)
	}
	return values, nil
}

// CallOne runs a call with a single return value and asserts its Go type.
func CallOne[T any](ctx context.Context, a *Adapter, req CallRequest) (T, error) {
	var zero T
	values, err := a.Call(ctx, req)
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, fmt.Errorf("%w: %s returned no values", ErrChainRead, req.Method)
	}
	v, ok := values[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrChainRead, req.Method, values[0], zero)
	}
	return v, nil
}

// Submit signs and sends a transaction and returns without waiting for it to be mined.
// It is never retried: resending a write could duplicate its effect.
func (a *Adapter) Submit(ctx context.Context, signer TxSigner, req TxRequest) (*PendingTx, error) {
	pending, err := a.submit(ctx, signer, req)
	a.observer.ObserveSubmit(req.Method, err)
	return pending, err
}

func (a *Adapter) submit(ctx context.Context, signer TxSigner, req TxRequest) (*PendingTx, error) {
	if signer == nil {
		return nil, NewValidationError("signer", "a signing account is required")
	}
	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack %s: %v", ErrValidation, req.Method, err)
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	chainID, err := a.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}

	from := signer.Address()
	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get nonce for %s: %v", ErrSubmission, from.Hex(), err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas price: %v", ErrSubmission, err)
	}

	to := req.To
	estimatedGas, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s would fail: %w", ErrSubmission, req.Method, classifySendError(err))
	}
	gasLimit := estimatedGas * (100 + a.config.GasLimitBufferPercent) / 100

	tx := types.NewTransaction(nonce, req.To, value, gasLimit, gasPrice, data)
	signedTx, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign %s: %v", ErrValidation, req.Method, err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: failed to send %s: %w", ErrSubmission, req.Method, classifySendError(err))
	}

	a.logger.Info("Transaction submitted",
		"method", req.Method,
		"tx_hash", signedTx.Hash().Hex(),
		"from", from.Hex(),
		"to", req.To.Hex(),
		"nonce", nonce,
		"gas_limit", gasLimit)

	return &PendingTx{
		Hash:        signedTx.Hash(),
		From:        from,
		To:          req.To,
		Nonce:       nonce,
		Method:      req.Method,
		SubmittedAt: time.Now(),
	}, nil
}

// WaitForConfirmation polls for the receipt until it arrives or the confirmation timeout elapses.
// A timeout yields a ConfirmationError with ReasonTimeout; a mined failure yields ReasonReverted
// together with the receipt.
func (a *Adapter) WaitForConfirmation(ctx context.Context, pending *PendingTx) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := a.waitForConfirmation(ctx, pending)
	a.observer.ObserveConfirmation(pending.Method, time.Since(start), err)
	return receipt, err
}

func (a *Adapter) waitForConfirmation(ctx context.Context, pending *PendingTx) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.config.ConfirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(waitCtx, pending.Hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				a.logger.Warn("Transaction reverted",
					"method", pending.Method,
					"tx_hash", pending.Hash.Hex(),
					"block", receipt.BlockNumber)
				return receipt, &ConfirmationError{TxHash: pending.Hash, Reason: ReasonReverted, Receipt: receipt}
			}
			a.logger.Debug("Transaction confirmed",
				"method", pending.Method,
				"tx_hash", pending.Hash.Hex(),
				"gas_used", receipt.GasUsed)
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			a.logger.Debug("Receipt poll failed", "tx_hash", pending.Hash.Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			a.logger.Warn("Transaction confirmation timed out",
				"method", pending.Method,
				"tx_hash", pending.Hash.Hex(),
				"waited", time.Since(pending.SubmittedAt).String())
			return nil, &ConfirmationError{TxHash: pending.Hash, Reason: ReasonTimeout, Err: waitCtx.Err()}
		case <-ticker.C:
		}
	}
}

// SubmitAndWait is Submit followed by WaitForConfirmation. The pending handle is returned
// even when confirmation fails so callers can record the hash.
func (a *Adapter) SubmitAndWait(ctx context.Context, signer TxSigner, req TxRequest) (*PendingTx, *types.Receipt, error) {
	pending, err := a.Submit(ctx, signer, req)
	if err != nil {
		return nil, nil, err
	}
	receipt, err := a.WaitForConfirmation(ctx, pending)
	return pending, receipt, err
}

func classifySendError(err error) error {
	if revert, ok := asRevert(err); ok {
		return revert
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return err
}

// asRevert extracts a revert from a node error, decoding Error(string) payloads when present.
func asRevert(err error) (*RevertError, bool) {
	var existing *RevertError
	if errors.As(err, &existing) {
		return existing, true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return &RevertError{Reason: reason, Err: err}, true
				}
			}
		}
	}

	const marker = "execution reverted"
	msg := err.Error()
	if i := strings.Index(msg, marker); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(marker):], ":"))
		return &RevertError{Reason: reason, Err: err}, true
	}
	return nil, false
}
