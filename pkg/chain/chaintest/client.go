// Package chaintest provides a scripted chain.EthClient that records every RPC it serves.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

// Record kinds, in the order a write produces them.
const (
	KindCall     = "call"
	KindEstimate = "estimate"
	KindSend     = "send"
	KindReceipt  = "receipt"
)

// AnyAddress registers a handler for every contract address.
var AnyAddress = common.Address{}

// Record is one served RPC.
type Record struct {
	Kind   string
	To     common.Address
	Method string
	Value  *big.Int
}

// ReceiptBuilder produces the receipt for a sent transaction.
type ReceiptBuilder func(tx *types.Transaction) *types.Receipt

type key struct {
	to       common.Address
	selector [4]byte
}

type callResponse struct {
	output []byte
	err    error
}

// Client is a scripted chain.EthClient. Unscripted calls revert; unscripted sends succeed
// with an empty receipt.
type Client struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	abis     []abi.ABI

	calls        map[key]callResponse
	estimateErrs map[key]error
	sendErrs     map[key]error
	sends        map[key]ReceiptBuilder

	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
	sent     []*types.Transaction
	records  []Record

	down             error
	withholdReceipts bool
}

var _ chain.EthClient = (*Client)(nil)

// embeddedABIs lets records name methods of every deployed contract, scripted or not.
var embeddedABIs = []string{
	registry.ContentFactory,
	registry.ContentToken,
	registry.LiquidityManager,
	registry.ReferralSystem,
	registry.UniswapV3Pool,
}

func NewClient(chainID uint64) *Client {
	c := &Client{
		chainID:      new(big.Int).SetUint64(chainID),
		gasPrice:     big.NewInt(1_000_000_000),
		calls:        make(map[key]callResponse),
		estimateErrs: make(map[key]error),
		sendErrs:     make(map[key]error),
		sends:        make(map[key]ReceiptBuilder),
		receipts:     make(map[common.Hash]*types.Receipt),
		nonces:       make(map[common.Address]uint64),
	}
	for _, name := range embeddedABIs {
		contractABI, err := registry.ABI(name)
		if err != nil {
			panic(fmt.Sprintf("chaintest: load %s ABI: %v", name, err))
		}
		c.register(contractABI)
	}
	return c
}

func selectorKey(to common.Address, contractABI abi.ABI, method string) key {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: method %s not in ABI", method))
	}
	var k key
	k.to = to
	copy(k.selector[:], m.ID)
	return k
}

func (c *Client) register(contractABI abi.ABI) {
	c.abis = append(c.abis, contractABI)
}

// OnCall scripts the return values of an eth_call.
func (c *Client) OnCall(to common.Address, contractABI abi.ABI, method string, returns ...interface{}) *Client {
	output, err := contractABI.Methods[method].Outputs.Pack(returns...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack %s outputs: %v", method, err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(contractABI)
	c.calls[selectorKey(to, contractABI, method)] = callResponse{output: output}
	return c
}

// OnCallError scripts an eth_call failure.
func (c *Client) OnCallError(to common.Address, contractABI abi.ABI, method string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(contractABI)
	c.calls[selectorKey(to, contractABI, method)] = callResponse{err: err}
	return c
}

// OnSend scripts the receipt mined for a transaction calling method.
func (c *Client) OnSend(to common.Address, contractABI abi.ABI, method string, build ReceiptBuilder) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(contractABI)
	c.sends[selectorKey(to, contractABI, method)] = build
	return c
}

// OnEstimateError makes gas estimation for method fail, as a node does for a reverting call.
func (c *Client) OnEstimateError(to common.Address, contractABI abi.ABI, method string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(contractABI)
	c.estimateErrs[selectorKey(to, contractABI, method)] = err
	return c
}

// OnSendError makes eth_sendRawTransaction for method fail.
func (c *Client) OnSendError(to common.Address, contractABI abi.ABI, method string, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.register(contractABI)
	c.sendErrs[selectorKey(to, contractABI, method)] = err
	return c
}

// SetDown makes every RPC fail with err, simulating an unreachable node. nil restores service.
func (c *Client) SetDown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = err
}

// WithholdReceipts makes TransactionReceipt report not-found forever.
func (c *Client) WithholdReceipts(withhold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withholdReceipts = withhold
}

// Records returns a copy of every served RPC in order.
func (c *Client) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Sequence returns "kind:method" for every record, in order.
func (c *Client) Sequence() []string {
	records := c.Records()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind+":"+r.Method)
	}
	return out
}

// Methods returns the method names of records of the given kind, in order.
func (c *Client) Methods(kind string) []string {
	var out []string
	for _, r := range c.Records() {
		if r.Kind == kind {
			out = append(out, r.Method)
		}
	}
	return out
}

// Sent returns the signed transactions accepted so far.
func (c *Client) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Transaction, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Client) methodName(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for _, a := range c.abis {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m.Name
		}
	}
	return hexutil.Encode(data[:4])
}

func (c *Client) lookupKey(to *common.Address, data []byte) (key, key) {
	var k key
	if to != nil {
		k.to = *to
	}
	if len(data) >= 4 {
		copy(k.selector[:], data[:4])
	}
	return k, key{to: AnyAddress, selector: k.selector}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return nil, c.down
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return nil, c.down
	}

	to := AnyAddress
	if call.To != nil {
		to = *call.To
	}
	c.records = append(c.records, Record{Kind: KindCall, To: to, Method: c.methodName(call.Data)})

	exact, wildcard := c.lookupKey(call.To, call.Data)
	resp, ok := c.calls[exact]
	if !ok {
		resp, ok = c.calls[wildcard]
	}
	if !ok {
		return nil, &RevertRPCError{}
	}
	return resp.output, resp.err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return 0, c.down
	}
	return c.nonces[account], nil
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return nil, c.down
	}
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return 0, c.down
	}

	to := AnyAddress
	if call.To != nil {
		to = *call.To
	}
	c.records = append(c.records, Record{Kind: KindEstimate, To: to, Method: c.methodName(call.Data), Value: call.Value})

	exact, wildcard := c.lookupKey(call.To, call.Data)
	if err, ok := c.estimateErrs[exact]; ok {
		return 0, err
	}
	if err, ok := c.estimateErrs[wildcard]; ok {
		return 0, err
	}
	return 100_000, nil
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return c.down
	}

	to := AnyAddress
	if tx.To() != nil {
		to = *tx.To()
	}
	c.records = append(c.records, Record{Kind: KindSend, To: to, Method: c.methodName(tx.Data()), Value: tx.Value()})

	exact, wildcard := c.lookupKey(tx.To(), tx.Data())
	if err, ok := c.sendErrs[exact]; ok {
		return err
	}
	if err, ok := c.sendErrs[wildcard]; ok {
		return err
	}

	from, err := types.Sender(types.NewEIP155Signer(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != c.nonces[from] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), c.nonces[from])
	}
	c.nonces[from]++
	c.sent = append(c.sent, tx)

	build, ok := c.sends[exact]
	if !ok {
		build, ok = c.sends[wildcard]
	}
	if !ok {
		build = Success()
	}
	receipt := build(tx)
	receipt.TxHash = tx.Hash()
	if receipt.BlockNumber == nil {
		receipt.BlockNumber = big.NewInt(int64(len(c.sent)))
	}
	for i, log := range receipt.Logs {
		log.TxHash = tx.Hash()
		log.Index = uint(i)
	}
	c.receipts[tx.Hash()] = receipt
	return nil
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down != nil {
		return nil, c.down
	}

	receipt, ok := c.receipts[txHash]
	method := ""
	for _, tx := range c.sent {
		if tx.Hash() == txHash {
			method = c.methodName(tx.Data())
		}
	}
	c.records = append(c.records, Record{Kind: KindReceipt, Method: method})

	if !ok || c.withholdReceipts {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// Success mines the transaction with the given logs.
func Success(logs ...*types.Log) ReceiptBuilder {
	return func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:  types.ReceiptStatusSuccessful,
			GasUsed: 21_000,
			Logs:    logs,
		}
	}
}

// Reverted mines the transaction with status 0.
func Reverted() ReceiptBuilder {
	return func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:  types.ReceiptStatusFailed,
			GasUsed: 21_000,
		}
	}
}

// ErrNodeDown is a convenient unreachable-node error.
var ErrNodeDown = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
