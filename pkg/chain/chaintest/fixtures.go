package chaintest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

// Hardhat's first development account.
const TestPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var TestAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func NewSigner() *chain.Signer {
	key, err := crypto.HexToECDSA(TestPrivateKeyHex)
	if err != nil {
		panic(err)
	}
	return chain.NewSignerFromKey(key)
}

// EventLog builds the raw log the named event would emit. Values follow the event's input order.
func EventLog(contractABI abi.ABI, emitter common.Address, name string, values ...interface{}) *types.Log {
	event, ok := contractABI.Events[name]
	if !ok {
		panic(fmt.Sprintf("chaintest: event %s not in ABI", name))
	}
	if len(values) != len(event.Inputs) {
		panic(fmt.Sprintf("chaintest: %s takes %d values, got %d", name, len(event.Inputs), len(values)))
	}

	topics := []common.Hash{event.ID}
	var data []interface{}
	for i, input := range event.Inputs {
		if !input.Indexed {
			data = append(data, values[i])
			continue
		}
		switch v := values[i].(type) {
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		case common.Hash:
			topics = append(topics, v)
		default:
			panic(fmt.Sprintf("chaintest: unsupported indexed %T", v))
		}
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: pack %s data: %v", name, err))
	}
	return &types.Log{Address: emitter, Topics: topics, Data: packed}
}

// RevertRPCError mimics the JSON-RPC error a node returns for a reverting call.
type RevertRPCError struct {
	Reason string
}

func (e *RevertRPCError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertRPCError) ErrorCode() int { return 3 }

// ErrorData returns the Error(string) payload, hex encoded.
func (e *RevertRPCError) ErrorData() interface{} {
	if e.Reason == "" {
		return nil
	}
	stringType, _ := abi.NewType("string", "", nil)
	payload, err := abi.Arguments{{Type: stringType}}.Pack(e.Reason)
	if err != nil {
		panic(err)
	}
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, payload...))
}
