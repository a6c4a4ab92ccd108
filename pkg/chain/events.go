package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventTopic returns the keccak256 topic of a canonical event signature,
// e.g. "Transfer(address,address,uint256)".
func EventTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// DecodedEvent is a log matched against a contract ABI.
type DecodedEvent struct {
	Name     string
	Address  common.Address
	TxHash   common.Hash
	LogIndex uint
	Args     map[string]interface{}
}

// AddressArg returns the named address argument.
func (e *DecodedEvent) AddressArg(name string) (common.Address, bool) {
	v, ok := e.Args[name].(common.Address)
	return v, ok
}

// DecodeLog matches the log's first topic against every event in contractABI and decodes
// indexed topics and data into Args. Logs from unknown events yield ErrEventNotFound.
func DecodeLog(contractABI abi.ABI, log *types.Log) (*DecodedEvent, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrEventNotFound)
	}

	event, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: no event with topic %s", ErrEventNotFound, log.Topics[0].Hex())
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		// Same signature hash but different indexing, e.g. ERC-721 Transfer against an ERC-20 ABI.
		return nil, fmt.Errorf("%w: %s expects %d indexed topics, log has %d",
			ErrEventNotFound, event.Name, len(indexed), len(log.Topics)-1)
	}

	args := make(map[string]interface{}, len(event.Inputs))
	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode %s data: %w", event.Name, err)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to decode %s topics: %w", event.Name, err)
	}

	return &DecodedEvent{
		Name:     event.Name,
		Address:  log.Address,
		TxHash:   log.TxHash,
		LogIndex: log.Index,
		Args:     args,
	}, nil
}

// FindEvent returns the first log in the receipt decoding as the named event.
// When emitter is non-nil, logs from other contracts are ignored.
func FindEvent(contractABI abi.ABI, receipt *types.Receipt, name string, emitter *common.Address) (*DecodedEvent, error) {
	event, ok := contractABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not part of the ABI", ErrEventNotFound, name)
	}
	if receipt == nil {
		return nil, fmt.Errorf("%w: %s (no receipt)", ErrEventNotFound, name)
	}

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			continue
		}
		if emitter != nil && log.Address != *emitter {
			continue
		}
		decoded, err := DecodeLog(contractABI, log)
		if err != nil {
			continue
		}
		return decoded, nil
	}

	return nil, fmt.Errorf("%w: %s in tx %s", ErrEventNotFound, name, receipt.TxHash.Hex())
}
