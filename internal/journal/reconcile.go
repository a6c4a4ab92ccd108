package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

// ReceiptSource is satisfied by chain.EthClient.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Settler finishes an operation whose receipt arrived after its caller gave up, returning the
// result to store on the entry. An error leaves the entry open for the next pass.
type Settler func(ctx context.Context, entry Entry, receipt *types.Receipt) (string, error)

// ReconcileOpen settles submitted and unknown entries whose receipt has since appeared.
// Successful entries run the settler registered for their operation before they are confirmed.
// Entries still without a receipt are left open. It returns how many entries were settled.
func ReconcileOpen(ctx context.Context, j Journal, source ReceiptSource, settlers map[Operation]Settler, logger logging.Logger) (int, error) {
	open, err := j.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, entry := range open {
		if entry.TxHash == "" || entry.Status == StatusPending {
			continue
		}

		receipt, err := source.TransactionReceipt(ctx, common.HexToHash(entry.TxHash))
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			logger.Warn("Receipt lookup failed during journal reconciliation", "entry", entry.ID, "tx_hash", entry.TxHash, "error", err)
			continue
		}
		if receipt == nil {
			continue
		}

		if receipt.Status == types.ReceiptStatusSuccessful {
			var result string
			if settle := settlers[entry.Operation]; settle != nil {
				if result, err = settle(ctx, entry, receipt); err != nil {
					logger.Warn("Journal entry mined but not settled", "entry", entry.ID, "operation", entry.Operation, "tx_hash", entry.TxHash, "error", err)
					continue
				}
			}
			err = j.MarkConfirmed(ctx, entry.ID)
			if err == nil && result != "" {
				err = j.SetResult(ctx, entry.ID, result)
			}
		} else {
			err = j.MarkFailed(ctx, entry.ID, fmt.Sprintf("reverted in block %v", receipt.BlockNumber))
		}
		if err != nil {
			logger.Error("Failed to settle journal entry", "entry", entry.ID, "error", err)
			continue
		}

		logger.Info("Settled journal entry", "entry", entry.ID, "operation", entry.Operation, "tx_hash", entry.TxHash, "status", receipt.Status)
		settled++
	}
	return settled, nil
}
