package trading

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

var (
	ErrSwapReverted    = errors.New("swap reverted")
	ErrApprovalFailed  = errors.New("token approval failed")
	ErrNoLiquidityPool = errors.New("no liquidity pool")

	// ErrSwapReconciliation is reported through TransactionOutcome.ReconcileErr, never returned.
	ErrSwapReconciliation = errors.New("swap output could not be reconciled")
)

// SwapRevertedError is returned when the swap failed on-chain or in gas estimation.
// TxHash is zero when the revert was detected before submission.
type SwapRevertedError struct {
	TxHash common.Hash
	Err    error
}

func (e *SwapRevertedError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("swap reverted: %v", e.Err)
	}
	return fmt.Sprintf("swap %s reverted: %v", e.TxHash.Hex(), e.Err)
}

func (e *SwapRevertedError) Unwrap() error { return e.Err }

func (e *SwapRevertedError) Is(target error) bool {
	return target == ErrSwapReverted
}

// Reason is the decoded revert reason, if the node reported one.
func (e *SwapRevertedError) Reason() string {
	return chain.RevertReason(e.Err)
}
