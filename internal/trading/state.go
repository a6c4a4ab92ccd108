package trading

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type SwapState string

const (
	StateConstructed       SwapState = "constructed"
	StateApprovalPending   SwapState = "approval_pending"
	StateApprovalConfirmed SwapState = "approval_confirmed"
	StateSwapSubmitted     SwapState = "swap_submitted"
	StateSwapConfirmed     SwapState = "swap_confirmed"
	StateSwapReverted      SwapState = "swap_reverted"
	// StateAborted: the swap was never mined (approval failed, or submission was rejected).
	StateAborted SwapState = "aborted"
	// StateUnknown: the swap was submitted but confirmation timed out.
	StateUnknown SwapState = "unknown"
)

// Transition is reported to the StateObserver on every state change.
type Transition struct {
	Side   Side
	Token  common.Address
	From   SwapState
	To     SwapState
	TxHash common.Hash
}

type StateObserver func(Transition)

// TransactionOutcome is the final result of a confirmed swap. AmountOut is nil when the
// SwapExecuted event could not be found; ReconcileErr then explains why.
type TransactionOutcome struct {
	TxHash         common.Hash
	AmountOut      *big.Int
	ApprovalTxHash *common.Hash
	State          SwapState
	Reconciled     bool
	ReconcileErr   error
}

type swapRun struct {
	side     Side
	token    common.Address
	state    SwapState
	observer StateObserver
}

func (r *swapRun) moveTo(to SwapState, txHash common.Hash) {
	from := r.state
	r.state = to
	if r.observer != nil {
		r.observer(Transition{Side: r.side, Token: r.token, From: from, To: to, TxHash: txHash})
	}
}
