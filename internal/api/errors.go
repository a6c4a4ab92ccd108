package api

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/oxx-labs/oxx-backend/internal/factory"
	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/internal/trading"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
)

// Error codes returned in the "code" field of failed responses.
const (
	CodeValidation          = "validation"
	CodeInsufficientBalance = "insufficient_balance"
	CodeDeadlineExpired     = "deadline_expired"
	CodeNoLiquidityPool     = "no_liquidity_pool"
	CodeApprovalFailed      = "approval_failed"
	CodeSwapReverted        = "swap_reverted"
	CodeTransactionReverted = "transaction_reverted"
	CodeConfirmationTimeout = "confirmation_timeout"
	CodeChainUnavailable    = "chain_unavailable"
	CodeTokenCreationFailed = "token_creation_failed"
	CodeNotFound            = "not_found"
	CodeSignerUnavailable   = "signer_unavailable"
	CodeIdempotencyConflict = "idempotency_conflict"
	CodeInternal            = "internal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	TxHash  string `json:"txHash,omitempty"`
}

// classify maps an error to a status code and an actionable message. Chain and gateway
// errors are matched before generic ones since they wrap each other.
func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Success: false, TxHash: txHashOf(err)}

	var verr *chain.ValidationError
	switch {
	case errors.As(err, &verr):
		return respond(http.StatusBadRequest, resp, CodeValidation, verr.Reason)
	case errors.Is(err, chain.ErrValidation):
		return respond(http.StatusBadRequest, resp, CodeValidation, err.Error())
	case errors.Is(err, projects.ErrProjectNotFound), errors.Is(err, journal.ErrEntryNotFound):
		return respond(http.StatusNotFound, resp, CodeNotFound, err.Error())
	case chain.IsInsufficientBalance(err):
		return respond(http.StatusBadRequest, resp, CodeInsufficientBalance,
			"Insufficient balance to cover the amount and gas fees")
	case chain.IsDeadlineExpired(err):
		return respond(http.StatusBadRequest, resp, CodeDeadlineExpired,
			"The transaction deadline has passed; submit the trade again with a new deadline")
	case errors.Is(err, trading.ErrNoLiquidityPool):
		return respond(http.StatusUnprocessableEntity, resp, CodeNoLiquidityPool,
			"This token has no liquidity pool yet, so it cannot be traded")
	case errors.Is(err, trading.ErrApprovalFailed):
		return respond(http.StatusUnprocessableEntity, resp, CodeApprovalFailed,
			"Token approval failed, so the swap was not submitted")
	case errors.Is(err, trading.ErrSwapReverted):
		msg := "The swap reverted on-chain; try a higher slippage tolerance or a smaller amount"
		var reverted *trading.SwapRevertedError
		if errors.As(err, &reverted) && reverted.Reason() != "" {
			msg = "The swap reverted on-chain (" + reverted.Reason() + "); try a higher slippage tolerance or a smaller amount"
		}
		return respond(http.StatusUnprocessableEntity, resp, CodeSwapReverted, msg)
	case chain.IsTimeout(err):
		return respond(http.StatusGatewayTimeout, resp, CodeConfirmationTimeout,
			"The transaction was submitted but not confirmed in time; check its status before retrying")
	case errors.Is(err, factory.ErrTokenCreation):
		return respond(http.StatusBadGateway, resp, CodeTokenCreationFailed,
			"The creation transaction was mined but the new token address could not be read from it")
	case errors.Is(err, query.ErrTokenRead), errors.Is(err, query.ErrBalanceRead):
		return respond(http.StatusServiceUnavailable, resp, CodeChainUnavailable,
			"Could not read the token from the chain; check the address or try again shortly")
	case chain.IsReverted(err):
		msg := "The transaction reverted on-chain"
		if reason := chain.RevertReason(err); reason != "" {
			msg += ": " + reason
		}
		return respond(http.StatusUnprocessableEntity, resp, CodeTransactionReverted, msg)
	case errors.Is(err, chain.ErrChainRead), errors.Is(err, chain.ErrSubmission):
		return respond(http.StatusServiceUnavailable, resp, CodeChainUnavailable,
			"The blockchain node is unavailable; try again shortly")
	}
	return respond(http.StatusInternalServerError, resp, CodeInternal, "Internal server error")
}

func respond(status int, resp ErrorResponse, code, msg string) (int, ErrorResponse) {
	resp.Code = code
	resp.Error = msg
	return status, resp
}

func txHashOf(err error) string {
	var (
		confirmation *chain.ConfirmationError
		reverted     *trading.SwapRevertedError
		creation     *factory.TokenCreationError
	)
	var hash common.Hash
	switch {
	case errors.As(err, &reverted):
		hash = reverted.TxHash
	case errors.As(err, &creation):
		hash = creation.TxHash
	case errors.As(err, &confirmation):
		hash = confirmation.TxHash
	}
	if hash == (common.Hash{}) {
		return ""
	}
	return hash.Hex()
}
