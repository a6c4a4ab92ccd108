package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oxx-labs/oxx-backend/internal/trading"
	"github.com/oxx-labs/oxx-backend/pkg/types"
)

type tradeRequest struct {
	Token            string        `json:"token"`
	AmountIn         *types.BigInt `json:"amountIn"`
	AmountOutMinimum *types.BigInt `json:"amountOutMinimum"`
	SlippageBps      uint32        `json:"slippageBps"`
	Deadline         *types.BigInt `json:"deadline"`
	FeeTier          *uint32       `json:"feeTier"`
	Recipient        *string       `json:"recipient"`
	ProjectID        string        `json:"projectId"`
	// InputToken applies to buys, OutputToken to sells. Empty means the native asset.
	InputToken  *string `json:"inputToken"`
	OutputToken *string `json:"outputToken"`
}

type tradeResponse struct {
	TxHash         string        `json:"txHash"`
	State          string        `json:"state"`
	AmountOut      *types.BigInt `json:"amountOut,omitempty"`
	ApprovalTxHash string        `json:"approvalTxHash,omitempty"`
	Reconciled     bool          `json:"reconciled"`
	ReconcileError string        `json:"reconcileError,omitempty"`
}

func newTradeResponse(outcome *trading.TransactionOutcome) tradeResponse {
	resp := tradeResponse{
		TxHash:     outcome.TxHash.Hex(),
		State:      string(outcome.State),
		AmountOut:  types.NewBigInt(outcome.AmountOut),
		Reconciled: outcome.Reconciled,
	}
	if outcome.ApprovalTxHash != nil {
		resp.ApprovalTxHash = outcome.ApprovalTxHash.Hex()
	}
	if outcome.ReconcileErr != nil {
		resp.ReconcileError = outcome.ReconcileErr.Error()
	}
	return resp
}

func (h *Handler) Buy(c *gin.Context) {
	if !h.requireSigner(c) {
		return
	}
	var body tradeRequest
	if err := bindJSON(c, &body); err != nil {
		h.fail(c, err)
		return
	}
	token, err := parseAddress("token", body.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	input, err := parseOptionalAddress("inputToken", body.InputToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	recipient, err := parseOptionalAddress("recipient", body.Recipient)
	if err != nil {
		h.fail(c, err)
		return
	}

	outcome, err := h.Trader.Buy(c.Request.Context(), trading.BuyRequest{
		Token:            token,
		AmountIn:         bigOrNil(body.AmountIn),
		AmountOutMinimum: bigOrNil(body.AmountOutMinimum),
		SlippageBps:      body.SlippageBps,
		Deadline:         bigOrNil(body.Deadline),
		InputToken:       input,
		FeeTier:          body.FeeTier,
		Recipient:        addressOrZero(recipient),
		ProjectID:        body.ProjectID,
	}, h.Signer)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, newTradeResponse(outcome))
}

func (h *Handler) Sell(c *gin.Context) {
	if !h.requireSigner(c) {
		return
	}
	var body tradeRequest
	if err := bindJSON(c, &body); err != nil {
		h.fail(c, err)
		return
	}
	token, err := parseAddress("token", body.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	output, err := parseOptionalAddress("outputToken", body.OutputToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	recipient, err := parseOptionalAddress("recipient", body.Recipient)
	if err != nil {
		h.fail(c, err)
		return
	}

	outcome, err := h.Trader.Sell(c.Request.Context(), trading.SellRequest{
		Token:            token,
		AmountIn:         bigOrNil(body.AmountIn),
		AmountOutMinimum: bigOrNil(body.AmountOutMinimum),
		SlippageBps:      body.SlippageBps,
		Deadline:         bigOrNil(body.Deadline),
		OutputToken:      output,
		FeeTier:          body.FeeTier,
		Recipient:        addressOrZero(recipient),
		ProjectID:        body.ProjectID,
	}, h.Signer)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, newTradeResponse(outcome))
}
