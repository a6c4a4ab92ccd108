package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oxx-labs/oxx-backend/internal/eligibility"
	"github.com/oxx-labs/oxx-backend/internal/factory"
	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/internal/trading"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

// TokenCreator is satisfied by *factory.Gateway.
type TokenCreator interface {
	CreateToken(ctx context.Context, req factory.TokenCreationRequest, signer chain.TxSigner) (common.Address, error)
}

// TokenReader is satisfied by *query.Service.
type TokenReader interface {
	GetTokenDetails(ctx context.Context, token common.Address) (*query.ContentTokenInfo, error)
	GetTokenPrice(ctx context.Context, token common.Address) (string, error)
	GetAllTokens(ctx context.Context) ([]common.Address, error)
	GetAllTokensWithDetails(ctx context.Context) ([]*query.ContentTokenInfo, error)
	GetUserBalance(ctx context.Context, token, user common.Address) (string, error)
}

// Trader is satisfied by *trading.Gateway.
type Trader interface {
	Buy(ctx context.Context, req trading.BuyRequest, signer chain.TxSigner) (*trading.TransactionOutcome, error)
	Sell(ctx context.Context, req trading.SellRequest, signer chain.TxSigner) (*trading.TransactionOutcome, error)
}

// ProjectRefresher is satisfied by *reconciler.Reconciler.
type ProjectRefresher interface {
	RefreshByID(ctx context.Context, store projects.Store, id string) (*projects.Project, error)
}

// Handler serves the token, trade, project and journal routes. Signer is the operator
// account used for writes; without it write routes answer 503.
type Handler struct {
	Creator     TokenCreator
	Tokens      TokenReader
	Trader      Trader
	Refresher   ProjectRefresher
	Projects    projects.Store
	Journal     journal.Journal
	Eligibility eligibility.Policy
	Signer      chain.TxSigner
	Logger      logging.Logger
}

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, successResponse{Success: true, Data: data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, resp := classify(err)
	if resp.TxHash != "" {
		c.Set(txSubmittedKey, true)
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", "route", c.FullPath(), "code", resp.Code, "error", err)
	} else {
		h.Logger.Debug("Request rejected", "route", c.FullPath(), "code", resp.Code, "error", err)
	}
	c.JSON(status, resp)
}

func (h *Handler) requireSigner(c *gin.Context) bool {
	if h.Signer != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Code:  CodeSignerUnavailable,
		Error: "No operator account is configured for on-chain writes",
	})
	return false
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, chain.NewValidationError(field, "must be a 0x-prefixed 20-byte hex address")
	}
	return common.HexToAddress(value), nil
}

func parseOptionalAddress(field string, value *string) (*common.Address, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	addr, err := parseAddress(field, *value)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return chain.NewValidationError("body", err.Error())
	}
	return nil
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetProject returns a stored project.
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, project)
}

// RefreshProject overlays current on-chain market data onto the project. Chain failures
// are not errors here; the stored project is returned unchanged.
func (h *Handler) RefreshProject(c *gin.Context) {
	project, err := h.Refresher.RefreshByID(c.Request.Context(), h.Projects, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, project)
}

// GetJournalEntry returns one journal entry by ID.
func (h *Handler) GetJournalEntry(c *gin.Context) {
	id, err := parseUUID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	entry, err := h.Journal.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, entry)
}

// ListOpenJournalEntries returns writes whose outcome is not settled yet.
func (h *Handler) ListOpenJournalEntries(c *gin.Context) {
	entries, err := h.Journal.ListOpen(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	ok(c, http.StatusOK, entries)
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Error: "route not found"})
}

func parseUUID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, chain.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}
