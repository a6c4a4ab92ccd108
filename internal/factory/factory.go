// Package factory creates content tokens through the ContentFactory contract
// and drives the token-level writes a creator needs afterwards.
package factory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

const (
	MaxSymbolLength = 10

	createMethod = "createContentToken"
	createdEvent = "ContentTokenCreated"
)

// ErrTokenCreation means the creation transaction succeeded but no ContentTokenCreated
// event could be found in its receipt.
var ErrTokenCreation = errors.New("token creation failed")

// TokenCreationError carries the hash of the confirmed transaction whose event was missing.
type TokenCreationError struct {
	TxHash common.Hash
	Err    error
}

func (e *TokenCreationError) Error() string {
	return fmt.Sprintf("token creation %s: %v", e.TxHash.Hex(), e.Err)
}

func (e *TokenCreationError) Unwrap() error {
	return e.Err
}

func (e *TokenCreationError) Is(target error) bool {
	return target == ErrTokenCreation
}

type TokenCreationRequest struct {
	Name       string
	Symbol     string
	ContentURI string
	Creator    common.Address
	// InitialMintRecipient defaults to Creator when zero.
	InitialMintRecipient common.Address
	InitialMintAmount    *big.Int
	VestingDuration      uint64
	// ProjectID is journaled with the creation so a late confirmation can still link the token.
	ProjectID string
}

// CreatedToken is the decoded ContentTokenCreated event of a confirmed creation.
type CreatedToken struct {
	Address common.Address
	Symbol  string
}

// ValidateTokenCreationRequest checks the request without touching the network.
func ValidateTokenCreationRequest(req TokenCreationRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return chain.NewValidationError("name", "token name is required")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return chain.NewValidationError("symbol", "token symbol is required")
	}
	if utf8.RuneCountInString(req.Symbol) > MaxSymbolLength {
		return chain.NewValidationError("symbol", fmt.Sprintf("token symbol must be %d characters or less", MaxSymbolLength))
	}
	if strings.TrimSpace(req.ContentURI) == "" {
		return chain.NewValidationError("contentURI", "content URI is required")
	}
	if req.Creator == (common.Address{}) {
		return chain.NewValidationError("creator", "creator address is required")
	}
	if req.InitialMintAmount == nil || req.InitialMintAmount.Sign() <= 0 {
		return chain.NewValidationError("initialMintAmount", "initial mint amount must be greater than 0")
	}
	return nil
}

// createParams mirrors the factory's CreateParams tuple; field names must match the ABI components.
type createParams struct {
	Name                 string
	Symbol               string
	ContentURI           string
	Creator              common.Address
	VestingDuration      uint64
	InitialMintRecipient common.Address
	InitialMintAmount    *big.Int
}

type Gateway struct {
	adapter *chain.Adapter
	factory registry.Contract
	token   abi.ABI
	journal journal.Journal
	logger  logging.Logger
}

// NewGateway resolves the factory and token contracts from the deployment.
// A nil journal disables write journaling.
func NewGateway(adapter *chain.Adapter, deployment *registry.Deployment, j journal.Journal, logger logging.Logger) (*Gateway, error) {
	factoryContract, err := deployment.Contract(registry.ContentFactory)
	if err != nil {
		return nil, err
	}
	if !factoryContract.HasAddress() {
		return nil, fmt.Errorf("%w: %s has no address on chain %d", registry.ErrUnknownContract, registry.ContentFactory, deployment.ChainID)
	}
	tokenContract, err := deployment.Contract(registry.ContentToken)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		adapter: adapter,
		factory: factoryContract,
		token:   tokenContract.ABI,
		journal: j,
		logger:  logger,
	}, nil
}

// CreateToken deploys a new content token and returns its address.
// It is not retried: a failed creation is reported and the caller decides.
func (g *Gateway) CreateToken(ctx context.Context, req TokenCreationRequest, signer chain.TxSigner) (common.Address, error) {
	if err := ValidateTokenCreationRequest(req); err != nil {
		return common.Address{}, err
	}
	if signer == nil {
		return common.Address{}, chain.NewValidationError("signer", "a signing account is required")
	}

	recipient := req.InitialMintRecipient
	if recipient == (common.Address{}) {
		recipient = req.Creator
	}
	params := createParams{
		Name:                 strings.TrimSpace(req.Name),
		Symbol:               strings.TrimSpace(req.Symbol),
		ContentURI:           strings.TrimSpace(req.ContentURI),
		Creator:              req.Creator,
		VestingDuration:      req.VestingDuration,
		InitialMintRecipient: recipient,
		InitialMintAmount:    req.InitialMintAmount,
	}

	receipt, tracker, err := g.write(ctx, signer, journal.Entry{Operation: journal.OpCreateToken, ProjectID: req.ProjectID}, chain.TxRequest{
		To:     g.factory.Address,
		ABI:    g.factory.ABI,
		Method: createMethod,
		Args:   []interface{}{params},
	})
	if err != nil {
		metrics.TokensCreatedTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		return common.Address{}, err
	}

	created, err := g.CreatedToken(receipt)
	if err != nil {
		metrics.TokensCreatedTotal.WithLabelValues("missing_event").Inc()
		g.logger.Error("Token creation confirmed without a creation event",
			"tx_hash", receipt.TxHash.Hex(),
			"symbol", params.Symbol,
			"error", err)
		return common.Address{}, err
	}

	tokenAddress := created.Address
	tracker.Result(ctx, tokenAddress.Hex())
	metrics.TokensCreatedTotal.WithLabelValues("success").Inc()
	g.logger.Info("Content token created",
		"token", tokenAddress.Hex(),
		"symbol", params.Symbol,
		"creator", req.Creator.Hex(),
		"tx_hash", receipt.TxHash.Hex())
	return tokenAddress, nil
}

// CreatedToken decodes the creation event the factory emitted in receipt.
func (g *Gateway) CreatedToken(receipt *types.Receipt) (CreatedToken, error) {
	emitter := g.factory.Address
	event, err := chain.FindEvent(g.factory.ABI, receipt, createdEvent, &emitter)
	if err != nil {
		return CreatedToken{}, &TokenCreationError{TxHash: receipt.TxHash, Err: err}
	}
	tokenAddress, ok := event.AddressArg("tokenAddress")
	if !ok || tokenAddress == (common.Address{}) {
		return CreatedToken{}, &TokenCreationError{
			TxHash: receipt.TxHash,
			Err:    fmt.Errorf("%w: %s carries no token address", chain.ErrEventNotFound, createdEvent),
		}
	}
	symbol, _ := event.Args["symbol"].(string)
	return CreatedToken{Address: tokenAddress, Symbol: symbol}, nil
}

// CreationSettler finishes create_token entries confirmed after their caller timed out:
// it records the token address and links the journaled project in store.
func (g *Gateway) CreationSettler(store projects.Store) journal.Settler {
	return func(ctx context.Context, entry journal.Entry, receipt *types.Receipt) (string, error) {
		created, err := g.CreatedToken(receipt)
		if err != nil {
			g.logger.Error("Late token creation confirmed without a creation event",
				"entry", entry.ID,
				"tx_hash", entry.TxHash,
				"error", err)
			return "", nil
		}
		token := created.Address.Hex()
		if entry.ProjectID == "" || store == nil {
			return token, nil
		}

		if _, err := projects.LinkToken(ctx, store, entry.ProjectID, token, created.Symbol); err != nil {
			if errors.Is(err, projects.ErrProjectNotFound) {
				g.logger.Warn("Created token's project no longer exists", "project_id", entry.ProjectID, "token", token)
				return token, nil
			}
			return "", fmt.Errorf("failed to link %s to project %s: %w", token, entry.ProjectID, err)
		}
		g.logger.Info("Linked late token creation to project",
			"project_id", entry.ProjectID,
			"token", token,
			"tx_hash", entry.TxHash)
		return token, nil
	}
}

// UpdateContentURI points an existing token at new content.
func (g *Gateway) UpdateContentURI(ctx context.Context, token common.Address, uri string, signer chain.TxSigner) (common.Hash, error) {
	if token == (common.Address{}) {
		return common.Hash{}, chain.NewValidationError("token", "token address is required")
	}
	if strings.TrimSpace(uri) == "" {
		return common.Hash{}, chain.NewValidationError("contentURI", "content URI is required")
	}

	receipt, _, err := g.write(ctx, signer, journal.Entry{Operation: journal.OpSetContentURI}, chain.TxRequest{
		To:     token,
		ABI:    g.token,
		Method: "setContentURI",
		Args:   []interface{}{strings.TrimSpace(uri)},
	})
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// MintTokens mints amount of token to recipient. The signer needs the token's minter role.
func (g *Gateway) MintTokens(ctx context.Context, token, recipient common.Address, amount *big.Int, signer chain.TxSigner) (common.Hash, error) {
	if token == (common.Address{}) {
		return common.Hash{}, chain.NewValidationError("token", "token address is required")
	}
	if recipient == (common.Address{}) {
		return common.Hash{}, chain.NewValidationError("recipient", "recipient address is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return common.Hash{}, chain.NewValidationError("amount", "mint amount must be greater than 0")
	}

	receipt, _, err := g.write(ctx, signer, journal.Entry{Operation: journal.OpMint}, chain.TxRequest{
		To:     token,
		ABI:    g.token,
		Method: "mint",
		Args:   []interface{}{recipient, amount},
	})
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// write journals, submits and confirms one transaction.
func (g *Gateway) write(ctx context.Context, signer chain.TxSigner, entry journal.Entry, req chain.TxRequest) (*types.Receipt, *journal.Tracker, error) {
	if signer == nil {
		return nil, nil, chain.NewValidationError("signer", "a signing account is required")
	}

	entry.Account = signer.Address().Hex()
	entry.Target = req.To.Hex()
	tracker, err := journal.Begin(ctx, g.journal, g.logger, entry)
	if err != nil {
		return nil, nil, err
	}

	pending, err := g.adapter.Submit(ctx, signer, req)
	if err != nil {
		tracker.Finish(ctx, err)
		return nil, nil, err
	}
	tracker.Submitted(ctx, pending.Hash)

	receipt, err := g.adapter.WaitForConfirmation(ctx, pending)
	tracker.Finish(ctx, err)
	if err != nil {
		return nil, nil, err
	}
	return receipt, tracker, nil
}
