// Package query reads content-token state from the chain. Every call is a fresh
// round-trip; nothing is cached.
package query

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
	"github.com/oxx-labs/oxx-backend/pkg/types"
)

// NoLiquidityPool is returned by GetTokenPrice for tokens without a pool.
const NoLiquidityPool = "N/A (No liquidity pool)"

// PriceDecimals is the precision of computed pool prices.
const PriceDecimals = 18

const defaultConcurrency = 8

var (
	ErrTokenRead   = errors.New("token read failed")
	ErrBalanceRead = errors.New("balance read failed")
)

type TokenReadError struct {
	Token common.Address
	Err   error
}

func (e *TokenReadError) Error() string {
	return fmt.Sprintf("failed to read token %s: %v", e.Token.Hex(), e.Err)
}

func (e *TokenReadError) Unwrap() error       { return e.Err }
func (e *TokenReadError) Is(target error) bool { return target == ErrTokenRead }

type BalanceReadError struct {
	Token common.Address
	User  common.Address
	Err   error
}

func (e *BalanceReadError) Error() string {
	return fmt.Sprintf("failed to read %s balance of %s: %v", e.Token.Hex(), e.User.Hex(), e.Err)
}

func (e *BalanceReadError) Unwrap() error       { return e.Err }
func (e *BalanceReadError) Is(target error) bool { return target == ErrBalanceRead }

// ContentTokenInfo is a live snapshot of a content token. Price and PoolAddress are nil,
// and omitted from JSON, when the token has no pool.
type ContentTokenInfo struct {
	Address     string        `json:"address"`
	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	ContentURI  string        `json:"contentURI"`
	Creator     string        `json:"creator"`
	TotalSupply *types.BigInt `json:"totalSupply"`
	Price       *string       `json:"price,omitempty"`
	PoolAddress *string       `json:"poolAddress,omitempty"`
}

// Quote is the numeric form of a token price.
type Quote struct {
	HasPool bool
	Pool    common.Address
	// Price is in units of the paired asset per token.
	Price decimal.Decimal
}

type Service struct {
	adapter          *chain.Adapter
	factory          registry.Contract
	liquidityManager registry.Contract
	token            abi.ABI
	pool             abi.ABI
	concurrency      int
	logger           logging.Logger
}

func NewService(adapter *chain.Adapter, deployment *registry.Deployment, logger logging.Logger) (*Service, error) {
	s := &Service{adapter: adapter, concurrency: defaultConcurrency, logger: logger}

	var err error
	if s.factory, err = deployment.Contract(registry.ContentFactory); err != nil {
		return nil, err
	}
	if s.liquidityManager, err = deployment.Contract(registry.LiquidityManager); err != nil {
		return nil, err
	}
	token, err := deployment.Contract(registry.ContentToken)
	if err != nil {
		return nil, err
	}
	pool, err := deployment.Contract(registry.UniswapV3Pool)
	if err != nil {
		return nil, err
	}
	s.token = token.ABI
	s.pool = pool.ABI
	return s, nil
}

// WithConcurrency bounds the fan-out of GetAllTokensWithDetails.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

func (s *Service) tokenCall(token common.Address, method string, args ...interface{}) chain.CallRequest {
	return chain.CallRequest{To: token, ABI: s.token, Method: method, Args: args}
}

// GetTokenDetails reads the token's core fields in parallel, then its pool and price.
// Any failed read fails the whole call with ErrTokenRead.
func (s *Service) GetTokenDetails(ctx context.Context, token common.Address) (*ContentTokenInfo, error) {
	var (
		name, symbol, contentURI string
		creator                  common.Address
		totalSupply              *big.Int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		name, err = chain.CallOne[string](gctx, s.adapter, s.tokenCall(token, "name"))
		return err
	})
	g.Go(func() (err error) {
		symbol, err = chain.CallOne[string](gctx, s.adapter, s.tokenCall(token, "symbol"))
		return err
	})
	g.Go(func() (err error) {
		contentURI, err = chain.CallOne[string](gctx, s.adapter, s.tokenCall(token, "contentURI"))
		return err
	})
	g.Go(func() (err error) {
		creator, err = chain.CallOne[common.Address](gctx, s.adapter, s.tokenCall(token, "contentCreator"))
		return err
	})
	g.Go(func() (err error) {
		totalSupply, err = chain.CallOne[*big.Int](gctx, s.adapter, s.tokenCall(token, "totalSupply"))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &TokenReadError{Token: token, Err: err}
	}

	info := &ContentTokenInfo{
		Address:     token.Hex(),
		Name:        name,
		Symbol:      symbol,
		ContentURI:  contentURI,
		Creator:     creator.Hex(),
		TotalSupply: types.NewBigInt(totalSupply),
	}

	quote, err := s.Quote(ctx, token)
	if err != nil {
		return nil, &TokenReadError{Token: token, Err: err}
	}
	if quote.HasPool {
		pool := quote.Pool.Hex()
		price := quote.Price.String()
		info.PoolAddress = &pool
		info.Price = &price
	}
	return info, nil
}

// GetTokenPrice returns the price in the paired asset, or NoLiquidityPool. A missing pool
// is not an error.
func (s *Service) GetTokenPrice(ctx context.Context, token common.Address) (string, error) {
	quote, err := s.Quote(ctx, token)
	if err != nil {
		return "", err
	}
	if !quote.HasPool {
		return NoLiquidityPool, nil
	}
	return quote.Price.String(), nil
}

// Quote resolves the token's pool and prices it from the pool's current sqrtPriceX96.
func (s *Service) Quote(ctx context.Context, token common.Address) (Quote, error) {
	pool, err := s.PoolAddress(ctx, token)
	if err != nil {
		return Quote{}, err
	}
	if pool == (common.Address{}) {
		return Quote{}, nil
	}

	price, err := s.poolPrice(ctx, token, pool)
	if err != nil {
		return Quote{}, err
	}
	return Quote{HasPool: true, Pool: pool, Price: price}, nil
}

// PoolAddress returns the token's pool, or the zero address when none exists.
func (s *Service) PoolAddress(ctx context.Context, token common.Address) (common.Address, error) {
	return chain.CallOne[common.Address](ctx, s.adapter, chain.CallRequest{
		To:     s.liquidityManager.Address,
		ABI:    s.liquidityManager.ABI,
		Method: "tokenToPair",
		Args:   []interface{}{token},
	})
}

func (s *Service) poolPrice(ctx context.Context, token, pool common.Address) (decimal.Decimal, error) {
	var (
		sqrtPriceX96 *big.Int
		token0       common.Address
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := s.adapter.Call(gctx, chain.CallRequest{To: pool, ABI: s.pool, Method: "slot0"})
		if err != nil {
			return err
		}
		v, ok := values[0].(*big.Int)
		if !ok {
			return fmt.Errorf("%w: slot0 returned %T for sqrtPriceX96", chain.ErrChainRead, values[0])
		}
		sqrtPriceX96 = v
		return nil
	})
	g.Go(func() (err error) {
		token0, err = chain.CallOne[common.Address](gctx, s.adapter, chain.CallRequest{To: pool, ABI: s.pool, Method: "token0"})
		return err
	})
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}

	return PriceFromSqrtX96(sqrtPriceX96, token == token0), nil
}

// PriceFromSqrtX96 converts a Uniswap V3 sqrtPriceX96 into a decimal price, assuming both
// assets use the same number of decimals. sqrtPriceX96 encodes token1 per token0, so the
// price of token0 is (sqrtPriceX96 / 2^96)^2 and the price of token1 is its inverse.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, isToken0 bool) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero
	}
	numerator := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	denominator := new(big.Int).Lsh(big.NewInt(1), 192)
	if !isToken0 {
		numerator, denominator = denominator, numerator
	}
	return decimal.NewFromBigInt(numerator, 0).DivRound(decimal.NewFromBigInt(denominator, 0), PriceDecimals)
}

// GetAllTokens lists every token created by the factory.
func (s *Service) GetAllTokens(ctx context.Context) ([]common.Address, error) {
	return chain.CallOne[[]common.Address](ctx, s.adapter, chain.CallRequest{
		To:     s.factory.Address,
		ABI:    s.factory.ABI,
		Method: "getCreatedTokens",
	})
}

// GetAllTokensWithDetails fetches details for every token with bounded parallelism.
// Tokens whose details cannot be read are logged and left out.
func (s *Service) GetAllTokensWithDetails(ctx context.Context) ([]*ContentTokenInfo, error) {
	tokens, err := s.GetAllTokens(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*ContentTokenInfo, len(tokens))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			info, err := s.GetTokenDetails(ctx, token)
			if err != nil {
				s.logger.Warn("Skipping token with unreadable details", "token", token.Hex(), "error", err)
				return nil
			}
			results[i] = info
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*ContentTokenInfo, 0, len(results))
	for _, info := range results {
		if info != nil {
			out = append(out, info)
		}
	}
	return out, nil
}

// GetUserBalance returns user's balance of token formatted with the token's decimals.
func (s *Service) GetUserBalance(ctx context.Context, token, user common.Address) (string, error) {
	var (
		balance  *big.Int
		decimals uint8
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = chain.CallOne[*big.Int](gctx, s.adapter, s.tokenCall(token, "balanceOf", user))
		return err
	})
	g.Go(func() (err error) {
		decimals, err = chain.CallOne[uint8](gctx, s.adapter, s.tokenCall(token, "decimals"))
		return err
	})
	if err := g.Wait(); err != nil {
		return "", &BalanceReadError{Token: token, User: user, Err: err}
	}

	return FormatUnits(balance, decimals), nil
}

// FormatUnits renders a base-unit amount as a decimal string.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
