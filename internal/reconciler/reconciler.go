// Package reconciler overlays on-chain price and supply onto project records. Its output is
// advisory: chain failures are logged and leave the project as it was.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
)

var (
	// CirculatingShare approximates the supporter allocation (10% creator, 1% platform, 89% supporters).
	// It is not read from vesting state.
	CirculatingShare = decimal.NewFromFloat(0.89)

	// VolumeShare is a placeholder 24h volume of 5% of market cap until trade history is indexed.
	VolumeShare = decimal.NewFromFloat(0.05)

	ErrInvalidToken = errors.New("invalid token address")
)

// TokenSource reads token details. *query.Service satisfies it.
type TokenSource interface {
	GetTokenDetails(ctx context.Context, token common.Address) (*query.ContentTokenInfo, error)
}

// MarketData is derived from a token read. Supplies are in whole tokens, prices in the paired asset.
type MarketData struct {
	HasPool           bool            `json:"hasPool"`
	PoolAddress       string          `json:"poolAddress,omitempty"`
	Price             decimal.Decimal `json:"price"`
	MarketCap         decimal.Decimal `json:"marketCap"`
	TotalSupply       decimal.Decimal `json:"totalSupply"`
	CirculatingSupply decimal.Decimal `json:"circulatingSupply"`
	Volume24h         decimal.Decimal `json:"volume24h"`
	PriceChange24h    float64         `json:"priceChange24h"`
}

type Reconciler struct {
	source TokenSource
	logger logging.Logger
	now    func() time.Time
}

func New(source TokenSource, logger logging.Logger) *Reconciler {
	return &Reconciler{source: source, logger: logger, now: time.Now}
}

// GetMarketData reads the token and derives its market fields. PriceChange24h is zero; it is
// only known relative to a previously stored price.
func (r *Reconciler) GetMarketData(ctx context.Context, token common.Address) (MarketData, error) {
	info, err := r.source.GetTokenDetails(ctx, token)
	if err != nil {
		return MarketData{}, err
	}
	return deriveMarketData(info)
}

func deriveMarketData(info *query.ContentTokenInfo) (MarketData, error) {
	var supply *big.Int
	if info.TotalSupply != nil {
		supply = info.TotalSupply.Int
	}
	totalSupply := decimal.Zero
	if supply != nil {
		totalSupply = decimal.NewFromBigInt(supply, -query.PriceDecimals)
	}

	data := MarketData{
		TotalSupply:       totalSupply,
		CirculatingSupply: totalSupply.Mul(CirculatingShare),
	}
	if info.Price == nil {
		return data, nil
	}

	price, err := decimal.NewFromString(*info.Price)
	if err != nil {
		return MarketData{}, fmt.Errorf("invalid price %q for %s: %w", *info.Price, info.Address, err)
	}
	data.HasPool = true
	if info.PoolAddress != nil {
		data.PoolAddress = *info.PoolAddress
	}
	data.Price = price
	data.MarketCap = price.Mul(totalSupply)
	data.Volume24h = data.MarketCap.Mul(VolumeShare)
	return data, nil
}

// PercentChange returns the change from previous to current in percent, or 0 without a
// previous price.
func PercentChange(previous, current decimal.Decimal) float64 {
	if !previous.IsPositive() {
		return 0
	}
	change, _ := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return change
}

// Refresh overlays market data onto the project in place. A project without a token is left
// alone. Any failure is logged and leaves every field unchanged.
func (r *Reconciler) Refresh(ctx context.Context, project *projects.Project) {
	if _, err := r.refresh(ctx, project); err != nil {
		r.logger.Error("Failed to refresh project market data",
			"project_id", project.ID,
			"token", project.TokenAddress,
			"error", err)
	}
}

// refresh reports whether the project changed.
func (r *Reconciler) refresh(ctx context.Context, project *projects.Project) (bool, error) {
	if project == nil || !project.HasToken() {
		metrics.RefreshesTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	if !common.IsHexAddress(project.TokenAddress) {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("%w: %q", ErrInvalidToken, project.TokenAddress)
	}

	data, err := r.GetMarketData(ctx, common.HexToAddress(project.TokenAddress))
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		return false, err
	}

	// Without a pool there is no price; the last known price fields stay.
	if data.HasPool {
		if data.PoolAddress != "" {
			project.PoolAddress = data.PoolAddress
		}
		project.PercentChange = PercentChange(project.Price, data.Price)
		project.Price = data.Price
		project.MarketCap = data.MarketCap
	}
	project.CurrentSupply = data.CirculatingSupply.String()
	project.UpdatedAt = r.now().UTC()

	metrics.RefreshesTotal.WithLabelValues("updated").Inc()
	r.logger.Debug("Refreshed project market data",
		"project_id", project.ID,
		"price", project.Price.String(),
		"market_cap", project.MarketCap.String(),
		"has_pool", data.HasPool)
	return true, nil
}

// RefreshAll refreshes every project linked to a token and saves the ones that changed.
// It returns how many projects were saved.
func (r *Reconciler) RefreshAll(ctx context.Context, store projects.Store) int {
	list, err := store.ListWithTokens(ctx)
	if err != nil {
		r.logger.Error("Failed to list projects for refresh", "error", err)
		return 0
	}

	saved := 0
	for _, project := range list {
		if ctx.Err() != nil {
			break
		}
		changed, err := r.refresh(ctx, project)
		if err != nil {
			r.logger.Error("Failed to refresh project market data",
				"project_id", project.ID,
				"token", project.TokenAddress,
				"error", err)
			continue
		}
		if !changed {
			continue
		}
		if err := store.Save(ctx, project); err != nil {
			r.logger.Error("Failed to save refreshed project", "project_id", project.ID, "error", err)
			continue
		}
		saved++
	}
	metrics.LastRefreshTimestamp.Set(float64(r.now().Unix()))
	r.logger.Info("Market data refresh completed", "projects", len(list), "saved", saved)
	return saved
}

// RefreshByID loads one project, refreshes it and saves it when it changed. Only load and
// save errors are returned; a failed chain read yields the stored project unchanged.
func (r *Reconciler) RefreshByID(ctx context.Context, store projects.Store, id string) (*projects.Project, error) {
	project, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := r.refresh(ctx, project)
	if err != nil {
		r.logger.Error("Failed to refresh project market data",
			"project_id", project.ID,
			"token", project.TokenAddress,
			"error", err)
		return project, nil
	}
	if changed {
		if err := store.Save(ctx, project); err != nil {
			return nil, err
		}
	}
	return project, nil
}
