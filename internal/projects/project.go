package projects

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProjectNotFound = errors.New("project not found")

// Project holds the market fields the reconciler overlays onto a project record.
// The rest of the record is owned elsewhere.
type Project struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TokenAddress  string          `json:"tokenAddress,omitempty"`
	TokenSymbol   string          `json:"tokenSymbol,omitempty"`
	PoolAddress   string          `json:"poolAddress,omitempty"`
	Price         decimal.Decimal `json:"price"`
	MarketCap     decimal.Decimal `json:"marketCap"`
	PercentChange float64         `json:"percentChange"`
	CurrentSupply string          `json:"currentSupply,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasToken reports whether the project has been linked to a content token.
func (p *Project) HasToken() bool {
	return p.TokenAddress != ""
}

type Store interface {
	Get(ctx context.Context, id string) (*Project, error)
	Save(ctx context.Context, project *Project) error
	ListWithTokens(ctx context.Context) ([]*Project, error)
}

// LinkToken records the content token created for project id and saves it.
func LinkToken(ctx context.Context, store Store, id, tokenAddress, symbol string) (*Project, error) {
	project, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	project.TokenAddress = tokenAddress
	project.TokenSymbol = symbol
	if err := store.Save(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}
