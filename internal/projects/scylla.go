package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/scylladb/gocqlx/v2/qb"
	"github.com/scylladb/gocqlx/v2/table"
	"github.com/shopspring/decimal"

	"github.com/oxx-labs/oxx-backend/pkg/datastore"
)

var projectTable = table.New(table.Metadata{
	Name:    "projects",
	Columns: []string{"id", "name", "token_address", "token_symbol", "pool_address", "price", "market_cap", "percent_change", "current_supply", "updated_at"},
	PartKey: []string{"id"},
})

// Decimals are stored as text to keep full precision.
type projectRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	TokenAddress  string    `db:"token_address"`
	TokenSymbol   string    `db:"token_symbol"`
	PoolAddress   string    `db:"pool_address"`
	Price         string    `db:"price"`
	MarketCap     string    `db:"market_cap"`
	PercentChange float64   `db:"percent_change"`
	CurrentSupply string    `db:"current_supply"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r projectRow) project() (*Project, error) {
	price, err := parseDecimal(r.Price)
	if err != nil {
		return nil, fmt.Errorf("project %s has invalid price %q: %w", r.ID, r.Price, err)
	}
	marketCap, err := parseDecimal(r.MarketCap)
	if err != nil {
		return nil, fmt.Errorf("project %s has invalid market cap %q: %w", r.ID, r.MarketCap, err)
	}
	return &Project{
		ID:            r.ID,
		Name:          r.Name,
		TokenAddress:  r.TokenAddress,
		TokenSymbol:   r.TokenSymbol,
		PoolAddress:   r.PoolAddress,
		Price:         price,
		MarketCap:     marketCap,
		PercentChange: r.PercentChange,
		CurrentSupply: r.CurrentSupply,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type ScyllaStore struct {
	session datastore.GocqlxSessioner
}

func NewScyllaStore(session datastore.GocqlxSessioner) *ScyllaStore {
	return &ScyllaStore{session: session}
}

func (s *ScyllaStore) Get(ctx context.Context, id string) (*Project, error) {
	stmt, names := projectTable.Get()
	row := projectRow{ID: id}
	err := s.session.Query(stmt, names).WithContext(ctx).BindStruct(&row).GetRelease(&row)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return row.project()
}

func (s *ScyllaStore) Save(ctx context.Context, p *Project) error {
	stmt, names := projectTable.Insert()
	row := projectRow{
		ID:            p.ID,
		Name:          p.Name,
		TokenAddress:  p.TokenAddress,
		TokenSymbol:   p.TokenSymbol,
		PoolAddress:   p.PoolAddress,
		Price:         p.Price.String(),
		MarketCap:     p.MarketCap.String(),
		PercentChange: p.PercentChange,
		CurrentSupply: p.CurrentSupply,
		UpdatedAt:     p.UpdatedAt,
	}
	if err := s.session.Query(stmt, names).WithContext(ctx).BindStruct(&row).ExecRelease(); err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	return nil
}

// ListWithTokens scans the table; projects without a token are filtered client-side.
func (s *ScyllaStore) ListWithTokens(ctx context.Context) ([]*Project, error) {
	stmt, names := qb.Select(projectTable.Name()).Columns(projectTable.Metadata().Columns...).ToCql()

	var rows []projectRow
	if err := s.session.Query(stmt, names).WithContext(ctx).SelectRelease(&rows); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	out := make([]*Project, 0, len(rows))
	for _, r := range rows {
		if r.TokenAddress == "" {
			continue
		}
		p, err := r.project()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
