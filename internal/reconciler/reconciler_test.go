package reconciler

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/pkg/chain/chaintest"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	pkgtypes "github.com/oxx-labs/oxx-backend/pkg/types"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	fixed  = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
)

// billion tokens with 18 decimals
func billionSupply() *big.Int {
	return new(big.Int).Mul(big.NewInt(1_000_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type fakeSource struct {
	infos map[common.Address]*query.ContentTokenInfo
	err   error
	calls int
}

func (s *fakeSource) GetTokenDetails(ctx context.Context, token common.Address) (*query.ContentTokenInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[token]
	if !ok {
		return nil, &query.TokenReadError{Token: token, Err: errors.New("execution reverted")}
	}
	return info, nil
}

func tokenInfo(token common.Address, price string) *query.ContentTokenInfo {
	info := &query.ContentTokenInfo{
		Address:     token.Hex(),
		Name:        "Test",
		Symbol:      "TEST",
		TotalSupply: pkgtypes.NewBigInt(billionSupply()),
	}
	if price != "" {
		pool := "0x00000000000000000000000000000000000000c3"
		info.Price = &price
		info.PoolAddress = &pool
	}
	return info
}

func newReconciler(source TokenSource, logger logging.Logger) *Reconciler {
	r := New(source, logger)
	r.now = func() time.Time { return fixed }
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seededProject(id string, token common.Address) *projects.Project {
	return &projects.Project{
		ID:            id,
		Name:          "Project " + id,
		TokenAddress:  token.Hex(),
		Price:         dec("0.000001"),
		MarketCap:     dec("1000"),
		PercentChange: 4.8,
		CurrentSupply: "100",
	}
}

func TestReconciler_GetMarketData_WithPool(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	r := newReconciler(source, logging.NewNoOpLogger())

	data, err := r.GetMarketData(context.Background(), tokenA)
	require.NoError(t, err)

	assert.True(t, data.HasPool)
	assert.True(t, data.Price.Equal(dec("0.000002")))
	assert.True(t, data.TotalSupply.Equal(dec("1000000000")))
	assert.True(t, data.MarketCap.Equal(dec("2000")), data.MarketCap.String())
	assert.True(t, data.CirculatingSupply.Equal(dec("890000000")), data.CirculatingSupply.String())
	assert.True(t, data.Volume24h.Equal(dec("100")), data.Volume24h.String())
	assert.Zero(t, data.PriceChange24h)
}

func TestReconciler_GetMarketData_NoPool(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "")}}
	r := newReconciler(source, logging.NewNoOpLogger())

	data, err := r.GetMarketData(context.Background(), tokenA)
	require.NoError(t, err)

	assert.False(t, data.HasPool)
	assert.True(t, data.Price.IsZero())
	assert.True(t, data.MarketCap.IsZero())
	assert.True(t, data.CirculatingSupply.Equal(dec("890000000")))
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		want     float64
	}{
		{name: "doubled", previous: "1", current: "2", want: 100},
		{name: "dropped", previous: "4", current: "3", want: -25},
		{name: "unchanged", previous: "0.5", current: "0.5", want: 0},
		{name: "rounded", previous: "3", current: "4", want: 33.33},
		{name: "no previous", previous: "0", current: "2", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PercentChange(dec(tt.previous), dec(tt.current)), 1e-9)
		})
	}
}

func TestReconciler_Refresh_NoToken_NoOp(t *testing.T) {
	source := &fakeSource{}
	r := newReconciler(source, logging.NewNoOpLogger())
	project := &projects.Project{ID: "p1", Price: dec("1")}

	r.Refresh(context.Background(), project)

	assert.Zero(t, source.calls)
	assert.True(t, project.Price.Equal(dec("1")))
	assert.True(t, project.UpdatedAt.IsZero())
}

func TestReconciler_Refresh_UpdatesMarketFields(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	project := seededProject("p1", tokenA)

	r.Refresh(context.Background(), project)

	assert.True(t, project.Price.Equal(dec("0.000002")))
	assert.True(t, project.MarketCap.Equal(dec("2000")))
	assert.InDelta(t, 100.0, project.PercentChange, 1e-9)
	assert.Equal(t, "890000000", project.CurrentSupply)
	assert.Equal(t, fixed, project.UpdatedAt)
	assert.Equal(t, "Project p1", project.Name)
	assert.Equal(t, "0x00000000000000000000000000000000000000c3", project.PoolAddress)
}

func TestReconciler_RefreshAll_RecordsPoolOnceCreated(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	store := projects.NewMemoryStore(seededProject("p1", tokenA))

	r.RefreshAll(ctx, store)
	stored, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, stored.PoolAddress)

	source.infos[tokenA] = tokenInfo(tokenA, "0.000002")
	r.RefreshAll(ctx, store)
	stored, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000c3", stored.PoolAddress)
}

func TestReconciler_Refresh_NoPool_KeepsLastPrice(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	project := seededProject("p1", tokenA)

	r.Refresh(context.Background(), project)

	assert.True(t, project.Price.Equal(dec("0.000001")))
	assert.True(t, project.MarketCap.Equal(dec("1000")))
	assert.Equal(t, 4.8, project.PercentChange)
	assert.Equal(t, "890000000", project.CurrentSupply)
}

func TestReconciler_Refresh_UnreachableNode_LeavesProjectAndLogs(t *testing.T) {
	client := chaintest.NewClient(chaintest.TestChainID)
	client.SetDown(chaintest.ErrNodeDown)
	service, err := query.NewService(chaintest.NewAdapter(t, client), chaintest.Deployment(t), logging.NewNoOpLogger())
	require.NoError(t, err)

	logger := new(logging.MockLogger)
	logger.SetupDefaultExpectations()
	r := newReconciler(service, logger)

	project := seededProject("p1", tokenA)
	before := *project

	assert.NotPanics(t, func() { r.Refresh(context.Background(), project) })

	assert.Equal(t, before, *project)
	logger.AssertCalled(t, "Error", "Failed to refresh project market data", mock.Anything)
}

func TestReconciler_Refresh_InvalidInputs_LeaveProject(t *testing.T) {
	badPrice := tokenInfo(tokenA, "not-a-number")
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: badPrice}}

	tests := []struct {
		name  string
		token string
	}{
		{name: "unparseable price", token: tokenA.Hex()},
		{name: "malformed address", token: "0xnot-an-address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(logging.MockLogger)
			logger.SetupDefaultExpectations()
			r := newReconciler(source, logger)

			project := seededProject("p1", tokenA)
			project.TokenAddress = tt.token
			before := *project

			r.Refresh(context.Background(), project)

			assert.Equal(t, before, *project)
			logger.AssertCalled(t, "Error", "Failed to refresh project market data", mock.Anything)
		})
	}
}

type failingSaveStore struct {
	projects.Store
}

func (s failingSaveStore) Save(ctx context.Context, project *projects.Project) error {
	return errors.New("write timeout")
}

func TestReconciler_RefreshAll_SavesOnlySuccessfulRefreshes(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	store := projects.NewMemoryStore(
		seededProject("p1", tokenA),
		seededProject("p2", tokenB),
		&projects.Project{ID: "p3", Name: "untokenized"},
	)

	saved := r.RefreshAll(context.Background(), store)
	assert.Equal(t, 1, saved)

	p1, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, p1.Price.Equal(dec("0.000002")))

	p2, err := store.Get(context.Background(), "p2")
	require.NoError(t, err)
	assert.True(t, p2.Price.Equal(dec("0.000001")))
	assert.Equal(t, "100", p2.CurrentSupply)
}

func TestReconciler_RefreshAll_SaveErrorIsLogged(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	logger := new(logging.MockLogger)
	logger.SetupDefaultExpectations()
	r := newReconciler(source, logger)

	saved := r.RefreshAll(context.Background(), failingSaveStore{projects.NewMemoryStore(seededProject("p1", tokenA))})

	assert.Zero(t, saved)
	logger.AssertCalled(t, "Error", "Failed to save refreshed project", mock.Anything)
}

func TestReconciler_RefreshByID(t *testing.T) {
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	store := projects.NewMemoryStore(seededProject("p1", tokenA), seededProject("p2", tokenB))

	project, err := r.RefreshByID(context.Background(), store, "p1")
	require.NoError(t, err)
	assert.True(t, project.Price.Equal(dec("0.000002")))

	stored, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, stored.MarketCap.Equal(dec("2000")))

	project, err = r.RefreshByID(context.Background(), store, "p2")
	require.NoError(t, err)
	assert.True(t, project.Price.Equal(dec("0.000001")))

	_, err = r.RefreshByID(context.Background(), store, "missing")
	assert.ErrorIs(t, err, projects.ErrProjectNotFound)
}

type receiptMap map[common.Hash]*types.Receipt

func (m receiptMap) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := m[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func TestScheduler_RunOnce_RefreshesAndSettlesJournal(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{infos: map[common.Address]*query.ContentTokenInfo{tokenA: tokenInfo(tokenA, "0.000002")}}
	r := newReconciler(source, logging.NewNoOpLogger())
	store := projects.NewMemoryStore(seededProject("p1", tokenA))

	j := journal.New(journal.NewMemoryStore())
	entry, err := j.Record(ctx, journal.Entry{Operation: journal.OpBuy, ProjectID: "p1"})
	require.NoError(t, err)
	hash := common.HexToHash("0xabc")
	require.NoError(t, j.MarkSubmitted(ctx, entry.ID, hash.Hex()))

	scheduler := NewScheduler(r, store, "", logging.NewNoOpLogger()).
		WithJournal(j, receiptMap{hash: {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}})
	scheduler.RunOnce()

	p1, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p1.Price.Equal(dec("0.000002")))

	settled, err := j.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, settled.Status)
}

func TestScheduler_StartStop(t *testing.T) {
	r := newReconciler(&fakeSource{}, logging.NewNoOpLogger())
	store := projects.NewMemoryStore()

	bad := NewScheduler(r, store, "every five minutes", logging.NewNoOpLogger())
	assert.Error(t, bad.Start())

	scheduler := NewScheduler(r, store, DefaultSchedule, logging.NewNoOpLogger())
	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	scheduler.Stop(ctx)
	scheduler.Stop(ctx)
}
