package factory

import (
	"context"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/chain/chaintest"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

var newToken = common.HexToAddress("0x00000000000000000000000000000000000000e5")

func validRequest() TokenCreationRequest {
	return TokenCreationRequest{
		Name:              "Test",
		Symbol:            "TEST",
		ContentURI:        "ipfs://x",
		Creator:           chaintest.TestAccount,
		InitialMintAmount: big.NewInt(1_000_000_000),
	}
}

type fixture struct {
	client     *chaintest.Client
	adapter    *chain.Adapter
	deployment *registry.Deployment
	journal    journal.Journal
	gateway    *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client:     chaintest.NewClient(chaintest.TestChainID),
		deployment: chaintest.Deployment(t),
		journal:    journal.New(journal.NewMemoryStore()),
	}
	f.adapter = chaintest.NewAdapter(t, f.client)
	gateway, err := NewGateway(f.adapter, f.deployment, f.journal, logging.NewNoOpLogger())
	require.NoError(t, err)
	f.gateway = gateway
	return f
}

func (f *fixture) factory() registry.Contract {
	return f.deployment.MustContract(registry.ContentFactory)
}

func (f *fixture) createdLog(token common.Address) *types.Log {
	factory := f.factory()
	return chaintest.EventLog(factory.ABI, factory.Address, "ContentTokenCreated",
		token, chaintest.TestAccount, "Test", "TEST", "ipfs://x")
}

func TestValidateTokenCreationRequest(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TokenCreationRequest)
		field  string
	}{
		{name: "valid", mutate: func(r *TokenCreationRequest) {}},
		{name: "empty name", mutate: func(r *TokenCreationRequest) { r.Name = "  " }, field: "name"},
		{name: "empty symbol", mutate: func(r *TokenCreationRequest) { r.Symbol = "" }, field: "symbol"},
		{name: "ten char symbol", mutate: func(r *TokenCreationRequest) { r.Symbol = "ABCDEFGHIJ" }},
		{name: "eleven char symbol", mutate: func(r *TokenCreationRequest) { r.Symbol = "ABCDEFGHIJK" }, field: "symbol"},
		{name: "empty content uri", mutate: func(r *TokenCreationRequest) { r.ContentURI = "" }, field: "contentURI"},
		{name: "zero creator", mutate: func(r *TokenCreationRequest) { r.Creator = common.Address{} }, field: "creator"},
		{name: "nil mint amount", mutate: func(r *TokenCreationRequest) { r.InitialMintAmount = nil }, field: "initialMintAmount"},
		{name: "zero mint amount", mutate: func(r *TokenCreationRequest) { r.InitialMintAmount = big.NewInt(0) }, field: "initialMintAmount"},
		{name: "negative mint amount", mutate: func(r *TokenCreationRequest) { r.InitialMintAmount = big.NewInt(-1) }, field: "initialMintAmount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := ValidateTokenCreationRequest(req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *chain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, chain.ErrValidation)
		})
	}
}

func TestGateway_CreateToken_ThenDetails(t *testing.T) {
	f := newFixture(t)
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(f.createdLog(newToken)))

	tokenABI := f.deployment.MustContract(registry.ContentToken).ABI
	lm := f.deployment.MustContract(registry.LiquidityManager)
	f.client.
		OnCall(newToken, tokenABI, "name", "Test").
		OnCall(newToken, tokenABI, "symbol", "TEST").
		OnCall(newToken, tokenABI, "contentURI", "ipfs://x").
		OnCall(newToken, tokenABI, "contentCreator", chaintest.TestAccount).
		OnCall(newToken, tokenABI, "totalSupply", big.NewInt(1_000_000_000)).
		OnCall(lm.Address, lm.ABI, "tokenToPair", common.Address{})

	ctx := context.Background()
	address, err := f.gateway.CreateToken(ctx, validRequest(), chaintest.NewSigner())
	require.NoError(t, err)
	assert.Equal(t, newToken, address)
	assert.Len(t, address.Bytes(), common.AddressLength)

	service, err := query.NewService(f.adapter, f.deployment, logging.NewNoOpLogger())
	require.NoError(t, err)
	info, err := service.GetTokenDetails(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", info.TotalSupply.String())
	assert.Nil(t, info.PoolAddress)
	assert.Nil(t, info.Price)

	open, err := f.journal.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestGateway_CreateToken_PacksStructArgument(t *testing.T) {
	f := newFixture(t)
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(f.createdLog(newToken)))

	req := validRequest()
	req.VestingDuration = 3600
	_, err := f.gateway.CreateToken(context.Background(), req, chaintest.NewSigner())
	require.NoError(t, err)

	sent := f.client.Sent()
	require.Len(t, sent, 1)
	factoryABI := f.factory().ABI
	method, err := factoryABI.MethodById(sent[0].Data()[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(sent[0].Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 1)

	params := reflect.ValueOf(args[0])
	require.Equal(t, reflect.Struct, params.Kind())
	assert.Equal(t, "TEST", params.FieldByName("Symbol").Interface())
	assert.Equal(t, uint64(3600), params.FieldByName("VestingDuration").Interface())
	// The recipient defaults to the creator.
	assert.Equal(t, chaintest.TestAccount, params.FieldByName("InitialMintRecipient").Interface())
	assert.Equal(t, big.NewInt(1_000_000_000), params.FieldByName("InitialMintAmount").Interface())
}

func TestGateway_CreateToken_LongSymbol_NoRPC(t *testing.T) {
	f := newFixture(t)

	req := validRequest()
	req.Symbol = strings.Repeat("A", 11)
	address, err := f.gateway.CreateToken(context.Background(), req, chaintest.NewSigner())

	assert.ErrorIs(t, err, chain.ErrValidation)
	assert.Equal(t, common.Address{}, address)
	assert.Empty(t, f.client.Records())

	open, err := f.journal.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestGateway_CreateToken_MissingEvent_ReturnsTokenCreationError(t *testing.T) {
	f := newFixture(t)
	// A Transfer log from another contract is not a creation event.
	tokenABI := f.deployment.MustContract(registry.ContentToken).ABI
	stray := chaintest.EventLog(tokenABI, newToken, "Transfer", common.Address{}, chaintest.TestAccount, big.NewInt(1))
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(stray))

	address, err := f.gateway.CreateToken(context.Background(), validRequest(), chaintest.NewSigner())

	assert.Equal(t, common.Address{}, address)
	assert.ErrorIs(t, err, ErrTokenCreation)
	assert.ErrorIs(t, err, chain.ErrEventNotFound)
	var creationErr *TokenCreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, f.client.Sent()[0].Hash(), creationErr.TxHash)
}

func TestGateway_CreateToken_EventFromOtherEmitterIgnored(t *testing.T) {
	f := newFixture(t)
	forged := chaintest.EventLog(f.factory().ABI, newToken, "ContentTokenCreated",
		newToken, chaintest.TestAccount, "Test", "TEST", "ipfs://x")
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(forged))

	_, err := f.gateway.CreateToken(context.Background(), validRequest(), chaintest.NewSigner())
	assert.ErrorIs(t, err, ErrTokenCreation)
}

func TestGateway_CreateToken_Reverted_JournalsFailure(t *testing.T) {
	f := newFixture(t)
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Reverted())

	_, err := f.gateway.CreateToken(context.Background(), validRequest(), chaintest.NewSigner())
	assert.True(t, chain.IsReverted(err))
	assert.ErrorIs(t, err, chain.ErrChainConfirmation)

	open, err := f.journal.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestGateway_CreateToken_Timeout_LeavesEntryOpen(t *testing.T) {
	f := newFixture(t)
	f.client.WithholdReceipts(true)

	_, err := f.gateway.CreateToken(context.Background(), validRequest(), chaintest.NewSigner())
	assert.True(t, chain.IsTimeout(err))

	open, err := f.journal.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, journal.StatusUnknown, open[0].Status)
	assert.Equal(t, journal.OpCreateToken, open[0].Operation)
	assert.Equal(t, f.client.Sent()[0].Hash().Hex(), open[0].TxHash)
}

func TestGateway_CreateToken_LateConfirmation_LinksProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(f.createdLog(newToken)))
	f.client.WithholdReceipts(true)
	store := projects.NewMemoryStore(&projects.Project{ID: "p1", Name: "Channel"})

	req := validRequest()
	req.ProjectID = "p1"
	_, err := f.gateway.CreateToken(ctx, req, chaintest.NewSigner())
	require.True(t, chain.IsTimeout(err))

	open, err := f.journal.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "p1", open[0].ProjectID)

	project, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, project.HasToken())

	// The transaction is mined after the caller gave up.
	f.client.WithholdReceipts(false)
	settlers := map[journal.Operation]journal.Settler{journal.OpCreateToken: f.gateway.CreationSettler(store)}
	settled, err := journal.ReconcileOpen(ctx, f.journal, f.client, settlers, logging.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	entry, err := f.journal.Get(ctx, open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, entry.Status)
	assert.Equal(t, newToken.Hex(), entry.Result)

	project, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, newToken.Hex(), project.TokenAddress)
	assert.Equal(t, "TEST", project.TokenSymbol)
}

func TestGateway_CreateToken_RecordsTokenOnEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.OnSend(f.factory().Address, f.factory().ABI, "createContentToken", chaintest.Success(f.createdLog(newToken)))

	var entries []journal.Entry
	f.gateway.journal = recordingJournal{Journal: f.journal, recorded: &entries}

	_, err := f.gateway.CreateToken(ctx, validRequest(), chaintest.NewSigner())
	require.NoError(t, err)

	require.Len(t, entries, 1)
	entry, err := f.journal.Get(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusConfirmed, entry.Status)
	assert.Equal(t, newToken.Hex(), entry.Result)
}

type recordingJournal struct {
	journal.Journal
	recorded *[]journal.Entry
}

func (r recordingJournal) Record(ctx context.Context, entry journal.Entry) (journal.Entry, error) {
	recorded, err := r.Journal.Record(ctx, entry)
	if err == nil {
		*r.recorded = append(*r.recorded, recorded)
	}
	return recorded, err
}

func TestGateway_UpdateContentURI(t *testing.T) {
	f := newFixture(t)

	hash, err := f.gateway.UpdateContentURI(context.Background(), newToken, "ipfs://y", chaintest.NewSigner())
	require.NoError(t, err)
	assert.Equal(t, f.client.Sent()[0].Hash(), hash)
	assert.Equal(t, []string{"setContentURI"}, f.client.Methods(chaintest.KindSend))

	_, err = f.gateway.UpdateContentURI(context.Background(), newToken, "", chaintest.NewSigner())
	assert.ErrorIs(t, err, chain.ErrValidation)
}

func TestGateway_MintTokens(t *testing.T) {
	f := newFixture(t)

	_, err := f.gateway.MintTokens(context.Background(), newToken, chaintest.TestAccount, big.NewInt(0), chaintest.NewSigner())
	assert.ErrorIs(t, err, chain.ErrValidation)
	assert.Empty(t, f.client.Records())

	hash, err := f.gateway.MintTokens(context.Background(), newToken, chaintest.TestAccount, big.NewInt(5), chaintest.NewSigner())
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, []string{"mint"}, f.client.Methods(chaintest.KindSend))
}
