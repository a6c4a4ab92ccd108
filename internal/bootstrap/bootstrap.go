// Package bootstrap wires the chain adapter, gateways and stores from the process config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/oxx-labs/oxx-backend/internal/config"
	"github.com/oxx-labs/oxx-backend/internal/eligibility"
	"github.com/oxx-labs/oxx-backend/internal/factory"
	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/metrics"
	"github.com/oxx-labs/oxx-backend/internal/projects"
	"github.com/oxx-labs/oxx-backend/internal/query"
	"github.com/oxx-labs/oxx-backend/internal/reconciler"
	"github.com/oxx-labs/oxx-backend/internal/trading"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/datastore"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/redis"
	"github.com/oxx-labs/oxx-backend/pkg/registry"
)

// App holds every long-lived component. Signer is nil when no operator key is configured.
type App struct {
	Network    registry.Network
	Deployment *registry.Deployment
	Client     *ethclient.Client
	Adapter    *chain.Adapter
	Signer     chain.TxSigner

	Journal     journal.Journal
	Projects    projects.Store
	Eligibility eligibility.Policy

	Factory    *factory.Gateway
	Query      *query.Service
	Trading    *trading.Gateway
	Reconciler *reconciler.Reconciler

	logger  logging.Logger
	closers []func()
}

// New builds the application from config. config.Init must have been called.
func New(ctx context.Context, logger logging.Logger) (*App, error) {
	app := &App{logger: logger, Eligibility: eligibility.NewPolicy(config.GetFollowerThreshold())}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	chainID := config.GetChainID()
	if _, err := reg.LookupNetwork(chainID); err != nil {
		a.logger.Warn("Configured chain not in registry, using fallback", "chain_id", chainID, "fallback", reg.FallbackChainID())
	}
	a.Network = reg.Network(chainID)
	a.Deployment = reg.Deployment(chainID)
	if a.Deployment == nil {
		return fmt.Errorf("no contract deployment for chain %d", chainID)
	}

	rpcURL := config.GetRPCURL()
	if rpcURL == "" {
		rpcURL = a.Network.RPCURL
	}
	a.Client, err = chain.Dial(ctx, rpcURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Client.Close)

	chainCfg := chain.DefaultConfig().
		WithConfirmationTimeout(config.GetConfirmationTimeout()).
		WithPollInterval(config.GetConfirmationPollInterval()).
		WithObserver(metrics.ChainObserver{})
	a.Adapter, err = chain.NewAdapter(a.Client, chainCfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create chain adapter: %w", err)
	}

	if key := config.GetOperatorPrivateKey(); key != "" {
		signer, err := chain.NewSigner(key)
		if err != nil {
			return err
		}
		a.Signer = signer
		a.logger.Info("Operator account loaded", "address", signer.Address().Hex())
	} else {
		a.logger.Warn("No operator private key configured, write operations are disabled")
	}

	if err := a.initStores(ctx); err != nil {
		return err
	}
	return a.initGateways()
}

func loadRegistry() (*registry.Registry, error) {
	if file := config.GetRegistryFile(); file != "" {
		return registry.LoadFile(file)
	}
	return registry.Load()
}

func (a *App) initStores(ctx context.Context) error {
	var conn datastore.Connection
	if config.GetJournalBackend() == "scylla" || config.GetProjectStore() == "scylla" {
		dbConfig := datastore.NewConfig(config.GetScyllaHost(), config.GetScyllaPort()).
			WithKeyspace(config.GetScyllaKeyspace())
		var err error
		conn, err = datastore.NewConnection(dbConfig, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to scylla: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		if err := datastore.Migrate(ctx, conn.GetSession()); err != nil {
			return err
		}
	}

	var store journal.Store
	switch config.GetJournalBackend() {
	case "file":
		fileStore, err := journal.NewFileStore(config.GetJournalDir())
		if err != nil {
			return err
		}
		store = fileStore
	case "redis":
		client, err := redis.NewClient(config.GetRedisURL(), a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store = journal.NewRedisStore(client, "")
	case "scylla":
		store = journal.NewScyllaStore(conn.GetGocqlxSession())
	default:
		store = journal.NewMemoryStore()
	}
	a.Journal = journal.New(store)

	if config.GetProjectStore() == "scylla" {
		a.Projects = projects.NewScyllaStore(conn.GetGocqlxSession())
	} else {
		a.Projects = projects.NewMemoryStore()
	}
	a.logger.Info("Stores initialized", "journal", config.GetJournalBackend(), "projects", config.GetProjectStore())
	return nil
}

func (a *App) initGateways() error {
	var err error
	if a.Factory, err = factory.NewGateway(a.Adapter, a.Deployment, a.Journal, a.logger); err != nil {
		return err
	}
	if a.Query, err = query.NewService(a.Adapter, a.Deployment, a.logger); err != nil {
		return err
	}

	path, err := trading.ParsePath(config.GetTradingPath())
	if err != nil {
		return err
	}
	tradingCfg := trading.DefaultConfig().
		WithFeeTier(config.GetDefaultFeeTier()).
		WithDeadlineMinutes(config.GetDeadlineMinutes()).
		WithPath(path).
		WithObserver(func(t trading.Transition) {
			a.logger.Debug("Swap state changed",
				"side", t.Side,
				"token", t.Token.Hex(),
				"from", t.From,
				"to", t.To,
				"tx_hash", t.TxHash.Hex())
		})
	if a.Trading, err = trading.NewGateway(a.Adapter, a.Deployment, a.Query, a.Journal, tradingCfg, a.logger); err != nil {
		return err
	}

	a.Reconciler = reconciler.New(a.Query, a.logger)
	return nil
}

// Scheduler returns the periodic market-data refresher, also settling open journal entries.
func (a *App) Scheduler() *reconciler.Scheduler {
	return reconciler.NewScheduler(a.Reconciler, a.Projects, config.GetRefreshSchedule(), a.logger).
		WithJournal(a.Journal, a.Client).
		WithSettlers(a.Settlers())
}

// Settlers finishes operations whose confirmation arrives after the caller stopped waiting.
func (a *App) Settlers() map[journal.Operation]journal.Settler {
	return map[journal.Operation]journal.Settler{
		journal.OpCreateToken: a.Factory.CreationSettler(a.Projects),
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
