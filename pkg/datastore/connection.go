package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/scylladb/gocqlx/v2"

	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/retry"
)

// scyllaConnectionManager holds the database session and configuration.
type scyllaConnectionManager struct {
	session       *gocql.Session
	gocqlxSession GocqlxSessioner
	config        *Config
	logger        logging.Logger
	mu            sync.RWMutex
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewConnection opens a ScyllaDB session and, when configured, starts the
// health checker that reconnects on failure.
func NewConnection(config *Config, logger logging.Logger) (Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid datastore config: %w", err)
	}

	session, err := config.cluster().CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m := &scyllaConnectionManager{
		session:       session,
		gocqlxSession: &gocqlxSessionWrapper{session: gocqlx.NewSession(session)},
		config:        config,
		logger:        logger,
		stop:          make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.startHealthChecker()
	}

	logger.Info("Connected to ScyllaDB", "hosts", config.Hosts, "keyspace", config.Keyspace)
	return m, nil
}

// GetSession returns the underlying gocql session.
func (m *scyllaConnectionManager) GetSession() Sessioner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// GetGocqlxSession returns the gocqlx session wrapper.
func (m *scyllaConnectionManager) GetGocqlxSession() GocqlxSessioner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gocqlxSession
}

// Close stops the health checker and closes the session.
func (m *scyllaConnectionManager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Close()
	}
}

// HealthCheck performs a simple query to check the database connection.
func (m *scyllaConnectionManager) HealthCheck(ctx context.Context) error {
	return m.GetSession().Query("SELECT release_version FROM system.local").WithContext(ctx).Exec()
}

func (m *scyllaConnectionManager) startHealthChecker() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.HealthCheck(ctx)
			cancel()
			if err != nil {
				m.logger.Errorf("Database health check failed: %v. Attempting to reconnect...", err)
				m.reconnect()
			}
		}
	}
}

func (m *scyllaConnectionManager) reconnect() {
	operation := func() error {
		newSession, err := m.config.cluster().CreateSession()
		if err != nil {
			return err
		}

		m.mu.Lock()
		old := m.session
		m.session = newSession
		m.gocqlxSession = &gocqlxSessionWrapper{session: gocqlx.NewSession(newSession)}
		m.mu.Unlock()

		if old != nil {
			old.Close()
		}
		m.logger.Infof("Successfully reconnected to the database.")
		return nil
	}

	cfg := m.config.RetryConfig
	if cfg == nil {
		cfg = retry.DefaultRetryConfig()
	}
	if err := retry.RetryFunc(context.Background(), operation, cfg, m.logger); err != nil {
		m.logger.Errorf("Failed to reconnect to the database: %v", err)
	}
}

// gocqlxSessionWrapper adapts gocqlx.Session to GocqlxSessioner.
type gocqlxSessionWrapper struct {
	session gocqlx.Session
}

func (w *gocqlxSessionWrapper) Query(stmt string, names []string) GocqlxQueryer {
	return &gocqlxQueryWrapper{query: w.session.Query(stmt, names)}
}

type gocqlxQueryWrapper struct {
	query *gocqlx.Queryx
}

func (w *gocqlxQueryWrapper) WithContext(ctx context.Context) GocqlxQueryer {
	return &gocqlxQueryWrapper{query: w.query.WithContext(ctx)}
}

func (w *gocqlxQueryWrapper) BindStruct(data interface{}) GocqlxQueryer {
	return &gocqlxQueryWrapper{query: w.query.BindStruct(data)}
}

func (w *gocqlxQueryWrapper) BindMap(data map[string]interface{}) GocqlxQueryer {
	return &gocqlxQueryWrapper{query: w.query.BindMap(data)}
}

func (w *gocqlxQueryWrapper) ExecRelease() error {
	return w.query.ExecRelease()
}

func (w *gocqlxQueryWrapper) GetRelease(dest interface{}) error {
	return w.query.GetRelease(dest)
}

func (w *gocqlxQueryWrapper) SelectRelease(dest interface{}) error {
	return w.query.SelectRelease(dest)
}
