package datastore

import (
	"context"

	"github.com/gocql/gocql"
)

// Connection interface for database connection management
type Connection interface {
	GetSession() Sessioner
	GetGocqlxSession() GocqlxSessioner
	Close()
	HealthCheck(ctx context.Context) error
}

// Sessioner interface for raw gocql session operations
type Sessioner interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// GocqlxSessioner interface for gocqlx session operations
type GocqlxSessioner interface {
	Query(stmt string, names []string) GocqlxQueryer
}

// GocqlxQueryer interface for gocqlx query operations
type GocqlxQueryer interface {
	WithContext(ctx context.Context) GocqlxQueryer
	BindStruct(data interface{}) GocqlxQueryer
	BindMap(data map[string]interface{}) GocqlxQueryer
	ExecRelease() error
	GetRelease(dest interface{}) error
	SelectRelease(dest interface{}) error
}
