// Package store holds the snapshot persistence backends.
package store

import (
	"context"
	"fmt"
	"strings"

	"trendradar/internal/trending"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a transactional snapshot sink that owns its connection.
type Store interface {
	trending.Sink
	trending.Transactor
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return NewSQLite(opts.SQLitePath)
	case DriverPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return NewPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}
