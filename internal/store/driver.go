package store

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Backend describes one relational engine the store can run on.
// Implementations are selected once at startup by name.
type Backend interface {
	// Name is the DATABASE_DRIVER value selecting this backend.
	Name() string
	// Dialector builds the gorm dialector, which also rewrites "?" placeholders
	// into the engine's positional form.
	Dialector(dsn string) gorm.Dialector
	// Configure tunes the connection pool after open.
	Configure(db *sql.DB)
	// AsyncInit reports whether schema initialization runs in the background.
	AsyncInit() bool
}

type sqliteBackend struct{}

func (sqliteBackend) Name() string { return "sqlite" }

func (sqliteBackend) Dialector(dsn string) gorm.Dialector { return sqlite.Open(dsn) }

// A single connection serializes writers and keeps ":memory:" databases
// shared across callers.
func (sqliteBackend) Configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
}

func (sqliteBackend) AsyncInit() bool { return false }

type postgresBackend struct{}

func (postgresBackend) Name() string { return "postgres" }

func (postgresBackend) Dialector(dsn string) gorm.Dialector { return postgres.Open(dsn) }

func (postgresBackend) Configure(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
}

func (postgresBackend) AsyncInit() bool { return true }

var (
	backendsMu sync.RWMutex
	backends   = map[string]Backend{
		"sqlite":   sqliteBackend{},
		"postgres": postgresBackend{},
	}
)

// GetBackend returns the backend registered under name.
func GetBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, exists := backends[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, name)
	}
	return b, nil
}

// RegisterBackend allows registering custom database backends
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Name()] = b
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
