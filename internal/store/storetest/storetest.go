// Package storetest builds isolated stores for tests on every supported backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-authgate/budgetgate/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "testuser"
	pgPassword = "testpass"
	pgDatabase = "testdb"
)

var (
	pgOnce      sync.Once
	pgContainer *postgres.PostgresContainer
	pgErr       error
)

// NewSQLite returns a store backed by a private in-memory database.
func NewSQLite(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewPostgres returns a store backed by a freshly created database inside a
// shared PostgreSQL container. The test is skipped under -short or when
// Docker is unavailable. The container is reaped by testcontainers when the
// test binary exits.
func NewPostgres(t testing.TB) *store.Store {
	t.Helper()
	container := sharedContainer(t)
	ctx := context.Background()

	dbName := "test_" + uuid.New().String()[:8]
	_, _, err := container.Exec(ctx, []string{
		"psql", "-U", pgUser, "-d", pgDatabase, "-c", "CREATE DATABASE " + dbName,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port.Port(), pgUser, pgPassword, dbName,
	)

	s, err := store.New("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, s.Ready(ctx))

	t.Cleanup(func() {
		_ = s.Close()
		_, _, _ = container.Exec(context.Background(), []string{
			"psql", "-U", pgUser, "-d", pgDatabase, "-c", "DROP DATABASE IF EXISTS " + dbName,
		})
	})
	return s
}

func sharedContainer(t testing.TB) *postgres.PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	pgOnce.Do(func() {
		// Recover from panic if Docker is not available
		defer func() {
			if r := recover(); r != nil {
				pgErr = fmt.Errorf("docker not available (panic: %v)", r)
			}
		}()
		pgContainer, pgErr = postgres.Run(context.Background(),
			"postgres:16-alpine",
			postgres.WithDatabase(pgDatabase),
			postgres.WithUsername(pgUser),
			postgres.WithPassword(pgPassword),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
	})
	if pgErr != nil {
		t.Skipf("Skipping PostgreSQL test: Docker not available (%v)", pgErr)
	}
	return pgContainer
}

// Backend names a store constructor.
type Backend struct {
	Name string
	New  func(t testing.TB) *store.Store
}

// Backends returns every supported backend.
func Backends() []Backend {
	return []Backend{
		{Name: "sqlite", New: NewSQLite},
		{Name: "postgres", New: NewPostgres},
	}
}

// ForEachBackend runs fn as a subtest against a fresh store on each backend.
func ForEachBackend(t *testing.T, fn func(t *testing.T, s *store.Store)) {
	t.Helper()
	for _, b := range Backends() {
		t.Run(b.Name, func(t *testing.T) {
			fn(t, b.New(t))
		})
	}
}
