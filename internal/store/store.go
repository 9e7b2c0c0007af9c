package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-authgate/budgetgate/internal/core"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultInitTimeout = 30 * time.Second

// Result reports the effect of a statement. Identifiers are generated by the
// application, so no inserted id is returned.
type Result struct {
	RowsAffected int64
}

// Querier is the statement surface shared by the store and its transactions.
// Statements use "?" placeholders; values are always bound, never interpolated.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryOne(ctx context.Context, dest any, query string, args ...any) error
	QueryMany(ctx context.Context, dest any, query string, args ...any) error
}

// Store is the persistence handle owned by the composition root.
type Store struct {
	db      *gorm.DB
	backend Backend

	ready     chan struct{}
	readyOnce sync.Once
	initErr   error
}

// Ensure Store implements Querier interface at compile time
var _ Querier = (*Store)(nil)

// Option configures New.
type Option func(*options)

type options struct {
	initTimeout time.Duration
	logLevel    logger.LogLevel
}

// WithInitTimeout bounds how long schema initialization may take.
func WithInitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.initTimeout = d
		}
	}
}

// WithLogLevel sets the gorm logger level.
func WithLogLevel(level logger.LogLevel) Option {
	return func(o *options) {
		o.logLevel = level
	}
}

// New opens the named backend and starts schema initialization. For backends
// with asynchronous init, New returns before the schema exists; every public
// method waits for the ready signal.
func New(driver, dsn string, opts ...Option) (*Store, error) {
	o := options{initTimeout: defaultInitTimeout, logLevel: logger.Warn}
	for _, opt := range opts {
		opt(&o)
	}

	backend, err := GetBackend(driver)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(backend.Dialector(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(o.logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	backend.Configure(sqlDB)

	s := &Store{
		db:      db,
		backend: backend,
		ready:   make(chan struct{}),
	}

	if backend.AsyncInit() {
		go s.initialize(o.initTimeout)
		return s, nil
	}

	s.initialize(o.initTimeout)
	if s.initErr != nil {
		_ = sqlDB.Close()
		return nil, s.initErr
	}
	return s, nil
}

func (s *Store) initialize(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.migrate(ctx)
	if err != nil {
		zap.L().Named("store").Error("schema initialization failed",
			zap.String("backend", s.backend.Name()), zap.Error(err))
	} else {
		zap.L().Named("store").Debug("schema ready", zap.String("backend", s.backend.Name()))
	}
	s.markReady(err)
}

// markReady fires the ready signal exactly once.
func (s *Store) markReady(err error) {
	s.readyOnce.Do(func() {
		s.initErr = err
		close(s.ready)
	})
}

// Ready blocks until schema initialization has finished or ctx is done.
// It returns the initialization error, if any.
func (s *Store) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		if s.initErr != nil {
			return fmt.Errorf("%w: schema unavailable: %w", core.ErrInternalFailure, s.initErr)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for store: %w", core.ErrInternalFailure, ctx.Err())
	}
}

// Backend returns the active backend name.
func (s *Store) Backend() string {
	return s.backend.Name()
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if err := s.Ready(ctx); err != nil {
		return Result{}, err
	}
	return exec(s.db.WithContext(ctx), query, args...)
}

// QueryOne scans the first row into dest. It returns ErrRecordNotFound when no row matches.
func (s *Store) QueryOne(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return queryOne(s.db.WithContext(ctx), dest, query, args...)
}

// QueryMany scans all rows into dest, which must point to a slice.
func (s *Store) QueryMany(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return queryMany(s.db.WithContext(ctx), dest, query, args...)
}

// Transaction runs fn inside a database transaction. Returning an error rolls back.
func (s *Store) Transaction(ctx context.Context, fn func(q Querier) error) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txQuerier{tx: tx})
	})
}

// Health pings the database after the schema is ready.
func (s *Store) Health(ctx context.Context) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.markReady(ErrStoreClosed)
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type txQuerier struct {
	tx *gorm.DB
}

func (q *txQuerier) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return exec(q.tx.WithContext(ctx), query, args...)
}

func (q *txQuerier) QueryOne(ctx context.Context, dest any, query string, args ...any) error {
	return queryOne(q.tx.WithContext(ctx), dest, query, args...)
}

func (q *txQuerier) QueryMany(ctx context.Context, dest any, query string, args ...any) error {
	return queryMany(q.tx.WithContext(ctx), dest, query, args...)
}

func exec(db *gorm.DB, query string, args ...any) (Result, error) {
	tx := db.Exec(query, args...)
	if tx.Error != nil {
		return Result{}, translateError(tx.Error)
	}
	return Result{RowsAffected: tx.RowsAffected}, nil
}

func queryOne(db *gorm.DB, dest any, query string, args ...any) error {
	tx := db.Raw(query, args...).Scan(dest)
	if tx.Error != nil {
		return translateError(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func queryMany(db *gorm.DB, dest any, query string, args ...any) error {
	if err := db.Raw(query, args...).Scan(dest).Error; err != nil {
		return translateError(err)
	}
	return nil
}

// translateError maps driver errors onto store sentinels so callers cannot
// tell which backend produced them.
func translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrInternalFailure, err)
	}
}
