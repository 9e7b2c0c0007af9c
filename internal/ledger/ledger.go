package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/go-authgate/budgetgate/internal/core"
	"github.com/go-authgate/budgetgate/internal/metrics"
	"github.com/go-authgate/budgetgate/internal/models"
	"github.com/go-authgate/budgetgate/internal/store"
	"github.com/go-authgate/budgetgate/internal/util"

	"go.uber.org/zap"
)

// DB is the persistence surface the ledger needs.
type DB interface {
	store.Querier
	Transaction(ctx context.Context, fn func(q store.Querier) error) error
}

// Ledger records issued token identifiers and authorization codes, tracks
// revocation, and prunes expired rows. Every public method prunes first.
type Ledger struct {
	db        DB
	now       core.Clock
	metrics   core.Recorder
	retention time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock.
func WithClock(c core.Clock) Option {
	return func(l *Ledger) { l.now = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m core.Recorder) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithRetention keeps token rows for d past their expiry. It must cover the
// verifier's clock-skew leeway, otherwise a revoked row could be pruned while
// its token still passes the expiry check.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.retention = d
		}
	}
}

// New creates a ledger on top of the persistence handle.
func New(db DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:      db,
		now:     core.SystemClock,
		metrics: metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) log() *zap.Logger {
	return zap.L().Named("ledger")
}

// PruneResult reports rows removed by one sweep.
type PruneResult struct {
	Tokens    int64
	AuthCodes int64
}

// PruneExpired deletes token rows and authorization codes whose expiry has
// passed. Placeholder rows without an expiry are kept. Concurrent sweeps are
// safe; each row is deleted at most once.
func (l *Ledger) PruneExpired(ctx context.Context) (PruneResult, error) {
	now := l.now()
	var result PruneResult

	res, err := l.db.Exec(ctx,
		`DELETE FROM tokens WHERE expires_at IS NOT NULL AND expires_at < ?`,
		now.Add(-l.retention))
	if err != nil {
		l.metrics.RecordDatabaseQueryError("prune_tokens")
		return result, err
	}
	result.Tokens = res.RowsAffected
	l.metrics.RecordPruned("tokens", res.RowsAffected)

	res, err = l.db.Exec(ctx, `DELETE FROM auth_codes WHERE expires_at < ?`, now)
	if err != nil {
		l.metrics.RecordDatabaseQueryError("prune_auth_codes")
		return result, err
	}
	result.AuthCodes = res.RowsAffected
	l.metrics.RecordPruned("auth_codes", res.RowsAffected)

	return result, nil
}

// prune runs the sweep on behalf of another operation. Failures are logged
// and never block the caller.
func (l *Ledger) prune(ctx context.Context) {
	if _, err := l.PruneExpired(ctx); err != nil && ctx.Err() == nil {
		l.log().Warn("prune expired ledger rows", zap.Error(err))
	}
}

// RecordToken inserts a live ledger row for jti.
func (l *Ledger) RecordToken(ctx context.Context, jti, kind string, expiresAt time.Time) error {
	l.prune(ctx)
	if !ValidJTI(jti) {
		return ErrInvalidJTI
	}
	return insertToken(ctx, l.db, jti, kind, l.now(), expiresAt)
}

// RecordPair records an access identifier and its derived refresh identifier
// in one transaction, so either both rows exist or neither does.
func (l *Ledger) RecordPair(
	ctx context.Context,
	accessJTI string,
	accessExpiresAt, refreshExpiresAt time.Time,
) error {
	l.prune(ctx)
	if !ValidJTI(accessJTI) || IsRefreshJTI(accessJTI) {
		return ErrInvalidJTI
	}
	now := l.now()
	return l.db.Transaction(ctx, func(q store.Querier) error {
		if err := insertToken(ctx, q, accessJTI, models.TokenTypeAccess, now, accessExpiresAt); err != nil {
			return err
		}
		return insertToken(ctx, q, RefreshJTI(accessJTI), models.TokenTypeRefresh, now, refreshExpiresAt)
	})
}

func insertToken(
	ctx context.Context,
	q store.Querier,
	jti, kind string,
	issuedAt, expiresAt time.Time,
) error {
	_, err := q.Exec(ctx,
		`INSERT INTO tokens (jti, token_type, revoked, issued_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		jti, kind, false, issuedAt, expiresAt.UTC().Truncate(time.Second))
	return err
}

// MarkRevoked revokes jti. It is idempotent; an identifier the ledger has
// never seen gets an already-revoked placeholder row so a stolen copy is
// still rejected later. Malformed identifiers fail with ErrInvalidJTI.
func (l *Ledger) MarkRevoked(ctx context.Context, jti string) error {
	return l.markRevoked(ctx, jti, nil)
}

// MarkRevokedUntil is MarkRevoked for callers that know the token's expiry,
// which lets a placeholder row be pruned once the token could no longer verify.
func (l *Ledger) MarkRevokedUntil(ctx context.Context, jti string, expiresAt time.Time) error {
	return l.markRevoked(ctx, jti, &expiresAt)
}

func (l *Ledger) markRevoked(ctx context.Context, jti string, expiresAt *time.Time) error {
	l.prune(ctx)
	if !ValidJTI(jti) {
		return ErrInvalidJTI
	}

	res, err := l.db.Exec(ctx, `UPDATE tokens SET revoked = ? WHERE jti = ?`, true, jti)
	if err != nil {
		return err
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Losing the insert race to a concurrent revocation or issuance leaves a row
	// in place; revoke it once more so the end state is revoked either way.
	inserted, err := l.insertPlaceholder(ctx, jti, expiresAt)
	if err != nil || inserted {
		return err
	}
	_, err = l.db.Exec(ctx, `UPDATE tokens SET revoked = ? WHERE jti = ?`, true, jti)
	return err
}

// insertPlaceholder adds a revoked row for jti unless one already exists.
func (l *Ledger) insertPlaceholder(ctx context.Context, jti string, expiresAt *time.Time) (bool, error) {
	kind := models.TokenTypeUnknown
	if IsRefreshJTI(jti) {
		kind = models.TokenTypeRefresh
	}
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC().Truncate(time.Second)
	}
	res, err := l.db.Exec(ctx,
		`INSERT INTO tokens (jti, token_type, revoked, issued_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (jti) DO NOTHING`,
		jti, kind, true, l.now(), exp)
	if err != nil {
		return false, err
	}
	return res.RowsAffected == 1, nil
}

// IsRevoked reports whether jti must be rejected. Malformed identifiers are
// revoked (fail closed). Well-formed identifiers the ledger has never seen
// are not, since they may predate ledger tracking.
func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	l.prune(ctx)
	if !ValidJTI(jti) {
		return true, nil
	}

	var row models.Token
	err := l.db.QueryOne(ctx, &row, `SELECT * FROM tokens WHERE jti = ? LIMIT 1`, jti)
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	return row.Revoked, nil
}

// ConsumeRefresh revokes a refresh identifier as part of rotation and reports
// whether this caller won. Exactly one of any number of concurrent callers
// succeeds; the rest get ErrAlreadyRevoked.
func (l *Ledger) ConsumeRefresh(ctx context.Context, jti string, expiresAt time.Time) error {
	l.prune(ctx)
	if !ValidJTI(jti) || !IsRefreshJTI(jti) {
		return ErrInvalidJTI
	}

	res, err := l.db.Exec(ctx,
		`UPDATE tokens SET revoked = ? WHERE jti = ? AND revoked = ?`, true, jti, false)
	if err != nil {
		return err
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Untracked identifier: the placeholder insert is the race arbiter
	inserted, err := l.insertPlaceholder(ctx, jti, &expiresAt)
	if err != nil {
		return err
	}
	if !inserted {
		return ErrAlreadyRevoked
	}
	return nil
}

// AuthCodeGrant is what an authorization code is bound to.
type AuthCodeGrant struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string
}

// RecordAuthCode stores the hash of a plaintext authorization code.
func (l *Ledger) RecordAuthCode(
	ctx context.Context,
	plainCode string,
	grant AuthCodeGrant,
	expiresAt time.Time,
) error {
	l.prune(ctx)
	_, err := l.db.Exec(ctx,
		`INSERT INTO auth_codes (code, client_id, user_id, redirect_uri, scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		util.SHA256Hex(plainCode), grant.ClientID, grant.UserID, grant.RedirectURI, grant.Scope,
		expiresAt.UTC().Truncate(time.Second), l.now())
	return err
}

// RedeemAuthCode looks up a code by its exact (code, client, redirect URI)
// binding and deletes it in the same step, so it can never be redeemed twice
// even when the expiry check that follows fails. When two callers race, the
// one whose delete removes no row loses with ErrInvalidGrant.
func (l *Ledger) RedeemAuthCode(
	ctx context.Context,
	plainCode, clientID, redirectURI string,
) (*models.AuthorizationCode, error) {
	now := l.now()
	l.prune(ctx)
	if plainCode == "" {
		return nil, ErrInvalidGrant
	}
	hash := util.SHA256Hex(plainCode)

	var code models.AuthorizationCode
	err := l.db.QueryOne(ctx, &code,
		`SELECT * FROM auth_codes WHERE code = ? AND client_id = ? AND redirect_uri = ? LIMIT 1`,
		hash, clientID, redirectURI)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, err
	}

	res, err := l.db.Exec(ctx, `DELETE FROM auth_codes WHERE code = ?`, hash)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		l.log().Warn("authorization code redeemed concurrently", zap.String("client_id", clientID))
		return nil, ErrInvalidGrant
	}

	if code.IsExpired(now) {
		return nil, ErrInvalidGrant
	}
	return &code, nil
}
