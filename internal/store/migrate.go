package store

import (
	"context"
	"fmt"

	"github.com/go-authgate/budgetgate/internal/models"

	"go.uber.org/zap"
)

// schemaTables are required: a table that cannot be created fails initialization.
var schemaTables = []any{
	&models.User{},
	&models.Token{},
	&models.Client{},
	&models.AuthorizationCode{},
}

type columnMigration struct {
	model  any
	column string
}

// additiveColumns were introduced after the first release. Rows that predate
// them pick up the column default, e.g. legacy clients get
// client_secret_hashed=false and are rehashed on their next successful auth.
var additiveColumns = []columnMigration{
	{&models.User{}, "scopes"},
	{&models.User{}, "is_active"},
	{&models.Token{}, "token_type"},
	{&models.Token{}, "expires_at"},
	{&models.Client{}, "client_secret_hashed"},
	{&models.Client{}, "allowed_scopes"},
	{&models.AuthorizationCode{}, "scope"},
}

type indexMigration struct {
	model any
	name  string
}

var schemaIndexes = []indexMigration{
	{&models.Token{}, "ExpiresAt"},
	{&models.AuthorizationCode{}, "ClientID"},
	{&models.AuthorizationCode{}, "ExpiresAt"},
}

// migrate creates missing tables and applies additive migrations. It never
// drops or alters existing columns. Column and index failures are logged and
// skipped so the service stays available on a partially upgraded schema.
func (s *Store) migrate(ctx context.Context) error {
	log := zap.L().Named("store")
	m := s.db.WithContext(ctx).Migrator()

	for _, model := range schemaTables {
		if m.HasTable(model) {
			continue
		}
		if err := m.CreateTable(model); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	for _, c := range additiveColumns {
		if m.HasColumn(c.model, c.column) {
			continue
		}
		if err := m.AddColumn(c.model, c.column); err != nil {
			log.Warn("additive column migration failed",
				zap.String("model", fmt.Sprintf("%T", c.model)),
				zap.String("column", c.column),
				zap.Error(err))
			continue
		}
		log.Info("added column",
			zap.String("model", fmt.Sprintf("%T", c.model)),
			zap.String("column", c.column))
	}

	for _, idx := range schemaIndexes {
		if m.HasIndex(idx.model, idx.name) {
			continue
		}
		if err := m.CreateIndex(idx.model, idx.name); err != nil {
			log.Warn("index migration failed",
				zap.String("model", fmt.Sprintf("%T", idx.model)),
				zap.String("index", idx.name),
				zap.Error(err))
		}
	}

	return nil
}
