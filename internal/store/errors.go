package store

import (
	"errors"
	"fmt"

	"github.com/go-authgate/budgetgate/internal/core"
)

var (
	// ErrRecordNotFound is returned by QueryOne when no row matches
	ErrRecordNotFound = fmt.Errorf("record %w", core.ErrNotFound)

	// ErrDuplicateKey is returned when an insert hits a primary key or unique index
	ErrDuplicateKey = fmt.Errorf("duplicate key: %w", core.ErrConflict)

	// ErrUnsupportedDriver is returned for an unknown DATABASE_DRIVER
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrStoreClosed is returned once Close has been called
	ErrStoreClosed = errors.New("store closed")
)
