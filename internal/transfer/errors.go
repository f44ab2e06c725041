package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/destination"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/mapping"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/record"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/schema"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/source"
)

var (
	ErrNotFound = errors.New("row not found")
	// ErrNotMigrated wraps ErrNotFound: the source row exists but was never
	// transferred, so there is no destination row to touch.
	ErrNotMigrated    = fmt.Errorf("%w: row was never transferred", ErrNotFound)
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTransaction    = errors.New("transaction failed")
)

// classify maps lower-level errors onto the sentinels callers match on.
// Anything unrecognized is a storage failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrSchemaMismatch),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrTransaction):
		return err
	case errors.Is(err, source.ErrRowNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, schema.ErrTableNotFound),
		errors.Is(err, schema.ErrColumnNotFound),
		errors.Is(err, schema.ErrNoPrimaryKey),
		errors.Is(err, destination.ErrNoKey):
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	case errors.Is(err, mapping.ErrInvalidTableName),
		errors.Is(err, record.ErrEmptyKey):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransaction, err)
	}
}
