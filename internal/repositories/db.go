package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is satisfied by *pgxpool.Pool and by pgxmock pools.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateBillNumber = errors.New("bill number already exists")
	ErrDuplicateEmail      = errors.New("customer email already exists")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAlreadySettled      = errors.New("bill already settled")
)

const uniqueViolation = "23505"

// StockShortageError reports the product whose conditional decrement
// matched no row.
type StockShortageError struct {
	ProductID uuid.UUID
	Requested int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *StockShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
