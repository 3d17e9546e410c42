package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRows is returned by One when the query matched nothing
var ErrNoRows = errors.New("store: no rows")

// Exec runs a write and returns the raw CommandTag
func Exec(ctx context.Context, q RowQuerier, sql string, args ...any) (CommandTag, error) {
	return q.Exec(ctx, sql, args...)
}

// ExecOne runs a write and asserts exactly 1 row affected
func ExecOne(ctx context.Context, q RowQuerier, sql string, args ...any) error {
	ct, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if n := ct.RowsAffected(); n != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", n)
	}
	return nil
}

// Scalar queries the first row, first column into T
func Scalar[T any](ctx context.Context, q RowQuerier, sql string, args ...any) (T, error) {
	var out T
	err := q.QueryRow(ctx, sql, args...).Scan(&out)
	return out, err
}

// One uses a custom scanner to map a single row into T
func One[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) (T, error) {
	var zero T
	rs, err := q.Query(ctx, sql, args...)
	if err != nil {
		return zero, err
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return zero, err
		}
		return zero, ErrNoRows
	}
	out, err := scan(rowFacade{rs})
	if err != nil {
		return zero, err
	}
	return out, rs.Err()
}

// Many uses a custom scanner to map all rows into []T
func Many[T any](ctx context.Context, q RowQuerier, scan func(Row) (T, error), sql string, args ...any) ([]T, error) {
	rs, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []T
	for rs.Next() {
		item, err := scan(rowFacade{rs})
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rs.Err()
}

// rowFacade gives a Row view over the current Rows position
type rowFacade struct{ rows Rows }

func (r rowFacade) Scan(dest ...any) error { return r.rows.Scan(dest...) }
