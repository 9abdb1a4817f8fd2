// Package reorder moves one item within an ordered list and writes the
// resulting positions back.
package reorder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ErrIndexOutOfRange is returned when from or to is outside the list.
var ErrIndexOutOfRange = errors.New("reorder: index out of range")

// DefaultLimit bounds the number of position writes in flight.
const DefaultLimit = 8

// Move returns a copy of items with the element at from removed and
// reinserted at to. The input slice is not modified.
func Move[T any](items []T, from, to int) ([]T, error) {
	n := len(items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, fmt.Errorf("%w: from=%d to=%d len=%d", ErrIndexOutOfRange, from, to, n)
	}

	out := make([]T, 0, n)
	moved := items[from]
	for i, item := range items {
		if i == from {
			continue
		}
		if len(out) == to {
			out = append(out, moved)
		}
		out = append(out, item)
	}
	if len(out) < n {
		out = append(out, moved)
	}
	return out, nil
}

// PositionWriter stores one position. store.Store implements it.
type PositionWriter interface {
	SetPosition(ctx context.Context, owner uint, id string, position int) error
}

// Persist writes position i for ids[i]. Writes run concurrently, at most
// limit at a time, and none is skipped when another fails. All failures
// are returned combined. There is no rollback: on error the stored order
// is whatever the successful writes left behind.
func Persist(ctx context.Context, w PositionWriter, owner uint, ids []string, limit int) error {
	if limit < 1 {
		limit = DefaultLimit
	}

	// Each write records its own error in errs; the group only bounds
	// concurrency.
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			if err := w.SetPosition(ctx, owner, id, i); err != nil {
				errs[i] = fmt.Errorf("position %d (%s): %w", i, id, err)
			}
			return nil
		})
	}
	g.Wait()

	return multierr.Combine(errs...)
}
