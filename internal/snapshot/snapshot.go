// Package snapshot reads a full copy of the remote grid.
//
// A GridSnapshot holds every cell that has been colored at the time of the
// read. Cells still at color zero are left out, so an untouched grid
// snapshots to an empty list. Reads fan out over a bounded errgroup.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/grid"
)

// DefaultConcurrency bounds in-flight CellColor reads.
const DefaultConcurrency = 16

// Cell is one colored cell.
type Cell struct {
	ID    int        `json:"id"`
	X     int        `json:"x"`
	Y     int        `json:"y"`
	Color grid.Color `json:"color"`
}

// GridSnapshot is an immutable view of the remote grid.
type GridSnapshot struct {
	Dimension int       `json:"dimension"`
	Cells     []Cell    `json:"cells"`
	BuiltAt   time.Time `json:"built_at"`
}

// Painted is the number of non-zero cells.
func (s *GridSnapshot) Painted() int { return len(s.Cells) }

// Build reads the dimension and every cell from r. concurrency <= 0 uses
// DefaultConcurrency. The first read error cancels the rest.
func Build(ctx context.Context, r chain.Reader, concurrency int) (*GridSnapshot, error) {
	n, err := r.GridDimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("grid dimension: %w", err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("grid dimension %d is not usable", n)
	}
	d := grid.Dim(n)
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	colors := make([]grid.Color, d.Cells())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for id := range colors {
		g.Go(func() error {
			c, err := r.CellColor(gctx, id)
			if err != nil {
				return err
			}
			colors[id] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &GridSnapshot{Dimension: n, Cells: []Cell{}, BuiltAt: time.Now()}
	for id, c := range colors {
		if c == 0 {
			continue
		}
		snap.Cells = append(snap.Cells, Cell{ID: id, X: d.X(id), Y: d.Y(id), Color: c})
	}
	return snap, nil
}
