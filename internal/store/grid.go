package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

// Grid is the authoritative in-memory mirror of every cell.
//
// LAYOUT:
// Storage is row-major, cells[y][x]. The grid is never resized in place:
// Load builds a fresh array for the requested size and swaps it in whole.
//
// VERSIONS:
// Every write takes the next value of a grid-wide counter and stamps it on
// the cell. A pixel update remembers the version it wrote so that its revert
// can tell whether anyone else has written the cell since.
type Grid struct {
	mu      sync.RWMutex
	size    model.Size
	cells   [][]model.Cell
	version uint64

	repo   repository.PixelRepository
	logger *slog.Logger
}

// GridSnapshot is a deep copy of the grid used to stage risky reloads.
// Author values are shared with the live grid; they are never mutated after
// a cell is written, only replaced.
type GridSnapshot struct {
	size  model.Size
	cells [][]model.Cell
}

// Size of the captured grid.
func (s GridSnapshot) Size() model.Size { return s.size }

func NewGrid(repo repository.PixelRepository, logger *slog.Logger) *Grid {
	return &Grid{repo: repo, logger: logger}
}

func blankCells(size model.Size) [][]model.Cell {
	cells := make([][]model.Cell, size.Height)
	for y := range cells {
		row := make([]model.Cell, size.Width)
		for x := range row {
			row[x] = model.Cell{Color: model.EmptyColor}
		}
		cells[y] = row
	}
	return cells
}

// Load rebuilds the grid at size and fills it from durable storage. Rows that
// fall outside size (left over from a larger grid) are skipped. On a query
// failure the current grid is left untouched.
func (g *Grid) Load(ctx context.Context, size model.Size) (int, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return 0, fmt.Errorf("store/grid: invalid size %dx%d", size.Width, size.Height)
	}

	rows, err := g.repo.AllPixels(ctx)
	if err != nil {
		return 0, fmt.Errorf("store/grid: loading pixels: %w", err)
	}

	cells := blankCells(size)
	loaded, skipped := 0, 0
	for _, r := range rows {
		if !size.Contains(r.X, r.Y) {
			skipped++
			continue
		}
		cells[r.Y][r.X] = model.Cell{Color: r.Color, Author: r.Author}
		loaded++
	}

	g.mu.Lock()
	g.size = size
	g.cells = cells
	g.mu.Unlock()

	g.logger.Info("grid loaded",
		slog.Int("width", size.Width),
		slog.Int("height", size.Height),
		slog.Int("cells", loaded),
		slog.Int("skipped", skipped),
	)
	return loaded, nil
}

// Size returns the current dimensions.
func (g *Grid) Size() model.Size {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size
}

// Cell returns the cell at (x, y); ok is false when out of bounds.
func (g *Grid) Cell(x, y int) (model.Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.size.Contains(x, y) {
		return model.Cell{}, false
	}
	return g.cells[y][x], true
}

// SetCell writes a cell and returns the version it was stamped with.
// ok is false when (x, y) is out of bounds for the current grid.
func (g *Grid) SetCell(x, y int, color string, author *model.Author) (version uint64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.size.Contains(x, y) {
		return 0, false
	}
	g.version++
	g.cells[y][x] = model.Cell{Color: color, Author: author, Version: g.version}
	return g.version, true
}

// Swap reads the current cell and writes a new one under a single lock, so
// the returned previous value is exactly what the write replaced.
func (g *Grid) Swap(x, y int, color string, author *model.Author) (prev model.Cell, version uint64, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.size.Contains(x, y) {
		return model.Cell{}, 0, false
	}
	prev = g.cells[y][x]
	g.version++
	g.cells[y][x] = model.Cell{Color: color, Author: author, Version: g.version}
	return prev, g.version, true
}

// Revert restores prev at (x, y) only if the cell still carries version.
// It reports whether the revert was applied.
func (g *Grid) Revert(x, y int, prev model.Cell, version uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.size.Contains(x, y) || g.cells[y][x].Version != version {
		return false
	}
	g.cells[y][x] = prev
	return true
}

// View runs fn with the live rows under the read lock. fn must not retain or
// mutate rows; it exists so full-grid encoders can avoid a copy.
func (g *Grid) View(fn func(size model.Size, rows [][]model.Cell)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn(g.size, g.cells)
}

// Snapshot deep-copies the grid.
func (g *Grid) Snapshot() GridSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cells := make([][]model.Cell, len(g.cells))
	for y, row := range g.cells {
		cells[y] = append([]model.Cell(nil), row...)
	}
	return GridSnapshot{size: g.size, cells: cells}
}

// Restore puts a snapshot back verbatim. The snapshot must not be reused.
func (g *Grid) Restore(s GridSnapshot) {
	g.mu.Lock()
	g.size = s.size
	g.cells = s.cells
	g.mu.Unlock()
}
