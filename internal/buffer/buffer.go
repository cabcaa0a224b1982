// Package buffer holds local edits that the remote log has not confirmed.
//
// Iteration follows first-insertion order. Overwriting a pending id keeps
// its position and replaces the color, so the last local write wins.
// A Buffer is not safe for concurrent use; its owner mutates it from a
// single goroutine.
package buffer

import "github.com/daviddao/megagrid/internal/grid"

// Entry is one pending edit.
type Entry struct {
	ID    int
	Color grid.Color
}

// Buffer is an insertion-ordered map from cell id to pending color.
type Buffer struct {
	order  []int
	colors map[int]grid.Color
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{colors: make(map[int]grid.Color)}
}

// Put records color as the pending color of id.
func (b *Buffer) Put(id int, color grid.Color) {
	if _, ok := b.colors[id]; !ok {
		b.order = append(b.order, id)
	}
	b.colors[id] = color
}

// Get returns the pending color of id.
func (b *Buffer) Get(id int) (grid.Color, bool) {
	c, ok := b.colors[id]
	return c, ok
}

// Len returns the number of pending ids.
func (b *Buffer) Len() int { return len(b.order) }

// Entries returns the pending edits in insertion order.
func (b *Buffer) Entries() []Entry {
	out := make([]Entry, len(b.order))
	for i, id := range b.order {
		out[i] = Entry{ID: id, Color: b.colors[id]}
	}
	return out
}

// Snapshot copies the pending edits into two index-aligned slices.
func (b *Buffer) Snapshot() (ids []int, colors []grid.Color) {
	ids = make([]int, len(b.order))
	colors = make([]grid.Color, len(b.order))
	for i, id := range b.order {
		ids[i] = id
		colors[i] = b.colors[id]
	}
	return ids, colors
}

// Clear drops every pending edit.
func (b *Buffer) Clear() {
	b.order = nil
	clear(b.colors)
}
