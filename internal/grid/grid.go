// Package grid maps linear cell ids to square-grid coordinates and
// normalizes colors to 24 bits.
//
// A cell id is valid for 0 <= id < N*N. The codec does not bounds-check;
// callers reject out-of-range coordinates (see Dim.Contains) before
// converting.
package grid

// DefaultDimension is used when the grid size cannot be read from the
// remote resource.
const DefaultDimension = 128

// Dim is the side length N of a square grid.
type Dim int

// X returns the column of id.
func (n Dim) X(id int) int { return id % int(n) }

// Y returns the row of id.
func (n Dim) Y(id int) int { return id / int(n) }

// ID returns the linear id of (x, y).
func (n Dim) ID(x, y int) int { return y*int(n) + x }

// Cells returns N*N.
func (n Dim) Cells() int { return int(n) * int(n) }

// Contains reports whether (x, y) lies on the grid.
func (n Dim) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < int(n) && y < int(n)
}

// Valid reports whether id addresses a cell of the grid.
func (n Dim) Valid(id int) bool {
	return id >= 0 && id < n.Cells()
}

// Checker returns the placeholder color of (x, y) before any paint.
func Checker(x, y int) Color {
	if (x+y)%2 == 0 {
		return CheckerLight
	}
	return CheckerDark
}
