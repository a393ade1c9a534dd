/*
Package maze provides deterministic generation of rectangular mazes.

A Graph is an arena of cells addressed by index. Generate carves a spanning
tree through the arena with a recursive backtracker driven by a seeded Rng, so
every participant that starts from the same seed ends with the same walls and
the same neighbor lists. FarthestFrom and ShortestPath search the carved
passages breadth-first.
*/
package maze

import (
	"cmp"
	"slices"
	"strings"
)

// Edge is a cleared wall between two adjacent cells. A is always the
// smaller position in (X, Z) order.
type Edge struct {
	A Position
	B Position
}

// Graph is a width×depth grid of cells. Its size is fixed at construction and
// no cell is ever removed.
type Graph struct {
	width int
	depth int
	cells []Cell
	built bool
}

// NewGraph allocates a grid with every wall standing. A non-positive width or
// depth yields an empty graph on which generation is a no-op.
func NewGraph(width, depth int) *Graph {
	if width <= 0 || depth <= 0 {
		return &Graph{}
	}

	g := &Graph{
		width: width,
		depth: depth,
		cells: make([]Cell, width*depth),
	}
	for x := 0; x < width; x++ {
		for z := 0; z < depth; z++ {
			i := g.index(x, z)
			g.cells[i] = Cell{
				Position: Position{X: x, Z: z},
				index:    i,
				walls:    allWalls,
			}
		}
	}
	return g
}

// Width returns the number of cells along X.
func (g *Graph) Width() int { return g.width }

// Depth returns the number of cells along Z.
func (g *Graph) Depth() int { return g.depth }

// Len returns the number of cells.
func (g *Graph) Len() int { return len(g.cells) }

// Built reports whether Generate has completed on the graph.
func (g *Graph) Built() bool { return g.built }

// InBound reports whether (x, z) lies inside the grid.
func (g *Graph) InBound(x, z int) bool {
	return x >= 0 && x < g.width && z >= 0 && z < g.depth
}

// Cell returns the cell at (x, z).
func (g *Graph) Cell(x, z int) (*Cell, bool) {
	if !g.InBound(x, z) {
		return nil, false
	}
	return &g.cells[g.index(x, z)], true
}

// At returns the cell with the given arena index, or nil if out of range.
func (g *Graph) At(i int) *Cell {
	if i < 0 || i >= len(g.cells) {
		return nil
	}
	return &g.cells[i]
}

// Owns reports whether c belongs to this graph.
func (g *Graph) Owns(c *Cell) bool {
	return c != nil && g.At(c.index) == c
}

// Cells returns every cell in arena order.
func (g *Graph) Cells() []*Cell {
	out := make([]*Cell, len(g.cells))
	for i := range g.cells {
		out[i] = &g.cells[i]
	}
	return out
}

// ClearedWalls returns every carved passage sorted by position.
func (g *Graph) ClearedWalls() []Edge {
	edges := make([]Edge, 0, len(g.cells))
	for i := range g.cells {
		c := &g.cells[i]
		for _, n := range c.neighbors {
			if n <= i {
				continue
			}
			edges = append(edges, newEdge(c.Position, g.cells[n].Position))
		}
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := comparePosition(a.A, b.A); c != 0 {
			return c
		}
		return comparePosition(a.B, b.B)
	})
	return edges
}

func (g *Graph) index(x, z int) int {
	return x*g.depth + z
}

// unvisitedNeighbors collects the in-bound grid neighbors of c that the
// builder has not reached yet, in +X, -X, +Z, -Z order.
func (g *Graph) unvisitedNeighbors(c *Cell) []*Cell {
	deltas := [4]Position{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}
	result := make([]*Cell, 0, len(deltas))
	for _, d := range deltas {
		n, ok := g.Cell(c.X+d.X, c.Z+d.Z)
		if ok && !n.visited {
			result = append(result, n)
		}
	}
	return result
}

// clearWalls removes the wall pair between two adjacent cells and registers
// the symmetric neighbor relation.
func (g *Graph) clearWalls(prev, cur *Cell) {
	switch {
	case prev.X < cur.X:
		prev.walls &^= WallRight
		cur.walls &^= WallLeft
	case prev.X > cur.X:
		prev.walls &^= WallLeft
		cur.walls &^= WallRight
	case prev.Z < cur.Z:
		prev.walls &^= WallFront
		cur.walls &^= WallBack
	case prev.Z > cur.Z:
		prev.walls &^= WallBack
		cur.walls &^= WallFront
	default:
		return
	}
	prev.addNeighbor(cur)
	cur.addNeighbor(prev)
}

// String provides a textual representation of the maze.
func (g *Graph) String() string {
	return g.Render(nil)
}

// Render draws the maze with Z growing downwards and X to the right. Cells
// listed in marks are drawn with their rune.
func (g *Graph) Render(marks map[Position]rune) string {
	var output strings.Builder

	// Top boundary
	output.WriteString("+" + strings.Repeat("---+", g.width) + "\n")

	for z := 0; z < g.depth; z++ {
		cellRow := "|"
		wallRow := "+"
		for x := 0; x < g.width; x++ {
			c := &g.cells[g.index(x, z)]

			if mark, ok := marks[c.Position]; ok {
				cellRow += " " + string(mark) + " "
			} else {
				cellRow += "   "
			}

			if c.HasRightWall() {
				cellRow += "|"
			} else {
				cellRow += " "
			}

			if c.HasFrontWall() {
				wallRow += "---+"
			} else {
				wallRow += "   +"
			}
		}
		output.WriteString(cellRow + "\n")
		output.WriteString(wallRow + "\n")
	}

	return output.String()
}

func newEdge(a, b Position) Edge {
	if comparePosition(a, b) > 0 {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

func comparePosition(a, b Position) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}
