package maze

// Wall identifies one side of a cell.
type Wall uint8

const (
	WallLeft  Wall = 1 << iota // WallLeft faces -X.
	WallRight                  // WallRight faces +X.
	WallBack                   // WallBack faces -Z.
	WallFront                  // WallFront faces +Z.

	allWalls = WallLeft | WallRight | WallBack | WallFront
)

// String returns the wall name.
func (w Wall) String() string {
	switch w {
	case WallLeft:
		return "Left"
	case WallRight:
		return "Right"
	case WallBack:
		return "Back"
	case WallFront:
		return "Front"
	default:
		return "Unknown"
	}
}

// Position is the integer grid coordinate of a cell.
type Position struct {
	X int // X is the column along the width axis.
	Z int // Z is the row along the depth axis.
}

// Cell is a single maze cell. Cells are owned by a Graph and only mutated
// while the maze is being generated.
type Cell struct {
	Position

	index     int   // index of the cell in the graph arena.
	visited   bool  // visited is set once the builder reaches the cell.
	walls     Wall  // walls still standing.
	neighbors []int // arena indices reachable through a cleared wall.
}

// Index returns the cell's index in its graph.
func (c *Cell) Index() int {
	return c.index
}

// Visited reports whether the builder has reached the cell.
func (c *Cell) Visited() bool {
	return c.visited
}

// HasWall reports whether the given wall is still standing.
func (c *Cell) HasWall(w Wall) bool {
	return c.walls&w != 0
}

// HasLeftWall returns true if the -X wall is standing.
func (c *Cell) HasLeftWall() bool { return c.HasWall(WallLeft) }

// HasRightWall returns true if the +X wall is standing.
func (c *Cell) HasRightWall() bool { return c.HasWall(WallRight) }

// HasBackWall returns true if the -Z wall is standing.
func (c *Cell) HasBackWall() bool { return c.HasWall(WallBack) }

// HasFrontWall returns true if the +Z wall is standing.
func (c *Cell) HasFrontWall() bool { return c.HasWall(WallFront) }

// Neighbors returns the indices of the cells connected to c, in the order
// the connections were carved.
func (c *Cell) Neighbors() []int {
	out := make([]int, len(c.neighbors))
	copy(out, c.neighbors)
	return out
}

// IsNeighbor reports whether other is reachable from c through a cleared wall.
func (c *Cell) IsNeighbor(other *Cell) bool {
	if other == nil {
		return false
	}
	for _, n := range c.neighbors {
		if n == other.index {
			return true
		}
	}
	return false
}

func (c *Cell) addNeighbor(other *Cell) {
	if c.IsNeighbor(other) {
		return
	}
	c.neighbors = append(c.neighbors, other.index)
}
