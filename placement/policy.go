// Package placement chooses goal and collectible cells on a generated maze.
package placement

import (
	"github.com/beka-birhanu/vinom-mazesync/maze"
)

// Point is a position on the floor plane in world units.
type Point struct {
	X float64
	Z float64
}

// SquaredDistance returns the squared Euclidean distance between p and o.
func (p Point) SquaredDistance(o Point) float64 {
	dx, dz := p.X-o.X, p.Z-o.Z
	return dx*dx + dz*dz
}

// Policy picks cells using the maze's shared Rng, so every participant that
// drives it with the same sequence of calls makes the same choices.
type Policy struct {
	rng      *maze.Rng
	cellSize float64
}

// New returns a policy drawing from rng with cells cellSize world units apart.
// A non-positive cellSize is treated as 1.
func New(rng *maze.Rng, cellSize float64) *Policy {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Policy{rng: rng, cellSize: cellSize}
}

// CellPoint returns the world position of the center of c.
func (p *Policy) CellPoint(c *maze.Cell) Point {
	return Point{X: float64(c.X) * p.cellSize, Z: float64(c.Z) * p.cellSize}
}

// ClosestCell returns the cell nearest to ref. Ties go to the lowest arena
// index.
func (p *Policy) ClosestCell(g *maze.Graph, ref Point) (*maze.Cell, bool) {
	if g == nil || g.Len() == 0 {
		return nil, false
	}

	best := g.At(0)
	bestDist := p.CellPoint(best).SquaredDistance(ref)
	for _, c := range g.Cells()[1:] {
		if d := p.CellPoint(c).SquaredDistance(ref); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}

// ChooseGoal returns the cell farthest by path length from the cell closest
// to ref.
func (p *Policy) ChooseGoal(g *maze.Graph, ref Point) (*maze.Cell, bool) {
	start, ok := p.ClosestCell(g, ref)
	if !ok {
		return nil, false
	}
	goal, _, ok := maze.FarthestFrom(g, start)
	return goal, ok
}

// ChooseCollectibles picks up to maxCount cells at least minDistance from
// ref, accepting each shuffled candidate with probability spawnProbability.
// When nothing is accepted a single cell is forced: the goal-style farthest
// cell, or a random one if the graph cannot be searched. The result is empty
// only for an empty graph.
func (p *Policy) ChooseCollectibles(g *maze.Graph, ref Point, maxCount int, spawnProbability, minDistance float64) []*maze.Cell {
	if g == nil || g.Len() == 0 {
		return nil
	}

	cells := g.Cells()
	minSq := minDistance * minDistance
	pool := make([]*maze.Cell, 0, len(cells))
	for _, c := range cells {
		if p.CellPoint(c).SquaredDistance(ref) >= minSq {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = cells
	}

	p.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	chosen := make([]*maze.Cell, 0, max(maxCount, 1))
	for _, c := range pool {
		if len(chosen) >= maxCount {
			break
		}
		if p.rng.Float64() < spawnProbability {
			chosen = append(chosen, c)
		}
	}

	if len(chosen) == 0 {
		forced, ok := p.ChooseGoal(g, ref)
		if !ok {
			forced = cells[p.rng.Intn(len(cells))]
		}
		chosen = append(chosen, forced)
	}
	return chosen
}

// ChooseMidpoint returns the cell halfway along the path from start to goal,
// or goal itself when no path exists.
func (p *Policy) ChooseMidpoint(g *maze.Graph, start, goal *maze.Cell) *maze.Cell {
	path, ok := maze.ShortestPath(g, start, goal)
	if !ok {
		return goal
	}
	return path[len(path)/2]
}
