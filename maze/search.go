package maze

import (
	"github.com/zyedidia/generic/mapset"
	"github.com/zyedidia/generic/queue"
)

// traversal is the result of one breadth-first walk over cleared passages.
type traversal struct {
	distance map[int]int
	parent   map[int]int
	farthest int
}

// walk runs BFS from start following neighbor lists only. The farthest cell
// is the first one discovered at a strictly greater distance, so ties resolve
// to BFS order.
func walk(g *Graph, start *Cell) traversal {
	t := traversal{
		distance: map[int]int{start.index: 0},
		parent:   map[int]int{},
		farthest: start.index,
	}

	visited := mapset.New[int]()
	visited.Put(start.index)
	pending := queue.New[int]()
	pending.Enqueue(start.index)

	for !pending.Empty() {
		cur := pending.Dequeue()
		if t.distance[cur] > t.distance[t.farthest] {
			t.farthest = cur
		}

		for _, n := range g.cells[cur].neighbors {
			if visited.Has(n) {
				continue
			}
			visited.Put(n)
			t.distance[n] = t.distance[cur] + 1
			t.parent[n] = cur
			pending.Enqueue(n)
		}
	}

	return t
}

func searchable(g *Graph, cells ...*Cell) bool {
	if g == nil || !g.built {
		return false
	}
	for _, c := range cells {
		if !g.Owns(c) {
			return false
		}
	}
	return true
}

// FarthestFrom returns the cell with the greatest path distance from start
// and that distance. It reports false when g has not been generated or start
// does not belong to g.
func FarthestFrom(g *Graph, start *Cell) (*Cell, int, bool) {
	if !searchable(g, start) {
		return nil, 0, false
	}
	t := walk(g, start)
	return &g.cells[t.farthest], t.distance[t.farthest], true
}

// ShortestPath returns the cells from start to goal inclusive. It reports
// false when either cell is foreign, the graph is not generated, or goal is
// unreachable.
func ShortestPath(g *Graph, start, goal *Cell) ([]*Cell, bool) {
	if !searchable(g, start, goal) {
		return nil, false
	}
	t := walk(g, start)
	if _, ok := t.distance[goal.index]; !ok {
		return nil, false
	}

	path := make([]*Cell, t.distance[goal.index]+1)
	for i, cur := len(path)-1, goal.index; i >= 0; i-- {
		path[i] = &g.cells[cur]
		cur = t.parent[cur]
	}
	return path, true
}

// Distances maps every reachable cell index to its path distance from start.
func Distances(g *Graph, start *Cell) map[int]int {
	if !searchable(g, start) {
		return nil
	}
	return walk(g, start).distance
}
