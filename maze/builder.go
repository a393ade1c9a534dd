package maze

// Generate carves a spanning tree into g starting at start, drawing every
// random choice from rng. Generation runs once per graph: calling it on a
// graph that was already generated, with a start cell that does not belong to
// g, or on an empty graph does nothing.
func Generate(g *Graph, start *Cell, rng *Rng) {
	if g == nil || rng == nil || g.built || !g.Owns(start) {
		return
	}
	for i := range g.cells {
		if g.cells[i].visited {
			return
		}
	}

	g.carve(nil, start, rng)
	g.built = true
}

// carve visits cur and keeps descending into random unvisited neighbors until
// none are left. The unvisited set is re-read after every descent because the
// recursion may have consumed some of it.
func (g *Graph) carve(prev, cur *Cell, rng *Rng) {
	cur.visited = true
	if prev != nil {
		g.clearWalls(prev, cur)
	}

	for next := g.unvisitedNeighbors(cur); len(next) > 0; next = g.unvisitedNeighbors(cur) {
		g.carve(cur, next[rng.Intn(len(next))], rng)
	}
}
