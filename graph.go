package wikigraph

import (
	"sort"
)

// A Vertex is one article in a Graph.
type Vertex struct {
	// Index is the vertex's position in its graph, in [0, VertexCount).
	// It is not stable across graphs.
	Index int
	// OriginalID is the page id assigned by the dump.
	OriginalID uint64
	// Title is the normalized (lower case) title.
	Title string
}

// An Edge says the Source article links to the Target article.
type Edge struct {
	Source, Target int
}

// Graph is a read-only directed article link graph. Multiple edges
// between the same pair of vertices are kept; self loops never occur.
type Graph struct {
	vertices []Vertex
	edges    []Edge
	out      [][]int
	in       [][]int
	byTitle  map[string]int
}

// newGraph indexes vertices and edges. Vertex indices must already be
// their slice positions.
func newGraph(vertices []Vertex, edges []Edge) *Graph {
	g := &Graph{
		vertices: vertices,
		edges:    edges,
		out:      make([][]int, len(vertices)),
		in:       make([][]int, len(vertices)),
		byTitle:  make(map[string]int, len(vertices)),
	}
	for i, v := range vertices {
		g.byTitle[v.Title] = i
	}
	for _, e := range edges {
		g.out[e.Source] = append(g.out[e.Source], e.Target)
		g.in[e.Target] = append(g.in[e.Target], e.Source)
	}
	return g
}

// VertexCount is the number of vertices.
func (g *Graph) VertexCount() int { return len(g.vertices) }

// EdgeCount is the number of edges, counting repeats.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Vertex returns the vertex at index i.
func (g *Graph) Vertex(i int) Vertex { return g.vertices[i] }

// Edge returns the i-th edge. Edges keep the order they were built in.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// OutNeighbors lists the targets of i's outgoing edges, with repeats.
func (g *Graph) OutNeighbors(i int) []int {
	return append([]int(nil), g.out[i]...)
}

// InNeighbors lists the sources of i's incoming edges, with repeats.
func (g *Graph) InNeighbors(i int) []int {
	return append([]int(nil), g.in[i]...)
}

func (g *Graph) OutDegree(i int) int { return len(g.out[i]) }

func (g *Graph) InDegree(i int) int { return len(g.in[i]) }

// Lookup finds a vertex by title. The title need not be normalized.
func (g *Graph) Lookup(title string) (Vertex, bool) {
	i, ok := g.byTitle[NormalizeTitle(title)]
	if !ok {
		return Vertex{}, false
	}
	return g.vertices[i], true
}

// Direction selects which edges a walk follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (g *Graph) neighbors(i int, dir Direction) []int {
	switch dir {
	case Outgoing:
		return g.out[i]
	case Incoming:
		return g.in[i]
	}
	rv := make([]int, 0, len(g.out[i])+len(g.in[i]))
	rv = append(rv, g.out[i]...)
	return append(rv, g.in[i]...)
}

// Neighborhood returns the sorted indices of every vertex within depth
// hops of start, start included.
func (g *Graph) Neighborhood(start int, depth int, dir Direction) []int {
	visited := map[int]bool{start: true}
	level := []int{start}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []int
		for _, v := range level {
			for _, n := range g.neighbors(v, dir) {
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
				}
			}
		}
		level = next
	}

	rv := make([]int, 0, len(visited))
	for v := range visited {
		rv = append(rv, v)
	}
	sort.Ints(rv)
	return rv
}

// Subgraph returns the graph induced by the given vertex indices.
// Vertices are renumbered in the order given.
func (g *Graph) Subgraph(indices []int) *Graph {
	pos := make(map[int]int, len(indices))
	from := make([]int, 0, len(indices))
	vertices := make([]Vertex, 0, len(indices))
	for _, i := range indices {
		if _, dup := pos[i]; dup {
			continue
		}
		v := g.vertices[i]
		pos[i] = len(vertices)
		v.Index = len(vertices)
		vertices = append(vertices, v)
		from = append(from, i)
	}

	var edges []Edge
	for src, i := range from {
		for _, t := range g.out[i] {
			if dst, ok := pos[t]; ok {
				edges = append(edges, Edge{src, dst})
			}
		}
	}
	return newGraph(vertices, edges)
}
