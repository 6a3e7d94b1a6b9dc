package wikigraph

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// A SanityRow pairs a vertex's out-degree in the graph with its link
// count from the API.
type SanityRow struct {
	Vertex      int
	Title       string
	GraphDegree int
	APIDegree   int
}

// A SanityReport is the outcome of a sanity check, one row per sampled
// vertex in index order.
type SanityReport struct {
	Mode     SampleMode
	Fraction float64
	Rows     []SanityRow
}

// Curves returns the graph and API degree series, each sorted
// ascending on its own. Plotted together they show systematic drift
// between the dump and the live wiki.
func (r *SanityReport) Curves() (graph, api []int) {
	graph = make([]int, len(r.Rows))
	api = make([]int, len(r.Rows))
	for i, row := range r.Rows {
		graph[i] = row.GraphDegree
		api[i] = row.APIDegree
	}
	sort.Ints(graph)
	sort.Ints(api)
	return graph, api
}

// DriftSummary condenses a report to a few numbers.
type DriftSummary struct {
	Vertices   int
	Mismatches int
	MeanGraph  float64
	MeanAPI    float64
	// MeanAbsDiff is the mean of |graph - api| over paired rows.
	MeanAbsDiff float64
	// Correlation is Pearson's r of the paired degrees; zero with
	// fewer than two rows.
	Correlation float64
}

// Summary computes the drift summary of the report.
func (r *SanityReport) Summary() DriftSummary {
	s := DriftSummary{Vertices: len(r.Rows)}
	if len(r.Rows) == 0 {
		return s
	}
	g := make([]float64, len(r.Rows))
	a := make([]float64, len(r.Rows))
	diff := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		g[i] = float64(row.GraphDegree)
		a[i] = float64(row.APIDegree)
		d := g[i] - a[i]
		if d < 0 {
			d = -d
		}
		diff[i] = d
		if row.GraphDegree != row.APIDegree {
			s.Mismatches++
		}
	}
	s.MeanGraph = stat.Mean(g, nil)
	s.MeanAPI = stat.Mean(a, nil)
	s.MeanAbsDiff = stat.Mean(diff, nil)
	if len(r.Rows) > 1 && stat.Variance(g, nil) > 0 && stat.Variance(a, nil) > 0 {
		s.Correlation = stat.Correlation(g, a, nil)
	}
	return s
}

// WriteTSV writes the per-vertex table.
func (r *SanityReport) WriteTSV(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("Node\tTitle\tGraph\tAPI\n")
	for _, row := range r.Rows {
		ew.printf("%d\t%s\t%d\t%d\n", row.Vertex, row.Title, row.GraphDegree, row.APIDegree)
	}
	return ew.err
}

// WriteCurves writes the two sorted series side by side as CSV.
func (r *SanityReport) WriteCurves(w io.Writer) error {
	graph, api := r.Curves()
	ew := &errWriter{w: w}
	ew.printf("rank,graph,api\n")
	for i := range graph {
		ew.printf("%d,%d,%d\n", i, graph[i], api[i])
	}
	return ew.err
}

func (s DriftSummary) String() string {
	return fmt.Sprintf("%d vertices, %d mismatched, mean out-degree %.2f (graph) vs %.2f (api), "+
		"mean |diff| %.2f, r=%.3f", s.Vertices, s.Mismatches, s.MeanGraph, s.MeanAPI,
		s.MeanAbsDiff, s.Correlation)
}
