package wikigraph

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SampleMode selects how the sanity check picks vertices.
type SampleMode string

const (
	// SampleNodes draws vertices with probability proportional to
	// their out-degree.
	SampleNodes SampleMode = "nodes"
	// SampleEdges draws edges uniformly and takes both endpoints.
	SampleEdges SampleMode = "edges"
	// SampleNodesEdges does both.
	SampleNodesEdges SampleMode = "nodes_edges"
)

// ParseSampleMode parses a sample mode name.
func ParseSampleMode(s string) (SampleMode, error) {
	switch m := SampleMode(s); m {
	case SampleNodes, SampleEdges, SampleNodesEdges:
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidArgument, "unknown sample mode %q", s)
}

func (m SampleMode) nodes() bool { return m == SampleNodes || m == SampleNodesEdges }

func (m SampleMode) edges() bool { return m == SampleEdges || m == SampleNodesEdges }

// A LinkLister lists the outgoing article links of a page from some
// source other than the dump.
type LinkLister interface {
	Links(ctx context.Context, title string) ([]string, error)
}

// A SanityChecker compares the out-degrees of a sample of graph
// vertices against a live wiki.
type SanityChecker struct {
	API LinkLister
	// Seed makes the sample reproducible.
	Seed     int64
	Log      logrus.FieldLogger
	Observer Observer
}

// Check samples fraction of g (by vertices, edges or both, per mode)
// and asks the API for the link count of every sampled vertex. titles
// maps normalized titles to the original case the API wants.
//
// Differences between the two counts are the result, not an error.
// Check fails only on bad arguments, API failures, or when its own
// bookkeeping does not add up.
func (c *SanityChecker) Check(ctx context.Context, g *Graph, mode SampleMode,
	fraction float64, titles map[string]string) (*SanityReport, error) {

	if math.IsNaN(fraction) || fraction <= 0 || fraction > 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "sample fraction %v not in (0, 1]", fraction)
	}
	if _, err := ParseSampleMode(string(mode)); err != nil {
		return nil, err
	}
	if c.API == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "no API to check against")
	}
	log := loggerOrDiscard(c.Log)
	obs := observerOrNop(c.Observer)

	rng := rand.New(rand.NewSource(c.Seed))
	selected := sampleVertices(g, mode, fraction, rng)
	log.WithFields(logrus.Fields{
		"mode":     mode,
		"fraction": fraction,
		"selected": len(selected),
	}).Info("selected vertices")

	graphCounts := make(map[int]int, len(selected))
	for _, v := range selected {
		graphCounts[v] = g.OutDegree(v)
	}

	apiCounts := make(map[int]int, len(selected))
	for i, v := range selected {
		title := g.Vertex(v).Title
		if t, ok := titles[title]; ok {
			title = t
		}
		links, err := c.API.Links(ctx, title)
		if err != nil {
			if !errors.Is(err, ErrExternalService) {
				err = withKind(ErrExternalService, err)
			}
			return nil, stageError(StageSanity, title, err)
		}
		apiCounts[v] = len(links)
		obs.Observe(Event{Stage: StageSanity, Done: int64(i + 1), Total: int64(len(selected))})
	}

	if len(graphCounts) != len(apiCounts) || len(graphCounts) != len(selected) {
		return nil, stageError(StageSanity, "report", errors.Wrapf(ErrInvariantViolation,
			"%d selected, %d graph counts, %d api counts",
			len(selected), len(graphCounts), len(apiCounts)))
	}

	rep := &SanityReport{Mode: mode, Fraction: fraction, Rows: make([]SanityRow, 0, len(selected))}
	for _, v := range selected {
		rep.Rows = append(rep.Rows, SanityRow{
			Vertex:      v,
			Title:       g.Vertex(v).Title,
			GraphDegree: graphCounts[v],
			APIDegree:   apiCounts[v],
		})
	}
	return rep, nil
}

// sampleVertices returns the sorted set of vertices selected by mode.
// Draws are with replacement, so the set may be smaller than the
// number of draws.
func sampleVertices(g *Graph, mode SampleMode, fraction float64, rng *rand.Rand) []int {
	set := map[int]struct{}{}

	if mode.nodes() {
		n := int(math.Floor(fraction * float64(g.VertexCount())))
		if s := newOutDegreeSampler(g); s != nil {
			for i := 0; i < n; i++ {
				set[s.draw(rng)] = struct{}{}
			}
		}
	}
	if mode.edges() && g.EdgeCount() > 0 {
		n := int(math.Floor(fraction * float64(g.EdgeCount())))
		for i := 0; i < n; i++ {
			e := g.Edge(rng.Intn(g.EdgeCount()))
			set[e.Source] = struct{}{}
			set[e.Target] = struct{}{}
		}
	}

	rv := make([]int, 0, len(set))
	for v := range set {
		rv = append(rv, v)
	}
	sort.Ints(rv)
	return rv
}

// cumulativeSampler draws indices with probability proportional to
// their weight by binary search over the running totals.
type cumulativeSampler struct {
	cum []int64
}

// newOutDegreeSampler weights every vertex by its out-degree. It
// returns nil when the graph has no edges.
func newOutDegreeSampler(g *Graph) *cumulativeSampler {
	weights := make([]int64, g.VertexCount())
	for i := range weights {
		weights[i] = int64(g.OutDegree(i))
	}
	return newCumulativeSampler(weights)
}

func newCumulativeSampler(weights []int64) *cumulativeSampler {
	cum := make([]int64, len(weights))
	var total int64
	for i, w := range weights {
		if w > 0 {
			total += w
		}
		cum[i] = total
	}
	if total == 0 {
		return nil
	}
	return &cumulativeSampler{cum: cum}
}

func (s *cumulativeSampler) draw(rng *rand.Rand) int {
	r := rng.Int63n(s.cum[len(s.cum)-1])
	return sort.Search(len(s.cum), func(i int) bool { return s.cum[i] > r })
}
