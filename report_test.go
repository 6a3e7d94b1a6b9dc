package wikigraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() *SanityReport {
	return &SanityReport{
		Mode:     SampleNodes,
		Fraction: 0.5,
		Rows: []SanityRow{
			{Vertex: 0, Title: "a", GraphDegree: 3, APIDegree: 0},
			{Vertex: 2, Title: "c", GraphDegree: 1, APIDegree: 5},
			{Vertex: 5, Title: "f", GraphDegree: 2, APIDegree: 4},
		},
	}
}

func TestReportCurves(t *testing.T) {
	graph, api := testReport().Curves()
	assert.Equal(t, []int{1, 2, 3}, graph)
	assert.Equal(t, []int{0, 4, 5}, api)
}

func TestReportSummary(t *testing.T) {
	s := testReport().Summary()
	assert.Equal(t, 3, s.Vertices)
	assert.Equal(t, 3, s.Mismatches)
	assert.InDelta(t, 2, s.MeanGraph, 1e-9)
	assert.InDelta(t, 3, s.MeanAPI, 1e-9)
	assert.InDelta(t, 3, s.MeanAbsDiff, 1e-9)
	assert.InDelta(t, -0.9449, s.Correlation, 1e-3)

	assert.Equal(t, DriftSummary{}, (&SanityReport{}).Summary())

	same := &SanityReport{Rows: []SanityRow{{GraphDegree: 2, APIDegree: 2}}}
	s = same.Summary()
	assert.Zero(t, s.Mismatches)
	assert.Zero(t, s.Correlation)
}

func TestReportWriteTSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testReport().WriteTSV(&buf))
	assert.Equal(t, "Node\tTitle\tGraph\tAPI\n0\ta\t3\t0\n2\tc\t1\t5\n5\tf\t2\t4\n", buf.String())
}

func TestReportWriteCurves(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testReport().WriteCurves(&buf))
	assert.Equal(t, "rank,graph,api\n0,1,0\n1,2,4\n2,3,5\n", buf.String())
}
