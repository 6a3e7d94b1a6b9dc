package wikigraph

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := parseString(t, dumpXML(
		testPage{ns: 0, id: "9", title: "Nine", text: "[[One]] [[Five]] [[Alias]] [[Five]]"},
		testPage{ns: 0, id: "1", title: "One", text: "[[Nine]]"},
		testPage{ns: 0, id: "7", title: "Alias", redirect: "One"},
		testPage{ns: 0, id: "5", title: "Five"},
		testPage{ns: 0, id: "x", title: "Broken"},
	))
	d.Stats.Lines = 77

	path := filepath.Join(t.TempDir(), "graph.db")
	require.NoError(t, d.SaveSQLite(ctx, path))

	got, err := LoadSQLite(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, graphVertices(d.Graph), graphVertices(got.Graph))
	assert.Equal(t, graphEdges(d.Graph), graphEdges(got.Graph))
	assert.Equal(t, d.Titles, got.Titles)
	assert.Equal(t, d.AliasCounts, got.AliasCounts)
	assert.Equal(t, d.Stats, got.Stats)
	assert.Equal(t, int64(1), got.Stats.Skipped)

	for i := 0; i < d.Graph.VertexCount(); i++ {
		assert.Equal(t, d.Record(i), got.Record(i))
	}

	viaOpen, err := OpenDump(ctx, path, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, graphEdges(d.Graph), graphEdges(viaOpen.Graph))
}

func TestSQLiteSaveReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")
	require.NoError(t, parseString(t, abcDump).SaveSQLite(ctx, path))

	d := parseString(t, dumpXML(
		testPage{ns: 0, id: "3", title: "Three", text: "[[Four]]"},
		testPage{ns: 0, id: "4", title: "Four"},
	))
	require.NoError(t, d.SaveSQLite(ctx, path))

	got, err := LoadSQLite(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, graphVertices(d.Graph), graphVertices(got.Graph))
	assert.Equal(t, graphEdges(d.Graph), graphEdges(got.Graph))
	assert.Equal(t, d.Titles, got.Titles)
	assert.Equal(t, d.AliasCounts, got.AliasCounts)
	assert.Equal(t, d.Stats, got.Stats)
}

func TestSQLiteRejectsBadEdges(t *testing.T) {
	ctx := context.Background()
	d := parseString(t, abcDump)
	path := filepath.Join(t.TempDir(), "graph.db")
	require.NoError(t, d.SaveSQLite(ctx, path))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO edges (seq, source, target) VALUES (99, 0, 12)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = LoadSQLite(ctx, path)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestSQLiteMissing(t *testing.T) {
	_, err := LoadSQLite(context.Background(), filepath.Join(t.TempDir(), "none.db"))
	require.ErrorIs(t, err, ErrIOFailure)
}
