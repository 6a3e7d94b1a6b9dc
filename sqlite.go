package wikigraph

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS vertices (
		idx INTEGER PRIMARY KEY,
		original_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		display_title TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS edges (
		seq INTEGER PRIMARY KEY,
		source INTEGER NOT NULL,
		target INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS aliases (
		title TEXT PRIMARY KEY,
		count INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS titles (
		title TEXT PRIMARY KEY,
		original TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS stats (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source);`,
}

// SaveSQLite stores the dump in a new SQLite database at path,
// replacing any file already there. Edges keep their order so a reload
// yields the same graph.
func (d *Dump) SaveSQLite(ctx context.Context, path string) error {
	return stageError(StageExport, path, d.saveSQLite(ctx, path))
}

func (d *Dump) saveSQLite(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return withKind(ErrIOFailure, err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer db.Close()

	for _, q := range sqliteSchema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return withKind(ErrIOFailure, errors.Wrap(err, "creating schema"))
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer tx.Rollback()

	g := d.Graph
	err = insertAll(ctx, tx, "INSERT INTO vertices (idx, original_id, title, display_title) VALUES (?, ?, ?, ?)",
		g.VertexCount(), func(i int) []interface{} {
			v := g.Vertex(i)
			return []interface{}{v.Index, int64(v.OriginalID), v.Title, d.DisplayTitle(v.Title)}
		})
	if err != nil {
		return err
	}
	err = insertAll(ctx, tx, "INSERT INTO edges (seq, source, target) VALUES (?, ?, ?)",
		g.EdgeCount(), func(i int) []interface{} {
			e := g.Edge(i)
			return []interface{}{i, e.Source, e.Target}
		})
	if err != nil {
		return err
	}

	aliases := sortedKeys(d.AliasCounts)
	err = insertAll(ctx, tx, "INSERT INTO aliases (title, count) VALUES (?, ?)",
		len(aliases), func(i int) []interface{} {
			return []interface{}{aliases[i], d.AliasCounts[aliases[i]]}
		})
	if err != nil {
		return err
	}

	titles := sortedKeys(d.Titles)
	err = insertAll(ctx, tx, "INSERT INTO titles (title, original) VALUES (?, ?)",
		len(titles), func(i int) []interface{} {
			return []interface{}{titles[i], d.Titles[titles[i]]}
		})
	if err != nil {
		return err
	}

	stats := [][2]interface{}{
		{"pages", d.Stats.Pages},
		{"redirects", d.Stats.Redirects},
		{"skipped", d.Stats.Skipped},
		{"lines", d.Stats.Lines},
	}
	err = insertAll(ctx, tx, "INSERT INTO stats (name, value) VALUES (?, ?)",
		len(stats), func(i int) []interface{} { return stats[i][:] })
	if err != nil {
		return err
	}

	return withKind(ErrIOFailure, tx.Commit())
}

func insertAll(ctx context.Context, tx *sql.Tx, q string, n int, row func(int) []interface{}) error {
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return withKind(ErrIOFailure, errors.Wrapf(err, "row %d", i))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	rv := make([]string, 0, len(m))
	for k := range m {
		rv = append(rv, k)
	}
	sort.Strings(rv)
	return rv
}

// LoadSQLite reads a dump saved by SaveSQLite.
func LoadSQLite(ctx context.Context, path string) (*Dump, error) {
	d, err := loadSQLite(ctx, path)
	if err != nil {
		return nil, stageError(StageParse, path, err)
	}
	return d, nil
}

func loadSQLite(ctx context.Context, path string) (*Dump, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, withKind(ErrIOFailure, err)
	}
	defer db.Close()

	var vertices []Vertex
	err = eachRow(ctx, db, "SELECT idx, original_id, title FROM vertices ORDER BY idx", func(rows *sql.Rows) error {
		var v Vertex
		var id int64
		if err := rows.Scan(&v.Index, &id, &v.Title); err != nil {
			return err
		}
		if v.Index != len(vertices) {
			return errors.Wrapf(ErrInvariantViolation, "vertex index %d at position %d", v.Index, len(vertices))
		}
		v.OriginalID = uint64(id)
		vertices = append(vertices, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var edges []Edge
	err = eachRow(ctx, db, "SELECT source, target FROM edges ORDER BY seq", func(rows *sql.Rows) error {
		var e Edge
		if err := rows.Scan(&e.Source, &e.Target); err != nil {
			return err
		}
		if e.Source < 0 || e.Source >= len(vertices) || e.Target < 0 || e.Target >= len(vertices) {
			return errors.Wrapf(ErrInvariantViolation, "edge %d->%d out of range", e.Source, e.Target)
		}
		edges = append(edges, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	d := &Dump{
		Graph:       newGraph(vertices, edges),
		Titles:      map[string]string{},
		AliasCounts: map[string]int{},
	}
	err = eachRow(ctx, db, "SELECT title, count FROM aliases", func(rows *sql.Rows) error {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return err
		}
		d.AliasCounts[t] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = eachRow(ctx, db, "SELECT title, original FROM titles", func(rows *sql.Rows) error {
		var t, o string
		if err := rows.Scan(&t, &o); err != nil {
			return err
		}
		d.Titles[t] = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = eachRow(ctx, db, "SELECT name, value FROM stats", func(rows *sql.Rows) error {
		var name string
		var v int64
		if err := rows.Scan(&name, &v); err != nil {
			return err
		}
		switch name {
		case "pages":
			d.Stats.Pages = v
		case "redirects":
			d.Stats.Redirects = v
		case "skipped":
			d.Stats.Skipped = v
		case "lines":
			d.Stats.Lines = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func eachRow(ctx context.Context, db *sql.DB, q string, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			if errors.Is(err, ErrInvariantViolation) {
				return err
			}
			return withKind(ErrIOFailure, err)
		}
	}
	return withKind(ErrIOFailure, rows.Err())
}
