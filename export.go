package wikigraph

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// A VertexRecord is a vertex with the annotations every export
// carries.
type VertexRecord struct {
	Index      int    `json:"index"`
	OriginalID uint64 `json:"original_id"`
	Title      string `json:"title"`
	Display    string `json:"display_title"`
	OutDegree  int    `json:"out_degree"`
	InDegree   int    `json:"in_degree"`
	Degree     int    `json:"degree"`
	Aliases    int    `json:"aliases"`
}

// Record builds the export record for vertex i.
func (d *Dump) Record(i int) VertexRecord {
	g := d.Graph
	v := g.Vertex(i)
	return VertexRecord{
		Index:      v.Index,
		OriginalID: v.OriginalID,
		Title:      v.Title,
		Display:    d.DisplayTitle(v.Title),
		OutDegree:  g.OutDegree(i),
		InDegree:   g.InDegree(i),
		Degree:     g.OutDegree(i) + g.InDegree(i),
		Aliases:    d.AliasCounts[v.Title],
	}
}

// WriteTSV writes prefix.nodes.csv and prefix.edges.csv as tab
// separated tables. With archive set both are packed into
// prefix.graph.tgz and removed.
func (d *Dump) WriteTSV(prefix string, archive bool) error {
	nodes, edges := prefix+".nodes.csv", prefix+".edges.csv"
	err := writeFile(edges, func(w io.Writer) error {
		if _, err := fmt.Fprint(w, "source\ttarget\n"); err != nil {
			return err
		}
		for i := 0; i < d.Graph.EdgeCount(); i++ {
			e := d.Graph.Edge(i)
			if _, err := fmt.Fprintf(w, "%d\t%d\n", e.Source, e.Target); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stageError(StageExport, edges, err)
	}

	err = writeFile(nodes, func(w io.Writer) error {
		_, err := fmt.Fprint(w, "id\toriginal_id\ttitle\tnumber_of_out_edges\t"+
			"number_of_in_edges\tnumber_of_edges\tnumber_of_aliases(redirect)\n")
		if err != nil {
			return err
		}
		for i := 0; i < d.Graph.VertexCount(); i++ {
			r := d.Record(i)
			_, err := fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%d\t%d\n", r.Index, r.OriginalID,
				r.Title, r.OutDegree, r.InDegree, r.Degree, r.Aliases)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stageError(StageExport, nodes, err)
	}

	if !archive {
		return nil
	}
	tgz := prefix + ".graph.tgz"
	if err := writeFile(tgz, func(w io.Writer) error { return tarGz(w, edges, nodes) }); err != nil {
		return stageError(StageExport, tgz, err)
	}
	for _, fn := range []string{edges, nodes} {
		if err := os.Remove(fn); err != nil {
			return stageError(StageExport, fn, withKind(ErrIOFailure, err))
		}
	}
	return nil
}

func tarGz(w io.Writer, files ...string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, fn := range files {
		if err := tarFile(tw, fn); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func tarFile(tw *tar.Writer, fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(fn)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// WriteGraphML writes the graph as GraphML to path.graphml, or
// gzipped to path.graphml.gz.
func (d *Dump) WriteGraphML(path string, compress bool) error {
	fn := path + ".graphml"
	if compress {
		fn += ".gz"
	}
	err := writeFile(fn, func(w io.Writer) error {
		if !compress {
			return d.encodeGraphML(w)
		}
		gz := gzip.NewWriter(w)
		if err := d.encodeGraphML(gz); err != nil {
			return err
		}
		return gz.Close()
	})
	return stageError(StageExport, fn, err)
}

func (d *Dump) encodeGraphML(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s<graphml xmlns=\"http://graphml.graphdrawing.org/xmlns\">\n", xml.Header)
	ew.printf("  <key id=\"v_title\" for=\"node\" attr.name=\"title\" attr.type=\"string\"/>\n")
	ew.printf("  <key id=\"v_display\" for=\"node\" attr.name=\"display_title\" attr.type=\"string\"/>\n")
	ew.printf("  <key id=\"v_original_id\" for=\"node\" attr.name=\"original_id\" attr.type=\"long\"/>\n")
	ew.printf("  <key id=\"v_aliases\" for=\"node\" attr.name=\"aliases\" attr.type=\"int\"/>\n")
	ew.printf("  <graph id=\"G\" edgedefault=\"directed\">\n")
	for i := 0; i < d.Graph.VertexCount(); i++ {
		r := d.Record(i)
		ew.printf("    <node id=\"n%d\">\n", r.Index)
		ew.printf("      <data key=\"v_title\">%s</data>\n", escapeXML(r.Title))
		ew.printf("      <data key=\"v_display\">%s</data>\n", escapeXML(r.Display))
		ew.printf("      <data key=\"v_original_id\">%d</data>\n", r.OriginalID)
		ew.printf("      <data key=\"v_aliases\">%d</data>\n", r.Aliases)
		ew.printf("    </node>\n")
	}
	for i := 0; i < d.Graph.EdgeCount(); i++ {
		e := d.Graph.Edge(i)
		ew.printf("    <edge source=\"n%d\" target=\"n%d\"/>\n", e.Source, e.Target)
	}
	ew.printf("  </graph>\n</graphml>\n")
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// writeFile creates fn and hands fill a buffered writer on it.
func writeFile(fn string, fill func(io.Writer) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		return withKind(ErrIOFailure, err)
	}
	if err := bw.Flush(); err != nil {
		return withKind(ErrIOFailure, err)
	}
	return withKind(ErrIOFailure, f.Close())
}

// A VertexDocument is a vertex record plus the display titles of the
// articles it links to, the shape document stores are loaded with.
type VertexDocument struct {
	VertexRecord
	Links []string `json:"links,omitempty"`
}

// Document builds the document for vertex i. Repeated links appear
// once per occurrence.
func (d *Dump) Document(i int) VertexDocument {
	doc := VertexDocument{VertexRecord: d.Record(i)}
	for _, t := range d.Graph.OutNeighbors(i) {
		doc.Links = append(doc.Links, d.DisplayTitle(d.Graph.Vertex(t).Title))
	}
	return doc
}
