package wikigraph

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ParseStats counts what a parse saw. Pages and Redirects count only
// article-namespace pages.
type ParseStats struct {
	Pages     int64
	Redirects int64
	// Skipped counts pages dropped as malformed: article pages without
	// a usable id or title, and pages of any namespace that failed to
	// decode before their namespace could be checked.
	Skipped int64
	// Lines is the raw line count of the dump, when it was counted.
	Lines int64
}

// Articles is the number of non-redirect pages.
func (s ParseStats) Articles() int64 { return s.Pages - s.Redirects }

// A Dump is the result of parsing a wiki dump: the link graph plus the
// title annotations gathered on the way.
type Dump struct {
	Graph *Graph
	// Titles maps normalized article titles to their original case.
	Titles map[string]string
	// AliasCounts maps a normalized title to the number of redirects
	// pointing at it.
	AliasCounts map[string]int
	Stats       ParseStats
}

// DisplayTitle is the original-case form of a normalized title, or the
// title itself when it is not known.
func (d *Dump) DisplayTitle(title string) string {
	if t, ok := d.Titles[title]; ok {
		return t
	}
	return title
}

// ParseOptions tune a parse. The zero value is usable.
type ParseOptions struct {
	// CountLines scans the whole file once up front so progress events
	// can carry a total. It does not change the result.
	CountLines bool
	// ReportEvery is how many pages pass between progress events.
	ReportEvery int64
	Observer    Observer
	Log         logrus.FieldLogger
}

func (o ParseOptions) reportEvery() int64 {
	if o.ReportEvery <= 0 {
		return 1000
	}
	return o.ReportEvery
}

// ParseFile parses the uncompressed dump at path.
func ParseFile(path string, opts ParseOptions) (*Dump, error) {
	var lines int64
	if opts.CountLines {
		n, err := countLines(path)
		if err != nil {
			return nil, stageError(StageLineCount, path, err)
		}
		lines = n
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, stageError(StageParse, path, withKind(ErrIOFailure, err))
	}
	defer f.Close()

	d, err := parse(f, lines, opts)
	if err != nil {
		return nil, stageError(StageParse, path, err)
	}
	return d, nil
}

// Parse parses an uncompressed dump from r.
func Parse(r io.Reader, opts ParseOptions) (*Dump, error) {
	d, err := parse(r, 0, opts)
	return d, stageError(StageParse, "stream", err)
}

func parse(r io.Reader, lines int64, opts ParseOptions) (*Dump, error) {
	log := loggerOrDiscard(opts.Log)
	obs := observerOrNop(opts.Observer)

	p, err := NewParser(r)
	if err != nil {
		return nil, err
	}
	if p.SiteInfo.SiteName != "" {
		log.WithField("site", p.SiteInfo.SiteName).Info("got site info")
	}

	b := newGraphBuilder()
	b.stats.Lines = lines

	pages := int64(0)
	start := time.Now()
	reportfreq := opts.reportEvery()
	for {
		page, err := p.Next()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = b.add(page)
		}
		if err != nil {
			if !errors.Is(err, ErrMalformedFragment) {
				return nil, err
			}
			b.stats.Skipped++
			log.WithError(err).Debug("skipping page")
		}

		pages++
		if pages%reportfreq == 0 {
			obs.Observe(Event{Stage: StageParse, Done: int64(p.Line()), Total: lines})
		}
	}
	obs.Observe(Event{Stage: StageParse, Done: int64(p.Line()), Total: lines, Final: true})

	log.WithFields(logrus.Fields{
		"pages":     b.stats.Pages,
		"redirects": b.stats.Redirects,
		"skipped":   b.stats.Skipped,
	}).Infof("read %s pages in %v", humanize.Comma(pages), time.Since(start))

	g := b.build()
	log.WithFields(logrus.Fields{
		"vertices": g.VertexCount(),
		"edges":    g.EdgeCount(),
	}).Infof("built graph of %s articles", humanize.Comma(b.stats.Articles()))

	return &Dump{
		Graph:       g,
		Titles:      b.titles,
		AliasCounts: b.aliasCounts,
		Stats:       b.stats,
	}, nil
}

// countLines counts newlines in the file at path.
func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, withKind(ErrIOFailure, err)
	}
	defer f.Close()

	buf := make([]byte, 4<<20)
	var n int64
	for {
		c, err := f.Read(buf)
		n += int64(bytes.Count(buf[:c], []byte{'\n'}))
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, withKind(ErrIOFailure, err)
		}
	}
}
