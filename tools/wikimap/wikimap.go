// Download, parse, export and sanity check wikipedia link graphs.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-wikigraph"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

var (
	cfg *wikigraph.Config
	log = logrus.New()
)

func setup(c *cli.Context) error {
	if c.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}
	var err error
	cfg, err = wikigraph.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("lang"); v != "" {
		cfg.Language = v
	}
	if v := c.String("date"); v != "" {
		cfg.Date = v
	}
	if v := c.String("dir"); v != "" {
		cfg.Directory = v
	}
	return cfg.Validate()
}

// dumpPath is the command's argument, or the dump the config points at.
func dumpPath(c *cli.Context) string {
	if c.Args().Len() > 0 {
		return c.Args().First()
	}
	return filepath.Join(cfg.DataDirectory(), wikigraph.DumpName(cfg.Language, cfg.Date))
}

func openDump(c *cli.Context) (*wikigraph.Dump, error) {
	return wikigraph.OpenDump(c.Context, dumpPath(c), wikigraph.ParseOptions{
		CountLines:  cfg.Parse.CountLines,
		ReportEvery: cfg.Parse.ReportEvery,
		Observer:    wikigraph.NewLogObserver(log),
		Log:         log,
	})
}

func doLoad(c *cli.Context) error {
	d := wikigraph.NewDownloader(log)
	if cfg.Download.Timeout > 0 {
		d.Client = wikigraph.NewHTTPClient(cfg.Download.Timeout)
	}
	d.Attempts = cfg.Download.Attempts
	d.RetryDelay = cfg.Download.RetryDelay
	d.Observer = wikigraph.NewLogObserver(log)

	url := wikigraph.DumpURL(cfg.Language, cfg.Date)
	path, err := d.Load(c.Context, url, cfg.DataDirectory(), cfg.Download.Concurrency)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func doParse(c *cli.Context) error {
	start := time.Now()
	dump, err := openDump(c)
	if err != nil {
		return err
	}
	st := dump.Stats
	fmt.Printf("%s pages, %s redirects, %s articles, %s skipped in %v\n",
		humanize.Comma(st.Pages), humanize.Comma(st.Redirects),
		humanize.Comma(st.Articles()), humanize.Comma(st.Skipped), time.Since(start))
	fmt.Printf("graph: %s vertices, %s edges\n",
		humanize.Comma(int64(dump.Graph.VertexCount())),
		humanize.Comma(int64(dump.Graph.EdgeCount())))

	if out := c.String("out"); out != "" {
		if err := dump.SaveSQLite(c.Context, out); err != nil {
			return err
		}
		log.WithField("path", out).Info("saved graph")
	}
	return nil
}

func doExport(c *cli.Context) error {
	dump, err := openDump(c)
	if err != nil {
		return err
	}
	out := c.String("out")
	switch c.String("format") {
	case "tsv", "csv":
		return dump.WriteTSV(out, c.Bool("compress"))
	case "graphml":
		return dump.WriteGraphML(out, c.Bool("compress"))
	case "sqlite":
		return dump.SaveSQLite(c.Context, out+".db")
	}
	return cli.Exit("unknown format "+c.String("format"), 2)
}

func doSanity(c *cli.Context) error {
	if v := c.String("mode"); v != "" {
		cfg.Sanity.Mode = v
	}
	if c.IsSet("fraction") {
		cfg.Sanity.Fraction = c.Float64("fraction")
	}
	if c.IsSet("seed") {
		cfg.Sanity.Seed = c.Int64("seed")
	}
	mode, err := wikigraph.ParseSampleMode(cfg.Sanity.Mode)
	if err != nil {
		return err
	}

	dump, err := openDump(c)
	if err != nil {
		return err
	}

	api := wikigraph.NewLinksClient(cfg.APIEndpoint())
	api.PageSize = cfg.Sanity.PageSize
	api.UserAgent = cfg.Sanity.UserAgent
	if rps := cfg.Sanity.RequestsPerSecond; rps > 0 {
		api.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	sc := &wikigraph.SanityChecker{
		API:      api,
		Seed:     cfg.Sanity.Seed,
		Log:      log,
		Observer: wikigraph.NewLogObserver(log),
	}
	rep, err := sc.Check(c.Context, dump.Graph, mode, cfg.Sanity.Fraction, dump.Titles)
	if err != nil {
		return err
	}
	fmt.Println(rep.Summary())

	out := c.String("out")
	if err := writeTo(out+".tsv", rep.WriteTSV); err != nil {
		return err
	}
	return writeTo(out+".curves.csv", rep.WriteCurves)
}

func writeTo(fn string, write func(io.Writer) error) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}

func main() {
	app := &cli.App{
		Name:  "wikimap",
		Usage: "build and check wikipedia article link graphs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "lang", Usage: "wikipedia language code"},
			&cli.StringFlag{Name: "date", Usage: "dump date (YYYYMMDD or latest)"},
			&cli.StringFlag{Name: "dir", Usage: "data directory"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "load",
				Usage:  "download and extract the dump unless already present",
				Action: doLoad,
			},
			{
				Name:      "parse",
				Usage:     "parse a dump into a link graph",
				ArgsUsage: "[dump.xml]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "save the graph to this SQLite file"},
				},
				Action: doParse,
			},
			{
				Name:      "export",
				Usage:     "write a graph as tsv, graphml or sqlite",
				ArgsUsage: "[dump.xml|graph.db]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "tsv"},
					&cli.StringFlag{Name: "out", Value: "wikimap"},
					&cli.BoolFlag{Name: "compress"},
				},
				Action: doExport,
			},
			{
				Name:      "sanity",
				Usage:     "compare sampled out-degrees against the live API",
				ArgsUsage: "[dump.xml|graph.db]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "nodes, edges or nodes_edges"},
					&cli.Float64Flag{Name: "fraction", Usage: "share of the graph to sample"},
					&cli.Int64Flag{Name: "seed"},
					&cli.StringFlag{Name: "out", Value: "sanity_check"},
				},
				Action: doSanity,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
