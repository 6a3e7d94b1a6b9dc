// Print the neighborhood of an article in a wikipedia link graph.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-wikigraph"
	"github.com/sirupsen/logrus"
)

var depth int
var direction string

var log = logrus.New()

func parseDirection(s string) wikigraph.Direction {
	switch s {
	case "out":
		return wikigraph.Outgoing
	case "in":
		return wikigraph.Incoming
	case "all":
		return wikigraph.Both
	}
	log.Fatalf("Unknown direction %q, want out, in or all", s)
	return wikigraph.Both
}

func main() {
	flag.IntVar(&depth, "depth", 1, "How many hops to walk")
	flag.StringVar(&direction, "dir", "all", "Edges to follow: out, in or all")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [opts] dump.xml|graph.db title\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	dump, err := wikigraph.OpenDump(context.Background(), flag.Arg(0),
		wikigraph.ParseOptions{Log: log})
	if err != nil {
		log.Fatalf("Error reading graph: %v", err)
	}

	v, ok := dump.Graph.Lookup(flag.Arg(1))
	if !ok {
		log.Fatalf("No article titled %q", flag.Arg(1))
	}

	sub := dump.Graph.Subgraph(dump.Graph.Neighborhood(v.Index, depth, parseDirection(direction)))
	fmt.Printf("%d articles within %d hops of %q\n", sub.VertexCount(), depth, dump.DisplayTitle(v.Title))
	for i := 0; i < sub.VertexCount(); i++ {
		sv := sub.Vertex(i)
		mark := " "
		if sv.OriginalID == v.OriginalID {
			mark = "*"
		}
		fmt.Printf("%s %s\n", mark, dump.DisplayTitle(sv.Title))
		for _, t := range sub.OutNeighbors(i) {
			fmt.Printf("    -> %s\n", dump.DisplayTitle(sub.Vertex(t).Title))
		}
	}
}
