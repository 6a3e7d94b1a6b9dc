// Load a wikipedia link graph into CouchBase
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/couchbase/go-couchbase"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-wikigraph"
	"github.com/sirupsen/logrus"
)

var numWorkers = flag.Int("numWorkers", 8, "Number of vertex workers")

var wg sync.WaitGroup

var log = logrus.New()

func init() {
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr,
		"Usage:\n  %s [opts] dump.xml|graph.db\n",
		os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func doVertex(db *couchbase.Bucket, dump *wikigraph.Dump, i int) {
	doc := dump.Document(i)
	err := db.Set(doc.Display, 0, doc)
	if err != nil {
		log.Printf("Error setting %v: %v", doc.Display, err)
	}
}

func vertexHandler(db *couchbase.Bucket, dump *wikigraph.Dump, ch <-chan int) {
	defer wg.Done()
	for i := range ch {
		doVertex(db, dump, i)
	}
}

func main() {
	couchbaseServer := flag.String("couchbase", "http://localhost:8091/",
		"Couchbase URL")
	couchbaseBucket := flag.String("bucket", "default", "Couchbase bucket")
	procs := flag.Int("cpus", runtime.NumCPU(), "Number of CPUS to use")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}

	runtime.GOMAXPROCS(*procs)

	db, err := couchbase.GetBucket(*couchbaseServer,
		"default", *couchbaseBucket)
	if err != nil {
		log.Fatalf("Error connecting to couchbase: %v", err)
	}
	defer db.Close()

	dump, err := wikigraph.OpenDump(context.Background(), flag.Arg(0),
		wikigraph.ParseOptions{Log: log, Observer: wikigraph.NewLogObserver(log)})
	if err != nil {
		log.Fatalf("Error reading graph: %v", err)
	}

	ch := make(chan int, 1000)

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go vertexHandler(db, dump, ch)
	}

	n := dump.Graph.VertexCount()
	start := time.Now()
	prev := start
	reportfreq := 1000
	for i := 0; i < n; i++ {
		ch <- i

		if (i+1)%reportfreq == 0 {
			now := time.Now()
			d := now.Sub(prev)
			log.Printf("Processed %s vertices total (%.2f/s)",
				humanize.Comma(int64(i+1)), float64(reportfreq)/d.Seconds())
			prev = now
		}
	}
	close(ch)
	wg.Wait()
	log.Printf("Loaded %s vertices in %v",
		humanize.Comma(int64(n)), time.Since(start))
}
