// Load a wikipedia link graph into CouchDB
package main

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-couch"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-wikigraph"
	"github.com/dustin/httputil"
	"github.com/sirupsen/logrus"
)

var wg sync.WaitGroup

var log = logrus.New()

type Article struct {
	ID  string `json:"_id"`
	Rev string `json:"_rev,omitempty"`
	wikigraph.VertexDocument
}

func escapeTitle(in string) string {
	return strings.Replace(strings.Replace(in, "/", "%2f", -1),
		"+", "%2b", -1)
}

// replace overwrites a document left by an earlier load.
func replace(db *couch.Database, a *Article) {
	var prev Article
	err := db.Retrieve(a.ID, &prev)
	if err != nil {
		log.Printf("  Error retrieving existing %v: %v", a.ID, err)
		return
	}
	if prev.Rev == "" {
		log.Printf("Got no rev from %v", a.ID)
		return
	}
	if prev.OriginalID != a.OriginalID || prev.OutDegree != a.OutDegree ||
		prev.InDegree != a.InDegree || prev.Aliases != a.Aliases {
		_, err = db.EditWith(a, a.ID, prev.Rev)
		if err != nil {
			log.Printf("  Error updating %v: %v", prev.ID, err)
		}
	}
}

func doVertex(db *couch.Database, dump *wikigraph.Dump, i int) {
	defer wg.Done()
	article := Article{VertexDocument: dump.Document(i)}
	article.ID = escapeTitle(article.Display)

	_, _, err := db.Insert(&article)
	switch {
	case err == nil:
		// yay
	case httputil.IsHTTPStatus(err, 409):
		replace(db, &article)
	default:
		log.Printf("Error inserting %v: %v", article.ID, err)
	}
}

func vertexHandler(db couch.Database, dump *wikigraph.Dump, ch <-chan int) {
	for i := range ch {
		doVertex(&db, dump, i)
	}
}

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: %s dburl dump.xml|graph.db", os.Args[0])
	}
	dburl, file := os.Args[1], os.Args[2]

	db, err := couch.Connect(dburl)
	if err != nil {
		log.Fatalf("Error connecting to couchdb: %v", err)
	}

	dump, err := wikigraph.OpenDump(context.Background(), file,
		wikigraph.ParseOptions{Log: log, Observer: wikigraph.NewLogObserver(log)})
	if err != nil {
		log.Fatalf("Error reading graph: %v", err)
	}

	ch := make(chan int, 1000)

	for i := 0; i < 20; i++ {
		go vertexHandler(db, dump, ch)
	}

	n := dump.Graph.VertexCount()
	start := time.Now()
	prev := start
	reportfreq := 1000
	for i := 0; i < n; i++ {
		wg.Add(1)
		ch <- i

		if (i+1)%reportfreq == 0 {
			now := time.Now()
			d := now.Sub(prev)
			log.Printf("Processed %s vertices total (%.2f/s)",
				humanize.Comma(int64(i+1)), float64(reportfreq)/d.Seconds())
			prev = now
		}
	}
	wg.Wait()
	close(ch)
	log.Printf("Loaded %s vertices in %v",
		humanize.Comma(int64(n)), time.Since(start))
}
