package main

import (
	"context"
	"flag"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-wikigraph"
	"github.com/sirupsen/logrus"
	"gopkg.in/mgo.v2"
)

var proc = flag.Int("proc", 8, "How many processes to run.")
var file = flag.String("file", "", "The dump xml or saved graph.")
var cpus = flag.Int("cpus", runtime.NumCPU(), "Number of CPUs to use.")
var dburl = flag.String("dburl", "localhost", "The dburl(s). I.e. localhost.")
var verbose = flag.Bool("v", false, "Verbose logging?")
var collection = flag.String("collection", "vertices", "The collection to store graph vertices in.")
var dbname = flag.String("dbname", "wp", "The database name to use.")

var wg sync.WaitGroup

var log = logrus.New()

// Titles are unique per graph, since a vertex is one article.
var titleIndex = mgo.Index{
	Key:        []string{"title"},
	Unique:     true,
	DropDups:   true,
	Background: true,
	Sparse:     true,
}

type vertex struct {
	Index      int      `bson:",omitempty"`
	OriginalID int64    `bson:",omitempty"`
	Title      string   `bson:",omitempty"`
	Display    string   `bson:",omitempty"`
	OutDegree  int      `bson:",omitempty"`
	InDegree   int      `bson:",omitempty"`
	Aliases    int      `bson:",omitempty"`
	Links      []string `bson:",omitempty"`
}

func vertexHandler(db *mgo.Database, dump *wikigraph.Dump, ch <-chan int) {
	for i := range ch {
		makeVertex(db, dump, i)
	}
}

func makeVertex(db *mgo.Database, dump *wikigraph.Dump, i int) {
	defer wg.Done()
	doc := dump.Document(i)
	v := vertex{
		Index:      doc.Index,
		OriginalID: int64(doc.OriginalID),
		Title:      doc.Title,
		Display:    doc.Display,
		OutDegree:  doc.OutDegree,
		InDegree:   doc.InDegree,
		Aliases:    doc.Aliases,
		Links:      doc.Links,
	}
	err := db.C(*collection).Insert(&v)
	if err != nil {
		if mgo.IsDup(err) {
			if *verbose {
				log.Printf("Duplicate Key Error inserting %s", v.Title)
			}
		} else {
			log.Printf("Error inserting %s: %s", v.Title, err)
		}
	}
}

func processGraph(dump *wikigraph.Dump, db *mgo.Database) {
	ch := make(chan int, 1000)
	for i := 0; i < *proc; i++ {
		go vertexHandler(db, dump, ch)
	}

	n := dump.Graph.VertexCount()
	start := time.Now()
	prev := start
	reportfreq := 10000
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

	d := time.Since(start)
	log.Printf("Loaded %s vertices in %v (%.2f v/s)",
		humanize.Comma(int64(n)), d, float64(n)/d.Seconds())
}

func main() {
	flag.Parse()
	if *file == "" {
		log.Fatal("You must supply a dump or graph file.")
	}
	runtime.GOMAXPROCS(*cpus)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	session, err := mgo.Dial(*dburl)
	if err != nil {
		log.Fatalf("Error connecting to mongo: %v", err)
	}
	defer session.Close()

	dump, err := wikigraph.OpenDump(context.Background(), *file,
		wikigraph.ParseOptions{Log: log, Observer: wikigraph.NewLogObserver(log)})
	if err != nil {
		log.Fatalf("Error reading graph: %v", err)
	}

	err = session.DB(*dbname).C(*collection).EnsureIndex(titleIndex)
	if err != nil {
		log.Fatalf("Error creating title index: %v", err)
	}
	processGraph(dump, session.DB(*dbname))
}
