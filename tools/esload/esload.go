// Load a wikipedia link graph into ElasticSearch
package main

import (
	"context"
	"os"
	"sync"

	"github.com/dustin/go-elasticsearch"
	"github.com/dustin/go-wikigraph"
	"github.com/sirupsen/logrus"
)

var wg = sync.WaitGroup{}

var log = logrus.New()

func vertexHandler(u string, dump *wikigraph.Dump, ch <-chan int) {
	defer wg.Done()
	counter := 0
	es := elasticsearch.ElasticSearch{URL: u}
	bulkLoader := es.Bulk()

	for i := range ch {
		counter++
		if counter > 1000 {
			bulkLoader.SendBatch()
			counter = 0
		}
		doc := dump.Document(i)
		ui := elasticsearch.UpdateInstruction{
			Id:    doc.Display,
			Index: "wikigraph",
			Type:  "vertex",
			Body: map[string]interface{}{
				"title":       doc.Display,
				"original_id": doc.OriginalID,
				"out_degree":  doc.OutDegree,
				"in_degree":   doc.InDegree,
				"aliases":     doc.Aliases,
				"links":       doc.Links,
			},
		}
		bulkLoader.Update(&ui)
	}
	bulkLoader.Quit()
}

func main() {
	if len(os.Args) < 3 {
		log.Fatalf("Usage: %s dump.xml|graph.db esurl", os.Args[0])
	}
	filename, esurl := os.Args[1], os.Args[2]

	dump, err := wikigraph.OpenDump(context.Background(), filename,
		wikigraph.ParseOptions{Log: log, Observer: wikigraph.NewLogObserver(log)})
	if err != nil {
		log.Fatalf("Error reading graph: %v", err)
	}

	ch := make(chan int, 1000)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go vertexHandler(esurl, dump, ch)
	}

	for i := 0; i < dump.Graph.VertexCount(); i++ {
		ch <- i
	}
	close(ch)
	wg.Wait()
	log.Printf("Loaded %d vertices", dump.Graph.VertexCount())
}
