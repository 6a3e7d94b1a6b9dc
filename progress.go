package wikigraph

import (
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// An Event is a progress notification from one of the pipeline stages.
//
// Done and Total are in the stage's natural unit: bytes for downloads
// and extraction, pages for parsing, vertices for the sanity check.
// Total is zero when unknown.
type Event struct {
	Stage  string
	Worker int
	Done   int64
	Total  int64
	Final  bool
}

// An Observer receives progress events. Observers may be called from
// several goroutines at once during a download.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func loggerOrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return discardLogger()
	}
	return l
}

// LogObserver logs progress events, at most one line per stage and
// worker every Every interval, plus every final event.
type LogObserver struct {
	Log   logrus.FieldLogger
	Every time.Duration

	mu   sync.Mutex
	last map[logKey]progressMark
}

type logKey struct {
	stage  string
	worker int
}

type progressMark struct {
	at   time.Time
	done int64
}

// NewLogObserver returns a LogObserver reporting every five seconds.
func NewLogObserver(l logrus.FieldLogger) *LogObserver {
	return &LogObserver{Log: l, Every: 5 * time.Second}
}

func (o *LogObserver) Observe(e Event) {
	now := time.Now()
	k := logKey{e.Stage, e.Worker}

	o.mu.Lock()
	if o.last == nil {
		o.last = map[logKey]progressMark{}
	}
	prev, seen := o.last[k]
	if !seen && !e.Final {
		o.last[k] = progressMark{now, e.Done}
		o.mu.Unlock()
		return
	}
	if !seen {
		prev = progressMark{at: now}
	}
	if !e.Final && now.Sub(prev.at) < o.Every {
		o.mu.Unlock()
		return
	}
	o.last[k] = progressMark{now, e.Done}
	o.mu.Unlock()

	var rate float64
	if secs := now.Sub(prev.at).Seconds(); secs > 0 {
		rate = float64(e.Done-prev.done) / secs
	}
	log := o.Log.WithFields(logrus.Fields{"stage": e.Stage, "worker": e.Worker})
	switch e.Stage {
	case StageDownload, StageExtract, StageConcatPart:
		if e.Total > 0 {
			log.Infof("%s of %s (%s/s)", humanize.Bytes(uint64(e.Done)),
				humanize.Bytes(uint64(e.Total)), humanize.Bytes(uint64(rate)))
		} else {
			log.Infof("%s (%s/s)", humanize.Bytes(uint64(e.Done)), humanize.Bytes(uint64(rate)))
		}
	default:
		if e.Total > 0 {
			log.Infof("Processed %s of %s total (%.2f/s)",
				humanize.Comma(e.Done), humanize.Comma(e.Total), rate)
		} else {
			log.Infof("Processed %s total (%.2f/s)", humanize.Comma(e.Done), rate)
		}
	}
}

// countingWriter reports bytes written to an observer.
type countingWriter struct {
	w      io.Writer
	obs    Observer
	stage  string
	worker int
	total  int64
	done   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.done += int64(n)
	c.obs.Observe(Event{Stage: c.stage, Worker: c.worker, Done: c.done, Total: c.total})
	return n, err
}
