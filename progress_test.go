package wikigraph

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogObserverThrottles(t *testing.T) {
	l, hook := test.NewNullLogger()
	o := &LogObserver{Log: l, Every: time.Hour}

	for i := int64(1); i <= 10; i++ {
		o.Observe(Event{Stage: StageParse, Done: i * 100})
	}
	assert.Empty(t, hook.AllEntries())

	o.Observe(Event{Stage: StageParse, Done: 1100, Total: 2000, Final: true})
	require.Len(t, hook.AllEntries(), 1)
	e := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, e.Level)
	assert.Equal(t, StageParse, e.Data["stage"])
	assert.Contains(t, e.Message, "1,100 of 2,000")
}

func TestLogObserverWorkersAreSeparate(t *testing.T) {
	l, hook := test.NewNullLogger()
	o := &LogObserver{Log: l}

	o.Observe(Event{Stage: StageDownload, Worker: 0, Done: 1})
	o.Observe(Event{Stage: StageDownload, Worker: 1, Done: 1})
	o.Observe(Event{Stage: StageDownload, Worker: 0, Done: 2048, Total: 4096})
	o.Observe(Event{Stage: StageDownload, Worker: 1, Done: 4096, Total: 4096})

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Data["worker"])
	assert.Equal(t, 1, entries[1].Data["worker"])
	assert.Contains(t, entries[1].Message, "4.1 kB of 4.1 kB")
}

func TestLogObserverFirstEventFinal(t *testing.T) {
	l, hook := test.NewNullLogger()
	o := &LogObserver{Log: l, Every: time.Hour}

	o.Observe(Event{Stage: StageParse, Done: 12, Final: true})
	require.Len(t, hook.AllEntries(), 1)
	assert.Contains(t, hook.LastEntry().Message, "Processed 12 total")
}

func TestLogObserverBytesWithoutTotal(t *testing.T) {
	l, hook := test.NewNullLogger()
	o := &LogObserver{Log: l}

	o.Observe(Event{Stage: StageExtract, Done: 1})
	o.Observe(Event{Stage: StageExtract, Done: 2048})
	require.Len(t, hook.AllEntries(), 1)
	msg := hook.LastEntry().Message
	assert.True(t, strings.HasPrefix(msg, "2.0 kB ("), msg)
	assert.NotContains(t, msg, " of ")
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	var last Event
	cw := &countingWriter{
		w:     &buf,
		obs:   ObserverFunc(func(e Event) { last = e }),
		stage: StageExtract,
		total: 10,
	}
	cw.Write([]byte("hello"))
	cw.Write([]byte(" world"))
	assert.Equal(t, "hello world", buf.String())
	assert.Equal(t, Event{Stage: StageExtract, Done: 11, Total: 10}, last)
}

func TestStageError(t *testing.T) {
	assert.Nil(t, stageError(StageParse, "x", nil))
	assert.Nil(t, withKind(ErrIOFailure, nil))

	err := stageError(StageExtract, "dump.xml.bz2", withKind(ErrIOFailure, errors.New("disk full")))
	assert.Equal(t, "extract dump.xml.bz2: i/o failure: disk full", err.Error())
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.NotErrorIs(t, err, ErrMalformedFragment)
}
