package wikigraph

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRanges(t *testing.T) {
	assert.Equal(t, []byteRange{{0, 3}, {4, 7}, {8, 9}}, splitRanges(10, 3))
	assert.Equal(t, []byteRange{{0, 9}}, splitRanges(10, 1))
	assert.Equal(t, []byteRange{{0, 0}, {1, 1}}, splitRanges(2, 5))
	assert.Nil(t, splitRanges(0, 3))
	assert.Nil(t, splitRanges(10, 0))
}

func TestSplitRangesCover(t *testing.T) {
	for total := int64(1); total < 200; total += 7 {
		for n := 1; n <= 12; n++ {
			ranges := splitRanges(total, n)
			require.NotEmpty(t, ranges)
			assert.LessOrEqual(t, len(ranges), n)

			next := int64(0)
			for _, r := range ranges {
				require.Equal(t, next, r.Start, "gap or overlap at %d/%d", total, n)
				require.GreaterOrEqual(t, r.End, r.Start)
				next = r.End + 1
			}
			assert.Equal(t, total, next, "ranges of %d/%d", total, n)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in  string
		exp time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{"-3", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, parseRetryAfter(test.in, now), "Retry-After %q", test.in)
	}
}

func TestRetrier(t *testing.T) {
	r := newRetrier(4, time.Second)
	assert.Equal(t, stateAttempting, r.state)

	r.begin()
	delay, ok := r.fail(0)
	require.True(t, ok)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, "backoff", r.state.String())

	r.begin()
	delay, ok = r.fail(3 * time.Second)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	// The server's delay sticks.
	r.begin()
	delay, ok = r.fail(0)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	r.begin()
	_, ok = r.fail(0)
	assert.False(t, ok)
	assert.Equal(t, stateFailed, r.state)
	assert.Equal(t, 4, r.attempts)
}

func TestRetrierSingleAttempt(t *testing.T) {
	r := newRetrier(1, time.Second)
	r.begin()
	_, ok := r.fail(time.Second)
	assert.False(t, ok)

	r = newRetrier(2, 0)
	r.begin()
	r.succeed()
	assert.Equal(t, "succeeded", r.state.String())
}

func testDownloader() (*Downloader, *[]time.Duration) {
	var mu sync.Mutex
	var slept []time.Duration
	d := NewDownloader(nil)
	d.sleep = func(delay time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		slept = append(slept, delay)
	}
	return d, &slept
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func serveBytes(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "dump.xml.bz2", time.Time{}, bytes.NewReader(data))
	}
}

func TestFetchRoundTrip(t *testing.T) {
	for _, size := range []int{1, 10, 1000, 4097} {
		data := randomBytes(size)
		srv := httptest.NewServer(serveBytes(data))

		for _, n := range []int{1, 3, 7, 16} {
			dest := filepath.Join(t.TempDir(), "dump.xml.bz2")
			d, _ := testDownloader()
			require.NoError(t, d.Fetch(context.Background(), srv.URL, dest, n))

			got, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got), "size %d, concurrency %d", size, n)

			leftovers, err := filepath.Glob(dest + ".part*")
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		}
		srv.Close()
	}
}

func TestFetchReportsProgress(t *testing.T) {
	data := randomBytes(300)
	srv := httptest.NewServer(serveBytes(data))
	defer srv.Close()

	var mu sync.Mutex
	final := map[int]int64{}
	d, _ := testDownloader()
	d.Observer = ObserverFunc(func(e Event) {
		if e.Stage == StageDownload && e.Final {
			mu.Lock()
			final[e.Worker] = e.Done
			mu.Unlock()
		}
	})
	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, d.Fetch(context.Background(), srv.URL, dest, 3))
	assert.Equal(t, map[int]int64{0: 100, 1: 100, 2: 100}, final)
}

func TestFetchRetriesUnavailable(t *testing.T) {
	data := randomBytes(10)
	var mu sync.Mutex
	seen := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			mu.Lock()
			seen[r.Header.Get("Range")]++
			first := seen[r.Header.Get("Range")] == 1
			mu.Unlock()
			if first {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		serveBytes(data)(w, r)
	}))
	defer srv.Close()

	d, slept := testDownloader()
	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, d.Fetch(context.Background(), srv.URL, dest, 3))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, map[string]int{"bytes=0-3": 2, "bytes=4-7": 2, "bytes=8-9": 2}, seen)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *slept)
}

func TestFetchGivesUp(t *testing.T) {
	data := randomBytes(10)
	var mu sync.Mutex
	failing := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.Header.Get("Range") == "bytes=5-9" {
			mu.Lock()
			failing++
			mu.Unlock()
			http.Error(w, "broken", http.StatusInternalServerError)
			return
		}
		serveBytes(data)(w, r)
	}))
	defer srv.Close()

	d, slept := testDownloader()
	dest := filepath.Join(t.TempDir(), "out")
	err := d.Fetch(context.Background(), srv.URL, dest, 2)
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, ErrTransientTransfer)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDownload, se.Stage)

	assert.Equal(t, DefaultAttempts, failing)
	assert.Len(t, *slept, DefaultAttempts-1)

	// The part that made it stays behind; nothing was joined.
	part, err := os.ReadFile(dest + ".part0")
	require.NoError(t, err)
	assert.Equal(t, data[:5], part)
	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchSizeUnknown(t *testing.T) {
	gets := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			gets++
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, _ := testDownloader()
	err := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"), 3)
	require.ErrorIs(t, err, ErrSizeUnknown)
	assert.Zero(t, gets)
}

func TestFetchRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d, _ := testDownloader()
	err := d.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out"), 3)
	require.ErrorIs(t, err, ErrRemoteUnavailable)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageProbe, se.Stage)
}

func TestFetchUnwritableDestination(t *testing.T) {
	srv := httptest.NewServer(serveBytes(randomBytes(10)))
	defer srv.Close()

	d, slept := testDownloader()
	dest := filepath.Join(t.TempDir(), "missing", "out")
	err := d.Fetch(context.Background(), srv.URL, dest, 2)
	require.ErrorIs(t, err, ErrIOFailure)
	assert.NotErrorIs(t, err, ErrDownloadFailed)
	assert.Empty(t, *slept)
}
