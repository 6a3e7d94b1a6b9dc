package wikigraph

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/httputil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Download defaults. Public dump mirrors rate limit aggressively, so
// the default concurrency is deliberately low.
const (
	DefaultConcurrency    = 3
	DefaultAttempts       = 5
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// A Downloader fetches a remote file of known size as parallel
// byte-range requests, then joins the parts in order.
type Downloader struct {
	Client *http.Client
	// Attempts bounds the requests made for any one range.
	Attempts int
	// RetryDelay is used when the server does not suggest one.
	RetryDelay time.Duration
	Log        logrus.FieldLogger
	Observer   Observer

	sleep func(time.Duration)
}

// NewDownloader returns a Downloader with the default retry policy and
// an HTTP client that bounds connect and response-header time.
func NewDownloader(log logrus.FieldLogger) *Downloader {
	return &Downloader{
		Client:     NewHTTPClient(DefaultRequestTimeout),
		Attempts:   DefaultAttempts,
		RetryDelay: DefaultRetryDelay,
		Log:        loggerOrDiscard(log),
	}
}

// NewHTTPClient returns a client for dump downloads. The body of a
// range may be gigabytes, so only the dial and the wait for headers
// are bounded, not the whole exchange.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}
}

func (d *Downloader) client() *http.Client {
	if d.Client == nil {
		return http.DefaultClient
	}
	return d.Client
}

func (d *Downloader) log() logrus.FieldLogger { return loggerOrDiscard(d.Log) }

func (d *Downloader) pause(delay time.Duration) {
	if d.sleep != nil {
		d.sleep(delay)
		return
	}
	time.Sleep(delay)
}

// byteRange is an inclusive range of offsets.
type byteRange struct {
	Start, End int64
}

func (r byteRange) Len() int64 { return r.End - r.Start + 1 }

func (r byteRange) header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// splitRanges partitions [0, total) into at most n contiguous ranges of
// ceil(total/n) bytes; the last one takes what is left. Ranges that
// would start past the end are dropped.
func splitRanges(total int64, n int) []byteRange {
	if total <= 0 || n < 1 {
		return nil
	}
	chunk := (total + int64(n) - 1) / int64(n)
	rv := make([]byteRange, 0, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunk
		if start >= total {
			break
		}
		end := start + chunk - 1
		if end > total-1 {
			end = total - 1
		}
		rv = append(rv, byteRange{start, end})
	}
	return rv
}

func partPath(dest string, i int) string {
	return fmt.Sprintf("%s.part%d", dest, i)
}

// Size probes url with a HEAD request and returns its content length.
func (d *Downloader) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, withKind(ErrRemoteUnavailable, err)
	}
	res, err := d.client().Do(req)
	if err != nil {
		return 0, withKind(ErrRemoteUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return 0, withKind(ErrRemoteUnavailable, httputil.HTTPErrorf(res, "HEAD %s: %S", url))
	}
	if res.ContentLength <= 0 {
		return 0, errors.Wrapf(ErrSizeUnknown, "HEAD %s", url)
	}
	return res.ContentLength, nil
}

// Fetch downloads url into dest using concurrency parallel range
// requests. A concurrency below one means one per CPU.
//
// When any range fails permanently Fetch returns that failure once the
// other workers are done; their part files are left next to dest.
// Fetch always downloads, even when dest already exists.
func (d *Downloader) Fetch(ctx context.Context, url, dest string, concurrency int) error {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	size, err := d.Size(ctx, url)
	if err != nil {
		return stageError(StageProbe, url, err)
	}

	ranges := splitRanges(size, concurrency)
	d.log().WithFields(logrus.Fields{
		"url":   url,
		"size":  size,
		"parts": len(ranges),
	}).Info("starting download")

	var g errgroup.Group
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			return d.fetchPart(ctx, url, r, partPath(dest, i), i)
		})
	}
	if err := g.Wait(); err != nil {
		return stageError(StageDownload, url, err)
	}

	if err := d.concat(dest, len(ranges), size); err != nil {
		return stageError(StageConcatPart, dest, err)
	}
	d.log().WithField("path", dest).Info("download completed")
	return nil
}

// transientError is a failure worth retrying. retryAfter is the delay
// the server asked for, if any.
type transientError struct {
	err        error
	retryAfter time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) Is(target error) bool { return target == ErrTransientTransfer }

func (d *Downloader) fetchPart(ctx context.Context, url string, r byteRange,
	path string, worker int) error {

	rt := newRetrier(d.Attempts, d.RetryDelay)
	for {
		rt.begin()
		err := d.tryPart(ctx, url, r, path, worker)
		if err == nil {
			rt.succeed()
			return nil
		}

		var te *transientError
		if !errors.As(err, &te) {
			rt.abort()
			return err
		}
		delay, ok := rt.fail(te.retryAfter)
		if !ok {
			return withKind(ErrDownloadFailed,
				errors.Wrapf(err, "range %s after %d attempts", r.header(), rt.attempts))
		}
		d.log().WithFields(logrus.Fields{
			"worker":  worker,
			"attempt": rt.attempts,
			"delay":   delay,
		}).Warnf("range %s: %v", r.header(), err)
		d.pause(delay)
	}
}

func (d *Downloader) tryPart(ctx context.Context, url string, r byteRange,
	path string, worker int) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", r.header())

	res, err := d.client().Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusServiceUnavailable,
		res.StatusCode == http.StatusTooManyRequests:
		return &transientError{
			err:        httputil.HTTPErrorf(res, "GET %s: %S", url),
			retryAfter: parseRetryAfter(res.Header.Get("Retry-After"), time.Now()),
		}
	case res.StatusCode == http.StatusPartialContent:
	case res.StatusCode == http.StatusOK && res.ContentLength == r.Len() && r.Start == 0:
		// The server ignored Range but the range is the whole file.
	default:
		return &transientError{err: httputil.HTTPErrorf(res, "GET %s: %S - %B", url)}
	}

	f, err := os.Create(path)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer f.Close()

	cw := &countingWriter{
		w:      f,
		obs:    observerOrNop(d.Observer),
		stage:  StageDownload,
		worker: worker,
		total:  r.Len(),
	}
	n, err := io.Copy(cw, res.Body)
	if err != nil {
		return &transientError{err: errors.Wrapf(err, "reading range %s", r.header())}
	}
	if n != r.Len() {
		return &transientError{
			err: errors.Errorf("range %s: got %d bytes, want %d", r.header(), n, r.Len()),
		}
	}
	if err := f.Close(); err != nil {
		return withKind(ErrIOFailure, err)
	}
	cw.obs.Observe(Event{Stage: StageDownload, Worker: worker, Done: n, Total: n, Final: true})
	return nil
}

// concat joins the part files in index order into dest and removes
// them.
func (d *Downloader) concat(dest string, parts int, total int64) error {
	out, err := os.Create(dest)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer out.Close()

	cw := &countingWriter{w: out, obs: observerOrNop(d.Observer), stage: StageConcatPart, total: total}
	for i := 0; i < parts; i++ {
		if err := appendFile(cw, partPath(dest, i)); err != nil {
			return withKind(ErrIOFailure, err)
		}
	}
	if err := out.Close(); err != nil {
		return withKind(ErrIOFailure, err)
	}
	for i := 0; i < parts; i++ {
		if err := os.Remove(partPath(dest, i)); err != nil {
			d.log().WithError(err).Warn("removing part file")
		}
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// parseRetryAfter understands both forms of the Retry-After header.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSucceeded
	stateFailed
)

func (s retryState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// retrier tracks one range's attempts. The backoff policy decides
// when attempts are exhausted; a server-suggested delay replaces the
// current delay and sticks for later retries.
type retrier struct {
	state    retryState
	attempts int
	delay    time.Duration
	policy   backoff.BackOff
}

func newRetrier(attempts int, delay time.Duration) *retrier {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if attempts > 1 {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1))
	}
	return &retrier{state: stateAttempting, policy: policy}
}

func (r *retrier) begin() {
	r.state = stateAttempting
	r.attempts++
}

func (r *retrier) succeed() { r.state = stateSucceeded }

func (r *retrier) abort() { r.state = stateFailed }

// fail records a transient failure and returns the delay before the
// next attempt, or false when no attempts remain.
func (r *retrier) fail(suggested time.Duration) (time.Duration, bool) {
	next := r.policy.NextBackOff()
	if next == backoff.Stop {
		r.state = stateFailed
		return 0, false
	}
	switch {
	case suggested > 0:
		r.delay = suggested
	case r.delay == 0:
		r.delay = next
	}
	r.state = stateBackoff
	return r.delay, true
}
