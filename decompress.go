package wikigraph

import (
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DecompressedPath is the path an archive at path extracts to.
func DecompressedPath(path string) string {
	for _, ext := range []string{".bz2", ".gz"} {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// Decompress extracts the bzip2 or gzip archive at src into dst,
// streaming so the dump never has to fit in memory.
func Decompress(src, dst string, obs Observer) error {
	err := decompress(src, dst, observerOrNop(obs))
	return stageError(StageExtract, src, err)
}

func decompress(src, dst string, obs Observer) error {
	in, err := os.Open(src)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer in.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(src, ".bz2"):
		r = bzip2.NewReader(in)
	case strings.HasSuffix(src, ".gz"):
		gz, err := gzip.NewReader(in)
		if err != nil {
			return withKind(ErrIOFailure, err)
		}
		defer gz.Close()
		r = gz
	default:
		return errors.Wrapf(ErrInvalidArgument, "unknown archive type %q", src)
	}

	out, err := os.Create(dst)
	if err != nil {
		return withKind(ErrIOFailure, err)
	}
	defer out.Close()

	cw := &countingWriter{w: out, obs: obs, stage: StageExtract}
	if _, err := io.Copy(cw, r); err != nil {
		return withKind(ErrIOFailure, errors.Wrapf(err, "extracting to %s", dst))
	}
	if err := out.Close(); err != nil {
		return withKind(ErrIOFailure, err)
	}
	obs.Observe(Event{Stage: StageExtract, Done: cw.done, Total: cw.done, Final: true})
	return nil
}
