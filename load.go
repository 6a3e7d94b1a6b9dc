package wikigraph

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/httputil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DumpsBase is where wikimedia publishes its dumps.
const DumpsBase = "https://dumps.wikimedia.org"

// DumpName is the file name of the uncompressed current-articles dump
// for a language and date ("latest" or YYYYMMDD).
func DumpName(lang, date string) string {
	return fmt.Sprintf("%swiki-%s-pages-articles.xml", lang, date)
}

// DumpURL is where the compressed dump for a language and date lives.
func DumpURL(lang, date string) string {
	return fmt.Sprintf("%s/%swiki/%s/%s.bz2", DumpsBase, lang, date, DumpName(lang, date))
}

// Exists checks that url answers a HEAD request with 200.
func (d *Downloader) Exists(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return stageError(StageProbe, url, withKind(ErrRemoteUnavailable, err))
	}
	res, err := d.client().Do(req)
	if err != nil {
		return stageError(StageProbe, url, withKind(ErrRemoteUnavailable, err))
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return stageError(StageProbe, url,
			withKind(ErrRemoteUnavailable, httputil.HTTPErrorf(res, "HEAD: %S")))
	}
	return nil
}

// Load makes sure the dump at url is downloaded into dir and
// decompressed, and returns the path of the uncompressed dump.
// Files already present and non-empty are not fetched or extracted
// again.
func (d *Downloader) Load(ctx context.Context, url, dir string, concurrency int) (string, error) {
	if err := d.Exists(ctx, url); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", stageError(StageDownload, dir, withKind(ErrIOFailure, err))
	}

	archive := filepath.Join(dir, url[strings.LastIndex(url, "/")+1:])
	log := d.log().WithFields(logrus.Fields{"url": url, "path": archive})
	if nonEmpty(archive) {
		log.Info("dump already downloaded")
	} else if err := d.Fetch(ctx, url, archive, concurrency); err != nil {
		return "", err
	}

	plain := DecompressedPath(archive)
	if plain == archive {
		return archive, nil
	}
	if nonEmpty(plain) {
		log.WithField("path", plain).Info("dump already extracted")
		return plain, nil
	}
	if err := Decompress(archive, plain, d.Observer); err != nil {
		return "", err
	}
	log.WithField("path", plain).Info("dump extracted")
	return plain, nil
}

func nonEmpty(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// OpenDump reads a graph from either a SQLite file written by
// SaveSQLite (.db, .sqlite) or an uncompressed XML dump.
func OpenDump(ctx context.Context, path string, opts ParseOptions) (*Dump, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return LoadSQLite(ctx, path)
	case ".bz2", ".gz":
		return nil, stageError(StageParse, path,
			errors.Wrap(ErrInvalidArgument, "decompress the dump first"))
	}
	return ParseFile(path, opts)
}
