package wikigraph

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds. Use errors.Is to test for them; most are returned
// wrapped with the URL or path they concern.
var (
	ErrRemoteUnavailable  = errors.New("remote unavailable")
	ErrSizeUnknown        = errors.New("remote size unknown")
	ErrTransientTransfer  = errors.New("transient transfer error")
	ErrDownloadFailed     = errors.New("download failed")
	ErrMalformedFragment  = errors.New("malformed dump fragment")
	ErrIOFailure          = errors.New("i/o failure")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrExternalService    = errors.New("external service error")
	ErrInvariantViolation = errors.New("invariant violation")
)

// Stage names used in StageError and progress events.
const (
	StageProbe      = "probe"
	StageDownload   = "download"
	StageExtract    = "extract"
	StageParse      = "parse"
	StageBuild      = "build"
	StageExport     = "export"
	StageSanity     = "sanity"
	StageLineCount  = "linecount"
	StageConcatPart = "concat"
)

// A StageError is a failure that aborted a whole pipeline stage.
type StageError struct {
	Stage  string
	Target string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Target, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(stage, target string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Target: target, Err: err}
}

// kindError attaches a failure kind to an underlying cause so both
// match with errors.Is.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

func withKind(kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, cause: cause}
}
