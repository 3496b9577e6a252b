// Package failure classifies provisioning and benchmark errors so callers can
// tell a network problem from a broken archive or a child that never started.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDownload       Kind = "download"
	KindArchive        Kind = "archive"
	KindIO             Kind = "io"
	KindParse          Kind = "parse"
	KindLaunch         Kind = "launch"
	KindLicenseMissing Kind = "license_missing"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrDownload       = &Error{Kind: KindDownload}
	ErrArchive        = &Error{Kind: KindArchive}
	ErrIO             = &Error{Kind: KindIO}
	ErrParse          = &Error{Kind: KindParse}
	ErrLaunch         = &Error{Kind: KindLaunch}
	ErrLicenseMissing = &Error{Kind: KindLicenseMissing}
)

// Error is a classified error. Op names the failed operation, for example
// "download server jar" or "extract runtime archive".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind) + " error"
	case e.Err == nil:
		return e.Op
	case e.Op == "":
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrDownload)
// holds for every download failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Op: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the outermost classified error in err's chain,
// or "" when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
