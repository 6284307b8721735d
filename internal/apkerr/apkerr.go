// Package apkerr defines the error kinds raised by the archive engine,
// the extraction service, and the manifest orchestrator.
//
// Every kind is a coded github.com/jmgilman/go/errors PlatformError. The
// codes are not in the library's retryable table, so all of them classify
// as permanent.
package apkerr

import (
	stderrors "errors"

	"github.com/jmgilman/go/errors"
)

const (
	// CodeArchiveOpen means a container could not be created or opened.
	CodeArchiveOpen errors.ErrorCode = "ARCHIVE_OPEN_FAILED"

	// CodeMemberNotFound means a member name is not in the container listing.
	CodeMemberNotFound errors.ErrorCode = "MEMBER_NOT_FOUND"

	// CodeTruncatedRead means a member yielded fewer bytes than its declared size.
	CodeTruncatedRead errors.ErrorCode = "TRUNCATED_READ"

	// CodeMemberTooLarge means a member's declared size is above the
	// configured read limit.
	CodeMemberTooLarge errors.ErrorCode = "MEMBER_TOO_LARGE"

	// CodeInvalidDestination means an extraction destination exists and is not a directory.
	CodeInvalidDestination errors.ErrorCode = "INVALID_DESTINATION"

	// CodeMissingManifest means the package has no manifest member, or it is empty.
	CodeMissingManifest errors.ErrorCode = "MISSING_MANIFEST"

	// CodeMalformedManifest means the manifest failed to decode, lacks the
	// application declaration, or contains an invalid element.
	CodeMalformedManifest errors.ErrorCode = "MALFORMED_MANIFEST"
)

// New returns a permanent error of the given kind.
func New(code errors.ErrorCode, message string) error {
	return errors.New(code, message)
}

// Newf is New with a format string.
func Newf(code errors.ErrorCode, format string, args ...interface{}) error {
	return errors.Newf(code, format, args...)
}

// Wrap attaches a kind to an underlying cause. Returns nil if err is nil.
func Wrap(err error, code errors.ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, code, message)
}

// With adds a context field (container, member, destination...) to err.
func With(err error, key string, value interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithContext(err, key, value)
}

// Is reports whether any coded error in err's chain carries code.
func Is(err error, code errors.ErrorCode) bool {
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if pe, ok := e.(errors.PlatformError); ok && pe.Code() == code {
			return true
		}
	}
	return false
}

// Code returns the outermost error code in err's chain, or
// errors.CodeUnknown when err carries none.
func Code(err error) errors.ErrorCode {
	return errors.GetCode(err)
}
