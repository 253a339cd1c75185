// Package errs defines the coded error values that cross component
// boundaries. Every failure surfaced to the top-level handler is a
// *StructuredError; untyped errors are wrapped before they escape.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Code identifies a failure class. The set is flat on purpose: the
// top-level handler maps a code straight to a user message without
// inspecting the underlying cause.
type Code int

const (
	CodeInvalidURL Code = iota
	CodeLargeFile
	CodeSizeCheckFailed
	CodeDownloadFailed
	CodeDownloadCancelled
	CodePlaylistInfo
	CodeInternal
)

var codeNames = map[Code]string{
	CodeInvalidURL:        "InvalidURL",
	CodeLargeFile:         "LargeFile",
	CodeSizeCheckFailed:   "SizeCheckFailed",
	CodeDownloadFailed:    "DownloadFailed",
	CodeDownloadCancelled: "DownloadCancelled",
	CodePlaylistInfo:      "PlaylistInfoError",
	CodeInternal:          "InternalError",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// userMessages is the static code -> user-facing message table. Codes
// missing from it fall back to the generic retry-later message.
var userMessages = map[Code]string{
	CodeInvalidURL:        "This link is not supported or the content is unavailable.",
	CodeLargeFile:         "Critical error #022 - media file is too large",
	CodeSizeCheckFailed:   "The media is too large to deliver. Try a shorter or lower-quality source.",
	CodeDownloadCancelled: "Download canceled.",
	CodePlaylistInfo:      "Could not read the playlist. Please check the link and try again.",
}

const genericUserMessage = "Sorry, there was an error. Try again later \U0001f9e1"

// StructuredError is a coded failure value. It is created at the error
// site and never mutated afterwards.
type StructuredError struct {
	Code     Code
	URL      string
	Message  string // Diagnostic text, not shown to users
	Critical bool   // Escalate to the operator channel
	Logged   bool   // Record in the process log at error severity
}

func (e *StructuredError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.URL)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// UserMessage returns the static user-facing sentence for the code.
func (e *StructuredError) UserMessage() string {
	if msg, ok := userMessages[e.Code]; ok {
		return msg
	}
	return genericUserMessage
}

// New builds a non-critical, unlogged StructuredError.
func New(code Code, url, message string) *StructuredError {
	return &StructuredError{Code: code, URL: url, Message: message}
}

// NewCritical builds a StructuredError flagged for operator escalation
// and process logging.
func NewCritical(code Code, url, message string) *StructuredError {
	return &StructuredError{Code: code, URL: url, Message: message, Critical: true, Logged: true}
}

// Normalize guarantees the caller gets a *StructuredError. Typed errors
// pass through untouched; context cancellation maps to
// DownloadCancelled; anything else becomes a critical, logged
// DownloadFailed carrying the original message as diagnostic.
func Normalize(err error, url string) *StructuredError {
	if err == nil {
		return nil
	}

	var serr *StructuredError
	if errors.As(err, &serr) {
		return serr
	}

	if errors.Is(err, context.Canceled) {
		return New(CodeDownloadCancelled, url, "download cancelled by user")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A timeout is transient: the user may retry with a fresh
		// submission, so it is logged but not escalated.
		return &StructuredError{Code: CodeDownloadFailed, URL: url, Message: "download timed out: " + err.Error(), Logged: true}
	}

	return NewCritical(CodeDownloadFailed, url, err.Error())
}

// Is supports errors.Is matching on the code alone, so callers can
// compare against a template like &StructuredError{Code: CodeLargeFile}.
func (e *StructuredError) Is(target error) bool {
	var other *StructuredError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}
