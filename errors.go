package winevt

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClosed is returned by operations on a closed Query, Subscription or
// Bookmark.
var ErrClosed = errors.New("winevt: use of closed object")

// OsResourceError reports a failing OS call not covered by a more specific
// error type.
type OsResourceError struct {
	Op      string
	Code    Errno
	Message string
}

func (e *OsResourceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Message, uint32(e.Code))
	}
	return fmt.Sprintf("%s: code %d", e.Op, uint32(e.Code))
}

func (e *OsResourceError) Unwrap() error { return e.Code }

// ChannelNotFoundError reports a query or subscription against a channel or
// log file that does not exist.
type ChannelNotFoundError struct {
	Channel string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel not found: %s", e.Channel)
}

// RemoteConnectionError reports a failure to open a remote session or a
// remote subscription.
type RemoteConnectionError struct {
	Server  string
	Code    Errno
	Message string
}

func (e *RemoteConnectionError) Error() string {
	return fmt.Sprintf("remote connection to %q failed: %s (code %d)", e.Server, e.Message, uint32(e.Code))
}

func (e *RemoteConnectionError) Unwrap() error { return e.Code }

// ConfigurationError reports invalid caller configuration. It is always
// returned synchronously from the constructor or setter that received it.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %s: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("unknown %s: %s", e.Field, e.Value)
}

// RenderError reports a failed EvtRender or EvtFormatMessage call.
type RenderError struct {
	Op      string
	Code    Errno
	Message string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Message, uint32(e.Code))
}

func (e *RenderError) Unwrap() error { return e.Code }

// ErrnoOf extracts the Win32 code from err.
func ErrnoOf(err error) (Errno, bool) {
	var code Errno
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}

// IsMessageNotFound reports whether code is one of the conditions under
// which message rendering degrades to an empty string.
func IsMessageNotFound(code Errno) bool {
	switch code {
	case ErrorEvtMessageNotFound,
		ErrorEvtMessageIDNotFound,
		ErrorEvtMessageLocaleNotFound,
		ErrorResourceLangNotFound,
		ErrorMUIFileNotFound,
		ErrorEvtUnresolvedParameterInsert:
		return true
	}
	return false
}

func osError(api API, op string, err error) error {
	code, ok := ErrnoOf(err)
	if !ok {
		return errors.Wrap(err, op)
	}
	return &OsResourceError{Op: op, Code: code, Message: api.ErrorMessage(code)}
}

func renderError(api API, op string, err error) error {
	code, ok := ErrnoOf(err)
	if !ok {
		return errors.Wrap(err, op)
	}
	return &RenderError{Op: op, Code: code, Message: api.ErrorMessage(code)}
}
