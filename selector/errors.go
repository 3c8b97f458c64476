package selector

import "fmt"

// The three failure modes of a lookup are distinct types so callers can
// tell a caller bug (InvalidError) from an expected miss (NotFoundError)
// from an unexpected page failure (LookupError). Every message carries
// the selector string exactly as the caller wrote it.

// InvalidError reports a malformed, empty, or unsupported selector.
type InvalidError struct {
	Selector string
	Reason   string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("selector: %s: %q", e.Reason, e.Selector)
}

// NotFoundError reports that a well-formed selector matched zero elements.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("selector: no element matches %q", e.Selector)
}

// LookupError wraps an unexpected page failure during a lookup,
// preserving the original cause and the offending selector.
type LookupError struct {
	Selector string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("selector: lookup %q: %v", e.Selector, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
