package fetcher

import (
	"errors"
	"fmt"
)

// FetchError covers network and HTTP-level failures. Retrying may succeed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError covers malformed response bodies. Retrying the same window
// will not help.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse response: %s: %v", e.Reason, e.Err)
	}
	return "parse response: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a retriable fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsParseError reports whether the error is a permanent payload failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
