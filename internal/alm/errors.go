package alm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSuchField is matched by errors.Is for lookups of absent entity fields.
	ErrNoSuchField = errors.New("no such entity field")
	// ErrPathNotFound is matched by errors.Is when a folder path does not resolve.
	ErrPathNotFound = errors.New("path not found")
	// ErrAuthenticationFailed is returned by Login when the server rejects the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// NoSuchFieldError reports a lookup of a field the entity does not carry.
type NoSuchFieldError struct {
	Type  string
	Field string
}

func (e *NoSuchFieldError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("no such entity field with name = %s", e.Field)
	}
	return fmt.Sprintf("no such %s field with name = %s", e.Type, e.Field)
}

func (e *NoSuchFieldError) Is(target error) bool { return target == ErrNoSuchField }

// PathNotFoundError reports the first segment of a folder path that did not resolve.
type PathNotFoundError struct {
	Resource string
	Path     []string
	// Depth is the 1-based index of the segment that had no match.
	Depth int
}

func (e *PathNotFoundError) Error() string {
	missing := ""
	if e.Depth > 0 && e.Depth <= len(e.Path) {
		missing = e.Path[e.Depth-1]
	}
	return fmt.Sprintf("%s %q: segment %q not found at depth %d", e.Resource, strings.Join(e.Path, "/"), missing, e.Depth)
}

func (e *PathNotFoundError) Is(target error) bool { return target == ErrPathNotFound }

// TransportError is any failed round trip that did not carry a structured server error:
// network failures, non-2xx statuses and undecodable bodies.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteServiceError is the server's structured exception payload (QCRestException)
// returned with HTTP 500.
type RemoteServiceError struct {
	ID         string
	Title      string
	StackTrace string
}

// Error renders id, title and stack trace verbatim, one per line.
func (e *RemoteServiceError) Error() string {
	return e.ID + "\n" + e.Title + "\n" + e.StackTrace
}
