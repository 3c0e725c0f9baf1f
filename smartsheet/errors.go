package smartsheet

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ServiceUnavailableError is the transient classification: the service is overloaded or rate
// limiting us, and the same request is expected to succeed later.
type ServiceUnavailableError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Message    string
}

func (e *ServiceUnavailableError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("smartsheet: service is not available: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("smartsheet: service is not available: %s", e.Status)
}

// IsServiceUnavailable reports whether err, or anything it wraps, is transient.
func IsServiceUnavailable(err error) bool {
	var e *ServiceUnavailableError
	return errors.As(err, &e)
}

// HTTPError is any other non-2xx response.  These are never retried.
type HTTPError struct {
	StatusCode int
	Status     string
	Endpoint   string
	ErrorCode  int
	Message    string
}

func (e *HTTPError) Error() string {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return "smartsheet: authentication failed"
	case e.Message != "":
		return fmt.Sprintf("smartsheet: %s (error code %d): %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("smartsheet: unexpected HTTP response status: %s: %s", e.Status, e.Endpoint)
}

// RetriesExhaustedError is returned once a transient failure has outlived every retry.  It wraps
// the last ServiceUnavailableError.
type RetriesExhaustedError struct {
	Op       string
	Params   []any
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	params := make([]string, 0, len(e.Params))
	for _, p := range e.Params {
		params = append(params, fmt.Sprintf("%v", p))
	}
	return fmt.Sprintf("smartsheet: %s(%s) gave up after %d attempts: %v",
		e.Op, strings.Join(params, ", "), e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// ItemType names the kind of remote item a failure relates to.
type ItemType string

const (
	ItemUsers      ItemType = "users"
	ItemMember     ItemType = "member"
	ItemHome       ItemType = "home"
	ItemSheet      ItemType = "sheet"
	ItemAttachment ItemType = "attachment"
)

// ItemError is an item-fetch failure: a named remote item could not be retrieved.
type ItemError struct {
	Type ItemType
	Name string
	ID   int64

	// Optional parent, e.g. the sheet an attachment belongs to.
	ParentType ItemType
	ParentName string

	Err error
}

func (e *ItemError) Error() string {
	cause := "unknown error"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	if e.ParentType != "" {
		return fmt.Sprintf("Failed to get %s with name [%s] and id [%d] belonging to %s [%s] due to %s: %s",
			e.Type, e.Name, e.ID, e.ParentType, e.ParentName, errorKind(e.Err), cause)
	}
	return fmt.Sprintf("Failed to get %s with name [%s] and id [%d] due to %s: %s",
		e.Type, e.Name, e.ID, errorKind(e.Err), cause)
}

func (e *ItemError) Unwrap() error { return e.Err }

func errorKind(err error) string {
	var (
		httpErr *HTTPError
		unavail *ServiceUnavailableError
	)
	switch {
	case errors.As(err, &unavail):
		return "ServiceUnavailableError"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("HTTPError(%d)", httpErr.StatusCode)
	case err == nil:
		return "nil"
	}
	return fmt.Sprintf("%T", err)
}
