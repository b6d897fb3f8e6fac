package terrain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call by the service's response.
type ErrorKind string

const (
	// KindAuthentication covers bad credentials and rejected tokens (401, 403).
	KindAuthentication ErrorKind = "authentication"

	// KindNotFound covers unknown apps, systems, versions, and analyses (404).
	KindNotFound ErrorKind = "not_found"

	// KindValidation covers malformed payloads, e.g. unknown parameter IDs
	// in a submission config (400, 422).
	KindValidation ErrorKind = "validation"

	// KindSubmission covers service-side rejection of an otherwise
	// well-formed request, such as a resource quota being exceeded. Any
	// non-2xx status without a more specific mapping lands here.
	KindSubmission ErrorKind = "submission"

	// KindTransport covers failures where no HTTP response was produced:
	// DNS, dial, timeout, context cancellation.
	KindTransport ErrorKind = "transport"
)

// APIError is the error returned for any failed Terrain call. The service's
// diagnostic body and HTTP status ride on it unmodified so callers can
// distinguish "stop and re-authenticate" from "skip this item".
type APIError struct {
	Kind       ErrorKind
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Endpoint, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: status %d: %s", e.Method, e.Endpoint, e.Kind, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status to an error kind. Statuses without a
// specific mapping classify as submission failures; the raw status stays on
// the error for callers that need finer distinctions.
func kindForStatus(status int) ErrorKind {
	switch status {
	case 401, 403:
		return KindAuthentication
	case 404:
		return KindNotFound
	case 400, 422:
		return KindValidation
	default:
		return KindSubmission
	}
}

// errKind reports the kind of err if it is an APIError.
func errKind(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return "", false
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool {
	kind, ok := errKind(err)
	return ok && kind == KindAuthentication
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	kind, ok := errKind(err)
	return ok && kind == KindNotFound
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	kind, ok := errKind(err)
	return ok && kind == KindValidation
}

// IsSubmission reports whether err is a service-side rejection.
func IsSubmission(err error) bool {
	kind, ok := errKind(err)
	return ok && kind == KindSubmission
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	kind, ok := errKind(err)
	return ok && kind == KindTransport
}

// UnknownParameterError is returned by BuildSubmission when a label matches
// no parameter in the app's groups.
type UnknownParameterError struct {
	Label string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("no parameter with label %q", e.Label)
}

// AmbiguousParameterError is returned by BuildSubmission when more than one
// parameter shares a label.
type AmbiguousParameterError struct {
	Label string
	IDs   []string
}

func (e *AmbiguousParameterError) Error() string {
	return fmt.Sprintf("label %q matches %d parameters: %v", e.Label, len(e.IDs), e.IDs)
}
