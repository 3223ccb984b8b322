// Package analysis invokes the document-understanding model and turns
// its free-form response into a schema-valid AnalysisResult.
package analysis

import (
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Kind is the closed classification of analysis failures, produced once
// here at the collaborator boundary.
type Kind string

const (
	// KindAuth is a credentials/authorization failure. Never retried.
	KindAuth Kind = "auth"
	// KindRateLimit is upstream throttling. Retried.
	KindRateLimit Kind = "rate_limit"
	// KindUnavailable is an upstream server error or timeout. Retried.
	KindUnavailable Kind = "unavailable"
	// KindMalformed means the response carried no parseable JSON.
	// Treated as an infra failure and retried.
	KindMalformed Kind = "malformed"
	// KindGeneric covers everything else.
	KindGeneric Kind = "generic"
)

// Error is a classified analysis failure. Status is the upstream HTTP
// status code, 0 when the failure carried none.
type Error struct {
	Kind   Kind
	Status int
	err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analysis %s (status %d): %v", e.Kind, e.Status, e.err)
	}
	return fmt.Sprintf("analysis %s: %v", e.Kind, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// ErrNoStructuredOutput means no JSON object could be located in the
// model response at all, even after repair.
var ErrNoStructuredOutput = &Error{Kind: KindMalformed, err: errors.New("no structured output in model response")}

// classify wraps an upstream invocation error with its Kind, derived
// from the HTTP status code exactly once.
func classify(err error) *Error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		// No status code at all: a transport-level failure.
		return &Error{Kind: KindGeneric, err: err}
	}

	switch {
	case respErr.StatusCode == 401 || respErr.StatusCode == 403:
		return &Error{Kind: KindAuth, Status: respErr.StatusCode, err: err}
	case respErr.StatusCode == 429:
		return &Error{Kind: KindRateLimit, Status: respErr.StatusCode, err: err}
	case respErr.StatusCode == 408 || respErr.StatusCode >= 500:
		return &Error{Kind: KindUnavailable, Status: respErr.StatusCode, err: err}
	default:
		return &Error{Kind: KindGeneric, Status: respErr.StatusCode, err: err}
	}
}

// Transient reports whether a failure is worth an automatic retry:
// either it carries no status code at all, or the status is in the
// rate-limit/server-error set. Malformed output counts as transient;
// regenerating the response can fix it. Authorization failures never do.
func Transient(err error) bool {
	var ae *Error
	if !errors.As(err, &ae) {
		return true
	}
	switch ae.Kind {
	case KindRateLimit, KindUnavailable, KindMalformed:
		return true
	case KindAuth:
		return false
	default:
		return ae.Status == 0
	}
}

// KindOf extracts the Kind from an error, defaulting to KindGeneric.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindGeneric
}
