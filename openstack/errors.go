// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"errors"
	"fmt"
)

// AuthError is returned when the identity service rejects an
// authentication attempt, or when the attempt cannot reach it at all
// (Err is set in that case and StatusCode is zero).
type AuthError struct {
	// StatusCode is the HTTP status of the rejection, zero when the
	// identity service was unreachable.
	StatusCode int
	// Body is the raw response body, for diagnostics.
	Body string
	// Err is the underlying transport or decode error, if any.
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("openstack: authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("openstack: authentication failed (%d): %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from a well-formed request against a
// compute or networking endpoint. It covers 4xx validation failures
// and 5xx service faults alike; the caller decides recoverability.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Body is the raw response body, for diagnostics.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openstack: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatus checks whether err is an *APIError with the given HTTP
// status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}

// TransportError is a connection-level fault (DNS, connect, timeout)
// on a compute or networking call. The client performs no automatic
// retries — whether a transport fault is retryable is the caller's
// decision.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("openstack: request %s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport-level fault.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// CatalogError is returned when the service catalog does not advertise
// the requested service kind. This is an expected deployment
// misconfiguration, surfaced as a specific error rather than a crash.
type CatalogError struct {
	Service string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("openstack: service %q not present in catalog", e.Service)
}

// DecodeError is a 2xx response whose body did not match the expected
// shape. Kept distinct from APIError so a malformed success does not
// masquerade as a remote fault.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("openstack: decoding %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NotFoundError is a derived lookup that found nothing locally — no
// remote call failed. Examples: no interface eligible for a floating
// IP, a fixed IP address absent from a port's list.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("openstack: no %s found for %q", e.Resource, e.Key)
}

// IsNotFound reports whether err is a local not-found outcome.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
