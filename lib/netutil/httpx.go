// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP response helpers shared by the
// OpenStack and Telegram clients. All body reads are bounded at
// MaxResponseSize so a misbehaving server cannot exhaust memory.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 64 MB. Real
// control-plane and Bot API responses are orders of magnitude smaller;
// the limit only exists to stop a pathological response.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll on HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a response body (bounded) and JSON-decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body for diagnostic messages.
// Read errors are ignored — a partial body is still useful in an error.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
