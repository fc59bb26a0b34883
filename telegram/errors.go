// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package telegram

import (
	"errors"
	"fmt"
)

// BotError represents a structured error response from the Bot API.
// Callers can use errors.As to extract the structured information:
//
//	var botErr *telegram.BotError
//	if errors.As(err, &botErr) {
//	    if botErr.Code == 429 { ... }
//	}
type BotError struct {
	// Code is the Bot API error_code (matches the HTTP status in
	// practice, but comes from the response body).
	Code int
	// Description is the human-readable error from the server.
	Description string
	// RetryAfter is the server-requested backoff in seconds, set on
	// rate-limit responses.
	RetryAfter int
}

func (e *BotError) Error() string {
	return fmt.Sprintf("telegram: %d: %s", e.Code, e.Description)
}

// IsRateLimited checks whether err is a *BotError carrying a
// rate-limit response.
func IsRateLimited(err error) bool {
	var botErr *BotError
	return errors.As(err, &botErr) && botErr.Code == 429
}
