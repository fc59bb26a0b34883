// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package telegram is a minimal Telegram Bot API client: long-poll
// update retrieval plus the three message operations the bot needs.
// The bot token lives in locked memory and is only rendered into the
// request URL at the HTTP boundary.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stackwarden/stackwarden/lib/netutil"
	"github.com/stackwarden/stackwarden/lib/secret"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Token is the bot token issued by BotFather.
	Token *secret.Buffer
	// BaseURL overrides the Bot API endpoint. If empty, DefaultBaseURL
	// is used. Tests point this at a local server.
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. Its timeout must exceed the long-poll timeout or
	// GetUpdates will never complete a full poll.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is a Telegram Bot API client.
type Client struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == nil {
		return nil, fmt.Errorf("telegram: Token is required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("telegram: invalid BaseURL %q: %w", baseURL, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// envelope is the uniform Bot API response shape. Result is only
// meaningful when OK is true.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// doMethod calls one Bot API method and returns the raw result.
func (c *Client) doMethod(ctx context.Context, method string, requestBody any) (json.RawMessage, error) {
	var bodyReader *bytes.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("telegram: failed to encode %s request: %w", method, err)
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	// The token is part of the URL path per the Bot API protocol. It
	// must never appear in logs or error messages.
	requestURL := c.baseURL + "/bot" + c.token.String() + "/" + method
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		// The wrapped transport error may embed the request URL, and
		// with it the token. Report only the error's terminal cause
		// text alongside the method name.
		return nil, fmt.Errorf("telegram: %s request failed: %s", method, redactToken(err.Error(), c.token))
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to read %s response: %w", method, err)
	}

	var parsed envelope
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("telegram: unexpected %d response from %s: %s",
			response.StatusCode, method, string(responseBody))
	}
	if !parsed.OK {
		botErr := &BotError{Code: parsed.ErrorCode, Description: parsed.Description}
		if parsed.Parameters != nil {
			botErr.RetryAfter = parsed.Parameters.RetryAfter
		}
		return nil, botErr
	}
	return parsed.Result, nil
}

// redactToken removes the bot token from text before it reaches logs
// or error chains.
func redactToken(text string, token *secret.Buffer) string {
	return strings.ReplaceAll(text, token.String(), "[token]")
}

// GetMe fetches the bot's own account, proving the token works.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	result, err := c.doMethod(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(result, &user); err != nil {
		return nil, fmt.Errorf("telegram: failed to parse getMe result: %w", err)
	}
	return &user, nil
}

// GetUpdates long-polls for new updates. Offset must be one past the
// highest update ID already processed; the server drops everything
// below it. The call blocks up to timeout when the queue is empty.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	request := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	result, err := c.doMethod(ctx, "getUpdates", request)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("telegram: failed to parse updates: %w", err)
	}
	return updates, nil
}

// SendMessage posts a message to a chat.
func (c *Client) SendMessage(ctx context.Context, request SendMessageRequest) (*Message, error) {
	result, err := c.doMethod(ctx, "sendMessage", request)
	if err != nil {
		return nil, err
	}
	var message Message
	if err := json.Unmarshal(result, &message); err != nil {
		return nil, fmt.Errorf("telegram: failed to parse sendMessage result: %w", err)
	}
	return &message, nil
}

// EditMessageText rewrites a previously sent message in place. Used to
// advance multi-step menus without flooding the chat.
func (c *Client) EditMessageText(ctx context.Context, request EditMessageTextRequest) (*Message, error) {
	result, err := c.doMethod(ctx, "editMessageText", request)
	if err != nil {
		return nil, err
	}
	var message Message
	if err := json.Unmarshal(result, &message); err != nil {
		return nil, fmt.Errorf("telegram: failed to parse editMessageText result: %w", err)
	}
	return &message, nil
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing its progress spinner. Text, when non-empty, is shown as a
// toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	request := map[string]any{
		"callback_query_id": callbackQueryID,
	}
	if text != "" {
		request["text"] = text
	}
	_, err := c.doMethod(ctx, "answerCallbackQuery", request)
	return err
}
