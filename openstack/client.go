// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/stackwarden/stackwarden/lib/clock"
	"github.com/stackwarden/stackwarden/lib/netutil"
	"github.com/stackwarden/stackwarden/lib/secret"
)

// expirySkew is the safety margin subtracted from a token's expiry
// before it is considered stale. It covers in-flight requests crossing
// the expiry boundary.
const expirySkew = 5 * time.Minute

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// AuthURL is the Keystone base URL (e.g., "https://cloud.example.com:5000").
	AuthURL string
	// Username is the Keystone user name.
	Username string
	// Password is read on every authenticate call. The Client does
	// not close it — the caller retains ownership.
	Password *secret.Buffer
	// ProjectID scopes the token to a project.
	ProjectID string
	// UserDomainName is the domain of the user (e.g., "Default").
	UserDomainName string
	// ProjectDomainID is the domain of the project (e.g., "default").
	ProjectDomainID string
	// HTTPClient is used for all requests. If nil, a client with a
	// 30-second timeout is used — outbound calls are never unbounded.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
	// Clock drives token-expiry checks. If nil, clock.Real().
	Clock clock.Clock
}

// Client talks to an OpenStack control plane. It owns the session —
// the auth token, its expiry, and the resolved service catalog — and
// transparently re-authenticates when the token nears expiry.
//
// The session is replaced wholesale by each successful authenticate
// call, never partially mutated. The refresh path is mutually
// excluded: under concurrent use, at most one re-authentication is in
// flight and other callers wait for its outcome.
type Client struct {
	authURL         string
	username        string
	password        *secret.Buffer
	projectID       string
	userDomainName  string
	projectDomainID string

	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock

	mu        sync.Mutex
	token     *secret.Buffer
	expiresAt time.Time
	catalog   map[string]string
}

// NewClient creates an OpenStack client. No network call is made —
// authentication happens lazily on the first operation, or explicitly
// via Authenticate.
func NewClient(config ClientConfig) (*Client, error) {
	if config.AuthURL == "" {
		return nil, fmt.Errorf("openstack: AuthURL is required")
	}
	if _, err := url.Parse(config.AuthURL); err != nil {
		return nil, fmt.Errorf("openstack: invalid AuthURL %q: %w", config.AuthURL, err)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("openstack: Username is required")
	}
	if config.Password == nil {
		return nil, fmt.Errorf("openstack: Password is required")
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("openstack: ProjectID is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Client{
		authURL:         strings.TrimRight(config.AuthURL, "/"),
		username:        config.Username,
		password:        config.Password,
		projectID:       config.ProjectID,
		userDomainName:  config.UserDomainName,
		projectDomainID: config.ProjectDomainID,
		httpClient:      httpClient,
		logger:          logger,
		clock:           clk,
	}, nil
}

// Close releases the session token memory. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		err := c.token.Close()
		c.token = nil
		return err
	}
	return nil
}

// Authenticate obtains a fresh token and service catalog, replacing
// the current session. Most callers never need this — operations
// refresh lazily — but /status uses it as a connectivity probe.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

// authenticateLocked issues the Keystone password+project-scope
// assertion. Caller must hold c.mu. The network call happens under the
// lock — that is the mutual exclusion that keeps concurrent near-expiry
// callers from each re-authenticating.
func (c *Client) authenticateLocked(ctx context.Context) error {
	request := authRequest{
		Auth: authSection{
			Identity: identitySection{
				Methods: []string{"password"},
				Password: passwordSection{
					User: userSection{
						Name:     c.username,
						Domain:   domainByName{Name: c.userDomainName},
						Password: c.password.String(),
					},
				},
			},
			Scope: scopeSection{
				Project: projectSection{
					ID:     c.projectID,
					Domain: domainByID{ID: c.projectDomainID},
				},
			},
		},
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return &AuthError{Err: fmt.Errorf("encoding auth request: %w", err)}
	}

	authTokensURL := c.authURL + "/v3/auth/tokens"
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, authTokensURL, bytes.NewReader(encoded))
	if err != nil {
		return &AuthError{Err: fmt.Errorf("creating auth request: %w", err)}
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return &AuthError{Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusCreated {
		return &AuthError{
			StatusCode: response.StatusCode,
			Body:       netutil.ErrorBody(response.Body),
		}
	}

	subjectToken := response.Header.Get("X-Subject-Token")
	if subjectToken == "" {
		return &AuthError{Err: fmt.Errorf("identity response missing X-Subject-Token header")}
	}

	var body tokenResponse
	if err := netutil.DecodeResponse(response.Body, &body); err != nil {
		return &AuthError{Err: fmt.Errorf("parsing token response: %w", err)}
	}

	// Keep the first public endpoint advertised for each service type.
	catalog := make(map[string]string, len(body.Token.Catalog))
	for _, service := range body.Token.Catalog {
		if _, seen := catalog[service.Type]; seen {
			continue
		}
		for _, endpoint := range service.Endpoints {
			if endpoint.Interface == "public" {
				catalog[service.Type] = strings.TrimRight(endpoint.URL, "/")
				break
			}
		}
	}

	tokenBuffer, err := secret.NewFromString(subjectToken)
	if err != nil {
		return &AuthError{Err: fmt.Errorf("protecting token: %w", err)}
	}

	// Replace the session wholesale.
	if c.token != nil {
		c.token.Close()
	}
	c.token = tokenBuffer
	c.expiresAt = body.Token.ExpiresAt.UTC()
	c.catalog = catalog

	c.logger.Info("authenticated with openstack",
		"expires_at", c.expiresAt,
		"services", len(catalog),
	)
	return nil
}

// freshToken returns a token guaranteed to be valid for at least
// expirySkew, re-authenticating if needed. The check-then-refresh
// sequence runs under the session mutex, so concurrent callers produce
// at most one authenticate call.
func (c *Client) freshToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.clock.Now().Before(c.expiresAt.Add(-expirySkew)) {
		return c.token.String(), nil
	}
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.token.String(), nil
}

// EndpointFor returns the public base URL for a service kind from the
// cached catalog. A service the deployment never advertised is a
// *CatalogError.
func (c *Client) EndpointFor(service string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointLocked(service)
}

func (c *Client) endpointLocked(service string) (string, error) {
	base, ok := c.catalog[service]
	if !ok {
		return "", &CatalogError{Service: service}
	}
	return base, nil
}

// doAPI performs an authenticated request against a catalog service.
// path is appended to the service's public endpoint. On 2xx the body
// is returned; non-2xx is an *APIError; a connection-level fault is a
// *TransportError. No retries at this layer.
func (c *Client) doAPI(ctx context.Context, method, service, path string, requestBody any) ([]byte, error) {
	token, err := c.freshToken(ctx)
	if err != nil {
		return nil, err
	}
	base, err := c.EndpointFor(service)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("openstack: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	requestURL := base + path
	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("openstack: creating request: %w", err)
	}
	request.Header.Set("X-Auth-Token", token)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &TransportError{Method: method, URL: requestURL, Err: err}
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: requestURL, Err: err}
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &APIError{
		Method:     method,
		Path:       path,
		StatusCode: response.StatusCode,
		Body:       string(responseBody),
	}
}

// decodeAPI unwraps a 2xx response body into v, reporting a mismatch
// as a *DecodeError rather than a generic failure.
func decodeAPI(endpoint string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}
