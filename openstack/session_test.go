// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stackwarden/stackwarden/lib/clock"
	"github.com/stackwarden/stackwarden/lib/secret"
)

// testBuffer creates a secret.Buffer from a string, closed when the
// test completes.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// fakeCloud is an httptest control plane: a Keystone identity endpoint
// whose catalog points back at the same server for compute and
// networking, plus whatever resource handlers a test registers.
type fakeCloud struct {
	mux    *http.ServeMux
	server *httptest.Server

	authCalls atomic.Int64

	mu          sync.Mutex
	tokenExpiry time.Time
	lastToken   string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	cloud := &fakeCloud{mux: http.NewServeMux()}
	cloud.server = httptest.NewServer(cloud.mux)
	t.Cleanup(cloud.server.Close)
	cloud.tokenExpiry = time.Now().UTC().Add(time.Hour)

	cloud.mux.HandleFunc("POST /v3/auth/tokens", func(writer http.ResponseWriter, request *http.Request) {
		call := cloud.authCalls.Add(1)
		token := fmt.Sprintf("test-token-%d", call)

		cloud.mu.Lock()
		expiry := cloud.tokenExpiry
		cloud.lastToken = token
		cloud.mu.Unlock()

		writer.Header().Set("X-Subject-Token", token)
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(map[string]any{
			"token": map[string]any{
				"expires_at": expiry.Format(time.RFC3339),
				"catalog": []map[string]any{
					{
						"type": "compute",
						"endpoints": []map[string]any{
							{"interface": "internal", "url": "http://internal.invalid/compute"},
							{"interface": "public", "url": cloud.server.URL + "/compute"},
							{"interface": "public", "url": "http://second-public.invalid/compute"},
						},
					},
					{
						"type": "network",
						"endpoints": []map[string]any{
							{"interface": "public", "url": cloud.server.URL + "/network"},
						},
					},
					{
						"type": "placement",
						"endpoints": []map[string]any{
							{"interface": "admin", "url": "http://admin.invalid/placement"},
						},
					},
				},
			},
		})
	})
	return cloud
}

func (f *fakeCloud) setTokenExpiry(expiry time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenExpiry = expiry
}

func (f *fakeCloud) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

func (f *fakeCloud) newClient(t *testing.T, clk clock.Clock) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		AuthURL:         f.server.URL,
		Username:        "steward",
		Password:        testBuffer(t, "swordfish"),
		ProjectID:       "proj-1",
		UserDomainName:  "Default",
		ProjectDomainID: "default",
		Clock:           clk,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestAuthenticate(t *testing.T) {
	t.Run("success populates session", func(t *testing.T) {
		cloud := newFakeCloud(t)
		client := cloud.newClient(t, clock.Real())

		if err := client.Authenticate(context.Background()); err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}

		computeURL, err := client.EndpointFor(ServiceCompute)
		if err != nil {
			t.Fatalf("EndpointFor(compute) failed: %v", err)
		}
		// The first public endpoint wins, not the second.
		if computeURL != cloud.server.URL+"/compute" {
			t.Errorf("unexpected compute endpoint: %s", computeURL)
		}

		if _, err := client.EndpointFor(ServiceNetwork); err != nil {
			t.Errorf("EndpointFor(network) failed: %v", err)
		}

		// Placement advertised no public endpoint, so it is absent.
		_, err = client.EndpointFor("placement")
		var catalogErr *CatalogError
		if !errors.As(err, &catalogErr) {
			t.Errorf("expected CatalogError for placement, got: %v", err)
		}
	})

	t.Run("rejection is an AuthError with status and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(writer, `{"error": {"message": "bad credentials"}}`)
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{
			AuthURL:   server.URL,
			Username:  "steward",
			Password:  testBuffer(t, "wrong"),
			ProjectID: "proj-1",
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer client.Close()

		err = client.Authenticate(context.Background())
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError, got: %v", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("unexpected status: %d", authErr.StatusCode)
		}
		if authErr.Body == "" {
			t.Error("AuthError missing response body")
		}
	})

	t.Run("missing subject token header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusCreated)
			fmt.Fprint(writer, `{"token": {}}`)
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{
			AuthURL:   server.URL,
			Username:  "steward",
			Password:  testBuffer(t, "swordfish"),
			ProjectID: "proj-1",
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer client.Close()

		var authErr *AuthError
		if !errors.As(client.Authenticate(context.Background()), &authErr) {
			t.Fatal("expected AuthError for missing X-Subject-Token")
		}
	})

	t.Run("unreachable identity service", func(t *testing.T) {
		client, err := NewClient(ClientConfig{
			AuthURL:    "http://127.0.0.1:1",
			Username:   "steward",
			Password:   testBuffer(t, "swordfish"),
			ProjectID:  "proj-1",
			HTTPClient: &http.Client{Timeout: time.Second},
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer client.Close()

		var authErr *AuthError
		if !errors.As(client.Authenticate(context.Background()), &authErr) {
			t.Fatal("expected AuthError for unreachable identity service")
		}
	})
}

func TestTokenFreshness(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := clock.Fake(start)

	cloud := newFakeCloud(t)
	cloud.setTokenExpiry(start.Add(time.Hour))

	var sentTokens []string
	var sentMu sync.Mutex
	cloud.mux.HandleFunc("GET /compute/servers/detail", func(writer http.ResponseWriter, request *http.Request) {
		sentMu.Lock()
		sentTokens = append(sentTokens, request.Header.Get("X-Auth-Token"))
		sentMu.Unlock()
		fmt.Fprint(writer, `{"servers": []}`)
	})

	client := cloud.newClient(t, fakeClock)
	ctx := context.Background()

	// First call authenticates lazily.
	if _, err := client.Servers(ctx); err != nil {
		t.Fatalf("Servers failed: %v", err)
	}
	if got := cloud.authCalls.Load(); got != 1 {
		t.Fatalf("expected 1 authenticate call, got %d", got)
	}

	// Just inside the freshness window: 55 minutes minus a second
	// before expiry is still > 5 minutes away. No refresh.
	fakeClock.Advance(55*time.Minute - time.Second)
	cloud.setTokenExpiry(fakeClock.Now().Add(2 * time.Hour))
	if _, err := client.Servers(ctx); err != nil {
		t.Fatalf("Servers failed: %v", err)
	}
	if got := cloud.authCalls.Load(); got != 1 {
		t.Fatalf("token refreshed inside the freshness window: %d authenticate calls", got)
	}

	// Crossing the five-minute skew boundary forces a refresh.
	fakeClock.Advance(2 * time.Second)
	if _, err := client.Servers(ctx); err != nil {
		t.Fatalf("Servers failed: %v", err)
	}
	if got := cloud.authCalls.Load(); got != 2 {
		t.Fatalf("expected refresh at the skew boundary, got %d authenticate calls", got)
	}

	// Every request carried the token that was fresh at call time.
	sentMu.Lock()
	defer sentMu.Unlock()
	if len(sentTokens) != 3 {
		t.Fatalf("expected 3 resource calls, got %d", len(sentTokens))
	}
	if sentTokens[0] != "test-token-1" || sentTokens[1] != "test-token-1" || sentTokens[2] != "test-token-2" {
		t.Errorf("unexpected token sequence: %v", sentTokens)
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := clock.Fake(start)

	cloud := newFakeCloud(t)
	cloud.setTokenExpiry(start.Add(time.Hour))
	cloud.mux.HandleFunc("GET /compute/servers/detail", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"servers": []}`)
	})

	client := cloud.newClient(t, fakeClock)
	ctx := context.Background()

	if _, err := client.Servers(ctx); err != nil {
		t.Fatalf("priming call failed: %v", err)
	}

	// Expire the cached token, then hammer the client concurrently.
	fakeClock.Advance(2 * time.Hour)
	cloud.setTokenExpiry(fakeClock.Now().Add(time.Hour))

	const callers = 16
	var group sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			_, err := client.Servers(ctx)
			errs <- err
		}()
	}
	group.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Servers failed: %v", err)
		}
	}

	// One priming authenticate plus exactly one refresh.
	if got := cloud.authCalls.Load(); got != 2 {
		t.Errorf("expected exactly one refresh under concurrency, got %d total authenticate calls", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	password := testBuffer(t, "pw")

	cases := []struct {
		name   string
		config ClientConfig
	}{
		{"missing auth url", ClientConfig{Username: "u", Password: password, ProjectID: "p"}},
		{"missing username", ClientConfig{AuthURL: "http://localhost:5000", Password: password, ProjectID: "p"}},
		{"missing password", ClientConfig{AuthURL: "http://localhost:5000", Username: "u", ProjectID: "p"}},
		{"missing project", ClientConfig{AuthURL: "http://localhost:5000", Username: "u", Password: password}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewClient(testCase.config); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
