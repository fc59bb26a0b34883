// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stackwarden/stackwarden/lib/secret"
	"github.com/stackwarden/stackwarden/openstack"
	"github.com/stackwarden/stackwarden/topology"
)

// TestAssociateAgainstControlPlane drives the associate workflow
// through the real client and resolver against a fake control plane:
// one server with an interface on an externally reachable network, one
// unattached floating IP. The workflow must associate the address with
// that interface's port.
func TestAssociateAgainstControlPlane(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("POST /v3/auth/tokens", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("X-Subject-Token", "test-token")
		writer.WriteHeader(http.StatusCreated)
		fmt.Fprintf(writer, `{"token": {"expires_at": "2099-01-01T00:00:00Z", "catalog": [
			{"type": "compute", "endpoints": [{"interface": "public", "url": %q}]},
			{"type": "network", "endpoints": [{"interface": "public", "url": %q}]}
		]}}`, server.URL+"/compute", server.URL+"/network")
	})
	mux.HandleFunc("GET /network/v2.0/floatingips", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"floatingips": [
			{"id": "fip-1", "floating_ip_address": "203.0.113.5", "status": "DOWN", "port_id": null}
		]}`)
	})
	mux.HandleFunc("GET /compute/servers/s1/os-interface", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"interfaceAttachments": [
			{"port_id": "port-77", "net_id": "net-ext", "port_state": "ACTIVE",
			 "fixed_ips": [{"ip_address": "10.0.0.9", "subnet_id": "sub-ext"}]}
		]}`)
	})
	mux.HandleFunc("GET /network/v2.0/routers", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"routers": [
			{"id": "r1", "external_gateway_info": {"network_id": "net-ext"}}
		]}`)
	})
	mux.HandleFunc("GET /network/v2.0/subnets", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"subnets": [
			{"id": "sub-ext", "network_id": "net-ext", "cidr": "10.0.0.0/24", "gateway_ip": "10.0.0.1"}
		]}`)
	})
	var associatedPort string
	mux.HandleFunc("PUT /network/v2.0/floatingips/fip-1", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			FloatingIP struct {
				PortID string `json:"port_id"`
			} `json:"floatingip"`
		}
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding associate request: %v", err)
		}
		associatedPort = body.FloatingIP.PortID
		fmt.Fprint(writer, `{"floatingip": {"id": "fip-1", "floating_ip_address": "203.0.113.5",
			"port_id": "port-77", "fixed_ip_address": "10.0.0.9", "status": "ACTIVE"}}`)
	})

	password, err := secret.NewFromString("test-password")
	if err != nil {
		t.Fatalf("creating secret buffer: %v", err)
	}
	t.Cleanup(func() { password.Close() })

	cloud, err := openstack.NewClient(openstack.ClientConfig{
		AuthURL:         server.URL,
		Username:        "steward",
		Password:        password,
		ProjectID:       "proj-1",
		UserDomainName:  "Default",
		ProjectDomainID: "default",
		HTTPClient:      server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	resolver := topology.NewResolver(topology.ResolverConfig{Directory: cloud})
	service := NewService(ServiceConfig{API: cloud, Topology: resolver})
	ctx := context.Background()

	candidates, err := service.BeginAssociateFloatingIP(ctx, chatID, "s1")
	if err != nil {
		t.Fatalf("BeginAssociateFloatingIP failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].FloatingIPAddress != "203.0.113.5" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}

	result, err := service.ConfirmAssociateFloatingIP(ctx, chatID, 0)
	if err != nil {
		t.Fatalf("ConfirmAssociateFloatingIP failed: %v", err)
	}
	if associatedPort != "port-77" {
		t.Errorf("association reached the wrong port: %q", associatedPort)
	}
	if result.FloatingIP.FixedIPAddress != "10.0.0.9" || result.FloatingIP.Status != "ACTIVE" {
		t.Errorf("unexpected association result: %+v", result.FloatingIP)
	}
	if result.AttachedNetworkID != "" {
		t.Errorf("no interface attachment should have been needed: %s", result.AttachedNetworkID)
	}
}
