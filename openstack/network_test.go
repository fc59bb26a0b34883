// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stackwarden/stackwarden/lib/clock"
)

func TestNetworks(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("GET /network/v2.0/networks", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"networks": [
			{"id": "net-ext", "name": "ext-net", "status": "ACTIVE", "router:external": true, "shared": true},
			{"id": "net-priv", "name": "private", "status": "ACTIVE", "router:external": false}
		]}`)
	})

	client := cloud.newClient(t, clock.Real())
	networks, err := client.Networks(context.Background())
	if err != nil {
		t.Fatalf("Networks failed: %v", err)
	}
	if len(networks) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(networks))
	}
	if !networks[0].External || networks[1].External {
		t.Errorf("router:external not decoded: %+v", networks)
	}
}

func TestCreateNetworkWithSubnet(t *testing.T) {
	t.Run("both succeed", func(t *testing.T) {
		cloud := newFakeCloud(t)
		cloud.mux.HandleFunc("POST /network/v2.0/networks", func(writer http.ResponseWriter, request *http.Request) {
			var body struct {
				Network struct {
					Name         string `json:"name"`
					AdminStateUp bool   `json:"admin_state_up"`
				} `json:"network"`
			}
			if err := decodeJSONBody(request, &body); err != nil {
				t.Fatalf("decoding create network request: %v", err)
			}
			if !body.Network.AdminStateUp {
				t.Error("network created with admin state down")
			}
			fmt.Fprintf(writer, `{"network": {"id": "net-new", "name": %q, "status": "ACTIVE"}}`, body.Network.Name)
		})
		cloud.mux.HandleFunc("POST /network/v2.0/subnets", func(writer http.ResponseWriter, request *http.Request) {
			var body struct {
				Subnet struct {
					NetworkID  string `json:"network_id"`
					CIDR       string `json:"cidr"`
					IPVersion  int    `json:"ip_version"`
					EnableDHCP bool   `json:"enable_dhcp"`
				} `json:"subnet"`
			}
			if err := decodeJSONBody(request, &body); err != nil {
				t.Fatalf("decoding create subnet request: %v", err)
			}
			if body.Subnet.NetworkID != "net-new" || body.Subnet.IPVersion != 4 || !body.Subnet.EnableDHCP {
				t.Errorf("unexpected subnet request: %+v", body.Subnet)
			}
			fmt.Fprintf(writer, `{"subnet": {"id": "sub-new", "network_id": "net-new", "cidr": %q}}`, body.Subnet.CIDR)
		})

		client := cloud.newClient(t, clock.Real())
		network, subnet, err := client.CreateNetworkWithSubnet(context.Background(), "lab", "192.168.100.0/24")
		if err != nil {
			t.Fatalf("CreateNetworkWithSubnet failed: %v", err)
		}
		if network.ID != "net-new" || subnet.ID != "sub-new" {
			t.Errorf("unexpected result: network=%+v subnet=%+v", network, subnet)
		}
	})

	t.Run("subnet failure returns the created network", func(t *testing.T) {
		cloud := newFakeCloud(t)
		cloud.mux.HandleFunc("POST /network/v2.0/networks", func(writer http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(writer, `{"network": {"id": "net-new", "name": "lab", "status": "ACTIVE"}}`)
		})
		cloud.mux.HandleFunc("POST /network/v2.0/subnets", func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusConflict)
			fmt.Fprint(writer, `{"NeutronError": {"message": "cidr overlaps"}}`)
		})

		client := cloud.newClient(t, clock.Real())
		network, subnet, err := client.CreateNetworkWithSubnet(context.Background(), "lab", "192.168.100.0/24")
		if err == nil {
			t.Fatal("expected error for subnet failure")
		}
		if network == nil || network.ID != "net-new" {
			t.Errorf("partial success lost the created network: %+v", network)
		}
		if subnet != nil {
			t.Errorf("unexpected subnet on failure: %+v", subnet)
		}
		if !IsStatus(err, http.StatusConflict) {
			t.Errorf("expected wrapped 409 APIError, got: %v", err)
		}
	})
}

func TestFloatingIPs(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("GET /network/v2.0/floatingips", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, `{"floatingips": [
			{"id": "fip-1", "floating_ip_address": "203.0.113.5", "status": "DOWN", "port_id": null},
			{"id": "fip-2", "floating_ip_address": "203.0.113.6", "status": "ACTIVE",
			 "port_id": "port-9", "fixed_ip_address": "10.0.0.4"}
		]}`)
	})

	client := cloud.newClient(t, clock.Real())
	floatingIPs, err := client.FloatingIPs(context.Background())
	if err != nil {
		t.Fatalf("FloatingIPs failed: %v", err)
	}
	if len(floatingIPs) != 2 {
		t.Fatalf("expected 2 floating IPs, got %d", len(floatingIPs))
	}
	if floatingIPs[0].Attached() {
		t.Error("null port_id should decode as unattached")
	}
	if !floatingIPs[1].Attached() {
		t.Error("fip-2 should be attached")
	}
}

func TestAssociateFloatingIP(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("PUT /network/v2.0/floatingips/fip-1", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			FloatingIP map[string]any `json:"floatingip"`
		}
		if err := decodeJSONBody(request, &body); err != nil {
			t.Fatalf("decoding associate request: %v", err)
		}
		if body.FloatingIP["port_id"] != "port-77" {
			t.Errorf("unexpected port_id: %v", body.FloatingIP["port_id"])
		}
		fmt.Fprint(writer, `{"floatingip": {"id": "fip-1", "floating_ip_address": "203.0.113.5",
			"port_id": "port-77", "fixed_ip_address": "10.0.0.9", "status": "ACTIVE"}}`)
	})

	client := cloud.newClient(t, clock.Real())
	floatingIP, err := client.AssociateFloatingIP(context.Background(), "fip-1", "port-77")
	if err != nil {
		t.Fatalf("AssociateFloatingIP failed: %v", err)
	}
	if floatingIP.FixedIPAddress != "10.0.0.9" {
		t.Errorf("unexpected fixed ip: %s", floatingIP.FixedIPAddress)
	}
}

func TestDisassociateFloatingIPSendsNull(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("PUT /network/v2.0/floatingips/fip-1", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			FloatingIP map[string]json.RawMessage `json:"floatingip"`
		}
		if err := decodeJSONBody(request, &body); err != nil {
			t.Fatalf("decoding disassociate request: %v", err)
		}
		raw, present := body.FloatingIP["port_id"]
		if !present {
			t.Fatal("disassociate must send port_id explicitly")
		}
		if string(raw) != "null" {
			t.Errorf("port_id must be JSON null, got: %s", raw)
		}
		fmt.Fprint(writer, `{"floatingip": {"id": "fip-1", "floating_ip_address": "203.0.113.5", "status": "DOWN"}}`)
	})

	client := cloud.newClient(t, clock.Real())
	if _, err := client.DisassociateFloatingIP(context.Background(), "fip-1"); err != nil {
		t.Fatalf("DisassociateFloatingIP failed: %v", err)
	}
}

func TestDeleteFloatingIP(t *testing.T) {
	cloud := newFakeCloud(t)
	deleted := false
	cloud.mux.HandleFunc("DELETE /network/v2.0/floatingips/fip-1", func(writer http.ResponseWriter, _ *http.Request) {
		deleted = true
		writer.WriteHeader(http.StatusNoContent)
	})

	client := cloud.newClient(t, clock.Real())
	if err := client.DeleteFloatingIP(context.Background(), "fip-1"); err != nil {
		t.Fatalf("DeleteFloatingIP failed: %v", err)
	}
	if !deleted {
		t.Error("delete request never reached the server")
	}
}

func TestPortsByDevice(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("GET /network/v2.0/ports", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.URL.Query().Get("device_id"); got != "s1" {
			t.Errorf("unexpected device_id filter: %q", got)
		}
		fmt.Fprint(writer, `{"ports": [{"id": "port-77", "network_id": "net-ext", "device_id": "s1",
			"fixed_ips": [{"ip_address": "10.0.0.9", "subnet_id": "sub-1"}]}]}`)
	})

	client := cloud.newClient(t, clock.Real())
	ports, err := client.PortsByDevice(context.Background(), "s1")
	if err != nil {
		t.Fatalf("PortsByDevice failed: %v", err)
	}
	if len(ports) != 1 || ports[0].ID != "port-77" {
		t.Errorf("unexpected ports: %+v", ports)
	}
}

func TestUpdatePortFixedIPs(t *testing.T) {
	cloud := newFakeCloud(t)
	cloud.mux.HandleFunc("PUT /network/v2.0/ports/port-77", func(writer http.ResponseWriter, request *http.Request) {
		var body struct {
			Port struct {
				FixedIPs []FixedIP `json:"fixed_ips"`
			} `json:"port"`
		}
		if err := decodeJSONBody(request, &body); err != nil {
			t.Fatalf("decoding port update: %v", err)
		}
		if len(body.Port.FixedIPs) != 2 {
			t.Errorf("expected full replacement list of 2, got %d", len(body.Port.FixedIPs))
		}
		response := map[string]any{"port": map[string]any{
			"id": "port-77", "network_id": "net-ext", "fixed_ips": body.Port.FixedIPs,
		}}
		json.NewEncoder(writer).Encode(response)
	})

	client := cloud.newClient(t, clock.Real())
	updated, err := client.UpdatePortFixedIPs(context.Background(), "port-77", []FixedIP{
		{IPAddress: "10.0.0.9", SubnetID: "sub-1"},
		{SubnetID: "sub-2"},
	})
	if err != nil {
		t.Fatalf("UpdatePortFixedIPs failed: %v", err)
	}
	if len(updated.FixedIPs) != 2 {
		t.Errorf("unexpected updated port: %+v", updated)
	}
}
