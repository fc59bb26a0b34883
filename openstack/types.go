// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import "time"

// Service kinds resolved through the catalog.
const (
	ServiceCompute = "compute"
	ServiceNetwork = "network"
)

// authRequest is the Keystone v3 password+project-scope assertion.
type authRequest struct {
	Auth authSection `json:"auth"`
}

type authSection struct {
	Identity identitySection `json:"identity"`
	Scope    scopeSection    `json:"scope"`
}

type identitySection struct {
	Methods  []string        `json:"methods"`
	Password passwordSection `json:"password"`
}

type passwordSection struct {
	User userSection `json:"user"`
}

type userSection struct {
	Name     string        `json:"name"`
	Domain   domainByName  `json:"domain"`
	Password string        `json:"password"`
}

type domainByName struct {
	Name string `json:"name"`
}

type domainByID struct {
	ID string `json:"id"`
}

type scopeSection struct {
	Project projectSection `json:"project"`
}

type projectSection struct {
	ID     string     `json:"id"`
	Domain domainByID `json:"domain"`
}

// tokenResponse is the body of a successful POST /v3/auth/tokens. The
// token itself arrives in the X-Subject-Token response header.
type tokenResponse struct {
	Token tokenBody `json:"token"`
}

type tokenBody struct {
	ExpiresAt time.Time      `json:"expires_at"`
	Catalog   []catalogEntry `json:"catalog"`
}

type catalogEntry struct {
	Type      string            `json:"type"`
	Endpoints []catalogEndpoint `json:"endpoints"`
}

type catalogEndpoint struct {
	Interface string `json:"interface"`
	URL       string `json:"url"`
}

// Server is a compute instance. Timestamps stay as the wire strings —
// they are rendered, never computed with.
type Server struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Status    string               `json:"status"`
	Flavor    FlavorRef            `json:"flavor"`
	Image     ImageRef             `json:"image"`
	Created   string               `json:"created"`
	Updated   string               `json:"updated"`
	Addresses map[string][]Address `json:"addresses"`
}

// FlavorRef identifies the server's flavor.
type FlavorRef struct {
	ID string `json:"id"`
}

// ImageRef identifies the server's image. Boot-from-volume servers
// have no image; the field decodes as empty.
type ImageRef struct {
	ID string `json:"id"`
}

// Address is one entry in a server's per-network address list.
type Address struct {
	Addr string `json:"addr"`
	// Type is "fixed" or "floating".
	Type    string `json:"OS-EXT-IPS:type"`
	Version int    `json:"version"`
}

// InterfaceAttachment is a port attached to a server (an "interface").
type InterfaceAttachment struct {
	PortID    string    `json:"port_id"`
	NetID     string    `json:"net_id"`
	MACAddr   string    `json:"mac_addr"`
	PortState string    `json:"port_state"`
	FixedIPs  []FixedIP `json:"fixed_ips"`
}

// Network is a layer-2 network.
type Network struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	// External marks a network directly attached to the provider's
	// public fabric.
	External bool `json:"router:external"`
	Shared   bool `json:"shared"`
}

// Subnet is an address range under a network.
type Subnet struct {
	ID        string `json:"id"`
	NetworkID string `json:"network_id"`
	Name      string `json:"name"`
	CIDR      string `json:"cidr"`
	GatewayIP string `json:"gateway_ip"`
}

// Router connects networks; one with an external gateway grants its
// networks a path to the public fabric.
type Router struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	ExternalGatewayInfo *ExternalGatewayInfo `json:"external_gateway_info"`
}

// ExternalGatewayInfo names the external network a router uplinks to.
type ExternalGatewayInfo struct {
	NetworkID string `json:"network_id"`
}

// Port is the network-facing attachment point of a device.
type Port struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	NetworkID  string    `json:"network_id"`
	DeviceID   string    `json:"device_id"`
	MACAddress string    `json:"mac_address"`
	Status     string    `json:"status"`
	FixedIPs   []FixedIP `json:"fixed_ips"`
}

// FixedIP is one address entry on a port. When requesting a new entry,
// leave IPAddress empty and the server assigns one from the subnet.
type FixedIP struct {
	IPAddress string `json:"ip_address,omitempty"`
	SubnetID  string `json:"subnet_id,omitempty"`
}

// FloatingIP is a publicly routable address. An empty PortID means the
// address is unattached.
type FloatingIP struct {
	ID                string `json:"id"`
	FloatingIPAddress string `json:"floating_ip_address"`
	FloatingNetworkID string `json:"floating_network_id"`
	Status            string `json:"status"`
	PortID            string `json:"port_id"`
	FixedIPAddress    string `json:"fixed_ip_address"`
}

// Attached reports whether the floating IP is associated with a port.
func (f FloatingIP) Attached() bool { return f.PortID != "" }
