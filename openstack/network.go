// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// The networking service exposes its API under a version prefix.
const networkAPIPrefix = "/v2.0"

// Networks lists all networks visible to the project.
func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/networks", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Networks []Network `json:"networks"`
	}
	if err := decodeAPI("networks", body, &response); err != nil {
		return nil, err
	}
	return response.Networks, nil
}

// CreateNetwork creates a network with admin state up.
func (c *Client) CreateNetwork(ctx context.Context, name string) (*Network, error) {
	request := map[string]any{
		"network": map[string]any{
			"name":           name,
			"admin_state_up": true,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPost, ServiceNetwork, networkAPIPrefix+"/networks", request)
	if err != nil {
		return nil, err
	}
	var response struct {
		Network Network `json:"network"`
	}
	if err := decodeAPI("network", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("created network", "network_id", response.Network.ID, "name", name)
	return &response.Network, nil
}

// Subnets lists all subnets visible to the project.
func (c *Client) Subnets(ctx context.Context) ([]Subnet, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/subnets", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Subnets []Subnet `json:"subnets"`
	}
	if err := decodeAPI("subnets", body, &response); err != nil {
		return nil, err
	}
	return response.Subnets, nil
}

// CreateSubnet creates an IPv4 subnet with DHCP enabled under a network.
func (c *Client) CreateSubnet(ctx context.Context, networkID, cidr string) (*Subnet, error) {
	request := map[string]any{
		"subnet": map[string]any{
			"network_id":  networkID,
			"cidr":        cidr,
			"ip_version":  4,
			"enable_dhcp": true,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPost, ServiceNetwork, networkAPIPrefix+"/subnets", request)
	if err != nil {
		return nil, err
	}
	var response struct {
		Subnet Subnet `json:"subnet"`
	}
	if err := decodeAPI("subnet", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("created subnet", "subnet_id", response.Subnet.ID, "cidr", cidr)
	return &response.Subnet, nil
}

// CreateNetworkWithSubnet creates a network and then a subnet under
// it. If subnet creation fails, the network still exists — it is
// returned alongside the error so the caller can report the partial
// result instead of silently losing it.
func (c *Client) CreateNetworkWithSubnet(ctx context.Context, name, cidr string) (*Network, *Subnet, error) {
	network, err := c.CreateNetwork(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	subnet, err := c.CreateSubnet(ctx, network.ID, cidr)
	if err != nil {
		return network, nil, fmt.Errorf("network %s created, but subnet failed: %w", network.ID, err)
	}
	return network, subnet, nil
}

// Routers lists all routers visible to the project.
func (c *Client) Routers(ctx context.Context) ([]Router, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/routers", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Routers []Router `json:"routers"`
	}
	if err := decodeAPI("routers", body, &response); err != nil {
		return nil, err
	}
	return response.Routers, nil
}

// FloatingIPs lists all floating IPs in the project.
func (c *Client) FloatingIPs(ctx context.Context) ([]FloatingIP, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/floatingips", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		FloatingIPs []FloatingIP `json:"floatingips"`
	}
	if err := decodeAPI("floatingips", body, &response); err != nil {
		return nil, err
	}
	return response.FloatingIPs, nil
}

// AllocateFloatingIP allocates a new floating IP from the given
// external network.
func (c *Client) AllocateFloatingIP(ctx context.Context, floatingNetworkID string) (*FloatingIP, error) {
	request := map[string]any{
		"floatingip": map[string]any{
			"floating_network_id": floatingNetworkID,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPost, ServiceNetwork, networkAPIPrefix+"/floatingips", request)
	if err != nil {
		return nil, err
	}
	var response struct {
		FloatingIP FloatingIP `json:"floatingip"`
	}
	if err := decodeAPI("floatingip", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("allocated floating ip",
		"floating_ip_id", response.FloatingIP.ID,
		"address", response.FloatingIP.FloatingIPAddress,
	)
	return &response.FloatingIP, nil
}

// AssociateFloatingIP associates a floating IP with a port.
func (c *Client) AssociateFloatingIP(ctx context.Context, floatingIPID, portID string) (*FloatingIP, error) {
	request := map[string]any{
		"floatingip": map[string]any{
			"port_id": portID,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPut, ServiceNetwork, networkAPIPrefix+"/floatingips/"+floatingIPID, request)
	if err != nil {
		return nil, err
	}
	var response struct {
		FloatingIP FloatingIP `json:"floatingip"`
	}
	if err := decodeAPI("floatingip", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("associated floating ip",
		"floating_ip_id", floatingIPID,
		"port_id", portID,
		"fixed_ip", response.FloatingIP.FixedIPAddress,
	)
	return &response.FloatingIP, nil
}

// DisassociateFloatingIP detaches a floating IP from whatever port it
// is on. The explicit JSON null clears the association.
func (c *Client) DisassociateFloatingIP(ctx context.Context, floatingIPID string) (*FloatingIP, error) {
	request := map[string]any{
		"floatingip": map[string]any{
			"port_id": nil,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPut, ServiceNetwork, networkAPIPrefix+"/floatingips/"+floatingIPID, request)
	if err != nil {
		return nil, err
	}
	var response struct {
		FloatingIP FloatingIP `json:"floatingip"`
	}
	if err := decodeAPI("floatingip", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("disassociated floating ip", "floating_ip_id", floatingIPID)
	return &response.FloatingIP, nil
}

// DeleteFloatingIP releases a floating IP back to the provider.
func (c *Client) DeleteFloatingIP(ctx context.Context, floatingIPID string) error {
	_, err := c.doAPI(ctx, http.MethodDelete, ServiceNetwork, networkAPIPrefix+"/floatingips/"+floatingIPID, nil)
	if err != nil {
		return err
	}
	c.logger.Info("deleted floating ip", "floating_ip_id", floatingIPID)
	return nil
}

// Ports lists all ports visible to the project.
func (c *Client) Ports(ctx context.Context) ([]Port, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/ports", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Ports []Port `json:"ports"`
	}
	if err := decodeAPI("ports", body, &response); err != nil {
		return nil, err
	}
	return response.Ports, nil
}

// PortsByDevice lists the ports attached to a specific device (server).
func (c *Client) PortsByDevice(ctx context.Context, deviceID string) ([]Port, error) {
	query := url.Values{"device_id": []string{deviceID}}
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/ports?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Ports []Port `json:"ports"`
	}
	if err := decodeAPI("ports", body, &response); err != nil {
		return nil, err
	}
	return response.Ports, nil
}

// Port fetches one port by ID.
func (c *Client) Port(ctx context.Context, portID string) (*Port, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceNetwork, networkAPIPrefix+"/ports/"+portID, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Port Port `json:"port"`
	}
	if err := decodeAPI("port", body, &response); err != nil {
		return nil, err
	}
	return &response.Port, nil
}

// UpdatePortFixedIPs replaces a port's fixed-IP list wholesale. The
// new list must be the full desired state — this is a read-modify-write
// protocol with no optimistic-concurrency check.
func (c *Client) UpdatePortFixedIPs(ctx context.Context, portID string, fixedIPs []FixedIP) (*Port, error) {
	request := map[string]any{
		"port": map[string]any{
			"fixed_ips": fixedIPs,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPut, ServiceNetwork, networkAPIPrefix+"/ports/"+portID, request)
	if err != nil {
		return nil, err
	}
	var response struct {
		Port Port `json:"port"`
	}
	if err := decodeAPI("port", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("updated port fixed ips", "port_id", portID, "count", len(fixedIPs))
	return &response.Port, nil
}
