// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package openstack

import (
	"context"
	"fmt"
	"net/http"
)

// Servers lists all servers in the project, with full detail.
func (c *Client) Servers(ctx context.Context) ([]Server, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceCompute, "/servers/detail", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Servers []Server `json:"servers"`
	}
	if err := decodeAPI("servers", body, &response); err != nil {
		return nil, err
	}
	return response.Servers, nil
}

// Server fetches one server by ID.
func (c *Client) Server(ctx context.Context, serverID string) (*Server, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceCompute, "/servers/"+serverID, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Server Server `json:"server"`
	}
	if err := decodeAPI("server", body, &response); err != nil {
		return nil, err
	}
	return &response.Server, nil
}

// ServerInterfaces lists the ports attached to a server.
func (c *Client) ServerInterfaces(ctx context.Context, serverID string) ([]InterfaceAttachment, error) {
	body, err := c.doAPI(ctx, http.MethodGet, ServiceCompute, "/servers/"+serverID+"/os-interface", nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		InterfaceAttachments []InterfaceAttachment `json:"interfaceAttachments"`
	}
	if err := decodeAPI("interfaceAttachments", body, &response); err != nil {
		return nil, err
	}
	return response.InterfaceAttachments, nil
}

// AttachInterface attaches a new port on the given network to the
// server. The port and its fixed IP are allocated by the control plane.
func (c *Client) AttachInterface(ctx context.Context, serverID, networkID string) (*InterfaceAttachment, error) {
	request := map[string]any{
		"interfaceAttachment": map[string]any{
			"net_id": networkID,
		},
	}
	body, err := c.doAPI(ctx, http.MethodPost, ServiceCompute, "/servers/"+serverID+"/os-interface", request)
	if err != nil {
		return nil, err
	}
	var response struct {
		InterfaceAttachment InterfaceAttachment `json:"interfaceAttachment"`
	}
	if err := decodeAPI("interfaceAttachment", body, &response); err != nil {
		return nil, err
	}
	c.logger.Info("attached interface",
		"server_id", serverID,
		"network_id", networkID,
		"port_id", response.InterfaceAttachment.PortID,
	)
	return &response.InterfaceAttachment, nil
}

// DetachInterface removes a port from the server.
func (c *Client) DetachInterface(ctx context.Context, serverID, portID string) error {
	_, err := c.doAPI(ctx, http.MethodDelete, ServiceCompute, "/servers/"+serverID+"/os-interface/"+portID, nil)
	return err
}

// AddFixedIPAction asks the compute service to add a fixed IP to the
// server from the given network, using the legacy action protocol.
// Prefer UpdatePortFixedIPs for interface-scoped changes — this action
// gives no control over which port receives the address.
func (c *Client) AddFixedIPAction(ctx context.Context, serverID, networkID string) error {
	request := map[string]any{
		"addFixedIp": map[string]any{
			"networkId": networkID,
		},
	}
	_, err := c.doAPI(ctx, http.MethodPost, ServiceCompute, "/servers/"+serverID+"/action", request)
	if err != nil {
		return fmt.Errorf("add fixed ip action: %w", err)
	}
	return nil
}

// RemoveFixedIPAction asks the compute service to remove a fixed IP
// address from the server, using the legacy action protocol.
func (c *Client) RemoveFixedIPAction(ctx context.Context, serverID, address string) error {
	request := map[string]any{
		"removeFixedIp": map[string]any{
			"address": address,
		},
	}
	_, err := c.doAPI(ctx, http.MethodPost, ServiceCompute, "/servers/"+serverID+"/action", request)
	if err != nil {
		return fmt.Errorf("remove fixed ip action: %w", err)
	}
	return nil
}
