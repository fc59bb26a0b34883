// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology derives read-only facts that no single control-plane
// listing answers: which networks are externally reachable, which
// server interface can host a floating IP, which subnets may receive a
// new fixed IP. It issues no mutations.
//
// External reachability is an approximation: a network counts as
// reachable when any router has an external gateway and the network
// owns a subnet with a gateway IP. Actual router-interface bindings
// are not verified, so the heuristic can both under- and
// over-approximate. This is a long-standing, deliberate trade-off —
// verifying bindings would cost one more listing per router and the
// deployments this tool targets keep the two in sync.
package topology

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/stackwarden/stackwarden/openstack"
)

// Directory is the slice of the resource client the resolver reads.
// *openstack.Client satisfies it; tests substitute fakes.
type Directory interface {
	Networks(ctx context.Context) ([]openstack.Network, error)
	Subnets(ctx context.Context) ([]openstack.Subnet, error)
	Routers(ctx context.Context) ([]openstack.Router, error)
	ServerInterfaces(ctx context.Context, serverID string) ([]openstack.InterfaceAttachment, error)
}

var _ Directory = (*openstack.Client)(nil)

// Resolver answers derived topology queries.
type Resolver struct {
	directory Directory
	// preferred is a case-insensitive substring used to break ties
	// among public networks. Empty means "first listed wins".
	preferred string
	logger    *slog.Logger
}

// ResolverConfig holds configuration for creating a Resolver.
type ResolverConfig struct {
	Directory        Directory
	PreferredNetwork string
	Logger           *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(config ResolverConfig) *Resolver {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		directory: config.Directory,
		preferred: config.PreferredNetwork,
		logger:    logger,
	}
}

// PublicNetworks returns every network flagged router:external, plus
// any whose name contains "public" — a fallback for deployments that
// forget to flag their external networks.
func (r *Resolver) PublicNetworks(ctx context.Context) ([]openstack.Network, error) {
	networks, err := r.directory.Networks(ctx)
	if err != nil {
		return nil, err
	}
	var public []openstack.Network
	for _, network := range networks {
		if isPublic(network) {
			public = append(public, network)
		}
	}
	return public, nil
}

func isPublic(network openstack.Network) bool {
	return network.External || strings.Contains(strings.ToLower(network.Name), "public")
}

// PreferredPublicNetworkID picks the public network to allocate
// floating IPs from: the first whose name contains the configured
// preferred substring, else the first public network listed. A tenant
// with no public network at all is a NotFoundError.
func (r *Resolver) PreferredPublicNetworkID(ctx context.Context) (string, error) {
	public, err := r.PublicNetworks(ctx)
	if err != nil {
		return "", err
	}
	if len(public) == 0 {
		return "", &openstack.NotFoundError{Resource: "public network", Key: "tenant"}
	}
	if r.preferred != "" {
		want := strings.ToLower(r.preferred)
		for _, network := range public {
			if strings.Contains(strings.ToLower(network.Name), want) {
				return network.ID, nil
			}
		}
	}
	return public[0].ID, nil
}

// ExternallyReachableNetworkIDs returns the networks considered to
// have a path to the public fabric: when at least one router carries
// an external gateway, every network owning a subnet with a gateway IP
// counts as reachable (see the package comment for why this is an
// approximation). A failure to list routers or subnets degrades to "no
// reachability" rather than failing the caller.
func (r *Resolver) ExternallyReachableNetworkIDs(ctx context.Context) map[string]struct{} {
	reachable := make(map[string]struct{})

	routers, err := r.directory.Routers(ctx)
	if err != nil {
		r.logger.Warn("listing routers failed, assuming no external reachability", "error", err)
		return reachable
	}
	gatewayed := false
	for _, router := range routers {
		if router.ExternalGatewayInfo != nil && router.ExternalGatewayInfo.NetworkID != "" {
			gatewayed = true
			break
		}
	}
	if !gatewayed {
		return reachable
	}

	subnets, err := r.directory.Subnets(ctx)
	if err != nil {
		r.logger.Warn("listing subnets failed, assuming no external reachability", "error", err)
		return reachable
	}
	for _, subnet := range subnets {
		if subnet.GatewayIP != "" {
			reachable[subnet.NetworkID] = struct{}{}
		}
	}
	return reachable
}

// EligibleInterfaceForFloatingIP picks the server interface a floating
// IP should attach to: an interface with an IPv4 fixed address on an
// externally reachable network, or failing that any interface with an
// IPv4 fixed address. A server with no IPv4-bearing interface at all
// is a NotFoundError.
func (r *Resolver) EligibleInterfaceForFloatingIP(ctx context.Context, serverID string) (*openstack.InterfaceAttachment, error) {
	interfaces, err := r.directory.ServerInterfaces(ctx, serverID)
	if err != nil {
		return nil, err
	}

	reachable := r.ExternallyReachableNetworkIDs(ctx)

	var fallback *openstack.InterfaceAttachment
	for i := range interfaces {
		attachment := &interfaces[i]
		if !hasIPv4(attachment.FixedIPs) {
			continue
		}
		if _, ok := reachable[attachment.NetID]; ok {
			return attachment, nil
		}
		if fallback == nil {
			fallback = attachment
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, &openstack.NotFoundError{Resource: "eligible interface", Key: serverID}
}

func hasIPv4(fixedIPs []openstack.FixedIP) bool {
	for _, fixedIP := range fixedIPs {
		parsed := net.ParseIP(fixedIP.IPAddress)
		if parsed != nil && parsed.To4() != nil {
			return true
		}
	}
	return false
}

// SubnetChoice pairs a subnet with its owning network for rendering.
type SubnetChoice struct {
	Subnet  openstack.Subnet
	Network openstack.Network
}

// SubnetsAvailableForFixedIP returns the subnets a new fixed IP may be
// drawn from: every subnet of every non-public network. Fixed IPs are
// never added from an external or public network.
func (r *Resolver) SubnetsAvailableForFixedIP(ctx context.Context) ([]SubnetChoice, error) {
	networks, err := r.directory.Networks(ctx)
	if err != nil {
		return nil, err
	}
	subnets, err := r.directory.Subnets(ctx)
	if err != nil {
		return nil, err
	}

	networksByID := make(map[string]openstack.Network, len(networks))
	for _, network := range networks {
		if !isPublic(network) {
			networksByID[network.ID] = network
		}
	}

	var choices []SubnetChoice
	for _, subnet := range subnets {
		network, ok := networksByID[subnet.NetworkID]
		if !ok {
			continue
		}
		choices = append(choices, SubnetChoice{Subnet: subnet, Network: network})
	}
	return choices, nil
}
