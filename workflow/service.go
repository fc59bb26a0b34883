// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow turns user intents into control-plane operations.
// Multi-step intents (associate a floating IP, add or remove a fixed
// IP) run as small state machines: a Begin call lists candidates and
// records them in the caller's conversation, Select calls narrow the
// choice by index, and a Confirm call performs the mutation and resets
// the conversation. Cancel resets at any point and is idempotent.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stackwarden/stackwarden/openstack"
	"github.com/stackwarden/stackwarden/topology"
)

// Defaults for the private-network workflow when the user gives no
// name or range.
const (
	DefaultNetworkName = "stackwarden-net"
	DefaultSubnetCIDR  = "192.168.100.0/24"
)

// ErrNoPendingSelection is returned by Select and Confirm calls that
// arrive without the matching Begin, or after a Cancel.
var ErrNoPendingSelection = errors.New("workflow: no pending selection")

// API is the mutating control-plane surface the orchestrator drives.
// *openstack.Client satisfies it; tests substitute fakes.
type API interface {
	Authenticate(ctx context.Context) error
	Servers(ctx context.Context) ([]openstack.Server, error)
	Server(ctx context.Context, serverID string) (*openstack.Server, error)
	ServerInterfaces(ctx context.Context, serverID string) ([]openstack.InterfaceAttachment, error)
	AttachInterface(ctx context.Context, serverID, networkID string) (*openstack.InterfaceAttachment, error)
	Networks(ctx context.Context) ([]openstack.Network, error)
	CreateNetworkWithSubnet(ctx context.Context, name, cidr string) (*openstack.Network, *openstack.Subnet, error)
	FloatingIPs(ctx context.Context) ([]openstack.FloatingIP, error)
	AllocateFloatingIP(ctx context.Context, floatingNetworkID string) (*openstack.FloatingIP, error)
	AssociateFloatingIP(ctx context.Context, floatingIPID, portID string) (*openstack.FloatingIP, error)
	DisassociateFloatingIP(ctx context.Context, floatingIPID string) (*openstack.FloatingIP, error)
	DeleteFloatingIP(ctx context.Context, floatingIPID string) error
	Port(ctx context.Context, portID string) (*openstack.Port, error)
	UpdatePortFixedIPs(ctx context.Context, portID string, fixedIPs []openstack.FixedIP) (*openstack.Port, error)
}

var _ API = (*openstack.Client)(nil)

// Topology is the derived-fact surface the orchestrator consults.
// *topology.Resolver satisfies it.
type Topology interface {
	PreferredPublicNetworkID(ctx context.Context) (string, error)
	ExternallyReachableNetworkIDs(ctx context.Context) map[string]struct{}
	EligibleInterfaceForFloatingIP(ctx context.Context, serverID string) (*openstack.InterfaceAttachment, error)
	SubnetsAvailableForFixedIP(ctx context.Context) ([]topology.SubnetChoice, error)
}

var _ Topology = (*topology.Resolver)(nil)

// Service orchestrates workflows across conversations. Safe for
// concurrent use; each conversation is keyed by the caller's chat ID.
type Service struct {
	api      API
	topology Topology
	logger   *slog.Logger

	mu            sync.Mutex
	conversations map[int64]*conversation
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	API      API
	Topology Topology
	Logger   *slog.Logger
}

// NewService creates a Service.
func NewService(config ServiceConfig) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:           config.API,
		topology:      config.Topology,
		logger:        logger,
		conversations: make(map[int64]*conversation),
	}
}

func (s *Service) conversationFor(chatID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.conversations[chatID]
	if !ok {
		state = &conversation{}
		s.conversations[chatID] = state
	}
	return state
}

// AuthenticateNow forces a fresh session, reporting whether the
// credentials still work.
func (s *Service) AuthenticateNow(ctx context.Context) error {
	return s.api.Authenticate(ctx)
}

// ListServers lists the project's servers and remembers the listing so
// later index-based selections resolve against what the user saw.
func (s *Service) ListServers(ctx context.Context, chatID int64) ([]openstack.Server, error) {
	servers, err := s.api.Servers(ctx)
	if err != nil {
		return nil, err
	}
	state := s.conversationFor(chatID)
	s.mu.Lock()
	state.servers = servers
	s.mu.Unlock()
	return servers, nil
}

// ServerAt resolves an index into the last server listing shown to
// this conversation.
func (s *Service) ServerAt(chatID int64, index int) (openstack.Server, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(state.servers) {
		return openstack.Server{}, &openstack.NotFoundError{Resource: "listed server", Key: fmt.Sprint(index)}
	}
	return state.servers[index], nil
}

// ServerDetail fetches one server with its interfaces for rendering.
func (s *Service) ServerDetail(ctx context.Context, serverID string) (*openstack.Server, []openstack.InterfaceAttachment, error) {
	server, err := s.api.Server(ctx, serverID)
	if err != nil {
		return nil, nil, err
	}
	interfaces, err := s.api.ServerInterfaces(ctx, serverID)
	if err != nil {
		return server, nil, err
	}
	return server, interfaces, nil
}

// ListNetworks lists the project's networks.
func (s *Service) ListNetworks(ctx context.Context) ([]openstack.Network, error) {
	return s.api.Networks(ctx)
}

// ListFloatingIPs lists the project's floating IPs and remembers the
// listing for index-based selection.
func (s *Service) ListFloatingIPs(ctx context.Context, chatID int64) ([]openstack.FloatingIP, error) {
	floatingIPs, err := s.api.FloatingIPs(ctx)
	if err != nil {
		return nil, err
	}
	state := s.conversationFor(chatID)
	s.mu.Lock()
	state.floatingIPs = floatingIPs
	s.mu.Unlock()
	return floatingIPs, nil
}

// FloatingIPAt resolves an index into the last floating-IP listing
// shown to this conversation.
func (s *Service) FloatingIPAt(chatID int64, index int) (openstack.FloatingIP, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(state.floatingIPs) {
		return openstack.FloatingIP{}, &openstack.NotFoundError{Resource: "listed floating ip", Key: fmt.Sprint(index)}
	}
	return state.floatingIPs[index], nil
}

// AllocateFloatingIP allocates a new floating IP from the preferred
// public network.
func (s *Service) AllocateFloatingIP(ctx context.Context) (*openstack.FloatingIP, error) {
	networkID, err := s.topology.PreferredPublicNetworkID(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.AllocateFloatingIP(ctx, networkID)
}

// DisassociateFloatingIP detaches a floating IP from its port.
func (s *Service) DisassociateFloatingIP(ctx context.Context, floatingIPID string) (*openstack.FloatingIP, error) {
	return s.api.DisassociateFloatingIP(ctx, floatingIPID)
}

// DeleteFloatingIP releases a floating IP. The confirmation step is
// the caller's concern; this performs the release unconditionally.
func (s *Service) DeleteFloatingIP(ctx context.Context, floatingIPID string) error {
	return s.api.DeleteFloatingIP(ctx, floatingIPID)
}

// BeginAssociateFloatingIP starts the associate workflow for a server:
// it lists the project's unattached floating IPs and records them as
// this conversation's candidates. An empty candidate list is a
// NotFoundError — the user should allocate first.
func (s *Service) BeginAssociateFloatingIP(ctx context.Context, chatID int64, serverID string) ([]openstack.FloatingIP, error) {
	floatingIPs, err := s.api.FloatingIPs(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []openstack.FloatingIP
	for _, floatingIP := range floatingIPs {
		if !floatingIP.Attached() {
			candidates = append(candidates, floatingIP)
		}
	}
	if len(candidates) == 0 {
		return nil, &openstack.NotFoundError{Resource: "unattached floating ip", Key: "project"}
	}

	state := s.conversationFor(chatID)
	s.mu.Lock()
	state.reset()
	state.action = actionAssociate
	state.serverID = serverID
	state.candidates = candidates
	s.mu.Unlock()
	return candidates, nil
}

// AssociateResult reports a completed association.
type AssociateResult struct {
	FloatingIP *openstack.FloatingIP
	PortID     string
	// AttachedNetworkID is set when no eligible interface existed and
	// one was attached on a reachable network as part of the workflow.
	AttachedNetworkID string
}

// ConfirmAssociateFloatingIP finishes the associate workflow: the
// index picks one of the candidates recorded by Begin, the topology
// resolver picks the target interface, and the association is made.
// When the server has no eligible interface, one is attached on an
// externally reachable network and resolution is retried once.
func (s *Service) ConfirmAssociateFloatingIP(ctx context.Context, chatID int64, index int) (*AssociateResult, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	if state.action != actionAssociate {
		s.mu.Unlock()
		return nil, ErrNoPendingSelection
	}
	if index < 0 || index >= len(state.candidates) {
		s.mu.Unlock()
		return nil, &openstack.NotFoundError{Resource: "floating ip candidate", Key: fmt.Sprint(index)}
	}
	floatingIP := state.candidates[index]
	serverID := state.serverID
	s.mu.Unlock()

	result := &AssociateResult{}
	attachment, err := s.topology.EligibleInterfaceForFloatingIP(ctx, serverID)
	if openstack.IsNotFound(err) {
		networkID, attachErr := s.pickReachableNetwork(ctx)
		if attachErr != nil {
			return nil, attachErr
		}
		if _, attachErr := s.api.AttachInterface(ctx, serverID, networkID); attachErr != nil {
			return nil, fmt.Errorf("attaching interface for floating ip: %w", attachErr)
		}
		result.AttachedNetworkID = networkID
		s.logger.Info("attached interface before association",
			"server_id", serverID, "network_id", networkID)
		attachment, err = s.topology.EligibleInterfaceForFloatingIP(ctx, serverID)
	}
	if err != nil {
		return nil, err
	}

	associated, err := s.api.AssociateFloatingIP(ctx, floatingIP.ID, attachment.PortID)
	if err != nil {
		return nil, err
	}
	result.FloatingIP = associated
	result.PortID = attachment.PortID

	s.resetConversation(state)
	return result, nil
}

// pickReachableNetwork chooses the network to attach a new interface
// on. Sorted order keeps the choice stable across calls.
func (s *Service) pickReachableNetwork(ctx context.Context) (string, error) {
	reachable := s.topology.ExternallyReachableNetworkIDs(ctx)
	if len(reachable) == 0 {
		return "", &openstack.NotFoundError{Resource: "externally reachable network", Key: "project"}
	}
	ids := make([]string, 0, len(reachable))
	for id := range reachable {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0], nil
}

// BeginAddFixedIP starts the add-fixed-IP workflow for a server: it
// lists the server's interfaces and records them as candidates.
func (s *Service) BeginAddFixedIP(ctx context.Context, chatID int64, serverID string) ([]openstack.InterfaceAttachment, error) {
	interfaces, err := s.api.ServerInterfaces(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(interfaces) == 0 {
		return nil, &openstack.NotFoundError{Resource: "server interface", Key: serverID}
	}

	state := s.conversationFor(chatID)
	s.mu.Lock()
	state.reset()
	state.action = actionAddFixedIP
	state.serverID = serverID
	state.interfaces = interfaces
	s.mu.Unlock()
	return interfaces, nil
}

// SelectInterface picks the interface the new fixed IP goes on and
// returns the subnet choices for the next step. Fixed IPs are drawn
// from non-public networks only.
func (s *Service) SelectInterface(ctx context.Context, chatID int64, index int) ([]topology.SubnetChoice, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	if state.action != actionAddFixedIP {
		s.mu.Unlock()
		return nil, ErrNoPendingSelection
	}
	if index < 0 || index >= len(state.interfaces) {
		s.mu.Unlock()
		return nil, &openstack.NotFoundError{Resource: "interface candidate", Key: fmt.Sprint(index)}
	}
	portID := state.interfaces[index].PortID
	s.mu.Unlock()

	choices, err := s.topology.SubnetsAvailableForFixedIP(ctx)
	if err != nil {
		return nil, err
	}
	if len(choices) == 0 {
		return nil, &openstack.NotFoundError{Resource: "assignable subnet", Key: "project"}
	}

	s.mu.Lock()
	state.portID = portID
	state.subnets = choices
	state.subnetID = ""
	s.mu.Unlock()
	return choices, nil
}

// SelectSubnet picks the subnet the new fixed IP is drawn from and
// returns the choice for the confirmation prompt.
func (s *Service) SelectSubnet(chatID int64, index int) (*topology.SubnetChoice, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.action != actionAddFixedIP || state.portID == "" {
		return nil, ErrNoPendingSelection
	}
	if index < 0 || index >= len(state.subnets) {
		return nil, &openstack.NotFoundError{Resource: "subnet candidate", Key: fmt.Sprint(index)}
	}
	choice := state.subnets[index]
	state.subnetID = choice.Subnet.ID
	return &choice, nil
}

// ConfirmAddFixedIP performs the add: the port's current fixed-IP list
// is re-read, the new subnet entry appended, and the full list written
// back. The address itself is assigned by the control plane.
func (s *Service) ConfirmAddFixedIP(ctx context.Context, chatID int64) (*openstack.Port, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	if state.action != actionAddFixedIP || state.portID == "" || state.subnetID == "" {
		s.mu.Unlock()
		return nil, ErrNoPendingSelection
	}
	portID, subnetID := state.portID, state.subnetID
	s.mu.Unlock()

	port, err := s.api.Port(ctx, portID)
	if err != nil {
		return nil, err
	}
	desired := make([]openstack.FixedIP, 0, len(port.FixedIPs)+1)
	for _, fixedIP := range port.FixedIPs {
		desired = append(desired, openstack.FixedIP{
			IPAddress: fixedIP.IPAddress,
			SubnetID:  fixedIP.SubnetID,
		})
	}
	desired = append(desired, openstack.FixedIP{SubnetID: subnetID})

	updated, err := s.api.UpdatePortFixedIPs(ctx, portID, desired)
	if err != nil {
		return nil, err
	}
	s.resetConversation(state)
	return updated, nil
}

// BeginRemoveFixedIP starts the remove-fixed-IP workflow: every fixed
// address across the server's interfaces becomes a removal candidate.
func (s *Service) BeginRemoveFixedIP(ctx context.Context, chatID int64, serverID string) ([]RemovalCandidate, error) {
	interfaces, err := s.api.ServerInterfaces(ctx, serverID)
	if err != nil {
		return nil, err
	}
	var removals []RemovalCandidate
	for _, attachment := range interfaces {
		for _, fixedIP := range attachment.FixedIPs {
			removals = append(removals, RemovalCandidate{
				PortID:    attachment.PortID,
				NetworkID: attachment.NetID,
				IPAddress: fixedIP.IPAddress,
			})
		}
	}
	if len(removals) == 0 {
		return nil, &openstack.NotFoundError{Resource: "fixed ip", Key: serverID}
	}

	state := s.conversationFor(chatID)
	s.mu.Lock()
	state.reset()
	state.action = actionRemoveFixedIP
	state.serverID = serverID
	state.removals = removals
	s.mu.Unlock()
	return removals, nil
}

// SelectRemoveAddress picks the address to remove and returns it for
// the confirmation prompt.
func (s *Service) SelectRemoveAddress(chatID int64, index int) (*RemovalCandidate, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.action != actionRemoveFixedIP {
		return nil, ErrNoPendingSelection
	}
	if index < 0 || index >= len(state.removals) {
		return nil, &openstack.NotFoundError{Resource: "removal candidate", Key: fmt.Sprint(index)}
	}
	candidate := state.removals[index]
	state.removal = &candidate
	return &candidate, nil
}

// ConfirmRemoveFixedIP performs the removal: the port's fixed-IP list
// is re-read and the chosen address filtered out. If the address is
// already gone the workflow fails with a NotFoundError and the port is
// left untouched — no write is issued for a no-op removal.
func (s *Service) ConfirmRemoveFixedIP(ctx context.Context, chatID int64) (*openstack.Port, error) {
	state := s.conversationFor(chatID)
	s.mu.Lock()
	if state.action != actionRemoveFixedIP || state.removal == nil {
		s.mu.Unlock()
		return nil, ErrNoPendingSelection
	}
	removal := *state.removal
	s.mu.Unlock()

	port, err := s.api.Port(ctx, removal.PortID)
	if err != nil {
		return nil, err
	}
	desired := make([]openstack.FixedIP, 0, len(port.FixedIPs))
	for _, fixedIP := range port.FixedIPs {
		if fixedIP.IPAddress == removal.IPAddress {
			continue
		}
		desired = append(desired, openstack.FixedIP{
			IPAddress: fixedIP.IPAddress,
			SubnetID:  fixedIP.SubnetID,
		})
	}
	if len(desired) == len(port.FixedIPs) {
		return nil, &openstack.NotFoundError{Resource: "fixed ip", Key: removal.IPAddress}
	}

	updated, err := s.api.UpdatePortFixedIPs(ctx, removal.PortID, desired)
	if err != nil {
		return nil, err
	}
	s.resetConversation(state)
	return updated, nil
}

// NetworkResult reports a create-network workflow, including the
// partial case where the network exists but its subnet failed.
type NetworkResult struct {
	Network *openstack.Network
	Subnet  *openstack.Subnet
}

// CreatePrivateNetwork creates a network with one IPv4 subnet,
// defaulting the name and range when the user gives none. On partial
// success the result carries the created network alongside the error.
func (s *Service) CreatePrivateNetwork(ctx context.Context, name, cidr string) (*NetworkResult, error) {
	if name == "" {
		name = DefaultNetworkName
	}
	if cidr == "" {
		cidr = DefaultSubnetCIDR
	}
	network, subnet, err := s.api.CreateNetworkWithSubnet(ctx, name, cidr)
	if err != nil {
		if network != nil {
			return &NetworkResult{Network: network}, err
		}
		return nil, err
	}
	return &NetworkResult{Network: network, Subnet: subnet}, nil
}

// Cancel abandons whatever workflow the conversation is in. Calling it
// with nothing pending is a no-op.
func (s *Service) Cancel(chatID int64) {
	state := s.conversationFor(chatID)
	s.resetConversation(state)
}

func (s *Service) resetConversation(state *conversation) {
	s.mu.Lock()
	state.reset()
	s.mu.Unlock()
}
