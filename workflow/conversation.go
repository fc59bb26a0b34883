// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"github.com/stackwarden/stackwarden/openstack"
	"github.com/stackwarden/stackwarden/topology"
)

// pendingAction identifies which multi-step workflow a conversation is
// in the middle of. Confirm and Select calls are only valid while the
// matching action is pending.
type pendingAction int

const (
	actionNone pendingAction = iota
	actionAssociate
	actionAddFixedIP
	actionRemoveFixedIP
)

// RemovalCandidate is one removable fixed-IP entry: the address plus
// the port it lives on.
type RemovalCandidate struct {
	PortID    string
	NetworkID string
	IPAddress string
}

// conversation is one user's selection scratchpad. Selections are
// stored as the listed values themselves, so later steps resolve
// indices against exactly what the user was shown — identifiers are
// never re-derived from callback strings.
//
// All access happens under the Service mutex.
type conversation struct {
	action   pendingAction
	serverID string

	// Last-rendered listings, addressable by index.
	servers     []openstack.Server
	floatingIPs []openstack.FloatingIP

	// Associate workflow.
	candidates   []openstack.FloatingIP
	floatingIPID string

	// Add-fixed-IP workflow.
	interfaces []openstack.InterfaceAttachment
	portID     string
	subnets    []topology.SubnetChoice
	subnetID   string

	// Remove-fixed-IP workflow.
	removals []RemovalCandidate
	removal  *RemovalCandidate
}

// reset returns the conversation to the neutral state. Called on
// cancel, on workflow completion, and before starting a new workflow
// so stale downstream selections never leak across actions.
func (c *conversation) reset() {
	*c = conversation{servers: c.servers, floatingIPs: c.floatingIPs}
}
