// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package openstack is a typed client for the slice of the OpenStack
// control plane that Stackwarden manages: servers and their interfaces
// (compute), and networks, subnets, routers, ports, and floating IPs
// (networking v2.0).
//
// [Client] owns the session: it authenticates against Keystone v3 with
// a password+project-scoped assertion, keeps the issued token in
// mmap-backed [secret.Buffer] memory, and resolves per-service base
// URLs from the catalog (first "public" endpoint per service type).
// Operations refresh the token lazily — a token is only ever used
// while it has more than five minutes of validity left, and the
// check-then-refresh sequence is mutually excluded so concurrent
// callers trigger at most one re-authentication.
//
// Error classification is uniform across operations: a rejected
// authentication is an [*AuthError]; a non-2xx response is an
// [*APIError] carrying the status and raw body; a connection-level
// fault is a [*TransportError]; a 2xx body of the wrong shape is a
// [*DecodeError]. The client never retries — retry policy belongs to
// the caller. Derived lookups that find nothing locally return
// [*NotFoundError] (used by the topology and workflow layers).
package openstack
