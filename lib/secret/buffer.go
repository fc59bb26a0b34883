// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data: the
// OpenStack password, the issued auth token, and the Telegram bot token.
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (no swap), and excludes it from
// core dumps via madvise(MADV_DONTDUMP). Close zeroes, unlocks, and
// unmaps the region. Because the memory is outside the Go heap, the
// garbage collector never copies or relocates it.
package secret

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds sensitive bytes in mmap-backed memory. A Buffer must not
// be copied. Accessing the contents after Close panics.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewFromBytes allocates a protected buffer holding a copy of value.
// The caller should zero its own copy if it controls the allocation.
func NewFromBytes(value []byte) (*Buffer, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("secret: value must not be empty")
	}

	data, err := unix.Mmap(-1, 0, len(value), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock failed: %w", err)
	}
	// MADV_DONTDUMP is advisory; failure (old kernels) is not fatal.
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)

	copy(data, value)
	return &Buffer{data: data}, nil
}

// Zero overwrites a byte slice. Use on caller-owned copies once their
// contents have moved into a Buffer.
func Zero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// NewFromString allocates a protected buffer holding a copy of value.
// The original string remains on the heap until collected; the buffer
// is the durable copy.
func NewFromString(value string) (*Buffer, error) {
	return NewFromBytes([]byte(value))
}

// String returns the contents as a heap string. This creates a brief
// unprotected copy — use only at API boundaries that require a string
// (JSON serialization, HTTP headers). Panics if the buffer is closed.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: use after Close")
	}
	return string(b.data)
}

// Len returns the length of the protected contents.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: use after Close")
	}
	return len(b.data)
}

// Close zeroes the contents, unlocks, and unmaps the region.
// Idempotent — safe to call multiple times.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for i := range b.data {
		b.data[i] = 0
	}
	if err := unix.Munlock(b.data); err != nil {
		unix.Munmap(b.data)
		return fmt.Errorf("secret: munlock failed: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil {
		return fmt.Errorf("secret: munmap failed: %w", err)
	}
	b.data = nil
	return nil
}
