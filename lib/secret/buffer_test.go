// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestBufferRoundTrip(t *testing.T) {
	buffer, err := NewFromString("hunter2")
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}
	defer buffer.Close()

	if buffer.String() != "hunter2" {
		t.Errorf("unexpected contents: %s", buffer.String())
	}
	if buffer.Len() != 7 {
		t.Errorf("unexpected length: %d", buffer.Len())
	}
}

func TestBufferEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestBufferCloseIdempotent(t *testing.T) {
	buffer, err := NewFromString("token")
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestBufferUseAfterClosePanics(t *testing.T) {
	buffer, err := NewFromString("token")
	if err != nil {
		t.Fatalf("NewFromString failed: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on use after Close")
		}
	}()
	_ = buffer.String()
}
