// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package crypto

import (
	"bytes"
	"testing"
)

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	ZeroBytes(b)
	if !bytes.Equal(b, make([]byte, 5)) {
		t.Errorf("expected zeroed slice, got %v", b)
	}

	// Empty and nil slices must not panic.
	ZeroBytes(nil)
	ZeroBytes([]byte{})
}

func TestSecureStringLifecycle(t *testing.T) {
	original := []byte("sensitive")
	s := NewSecureStringFromBytes(original)

	// The SecureString holds a copy; zeroing the original must not affect it.
	ZeroBytes(original)

	err := s.WithBytes(func(b []byte) error {
		if string(b) != "sensitive" {
			t.Errorf("expected copied data, got %q", b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBytes failed: %v", err)
	}

	if s.IsEmpty() {
		t.Error("non-empty SecureString reported empty")
	}

	s.Destroy()
	if !s.IsEmpty() {
		t.Error("destroyed SecureString reported non-empty")
	}
}

func TestSecureStringNil(t *testing.T) {
	s := NewSecureStringFromBytes(nil)
	if !s.IsEmpty() {
		t.Error("nil SecureString should be empty")
	}
	err := s.WithBytes(func(b []byte) error {
		if b != nil {
			t.Errorf("expected nil bytes, got %v", b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBytes failed: %v", err)
	}
}
