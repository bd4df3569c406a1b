// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package crypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// ZeroBytes securely overwrites a byte slice with zeros.
// Uses constant-time copy to prevent compiler optimization.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// SecureString wraps sensitive bytes (passwords, raw keys) with locked,
// scoped access and explicit destruction.
type SecureString struct {
	data []byte
	lock sync.RWMutex
}

// NewSecureStringFromBytes copies b into a new SecureString. The caller may
// safely zero the original afterwards.
func NewSecureStringFromBytes(b []byte) *SecureString {
	if b == nil {
		return &SecureString{data: nil}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &SecureString{data: data}
}

// WithBytes provides scoped access to the underlying bytes without copying.
// The slice is only valid during the callback; it must not be stored.
func (s *SecureString) WithBytes(fn func([]byte) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.data == nil {
		return fn(nil)
	}
	return fn(s.data)
}

// Destroy zeroes the data. The SecureString must not be used afterwards.
func (s *SecureString) Destroy() {
	s.lock.Lock()
	defer s.lock.Unlock()
	ZeroBytes(s.data)
	s.data = nil
}

// IsEmpty reports whether the string is empty or destroyed.
func (s *SecureString) IsEmpty() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.data) == 0
}
