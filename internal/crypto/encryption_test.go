// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

// TestEncryptDecryptRoundTrip verifies decrypt(encrypt(m, p), p) == m for a
// range of plaintexts.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
		password  string
	}{
		{"32-byte key", bytes.Repeat([]byte{0xAB}, 32), "correct horse"},
		{"single byte", []byte{0x00}, "p"},
		{"empty plaintext", []byte{}, "password"},
		{"long plaintext", bytes.Repeat([]byte("opsigner"), 64), "longer password with spaces"},
		{"binary plaintext", []byte{0xff, 0x00, 0x7f, 0x80, 0x01}, "päss-wörd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.plaintext, tt.password)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			got, err := Decrypt(blob, tt.password)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("round trip mismatch: got %x, want %x", got, tt.plaintext)
			}
		})
	}
}

// TestEncryptFreshRandomness verifies each call draws a new salt and IV.
func TestEncryptFreshRandomness(t *testing.T) {
	plaintext := []byte("same plaintext")
	a, err := Encrypt(plaintext, "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := Encrypt(plaintext, "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

// TestDecryptWrongPassword verifies a wrong password is reported as an
// integrity failure, indistinguishable from tampering.
func TestDecryptWrongPassword(t *testing.T) {
	blob, err := Encrypt([]byte("secret key material"), "password-one")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(blob, "password-two")
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for wrong password, got %v", err)
	}
}

// TestDecryptTamperDetection flips every byte of the decoded blob in turn
// and verifies each position fails with ErrIntegrity.
func TestDecryptTamperDetection(t *testing.T) {
	blob, err := Encrypt([]byte("tamper target"), "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		reencoded := []byte(base64.StdEncoding.EncodeToString(tampered))
		_, err := Decrypt(reencoded, "pw")
		if err == nil {
			t.Fatalf("tampering at byte %d went undetected", i)
		}
		// Flipping the version byte is a format error; every other
		// position must be caught by the MAC.
		if i == 0 {
			if !errors.Is(err, ErrFormat) {
				t.Errorf("byte 0: expected ErrFormat, got %v", err)
			}
			continue
		}
		if !errors.Is(err, ErrIntegrity) {
			t.Errorf("byte %d: expected ErrIntegrity, got %v", i, err)
		}
	}
}

// TestDecryptFormatErrors covers malformed inputs rejected before any MAC work.
func TestDecryptFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"not base64", []byte("!!!not base64!!!")},
		{"empty", []byte("")},
		{"too short", []byte(base64.StdEncoding.EncodeToString(make([]byte, 40)))},
		{"unknown version", []byte(base64.StdEncoding.EncodeToString(append([]byte{0x7F}, make([]byte, 64)...)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.blob, "pw")
			if !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

// TestDeriveKeyDeterministic verifies the KDF is a pure function of its inputs.
func TestDeriveKeyDeterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x11}, 16)

	a := DeriveKey("password", salt, 32)
	b := DeriveKey("password", salt, 32)
	if !bytes.Equal(a, b) {
		t.Error("same inputs produced different keys")
	}

	c := DeriveKey("password2", salt, 32)
	if bytes.Equal(a, c) {
		t.Error("different passwords produced the same key")
	}

	otherSalt := bytes.Repeat([]byte{0x22}, 16)
	d := DeriveKey("password", otherSalt, 32)
	if bytes.Equal(a, d) {
		t.Error("different salts produced the same key")
	}
}

// TestDeriveKeysSeparation verifies the HKDF labels yield distinct enc and
// MAC keys for the same password and salt.
func TestDeriveKeysSeparation(t *testing.T) {
	salt := bytes.Repeat([]byte{0x33}, 16)
	encKey, macKey, err := deriveKeys("password", salt)
	if err != nil {
		t.Fatalf("deriveKeys failed: %v", err)
	}
	if bytes.Equal(encKey, macKey) {
		t.Error("encryption and MAC keys are identical")
	}
	if len(encKey) != 32 || len(macKey) != 32 {
		t.Errorf("expected 32-byte keys, got %d and %d", len(encKey), len(macKey))
	}
}

// TestBlobLayout verifies the decoded blob length and version byte.
func TestBlobLayout(t *testing.T) {
	plaintext := make([]byte, 32)
	blob, err := Encrypt(plaintext, "pw")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(blob))
	if err != nil {
		t.Fatalf("blob is not valid base64: %v", err)
	}
	// version(1) + salt(16) + iv(16) + ciphertext(32) + mac(32)
	if len(raw) != 97 {
		t.Errorf("expected 97-byte blob for 32-byte plaintext, got %d", len(raw))
	}
	if raw[0] != EnvelopeVersion {
		t.Errorf("expected version byte %#x, got %#x", EnvelopeVersion, raw[0])
	}
}
