// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package crypto implements the password-based encryption envelope used to
// protect raw private keys at rest.
//
// The envelope is encrypt-then-MAC: the plaintext key is encrypted with
// AES-256-CFB under a password-derived key, and an HMAC-SHA256 tag over the
// full header and ciphertext authenticates the blob. A wrong password and a
// tampered blob are indistinguishable at the MAC check; both surface as
// ErrIntegrity. The encryption and MAC keys are derived from a single PBKDF2
// stretch expanded through HKDF with distinct labels, so the two keys differ
// even though they share the same password and salt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Envelope format: base64( version(1) | salt(16) | iv(16) | ciphertext(n) | mac(32) ).
// The MAC covers everything before it, version byte included.
const (
	// EnvelopeVersion is the current blob format version. Written as the
	// first byte of every blob and authenticated by the MAC.
	EnvelopeVersion = 0x01

	// KDFIterations is the PBKDF2-HMAC-SHA256 iteration count.
	KDFIterations = 390_000

	saltSize    = 16
	ivSize      = 16
	macSize     = sha256.Size
	minBlobSize = 1 + saltSize + ivSize + macSize
)

// HKDF info labels separating the encryption key from the MAC key.
const (
	encKeyLabel = "opsigner/enc"
	macKeyLabel = "opsigner/mac"
)

// Cipher module errors. Callers match these with errors.Is.
var (
	// ErrFormat indicates a blob that is not valid base64 or is too short
	// to contain the fixed header and trailer.
	ErrFormat = errors.New("invalid envelope format")

	// ErrKeyDerivation indicates a failure inside the key derivation
	// primitives. Does not occur for well-formed inputs.
	ErrKeyDerivation = errors.New("key derivation failed")

	// ErrIntegrity indicates a MAC mismatch. The blob was tampered with or
	// the password is wrong; the two causes cannot be told apart.
	ErrIntegrity = errors.New("integrity check failed: wrong password or corrupted data")

	// ErrWrongKey indicates a decryption failure after the MAC verified.
	// With a correct MAC this is close to unreachable.
	ErrWrongKey = errors.New("decryption failed")
)

// DeriveKey stretches a password into outLen bytes of key material using
// PBKDF2-HMAC-SHA256 with KDFIterations iterations. Deterministic: the same
// password and salt always yield the same output.
func DeriveKey(password string, salt []byte, outLen int) []byte {
	return pbkdf2.Key([]byte(password), salt, KDFIterations, outLen, sha256.New)
}

// deriveKeys produces the encryption and MAC keys for a password/salt pair.
// A single PBKDF2 stretch feeds an HKDF expansion with per-purpose labels,
// so encKey != macKey despite the shared salt.
func deriveKeys(password string, salt []byte) (encKey, macKey []byte, err error) {
	master := DeriveKey(password, salt, 32)
	defer ZeroBytes(master)

	encKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(encKeyLabel)), encKey); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	macKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(macKeyLabel)), macKey); err != nil {
		ZeroBytes(encKey)
		return nil, nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return encKey, macKey, nil
}

// Encrypt seals plaintext under password and returns the base64 blob.
// Every call draws a fresh random salt and IV, so encrypting the same
// plaintext twice never produces the same blob.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	encKey, macKey, err := deriveKeys(password, salt)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(encKey)
	defer ZeroBytes(macKey)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(ciphertext, plaintext)

	// raw = version | salt | iv | ciphertext, then the MAC over all of it.
	raw := make([]byte, 0, minBlobSize+len(ciphertext))
	raw = append(raw, EnvelopeVersion)
	raw = append(raw, salt...)
	raw = append(raw, iv...)
	raw = append(raw, ciphertext...)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(raw)
	raw = mac.Sum(raw)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. The MAC is verified in constant
// time before any decryption is attempted, so nothing is decrypted for a
// tampered blob or a wrong password.
func Decrypt(blob []byte, password string) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(raw, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64: %v", ErrFormat, err)
	}
	raw = raw[:n]

	if len(raw) < minBlobSize {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrFormat, len(raw))
	}
	if raw[0] != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrFormat, raw[0])
	}

	salt := raw[1 : 1+saltSize]
	iv := raw[1+saltSize : 1+saltSize+ivSize]
	ciphertext := raw[1+saltSize+ivSize : len(raw)-macSize]
	wantMAC := raw[len(raw)-macSize:]

	encKey, macKey, err := deriveKeys(password, salt)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(encKey)
	defer ZeroBytes(macKey)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(raw[:len(raw)-macSize])
	if !hmac.Equal(mac.Sum(nil), wantMAC) {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
