// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package keystore manages the encrypted private-key file for one signer
// identity.
//
// The on-disk format is a single base64 blob produced by internal/crypto:
// version | salt | iv | ciphertext | mac. The file is fully replaced (fresh
// salt, IV and MAC) on every write and never partially updated; writes go
// through a temp-file-and-rename so a crash cannot leave a torn blob.
//
// The keystore only moves between NoKey and Locked. Obtaining signing
// capability is the signer's job: it calls Unlock here, takes ownership of
// the returned raw key, and is responsible for zeroing it.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/opsigner/opsigner/internal/crypto"
)

// Keystore errors. Cipher-level failures (crypto.ErrIntegrity,
// crypto.ErrWrongKey, crypto.ErrFormat) propagate unchanged.
var (
	// ErrNotFound indicates the keystore (or export source) file does not exist.
	ErrNotFound = errors.New("keystore file not found")

	// ErrStorage indicates the keystore file could not be written.
	ErrStorage = errors.New("keystore write failed")
)

// Store is the encrypted-blob lifecycle for a single keystore file.
// It holds no key material; all state lives on disk.
type Store struct {
	path string
}

// New returns a Store backed by the file at path. The file need not exist
// yet; Create or ImportKey will write it.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the keystore file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the keystore file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Create generates a fresh secp256k1 private key, encrypts it under password
// and atomically overwrites the keystore file. Returns the derived address.
// The store remains locked; call Unlock to obtain signing capability.
func (s *Store) Create(password string) (common.Address, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to generate key: %w", err)
	}
	raw := ethcrypto.FromECDSA(key)
	defer crypto.ZeroBytes(raw)

	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	if err := s.seal(raw, password); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// ImportKey parses a hex-encoded secp256k1 private key (0x prefix optional),
// encrypts it under password and persists it as this keystore's file.
// Malformed hex is reported as crypto.ErrFormat.
func (s *Store) ImportKey(rawKeyHex, password string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(rawKeyHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad private key hex: %v", crypto.ErrFormat, err)
	}
	defer crypto.ZeroBytes(raw)

	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: invalid private key: %v", crypto.ErrFormat, err)
	}

	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	if err := s.seal(raw, password); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Unlock reads the stored blob and decrypts it with password. On success the
// caller owns the returned raw key and must zero it when done. Cipher errors
// (wrong password, tampering) propagate unchanged.
func (s *Store) Unlock(password string) ([]byte, common.Address, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.Address{}, ErrNotFound
		}
		return nil, common.Address{}, fmt.Errorf("failed to read keystore: %w", err)
	}

	raw, err := crypto.Decrypt(blob, password)
	if err != nil {
		return nil, common.Address{}, err
	}

	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		crypto.ZeroBytes(raw)
		return nil, common.Address{}, fmt.Errorf("%w: stored key is invalid: %v", crypto.ErrWrongKey, err)
	}

	return raw, ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// Export copies the encrypted blob byte-for-byte to dst without decrypting.
func (s *Store) Export(dst string) error {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read keystore: %w", err)
	}
	if err := writeBlob(dst, blob); err != nil {
		return err
	}
	return nil
}

// ImportKeystore adopts a foreign encrypted blob as this keystore's file.
// The blob is decrypted first to validate the password; an unreadable
// keystore is never committed. Returns the address of the imported key.
func (s *Store) ImportKeystore(src, password string) (common.Address, error) {
	blob, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return common.Address{}, ErrNotFound
		}
		return common.Address{}, fmt.Errorf("failed to read source keystore: %w", err)
	}

	// Verify before commit.
	raw, err := crypto.Decrypt(blob, password)
	if err != nil {
		return common.Address{}, err
	}
	defer crypto.ZeroBytes(raw)

	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: imported key is invalid: %v", crypto.ErrWrongKey, err)
	}

	if err := writeBlob(s.path, blob); err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// seal encrypts raw under password and atomically replaces the keystore file.
func (s *Store) seal(raw []byte, password string) error {
	blob, err := crypto.Encrypt(raw, password)
	if err != nil {
		return err
	}
	return writeBlob(s.path, blob)
}
