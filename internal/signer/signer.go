// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package signer holds the unlocked raw key in memory and exposes the
// signing operations, gated by lock state.
//
// Exactly one raw key is resident at a time. It is populated only by
// Create, ImportKey and Unlock, and zeroed by Lock. A single mutex per
// Signer serializes unlock/lock/sign so a concurrent Lock can never zero
// the key out from under an in-flight signature.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/opsigner/opsigner/internal/crypto"
	"github.com/opsigner/opsigner/internal/keystore"
)

// Signer errors. Keystore and cipher errors propagate unchanged from the
// lifecycle operations.
var (
	// ErrLocked indicates a signing operation was attempted while locked.
	ErrLocked = errors.New("signer is locked")

	// ErrInput indicates a malformed signing argument, e.g. a hash that is
	// not exactly 32 bytes.
	ErrInput = errors.New("invalid signing input")
)

// MessageSignature is the structured result of SignMessage.
type MessageSignature struct {
	// Hash is the EIP-191 personal-message hash that was actually signed.
	Hash common.Hash

	// R, S are the signature components, 32 bytes each.
	R [32]byte
	S [32]byte

	// V is the recovery id in Ethereum convention (27 or 28).
	V byte

	// Signature is the 65-byte r||s||v concatenation.
	Signature []byte
}

// Signer owns the in-memory raw key for one keystore-backed identity.
// Safe for concurrent use.
type Signer struct {
	mu       sync.Mutex
	store    *keystore.Store
	rawKey   []byte
	address  common.Address
	unlocked bool
}

// New returns a locked Signer backed by store.
func New(store *keystore.Store) *Signer {
	return &Signer{store: store}
}

// Create generates and persists a fresh key via the keystore. The public
// identifier becomes available immediately, but the signer stays locked;
// call Unlock to obtain signing capability.
func (s *Signer) Create(password string) (common.Address, error) {
	addr, err := s.store.Create(password)
	if err != nil {
		return common.Address{}, err
	}
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return addr, nil
}

// ImportKey persists a hex-encoded raw private key via the keystore.
// Like Create, the signer stays locked.
func (s *Signer) ImportKey(rawKeyHex, password string) (common.Address, error) {
	addr, err := s.store.ImportKey(rawKeyHex, password)
	if err != nil {
		return common.Address{}, err
	}
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return addr, nil
}

// Unlock decrypts the stored key into memory and enables signing.
// Keystore and cipher errors propagate; signer state is unchanged on failure.
func (s *Signer) Unlock(password string) (common.Address, error) {
	raw, addr, err := s.store.Unlock(password)
	if err != nil {
		return common.Address{}, err
	}

	s.mu.Lock()
	if s.rawKey != nil {
		crypto.ZeroBytes(s.rawKey)
	}
	s.rawKey = raw
	s.address = addr
	s.unlocked = true
	s.mu.Unlock()
	return addr, nil
}

// Lock zeroes the in-memory raw key and disables signing.
// Always succeeds; idempotent.
func (s *Signer) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rawKey != nil {
		crypto.ZeroBytes(s.rawKey)
		s.rawKey = nil
	}
	s.unlocked = false
}

// IsUnlocked reports whether signing is currently possible.
func (s *Signer) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Address returns the public identifier, or the zero address if no key has
// been created, imported or unlocked yet.
func (s *Signer) Address() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// ExportKeystore copies the encrypted blob to dst without decrypting.
func (s *Signer) ExportKeystore(dst string) error {
	return s.store.Export(dst)
}

// ImportKeystore adopts a foreign encrypted blob after validating the
// password against it. Updates the identity; the signer stays locked.
func (s *Signer) ImportKeystore(src, password string) (common.Address, error) {
	addr, err := s.store.ImportKeystore(src, password)
	if err != nil {
		return common.Address{}, err
	}
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return addr, nil
}

// SignMessage signs msg with the EIP-191 personal-message prefix, so the
// signature cannot be replayed as a transaction signature.
func (s *Signer) SignMessage(msg []byte) (*MessageSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}

	key, err := s.privateKey()
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	hash := accounts.TextHash(msg)
	sig, err := ethcrypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[64] += 27

	out := &MessageSignature{
		Hash:      common.BytesToHash(hash),
		V:         sig[64],
		Signature: sig,
	}
	copy(out.R[:], sig[:32])
	copy(out.S[:], sig[32:64])
	return out, nil
}

// SignTransaction signs tx with chain-id-aware (EIP-155/1559) replay
// protection and returns the signed transaction.
func (s *Signer) SignTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}
	if chainID == nil {
		return nil, fmt.Errorf("%w: chain id is required", ErrInput)
	}

	key, err := s.privateKey()
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SignOperationHash signs a 32-byte operation hash directly, with no
// prefixing or re-hashing: the input is already the domain-separated digest
// the verifying contract expects, and hashing it again would produce an
// unverifiable signature. Returns the 65-byte r||s||v concatenation with
// v in {27, 28}.
func (s *Signer) SignOperationHash(hash []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unlocked {
		return nil, ErrLocked
	}
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("%w: operation hash must be %d bytes, got %d", ErrInput, common.HashLength, len(hash))
	}

	key, err := s.privateKey()
	if err != nil {
		return nil, err
	}
	defer zeroKey(key)

	sig, err := ethcrypto.Sign(hash, key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign operation hash: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// privateKey materializes the ECDSA key from the resident raw bytes.
// Caller must hold s.mu and zero the result via zeroKey.
func (s *Signer) privateKey() (*ecdsa.PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(s.rawKey)
	if err != nil {
		return nil, fmt.Errorf("resident key is invalid: %w", err)
	}
	return key, nil
}

// zeroKey wipes the scalar of a transient ECDSA key.
func zeroKey(key *ecdsa.PrivateKey) {
	b := key.D.Bits()
	for i := range b {
		b[i] = 0
	}
}
