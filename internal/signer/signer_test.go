// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package signer

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/opsigner/opsigner/internal/crypto"
	"github.com/opsigner/opsigner/internal/keystore"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	return New(keystore.New(filepath.Join(t.TempDir(), "keystore")))
}

// TestLockGating verifies every sign operation fails while locked and works
// after unlock, per the signer state machine.
func TestLockGating(t *testing.T) {
	s := newTestSigner(t)

	hash := make([]byte, 32)

	// Fresh signer: everything locked.
	if _, err := s.SignMessage([]byte("hi")); !errors.Is(err, ErrLocked) {
		t.Errorf("SignMessage on fresh signer: expected ErrLocked, got %v", err)
	}
	if _, err := s.SignOperationHash(hash); !errors.Is(err, ErrLocked) {
		t.Errorf("SignOperationHash on fresh signer: expected ErrLocked, got %v", err)
	}

	// Create does not unlock.
	if _, err := s.Create("abc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.IsUnlocked() {
		t.Error("Create must not unlock the signer")
	}
	if _, err := s.SignOperationHash(hash); !errors.Is(err, ErrLocked) {
		t.Errorf("after Create: expected ErrLocked, got %v", err)
	}

	// Unlock enables signing.
	if _, err := s.Unlock("abc"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if !s.IsUnlocked() {
		t.Error("signer should be unlocked")
	}
	if _, err := s.SignOperationHash(hash); err != nil {
		t.Errorf("sign after unlock failed: %v", err)
	}

	// Lock disables signing again and is idempotent.
	s.Lock()
	s.Lock()
	if s.IsUnlocked() {
		t.Error("signer should be locked")
	}
	if _, err := s.SignOperationHash(hash); !errors.Is(err, ErrLocked) {
		t.Errorf("after Lock: expected ErrLocked, got %v", err)
	}
}

// TestEndToEndScenario is the create -> unlock -> sign flow from a cold start.
func TestEndToEndScenario(t *testing.T) {
	s := newTestSigner(t)

	addr, err := s.Create("abc")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	unlockAddr, err := s.Unlock("abc")
	if err != nil {
		t.Fatalf("Unlock with correct password failed: %v", err)
	}
	if unlockAddr != addr {
		t.Errorf("identifier not stable: create %s, unlock %s", addr.Hex(), unlockAddr.Hex())
	}

	if _, err := s.Unlock("xyz"); !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("unlock with wrong password: expected ErrIntegrity, got %v", err)
	}

	sig, err := s.SignOperationHash(make([]byte, 32))
	if err != nil {
		t.Fatalf("SignOperationHash failed: %v", err)
	}
	if len(sig) != 65 {
		t.Errorf("expected 65-byte signature, got %d", len(sig))
	}
}

// TestSignMessageRecoverable verifies the EIP-191 prefixing and that the
// signer address can be recovered from the signature.
func TestSignMessageRecoverable(t *testing.T) {
	s := newTestSigner(t)
	addr, err := s.Create("pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	msg := []byte("hello opsigner")
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}

	if sig.Hash != common.BytesToHash(accounts.TextHash(msg)) {
		t.Error("signed hash is not the EIP-191 personal-message hash")
	}
	if len(sig.Signature) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig.Signature))
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("expected v in {27,28}, got %d", sig.V)
	}

	// Recover with the library convention (v in {0,1}).
	recSig := make([]byte, 65)
	copy(recSig, sig.Signature)
	recSig[64] -= 27
	pub, err := ethcrypto.SigToPub(sig.Hash.Bytes(), recSig)
	if err != nil {
		t.Fatalf("SigToPub failed: %v", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != addr {
		t.Error("recovered address does not match signer")
	}
}

// TestSignOperationHashNoPrefix verifies the hash is signed as-is: the
// recovered address must match when recovering over the raw input hash.
func TestSignOperationHashNoPrefix(t *testing.T) {
	s := newTestSigner(t)
	addr, err := s.Create("pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	hash := ethcrypto.Keccak256([]byte("user operation"))
	sig, err := s.SignOperationHash(hash)
	if err != nil {
		t.Fatalf("SignOperationHash failed: %v", err)
	}

	recSig := make([]byte, 65)
	copy(recSig, sig)
	recSig[64] -= 27
	pub, err := ethcrypto.SigToPub(hash, recSig)
	if err != nil {
		t.Fatalf("SigToPub failed: %v", err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != addr {
		t.Error("signature does not verify over the unprefixed hash")
	}
}

// TestSignOperationHashLength rejects anything but exactly 32 bytes.
func TestSignOperationHashLength(t *testing.T) {
	s := newTestSigner(t)
	if _, err := s.Create("pw"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	for _, n := range []int{0, 1, 31, 33, 64} {
		if _, err := s.SignOperationHash(make([]byte, n)); !errors.Is(err, ErrInput) {
			t.Errorf("hash length %d: expected ErrInput, got %v", n, err)
		}
	}
}

// TestSignTransaction verifies chain-id-aware signing.
func TestSignTransaction(t *testing.T) {
	s := newTestSigner(t)
	addr, err := s.Create("pw")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Unlock("pw"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	chainID := big.NewInt(11155111)
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1_500_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := s.SignTransaction(tx, chainID)
	if err != nil {
		t.Fatalf("SignTransaction failed: %v", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("Sender failed: %v", err)
	}
	if from != addr {
		t.Errorf("sender %s, want %s", from.Hex(), addr.Hex())
	}

	if _, err := s.SignTransaction(tx, nil); !errors.Is(err, ErrInput) {
		t.Errorf("nil chain id: expected ErrInput, got %v", err)
	}
}

// TestImportKeystoreUpdatesIdentity verifies adopting a foreign blob updates
// the address but leaves the signer locked.
func TestImportKeystoreUpdatesIdentity(t *testing.T) {
	src := newTestSigner(t)
	addr, err := src.Create("abc")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	exported := filepath.Join(t.TempDir(), "exported")
	if err := src.ExportKeystore(exported); err != nil {
		t.Fatalf("ExportKeystore failed: %v", err)
	}

	dst := newTestSigner(t)
	gotAddr, err := dst.ImportKeystore(exported, "abc")
	if err != nil {
		t.Fatalf("ImportKeystore failed: %v", err)
	}
	if gotAddr != addr {
		t.Errorf("imported address %s, want %s", gotAddr.Hex(), addr.Hex())
	}
	if dst.IsUnlocked() {
		t.Error("ImportKeystore must not unlock the signer")
	}
	if dst.Address() != addr {
		t.Error("identity not updated after keystore import")
	}
}
