// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package keystore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/opsigner/opsigner/internal/crypto"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "keystore"))
}

func TestCreateAndUnlock(t *testing.T) {
	store := newTestStore(t)

	if store.Exists() {
		t.Fatal("keystore file should not exist before Create")
	}

	addr, err := store.Create("abc")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if addr == (common.Address{}) {
		t.Fatal("Create returned zero address")
	}
	if !store.Exists() {
		t.Fatal("keystore file missing after Create")
	}

	raw, gotAddr, err := store.Unlock("abc")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	defer crypto.ZeroBytes(raw)

	if gotAddr != addr {
		t.Errorf("Unlock address %s does not match Create address %s", gotAddr.Hex(), addr.Hex())
	}
	if len(raw) != 32 {
		t.Errorf("expected 32-byte raw key, got %d", len(raw))
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("abc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, _, err := store.Unlock("xyz")
	if !errors.Is(err, crypto.ErrIntegrity) {
		t.Errorf("expected ErrIntegrity for wrong password, got %v", err)
	}
}

func TestUnlockMissingFile(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Unlock("abc")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestImportKey(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	rawHex := "0x" + hex.EncodeToString(ethcrypto.FromECDSA(key))
	wantAddr := ethcrypto.PubkeyToAddress(key.PublicKey)

	tests := []struct {
		name    string
		rawHex  string
		wantErr error
	}{
		{"with 0x prefix", rawHex, nil},
		{"without prefix", rawHex[2:], nil},
		{"bad hex", "0xzznotahexkey", crypto.ErrFormat},
		{"odd length", "0xabc", crypto.ErrFormat},
		{"out of range", "0x" + strings.Repeat("ff", 32), crypto.ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			addr, err := store.ImportKey(tt.rawHex, "pw")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ImportKey failed: %v", err)
			}
			if addr != wantAddr {
				t.Errorf("address mismatch: got %s, want %s", addr.Hex(), wantAddr.Hex())
			}

			raw, _, err := store.Unlock("pw")
			if err != nil {
				t.Fatalf("Unlock after import failed: %v", err)
			}
			defer crypto.ZeroBytes(raw)
			if !bytes.Equal(raw, ethcrypto.FromECDSA(key)) {
				t.Error("unlocked key does not match imported key")
			}
		})
	}
}

func TestExportAndImportKeystore(t *testing.T) {
	store := newTestStore(t)
	addr, err := store.Create("abc")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "exported")
	if err := store.Export(dst); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Export is byte-for-byte.
	orig, _ := os.ReadFile(store.Path())
	exported, _ := os.ReadFile(dst)
	if !bytes.Equal(orig, exported) {
		t.Error("exported blob differs from source")
	}

	// Adopt the exported blob into a fresh store.
	other := newTestStore(t)
	gotAddr, err := other.ImportKeystore(dst, "abc")
	if err != nil {
		t.Fatalf("ImportKeystore failed: %v", err)
	}
	if gotAddr != addr {
		t.Errorf("imported address %s, want %s", gotAddr.Hex(), addr.Hex())
	}
}

func TestImportKeystoreWrongPasswordDoesNotCommit(t *testing.T) {
	src := newTestStore(t)
	if _, err := src.Create("abc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dst := newTestStore(t)
	_, err := dst.ImportKeystore(src.Path(), "wrong")
	if !errors.Is(err, crypto.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if dst.Exists() {
		t.Error("failed import must not write the keystore file")
	}
}

func TestExportMissingSource(t *testing.T) {
	store := newTestStore(t)
	err := store.Export(filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateReplacesBlobEntirely(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("abc"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	first, _ := os.ReadFile(store.Path())

	if _, err := store.Create("abc"); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	second, _ := os.ReadFile(store.Path())

	if bytes.Equal(first, second) {
		t.Error("re-creation must produce a fully fresh blob (new salt/iv/mac)")
	}
}
