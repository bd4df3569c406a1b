// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestRegistryBasics(t *testing.T) {
	r := NewRegistry()
	if r.Has("sepolia") {
		t.Fatal("empty registry has sepolia")
	}

	r.Add("sepolia", Network{ChainID: 11155111, RPCURL: "https://rpc.sepolia.org"})
	n, err := r.Get("sepolia")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.ChainID != 11155111 {
		t.Errorf("chainID = %d", n.ChainID)
	}

	if _, err := r.Get("mumbai"); !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrNetworkNotFound", err)
	}

	r.Add("mainnet", Network{ChainID: 1, RPCURL: "https://example.invalid"})
	names := r.List()
	if len(names) != 2 || names[0] != "mainnet" || names[1] != "sepolia" {
		t.Errorf("List = %v", names)
	}

	r.Remove("mainnet")
	if r.Has("mainnet") {
		t.Error("mainnet still present after Remove")
	}
	r.Remove("mainnet") // no-op
}

func TestRegistrySetAddresses(t *testing.T) {
	r := NewRegistry()
	r.Add("sepolia", Network{ChainID: 11155111, RPCURL: "https://rpc.sepolia.org"})

	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	factory := common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")

	if err := r.SetEntryPoint("sepolia", entryPoint); err != nil {
		t.Fatalf("SetEntryPoint: %v", err)
	}
	if err := r.SetFactory("sepolia", factory); err != nil {
		t.Fatalf("SetFactory: %v", err)
	}
	n, _ := r.Get("sepolia")
	if n.EntryPoint != entryPoint || n.Factory != factory {
		t.Errorf("network = %+v", n)
	}

	if err := r.SetEntryPoint("mumbai", entryPoint); !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("SetEntryPoint unknown: err = %v, want ErrNetworkNotFound", err)
	}
}

func TestRegistrySaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")

	r := DefaultRegistry()
	entryPoint := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	if err := r.SetEntryPoint("sepolia", entryPoint); err != nil {
		t.Fatalf("SetEntryPoint: %v", err)
	}
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	n, err := loaded.Get("sepolia")
	if err != nil {
		t.Fatalf("Get after load: %v", err)
	}
	if n.ChainID != 11155111 || n.EntryPoint != entryPoint {
		t.Errorf("loaded network = %+v", n)
	}
	if !loaded.Has("mainnet") {
		t.Error("mainnet missing after load")
	}
}

func TestLoadRegistryRejectsEmptyRPC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	data := []byte("networks:\n  broken:\n    chain_id: 5\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err == nil {
		t.Error("registry with empty rpc_url accepted")
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadServerConfig(dir)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Port != DefaultRESTPort {
		t.Errorf("port = %d, want %d", cfg.Port, DefaultRESTPort)
	}
	if cfg.KeystoreFile != filepath.Join(dir, "keystore.blob") {
		t.Errorf("keystore = %s", cfg.KeystoreFile)
	}
	if !cfg.ShouldWatchStore() {
		t.Error("watch_store should default to true")
	}
}

func TestLoadServerConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("port: 9000\nkeystore_file: /abs/keys.blob\nwallet_file: book.json\nlock_timeout: 1h\nwatch_store: false\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServerConfig(dir)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.KeystoreFile != "/abs/keys.blob" {
		t.Errorf("absolute keystore path was rewritten: %s", cfg.KeystoreFile)
	}
	if cfg.WalletFile != filepath.Join(dir, "book.json") {
		t.Errorf("wallet path = %s", cfg.WalletFile)
	}
	if cfg.LockTimeout != "1h" {
		t.Errorf("lock timeout = %s", cfg.LockTimeout)
	}
	if cfg.ShouldWatchStore() {
		t.Error("watch_store false was not honored")
	}
}

func TestParseLockTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "0", want: 0},
		{in: "15m", want: 15 * time.Minute},
		{in: "1h", want: time.Hour},
		{in: "-5m", wantErr: true},
		{in: "bogus", wantErr: true},
	}
	for _, tc := range tests {
		d, err := ParseLockTimeout(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLockTimeout(%q) accepted", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLockTimeout(%q): %v", tc.in, err)
			continue
		}
		if d != tc.want {
			t.Errorf("ParseLockTimeout(%q) = %v, want %v", tc.in, d, tc.want)
		}
	}
}
