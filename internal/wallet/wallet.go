// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/opsigner/opsigner/internal/fsutil"
)

// Wallet holds the account book for one signing key. All methods are safe
// for concurrent use.
type Wallet struct {
	mu sync.Mutex

	name   string
	path   string
	signer common.Address

	// accounts maps network name to the accounts held on that network.
	accounts map[string][]*Account
}

// walletFile is the on-disk JSON shape.
type walletFile struct {
	Name          string                `json:"walletName"`
	SignerAddress common.Address        `json:"signerAddress"`
	Accounts      map[string][]*Account `json:"accounts"`
}

// New creates a wallet bound to the signing address signer, persisted at
// path. If the file already exists it is loaded; a signer mismatch between
// the file and the argument is rejected.
func New(name, path string, signer common.Address) (*Wallet, error) {
	w := &Wallet{
		name:     name,
		path:     path,
		signer:   signer,
		accounts: make(map[string][]*Account),
	}
	if _, err := os.Stat(path); err == nil {
		if err := w.load(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat wallet file: %w", err)
	}
	return w, nil
}

// Name returns the wallet's name.
func (w *Wallet) Name() string { return w.name }

// Signer returns the signing address this wallet is bound to.
func (w *Wallet) Signer() common.Address { return w.signer }

// Add validates and records an account, then persists the wallet.
// The signing address must appear in the account's owner set.
func (w *Wallet) Add(acct *Account) error {
	if !acct.HasOwner(w.signer) {
		return fmt.Errorf("%w: %s not in owners of %s", ErrNotOwner, w.signer, acct.ContractAddress)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.accounts[acct.Network] {
		if existing.ContractAddress == acct.ContractAddress {
			return fmt.Errorf("%w: %s on %s", ErrDuplicate, acct.ContractAddress, acct.Network)
		}
	}
	w.accounts[acct.Network] = append(w.accounts[acct.Network], acct)

	return w.save()
}

// Get returns the account at contract on network.
func (w *Wallet) Get(network string, contract common.Address) (*Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, acct := range w.accounts[network] {
		if acct.ContractAddress == contract {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, contract, network)
}

// List returns the accounts held on network, in insertion order.
func (w *Wallet) List(network string) []*Account {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]*Account, len(w.accounts[network]))
	copy(out, w.accounts[network])
	return out
}

// Networks returns the names of every network with at least one account.
func (w *Wallet) Networks() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var nets []string
	for name, accts := range w.accounts {
		if len(accts) > 0 {
			nets = append(nets, name)
		}
	}
	return nets
}

// Remove deletes the account at contract on network and persists the
// wallet. Removing the last account on a network drops the network entry.
func (w *Wallet) Remove(network string, contract common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	accts := w.accounts[network]
	for i, acct := range accts {
		if acct.ContractAddress == contract {
			w.accounts[network] = append(accts[:i], accts[i+1:]...)
			if len(w.accounts[network]) == 0 {
				delete(w.accounts, network)
			}
			return w.save()
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrNotFound, contract, network)
}

// Update replaces the account at updated.ContractAddress on its network
// with the (already validated) updated definition and persists the wallet.
func (w *Wallet) Update(updated *Account) error {
	if !updated.HasOwner(w.signer) {
		return fmt.Errorf("%w: %s not in owners of %s", ErrNotOwner, w.signer, updated.ContractAddress)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i, acct := range w.accounts[updated.Network] {
		if acct.ContractAddress == updated.ContractAddress {
			w.accounts[updated.Network][i] = updated
			return w.save()
		}
	}
	return fmt.Errorf("%w: %s on %s", ErrNotFound, updated.ContractAddress, updated.Network)
}

// save writes the wallet file atomically. Caller holds w.mu.
func (w *Wallet) save() error {
	data, err := json.MarshalIndent(walletFile{
		Name:          w.name,
		SignerAddress: w.signer,
		Accounts:      w.accounts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet: %w", err)
	}
	if err := fsutil.WriteFileAtomic(w.path, data); err != nil {
		return fmt.Errorf("write wallet file: %w", err)
	}
	return nil
}

func (w *Wallet) load() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read wallet file: %w", err)
	}
	var f walletFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode wallet file %s: %w", w.path, err)
	}
	if f.SignerAddress != w.signer {
		return fmt.Errorf("wallet file %s is bound to signer %s, not %s", w.path, f.SignerAddress, w.signer)
	}
	if f.Accounts != nil {
		w.accounts = f.Accounts
	}
	return nil
}
