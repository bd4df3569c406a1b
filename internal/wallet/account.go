// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package wallet tracks the smart contract accounts a signing key operates,
// grouped by network, with JSON persistence. Only account metadata is stored
// here; key material lives in the encrypted keystore.
package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrValidation indicates an account definition that violates the
	// multi-sig constraints.
	ErrValidation = errors.New("invalid account definition")

	// ErrNotFound indicates a lookup for a network or account the wallet
	// does not hold.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicate indicates an attempt to add an account address that
	// already exists on the same network.
	ErrDuplicate = errors.New("account already exists")

	// ErrNotOwner indicates the signing key's address is absent from the
	// account's owner set, so this wallet could never sign for it.
	ErrNotOwner = errors.New("signer is not an account owner")
)

// Account describes one smart contract account on one network.
type Account struct {
	Network         string           `json:"network"`
	ContractAddress common.Address   `json:"contractAddress"`
	Owners          []common.Address `json:"owners"`
	Threshold       int              `json:"threshold"`

	// Guardians enable social recovery; both fields are zero when the
	// account has none.
	Guardians         []common.Address `json:"guardians,omitempty"`
	GuardianThreshold int              `json:"guardianThreshold,omitempty"`
}

// NewAccount builds and validates an account definition.
// The constraints, checked in order:
//
//   - at least one owner
//   - 0 < threshold <= len(owners)
//   - with guardians: 0 < guardianThreshold <= len(guardians)
//   - without guardians: guardianThreshold == 0
func NewAccount(network string, contract common.Address, owners []common.Address, threshold int, guardians []common.Address, guardianThreshold int) (*Account, error) {
	if network == "" {
		return nil, fmt.Errorf("%w: empty network name", ErrValidation)
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: account needs at least one owner", ErrValidation)
	}
	if threshold <= 0 || threshold > len(owners) {
		return nil, fmt.Errorf("%w: threshold %d out of range for %d owner(s)", ErrValidation, threshold, len(owners))
	}
	if len(guardians) > 0 {
		if guardianThreshold <= 0 || guardianThreshold > len(guardians) {
			return nil, fmt.Errorf("%w: guardian threshold %d out of range for %d guardian(s)", ErrValidation, guardianThreshold, len(guardians))
		}
	} else if guardianThreshold != 0 {
		return nil, fmt.Errorf("%w: guardian threshold %d without guardians", ErrValidation, guardianThreshold)
	}

	return &Account{
		Network:           network,
		ContractAddress:   contract,
		Owners:            owners,
		Threshold:         threshold,
		Guardians:         guardians,
		GuardianThreshold: guardianThreshold,
	}, nil
}

// HasOwner reports whether addr is one of the account's owners.
func (a *Account) HasOwner(addr common.Address) bool {
	for _, o := range a.Owners {
		if o == addr {
			return true
		}
	}
	return false
}
