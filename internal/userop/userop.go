// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package userop assembles ERC-4337 PackedUserOperation records.
//
// The two packed 32-byte fields (accountGasLimits, gasFees) are big-endian
// concatenations of two 128-bit halves; the hash commits to every field, so
// a record must be fully assembled before it is hashed and signed. The
// builder performs no network I/O: nonce and fee values are fetched by the
// chain collaborator and passed in by the caller.
package userop

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInput indicates a malformed builder argument, e.g. a gas or fee value
// that does not fit in 128 bits.
var ErrInput = errors.New("invalid user operation input")

// Default gas values used when the caller supplies no override.
var (
	DefaultCallGasLimit         = uint256.NewInt(100_000)
	DefaultVerificationGasLimit = uint256.NewInt(150_000)
	DefaultPreVerificationGas   = uint256.NewInt(21_000)
)

// PackedUserOperation is the fixed-layout operation record handed to the
// EntryPoint (v0.7 packed format).
type PackedUserOperation struct {
	Sender common.Address
	Nonce  *uint256.Int

	// InitCode is empty for already-deployed accounts, the only kind this
	// backend targets.
	InitCode []byte

	CallData []byte

	// AccountGasLimits is verificationGasLimit(16B) || callGasLimit(16B),
	// big-endian.
	AccountGasLimits [32]byte

	PreVerificationGas *uint256.Int

	// GasFees is maxPriorityFeePerGas(16B) || maxFeePerGas(16B), big-endian.
	GasFees [32]byte

	PaymasterAndData []byte

	// Signature is empty until the record hash has been signed.
	Signature []byte
}

// Overrides carries the optional Build parameters. Nil integer fields fall
// back to defaults (gas limits) or zero (nonce, fees); nonce and fees are
// expected to have been fetched from the chain before Build is called.
type Overrides struct {
	Nonce                *uint256.Int
	CallGasLimit         *uint256.Int
	VerificationGasLimit *uint256.Int
	PreVerificationGas   *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// Build assembles a PackedUserOperation for sender executing callData.
// Returns ErrInput if any value destined for a packed half exceeds 128 bits.
func Build(sender common.Address, callData []byte, ov Overrides) (*PackedUserOperation, error) {
	nonce := orZero(ov.Nonce)
	callGas := orDefault(ov.CallGasLimit, DefaultCallGasLimit)
	verificationGas := orDefault(ov.VerificationGasLimit, DefaultVerificationGasLimit)
	preVerificationGas := orDefault(ov.PreVerificationGas, DefaultPreVerificationGas)
	maxFee := orZero(ov.MaxFeePerGas)
	maxPriorityFee := orZero(ov.MaxPriorityFeePerGas)

	accountGasLimits, err := PackPair(verificationGas, callGas)
	if err != nil {
		return nil, fmt.Errorf("account gas limits: %w", err)
	}
	gasFees, err := PackPair(maxPriorityFee, maxFee)
	if err != nil {
		return nil, fmt.Errorf("gas fees: %w", err)
	}

	return &PackedUserOperation{
		Sender:             sender,
		Nonce:              nonce,
		InitCode:           nil,
		CallData:           callData,
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: preVerificationGas,
		GasFees:            gasFees,
		PaymasterAndData:   ov.PaymasterAndData,
		Signature:          ov.Signature,
	}, nil
}

// PackPair encodes (hi << 128) | lo as 32 big-endian bytes.
// Returns ErrInput if either half exceeds 128 bits.
func PackPair(hi, lo *uint256.Int) ([32]byte, error) {
	var out [32]byte
	if hi.BitLen() > 128 {
		return out, fmt.Errorf("%w: value %s exceeds 128 bits", ErrInput, hi)
	}
	if lo.BitLen() > 128 {
		return out, fmt.Errorf("%w: value %s exceeds 128 bits", ErrInput, lo)
	}
	word := new(uint256.Int).Lsh(hi, 128)
	word.Or(word, lo)
	out = word.Bytes32()
	return out, nil
}

// UnpackPair decodes a packed 32-byte field back into its 128-bit halves.
func UnpackPair(packed [32]byte) (hi, lo *uint256.Int) {
	word := new(uint256.Int).SetBytes32(packed[:])
	hi = new(uint256.Int).Rsh(word, 128)
	lo = new(uint256.Int).And(word, mask128)
	return hi, lo
}

var mask128 = func() *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	return m.SubUint64(m, 1)
}()

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func orDefault(v, def *uint256.Int) *uint256.Int {
	if v == nil {
		return def
	}
	return v
}
