// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Hash computes the EntryPoint v0.7 userOpHash for op:
//
//	keccak256(abi.encode(hashedOp, entryPoint, chainID))
//
// where hashedOp commits to every field of the record, hashing the three
// dynamic byte fields first:
//
//	keccak256(abi.encode(sender, nonce, keccak256(initCode),
//	    keccak256(callData), accountGasLimits, preVerificationGas,
//	    gasFees, keccak256(paymasterAndData)))
//
// The signature field is intentionally excluded. Every slot is a 32-byte
// big-endian word, so abi.encode reduces to plain concatenation here.
func Hash(op *PackedUserOperation, entryPoint common.Address, chainID *big.Int) common.Hash {
	var inner []byte
	inner = append(inner, common.LeftPadBytes(op.Sender.Bytes(), 32)...)
	inner = append(inner, word32(op.Nonce.Bytes())...)
	inner = append(inner, crypto.Keccak256(op.InitCode)...)
	inner = append(inner, crypto.Keccak256(op.CallData)...)
	inner = append(inner, op.AccountGasLimits[:]...)
	inner = append(inner, word32(op.PreVerificationGas.Bytes())...)
	inner = append(inner, op.GasFees[:]...)
	inner = append(inner, crypto.Keccak256(op.PaymasterAndData)...)

	hashedOp := crypto.Keccak256(inner)

	var outer []byte
	outer = append(outer, hashedOp...)
	outer = append(outer, common.LeftPadBytes(entryPoint.Bytes(), 32)...)
	outer = append(outer, word32(chainID.Bytes())...)

	return common.BytesToHash(crypto.Keccak256(outer))
}

func word32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}
