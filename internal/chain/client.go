// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package chain provides the read-only RPC collaborator the operation
// builder depends on: account nonces from the EntryPoint, balances,
// deployment checks and fee suggestions. Callers construct a client
// explicitly and inject it; nothing here dials lazily.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// ErrRPC wraps failures talking to the node.
var ErrRPC = errors.New("rpc request failed")

// getNonceSelector is the 4-byte selector of EntryPoint's
// getNonce(address,uint192).
var getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]

// Reader is the chain surface the rest of the backend consumes. It is
// satisfied by *Client and by test fakes.
type Reader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
	AccountNonce(ctx context.Context, entryPoint, sender common.Address, key *uint256.Int) (*uint256.Int, error)
	SuggestFees(ctx context.Context) (maxFee, maxPriorityFee *uint256.Int, err error)
}

// Client wraps an ethclient connection to one network.
type Client struct {
	ec *ethclient.Client
}

var _ Reader = (*Client)(nil)

// Dial connects to the node at rawurl.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrRPC, rawurl, err)
	}
	return &Client{ec: ec}, nil
}

// NewClient wraps an already-connected ethclient, mainly for tests.
func NewClient(ec *ethclient.Client) *Client {
	return &Client{ec: ec}
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.ec.Close()
}

// ChainID returns the node's chain identifier.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrRPC, err)
	}
	return id, nil
}

// Balance returns addr's balance in wei at the latest block.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s: %v", ErrRPC, addr, err)
	}
	return bal, nil
}

// IsDeployed reports whether addr holds contract code.
func (c *Client) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.ec.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("%w: code at %s: %v", ErrRPC, addr, err)
	}
	return len(code) > 0, nil
}

// AccountNonce fetches sender's operation nonce from the EntryPoint via
// getNonce(address,uint192). A nil key reads nonce key zero.
func (c *Client) AccountNonce(ctx context.Context, entryPoint, sender common.Address, key *uint256.Int) (*uint256.Int, error) {
	if key == nil {
		key = new(uint256.Int)
	}
	keyWord := key.Bytes32()

	data := make([]byte, 0, 4+64)
	data = append(data, getNonceSelector...)
	data = append(data, common.LeftPadBytes(sender.Bytes(), 32)...)
	data = append(data, keyWord[:]...)

	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: getNonce for %s: %v", ErrRPC, sender, err)
	}
	if len(out) != 32 {
		return nil, fmt.Errorf("%w: getNonce returned %d bytes, want 32", ErrRPC, len(out))
	}
	return new(uint256.Int).SetBytes32(out), nil
}

// SuggestFees returns EIP-1559 fee values: maxFeePerGas as twice the
// latest base fee plus the suggested tip. On pre-1559 chains (no base
// fee) both values fall back to the legacy gas price.
func (c *Client) SuggestFees(ctx context.Context) (*uint256.Int, *uint256.Int, error) {
	head, err := c.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: latest header: %v", ErrRPC, err)
	}

	if head.BaseFee == nil || head.BaseFee.Sign() == 0 {
		gasPrice, err := c.ec.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: gas price: %v", ErrRPC, err)
		}
		legacy, overflow := uint256.FromBig(gasPrice)
		if overflow {
			return nil, nil, fmt.Errorf("%w: gas price overflows uint256", ErrRPC)
		}
		return legacy, legacy.Clone(), nil
	}

	tip, err := c.ec.SuggestGasTipCap(ctx)
	if err != nil {
		// Some nodes do not support eth_maxPriorityFeePerGas.
		tip = big.NewInt(1_500_000_000) // 1.5 gwei
	}

	maxPriority, overflow := uint256.FromBig(tip)
	if overflow {
		return nil, nil, fmt.Errorf("%w: tip overflows uint256", ErrRPC)
	}
	baseFee, overflow := uint256.FromBig(head.BaseFee)
	if overflow {
		return nil, nil, fmt.Errorf("%w: base fee overflows uint256", ErrRPC)
	}

	maxFee := new(uint256.Int).Lsh(baseFee, 1)
	maxFee.Add(maxFee, maxPriority)
	return maxFee, maxPriority, nil
}
