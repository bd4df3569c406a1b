// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// Package config holds the network registry and daemon settings. The
// registry is plain injected state: callers construct one (or load it from
// YAML) and pass it where it is needed.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/opsigner/opsigner/internal/fsutil"
)

// ErrNetworkNotFound indicates a lookup for a network name the registry
// does not hold.
var ErrNetworkNotFound = errors.New("network not configured")

// Network describes one chain endpoint. EntryPoint and Factory stay zero
// until the corresponding contracts are known.
type Network struct {
	ChainID    uint64         `json:"chainId"`
	RPCURL     string         `json:"rpcUrl"`
	EntryPoint common.Address `json:"entryPointAddress,omitempty"`
	Factory    common.Address `json:"factoryAddress,omitempty"`
	Label      string         `json:"name,omitempty"`
}

// yamlNetwork is the YAML shape of a Network entry; addresses are hex
// strings because the YAML codec does not use encoding.TextMarshaler.
type yamlNetwork struct {
	ChainID    uint64 `yaml:"chain_id"`
	RPCURL     string `yaml:"rpc_url"`
	EntryPoint string `yaml:"entrypoint_address,omitempty"`
	Factory    string `yaml:"factory_address,omitempty"`
	Label      string `yaml:"name,omitempty"`
}

func (n Network) toYAML() yamlNetwork {
	y := yamlNetwork{ChainID: n.ChainID, RPCURL: n.RPCURL, Label: n.Label}
	if n.EntryPoint != (common.Address{}) {
		y.EntryPoint = n.EntryPoint.Hex()
	}
	if n.Factory != (common.Address{}) {
		y.Factory = n.Factory.Hex()
	}
	return y
}

func (y yamlNetwork) toNetwork() (Network, error) {
	n := Network{ChainID: y.ChainID, RPCURL: y.RPCURL, Label: y.Label}
	if y.EntryPoint != "" {
		if !common.IsHexAddress(y.EntryPoint) {
			return Network{}, fmt.Errorf("invalid entrypoint address %q", y.EntryPoint)
		}
		n.EntryPoint = common.HexToAddress(y.EntryPoint)
	}
	if y.Factory != "" {
		if !common.IsHexAddress(y.Factory) {
			return Network{}, fmt.Errorf("invalid factory address %q", y.Factory)
		}
		n.Factory = common.HexToAddress(y.Factory)
	}
	return n, nil
}

// Registry maps network names to their configuration. Safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	networks map[string]Network
}

// registryFile is the YAML shape of a persisted registry.
type registryFile struct {
	Networks map[string]yamlNetwork `yaml:"networks"`
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{networks: make(map[string]Network)}
}

// DefaultRegistry returns a registry preloaded with the well-known public
// networks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Add("mainnet", Network{ChainID: 1, RPCURL: "https://eth.llamarpc.com", Label: "Ethereum Mainnet"})
	r.Add("sepolia", Network{ChainID: 11155111, RPCURL: "https://rpc.sepolia.org", Label: "Sepolia Testnet"})
	return r
}

// Add inserts or replaces a network entry.
func (r *Registry) Add(name string, n Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[name] = n
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (Network, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[name]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrNetworkNotFound, name)
	}
	return n, nil
}

// Has reports whether name is configured.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.networks[name]
	return ok
}

// Remove deletes an entry; removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.networks, name)
}

// List returns the configured network names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetEntryPoint records the EntryPoint contract address for a network.
func (r *Registry) SetEntryPoint(name string, addr common.Address) error {
	return r.update(name, func(n *Network) { n.EntryPoint = addr })
}

// SetFactory records the account factory address for a network.
func (r *Registry) SetFactory(name string, addr common.Address) error {
	return r.update(name, func(n *Network) { n.Factory = addr })
}

func (r *Registry) update(name string, f func(*Network)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.networks[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNetworkNotFound, name)
	}
	f(&n)
	r.networks[name] = n
	return nil
}

// Save writes the registry to path as YAML, atomically.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	file := registryFile{Networks: make(map[string]yamlNetwork, len(r.networks))}
	for name, n := range r.networks {
		file.Networks[name] = n.toYAML()
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode networks: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write networks file: %w", err)
	}
	return nil
}

// LoadRegistry reads a registry from a YAML file. Entries with an empty
// RPC URL are rejected.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse networks file %s: %w", path, err)
	}
	r := NewRegistry()
	for name, y := range file.Networks {
		if y.RPCURL == "" {
			return nil, fmt.Errorf("network %q: rpc_url is required", name)
		}
		n, err := y.toNetwork()
		if err != nil {
			return nil, fmt.Errorf("network %q: %w", name, err)
		}
		r.networks[name] = n
	}
	return r, nil
}
