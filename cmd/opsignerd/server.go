// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/opsigner/opsigner/internal/chain"
	"github.com/opsigner/opsigner/internal/config"
	"github.com/opsigner/opsigner/internal/crypto"
	"github.com/opsigner/opsigner/internal/keystore"
	"github.com/opsigner/opsigner/internal/signer"
	"github.com/opsigner/opsigner/internal/userop"
	"github.com/opsigner/opsigner/internal/wallet"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// Server is the opsignerd REST surface around one signer identity.
type Server struct {
	signer   *signer.Signer
	registry *config.Registry
	cfg      *config.ServerConfig
	auditLog *AuditLogger
	apiToken string

	walletMu sync.Mutex
	wallet   *wallet.Wallet

	chainsMu sync.Mutex
	chains   map[string]chain.Reader
	// dial creates a chain reader for an RPC URL; tests substitute fakes.
	dial func(ctx context.Context, rawurl string) (chain.Reader, error)

	sessionTimeout time.Duration // inactivity timeout (0 = never auto-lock)
	sessionTimerMu sync.Mutex    // protects sessionTimer across goroutines
	sessionTimer   *time.Timer
	lastActivity   atomic.Int64 // UnixNano of last activity
}

// NewServer wires a server around the given signer and configuration.
func NewServer(sgn *signer.Signer, registry *config.Registry, cfg *config.ServerConfig, auditLog *AuditLogger, apiToken string, sessionTimeout time.Duration) *Server {
	return &Server{
		signer:         sgn,
		registry:       registry,
		cfg:            cfg,
		auditLog:       auditLog,
		apiToken:       apiToken,
		chains:         make(map[string]chain.Reader),
		dial:           func(ctx context.Context, rawurl string) (chain.Reader, error) { return chain.Dial(ctx, rawurl) },
		sessionTimeout: sessionTimeout,
	}
}

// resetSessionTimer resets (or starts) the inactivity timer.
// When the timer fires, the signer is locked and its key zeroed.
func (s *Server) resetSessionTimer() {
	if s.sessionTimeout <= 0 {
		return
	}
	s.lastActivity.Store(time.Now().UnixNano())
	s.sessionTimerMu.Lock()
	defer s.sessionTimerMu.Unlock()
	if s.sessionTimer != nil {
		s.sessionTimer.Reset(s.sessionTimeout)
	} else {
		s.sessionTimer = time.AfterFunc(s.sessionTimeout, func() {
			// Guard against stale callback: if activity occurred after this
			// timer was scheduled, re-arm instead of locking.
			if time.Since(time.Unix(0, s.lastActivity.Load())) < s.sessionTimeout {
				s.resetSessionTimer()
				return
			}
			fmt.Printf("Session timeout (%s of inactivity) - locking signer\n", s.sessionTimeout)
			s.lockSigner("timeout")
		})
	}
}

// stopSessionTimer stops the inactivity timer if running.
func (s *Server) stopSessionTimer() {
	s.sessionTimerMu.Lock()
	defer s.sessionTimerMu.Unlock()
	if s.sessionTimer != nil {
		s.sessionTimer.Stop()
		s.sessionTimer = nil
	}
}

// lockSigner locks the signer and records why.
func (s *Server) lockSigner(reason string) {
	addr := s.signer.Address()
	s.signer.Lock()
	s.stopSessionTimer()
	if s.auditLog != nil {
		s.auditLog.LogLock(addr.Hex(), reason)
	}
}

// requireAuth validates the Bearer token before passing the request on.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			if s.auditLog != nil {
				s.auditLog.LogAuthFailed(r.RemoteAddr, "missing_credentials")
			}
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) != 1 {
			if s.auditLog != nil {
				s.auditLog.LogAuthFailed(r.RemoteAddr, "invalid_credentials")
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		s.resetSessionTimer()
		next(w, r)
	}
}

// Routes returns the daemon's HTTP mux. All endpoints except /health
// require the API token.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("/address", s.requireAuth(s.handleAddress))
	mux.HandleFunc("/unlock", s.requireAuth(s.handleUnlock))
	mux.HandleFunc("/lock", s.requireAuth(s.handleLock))
	mux.HandleFunc("/sign/message", s.requireAuth(s.handleSignMessage))
	mux.HandleFunc("/sign/ophash", s.requireAuth(s.handleSignOpHash))
	mux.HandleFunc("/sign/transaction", s.requireAuth(s.handleSignTransaction))
	mux.HandleFunc("/operation/build", s.requireAuth(s.handleBuildOperation))
	mux.HandleFunc("/accounts", s.requireAuth(s.handleAccounts))
	mux.HandleFunc("/networks", s.requireAuth(s.handleNetworks))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	type statusResponse struct {
		Unlocked      bool     `json:"unlocked"`
		Address       string   `json:"address,omitempty"`
		KeystoreFound bool     `json:"keystore_found"`
		Networks      []string `json:"networks"`
	}
	resp := statusResponse{
		Unlocked: s.signer.IsUnlocked(),
		Networks: s.registry.List(),
	}
	if addr := s.signer.Address(); addr != (common.Address{}) {
		resp.Address = addr.Hex()
	}
	if _, err := os.Stat(s.cfg.KeystoreFile); err == nil {
		resp.KeystoreFound = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	addr := s.signer.Address()
	if addr == (common.Address{}) {
		writeError(w, http.StatusNotFound, "no key loaded; unlock first")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	addr, err := s.signer.Unlock(req.Password)
	if err != nil {
		if s.auditLog != nil {
			s.auditLog.LogUnlockFailed(r.RemoteAddr, err.Error())
		}
		switch {
		case errors.Is(err, keystore.ErrNotFound):
			writeError(w, http.StatusNotFound, "keystore not found")
		case errors.Is(err, crypto.ErrIntegrity):
			writeError(w, http.StatusUnauthorized, "wrong password or corrupted keystore")
		default:
			writeError(w, http.StatusInternalServerError, "unlock failed: %v", err)
		}
		return
	}

	if err := s.openWallet(addr); err != nil {
		s.signer.Lock()
		writeError(w, http.StatusInternalServerError, "open wallet: %v", err)
		return
	}

	if s.auditLog != nil {
		s.auditLog.LogUnlock(addr.Hex())
	}
	s.resetSessionTimer()
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex()})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	s.lockSigner("request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

// openWallet loads (or creates) the wallet file bound to addr.
func (s *Server) openWallet(addr common.Address) error {
	s.walletMu.Lock()
	defer s.walletMu.Unlock()
	if s.wallet != nil && s.wallet.Signer() == addr {
		return nil
	}
	wlt, err := wallet.New("default", s.cfg.WalletFile, addr)
	if err != nil {
		return err
	}
	s.wallet = wlt
	return nil
}

func (s *Server) currentWallet() *wallet.Wallet {
	s.walletMu.Lock()
	defer s.walletMu.Unlock()
	return s.wallet
}

type signatureResponse struct {
	Address   string `json:"address"`
	Hash      string `json:"hash"`
	R         string `json:"r"`
	S         string `json:"s"`
	V         byte   `json:"v"`
	Signature string `json:"signature"`
}

func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Message    string `json:"message"`
		MessageHex string `json:"message_hex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	var msg []byte
	switch {
	case req.MessageHex != "":
		data, err := hexutil.Decode(req.MessageHex)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid message_hex: %v", err)
			return
		}
		msg = data
	case req.Message != "":
		msg = []byte(req.Message)
	default:
		writeError(w, http.StatusBadRequest, "message or message_hex required")
		return
	}

	sig, err := s.signer.SignMessage(msg)
	if err != nil {
		s.writeSignError(w, err)
		return
	}
	if s.auditLog != nil {
		s.auditLog.LogSignMessage(s.signer.Address().Hex(), sig.Hash.Hex())
	}
	writeJSON(w, http.StatusOK, signatureResponse{
		Address:   s.signer.Address().Hex(),
		Hash:      sig.Hash.Hex(),
		R:         hexutil.Encode(sig.R[:]),
		S:         hexutil.Encode(sig.S[:]),
		V:         sig.V,
		Signature: hexutil.Encode(sig.Signature),
	})
}

func (s *Server) handleSignOpHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	hash, err := hexutil.Decode(req.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hash: %v", err)
		return
	}

	sig, err := s.signer.SignOperationHash(hash)
	if err != nil {
		s.writeSignError(w, err)
		return
	}
	if s.auditLog != nil {
		s.auditLog.LogSignOpHash(s.signer.Address().Hex(), req.Hash)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":   s.signer.Address().Hex(),
		"hash":      req.Hash,
		"signature": hexutil.Encode(sig),
	})
}

func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Network  string `json:"network"`
		RawTxHex string `json:"raw_tx_hex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	net, err := s.registry.Get(req.Network)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	raw, err := hexutil.Decode(req.RawTxHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid raw_tx_hex: %v", err)
		return
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		writeError(w, http.StatusBadRequest, "decode transaction: %v", err)
		return
	}

	signed, err := s.signer.SignTransaction(tx, new(uint256.Int).SetUint64(net.ChainID).ToBig())
	if err != nil {
		s.writeSignError(w, err)
		return
	}
	encoded, err := signed.MarshalBinary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode signed transaction: %v", err)
		return
	}
	if s.auditLog != nil {
		s.auditLog.LogSignMessage(s.signer.Address().Hex(), signed.Hash().Hex())
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"tx_hash":       signed.Hash().Hex(),
		"signed_tx_hex": hexutil.Encode(encoded),
	})
}

// writeSignError maps signer errors onto HTTP statuses and audits the
// failure.
func (s *Server) writeSignError(w http.ResponseWriter, err error) {
	if s.auditLog != nil {
		s.auditLog.LogSignFailed(s.signer.Address().Hex(), err.Error())
	}
	switch {
	case errors.Is(err, signer.ErrLocked):
		writeError(w, http.StatusForbidden, "signer is locked")
	case errors.Is(err, signer.ErrInput):
		writeError(w, http.StatusBadRequest, "%v", err)
	default:
		writeError(w, http.StatusInternalServerError, "signing failed: %v", err)
	}
}

// chainFor returns a cached chain reader for the named network, dialing on
// first use and verifying the node's chain id against the registry.
func (s *Server) chainFor(ctx context.Context, name string) (chain.Reader, config.Network, error) {
	net, err := s.registry.Get(name)
	if err != nil {
		return nil, config.Network{}, err
	}

	s.chainsMu.Lock()
	defer s.chainsMu.Unlock()
	if c, ok := s.chains[name]; ok {
		return c, net, nil
	}

	c, err := s.dial(ctx, net.RPCURL)
	if err != nil {
		return nil, net, err
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, net, err
	}
	if id.Uint64() != net.ChainID {
		return nil, net, fmt.Errorf("node reports chain id %s, config says %d", id, net.ChainID)
	}
	s.chains[name] = c
	return c, net, nil
}

type buildOperationRequest struct {
	Network     string `json:"network"`
	Sender      string `json:"sender"`
	CallDataHex string `json:"call_data_hex"`
	Sign        bool   `json:"sign"`

	// Optional overrides; zero-valued fields are fetched or defaulted.
	Nonce                *uint64 `json:"nonce,omitempty"`
	CallGasLimit         *uint64 `json:"call_gas_limit,omitempty"`
	VerificationGasLimit *uint64 `json:"verification_gas_limit,omitempty"`
	PreVerificationGas   *uint64 `json:"pre_verification_gas,omitempty"`
	MaxFeePerGas         *uint64 `json:"max_fee_per_gas,omitempty"`
	MaxPriorityFeePerGas *uint64 `json:"max_priority_fee_per_gas,omitempty"`
}

type operationJSON struct {
	Sender             string `json:"sender"`
	Nonce              string `json:"nonce"`
	InitCode           string `json:"init_code"`
	CallData           string `json:"call_data"`
	AccountGasLimits   string `json:"account_gas_limits"`
	PreVerificationGas string `json:"pre_verification_gas"`
	GasFees            string `json:"gas_fees"`
	PaymasterAndData   string `json:"paymaster_and_data"`
	Signature          string `json:"signature"`
}

func operationToJSON(op *userop.PackedUserOperation) operationJSON {
	return operationJSON{
		Sender:             op.Sender.Hex(),
		Nonce:              op.Nonce.Dec(),
		InitCode:           hexutil.Encode(op.InitCode),
		CallData:           hexutil.Encode(op.CallData),
		AccountGasLimits:   hexutil.Encode(op.AccountGasLimits[:]),
		PreVerificationGas: op.PreVerificationGas.Dec(),
		GasFees:            hexutil.Encode(op.GasFees[:]),
		PaymasterAndData:   hexutil.Encode(op.PaymasterAndData),
		Signature:          hexutil.Encode(op.Signature),
	}
}

func optU256(v *uint64) *uint256.Int {
	if v == nil {
		return nil
	}
	return uint256.NewInt(*v)
}

// handleBuildOperation assembles a PackedUserOperation for a registered
// contract account: nonce and fees come from the chain unless overridden,
// and the record hash is signed when requested.
func (s *Server) handleBuildOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req buildOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if !common.IsHexAddress(req.Sender) {
		writeError(w, http.StatusBadRequest, "invalid sender address")
		return
	}
	sender := common.HexToAddress(req.Sender)

	wlt := s.currentWallet()
	if wlt == nil {
		writeError(w, http.StatusForbidden, "unlock first to load the account book")
		return
	}
	if _, err := wlt.Get(req.Network, sender); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	callData, err := hexutil.Decode(req.CallDataHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid call_data_hex: %v", err)
		return
	}

	client, net, err := s.chainFor(r.Context(), req.Network)
	if err != nil {
		writeError(w, http.StatusBadGateway, "chain access: %v", err)
		return
	}
	if net.EntryPoint == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "network %q has no entrypoint configured", req.Network)
		return
	}

	nonce := optU256(req.Nonce)
	if nonce == nil {
		nonce, err = client.AccountNonce(r.Context(), net.EntryPoint, sender, nil)
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetch nonce: %v", err)
			return
		}
	}
	maxFee := optU256(req.MaxFeePerGas)
	maxPriority := optU256(req.MaxPriorityFeePerGas)
	if maxFee == nil || maxPriority == nil {
		fetchedMax, fetchedPriority, err := client.SuggestFees(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetch fees: %v", err)
			return
		}
		if maxFee == nil {
			maxFee = fetchedMax
		}
		if maxPriority == nil {
			maxPriority = fetchedPriority
		}
	}

	op, err := userop.Build(sender, callData, userop.Overrides{
		Nonce:                nonce,
		CallGasLimit:         optU256(req.CallGasLimit),
		VerificationGasLimit: optU256(req.VerificationGasLimit),
		PreVerificationGas:   optU256(req.PreVerificationGas),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "build operation: %v", err)
		return
	}

	chainID := new(uint256.Int).SetUint64(net.ChainID).ToBig()
	opHash := userop.Hash(op, net.EntryPoint, chainID)

	type buildResponse struct {
		Operation operationJSON `json:"operation"`
		Hash      string        `json:"hash"`
		Signature string        `json:"signature,omitempty"`
	}
	resp := buildResponse{Hash: opHash.Hex()}

	if req.Sign {
		sig, err := s.signer.SignOperationHash(opHash.Bytes())
		if err != nil {
			s.writeSignError(w, err)
			return
		}
		op.Signature = sig
		resp.Signature = hexutil.Encode(sig)
		if s.auditLog != nil {
			s.auditLog.LogSignOpHash(s.signer.Address().Hex(), opHash.Hex())
		}
	}
	resp.Operation = operationToJSON(op)
	writeJSON(w, http.StatusOK, resp)
}

type accountJSON struct {
	Network           string   `json:"network"`
	ContractAddress   string   `json:"contract_address"`
	Owners            []string `json:"owners"`
	Threshold         int      `json:"threshold"`
	Guardians         []string `json:"guardians,omitempty"`
	GuardianThreshold int      `json:"guardian_threshold,omitempty"`
}

func accountToJSON(a *wallet.Account) accountJSON {
	out := accountJSON{
		Network:           a.Network,
		ContractAddress:   a.ContractAddress.Hex(),
		Threshold:         a.Threshold,
		GuardianThreshold: a.GuardianThreshold,
	}
	for _, o := range a.Owners {
		out.Owners = append(out.Owners, o.Hex())
	}
	for _, g := range a.Guardians {
		out.Guardians = append(out.Guardians, g.Hex())
	}
	return out
}

func parseAddressList(in []string, kind string) ([]common.Address, error) {
	var out []common.Address
	for _, s := range in {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid %s address %q", kind, s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	wlt := s.currentWallet()
	if wlt == nil {
		writeError(w, http.StatusForbidden, "unlock first to load the account book")
		return
	}

	switch r.Method {
	case http.MethodGet:
		network := r.URL.Query().Get("network")
		var accounts []accountJSON
		if network != "" {
			for _, a := range wlt.List(network) {
				accounts = append(accounts, accountToJSON(a))
			}
		} else {
			for _, net := range wlt.Networks() {
				for _, a := range wlt.List(net) {
					accounts = append(accounts, accountToJSON(a))
				}
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})

	case http.MethodPost:
		var req accountJSON
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if !s.registry.Has(req.Network) {
			writeError(w, http.StatusBadRequest, "network %q not configured", req.Network)
			return
		}
		if !common.IsHexAddress(req.ContractAddress) {
			writeError(w, http.StatusBadRequest, "invalid contract_address")
			return
		}
		owners, err := parseAddressList(req.Owners, "owner")
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		guardians, err := parseAddressList(req.Guardians, "guardian")
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		acct, err := wallet.NewAccount(req.Network, common.HexToAddress(req.ContractAddress), owners, req.Threshold, guardians, req.GuardianThreshold)
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err := wlt.Add(acct); err != nil {
			switch {
			case errors.Is(err, wallet.ErrDuplicate):
				writeError(w, http.StatusConflict, "%v", err)
			case errors.Is(err, wallet.ErrNotOwner):
				writeError(w, http.StatusBadRequest, "%v", err)
			default:
				writeError(w, http.StatusInternalServerError, "%v", err)
			}
			return
		}
		if s.auditLog != nil {
			s.auditLog.LogAccountAdded(req.Network, acct.ContractAddress.Hex())
		}
		writeJSON(w, http.StatusCreated, accountToJSON(acct))

	case http.MethodDelete:
		network := r.URL.Query().Get("network")
		address := r.URL.Query().Get("address")
		if network == "" || !common.IsHexAddress(address) {
			writeError(w, http.StatusBadRequest, "network and address query parameters required")
			return
		}
		if err := wlt.Remove(network, common.HexToAddress(address)); err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				writeError(w, http.StatusNotFound, "%v", err)
			} else {
				writeError(w, http.StatusInternalServerError, "%v", err)
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, POST or DELETE required")
	}
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		type networkJSON struct {
			Name       string `json:"name"`
			ChainID    uint64 `json:"chain_id"`
			RPCURL     string `json:"rpc_url"`
			EntryPoint string `json:"entrypoint_address,omitempty"`
			Factory    string `json:"factory_address,omitempty"`
		}
		var nets []networkJSON
		for _, name := range s.registry.List() {
			n, err := s.registry.Get(name)
			if err != nil {
				continue
			}
			nj := networkJSON{Name: name, ChainID: n.ChainID, RPCURL: n.RPCURL}
			if n.EntryPoint != (common.Address{}) {
				nj.EntryPoint = n.EntryPoint.Hex()
			}
			if n.Factory != (common.Address{}) {
				nj.Factory = n.Factory.Hex()
			}
			nets = append(nets, nj)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"networks": nets})

	case http.MethodPost:
		var req struct {
			Name       string `json:"name"`
			ChainID    uint64 `json:"chain_id"`
			RPCURL     string `json:"rpc_url"`
			EntryPoint string `json:"entrypoint_address"`
			Factory    string `json:"factory_address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Name == "" || req.RPCURL == "" || req.ChainID == 0 {
			writeError(w, http.StatusBadRequest, "name, chain_id and rpc_url required")
			return
		}
		n := config.Network{ChainID: req.ChainID, RPCURL: req.RPCURL}
		if req.EntryPoint != "" {
			if !common.IsHexAddress(req.EntryPoint) {
				writeError(w, http.StatusBadRequest, "invalid entrypoint_address")
				return
			}
			n.EntryPoint = common.HexToAddress(req.EntryPoint)
		}
		if req.Factory != "" {
			if !common.IsHexAddress(req.Factory) {
				writeError(w, http.StatusBadRequest, "invalid factory_address")
				return
			}
			n.Factory = common.HexToAddress(req.Factory)
		}
		s.registry.Add(req.Name, n)
		// Replacing a network invalidates any cached chain connection.
		s.chainsMu.Lock()
		delete(s.chains, req.Name)
		s.chainsMu.Unlock()
		if err := s.registry.Save(s.cfg.NetworksFile); err != nil {
			writeError(w, http.StatusInternalServerError, "persist networks: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}
