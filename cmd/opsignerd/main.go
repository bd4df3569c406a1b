// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

// opsignerd is the signing daemon: it guards one encrypted secp256k1 key,
// exposes lock/unlock and signing over a token-authenticated REST API, and
// keeps the account book of the ERC-4337 contract accounts that key owns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"

	"github.com/opsigner/opsigner/internal/config"
	"github.com/opsigner/opsigner/internal/crypto"
	"github.com/opsigner/opsigner/internal/fsutil"
	"github.com/opsigner/opsigner/internal/keystore"
	"github.com/opsigner/opsigner/internal/signer"
	"github.com/opsigner/opsigner/internal/version"
)

func main() {
	printVersion := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("d", "", "Data directory (required, or set OPSIGNER_DATA)")
	flag.Parse()
	if *printVersion {
		fmt.Printf("opsignerd %s\n", version.String())
		os.Exit(0)
	}

	initLogger()

	resolvedDataDir := config.DataDirFromEnv(*dataDir)
	if resolvedDataDir == "" {
		fmt.Fprintln(os.Stderr, "Error: Data directory not specified")
		fmt.Fprintln(os.Stderr, "Use -d <path> or set OPSIGNER_DATA environment variable")
		os.Exit(1)
	}
	if err := fsutil.MkdirAll(resolvedDataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create data directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("opsignerd - Account Abstraction Signing Server")
	fmt.Println("==============================================")
	fmt.Printf("Data directory: %s\n", resolvedDataDir)

	cfg, err := config.LoadServerConfig(resolvedDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	lockTimeout, err := config.ParseLockTimeout(cfg.LockTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid lock_timeout in config: %v, using default (0)\n", err)
		lockTimeout = 0
	}
	if lockTimeout == 0 {
		fmt.Println("⚠️  Lock timeout: never (signer stays unlocked indefinitely)")
		fmt.Println("   Set lock_timeout in config for auto-lock after inactivity.")
	} else {
		fmt.Printf("Lock timeout: %s (auto-locks after inactivity)\n", lockTimeout)
	}

	// Network registry: load from file when present, otherwise seed the
	// well-known networks and persist them.
	var registry *config.Registry
	if _, err := os.Stat(cfg.NetworksFile); err == nil {
		registry, err = config.LoadRegistry(cfg.NetworksFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Networks loaded: %v\n", registry.List())
	} else {
		registry = config.DefaultRegistry()
		if err := registry.Save(cfg.NetworksFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot persist default networks: %v\n", err)
		}
		fmt.Printf("✓ Default networks: %v\n", registry.List())
	}

	apiToken, err := loadAPIToken(resolvedDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load API token: %v\n", err)
		os.Exit(1)
	}

	auditLog, err := NewAuditLogger(cfg.AuditLog)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize audit log: %v\n", err)
		// Continue without audit logging - not fatal
		auditLog = nil
	} else {
		fmt.Printf("✓ Audit logging enabled (%s)\n", cfg.AuditLog)
	}

	store := keystore.New(cfg.KeystoreFile)
	sgn := signer.New(store)

	server := NewServer(sgn, registry, &cfg, auditLog, apiToken, lockTimeout)

	// Passphrase handling. OPSIGNER_PASSPHRASE unlocks immediately (for
	// automation and tests); an interactive terminal gets one masked
	// prompt; otherwise the daemon starts locked and waits for /unlock.
	switch {
	case !store.Exists():
		fmt.Println("\n🔐 Starting in LOCKED state (keystore not initialized)")
		fmt.Println("   POST /unlock after creating a key, or import a keystore blob")
	case os.Getenv("OPSIGNER_PASSPHRASE") != "":
		raw := []byte(os.Getenv("OPSIGNER_PASSPHRASE"))
		pass := crypto.NewSecureStringFromBytes(raw)
		crypto.ZeroBytes(raw)
		if err := unlockAtStartup(server, pass); err != nil {
			pass.Destroy()
			fmt.Fprintf(os.Stderr, "Error: OPSIGNER_PASSPHRASE does not unlock the keystore: %v\n", err)
			os.Exit(1)
		}
		pass.Destroy()
		fmt.Println("\n🔐 Unlocked via OPSIGNER_PASSPHRASE (automation mode)")
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Print("\nEnter passphrase to unlock (empty to start locked): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading passphrase: %v\n", err)
			os.Exit(1)
		}
		pass := crypto.NewSecureStringFromBytes(raw)
		crypto.ZeroBytes(raw)
		if pass.IsEmpty() {
			fmt.Println("🔐 Starting in LOCKED state")
		} else if err := unlockAtStartup(server, pass); err != nil {
			pass.Destroy()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		} else {
			fmt.Printf("🔓 Unlocked: %s\n", sgn.Address().Hex())
		}
		pass.Destroy()
	default:
		fmt.Println("\n🔐 Starting in LOCKED state")
		fmt.Println("   Unlock over the API with POST /unlock")
	}

	if auditLog != nil {
		auditLog.LogServerStart(sgn.Address().Hex())
	}

	// Keystore watcher: lock the in-memory key if the blob changes on disk.
	watcherCtx, watcherCancel := context.WithCancel(context.Background())
	defer watcherCancel()
	if cfg.ShouldWatchStore() {
		if err := startStoreWatcher(server, cfg.KeystoreFile, watcherCtx); err != nil {
			fmt.Printf("⚠️  Warning: Failed to start file watcher: %v\n", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second, // Prevent SlowLoris attacks
	}

	fmt.Printf("\n>> Starting opsignerd on port %d\n", cfg.Port)
	fmt.Printf("\nEndpoints:\n")
	fmt.Printf("  GET    /health            - Health check (no auth)\n")
	fmt.Printf("  GET    /status            - Signer and keystore state\n")
	fmt.Printf("  GET    /address           - Signing key address\n")
	fmt.Printf("  POST   /unlock            - Unlock with the keystore password\n")
	fmt.Printf("  POST   /lock              - Lock and zero the in-memory key\n")
	fmt.Printf("  POST   /sign/message      - EIP-191 personal message signature\n")
	fmt.Printf("  POST   /sign/ophash       - Raw 32-byte operation hash signature\n")
	fmt.Printf("  POST   /sign/transaction  - Sign an RLP-encoded transaction\n")
	fmt.Printf("  POST   /operation/build   - Assemble (and optionally sign) a user operation\n")
	fmt.Printf("  GET/POST/DELETE /accounts - Contract account book\n")
	fmt.Printf("  GET/POST /networks        - Network registry\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Debug("server started", "addr", httpServer.Addr)

	select {
	case <-sigChan:
		fmt.Println("\n\n[*] Shutdown signal received, cleaning up...")
	case err := <-serverErr:
		fmt.Printf("\n[X] Server error: %v\n", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	fmt.Println("[*] Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Warning: Server shutdown error: %v\n", err)
	}

	if auditLog != nil {
		auditLog.LogServerStop()
	}

	server.stopSessionTimer()

	fmt.Println("[*] Zeroing signing key...")
	sgn.Lock()

	if auditLog != nil {
		_ = auditLog.Close()
	}

	fmt.Println("[✓] Shutdown complete")
}

// unlockAtStartup unlocks the signer with the given passphrase bytes and
// opens the wallet bound to the resulting address.
func unlockAtStartup(server *Server, pass *crypto.SecureString) error {
	var addr common.Address
	err := pass.WithBytes(func(b []byte) error {
		a, uerr := server.signer.Unlock(string(b))
		if uerr != nil {
			return uerr
		}
		addr = a
		return nil
	})
	if err != nil {
		return err
	}
	if err := server.openWallet(addr); err != nil {
		server.signer.Lock()
		return fmt.Errorf("open wallet: %w", err)
	}
	if server.auditLog != nil {
		server.auditLog.LogUnlock(addr.Hex())
	}
	server.resetSessionTimer()
	return nil
}
