// Copyright 2025 Certen Protocol
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/abi"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/auditlog"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/chainclient"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/clock"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/config"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/hashing"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/httpapi"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/kvstore"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/metrics"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/orchestrator"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/policy"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/provider"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/queue"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/safeservice"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/walletconnect"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("starting rusty-safe-orchestratord")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := openStateDB(cfg.DataDir)
	if err != nil {
		log.Printf("durable kv store unavailable, running memory-only: %v", err)
	}
	store := kvstore.NewStore(db)
	_ = store // durable mirror is wired for future Queue persistence hooks

	c := clock.NewSystemClock()
	h := hashing.NewAdapter(os.LookupEnv)
	q := queue.NewAdapter(c, h)
	a := abi.NewAdapter()
	wc := walletconnect.NewAdapter(c)
	ss := safeservice.NewAdapter()

	mode, err := parseProviderMode(cfg.ProviderMode)
	if err != nil {
		log.Fatalf("provider mode: %v", err)
	}
	p := provider.NewAdapter(mode)

	if mode == provider.ModeRuntimeAttached {
		chain, err := chainclient.Dial(cfg.EthereumURL, cfg.EthChainID)
		if err != nil {
			log.Fatalf("dial ethereum rpc: %v", err)
		}
		healthCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := chain.Health(healthCtx); err != nil {
			log.Printf("ethereum rpc health check failed: %v", err)
		}
		cancel()
	}

	if cfg.ExportSignerPrivateKey != "" {
		signerKey, err := chainclient.ParsePrivateKey(cfg.ExportSignerPrivateKey)
		if err != nil {
			log.Fatalf("export signer private key: %v", err)
		}
		q.SetExportSigner(signerKey)
		signerAddr, err := chainclient.GetPublicAddress(cfg.ExportSignerPrivateKey)
		if err != nil {
			log.Fatalf("export signer private key: %v", err)
		}
		log.Printf("export signer address: %s", signerAddr.Hex())
	}
	if cfg.BundleEncryptionPassphrase != "" {
		q.SetBundlePassphrase([]byte(cfg.BundleEncryptionPassphrase))
	}

	orch := orchestrator.New(c, p, ss, wc, a, h, q)

	auditSink, err := auditlog.NewSink(context.Background(), cfg.AuditDatabaseURL,
		auditlog.WithLogger(log.New(log.Writer(), "[auditlog] ", log.LstdFlags)))
	if err != nil {
		log.Fatalf("audit log: %v", err)
	}
	orch.SetAuditSink(auditSink)

	signingPolicy, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("signing policy: %v", err)
	}
	orch.SetPolicy(signingPolicy)

	handlers := httpapi.NewHandlers(orch, log.New(log.Writer(), "[httpapi] ", log.LstdFlags))
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/lock/acquire", handlers.HandleAcquireWriterLock)
	mux.HandleFunc("/api/txs", handlers.HandleCreateSafeTx)
	mux.HandleFunc("/api/txs/from-abi", handlers.HandleCreateSafeTxFromAbi)
	mux.HandleFunc("/api/txs/signatures", handlers.HandleAddTxSignature)
	mux.HandleFunc("/api/txs/propose", handlers.HandleProposeTx)
	mux.HandleFunc("/api/txs/confirm", handlers.HandleConfirmTx)
	mux.HandleFunc("/api/txs/execute", handlers.HandleExecuteTx)
	mux.HandleFunc("/api/txs/sign-with-provider", handlers.HandleSignTxWithProvider)
	mux.HandleFunc("/api/txs/execute-with-provider", handlers.HandleExecuteTxViaProvider)
	mux.HandleFunc("/api/messages", handlers.HandleCreateMessage)
	mux.HandleFunc("/api/messages/signatures", handlers.HandleAddMessageSignature)
	mux.HandleFunc("/api/provider/connect", handlers.HandleConnectProvider)
	mux.HandleFunc("/api/provider/recover", handlers.HandleRecoverProviderEvents)
	mux.HandleFunc("/api/walletconnect/pair", handlers.HandleWcPair)
	mux.HandleFunc("/api/walletconnect/session-action", handlers.HandleWcSessionAction)
	mux.HandleFunc("/api/walletconnect/respond", handlers.HandleRespondWalletConnect)
	mux.HandleFunc("/api/bundles/import", handlers.HandleImportBundle)
	mux.HandleFunc("/api/bundles/export", handlers.HandleExportBundle)
	mux.HandleFunc("/api/url-import", handlers.HandleImportUrlPayload)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		log.Printf("http api listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Printf("close state db: %v", err)
		}
	}
	if err := auditSink.Close(); err != nil {
		log.Printf("close audit log: %v", err)
	}
	log.Printf("stopped")
}

func openStateDB(dataDir string) (dbm.DB, error) {
	if dataDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return dbm.NewGoLevelDB("orchestrator-state", filepath.Clean(dataDir))
}

func parseProviderMode(mode string) (provider.Mode, error) {
	switch mode {
	case "RuntimeAttached":
		return provider.ModeRuntimeAttached, nil
	case "Deterministic":
		return provider.ModeDeterministic, nil
	case "Disabled":
		return provider.ModeDisabled, nil
	default:
		return "", &unknownProviderModeError{mode: mode}
	}
}

type unknownProviderModeError struct{ mode string }

func (e *unknownProviderModeError) Error() string {
	return "unknown provider mode: " + e.mode
}
