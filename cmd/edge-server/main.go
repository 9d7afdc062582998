// Command edge-server is the on-premise process: it owns the hot order
// store, the event bus fan-out to thin clients, the archive, and the REST
// surface the kiosk/kitchen apps call. It refuses to open its mTLS
// listener until daemon.Gate confirms the device's binding and
// self-check, per spec.md's activation-before-serving requirement.
// Structured the way cmd/helm/main.go's runServer wires its subsystems:
// one fatal early-exit per infrastructure dependency, goroutines for
// background loops, a signal-driven graceful shutdown.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tallyforge/edge/internal/activation"
	"github.com/tallyforge/edge/internal/archive"
	"github.com/tallyforge/edge/internal/bus"
	"github.com/tallyforge/edge/internal/config"
	"github.com/tallyforge/edge/internal/daemon"
	"github.com/tallyforge/edge/internal/edgesync"
	"github.com/tallyforge/edge/internal/obs"
	"github.com/tallyforge/edge/internal/order"
	"github.com/tallyforge/edge/internal/restapi"
	"github.com/tallyforge/edge/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("edge-server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("tenant_id", cfg.TenantID, "device_id", cfg.DeviceID)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := obs.New(ctx, &obs.Config{
		ServiceName:  "tallyforge-edge",
		TenantID:     cfg.TenantID,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.SampleRate,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.OTLPEnabled,
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer provider.Shutdown(context.Background())

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	store, err := storage.Open(cfg.TenantID, cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if checked, mismatched, err := store.ReplayCrashRecovery(); err != nil {
		return fmt.Errorf("crash recovery scan: %w", err)
	} else if len(mismatched) > 0 {
		logger.Warn("crash recovery found checksum mismatches", "checked", checked, "mismatched", mismatched)
	}

	archiveStore, err := archive.Open(
		filepath.Join(cfg.StorageDir, "archive.db"),
		filepath.Join(cfg.StorageDir, "archive-quarantine"),
	)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveStore.Close()

	ruleProvider := storage.NewRuleProvider(store)
	engine := order.NewEngine(store, ruleProvider, time.Now)

	var busClient *bus.Bus
	if cfg.RedisURL != "" {
		busClient, err = bus.New(cfg.RedisURL, time.Now)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer busClient.Close()
	} else {
		logger.Warn("REDIS_URL not set, running without event bus fan-out")
	}

	anchorPEM, err := os.ReadFile(cfg.TenantCAPath)
	if err != nil {
		return fmt.Errorf("read tenant ca: %w", err)
	}
	tenantKey, err := parseTenantPublicKey(cfg.TenantPublicKey)
	if err != nil {
		return fmt.Errorf("parse tenant public key: %w", err)
	}

	activationSvc, err := activation.New(filepath.Join(cfg.StorageDir, "certs"), anchorPEM, tenantKey)
	if err != nil {
		return fmt.Errorf("init activation service: %w", err)
	}

	gate := daemon.NewGate(activationSvc, 5*time.Minute, logger)
	logger.Info("waiting for activation")
	if err := gate.WaitForActivation(ctx); err != nil {
		return fmt.Errorf("wait for activation: %w", err)
	}
	logger.Info("activated, starting subsystems")

	if err := gate.Run(ctx, func(err error) {
		logger.Error("edge dropped to unbound state, reactivation required before further self-checks pass", "error", err)
	}); err != nil {
		return fmt.Errorf("run activation gate: %w", err)
	}

	catalogSyncer := edgesync.NewCatalogSyncer(store, busClient)
	if cfg.S3Bucket != "" {
		imageResolver, err := edgesync.NewImageResolver(ctx, cfg.S3Bucket, cfg.S3Region, logger)
		if err != nil {
			logger.Warn("image resolver unavailable, catalog images will not resolve", "error", err)
		} else {
			catalogSyncer.WithImages(imageResolver)
		}
	}

	var replicator *edgesync.Replicator
	if cfg.CloudBaseURL != "" {
		replicator = edgesync.NewReplicator(archiveStore, cfg.EdgeServerID, cfg.CloudBaseURL)
		go runReplicationLoop(ctx, replicator, logger)
	}

	cred := activationSvc.Credential()
	leafCert, err := tls.X509KeyPair(cred.CertPEM, cred.KeyPEM)
	if err != nil {
		return fmt.Errorf("load activated leaf keypair: %w", err)
	}
	clientCAs := x509.NewCertPool()
	if !clientCAs.AppendCertsFromPEM(anchorPEM) {
		return fmt.Errorf("parse tenant ca pool")
	}

	restServer := restapi.NewServer(restapi.Server{
		Engine:             engine,
		Store:              store,
		Archive:            archiveStore,
		Catalog:            catalogSyncer,
		Throttle:           activation.NewLoginThrottle(cfg.LoginRateLimitPerMin),
		JWTSecret:          []byte(cfg.SessionJWTSecret),
		TenantID:           cfg.TenantID,
		TenantPasswordHash: cfg.TenantPasswordHash,
		Log:                logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.TLSListenAddr,
		Handler: restServer.Router(nil),
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{leafCert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    clientCAs,
			MinVersion:   tls.VersionTLS13,
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("edge server listening", "addr", cfg.TLSListenAddr)
		if err := httpServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("tls listener: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runReplicationLoop(ctx context.Context, r *edgesync.Replicator, log *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.PushPending(ctx)
			if err != nil {
				log.Warn("replication push failed", "error", err, "pushed", n)
				continue
			}
			if n > 0 {
				log.Info("replicated archived orders to cloud", "count", n)
			}
		}
	}
}

func parseTenantPublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
