// Command authd is the on-premise auth-service facade: it fronts the
// tenant_verify/activate/refresh handshake an edge device runs before it
// can serve traffic, so that flow can run (and be restarted) independently
// of the edge-server process it ultimately unblocks via internal/daemon.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tallyforge/edge/internal/activation"
	"github.com/tallyforge/edge/internal/config"
	"github.com/tallyforge/edge/internal/pki"
	"github.com/tallyforge/edge/internal/trust"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("tenant_id", cfg.TenantID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	h := &handshakeHandler{
		svc:       activationSvc,
		throttle:  activation.NewLoginThrottle(cfg.LoginRateLimitPerMin),
		secret:    []byte(cfg.HandshakeJWTSecret),
		passHash:  cfg.TenantPasswordHash,
		tenantID:  cfg.TenantID,
		tokenTTL:  cfg.ActivationTokenTTL,
		log:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/auth/tenant_verify", h.handleTenantVerify)
	r.Post("/auth/activate", h.handleActivate)
	r.Post("/auth/refresh", h.handleRefresh)

	addr := cfg.RESTListenAddr
	srv := &http.Server{Addr: addr, Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
			return fmt.Errorf("http listener: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type handshakeHandler struct {
	svc      *activation.Service
	throttle *activation.LoginThrottle
	secret   []byte
	passHash string
	tenantID string
	tokenTTL time.Duration
	log      *slog.Logger
}

type tenantVerifyRequest struct {
	DeviceID string `json:"device_id"`
	Password string `json:"password"`
}

type tenantVerifyResponse struct {
	ActivationToken string `json:"activation_token"`
}

// handleTenantVerify is the first handshake step: a newly unboxed device
// proves it's in the hands of someone who knows the tenant's activation
// password, throttled per device the same way restapi throttles kiosk
// logins.
func (h *handshakeHandler) handleTenantVerify(w http.ResponseWriter, r *http.Request) {
	var req tenantVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeErr(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := h.throttle.Reserve(req.DeviceID); err != nil {
		writeErr(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if !activation.VerifyTenantPassword(h.passHash, req.Password) {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := activation.IssueActivationToken(h.secret, h.tenantID, req.DeviceID, h.tokenTTL, time.Now())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to issue activation token")
		return
	}
	writeJSON(w, http.StatusOK, tenantVerifyResponse{ActivationToken: token})
}

type activateRequest struct {
	ActivationToken string              `json:"activation_token"`
	Binding         trust.SignedBinding `json:"binding"`
	CertPEM         []byte              `json:"cert_pem"`
	KeyPEM          []byte              `json:"key_pem"`
}

// handleActivate completes the handshake: the cloud has already signed a
// SignedBinding and issued a leaf certificate out of band (§4.1-4.2's CA
// hierarchy is owned cloud-side); this endpoint just validates the
// activation token matches the presented binding's identity and hands the
// credential to the local activation.Service.
func (h *handshakeHandler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request")
		return
	}

	tenantID, deviceID, err := activation.ParseActivationToken(h.secret, req.ActivationToken)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired activation token")
		return
	}
	if tenantID != req.Binding.TenantID || deviceID != req.Binding.DeviceID {
		writeErr(w, http.StatusUnauthorized, "activation token does not match binding identity")
		return
	}
	leaf, err := pki.ParseLeaf(req.CertPEM)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid certificate")
		return
	}
	if leaf.DeviceID != deviceID {
		writeErr(w, http.StatusUnauthorized, "certificate device_id does not match activation token")
		return
	}

	cred := &activation.Credential{Binding: req.Binding, CertPEM: req.CertPEM, KeyPEM: req.KeyPEM}
	if err := h.svc.Activate(cred); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// handleRefresh re-runs the activation self-check on demand, for an
// operator tool polling whether a just-rotated binding took effect without
// waiting for the daemon's next periodic interval.
func (h *handshakeHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CheckActivation(r.Context(), time.Now()); err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(h.svc.State())})
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

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
