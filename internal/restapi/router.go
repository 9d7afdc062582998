// Package restapi exposes the edge server's REST surface: mTLS-gated
// login, kitchen-ticket lookup/reprint with archive fallback, label-record
// reprint, and catalog CRUD backed by internal/edgesync's local cache.
// Grounded on Sergey-Bar-Alfred's gateway router for the middleware-chain
// shape (CORS first, then request ID, recovery, logging), substituting the
// ecosystem github.com/go-chi/cors package for that gateway's hand-rolled
// CORS middleware.
package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tallyforge/edge/internal/activation"
	"github.com/tallyforge/edge/internal/archive"
	"github.com/tallyforge/edge/internal/edgesync"
	"github.com/tallyforge/edge/internal/order"
	"github.com/tallyforge/edge/internal/storage"
)

// Server bundles the collaborators the REST handlers dispatch to.
type Server struct {
	Engine    *order.Engine
	Store     *storage.Store
	Archive   *archive.Store
	Catalog   *edgesync.CatalogSyncer
	Throttle           *activation.LoginThrottle
	Printer            Printer
	JWTSecret          []byte
	TenantID           string
	TenantPasswordHash string
	Log                *slog.Logger

	verifyPassword func(hash, password string) bool
}

// NewServer wires a Server. verifyPassword defaults to
// activation.VerifyTenantPassword; tests override it to avoid paying
// bcrypt's cost factor on every run.
func NewServer(s Server) *Server {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.Printer == nil {
		s.Printer = NoopPrinter{Log: s.Log}
	}
	if s.verifyPassword == nil {
		s.verifyPassword = activation.VerifyTenantPassword
	}
	return &s
}

// Router builds the chi handler tree. allowedOrigins configures CORS
// (empty means same-origin only, the kiosk app's normal deployment).
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.requireClientCert(s.handleLogin))

		api.Route("/kitchen-orders", func(ko chi.Router) {
			ko.Get("/", s.handleListKitchenOrders)
			ko.Get("/{orderID}", s.handleGetKitchenOrder)
			ko.Post("/{orderID}/reprint", s.handleReprintKitchenOrder)
		})

		api.Route("/label-records", func(lr chi.Router) {
			lr.Get("/", s.handleListLabelRecords)
			lr.Post("/{orderID}/reprint", s.handleReprintLabelRecord)
		})

		api.Route("/tenant/stores/{storeID}/catalog", func(cat chi.Router) {
			cat.Get("/{entity}", s.handleListCatalog)
			cat.Put("/{entity}/{entityID}", s.handleUpsertCatalog)
			cat.Delete("/{entity}/{entityID}", s.handleDeleteCatalog)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Log.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requireClientCert rejects requests without a verified client certificate
// on the TLS connection — the edge's HTTPS listener performs the chain
// verification itself (mTLS), this just refuses to proceed if that never
// happened, e.g. a dev server running plain HTTP.
func (s *Server) requireClientCert(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			writeError(w, http.StatusUnauthorized, "client certificate required")
			return
		}
		next(w, r)
	}
}
