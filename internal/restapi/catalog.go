package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyforge/edge/internal/edgesync"
)

// handleListCatalog serves the locally cached snapshot of one catalog
// entity kind (product, category, price_rule) — the source of truth is
// the cloud; this is the edge's read replica populated by CatalogOp pushes
// (see internal/edgesync).
func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog sync unavailable")
		return
	}
	entity := edgesync.EntityKind(chi.URLParam(r, "entity"))
	snap, err := s.Catalog.Snapshot(entity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpsertCatalog applies a local catalog write directly via PUT. In
// the normal flow catalog mutations arrive as CatalogOp pushes over the
// cloud channel (§4.9); this endpoint exists for local administration when
// the edge is temporarily cut off from the cloud and a store manager needs
// to correct a price on the spot.
func (s *Server) handleUpsertCatalog(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog sync unavailable")
		return
	}
	entity := edgesync.EntityKind(chi.URLParam(r, "entity"))
	entityID := chi.URLParam(r, "entityID")

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := s.Catalog.ApplyOp(r.Context(), s.TenantID, edgesync.CatalogOp{
		OpID: entityID, Kind: edgesync.OpUpsert, Entity: entity, EntityID: entityID, Payload: payload,
	})
	if !result.Success {
		writeError(w, http.StatusInternalServerError, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteCatalog(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog sync unavailable")
		return
	}
	entity := edgesync.EntityKind(chi.URLParam(r, "entity"))
	entityID := chi.URLParam(r, "entityID")

	result := s.Catalog.ApplyOp(r.Context(), s.TenantID, edgesync.CatalogOp{
		OpID: entityID, Kind: edgesync.OpDelete, Entity: entity, EntityID: entityID,
	})
	if !result.Success {
		writeError(w, http.StatusInternalServerError, result.Error)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
