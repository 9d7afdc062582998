package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const labelRecordKind = "label_record"

// labelRecord is a printed product-label job, addressable by order so a
// till can ask "what labels did we already print for this order" and
// reprint one without regenerating content from scratch.
type labelRecord struct {
	OrderID   string    `json:"order_id"`
	PrintedAt time.Time `json:"printed_at"`
	ReprintOf string    `json:"reprint_of,omitempty"`
}

// handleListLabelRecords lists label records for the order given by the
// order_id query parameter.
func (s *Server) handleListLabelRecords(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "order_id query parameter required")
		return
	}
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	var rec labelRecord
	ok, err := s.Store.GetCatalogEntity(labelRecordKind, orderID, &rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, []labelRecord{})
		return
	}
	writeJSON(w, http.StatusOK, []labelRecord{rec})
}

// handleReprintLabelRecord reprints the label record keyed by orderID
// (the path parameter doubles as the label record id, since labels are
// one-per-order in this system).
func (s *Server) handleReprintLabelRecord(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	var existing labelRecord
	ok, err := s.Store.GetCatalogEntity(labelRecordKind, orderID, &existing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "label record not found")
		return
	}

	rec := labelRecord{OrderID: orderID, PrintedAt: time.Now(), ReprintOf: orderID}
	payload, _ := json.Marshal(rec)
	if err := s.Printer.Print(r.Context(), "label", orderID, payload); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.Store.PutCatalogEntity(labelRecordKind, orderID, rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
