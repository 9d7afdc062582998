package restapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tallyforge/edge/internal/order"
)

type kitchenOrderView struct {
	OrderID string                    `json:"order_id"`
	Status  order.Status              `json:"status"`
	TableID string                    `json:"table_id"`
	Items   []*order.CartItemSnapshot `json:"items"`
	FromHot bool                      `json:"from_hot_store"`
}

func viewFromSnapshot(snap *order.OrderSnapshot, fromHot bool) kitchenOrderView {
	return kitchenOrderView{
		OrderID: snap.OrderID,
		Status:  snap.Status,
		TableID: snap.TableID,
		Items:   snap.Items,
		FromHot: fromHot,
	}
}

// handleListKitchenOrders returns every order currently active in the hot
// store — completed/voided orders have nothing left to prepare and are
// not listed here, only reachable individually via reprint-from-archive.
func (s *Server) handleListKitchenOrders(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	snaps, err := s.Store.ListActiveSnapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]kitchenOrderView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, viewFromSnapshot(snap, true))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetKitchenOrder looks up one order, falling back to rebuilding it
// from the archive when the hot-store record is gone (it completed and
// was archived since the ticket was first printed).
func (s *Server) handleGetKitchenOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if s.Engine != nil {
		if snap, err := s.Engine.GetSnapshot(orderID); err == nil {
			writeJSON(w, http.StatusOK, viewFromSnapshot(snap, true))
			return
		} else if !isNotFound(err) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	s.getFromArchive(w, r, orderID)
}

// handleReprintKitchenOrder re-renders a kitchen ticket for orderID,
// falling back to the archive the same way handleGetKitchenOrder does,
// and drives it through the Printer abstraction rather than hardware.
func (s *Server) handleReprintKitchenOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var view kitchenOrderView
	if s.Engine != nil {
		if snap, err := s.Engine.GetSnapshot(orderID); err == nil {
			view = viewFromSnapshot(snap, true)
		} else if !isNotFound(err) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if view.OrderID == "" {
		if s.Archive == nil {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		snap, _, err := s.Archive.GetArchivedOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if snap == nil {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		view = viewFromSnapshot(snap, false)
	}

	payload, _ := json.Marshal(view)
	if err := s.Printer.Print(r.Context(), "kitchen-ticket", orderID, payload); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getFromArchive(w http.ResponseWriter, r *http.Request, orderID string) {
	if s.Archive == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	snap, _, err := s.Archive.GetArchivedOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, viewFromSnapshot(snap, false))
}

func isNotFound(err error) bool {
	var oerr *order.Error
	return errors.As(err, &oerr) && oerr.Kind == order.KindNotFound
}
