package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/ring"
)

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	view, err := h.cfg.Grid.Config(r.Context())
	if err != nil {
		h.writeError(w, r, "get_config", err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigResponse(view))
}

func (h *Handler) GetCell(w http.ResponseWriter, r *http.Request) {
	x, errX := parseUint8(chi.URLParam(r, "x"))
	y, errY := parseUint8(chi.URLParam(r, "y"))
	if errX != nil || errY != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "cell coordinates must be integers in [0, 255]")
		return
	}
	cell, err := h.cfg.Grid.Cell(x, y)
	if err != nil {
		h.writeError(w, r, "get_cell", err)
		return
	}
	writeJSON(w, http.StatusOK, cell)
}

func (h *Handler) GetParcel(w http.ResponseWriter, r *http.Request) {
	id, ok := parcelIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.cfg.Grid.Parcel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get_parcel", err)
		return
	}
	writeJSON(w, http.StatusOK, newParcelViewResponse(view))
}

func (h *Handler) ListParcels(w http.ResponseWriter, r *http.Request) {
	records, err := h.cfg.Grid.Parcels()
	if err != nil {
		h.writeError(w, r, "list_parcels", err)
		return
	}
	out := make([]ParcelResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newParcelResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetGrid(w http.ResponseWriter, r *http.Request) {
	grid, err := h.cfg.Grid.Grid()
	if err != nil {
		h.writeError(w, r, "get_grid", err)
		return
	}
	records, err := h.cfg.Grid.Parcels()
	if err != nil {
		h.writeError(w, r, "get_grid", err)
		return
	}
	blocks, err := grid.MarshalBinary()
	if err != nil {
		h.writeError(w, r, "get_grid", err)
		return
	}
	writeJSON(w, http.StatusOK, GridResponse{Blocks: blocks, Parcels: len(records)})
}

// GetRings serves the static ring layout; it does not need an initialized grid.
func (h *Handler) GetRings(w http.ResponseWriter, r *http.Request) {
	layout := ring.Layout()
	rings := make([]int, len(layout))
	for i, v := range layout {
		rings[i] = int(v)
	}
	writeJSON(w, http.StatusOK, RingsResponse{GridSize: ring.GridSize, Rings: rings})
}

func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.cfg.Journal.RecentJournal(r.Context(), ParseLimit(r, DefaultLimit))
	if err != nil {
		h.writeError(w, r, "get_journal", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func parcelIDParam(w http.ResponseWriter, r *http.Request) (uint16, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid parcel id %q", raw))
		return 0, false
	}
	return uint16(id), true
}
