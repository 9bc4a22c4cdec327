package handlers

import (
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/engine"
	"github.com/Agents-Autonomous/billiondollarcontract/grid/pkg/parcel"
)

// Operation handlers run behind RequireSigner; the signer is the caller of the
// underlying grid operation.

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	key, ok := Signer(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, codeInvalidSignature, "request is not signed")
	}
	return key, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req engine.InitializeParams
	if !h.decode(w, r, &req) {
		return
	}
	cfg, err := h.cfg.Grid.Initialize(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, r, engine.OpInitialize, err)
		return
	}
	writeJSON(w, http.StatusCreated, newConfigResponse(engine.ConfigView{
		GridConfig:   cfg,
		UnlockedRing: cfg.CurrentRing(),
	}))
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req engine.ConfigUpdate
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.cfg.Grid.UpdateConfig(r.Context(), caller, req); err != nil {
		h.writeError(w, r, engine.OpUpdateConfig, err)
		return
	}
	h.GetConfig(w, r)
}

func (h *Handler) ClaimParcel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req parcel.Rect
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.cfg.Grid.ClaimParcel(r.Context(), caller, req)
	if err != nil {
		h.writeError(w, r, engine.OpClaimParcel, err)
		return
	}
	writeJSON(w, http.StatusCreated, newParcelResponse(rec))
}

func (h *Handler) AdminMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req AdminMintRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.cfg.Grid.AdminMint(r.Context(), caller, req.Recipient, req.Rect)
	if err != nil {
		h.writeError(w, r, engine.OpAdminMint, err)
		return
	}
	writeJSON(w, http.StatusCreated, newParcelResponse(rec))
}

func (h *Handler) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := parcelIDParam(w, r)
	if !ok {
		return
	}
	var req ClaimRewardsRequest
	if !h.decode(w, r, &req) {
		return
	}
	paid, err := h.cfg.Grid.ClaimLandBuyRewards(r.Context(), caller, id, req.Asset)
	if err != nil {
		h.writeError(w, r, engine.OpClaimLandBuyRewards, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimRewardsResponse{ParcelID: id, Paid: paid})
}

func (h *Handler) CloseParcel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := parcelIDParam(w, r)
	if !ok {
		return
	}
	if err := h.cfg.Grid.AdminCloseParcelInfo(r.Context(), caller, id); err != nil {
		h.writeError(w, r, engine.OpAdminCloseParcelInfo, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	res, err := h.cfg.Grid.AdminPurge(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, engine.OpAdminPurge, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) TransferCollectionAuthority(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req TransferAuthorityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cfg.Grid.TransferCollectionAuthority(r.Context(), caller, req.NewAuthority); err != nil {
		h.writeError(w, r, engine.OpTransferCollectionAuthority, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateParcelMetadata(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req UpdateMetadataRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.cfg.Grid.UpdateParcelMetadata(r.Context(), caller, req.Asset, req.MetadataUpdate); err != nil {
		h.writeError(w, r, engine.OpUpdateParcelMetadata, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
