package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Routes registers the grid API on r. Operations require a signed request and, when
// the handler has a rate limiter, are limited per client IP.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/config", h.GetConfig)
	r.Get("/rings", h.GetRings)
	r.Get("/grid", h.GetGrid)
	r.Get("/cells/{x}/{y}", h.GetCell)
	r.Get("/parcels", h.ListParcels)
	r.Get("/parcels/{id}", h.GetParcel)
	r.Get("/journal", h.GetJournal)

	r.Group(func(r chi.Router) {
		if h.cfg.RateLimiter != nil {
			r.Use(RateLimitMiddleware(h.cfg.RateLimiter))
		}
		r.Use(h.RequireSigner)

		r.Post("/initialize", h.Initialize)
		r.Post("/config", h.UpdateConfig)
		r.Post("/parcels", h.ClaimParcel)
		r.Post("/parcels/{id}/rewards", h.ClaimRewards)
		r.Post("/assets/metadata", h.UpdateParcelMetadata)
		r.Post("/admin/mint", h.AdminMint)
		r.Post("/admin/parcels/{id}/close", h.CloseParcel)
		r.Post("/admin/purge", h.Purge)
		r.Post("/admin/collection-authority", h.TransferCollectionAuthority)
	})
}
