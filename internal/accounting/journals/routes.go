package journals

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers journal entry routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)

	r.Post("/{id}/lines", h.AddLine)
	r.Delete("/{id}/lines/{lineID}", h.RemoveLine)

	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/post", h.Post)
	r.Post("/{id}/reverse", h.Reverse)
}
