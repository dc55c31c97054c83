package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes adds every endpoint to r. admin, when non-nil, wraps the
// /api/admin routes.
func (h *Handlers) RegisterRoutes(r *mux.Router, admin mux.MiddlewareFunc) {
	// Health and info
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	// Image delivery
	r.HandleFunc("/images/{path:.+}", h.ServeImage).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/images", h.UploadImage).Methods(http.MethodPost)
	api.HandleFunc("/images/{path:.+}", h.GetImage).Methods(http.MethodGet)

	// Chunked uploads
	api.HandleFunc("/uploads", h.CreateUpload).Methods(http.MethodPost)
	api.HandleFunc("/uploads/{id}", h.GetUpload).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{id}", h.CancelUpload).Methods(http.MethodDelete)
	api.HandleFunc("/uploads/{id}/chunks/{index:[0-9]+}", h.PutChunk).Methods(http.MethodPut)

	// Admin
	adm := api.PathPrefix("/admin").Subrouter()
	if admin != nil {
		adm.Use(admin)
	}
	adm.HandleFunc("/images", h.ListImages).Methods(http.MethodGet)
	adm.HandleFunc("/images/bulk-delete", h.BulkDelete).Methods(http.MethodPost)
	adm.HandleFunc("/images/{path:.+}/regenerate", h.RegenerateImage).Methods(http.MethodPost)
	adm.HandleFunc("/images/{path:.+}", h.UpdateImage).Methods(http.MethodPatch)
	adm.HandleFunc("/images/{path:.+}", h.DeleteImage).Methods(http.MethodDelete)
}
