package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"challenge-media/internal/database"
	"challenge-media/internal/logging"
)

// ImageListResponse is one page of images.
type ImageListResponse struct {
	Items      []ImageResponse `json:"items"`
	TotalItems int             `json:"totalItems"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// ListImages returns a page of images, newest first.
//
//	GET /api/admin/images?category=challenges&page=2&pageSize=50
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := database.ListOptions{
		Category: query.Get("category"),
		Page:     1,
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil && page > 0 {
		opts.Page = page
	}
	if pageSize, err := strconv.Atoi(query.Get("pageSize")); err == nil && pageSize > 0 {
		opts.PageSize = pageSize
	}

	page, err := h.library.ListImages(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ImageListResponse{
		Items:      make([]ImageResponse, 0, len(page.Items)),
		TotalItems: page.TotalItems,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, newImageResponse(&page.Items[i]))
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// UpdateImage applies a partial metadata update. Every update moves the
// record's cache token, so previously issued URLs stop being served as
// immutable.
//
//	PATCH /api/admin/images/{path} {"title": "...", "tags": ["a", "b"]}
func (h *Handlers) UpdateImage(w http.ResponseWriter, r *http.Request) {
	var update database.MetadataUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.library.UpdateImageMetadata(r.Context(), mux.Vars(r)["path"], update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newImageResponse(rec))
}

// DeleteImage removes an image, its variants and its stored blobs.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.ingest.Delete(r.Context(), mux.Vars(r)["path"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDeleteRequest lists the image paths to delete.
type BulkDeleteRequest struct {
	Paths []string `json:"paths"`
}

// BulkDelete deletes images one at a time with a pause between each, and
// reports the outcome per path.
func (h *Handlers) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Paths) == 0 {
		h.writeError(w, r, fmt.Errorf("%w: no paths given", errBadRequest))
		return
	}
	if len(req.Paths) > h.config.MaxBulkDelete {
		h.writeError(w, r, fmt.Errorf("%w: %d paths, limit is %d", errTooManyPaths, len(req.Paths), h.config.MaxBulkDelete))
		return
	}

	result, err := h.ingest.BulkDelete(r.Context(), req.Paths)
	if err != nil {
		// The client went away; whatever was deleted stays deleted.
		logging.Warn("Bulk delete interrupted after %d of %d paths: %v", len(result.Deleted), len(req.Paths), err)
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// RegenerateImage rebuilds the variants of one image from its original.
func (h *Handlers) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingest.Regenerate(r.Context(), mux.Vars(r)["path"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := newImageResponse(result.Record)
	if result.VariantErr != nil {
		resp.VariantError = result.VariantErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
