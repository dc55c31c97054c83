package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/ingest"
	"challenge-media/internal/mediatypes"
	"challenge-media/internal/resolver"
)

const (
	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to temp files.
	multipartMemory = 8 << 20
	// multipartOverhead allows for form fields and part headers.
	multipartOverhead = 1 << 20
)

// ImageResponse describes a stored image and where to fetch it.
type ImageResponse struct {
	Path   string                `json:"path"`
	URLs   map[string]string     `json:"urls"`
	Record *database.ImageRecord `json:"record"`
	// VariantError is set when the image was stored but some variants could
	// not be generated yet.
	VariantError string `json:"variantError,omitempty"`
}

func newImageResponse(rec *database.ImageRecord) ImageResponse {
	urls := map[string]string{
		string(mediatypes.VariantOriginal): resolver.URL(rec, mediatypes.VariantOriginal),
	}
	for _, v := range rec.Variants {
		urls[string(v.Name)] = resolver.URL(rec, v.Name)
	}
	return ImageResponse{Path: rec.Path, URLs: urls, Record: rec}
}

// UploadImage accepts a single-shot multipart upload in the "file" field.
// Files above the progressive threshold are refused with a pointer to the
// chunked upload endpoints.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	cfg := h.uploads.Config()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, fmt.Errorf("%w: request body exceeds %d bytes", codec.ErrImageTooLarge, cfg.MaxFileSize))
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: expected multipart/form-data: %v", errBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: missing file field: %v", errBadRequest, err))
		return
	}
	defer file.Close()

	if h.uploads.ShouldChunk(header.Size) {
		h.writeError(w, r, fmt.Errorf("%w: %d bytes is above %d, POST /api/uploads instead",
			errChunkedUpload, header.Size, cfg.ProgressiveThreshold))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: reading upload: %v", errBadRequest, err))
		return
	}

	result, err := h.ingest.Ingest(r.Context(), ingest.Upload{
		Filename:    path.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Title:       r.FormValue("title"),
		AltText:     r.FormValue("altText"),
		Tags:        splitTags(r.FormValue("tags")),
		Category:    r.FormValue("category"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := newImageResponse(result.Record)
	if result.VariantErr != nil {
		resp.VariantError = result.VariantErr.Error()
	}
	w.Header().Set("Location", resp.URLs[string(mediatypes.VariantOriginal)])
	writeJSON(w, http.StatusCreated, resp)
}

// GetImage returns the record of one image with its versioned URLs.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	rec, err := h.library.GetImageByPath(r.Context(), mux.Vars(r)["path"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, newImageResponse(rec))
}

// ServeImage writes the bytes of an image variant. A missing variant is
// served from the nearest larger one or the original, marked with
// X-Variant-Fallback and a short cache lifetime. Requests carrying the
// current version token in ?v= are cacheable forever.
func (h *Handlers) ServeImage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	asset, err := h.resolver.Resolve(r.Context(), mux.Vars(r)["path"], query.Get("variant"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cacheControl := asset.CacheControl
	if v := query.Get("v"); v != "" && v == asset.Version && !asset.Fallback {
		cacheControl = resolver.ImmutableCacheControl
	}

	header := w.Header()
	header.Set("Cache-Control", cacheControl)
	header.Set("ETag", asset.ETag)
	header.Set("X-Content-Type-Options", "nosniff")
	if asset.Fallback {
		header.Set("X-Variant-Fallback", string(asset.Served))
	}

	if resolver.MatchesETag(r.Header.Get("If-None-Match"), asset.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", asset.ContentType)
	http.ServeContent(w, r, "", asset.LastModified, bytes.NewReader(asset.Data))
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
