package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gorilla/mux"

	"challenge-media/internal/upload"
)

// CreateUpload starts a chunked upload session.
//
//	POST /api/uploads {"filename": "a.jpg", "contentType": "image/jpeg", "totalSize": 31457280}
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req upload.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Filename = path.Base(req.Filename)

	session, err := h.uploads.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/uploads/"+session.ID)
	writeJSON(w, http.StatusCreated, session)
}

// GetUpload reports the state of a session, including which chunk indices
// have been received, so a client can resume.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	session, err := h.uploads.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, session)
}

// PutChunk stores one chunk. The body is the raw chunk bytes. The response
// to the chunk that completes the upload carries the stored image path.
func (h *Handlers) PutChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: chunk index %q", errBadRequest, vars["index"]))
		return
	}

	session, err := h.uploads.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// One byte past the chunk size is enough for the manager to reject it.
	data, err := io.ReadAll(io.LimitReader(r.Body, session.ChunkSize+1))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: reading chunk: %v", errBadRequest, err))
		return
	}

	ack, err := h.uploads.WriteChunk(r.Context(), id, index, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if ack.Complete && !ack.Duplicate {
		status = http.StatusCreated
	}
	writeJSON(w, status, ack)
}

// CancelUpload cancels a session and discards its staged chunks.
func (h *Handlers) CancelUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
