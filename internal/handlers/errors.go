package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"challenge-media/internal/codec"
	"challenge-media/internal/database"
	"challenge-media/internal/ingest"
	"challenge-media/internal/logging"
	"challenge-media/internal/middleware"
	"challenge-media/internal/resolver"
	"challenge-media/internal/storage"
	"challenge-media/internal/upload"
)

var (
	errBadRequest    = errors.New("bad request")
	errChunkedUpload = errors.New("file exceeds the single-shot limit, use a chunked upload")
	errTooManyPaths  = errors.New("too many paths in one request")
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retriable bool   `json:"retriable"`
	// Restart tells chunked upload clients to create a new session.
	Restart bool `json:"restart,omitempty"`
}

type errorClass struct {
	status  int
	code    string
	restart bool
}

// classify maps an error to its HTTP status and stable code. A failed
// upload session is classified by its cause, and always needs a restart.
func classify(err error) errorClass {
	class := classifyCause(err)

	var failed *upload.FailedError
	if errors.As(err, &failed) {
		class.restart = true
		if class.code == "internal" {
			class.code = "upload_failed"
			if failed.Retriable {
				class.status = http.StatusServiceUnavailable
			}
		}
	}
	return class
}

func classifyCause(err error) errorClass {
	switch {
	case errors.Is(err, errBadRequest):
		return errorClass{http.StatusBadRequest, "bad_request", false}
	case errors.Is(err, errChunkedUpload):
		return errorClass{http.StatusRequestEntityTooLarge, "chunked_upload_required", false}
	case errors.Is(err, errTooManyPaths):
		return errorClass{http.StatusRequestEntityTooLarge, "too_many_paths", false}

	case errors.Is(err, codec.ErrUnsupportedFormat):
		return errorClass{http.StatusUnsupportedMediaType, "unsupported_format", false}
	case errors.Is(err, codec.ErrCorruptImage):
		return errorClass{http.StatusUnprocessableEntity, "corrupt_image", false}
	case errors.Is(err, codec.ErrImageTooLarge):
		return errorClass{http.StatusRequestEntityTooLarge, "image_too_large", false}
	case errors.Is(err, codec.ErrOverloaded):
		return errorClass{http.StatusServiceUnavailable, "overloaded", false}

	case errors.Is(err, upload.ErrSessionExpired):
		return errorClass{http.StatusGone, "session_expired", true}
	case errors.Is(err, upload.ErrSessionCancelled):
		return errorClass{http.StatusGone, "session_cancelled", true}
	case errors.Is(err, upload.ErrSessionNotFound):
		return errorClass{http.StatusNotFound, "session_not_found", true}
	case errors.Is(err, upload.ErrChunkMismatch):
		return errorClass{http.StatusUnprocessableEntity, "chunk_mismatch", true}
	case errors.Is(err, upload.ErrSessionClosed):
		return errorClass{http.StatusConflict, "session_closed", false}
	case errors.Is(err, upload.ErrChunkOutOfRange):
		return errorClass{http.StatusBadRequest, "chunk_out_of_range", false}
	case errors.Is(err, upload.ErrInvalidChunk):
		return errorClass{http.StatusBadRequest, "invalid_chunk", false}
	case errors.Is(err, upload.ErrInvalidSession):
		return errorClass{http.StatusBadRequest, "invalid_session", false}
	case errors.Is(err, upload.ErrTooManyChunks):
		return errorClass{http.StatusRequestEntityTooLarge, "too_many_chunks", false}

	case errors.Is(err, resolver.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return errorClass{http.StatusNotFound, "not_found", false}
	case errors.Is(err, database.ErrDuplicatePath):
		return errorClass{http.StatusConflict, "duplicate_path", false}
	case errors.Is(err, database.ErrInvalidVariant):
		return errorClass{http.StatusBadRequest, "invalid_variant", false}

	case errors.Is(err, context.DeadlineExceeded):
		return errorClass{http.StatusServiceUnavailable, "timeout", false}
	case storage.IsTransient(err):
		return errorClass{http.StatusServiceUnavailable, "storage_unavailable", false}
	}
	return errorClass{http.StatusInternalServerError, "internal", false}
}

// writeError writes the JSON error body for err. Server-side failures are
// logged with the request ID; their details are not sent to the client.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := classify(err)
	retriable := ingest.IsRetriable(err)

	msg := err.Error()
	if class.status >= http.StatusInternalServerError {
		logging.Error("%s %s failed [%s]: %v", r.Method, r.URL.Path, middleware.RequestIDFromContext(r.Context()), err)
		if class.code == "internal" {
			msg = "internal server error"
		}
	} else {
		logging.Debug("%s %s rejected with %d: %v", r.Method, r.URL.Path, class.status, err)
	}

	if class.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.config.RetryAfter.Seconds())))
	}

	writeJSON(w, class.status, ErrorResponse{
		Error:     msg,
		Code:      class.code,
		Retriable: retriable,
		Restart:   class.restart,
	})
}
