package upload

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of an upload session.
type State string

const (
	StateCreated   State = "created"
	StateReceiving State = "receiving"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateExpired, StateCancelled, StateFailed:
		return true
	}
	return false
}

var (
	// ErrSessionNotFound is returned for unknown (or already purged) session ids.
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrSessionExpired is returned for any chunk that arrives after the session expiry.
	ErrSessionExpired = errors.New("upload session expired")
	// ErrSessionCancelled is returned for chunks sent to a cancelled session.
	ErrSessionCancelled = errors.New("upload session cancelled")
	// ErrSessionClosed is returned when cancelling a session that already finished.
	ErrSessionClosed = errors.New("upload session already finished")
	// ErrChunkMismatch is returned when reassembled bytes disagree with the declared size.
	ErrChunkMismatch = errors.New("reassembled size does not match declared size")
	// ErrChunkOutOfRange is returned for an index outside [0, totalChunks).
	ErrChunkOutOfRange = errors.New("chunk index out of range")
	// ErrInvalidChunk is returned for empty or oversized chunk payloads.
	ErrInvalidChunk = errors.New("invalid chunk payload")
	// ErrInvalidSession is returned when session parameters are inconsistent.
	ErrInvalidSession = errors.New("invalid upload session parameters")
	// ErrTooManyChunks is returned when a file would need more than MaxChunks chunks.
	ErrTooManyChunks = errors.New("upload needs too many chunks")
)

// FailedError is the terminal error of a failed session. Retriable tells
// the client whether starting a new upload is worth trying.
type FailedError struct {
	SessionID string
	Err       error
	Retriable bool
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("upload session %s failed: %v", e.SessionID, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// CreateRequest describes a new chunked upload.
type CreateRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	TotalSize   int64  `json:"totalSize"`
	// ChunkSize defaults to the configured chunk size when zero.
	ChunkSize int64 `json:"chunkSize,omitempty"`
	// TotalChunks is optional; when set it must agree with TotalSize and ChunkSize.
	TotalChunks int `json:"totalChunks,omitempty"`
}

// Session is a point-in-time snapshot of an upload session.
type Session struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"contentType"`
	TotalSize   int64       `json:"totalSize"`
	ChunkSize   int64       `json:"chunkSize"`
	TotalChunks int         `json:"totalChunks"`
	Received    []int       `json:"received"`
	Retries     map[int]int `json:"retries,omitempty"`
	State       State       `json:"state"`
	Path        string      `json:"path,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Completed is handed to the Completer once every chunk has arrived.
type Completed struct {
	Session Session
	Data    []byte
}

// Ack acknowledges one chunk write.
type Ack struct {
	SessionID   string `json:"sessionId"`
	Index       int    `json:"index"`
	Received    int    `json:"received"`
	TotalChunks int    `json:"totalChunks"`
	Duplicate   bool   `json:"duplicate,omitempty"`
	State       State  `json:"state"`
	Complete    bool   `json:"complete"`
	Path        string `json:"path,omitempty"`
}

// session is the mutable internal state guarded by Manager.mu.
type session struct {
	id          string
	filename    string
	contentType string
	totalSize   int64
	chunkSize   int64
	totalChunks int
	received    map[int]bool
	retries     map[int]int
	state       State
	path        string
	err         error
	createdAt   time.Time
	expiresAt   time.Time
	updatedAt   time.Time
	// finishedAt is set on entering a terminal state; tombstones are purged
	// relative to it.
	finishedAt time.Time
	// completing is set while reassembly and handoff are in progress.
	completing bool
	inFlight   int
}

func (s *session) snapshot() Session {
	received := make([]int, 0, len(s.received))
	for i := 0; i < s.totalChunks; i++ {
		if s.received[i] {
			received = append(received, i)
		}
	}

	var retries map[int]int
	if len(s.retries) > 0 {
		retries = make(map[int]int, len(s.retries))
		for k, v := range s.retries {
			retries[k] = v
		}
	}

	snap := Session{
		ID:          s.id,
		Filename:    s.filename,
		ContentType: s.contentType,
		TotalSize:   s.totalSize,
		ChunkSize:   s.chunkSize,
		TotalChunks: s.totalChunks,
		Received:    received,
		Retries:     retries,
		State:       s.state,
		Path:        s.path,
		CreatedAt:   s.createdAt,
		ExpiresAt:   s.expiresAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

func (s *session) ack(index int, duplicate bool) Ack {
	return Ack{
		SessionID:   s.id,
		Index:       index,
		Received:    len(s.received),
		TotalChunks: s.totalChunks,
		Duplicate:   duplicate,
		State:       s.state,
		Complete:    s.state == StateCompleted,
		Path:        s.path,
	}
}

func partKey(id string, index int) string {
	return fmt.Sprintf("staging/%s/%06d.part", id, index)
}
