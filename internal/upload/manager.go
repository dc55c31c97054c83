package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"challenge-media/internal/logging"
	"challenge-media/internal/metrics"
	"challenge-media/internal/storage"
	"challenge-media/internal/tracing"
)

// Completer receives the reassembled bytes of a finished session and
// returns the path of the created image record.
type Completer interface {
	Complete(ctx context.Context, upload Completed) (string, error)
}

// Manager tracks chunked upload sessions. Chunk data is staged in a
// storage.Store under staging/<session>/ and discarded when the session
// reaches a terminal state.
type Manager struct {
	config    Config
	staging   storage.Store
	completer Completer

	mu       sync.Mutex
	sessions map[string]*session

	now      func() time.Time
	newID    func() string
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager.
func NewManager(config Config, staging storage.Store, completer Completer) *Manager {
	return &Manager{
		config:    config.withDefaults(),
		staging:   staging,
		completer: completer,
		sessions:  make(map[string]*session),
		now:       time.Now,
		newID:     uuid.NewString,
		stopChan:  make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// ShouldChunk reports whether an upload of size bytes must use the chunked path.
func (m *Manager) ShouldChunk(size int64) bool {
	return m.config.ShouldChunk(size)
}

// PlanChunks returns the chunk count for size bytes at the default chunk size.
func (m *Manager) PlanChunks(size int64) (int, error) {
	return m.config.PlanChunks(size, 0)
}

// Create registers a new session.
func (m *Manager) Create(_ context.Context, req CreateRequest) (Session, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = m.config.ChunkSize
	}

	total, err := m.config.PlanChunks(req.TotalSize, chunkSize)
	if err != nil {
		return Session{}, err
	}
	if req.TotalChunks != 0 && req.TotalChunks != total {
		return Session{}, fmt.Errorf("%w: %d bytes at %d per chunk is %d chunks, not %d",
			ErrInvalidSession, req.TotalSize, chunkSize, total, req.TotalChunks)
	}

	now := m.now()
	s := &session{
		id:          m.newID(),
		filename:    req.Filename,
		contentType: req.ContentType,
		totalSize:   req.TotalSize,
		chunkSize:   chunkSize,
		totalChunks: total,
		received:    make(map[int]bool, total),
		retries:     make(map[int]int),
		state:       StateCreated,
		createdAt:   now,
		expiresAt:   now.Add(m.config.SessionTimeout),
		updatedAt:   now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	snap := s.snapshot()
	m.mu.Unlock()

	metrics.UploadSessionsActive.Inc()
	metrics.UploadSessionTransitions.WithLabelValues(string(StateCreated)).Inc()
	logging.Debug("Upload session %s created: %s, %d bytes in %d chunks", s.id, req.Filename, req.TotalSize, total)

	return snap, nil
}

// Get returns a snapshot of the session. A session past its expiry is
// expired on read.
func (m *Manager) Get(id string) (Session, error) {
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}
	var keys []string
	if m.pastExpiryLocked(s, now) {
		keys = m.finishLocked(s, StateExpired, ErrSessionExpired, now)
	}
	snap := s.snapshot()
	m.mu.Unlock()

	m.discard(keys)
	return snap, nil
}

// WriteChunk stores chunk index of session id. Duplicate indices overwrite
// the staged data. When the last missing index arrives the chunks are
// reassembled in index order and handed to the Completer; the returned Ack
// then carries the created record path.
func (m *Manager) WriteChunk(ctx context.Context, id string, index int, data []byte) (Ack, error) {
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		return Ack{}, ErrSessionNotFound
	}

	if m.pastExpiryLocked(s, now) {
		keys := m.finishLocked(s, StateExpired, ErrSessionExpired, now)
		m.mu.Unlock()
		m.discard(keys)
		metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		logging.Info("Upload session %s expired, rejecting chunk %d", id, index)
		return Ack{}, ErrSessionExpired
	}

	if s.state.Terminal() {
		ack, err := m.terminalResultLocked(s, index)
		m.mu.Unlock()
		if err != nil {
			metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.UploadChunksTotal.WithLabelValues("duplicate").Inc()
		}
		return ack, err
	}

	if index < 0 || index >= s.totalChunks {
		m.mu.Unlock()
		metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		return Ack{}, fmt.Errorf("%w: %d not in [0, %d)", ErrChunkOutOfRange, index, s.totalChunks)
	}
	if len(data) == 0 || int64(len(data)) > s.chunkSize {
		m.mu.Unlock()
		metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		return Ack{}, fmt.Errorf("%w: %d bytes, chunk size is %d", ErrInvalidChunk, len(data), s.chunkSize)
	}

	if s.completing {
		// Every index is already staged and reassembly is running.
		ack := s.ack(index, true)
		m.mu.Unlock()
		metrics.UploadChunksTotal.WithLabelValues("duplicate").Inc()
		return ack, nil
	}

	if s.state == StateCreated {
		s.state = StateReceiving
		metrics.UploadSessionTransitions.WithLabelValues(string(StateReceiving)).Inc()
	}
	s.inFlight++
	m.mu.Unlock()

	attempts, writeErr := m.stage(ctx, id, index, data)

	now = m.now()
	m.mu.Lock()
	s.inFlight--
	if attempts > 1 {
		s.retries[index] += attempts - 1
		metrics.UploadChunkRetries.Add(float64(attempts - 1))
	}

	// The session finished while this chunk was being written.
	if s.state.Terminal() {
		ack, err := m.terminalResultLocked(s, index)
		m.mu.Unlock()
		if writeErr == nil {
			m.discard([]string{partKey(id, index)})
		}
		if err != nil {
			metrics.UploadChunksTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.UploadChunksTotal.WithLabelValues("duplicate").Inc()
		}
		return ack, err
	}

	if writeErr != nil {
		if ctx.Err() != nil {
			// The client went away; the session stays open for a retry.
			m.mu.Unlock()
			metrics.UploadChunksTotal.WithLabelValues("failed").Inc()
			return Ack{}, writeErr
		}
		ferr := &FailedError{SessionID: id, Err: writeErr, Retriable: storage.IsTransient(writeErr) || errors.Is(writeErr, context.DeadlineExceeded)}
		keys := m.finishLocked(s, StateFailed, ferr, now)
		ack := s.ack(index, false)
		m.mu.Unlock()
		m.discard(keys)
		metrics.UploadChunksTotal.WithLabelValues("failed").Inc()
		metrics.UploadsTotal.WithLabelValues("chunked", "error").Inc()
		logging.Warn("Upload session %s failed writing chunk %d after %d attempts: %v", id, index, attempts, writeErr)
		return ack, ferr
	}

	duplicate := s.received[index]
	s.received[index] = true
	s.updatedAt = now
	if duplicate {
		metrics.UploadChunksTotal.WithLabelValues("duplicate").Inc()
	} else {
		metrics.UploadChunksTotal.WithLabelValues("accepted").Inc()
	}

	if len(s.received) < s.totalChunks || s.completing {
		ack := s.ack(index, duplicate)
		m.mu.Unlock()
		return ack, nil
	}

	s.completing = true
	snap := s.snapshot()
	m.mu.Unlock()

	return m.complete(ctx, s, snap, index)
}

// stage writes one chunk with retries and returns the number of attempts.
func (m *Manager) stage(ctx context.Context, id string, index int, data []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ChunkTimeout)
	defer cancel()

	attempts := 0
	err := storage.Do(ctx, "put", m.config.retryConfig(), func(ctx context.Context) error {
		attempts++
		return m.staging.Put(ctx, partKey(id, index), data, "application/octet-stream")
	})
	return attempts, err
}

// complete reassembles the staged chunks and hands them to the Completer.
// It runs to the end even if the triggering request is cancelled.
func (m *Manager) complete(ctx context.Context, s *session, snap Session, index int) (Ack, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Tracer("upload").Start(ctx, "upload.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("upload.session", snap.ID),
		attribute.Int("upload.chunks", snap.TotalChunks),
		attribute.Int64("upload.bytes", snap.TotalSize),
	)

	data, err := m.reassemble(ctx, snap)
	if err == nil && int64(len(data)) != snap.TotalSize {
		err = fmt.Errorf("%w: got %d bytes, declared %d", ErrChunkMismatch, len(data), snap.TotalSize)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return m.fail(s, index, err)
	}

	path := ""
	if m.completer != nil {
		path, err = m.completer.Complete(ctx, Completed{Session: snap, Data: data})
		if err != nil {
			tracing.RecordError(span, err)
			return m.fail(s, index, err)
		}
	}

	now := m.now()
	m.mu.Lock()
	keys := m.finishLocked(s, StateCompleted, nil, now)
	s.path = path
	ack := s.ack(index, false)
	m.mu.Unlock()
	m.discard(keys)

	metrics.UploadsTotal.WithLabelValues("chunked", "success").Inc()
	metrics.UploadBytes.Observe(float64(snap.TotalSize))
	logging.Info("Upload session %s completed: %s (%d bytes, %d chunks)", snap.ID, path, snap.TotalSize, snap.TotalChunks)
	return ack, nil
}

func (m *Manager) reassemble(ctx context.Context, snap Session) ([]byte, error) {
	data := make([]byte, 0, snap.TotalSize)
	for i := 0; i < snap.TotalChunks; i++ {
		var part []byte
		err := storage.Do(ctx, "get", m.config.retryConfig(), func(ctx context.Context) error {
			var err error
			part, err = m.staging.Get(ctx, partKey(snap.ID, i))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		data = append(data, part...)
	}
	return data, nil
}

func (m *Manager) fail(s *session, index int, cause error) (Ack, error) {
	retriable := !errors.Is(cause, ErrChunkMismatch) && m.config.Retriable(cause)
	ferr := &FailedError{SessionID: s.id, Err: cause, Retriable: retriable}

	now := m.now()
	m.mu.Lock()
	keys := m.finishLocked(s, StateFailed, ferr, now)
	ack := s.ack(index, false)
	m.mu.Unlock()
	m.discard(keys)

	status := "rejected"
	if retriable {
		status = "error"
	}
	metrics.UploadsTotal.WithLabelValues("chunked", status).Inc()
	logging.Warn("Upload session %s failed (retriable=%v): %v", s.id, retriable, cause)
	return ack, ferr
}

// Cancel discards a session and its staged data. Cancelling an already
// cancelled session is a no-op.
func (m *Manager) Cancel(_ context.Context, id string) error {
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	switch {
	case s.state == StateCancelled:
		m.mu.Unlock()
		return nil
	case s.state.Terminal() || s.completing:
		state := s.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionClosed, state)
	}
	keys := m.finishLocked(s, StateCancelled, ErrSessionCancelled, now)
	m.mu.Unlock()

	m.discard(keys)
	logging.Info("Upload session %s cancelled", id)
	return nil
}

// Sweep expires sessions past their expiry and purges tombstones older
// than TombstoneTTL. It returns the number of sessions expired.
func (m *Manager) Sweep(now time.Time) int {
	var keys []string
	expired := 0
	purged := 0

	m.mu.Lock()
	for id, s := range m.sessions {
		if m.pastExpiryLocked(s, now) {
			keys = append(keys, m.finishLocked(s, StateExpired, ErrSessionExpired, now)...)
			expired++
			continue
		}
		if s.state.Terminal() && s.inFlight == 0 && now.Sub(s.finishedAt) > m.config.TombstoneTTL {
			delete(m.sessions, id)
			purged++
		}
	}
	m.mu.Unlock()

	m.discard(keys)
	if expired > 0 || purged > 0 {
		logging.Info("Upload sweep: %d sessions expired, %d tombstones purged", expired, purged)
	}
	return expired
}

// Start begins the background expiry sweep.
func (m *Manager) Start() {
	go m.sweepLoop()
	logging.Info("Upload session sweep started (interval: %v, session timeout: %v)", m.config.SweepInterval, m.config.SessionTimeout)
}

// Stop stops the background sweep.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(m.now())
		case <-m.stopChan:
			return
		}
	}
}

// Active returns the number of sessions that are still accepting chunks.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if !s.state.Terminal() {
			n++
		}
	}
	return n
}

func (m *Manager) pastExpiryLocked(s *session, now time.Time) bool {
	return !s.state.Terminal() && !s.completing && now.After(s.expiresAt)
}

// finishLocked moves s into a terminal state and returns the staged keys
// to discard. It is a no-op for sessions that are already terminal.
func (m *Manager) finishLocked(s *session, state State, err error, now time.Time) []string {
	if s.state.Terminal() {
		return nil
	}

	s.state = state
	s.err = err
	s.completing = false
	s.finishedAt = now
	s.updatedAt = now

	metrics.UploadSessionsActive.Dec()
	metrics.UploadSessionTransitions.WithLabelValues(string(state)).Inc()

	keys := make([]string, 0, len(s.received))
	for i := range s.received {
		keys = append(keys, partKey(s.id, i))
	}
	return keys
}

// terminalResultLocked answers a chunk for a finished session. Completed
// sessions acknowledge late duplicates so that a client retrying the final
// chunk still learns the record path.
func (m *Manager) terminalResultLocked(s *session, index int) (Ack, error) {
	switch s.state {
	case StateCompleted:
		return s.ack(index, true), nil
	case StateExpired:
		return Ack{}, ErrSessionExpired
	case StateCancelled:
		return Ack{}, ErrSessionCancelled
	default:
		if s.err != nil {
			return Ack{}, s.err
		}
		return Ack{}, &FailedError{SessionID: s.id, Err: errors.New("session failed")}
	}
}

// discard deletes staged chunk data. Failures are logged only.
func (m *Manager) discard(keys []string) {
	for _, key := range keys {
		if err := m.staging.Delete(context.Background(), key); err != nil {
			logging.Warn("Failed to discard staged chunk %s: %v", key, err)
		}
	}
}
