package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
)

// Session is one open document form
type Session struct {
	ID           string
	DocumentType string
	DocumentID   string
	Form         *DocumentFormController
	CreatedAt    time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

// LastUsed returns when the session was last looked up
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// SessionManager keeps the open document forms. Sessions share nothing but
// the backend and the identity provider.
type SessionManager struct {
	registry *doctype.Registry
	backend  port.Backend
	identity port.IdentityProvider
	logger   Logger
	formOpts []FormOption
	onChange func(open int)
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithSessionFormOptions applies opts to every form the manager opens
func WithSessionFormOptions(opts ...FormOption) SessionOption {
	return func(m *SessionManager) {
		m.formOpts = append(m.formOpts, opts...)
	}
}

// WithSessionGauge calls fn with the number of open sessions after every change
func WithSessionGauge(fn func(open int)) SessionOption {
	return func(m *SessionManager) {
		m.onChange = fn
	}
}

// WithSessionClock replaces time.Now
func WithSessionClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a manager for the document types in registry
func NewSessionManager(registry *doctype.Registry, backend port.Backend, identity port.IdentityProvider, logger Logger, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		registry: registry,
		backend:  backend,
		identity: identity,
		logger:   loggerOrNop(logger),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a session and loads the document into it. A session whose
// load failed is still returned with the error so the caller can retry it,
// unless the failure cannot be fixed by retrying.
func (m *SessionManager) Open(ctx context.Context, documentType, documentID string) (*Session, error) {
	cfg, err := m.registry.Get(documentType)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:           uuid.NewString(),
		DocumentType: cfg.Name,
		DocumentID:   documentID,
		Form:         NewDocumentFormController(cfg, m.backend, m.identity, m.logger, m.formOpts...),
		CreatedAt:    now,
		lastUsed:     now,
	}

	loadErr := sess.Form.Load(ctx, documentID)
	if loadErr != nil && !keepFailedSession(loadErr) {
		sess.Form.Close()
		return nil, loadErr
	}
	sess.DocumentID = sess.Form.DocumentID()

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	open := len(m.sessions)
	m.mu.Unlock()
	m.changed(open)

	m.logger.Info("Session opened",
		"session_id", sess.ID,
		"document_type", sess.DocumentType,
		"document_id", sess.DocumentID,
		"state", sess.Form.State())
	return sess, loadErr
}

func keepFailedSession(err error) bool {
	var authErr *apperrors.AuthRequiredError
	switch {
	case errors.Is(err, apperrors.ErrMissingIdentity),
		errors.Is(err, apperrors.ErrDocumentNotFound),
		errors.As(err, &authErr):
		return false
	}
	return true
}

// Get returns the session and marks it used
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, id)
	}
	sess.touch(m.now())
	return sess, nil
}

// Close discards the session
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	open := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrSessionNotFound, id)
	}

	sess.Form.Close()
	m.changed(open)
	m.logger.Info("Session closed", "session_id", id, "document_type", sess.DocumentType, "document_id", sess.DocumentID)
	return nil
}

// Sweep closes sessions unused for longer than idle and returns how many it closed
func (m *SessionManager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for id, sess := range m.sessions {
		if sess.LastUsed().Before(cutoff) {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	open := len(m.sessions)
	m.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	for _, sess := range stale {
		sess.Form.Close()
		m.logger.Debug("Session expired", "session_id", sess.ID, "document_id", sess.DocumentID)
	}
	m.changed(open)
	return len(stale)
}

// Count returns the number of open sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns the open sessions, oldest first
func (m *SessionManager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseAll discards every session
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Form.Close()
	}
	m.changed(0)
}

// Registry returns the document types the manager opens
func (m *SessionManager) Registry() *doctype.Registry {
	return m.registry
}

func (m *SessionManager) changed(open int) {
	if m.onChange != nil {
		m.onChange(open)
	}
}
