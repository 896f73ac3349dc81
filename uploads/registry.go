// Package uploads associates uploaded CSV payloads with data sources for
// the duration of an extraction session. Bindings are scoped per session:
// two users preparing extractions concurrently never see each other's
// files. Payloads live in process memory only; a restart discards them.
package uploads

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/carlodf/harvest/opener"
)

// ErrEmptyPayload rejects zero-byte uploads at bind time.
var ErrEmptyPayload = errors.New("uploads: empty payload")

// Registry holds per-session payload bindings keyed by data source id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[int64]opener.Payload
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]map[int64]opener.Payload{}}
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Bind associates a payload with a data source inside one session,
// replacing any prior binding for that source.
func (r *Registry) Bind(sessionID string, dataSourceID int64, p opener.Payload) error {
	if len(p.Data) == 0 {
		return ErrEmptyPayload
	}
	// Normalize away a UTF-8 BOM so header matching stays byte-exact.
	p.Data = bytes.TrimPrefix(p.Data, []byte{0xEF, 0xBB, 0xBF})

	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		sess = map[int64]opener.Payload{}
		r.sessions[sessionID] = sess
	}
	sess[dataSourceID] = p
	return nil
}

// Get returns the payload currently bound to the data source in the given
// session.
func (r *Registry) Get(sessionID string, dataSourceID int64) (opener.Payload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sessions[sessionID][dataSourceID]
	return p, ok
}

// Drop removes every binding of one session.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// Session returns a read-only view over one session's bindings, in the
// shape the extraction engine consumes.
func (r *Registry) Session(sessionID string) Session {
	return Session{reg: r, id: sessionID}
}

// Session resolves data source ids to their bound payloads.
type Session struct {
	reg *Registry
	id  string
}

// Payloads returns the opener for the data source's bound payload, if any.
// Uploaded payloads are always a single part.
func (s Session) Payloads(dataSourceID int64) ([]opener.Opener, bool) {
	p, ok := s.reg.Get(s.id, dataSourceID)
	if !ok {
		return nil, false
	}
	return []opener.Opener{p}, true
}

// ID returns the session identifier.
func (s Session) ID() string {
	return s.id
}
