package realtime

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrEntryExists is returned by Create when the connection already has an
// active transcription.
var ErrEntryExists = errors.New("realtime: connection already has an active transcription")

// Entry is the in-memory state of one active transcription.
type Entry struct {
	ConnectionID string
	SessionID    string
	OwnerID      string
	// Transcript is the full live transcript, seeded with the persisted one.
	Transcript string
	// Flushed is the transcript as of the last successful flush.
	Flushed        string
	StartedAt      time.Time
	LastActivityAt time.Time
	LastFlushAt    time.Time
}

// Dirty reports whether Transcript has changed since the last flush.
func (e Entry) Dirty() bool {
	return e.Transcript != e.Flushed
}

// Registry maps connection ids to active transcriptions. Every method takes
// the same mutex and returns copies, so entries never escape.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{entries: make(map[string]*Entry), now: clock}
}

// Create adds an entry seeded with the persisted transcript.
func (r *Registry) Create(connID, sessionID, ownerID, initialTranscript string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connID]; ok {
		return nil, ErrEntryExists
	}
	now := r.now()
	e := &Entry{
		ConnectionID:   connID,
		SessionID:      sessionID,
		OwnerID:        ownerID,
		Transcript:     initialTranscript,
		Flushed:        initialTranscript,
		StartedAt:      now,
		LastActivityAt: now,
		LastFlushAt:    now,
	}
	r.entries[connID] = e
	cp := *e
	return &cp, nil
}

// Get returns a snapshot of the entry.
func (r *Registry) Get(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// AppendText joins text onto the transcript with a single space and
// refreshes activity. Absent connections and blank text are ignored.
func (r *Registry) AppendText(connID, text string) {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return
	}
	e.LastActivityAt = r.now()
	if text == "" {
		return
	}
	if e.Transcript == "" {
		e.Transcript = text
	} else {
		e.Transcript += " " + text
	}
}

// Touch refreshes activity only.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[connID]; ok {
		e.LastActivityAt = r.now()
	}
}

// MarkFlushed records a successful flush of transcript at time at.
func (r *Registry) MarkFlushed(connID, transcript string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return
	}
	e.Flushed = transcript
	e.LastFlushAt = at
	if at.After(e.LastActivityAt) {
		e.LastActivityAt = at
	}
}

// Remove deletes and returns the entry.
func (r *Registry) Remove(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, connID)
	return *e, true
}

// ListStale returns connections idle for longer than timeout. It does not
// remove them.
func (r *Registry) ListStale(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, e := range r.entries {
		if now.Sub(e.LastActivityAt) > timeout {
			stale = append(stale, id)
		}
	}
	return stale
}

// HasSession reports whether an entry exists for sessionID.
func (r *Registry) HasSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Len returns the number of active transcriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the connection IDs of every active transcription.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
