package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pwalder/cospace/backend/internal/model/space"
	"github.com/pwalder/cospace/backend/internal/protocol"
	"github.com/pwalder/cospace/backend/pkg/utils"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownObject   = errors.New("unknown object type")
)

// ObjectDefaults supplies the catalog's template knowledge to session
// creation.
type ObjectDefaults interface {
	Has(objectType string) bool
	DefaultConfig(objectType string) space.ObjectConfig
}

// Manager is the single source of truth for which sessions exist and which
// session a user belongs to. It owns the session-ID namespace and every
// session's tick loop.
type Manager struct {
	mu       sync.Mutex
	sessions map[int]*Session

	store    Store
	defaults ObjectDefaults
	tick     time.Duration

	// OnSessionCountChange and OnPositionBroadcast, when set before use,
	// feed instrumentation. Both may stay nil.
	OnSessionCountChange func(n int)
	OnPositionBroadcast  func()
}

// NewManager builds an empty registry ticking each session at the given
// interval.
func NewManager(store Store, defaults ObjectDefaults, tick time.Duration) *Manager {
	return &Manager{
		sessions: make(map[int]*Session),
		store:    store,
		defaults: defaults,
		tick:     tick,
	}
}

// Create allocates the smallest free session ID, builds the session around
// the catalog's default config for the requested object type, persists the
// initial state, auto-joins the host, and starts the tick loop.
func (m *Manager) Create(sessionName, objectType string, host *ActiveUser) (*Session, error) {
	if !m.defaults.Has(objectType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, objectType)
	}

	m.mu.Lock()
	used := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		used = append(used, id)
	}
	id := utils.FirstMissingPositive(used)

	rec := space.SessionRecord{
		ID:           id,
		Host:         host.Name,
		SessionName:  sessionName,
		ObjectConfig: m.defaults.DefaultConfig(objectType),
	}
	s := New(rec, nil, m.store)
	s.OnBroadcast = m.OnPositionBroadcast
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.notifyCount(count)
	log.Printf("[sessions] %s created session %q (id %d, object %s)", host.Name, sessionName, id, objectType)

	// The initial record is written synchronously so a create followed by an
	// immediate delete can never leave a stale row behind.
	if err := m.store.SaveSession(context.Background(), rec); err != nil {
		log.Printf("[sessions] save new session %d: %v", id, err)
	}

	s.Join(host)
	s.Start(m.tick)
	return s, nil
}

// LoadAll reconstructs every persisted session and makes it live with an
// empty roster. Fine while session counts stay small; revisit before
// hosting thousands.
func (m *Manager) LoadAll(ctx context.Context) error {
	recs, err := m.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		notes, err := m.store.ListNotes(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("load notes for session %d: %w", rec.ID, err)
		}
		s := New(rec, notes, m.store)
		s.OnBroadcast = m.OnPositionBroadcast

		m.mu.Lock()
		m.sessions[rec.ID] = s
		m.mu.Unlock()

		s.Start(m.tick)
		log.Printf("[sessions] loaded session %d (%q)", rec.ID, rec.SessionName)
	}
	m.notifyCount(m.Count())
	return nil
}

func (m *Manager) notifyCount(n int) {
	if m.OnSessionCountChange != nil {
		m.OnSessionCountChange(n)
	}
}

// Get returns the session with the given ID.
func (m *Manager) Get(id int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionFor scans all rosters for the user's current session.
func (m *Manager) SessionFor(userID int) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.HasUser(userID) {
			return s, true
		}
	}
	return nil, false
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ReducedSessions summarizes all live sessions for the session list.
func (m *Manager) ReducedSessions() []protocol.ReducedSession {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]protocol.ReducedSession, 0, len(sessions))
	for _, s := range sessions {
		rec := s.Record()
		out = append(out, protocol.ReducedSession{
			SessionID:     rec.ID,
			SessionName:   rec.SessionName,
			Host:          rec.Host,
			CentralObject: rec.ObjectConfig.ObjectType,
			Users:         s.UserNames(),
		})
	}
	return out
}

// Delete unloads a session and purges it from the store.
func (m *Manager) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.notifyCount(count)

	s.Unload(ctx)
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("purge session %d: %w", id, err)
	}
	log.Printf("[sessions] deleted session %d", id)
	return nil
}

// CloseAll unloads every session, flushing state; persisted records stay.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[int]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Unload(ctx)
	}
	m.notifyCount(0)
}

// DropUser removes the user from whichever session holds them, if any.
func (m *Manager) DropUser(userID int) {
	if s, ok := m.SessionFor(userID); ok {
		s.Leave(userID)
	}
}

// RenameUser updates the user's roster entry in whichever session holds
// them, if any.
func (m *Manager) RenameUser(userID int, name string) {
	if s, ok := m.SessionFor(userID); ok {
		s.RenameUser(userID, name)
	}
}

// UpdatePosition routes a transform update to the user's session; a user in
// no session is a silent no-op.
func (m *Manager) UpdatePosition(userID int, pos space.Vec3, rot space.Quat) {
	s, ok := m.SessionFor(userID)
	if !ok {
		log.Printf("[sessions] position from user %d outside any session", userID)
		return
	}
	s.UpdatePosition(userID, pos, rot)
}

// SetObjectConfig routes an object-config change to the user's session.
func (m *Manager) SetObjectConfig(userID int, cfg space.ObjectConfig) {
	s, ok := m.SessionFor(userID)
	if !ok {
		log.Printf("[sessions] object config from user %d outside any session", userID)
		return
	}
	s.SetObjectConfig(cfg)
}

// CreateNote routes note creation to the user's session.
func (m *Manager) CreateNote(userID int, n space.Note) {
	s, ok := m.SessionFor(userID)
	if !ok {
		log.Printf("[sessions] note from user %d outside any session", userID)
		return
	}
	s.CreateNote(n)
}

// EditNote routes a note edit to the user's session.
func (m *Manager) EditNote(userID int, n space.Note) {
	s, ok := m.SessionFor(userID)
	if !ok {
		log.Printf("[sessions] note edit from user %d outside any session", userID)
		return
	}
	s.EditNote(n)
}

// DeleteNote routes a note removal to the user's session.
func (m *Manager) DeleteNote(userID, noteID int) {
	s, ok := m.SessionFor(userID)
	if !ok {
		log.Printf("[sessions] note delete from user %d outside any session", userID)
		return
	}
	s.DeleteNote(userID, noteID)
}

// SendNotes replays the user's session's notes to one client.
func (m *Manager) SendNotes(userID int, to Sender) {
	s, ok := m.SessionFor(userID)
	if !ok {
		return
	}
	s.SendNotes(to)
}
