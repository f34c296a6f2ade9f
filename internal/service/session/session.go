// Package session owns the live collaboration rooms: their rosters, notes,
// shared-object configuration and the per-room tick loop that batches
// position updates.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pwalder/cospace/backend/internal/model/space"
	"github.com/pwalder/cospace/backend/internal/protocol"
	"github.com/pwalder/cospace/backend/pkg/utils"
)

// Sender delivers outbound events to one connected client. The gateway's
// connection type implements it; tests substitute a recorder.
type Sender interface {
	SendEvent(protocol.Outbound)
}

// Store persists session records and notes. Request-path writes are pushed
// to goroutines and their results ignored; only teardown flushes
// synchronously.
type Store interface {
	SaveSession(ctx context.Context, rec space.SessionRecord) error
	DeleteSession(ctx context.Context, id int) error
	ListSessions(ctx context.Context) ([]space.SessionRecord, error)
	SaveNote(ctx context.Context, sessionID int, n space.Note) error
	DeleteNote(ctx context.Context, sessionID, noteID int) error
	ListNotes(ctx context.Context, sessionID int) ([]space.Note, error)
}

// ActiveUser is the runtime identity of one connection while joined to a
// session. It exists only for the lifetime of that membership and is owned
// exclusively by the session.
type ActiveUser struct {
	ID       int
	Name     string
	Conn     Sender
	Position space.Vec3
	Rotation space.Quat

	positionDirty bool
}

// Session is one collaboration room. All public methods complete
// synchronously against in-memory state under the session mutex; the only
// asynchronous work is persistence.
type Session struct {
	mu    sync.Mutex
	rec   space.SessionRecord
	notes []space.Note
	users []*ActiveUser
	store Store

	// OnBroadcast, when set before Start, is called after every tick that
	// produced a position frame. Used for instrumentation.
	OnBroadcast func()

	running bool
	done    chan struct{}
}

// New builds a session around a record and its persisted notes. The roster
// always starts empty; users are never persisted.
func New(rec space.SessionRecord, notes []space.Note, store Store) *Session {
	return &Session{
		rec:   rec,
		notes: append([]space.Note(nil), notes...),
		store: store,
	}
}

// ID returns the session's globally unique identifier.
func (s *Session) ID() int {
	return s.rec.ID
}

// Record returns a copy of the serializable session state.
func (s *Session) Record() space.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Start launches the tick loop. Starting a running session is a no-op.
func (s *Session) Start(interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if s.Tick() > 0 && s.OnBroadcast != nil {
					s.OnBroadcast()
				}
			}
		}
	}()
}

// Stop halts the tick loop. Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
}

// Join adds a user to the roster, announces the join to the whole roster
// (the joiner included), and replays the current note list to the joiner
// only.
func (s *Session) Join(u *ActiveUser) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = append(s.users, u)
	s.broadcastLocked(protocol.NewClientJoin(userInfo(u)))
	for _, n := range s.notes {
		u.Conn.SendEvent(protocol.NewNoteCreated(n))
	}
	log.Printf("[session %d] %s joined", s.rec.ID, u.Name)
}

// Leave removes a user from the roster and announces it to the remaining
// members. It reports whether the user was present.
func (s *Session) Leave(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.users[:0]
	found := false
	for _, u := range s.users {
		if u.ID == userID {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	s.users = kept
	if found {
		s.broadcastLocked(protocol.NewClientLeave(userID))
		log.Printf("[session %d] user %d left", s.rec.ID, userID)
	}
	return found
}

// HasUser reports whether userID is on the roster.
func (s *Session) HasUser(userID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findUserLocked(userID) != nil
}

// UserNames returns the roster's display names.
func (s *Session) UserNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.users))
	for _, u := range s.users {
		names = append(names, u.Name)
	}
	return names
}

// RenameUser updates a roster member's display name so session summaries
// stay current. Unknown users are a no-op.
func (s *Session) RenameUser(userID int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.findUserLocked(userID); u != nil {
		u.Name = name
	}
}

// UserCount returns the roster size.
func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// UpdatePosition overwrites a user's transform and marks it for the next
// tick. Nothing is broadcast here; the tick coalesces updates.
func (s *Session) UpdatePosition(userID int, pos space.Vec3, rot space.Quat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.findUserLocked(userID)
	if u == nil {
		log.Printf("[session %d] position update for unknown user %d", s.rec.ID, userID)
		return
	}
	if u.Position == pos && u.Rotation == rot {
		// Clients resend their transform every frame; an unchanged one
		// must not re-arm the batch.
		return
	}
	u.Position = pos
	u.Rotation = rot
	u.positionDirty = true
}

// Tick runs one position-batching step: with an empty roster it does
// nothing at all, otherwise it broadcasts a single frame covering exactly
// the users whose transform changed since the last tick. It returns the
// number of users included, which is zero when no frame was sent.
func (s *Session) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.users) == 0 {
		return 0
	}

	var changed []protocol.ClientTransform
	for _, u := range s.users {
		if !u.positionDirty {
			continue
		}
		u.positionDirty = false
		changed = append(changed, protocol.ClientTransform{
			ActiveID: u.ID,
			Position: u.Position,
			Rotation: u.Rotation,
		})
	}
	if len(changed) == 0 {
		return 0
	}

	s.broadcastLocked(protocol.NewClientPosition(changed))
	return len(changed)
}

// SetObjectConfig overwrites the shared object's scale and rotation. The
// object type is immutable after creation and preserved regardless of what
// the caller sends.
func (s *Session) SetObjectConfig(cfg space.ObjectConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.ObjectConfig.Scale = cfg.Scale
	s.rec.ObjectConfig.Rotation = cfg.Rotation
	s.persistRecordLocked()
	s.broadcastLocked(protocol.NewObjectConfig(s.rec.ObjectConfig))
}

// ObjectConfig returns the shared object's current transform.
func (s *Session) ObjectConfig() space.ObjectConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.ObjectConfig
}

// CreateNote assigns a fresh ID to a note carrying the unassigned sentinel,
// stores it and broadcasts it. Notes arriving with a real ID are rejected.
func (s *Session) CreateNote(n space.Note) (space.Note, bool) {
	if n.ID != space.UnassignedNoteID {
		log.Printf("[session %d] rejected new note with preassigned id %d", s.rec.ID, n.ID)
		return space.Note{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	used := make([]int, 0, len(s.notes))
	for _, existing := range s.notes {
		used = append(used, existing.ID)
	}
	n.ID = utils.FirstMissingPositive(used)
	s.notes = append(s.notes, n)
	s.persistNoteLocked(n)
	s.broadcastLocked(protocol.NewNoteCreated(n))
	return n, true
}

// EditNote replaces an existing note's position, kind and content in place.
// Unknown IDs are logged and dropped.
func (s *Session) EditNote(n space.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].ID != n.ID {
			continue
		}
		s.notes[i] = n
		s.persistNoteLocked(n)
		s.broadcastLocked(protocol.NewNoteEdited(n))
		return
	}
	log.Printf("[session %d] edit for unknown note %d", s.rec.ID, n.ID)
}

// DeleteNote removes a note and broadcasts the removal attributed to the
// acting user, so receivers can suppress their own echo.
func (s *Session) DeleteNote(userID, noteID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.notes[:0]
	found := false
	for _, n := range s.notes {
		if n.ID == noteID {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	s.notes = kept
	if !found {
		log.Printf("[session %d] delete for unknown note %d", s.rec.ID, noteID)
		return
	}

	sessionID := s.rec.ID
	go func() {
		if err := s.store.DeleteNote(context.Background(), sessionID, noteID); err != nil {
			log.Printf("[session %d] delete note %d: %v", sessionID, noteID, err)
		}
	}()
	s.broadcastLocked(protocol.NewNoteDeleted(noteID, userID))
}

// Notes returns a copy of the session's note list.
func (s *Session) Notes() []space.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]space.Note(nil), s.notes...)
}

// SendNotes replays the full note list to one client.
func (s *Session) SendNotes(to Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		to.SendEvent(protocol.NewNoteCreated(n))
	}
}

// Broadcast sends an event to every roster member.
func (s *Session) Broadcast(e protocol.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(e)
}

// Unload is the only supported teardown path: it notifies and clears the
// roster, stops the tick loop, and flushes the record synchronously so no
// tick can race a half-written state.
func (s *Session) Unload(ctx context.Context) {
	s.mu.Lock()
	for _, u := range s.users {
		u.Conn.SendEvent(protocol.NewClientLeave(u.ID))
	}
	s.broadcastLocked(protocol.NewSessionDeleted(s.rec.ID))
	s.users = nil
	rec := s.rec
	s.mu.Unlock()

	s.Stop()
	if err := s.store.SaveSession(ctx, rec); err != nil {
		log.Printf("[session %d] flush on unload: %v", rec.ID, err)
	}
	log.Printf("[session %d] unloaded", rec.ID)
}

func (s *Session) findUserLocked(userID int) *ActiveUser {
	for _, u := range s.users {
		if u.ID == userID {
			return u
		}
	}
	return nil
}

func (s *Session) broadcastLocked(e protocol.Outbound) {
	for _, u := range s.users {
		u.Conn.SendEvent(e)
	}
}

func (s *Session) persistRecordLocked() {
	rec := s.rec
	go func() {
		if err := s.store.SaveSession(context.Background(), rec); err != nil {
			log.Printf("[session %d] save: %v", rec.ID, err)
		}
	}()
}

func (s *Session) persistNoteLocked(n space.Note) {
	sessionID := s.rec.ID
	go func() {
		if err := s.store.SaveNote(context.Background(), sessionID, n); err != nil {
			log.Printf("[session %d] save note %d: %v", sessionID, n.ID, err)
		}
	}()
}

func userInfo(u *ActiveUser) protocol.UserInfo {
	return protocol.UserInfo{
		ActiveID: u.ID,
		UserName: u.Name,
		Position: u.Position,
		Rotation: u.Rotation,
	}
}
