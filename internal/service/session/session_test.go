package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pwalder/cospace/backend/internal/model/space"
	"github.com/pwalder/cospace/backend/internal/protocol"
	"github.com/pwalder/cospace/backend/internal/service/session"
)

// memStore is an in-memory Store double; the sqlite implementation has its
// own tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[int]space.SessionRecord
	notes    map[int]map[int]space.Note
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[int]space.SessionRecord),
		notes:    make(map[int]map[int]space.Note),
	}
}

func (m *memStore) SaveSession(_ context.Context, rec space.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.notes, id)
	return nil
}

func (m *memStore) ListSessions(_ context.Context) ([]space.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []space.SessionRecord
	for _, rec := range m.sessions {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) SaveNote(_ context.Context, sessionID int, n space.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notes[sessionID] == nil {
		m.notes[sessionID] = make(map[int]space.Note)
	}
	m.notes[sessionID][n.ID] = n
	return nil
}

func (m *memStore) DeleteNote(_ context.Context, sessionID, noteID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notes[sessionID], noteID)
	return nil
}

func (m *memStore) ListNotes(_ context.Context, sessionID int) ([]space.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []space.Note
	for _, n := range m.notes[sessionID] {
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) savedSession(id int) (space.SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	return rec, ok
}

// recorder captures events sent to one fake connection.
type recorder struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (r *recorder) SendEvent(e protocol.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []protocol.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Outbound(nil), r.events...)
}

func (r *recorder) count(match func(protocol.Outbound) bool) int {
	n := 0
	for _, e := range r.all() {
		if match(e) {
			n++
		}
	}
	return n
}

func isPosition(e protocol.Outbound) bool {
	_, ok := e.(protocol.ClientPositionEvent)
	return ok
}

func newTestSession(id int) (*session.Session, *memStore) {
	store := newMemStore()
	rec := space.SessionRecord{
		ID:          id,
		Host:        "alice",
		SessionName: "Demo",
		ObjectConfig: space.ObjectConfig{
			ObjectType: "cube",
			Scale:      space.Vec3{X: 1, Y: 1, Z: 1},
		},
	}
	return session.New(rec, nil, store), store
}

func user(id int, name string) (*session.ActiveUser, *recorder) {
	rec := &recorder{}
	return &session.ActiveUser{ID: id, Name: name, Conn: rec}, rec
}

func TestJoinBroadcastsToEveryoneIncludingJoiner(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	b, bEvents := user(2, "bob")

	s.Join(a)
	s.Join(b)

	// Alice saw her own join and bob's.
	joins := aEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.ClientJoinEvent)
		return ok
	})
	if joins != 2 {
		t.Fatalf("alice saw %d join events, want 2", joins)
	}
	// Bob saw only his own.
	joins = bEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.ClientJoinEvent)
		return ok
	})
	if joins != 1 {
		t.Fatalf("bob saw %d join events, want 1", joins)
	}
}

func TestJoinReplaysNotesToJoinerOnly(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	s.Join(a)
	s.CreateNote(space.Note{ID: space.UnassignedNoteID, Kind: "text", Content: "existing"})

	before := aEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.NewNoteEvent)
		return ok
	})

	b, bEvents := user(2, "bob")
	s.Join(b)

	got := bEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.NewNoteEvent)
		return ok
	})
	if got != 1 {
		t.Fatalf("joiner received %d note events, want 1", got)
	}
	after := aEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.NewNoteEvent)
		return ok
	})
	if after != before {
		t.Fatalf("existing member received a note replay on someone else's join")
	}
}

func TestRosterInvariant(t *testing.T) {
	s, _ := newTestSession(1)

	for i := 1; i <= 5; i++ {
		u, _ := user(i, "user")
		s.Join(u)
	}
	s.Leave(2)
	s.Leave(4)
	s.Leave(4) // double leave is a no-op

	if s.UserCount() != 3 {
		t.Fatalf("roster size %d, want 3", s.UserCount())
	}
	for _, id := range []int{1, 3, 5} {
		if !s.HasUser(id) {
			t.Fatalf("expected user %d on roster", id)
		}
	}
	for _, id := range []int{2, 4} {
		if s.HasUser(id) {
			t.Fatalf("did not expect user %d on roster", id)
		}
	}
}

func TestRenameUserUpdatesRosterNames(t *testing.T) {
	s, _ := newTestSession(1)
	a, _ := user(1, "alice")
	s.Join(a)

	s.RenameUser(1, "alicia")
	names := s.UserNames()
	if len(names) != 1 || names[0] != "alicia" {
		t.Fatalf("roster names not updated: %v", names)
	}

	// Renaming an absent user changes nothing.
	s.RenameUser(9, "ghost")
	if s.UserCount() != 1 {
		t.Fatalf("rename of unknown user changed the roster: %d members", s.UserCount())
	}
}

func TestLeaveBroadcastsToRemaining(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	b, _ := user(2, "bob")
	s.Join(a)
	s.Join(b)

	if !s.Leave(2) {
		t.Fatal("Leave reported user missing")
	}

	leaves := aEvents.count(func(e protocol.Outbound) bool {
		ev, ok := e.(protocol.ClientLeaveEvent)
		return ok && ev.UserID == 2
	})
	if leaves != 1 {
		t.Fatalf("alice saw %d leave events for bob, want 1", leaves)
	}
}

func TestTickBatchesDirtyUsersOnly(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	b, _ := user(2, "bob")
	c, _ := user(3, "carol")
	s.Join(a)
	s.Join(b)
	s.Join(c)

	// No dirty users: no frame.
	if n := s.Tick(); n != 0 {
		t.Fatalf("tick with clean roster sent %d transforms", n)
	}
	if got := aEvents.count(isPosition); got != 0 {
		t.Fatalf("clean tick produced %d position frames", got)
	}

	s.UpdatePosition(1, space.Vec3{X: 1}, space.Quat{W: 1})
	s.UpdatePosition(3, space.Vec3{Z: -2}, space.Quat{W: 1})

	if n := s.Tick(); n != 2 {
		t.Fatalf("tick covered %d users, want 2", n)
	}
	frames := aEvents.count(isPosition)
	if frames != 1 {
		t.Fatalf("dirty tick produced %d frames, want exactly 1", frames)
	}
	for _, e := range aEvents.all() {
		pos, ok := e.(protocol.ClientPositionEvent)
		if !ok {
			continue
		}
		if len(pos.Clients) != 2 {
			t.Fatalf("frame carries %d transforms, want 2", len(pos.Clients))
		}
		ids := map[int]bool{}
		for _, c := range pos.Clients {
			ids[c.ActiveID] = true
		}
		if !ids[1] || !ids[3] {
			t.Fatalf("frame covers wrong users: %+v", pos.Clients)
		}
	}

	// Flags cleared: the next tick is silent.
	if n := s.Tick(); n != 0 {
		t.Fatalf("second tick resent %d transforms", n)
	}
}

func TestTickSkipsEmptyRoster(t *testing.T) {
	s, _ := newTestSession(1)
	if n := s.Tick(); n != 0 {
		t.Fatalf("tick on empty roster sent %d transforms", n)
	}
}

func TestRepeatedIdenticalPositionsYieldOneFrame(t *testing.T) {
	s, _ := newTestSession(1)
	a, _ := user(1, "alice")
	b, bEvents := user(2, "bob")
	s.Join(a)
	s.Join(b)

	pos := space.Vec3{X: 4}
	rot := space.Quat{W: 1}
	for i := 0; i < 3; i++ {
		s.UpdatePosition(1, pos, rot)
		s.Tick()
	}

	// Only the first update changes the transform; the identical resends
	// must not re-arm the batch.
	if got := bEvents.count(isPosition); got != 1 {
		t.Fatalf("three identical update+tick rounds produced %d frames, want 1", got)
	}
}

func TestNoteLifecycleRoundTrip(t *testing.T) {
	s, _ := newTestSession(1)
	a, _ := user(1, "alice")
	s.Join(a)

	before := len(s.Notes())

	created, ok := s.CreateNote(space.Note{ID: space.UnassignedNoteID, Kind: "text", Content: "v1"})
	if !ok {
		t.Fatal("CreateNote rejected a sentinel note")
	}
	if created.ID < 1 {
		t.Fatalf("assigned note id %d, want positive", created.ID)
	}

	created.Content = "v2"
	s.EditNote(created)

	notes := s.Notes()
	if len(notes) != before+1 || notes[len(notes)-1].Content != "v2" {
		t.Fatalf("unexpected notes after edit: %+v", notes)
	}

	s.DeleteNote(1, created.ID)
	if len(s.Notes()) != before {
		t.Fatalf("note list not restored after delete: %+v", s.Notes())
	}
}

func TestCreateNoteRejectsPreassignedID(t *testing.T) {
	s, _ := newTestSession(1)
	if _, ok := s.CreateNote(space.Note{ID: 7, Content: "spoofed"}); ok {
		t.Fatal("expected rejection of a note without the sentinel id")
	}
	if len(s.Notes()) != 0 {
		t.Fatal("rejected note was stored")
	}
}

func TestNoteIDsReuseSmallestFree(t *testing.T) {
	s, _ := newTestSession(1)

	var ids []int
	for i := 0; i < 3; i++ {
		n, _ := s.CreateNote(space.Note{ID: space.UnassignedNoteID, Content: "n"})
		ids = append(ids, n.ID)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected note ids %v", ids)
	}

	s.DeleteNote(1, 2)
	n, _ := s.CreateNote(space.Note{ID: space.UnassignedNoteID, Content: "again"})
	if n.ID != 2 {
		t.Fatalf("expected freed id 2 to be reused, got %d", n.ID)
	}
}

func TestEditUnknownNoteIsDropped(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	s.Join(a)

	s.EditNote(space.Note{ID: 99, Content: "ghost"})

	if len(s.Notes()) != 0 {
		t.Fatal("edit of unknown note created it")
	}
	edits := aEvents.count(func(e protocol.Outbound) bool {
		_, ok := e.(protocol.EditNoteEvent)
		return ok
	})
	if edits != 0 {
		t.Fatalf("edit of unknown note broadcast %d events", edits)
	}
}

func TestSetObjectConfigKeepsTypeImmutable(t *testing.T) {
	s, _ := newTestSession(1)
	a, aEvents := user(1, "alice")
	s.Join(a)

	s.SetObjectConfig(space.ObjectConfig{
		ObjectType: "sphere", // ignored
		Scale:      space.Vec3{X: 3, Y: 3, Z: 3},
		Rotation:   space.Quat{W: 0.5},
	})

	cfg := s.ObjectConfig()
	if cfg.ObjectType != "cube" {
		t.Fatalf("object type changed to %q", cfg.ObjectType)
	}
	if cfg.Scale.X != 3 || cfg.Rotation.W != 0.5 {
		t.Fatalf("transform not applied: %+v", cfg)
	}

	got := aEvents.count(func(e protocol.Outbound) bool {
		ev, ok := e.(protocol.ObjectConfigEvent)
		return ok && ev.Config.ObjectType == "cube"
	})
	if got != 1 {
		t.Fatalf("expected one objectConfig broadcast with original type, got %d", got)
	}
}

func TestUnloadKicksFlushesAndStops(t *testing.T) {
	s, store := newTestSession(1)
	a, aEvents := user(1, "alice")
	s.Join(a)
	s.SetObjectConfig(space.ObjectConfig{Scale: space.Vec3{X: 9}})

	s.Unload(context.Background())

	if s.UserCount() != 0 {
		t.Fatal("roster not cleared on unload")
	}
	kicked := aEvents.count(func(e protocol.Outbound) bool {
		ev, ok := e.(protocol.ClientLeaveEvent)
		return ok && ev.UserID == 1
	})
	if kicked != 1 {
		t.Fatalf("member received %d kick notices, want 1", kicked)
	}
	rec, ok := store.savedSession(1)
	if !ok || rec.ObjectConfig.Scale.X != 9 {
		t.Fatalf("unload did not flush current state: %+v", rec)
	}

	// Stop twice more: must stay a no-op.
	s.Stop()
	s.Stop()
}
