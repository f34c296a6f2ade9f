package protocol

import "github.com/pwalder/cospace/backend/internal/model/space"

// Outbound is implemented by every server-to-client frame variant. Each
// variant carries its own eventType tag so a frame serializes with a plain
// json.Marshal.
type Outbound interface {
	outbound()
}

// UserInfo is the client-visible view of a joined user; the connection
// itself is never serialized.
type UserInfo struct {
	ActiveID int        `json:"activeId"`
	UserName string     `json:"userName"`
	Position space.Vec3 `json:"position"`
	Rotation space.Quat `json:"rotation"`
}

// ClientTransform is one entry of a batched position frame.
type ClientTransform struct {
	ActiveID int        `json:"activeId"`
	Position space.Vec3 `json:"position"`
	Rotation space.Quat `json:"rotation"`
}

// ReducedSession summarizes one live session for the session list.
type ReducedSession struct {
	SessionID     int      `json:"sessionId"`
	SessionName   string   `json:"sessionName"`
	Host          string   `json:"host"`
	CentralObject string   `json:"centralObject"`
	Users         []string `json:"users"`
}

// SessionListEvent carries summaries of all live sessions.
type SessionListEvent struct {
	EventType   string           `json:"eventType"`
	SessionList []ReducedSession `json:"sessionList"`
}

// NewSessionEvent confirms session creation to the creator.
type NewSessionEvent struct {
	EventType    string             `json:"eventType"`
	ID           int                `json:"id"`
	Host         string             `json:"host"`
	SessionName  string             `json:"sessionName"`
	ObjectConfig space.ObjectConfig `json:"objectConfig"`
}

// JoinSessionEvent confirms a join to the joining user.
type JoinSessionEvent struct {
	EventType    string             `json:"eventType"`
	ID           int                `json:"id"`
	SessionName  string             `json:"sessionName"`
	Host         string             `json:"host"`
	ObjectConfig space.ObjectConfig `json:"objectConfig"`
}

// ClientJoinEvent announces a new roster member to the whole roster.
type ClientJoinEvent struct {
	EventType string   `json:"eventType"`
	User      UserInfo `json:"user"`
}

// ClientLeaveEvent announces a roster member leaving or being kicked.
type ClientLeaveEvent struct {
	EventType string `json:"eventType"`
	UserID    int    `json:"userId"`
}

// ClientPositionEvent carries every transform that changed this tick.
type ClientPositionEvent struct {
	EventType string            `json:"eventType"`
	Clients   []ClientTransform `json:"clients"`
}

// ObjectConfigEvent broadcasts the shared object's new transform.
type ObjectConfigEvent struct {
	EventType string             `json:"eventType"`
	Config    space.ObjectConfig `json:"config"`
}

// NewNoteEvent broadcasts a freshly created note with its assigned ID.
type NewNoteEvent struct {
	EventType string     `json:"eventType"`
	Note      space.Note `json:"note"`
}

// EditNoteEvent broadcasts the full updated note.
type EditNoteEvent struct {
	EventType string     `json:"eventType"`
	Note      space.Note `json:"note"`
}

// DeleteNoteEvent broadcasts a note removal attributed to the acting user.
type DeleteNoteEvent struct {
	EventType string `json:"eventType"`
	ID        int    `json:"id"`
	UserID    int    `json:"userId"`
}

// DeleteSessionEvent notifies roster members their session is going away.
type DeleteSessionEvent struct {
	EventType string `json:"eventType"`
	SessionID int    `json:"sessionId"`
}

// ObjectListEvent lists the available central-object types.
type ObjectListEvent struct {
	EventType string   `json:"eventType"`
	Objects   []string `json:"objects"`
}

// LoginEvent confirms a login with the assigned user ID.
type LoginEvent struct {
	EventType string `json:"eventType"`
	UserID    int    `json:"userId"`
	UserName  string `json:"userName"`
}

// UpdateUserInfoEvent broadcasts a display-name change.
type UpdateUserInfoEvent struct {
	EventType string `json:"eventType"`
	UserID    int    `json:"userId"`
	UserName  string `json:"userName"`
}

// HeartbeatEvent probes a connection for liveness.
type HeartbeatEvent struct {
	EventType string `json:"eventType"`
}

// ErrorEvent reports a failed user-initiated action where silence would
// strand the client.
type ErrorEvent struct {
	EventType    string `json:"eventType"`
	ErrorMessage string `json:"errorMessage"`
}

func (SessionListEvent) outbound()    {}
func (NewSessionEvent) outbound()     {}
func (JoinSessionEvent) outbound()    {}
func (ClientJoinEvent) outbound()     {}
func (ClientLeaveEvent) outbound()    {}
func (ClientPositionEvent) outbound() {}
func (ObjectConfigEvent) outbound()   {}
func (NewNoteEvent) outbound()        {}
func (EditNoteEvent) outbound()       {}
func (DeleteNoteEvent) outbound()     {}
func (DeleteSessionEvent) outbound()  {}
func (ObjectListEvent) outbound()     {}
func (LoginEvent) outbound()          {}
func (UpdateUserInfoEvent) outbound() {}
func (HeartbeatEvent) outbound()      {}
func (ErrorEvent) outbound()          {}

func NewSessionList(sessions []ReducedSession) SessionListEvent {
	return SessionListEvent{EventType: "sessionList", SessionList: sessions}
}

func NewSessionCreated(rec space.SessionRecord) NewSessionEvent {
	return NewSessionEvent{EventType: "newSession", ID: rec.ID, Host: rec.Host, SessionName: rec.SessionName, ObjectConfig: rec.ObjectConfig}
}

func NewSessionJoined(rec space.SessionRecord) JoinSessionEvent {
	return JoinSessionEvent{EventType: "joinSession", ID: rec.ID, SessionName: rec.SessionName, Host: rec.Host, ObjectConfig: rec.ObjectConfig}
}

func NewClientJoin(user UserInfo) ClientJoinEvent {
	return ClientJoinEvent{EventType: "clientJoin", User: user}
}

func NewClientLeave(userID int) ClientLeaveEvent {
	return ClientLeaveEvent{EventType: "clientLeave", UserID: userID}
}

func NewClientPosition(clients []ClientTransform) ClientPositionEvent {
	return ClientPositionEvent{EventType: "clientPosition", Clients: clients}
}

func NewObjectConfig(config space.ObjectConfig) ObjectConfigEvent {
	return ObjectConfigEvent{EventType: "objectConfig", Config: config}
}

func NewNoteCreated(note space.Note) NewNoteEvent {
	return NewNoteEvent{EventType: "newNote", Note: note}
}

func NewNoteEdited(note space.Note) EditNoteEvent {
	return EditNoteEvent{EventType: "editNote", Note: note}
}

func NewNoteDeleted(noteID, userID int) DeleteNoteEvent {
	return DeleteNoteEvent{EventType: "deleteNote", ID: noteID, UserID: userID}
}

func NewSessionDeleted(sessionID int) DeleteSessionEvent {
	return DeleteSessionEvent{EventType: "deleteSession", SessionID: sessionID}
}

func NewObjectList(objects []string) ObjectListEvent {
	return ObjectListEvent{EventType: "objectList", Objects: objects}
}

func NewLogin(userID int, userName string) LoginEvent {
	return LoginEvent{EventType: "login", UserID: userID, UserName: userName}
}

func NewUserInfoUpdated(userID int, userName string) UpdateUserInfoEvent {
	return UpdateUserInfoEvent{EventType: "updateUserInfo", UserID: userID, UserName: userName}
}

func NewHeartbeat() HeartbeatEvent {
	return HeartbeatEvent{EventType: "heartbeat"}
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{EventType: "error", ErrorMessage: message}
}
