// Package space holds the shared 3D-scene types: transforms, the central
// object's configuration, notes, and the persisted session record.
package space

// Vec3 is a position or scale in scene coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is an orientation quaternion.
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ObjectConfig describes the session's central object. ObjectType is fixed
// at session creation; scale and rotation are editable by any member.
type ObjectConfig struct {
	ObjectType string `json:"objectType"`
	Scale      Vec3   `json:"scale"`
	Rotation   Quat   `json:"rotation"`
}

// UnassignedNoteID marks a note the client created but the server has not
// numbered yet. Note-creation requests must carry it.
const UnassignedNoteID = -1

// Note is an annotation pinned in the scene. IDs are unique per session,
// not globally.
type Note struct {
	ID       int    `json:"id"`
	Position Vec3   `json:"position"`
	Kind     string `json:"kind"`
	Content  string `json:"content"`
}

// SessionRecord is the persistable part of a session. The roster of joined
// users is runtime-only state and never stored.
type SessionRecord struct {
	ID           int          `json:"id"`
	Host         string       `json:"host"`
	SessionName  string       `json:"sessionName"`
	ObjectConfig ObjectConfig `json:"objectConfig"`
}
