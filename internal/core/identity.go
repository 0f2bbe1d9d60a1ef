package core

// Identity is an immutable snapshot of a participant as supplied by the host
// application. Messages copy it at send time; a later rename or avatar change
// never rewrites history.
type Identity struct {
	ID       string
	Name     string
	Avatar   string
	Level    int
	Premium  bool
	Verified bool
}

// SystemIdentity authors engine-originated announcements (joins, leaves).
var SystemIdentity = Identity{ID: "system", Name: "System"}

// IsSystem reports whether the identity is the reserved system author.
func (id Identity) IsSystem() bool {
	return id.ID == SystemIdentity.ID
}
