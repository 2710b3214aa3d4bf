package models

// Role is assigned once at signup and never changes.
type Role string

const (
	RoleReader    Role = "reader"
	RolePublisher Role = "publisher"
)

func (r Role) Valid() bool {
	return r == RoleReader || r == RolePublisher
}

// ParseRole accepts the canonical lowercase names only.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
