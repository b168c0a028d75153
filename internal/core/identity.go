package core

// Roles a verified user can carry. The web application owns the user
// records; the gateway only reads the role off the resolved user.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Identity is the authenticated user attached to a connection after the
// admission handshake. Immutable for the life of the connection.
type Identity struct {
	UserID int64
	Role   string
	Email  string
}

// IsAdmin reports whether the identity may perform role-gated actions.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}
