package domain

import "strings"

type UserID string

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOrganizer Role = "ORGANIZER"
	RoleUser      Role = "USER"
)

// ParseRole normalizes a role claim. An empty claim means RoleUser.
func ParseRole(raw string) (Role, bool) {
	switch role := Role(strings.ToUpper(strings.TrimSpace(raw))); role {
	case "":
		return RoleUser, true
	case RoleAdmin, RoleOrganizer, RoleUser:
		return role, true
	default:
		return "", false
	}
}

// Identity is the verified caller behind a session. It never changes
// after the handshake.
type Identity struct {
	ID   UserID `json:"id"`
	Role Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Handshake carries what the client presented when connecting.
type Handshake struct {
	Token      string
	RemoteAddr string
}
