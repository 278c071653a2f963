package domain

import (
	"fmt"
	"strings"
)

// RoomName identifies a fan-out group. Build it with the Room* constructors
// or ParseRoom; the prefixes are disjoint so different scopes never share a name.
type RoomName string

const (
	rolePrefix  = "role_"
	userPrefix  = "user_"
	eventPrefix = "event_"
)

func RoomForRole(role Role) RoomName {
	return RoomName(rolePrefix + string(role))
}

func RoomForUser(id UserID) RoomName {
	return RoomName(userPrefix + string(id))
}

func RoomForEvent(id EventID) RoomName {
	return RoomName(eventPrefix + string(id))
}

// AdminRoom is the admin broadcast room. It is the ADMIN role room.
func AdminRoom() RoomName {
	return RoomForRole(RoleAdmin)
}

// Valid reports whether the name has a known prefix and a non-empty suffix.
func (r RoomName) Valid() bool {
	_, suffix, ok := r.split()
	return ok && suffix != ""
}

// Scope returns the prefix without the trailing underscore ("role", "user" or "event").
func (r RoomName) Scope() string {
	prefix, _, ok := r.split()
	if !ok {
		return ""
	}
	return strings.TrimSuffix(prefix, "_")
}

func (r RoomName) String() string {
	return string(r)
}

func (r RoomName) split() (prefix, suffix string, ok bool) {
	s := string(r)
	for _, p := range []string{rolePrefix, userPrefix, eventPrefix} {
		if strings.HasPrefix(s, p) {
			return p, s[len(p):], true
		}
	}
	return "", "", false
}

// ParseRoom validates a room name received from outside the process.
func ParseRoom(raw string) (RoomName, error) {
	room := RoomName(raw)
	if !room.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoom, raw)
	}
	if prefix, suffix, _ := room.split(); prefix == rolePrefix {
		switch Role(suffix) {
		case RoleAdmin, RoleOrganizer, RoleUser:
		default:
			return "", fmt.Errorf("%w: unknown role in %q", ErrInvalidRoom, raw)
		}
	}
	return room, nil
}

// RoomsFor returns the rooms an identity joins on connect.
func RoomsFor(identity Identity) []RoomName {
	return []RoomName{RoomForRole(identity.Role), RoomForUser(identity.ID)}
}
