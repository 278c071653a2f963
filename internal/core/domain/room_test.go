package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomConstructors(t *testing.T) {
	assert.Equal(t, RoomName("role_USER"), RoomForRole(RoleUser))
	assert.Equal(t, RoomName("user_u1"), RoomForUser("u1"))
	assert.Equal(t, RoomName("event_e9"), RoomForEvent("e9"))
	assert.Equal(t, RoomName("role_ADMIN"), AdminRoom())
	assert.Equal(t, RoomForRole(RoleAdmin), AdminRoom())
}

func TestRoomScopesNeverCollide(t *testing.T) {
	ids := []string{"", "1", "ADMIN", "role_ADMIN", "user_1", "event_1"}
	seen := map[RoomName]string{}
	for _, id := range ids {
		for scope, room := range map[string]RoomName{
			"role":  RoomForRole(Role(id)),
			"user":  RoomForUser(UserID(id)),
			"event": RoomForEvent(EventID(id)),
		} {
			assert.Equal(t, scope, room.Scope(), "room %q", room)
			if prev, ok := seen[room]; ok {
				assert.Equal(t, prev, scope+"/"+id, "collision on %q", room)
			}
			seen[room] = scope + "/" + id
		}
	}
}

func TestRoomEmptySuffixIsDeterministicButInvalid(t *testing.T) {
	assert.Equal(t, RoomForUser(""), RoomForUser(""))
	assert.False(t, RoomForUser("").Valid())
	assert.False(t, RoomForEvent("").Valid())
	assert.True(t, RoomForUser("42").Valid())
}

func TestParseRoom(t *testing.T) {
	valid := []string{"role_ADMIN", "role_ORGANIZER", "role_USER", "user_42", "event_abc-1"}
	for _, raw := range valid {
		room, err := ParseRoom(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, RoomName(raw), room)
	}

	invalid := []string{"", "admin", "user_", "event_", "role_admin", "role_ROOT", "chan_1"}
	for _, raw := range invalid {
		_, err := ParseRoom(raw)
		assert.True(t, errors.Is(err, ErrInvalidRoom), "expected %q to be rejected", raw)
	}
}

func TestRoomsFor(t *testing.T) {
	rooms := RoomsFor(Identity{ID: "u1", Role: RoleUser})
	assert.ElementsMatch(t, []RoomName{"role_USER", "user_u1"}, rooms)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	role, ok = ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleUser, role)

	_, ok = ParseRole("superuser")
	assert.False(t, ok)
}

func TestChannelDefaultRoom(t *testing.T) {
	room, ok := ChannelAdmin.DefaultRoom()
	assert.True(t, ok)
	assert.Equal(t, AdminRoom(), room)

	_, ok = ChannelNotifications.DefaultRoom()
	assert.False(t, ok)
}

func TestEventInfoVisibleTo(t *testing.T) {
	draft := EventInfo{ID: "e1", OrganizerID: "org1", Status: EventStatusDraft}
	published := EventInfo{ID: "e2", OrganizerID: "org1", Status: EventStatusPublished}

	assert.True(t, draft.VisibleTo(Identity{ID: "org1", Role: RoleOrganizer}))
	assert.True(t, draft.VisibleTo(Identity{ID: "a", Role: RoleAdmin}))
	assert.False(t, draft.VisibleTo(Identity{ID: "u1", Role: RoleUser}))
	assert.False(t, draft.VisibleTo(Identity{ID: "org2", Role: RoleOrganizer}))
	assert.True(t, published.VisibleTo(Identity{ID: "u1", Role: RoleUser}))
}
