package banner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followreq/pkg/model"
)

func list(ids ...string) []model.PendingUser {
	out := make([]model.PendingUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.PendingUser{ID: id, Username: "User" + id})
	}
	return out
}

func TestLocate(t *testing.T) {
	users := list("a", "b", "c")

	p, ok := Locate(users, "b")
	require.True(t, ok)
	assert.Equal(t, Position{Index: 1, Position: 2, Total: 3, HasNext: true, NextUserID: "c"}, p)

	p, ok = Locate(users, "c")
	require.True(t, ok)
	assert.Equal(t, 3, p.Position)
	assert.False(t, p.HasNext)
	assert.Empty(t, p.NextUserID)

	_, ok = Locate(users, "x")
	assert.False(t, ok)
	_, ok = Locate(nil, "a")
	assert.False(t, ok)
}

func TestNextAfter(t *testing.T) {
	users := list("a", "b")
	next, ok := NextAfter(users, "a")
	assert.True(t, ok)
	assert.Equal(t, "b", next)

	_, ok = NextAfter(users, "b")
	assert.False(t, ok)
}

func TestFindByUsername(t *testing.T) {
	users := list("a", "b")
	u, ok := FindByUsername(users, "@userB")
	require.True(t, ok)
	assert.Equal(t, "b", u.ID)

	_, ok = FindByUsername(users, "")
	assert.False(t, ok)
	_, ok = FindByUsername(users, "nobody")
	assert.False(t, ok)
}

func TestView(t *testing.T) {
	v, ok := View(list("a", "b"), "a")
	require.True(t, ok)
	assert.Equal(t, "a", v.User.ID)
	assert.Equal(t, 1, v.Position)
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, "b", v.NextUserID)
}

func TestState(t *testing.T) {
	var s State
	_, ok := s.Current()
	assert.False(t, ok)

	v, _ := View(list("a", "b"), "a")
	s.Show(v)
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "a", cur.User.ID)

	assert.False(t, s.HideIf("b"))
	assert.True(t, s.HideIf("a"))
	_, ok = s.Current()
	assert.False(t, ok)

	s.Show(v)
	s.Hide()
	_, ok = s.Current()
	assert.False(t, ok)
}
