package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"followreq/pkg/model"
)

func users(ids ...string) []model.PendingUser {
	out := make([]model.PendingUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.PendingUser{ID: id, Username: "u" + id, IsPendingRequest: true})
	}
	return out
}

func TestRequestCache_MissWhenEmpty(t *testing.T) {
	c := New(0)
	assert.Equal(t, DefaultTTL, c.TTL())
	_, ok := c.Get()
	assert.False(t, ok)
	assert.True(t, c.FetchedAt().IsZero())
}

func TestRequestCache_PutGet(t *testing.T) {
	clk := testclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	c := NewWithClock(time.Minute, clk)
	c.Put(users("1", "2"))

	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, users("1", "2"), got)
	assert.Equal(t, clk.Now(), c.FetchedAt())

	// 返回的是副本
	got[0].Username = "changed"
	again, _ := c.Get()
	assert.Equal(t, "u1", again[0].Username)
}

func TestRequestCache_EmptyListIsHit(t *testing.T) {
	c := New(time.Minute)
	c.Put(nil)
	got, ok := c.Get()
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestRequestCache_Expires(t *testing.T) {
	clk := testclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	c := NewWithClock(5*time.Minute, clk)
	c.Put(users("1"))

	clk.Step(5*time.Minute - time.Second)
	_, ok := c.Get()
	require.True(t, ok)

	clk.Step(time.Second)
	_, ok = c.Get()
	assert.False(t, ok)
	assert.True(t, c.FetchedAt().IsZero())
}

func TestRequestCache_HitDoesNotExtend(t *testing.T) {
	clk := testclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	c := NewWithClock(time.Minute, clk)
	c.Put(users("1"))
	clk.Step(40 * time.Second)
	_, ok := c.Get()
	require.True(t, ok)
	clk.Step(40 * time.Second)
	_, ok = c.Get()
	assert.False(t, ok, "reads must not refresh the timestamp")
}

func TestRequestCache_InvalidateIdempotent(t *testing.T) {
	c := New(time.Minute)
	c.Put(users("1"))
	gen := c.Generation()

	c.Invalidate()
	_, ok1 := c.Get()
	at1 := c.FetchedAt()
	c.Invalidate()
	_, ok2 := c.Get()
	at2 := c.FetchedAt()

	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, at1.IsZero())
	assert.Equal(t, at1, at2)
	assert.Equal(t, gen+2, c.Generation())
}

func TestRequestCache_PutIfDropsStaleSnapshot(t *testing.T) {
	c := New(time.Minute)
	gen := c.Generation()

	// 拉取过程中发生了失效
	c.Invalidate()
	assert.False(t, c.PutIf(gen, users("1", "2")))
	_, ok := c.Get()
	assert.False(t, ok)

	assert.True(t, c.PutIf(c.Generation(), users("2")))
	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, users("2"), got)
}

func TestRequestCache_IfGeneration(t *testing.T) {
	c := New(time.Minute)
	gen := c.Generation()

	ran := 0
	assert.True(t, c.IfGeneration(gen, func() { ran++ }))
	c.Invalidate()
	assert.False(t, c.IfGeneration(gen, func() { ran++ }))
	assert.Equal(t, 1, ran)
}
