package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followreq/pkg/model"
)

const fullMarkup = `<script>{"config":{"viewerId":"1789","csrf_token":"tok-abc"},` +
	`"X-IG-App-ID":"936619743392459","rollout_hash":"1a2b3c"}</script>`

func TestDerive_AllTokens(t *testing.T) {
	sc, ok := Derive(fullMarkup)
	require.True(t, ok)
	assert.Equal(t, "1789", sc.IdentityID)
	assert.Equal(t, "tok-abc", sc.Headers.Get("x-csrftoken"))
	assert.Equal(t, "936619743392459", sc.Headers.Get("X-Ig-App-Id"))
	assert.Equal(t, "1a2b3c", sc.Headers.Get("X-Instagram-Ajax"))
	assert.Equal(t, "XMLHttpRequest", sc.Headers.Get("X-Requested-With"))
}

func TestDerive_AppScopedFallback(t *testing.T) {
	sc, ok := Derive(`{"appScopedIdentity":"555"}`)
	require.True(t, ok)
	assert.Equal(t, "555", sc.IdentityID)
	// 可选令牌缺失时只省略对应头部
	assert.Empty(t, sc.Headers.Get("X-Csrftoken"))
	assert.Empty(t, sc.Headers.Get("X-Ig-App-Id"))
	assert.Equal(t, DefaultHeaders(), sc.Headers)
}

func TestDerive_NoIdentity(t *testing.T) {
	sc, ok := Derive(`{"csrf_token":"tok-abc","rollout_hash":"1"}`)
	assert.False(t, ok)
	require.NotNil(t, sc)
	assert.False(t, sc.HasIdentity())
	assert.Equal(t, DefaultHeaders(), sc.Headers, "only the fixed defaults are set")
}

type fakeSource struct {
	states []PageState
	errs   []error
	calls  int
}

func (f *fakeSource) Snapshot(context.Context) (PageState, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return PageState{}, f.errs[i]
	}
	if i < len(f.states) {
		return f.states[i], nil
	}
	return PageState{}, nil
}

func newTestManager(attempts int) *Manager {
	return NewManager(Options{MaxAttempts: attempts, Interval: time.Millisecond})
}

func TestManager_AwaitRetriesUntilReady(t *testing.T) {
	src := &fakeSource{
		states: []PageState{
			{Markup: "<html>loading</html>"},
			{},
			{Markup: fullMarkup, Claim: "hmac.claim", CookieHeader: "sessionid=s1; csrftoken=c1"},
		},
		errs: []error{nil, errors.New("evaluate failed")},
	}
	m := newTestManager(5)

	sc, err := m.Await(context.Background(), "tab-1", src)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, "1789", sc.IdentityID)
	assert.Equal(t, "hmac.claim", sc.Headers.Get(HeaderClaim))
	assert.Equal(t, "sessionid=s1; csrftoken=c1", sc.Headers.Get(HeaderCookie))

	got, ok := m.Get("tab-1")
	require.True(t, ok)
	assert.Same(t, sc, got)
}

func TestManager_AwaitTerminalFailure(t *testing.T) {
	src := &fakeSource{}
	m := newTestManager(3)

	_, err := m.Await(context.Background(), "tab-1", src)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSessionNotReady)
	assert.Equal(t, 3, src.calls)
	_, ok := m.Get("tab-1")
	assert.False(t, ok)
}

func TestManager_AwaitCanceled(t *testing.T) {
	m := NewManager(Options{MaxAttempts: 5, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Await(ctx, "tab-1", &fakeSource{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_Lifecycle(t *testing.T) {
	m := newTestManager(1)
	sc, _ := Derive(fullMarkup)
	m.Create("a", sc)
	m.Create("b", sc)
	assert.Len(t, m.List(), 2)

	m.Delete("a")
	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []model.TargetID{"b"}, m.List())
}
