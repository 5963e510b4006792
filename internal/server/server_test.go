package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"followreq/pkg/model"
)

type fakeService struct {
	mu        sync.Mutex
	users     []model.PendingUser
	fetchErr  error
	execErr   error
	next      model.UserID
	intents   []model.Intent
	useCache  []bool
	history   []model.ActionRecord
	targets   []model.TargetInfo
	events    chan model.Event
	panicking bool
}

func (f *fakeService) FetchPending(_ context.Context, useCache bool) ([]model.PendingUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicking {
		panic("boom")
	}
	f.useCache = append(f.useCache, useCache)
	return f.users, f.fetchErr
}

func (f *fakeService) Search(_ context.Context, q string) ([]model.PendingUser, error) {
	var out []model.PendingUser
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(q)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeService) Execute(_ context.Context, in model.Intent) model.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, in)
	out := model.Outcome{Kind: in.Kind, UserID: in.UserID, Err: f.execErr}
	if f.execErr == nil && in.AutoAdvance {
		out.NextUserID = f.next
	}
	return out
}

func (f *fakeService) CheckProfile(_ context.Context, username string) (model.BannerView, bool, error) {
	for i, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return model.BannerView{User: u, Position: i + 1, Total: len(f.users)}, true, nil
		}
	}
	return model.BannerView{}, false, nil
}

func (f *fakeService) History(_ context.Context, limit int) ([]model.ActionRecord, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeService) Targets(context.Context) ([]model.TargetInfo, error) { return f.targets, nil }

func (f *fakeService) SubscribeEvents() (<-chan model.Event, func()) {
	return f.events, func() {}
}

func (f *fakeService) Close() error { return nil }

func newTestServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(svc, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url string) (*http.Response, gjson.Result) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, gjson.ParseBytes(data)
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Get("status").String())
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListPending(t *testing.T) {
	svc := &fakeService{users: []model.PendingUser{{ID: "1", Username: "alice", MutualCount: 3, IsPendingRequest: true}}}
	ts := newTestServer(t, svc)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), body.Get("count").Int())
	assert.Equal(t, "alice", body.Get("users.0.username").String())
	assert.Equal(t, int64(3), body.Get("users.0.mutualCount").Int())

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending?cache=false")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []bool{true, false}, svc.useCache)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending?cache=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPending_Empty(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending")
	assert.True(t, body.Get("users").IsArray())
	assert.Equal(t, int64(0), body.Get("count").Int())
}

func TestSearch(t *testing.T) {
	svc := &fakeService{users: []model.PendingUser{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}}}
	ts := newTestServer(t, svc)
	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending/search?q=BO")
	assert.Equal(t, int64(1), body.Get("count").Int())
	assert.Equal(t, "2", body.Get("users.0.id").String())
}

func TestExecuteAction(t *testing.T) {
	svc := &fakeService{next: "2"}
	ts := newTestServer(t, svc)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/actions/accept/1?advance=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accept", body.Get("kind").String())
	assert.Equal(t, "ok", body.Get("result").String())
	assert.Equal(t, "2", body.Get("nextUserId").String())
	require.Len(t, svc.intents, 1)
	assert.Equal(t, model.Intent{Kind: model.ActionAccept, UserID: "1", AutoAdvance: true}, svc.intents[0])

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/api/v1/actions/block/1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/actions/accept/1")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExecuteAction_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		result string
	}{
		{&model.RateLimitError{Kind: model.ActionAccept, Scope: model.ScopeMinute}, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("accept 1: %w", model.ErrActionInFlight), http.StatusConflict, "in_flight"},
		{&model.APIError{Op: "accept", StatusCode: 400, Status: "fail"}, http.StatusBadGateway, "api_error"},
		{&model.NetworkError{Op: "accept", StatusCode: 500}, http.StatusBadGateway, "network_error"},
		{fmt.Errorf("wait: %w", model.ErrSessionNotReady), http.StatusServiceUnavailable, "failed"},
	}
	for _, tc := range tests {
		t.Run(tc.result, func(t *testing.T) {
			ts := newTestServer(t, &fakeService{execErr: tc.err})
			resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/actions/reject/9")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.result, body.Get("result").String())
			assert.NotEmpty(t, body.Get("error").String())
		})
	}
}

func TestCheckProfile(t *testing.T) {
	svc := &fakeService{users: []model.PendingUser{{ID: "1", Username: "alice"}, {ID: "2", Username: "bob"}}}
	ts := newTestServer(t, svc)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/profiles/BOB")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), body.Get("banner.position").Int())
	assert.Equal(t, int64(2), body.Get("banner.total").Int())

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/profiles/carol")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	svc := &fakeService{history: []model.ActionRecord{
		{ID: "a", Kind: model.ActionAccept, UserID: "1", Result: model.ResultOK},
		{ID: "b", Kind: model.ActionFollow, UserID: "2", Result: model.ResultRateLimited},
	}}
	ts := newTestServer(t, svc)

	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history?limit=1")
	assert.Equal(t, int64(1), body.Get("count").Int())
	assert.Equal(t, "accept", body.Get("actions.0.kind").String())

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history?limit=-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTargets(t *testing.T) {
	ts := newTestServer(t, &fakeService{})
	_, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/targets")
	assert.True(t, body.Get("targets").IsArray())

	ts = newTestServer(t, &fakeService{targets: []model.TargetInfo{{ID: "t1", Type: "page", URL: "https://www.instagram.com/", Title: "Instagram"}}})
	_, body = doRequest(t, http.MethodGet, ts.URL+"/api/v1/targets")
	assert.Equal(t, "t1", body.Get("targets.0.id").String())
	assert.Equal(t, "https://www.instagram.com/", body.Get("targets.0.url").String())
}

func TestRecoverMiddleware(t *testing.T) {
	ts := newTestServer(t, &fakeService{panicking: true})
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/pending")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body.Get("error").String())
}

func TestEventsStream(t *testing.T) {
	events := make(chan model.Event, 1)
	ts := newTestServer(t, &fakeService{events: events})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events <- model.Event{Type: model.EventListInvalidated, Kind: model.ActionReject, UserID: "5", Timestamp: 1}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: list_invalidated\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	data := gjson.Parse(strings.TrimPrefix(strings.TrimSpace(line), "data: "))
	assert.Equal(t, "reject", data.Get("kind").String())
	assert.Equal(t, "5", data.Get("userId").String())
}
