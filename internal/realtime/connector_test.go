package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu            sync.Mutex
	authenticated bool
	rehydrated    bool
}

func (f *fakeAuth) Authenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticated
}

func (f *fakeAuth) Rehydrated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rehydrated
}

func (f *fakeAuth) set(authenticated, rehydrated bool) {
	f.mu.Lock()
	f.authenticated = authenticated
	f.rehydrated = rehydrated
	f.mu.Unlock()
}

// wsServer upgrades connections, records the cookie header, and pushes the
// given payloads to every client.
func wsServer(t *testing.T, payloads []string) (*httptest.Server, *[]string) {
	t.Helper()
	var cookies []string
	var mu sync.Mutex
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		for _, p := range payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				break
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &cookies
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectDeliversEvents(t *testing.T) {
	srv, cookies := wsServer(t, []string{
		`{"type":"scoring_progress","reportId":"r1","progress":0.4}`,
		`{"type":"graded","reportId":"r1"}`,
		`not json at all`,
	})

	auth := &fakeAuth{authenticated: true, rehydrated: true}
	var mu sync.Mutex
	var events []Event
	c := New(wsURL(srv), auth, func() string { return "tok123" }, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}, nil)

	require.NoError(t, c.Connect())
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 2
	}, "events not delivered")

	mu.Lock()
	assert.Equal(t, "scoring_progress", events[0].Type)
	require.NotNil(t, events[0].Progress)
	assert.Equal(t, 0.4, *events[0].Progress)
	assert.Equal(t, "graded", events[1].Type)
	mu.Unlock()

	assert.Contains(t, (*cookies)[0], "mp_session=tok123")
	c.Disconnect()
}

func TestConnectIsIdempotent(t *testing.T) {
	srv, cookies := wsServer(t, nil)
	auth := &fakeAuth{authenticated: true, rehydrated: true}
	c := New(wsURL(srv), auth, func() string { return "" }, nil, nil)

	require.NoError(t, c.Connect())
	waitFor(t, c.Connected, "never connected")
	require.NoError(t, c.Connect())
	require.NoError(t, c.Connect())

	// Only one dial reached the server.
	assert.Len(t, *cookies, 1)
	c.Disconnect()
}

func TestConnectGatedOnRehydration(t *testing.T) {
	auth := &fakeAuth{authenticated: true, rehydrated: false}
	c := New("ws://127.0.0.1:1/ws", auth, func() string { return "" }, nil, nil)

	err := c.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rehydrating")
	assert.False(t, c.RetryPending(), "gating failures must not arm a retry")
}

func TestConnectGatedOnAuthentication(t *testing.T) {
	auth := &fakeAuth{authenticated: false, rehydrated: true}
	c := New("ws://127.0.0.1:1/ws", auth, func() string { return "" }, nil, nil)

	require.Error(t, c.Connect())
	assert.False(t, c.RetryPending())
}

func TestDialFailureSchedulesSingleRetry(t *testing.T) {
	auth := &fakeAuth{authenticated: true, rehydrated: true}
	c := New("ws://127.0.0.1:1/ws", auth, func() string { return "" }, nil, nil)
	c.SetBackoff(Backoff{MaxAttempts: 1, Delay: FixedDelay(50 * time.Millisecond)})

	require.Error(t, c.Connect())
	assert.True(t, c.RetryPending())

	// The retry fires, fails again, and no further retry is armed.
	waitFor(t, func() bool { return !c.RetryPending() }, "retry never fired")
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.RetryPending(), "exactly one retry per outage")
}

func TestDisconnectCancelsPendingRetry(t *testing.T) {
	auth := &fakeAuth{authenticated: true, rehydrated: true}
	c := New("ws://127.0.0.1:1/ws", auth, func() string { return "" }, nil, nil)
	c.SetBackoff(Backoff{MaxAttempts: 1, Delay: FixedDelay(time.Hour)})

	require.Error(t, c.Connect())
	require.True(t, c.RetryPending())

	c.Disconnect()
	assert.False(t, c.RetryPending())
}

func TestRetryAbortsWhenDeauthenticated(t *testing.T) {
	auth := &fakeAuth{authenticated: true, rehydrated: true}
	dials := 0
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		http.Error(w, "nope", http.StatusBadGateway) // upgrade always fails
	}))
	defer srv.Close()

	c := New(wsURL(srv), auth, func() string { return "" }, nil, nil)
	c.SetBackoff(Backoff{MaxAttempts: 1, Delay: FixedDelay(30 * time.Millisecond)})

	require.Error(t, c.Connect())
	auth.set(false, true) // logged out before the retry fires

	waitFor(t, func() bool { return !c.RetryPending() }, "retry never drained")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, dials, "retry must not dial after deauthentication")
}

func TestBackoffSchedulePolicy(t *testing.T) {
	var r retryState
	policy := Backoff{MaxAttempts: 2, Delay: FixedDelay(10 * time.Millisecond)}

	fired := make(chan struct{}, 4)
	assert.True(t, r.schedule(policy, func() { fired <- struct{}{} }))
	assert.False(t, r.schedule(policy, func() { fired <- struct{}{} }), "only one pending timer allowed")

	<-fired
	assert.True(t, r.schedule(policy, func() { fired <- struct{}{} }), "second attempt allowed after first fired")
	<-fired
	assert.False(t, r.schedule(policy, func() { fired <- struct{}{} }), "attempts exhausted")

	r.reset()
	assert.True(t, r.schedule(policy, func() { fired <- struct{}{} }), "reset restores the attempt budget")
	r.cancel()
	assert.False(t, r.isPending())
}
