package notifications

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/pool-controller/internal/config"
	"github.com/thatsimonsguy/pool-controller/internal/env"
)

type received struct {
	path     string
	title    string
	priority string
	tags     string
	body     string
}

func newNtfy(t *testing.T, status int) (*httptest.Server, func() []received) {
	t.Helper()
	var mu sync.Mutex
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, received{
			path:     r.URL.Path,
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []received {
		mu.Lock()
		defer mu.Unlock()
		return append([]received(nil), got...)
	}
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, Critical, SeverityFor("Pool Sensor Failure"))
	assert.Equal(t, Info, SeverityFor("Pool Sensor Recovery"))
	assert.Equal(t, Warning, SeverityFor("Waterflow Lost"))
}

func TestSendPostsToTopic(t *testing.T) {
	srv, got := newNtfy(t, http.StatusOK)
	c := New(srv.URL+"/", "pool-alerts", 0)

	require.NoError(t, c.Send("Pool Sensor Failure", "[pool sensor disabled] 120.0°F"))

	msgs := got()
	require.Len(t, msgs, 1)
	assert.Equal(t, "/pool-alerts", msgs[0].path)
	assert.Equal(t, "Pool Sensor Failure", msgs[0].title)
	assert.Equal(t, "5", msgs[0].priority)
	assert.Equal(t, "rotating_light,swimmer", msgs[0].tags)
	assert.Equal(t, "[pool sensor disabled] 120.0°F", msgs[0].body)
}

func TestRepeatedAlertIsSuppressedDuringCooldown(t *testing.T) {
	srv, got := newNtfy(t, http.StatusOK)
	c := New(srv.URL, "pool-alerts", 10*time.Minute)
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Send("Solar Sensor Failure", "first"))
	now = now.Add(time.Minute)
	require.NoError(t, c.Send("Solar Sensor Failure", "second"))
	require.NoError(t, c.Send("Solar Sensor Recovery", "back"))
	now = now.Add(10 * time.Minute)
	require.NoError(t, c.Send("Solar Sensor Failure", "third"))

	var bodies []string
	for _, m := range got() {
		bodies = append(bodies, m.body)
	}
	assert.Equal(t, []string{"first", "back", "third"}, bodies)
}

func TestFailedPostDoesNotStartCooldown(t *testing.T) {
	srv, got := newNtfy(t, http.StatusTooManyRequests)
	c := New(srv.URL, "pool-alerts", time.Hour)

	err := c.Send("Pool Sensor Failure", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	assert.Error(t, c.Send("Pool Sensor Failure", "m"))
	assert.Len(t, got(), 2)
}

func TestSendWithoutInit(t *testing.T) {
	std = nil
	assert.Error(t, Send("t", "m"))
}

func TestInit(t *testing.T) {
	t.Cleanup(func() {
		env.Cfg = nil
		std = nil
	})

	env.Cfg = &config.Config{}
	Init()
	assert.Nil(t, std)

	srv, got := newNtfy(t, http.StatusOK)
	env.Cfg = &config.Config{NtfyTopic: "pool-alerts", NtfyServer: srv.URL, NtfyCooldownMinutes: 10}
	Init()
	require.NotNil(t, std)
	assert.Equal(t, 10*time.Minute, std.cooldown)

	require.NoError(t, Send("Pool Sensor Recovery", "[pool sensor re-enabled] 78.0°F"))
	require.Len(t, got(), 1)
	assert.Equal(t, "3", got()[0].priority)
}
