package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(attempts int) (*Client, *[]time.Duration) {
	client := NewClient(ClientOptions{
		Attempts:    attempts,
		BackoffBase: 4 * time.Second,
		BackoffCap:  10 * time.Second,
	})
	var slept []time.Duration
	client.sleep = func(d time.Duration) { slept = append(slept, d) }
	return client, &slept
}

func TestProxyRingCursorAdvancesMonotonically(t *testing.T) {
	ring := NewProxyRing([]string{"a:80", "b:80", "c:80"})

	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, ring.Next())
	}
	assert.Equal(t, []string{"a:80", "b:80", "c:80", "a:80", "b:80", "c:80", "a:80"}, got)
}

func TestProxyRingEmptyMeansDirect(t *testing.T) {
	ring := NewProxyRing(nil)
	assert.Equal(t, "", ring.Next())
	assert.Equal(t, 0, ring.Size())
}

func TestFetchStopsAfterBudget(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, slept := newTestClient(3)
	_, err := client.Fetch(context.Background(), srv.URL, nil)

	var transient *TransientNetworkError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, 3, hits, "exactly three attempts")
	// Sleeps happen between attempts only, never after the last.
	assert.Len(t, *slept, 2)
}

func TestFetchRecoversOnLaterAttempt(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	client, slept := newTestClient(3)
	body, err := client.Fetch(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 2, hits)
	assert.Len(t, *slept, 1)
}

func TestFetchSendsHeaders(t *testing.T) {
	var gotCookie, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Attempts: 1, ScrapingKey: "sk-123"})
	client.sleep = func(time.Duration) {}
	_, err := client.Fetch(context.Background(), srv.URL, map[string]string{"Cookie": "steamLoginSecure=abc"})

	require.NoError(t, err)
	assert.Equal(t, "steamLoginSecure=abc", gotCookie)
	assert.Equal(t, "sk-123", gotKey)
}

func TestBackoffDelayDoublesAndClamps(t *testing.T) {
	client, _ := newTestClient(3)

	first := client.backoffDelay(1)
	assert.GreaterOrEqual(t, first, 4*time.Second)
	assert.Less(t, first, 5*time.Second+time.Millisecond)

	second := client.backoffDelay(2)
	assert.GreaterOrEqual(t, second, 8*time.Second)
	assert.LessOrEqual(t, second, 10*time.Second)

	// 16s doubles past the cap; the cap bounds the jittered delay too.
	third := client.backoffDelay(3)
	assert.Equal(t, 10*time.Second, third)
}

func TestBackoffDelayNeverExceedsCap(t *testing.T) {
	client, _ := newTestClient(5)

	for attempt := 1; attempt <= 5; attempt++ {
		for i := 0; i < 50; i++ {
			assert.LessOrEqual(t, client.backoffDelay(attempt), 10*time.Second)
		}
	}
}
