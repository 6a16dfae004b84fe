package changelog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntriesLiveFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"version":"Build 2.5.0","date":"Mar 2026","status":"Latest","changes":["New overlay renderer."]},
			{"version":"Build 2.4.1","date":"Feb 2026","status":"Stable","changes":["Bug fixes."]}
		]`))
	}))
	defer srv.Close()

	svc := NewService(srv.URL, time.Second, nil)
	entries, live := svc.Entries(context.Background())
	assert.True(t, live)
	require.Len(t, entries, 2)
	assert.Equal(t, "Build 2.5.0", entries[0].Version)
	assert.Equal(t, "Latest", entries[0].Status)
}

func TestEntriesFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"not":"an array"}`))
			},
		},
		{
			name: "empty feed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			svc := NewService(srv.URL, time.Second, nil)
			entries, live := svc.Entries(context.Background())
			assert.False(t, live)
			require.NotEmpty(t, entries)
			assert.Equal(t, "Build 2.4.1", entries[0].Version)
		})
	}
}

func TestEntriesUnreachableFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	svc := NewService(srv.URL, 100*time.Millisecond, nil)
	entries, live := svc.Entries(context.Background())
	assert.False(t, live)
	assert.NotEmpty(t, entries)
}

func TestEntriesNoURLConfigured(t *testing.T) {
	svc := NewService("", time.Second, nil)
	entries, live := svc.Entries(context.Background())
	assert.False(t, live)
	assert.NotEmpty(t, entries)
}
