package photomatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchData_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleData))
	}))
	defer server.Close()

	d, err := FetchData(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Metadata.Version)
	require.Len(t, d.Scenes, 1)
	assert.Len(t, d.Scenes[0].Photos[0].Lines, 2)
}

func TestFetchData_EmptyURL(t *testing.T) {
	_, err := FetchData(context.Background(), "")
	assert.EqualError(t, err, "fetch data: URL is empty")

	err = PushData(context.Background(), "", &Data{})
	assert.EqualError(t, err, "push data: URL is empty")
}

func TestFetchData_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"_metadata":{"version":1},"scenes":[]}`))
	}))
	defer server.Close()

	d, err := FetchData(context.Background(), server.URL, WithBaseBackoff(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Metadata.Version)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchData_GivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := FetchData(context.Background(), server.URL, WithBaseBackoff(time.Millisecond), WithMaxRetries(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 attempts failed")
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchData_ClientErrorNotRetried(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"not found", http.StatusNotFound, 1},
		{"bad request", http.StatusBadRequest, 1},
		{"too many requests", http.StatusTooManyRequests, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := FetchData(context.Background(), server.URL, WithBaseBackoff(time.Millisecond))
			assert.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestFetchData_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	_, err := FetchData(context.Background(), server.URL)
	assert.ErrorContains(t, err, "parsing response")
}

func TestFetchData_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FetchData(ctx, server.URL, WithBaseBackoff(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPushData(t *testing.T) {
	var got Data
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := PushData(context.Background(), server.URL, &Data{Metadata: Metadata{Version: 12}}, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	assert.Equal(t, 12, got.Metadata.Version)
}

func TestPushData_StaleVersionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid version", http.StatusConflict)
	}))
	defer server.Close()

	err := PushData(context.Background(), server.URL, &Data{}, WithTimeout(time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409: invalid version")
}
