package player

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamOutlivesStartContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		chunk := make([]byte, 1024)
		for i := 0; i < 500; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}))
	defer server.Close()
	defer server.Client().CloseIdleConnections()

	factory := NewBeepFactory(server.Client(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	resp, stop, err := factory.openStream(ctx, server.URL)
	require.NoError(t, err)

	// The request that triggered playback is over; the session is not.
	cancel()

	buf := make([]byte, 8*1024)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err, "stream must keep flowing after the originating request ends")

	stop()
	resp.Body.Close()
}

func TestOpenStreamRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	defer server.Client().CloseIdleConnections()

	factory := NewBeepFactory(server.Client(), slog.Default())

	_, _, err := factory.openStream(context.Background(), server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}
