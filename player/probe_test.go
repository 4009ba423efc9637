package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	defer server.Client().CloseIdleConnections()

	_, err := Probe(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestProbeRejectsNonMP3Payload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>definitely not audio</html>"))
	}))
	defer server.Close()
	defer server.Client().CloseIdleConnections()

	_, err := Probe(context.Background(), server.Client(), server.URL)
	require.Error(t, err)
}

func TestProbeRejectsUnreachableHost(t *testing.T) {
	_, err := Probe(context.Background(), nil, "http://127.0.0.1:1/stream")
	require.Error(t, err)
}
