package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

const (
	probeTimeout = 10 * time.Second
	// Enough bytes to cover ID3 headers plus several MP3 frames.
	probeReadLimit = 256 << 10
)

// Probe opens a stream URL, decodes its first frames, and returns the sample
// rate. It answers "is this playable?" quickly without engaging the speaker
// pipeline.
func Probe(ctx context.Context, httpClient *http.Client, streamURL string) (int, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("User-Agent", "radio-directory-web/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	decoder, err := gomp3.NewDecoder(io.LimitReader(resp.Body, probeReadLimit))
	if err != nil {
		return 0, fmt.Errorf("not a decodable mp3 stream: %w", err)
	}

	// Pull one decoded chunk to make sure frames actually parse.
	buf := make([]byte, 4096)
	if _, err := decoder.Read(buf); err != nil && err != io.EOF {
		return 0, fmt.Errorf("decode stream frames: %w", err)
	}

	return decoder.SampleRate(), nil
}
