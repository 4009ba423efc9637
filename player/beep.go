package player

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/faiface/beep"
	beepmp3 "github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"github.com/user/radio-directory-web/directory"
)

const speakerBufferLen = time.Second / 10

// speakerMutex guards speaker (re)initialization; beep's speaker is a
// process-wide singleton.
var speakerMutex sync.Mutex

// BeepFactory opens audio sessions that decode an MP3 HTTP stream with beep
// and play it through the default audio output.
type BeepFactory struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBeepFactory creates a session factory for local audio output.
func NewBeepFactory(httpClient *http.Client, logger *slog.Logger) *BeepFactory {
	if httpClient == nil {
		// Streams never end, so the client must not enforce a total timeout.
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BeepFactory{httpClient: httpClient, logger: logger}
}

// Start opens the station's stream URL and begins playback. The caller's
// context only bounds the probe and connect phase; the stream itself lives on
// a session-lifetime context, since the request that triggered playback ends
// long before the audio does.
func (f *BeepFactory) Start(ctx context.Context, station directory.Station) (Session, error) {
	// Probe with a bounded read first so a dead or non-MP3 URL fails fast
	// instead of wedging the speaker pipeline.
	sampleRate, err := Probe(ctx, f.httpClient, station.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("probe stream: %w", err)
	}
	f.logger.Debug(
		"Stream probe succeeded",
		slog.String("station", station.Name),
		slog.Int("sample_rate", sampleRate),
	)

	resp, cancel, err := f.openStream(ctx, station.StreamURL)
	if err != nil {
		return nil, err
	}

	streamer, format, err := beepmp3.Decode(resp.Body)
	if err != nil {
		cancel()
		resp.Body.Close()
		return nil, fmt.Errorf("decode stream: %w", err)
	}

	speakerMutex.Lock()
	initErr := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferLen))
	speakerMutex.Unlock()
	if initErr != nil {
		cancel()
		streamer.Close()
		return nil, fmt.Errorf("initialize audio output: %w", initErr)
	}

	session := &beepSession{
		streamer: streamer,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   f.logger,
		station:  station.Name,
	}
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		f.logger.Warn("Stream ended", slog.String("station", station.Name))
		session.markDone()
	})))

	return session, nil
}

// openStream connects to the stream URL on a context detached from the
// caller's, so cancelling the originating request cannot kill the audio body.
// The returned cancel func ends the stream request.
func (f *BeepFactory) openStream(ctx context.Context, streamURL string) (*http.Response, context.CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("User-Agent", "radio-directory-web/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}
	return resp, cancel, nil
}

type beepSession struct {
	streamer beep.StreamSeekCloser
	cancel   context.CancelFunc
	logger   *slog.Logger
	station  string

	done     chan struct{}
	doneOnce sync.Once
	once     sync.Once
}

// Stop silences the speaker, cancels the stream request, and releases the
// decoder (which closes the underlying HTTP body).
func (s *beepSession) Stop() {
	s.once.Do(func() {
		speakerMutex.Lock()
		speaker.Clear()
		speakerMutex.Unlock()

		s.cancel()
		if err := s.streamer.Close(); err != nil {
			s.logger.Debug(
				"Stream close error",
				slog.String("station", s.station),
				slog.String("error", err.Error()),
			)
		}
	})
	s.markDone()
}

// Done is closed when the session ends, whether stopped or because the
// stream ran out.
func (s *beepSession) Done() <-chan struct{} {
	return s.done
}

func (s *beepSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
