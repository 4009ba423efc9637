package player

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/user/radio-directory-web/directory"
	sentryhelper "github.com/user/radio-directory-web/sentry_helper"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockSession struct {
	stops atomic.Int32
	done  chan struct{}
	once  sync.Once
}

func (s *mockSession) Stop() {
	s.stops.Add(1)
	s.once.Do(func() { close(s.done) })
}

func (s *mockSession) Done() <-chan struct{} {
	return s.done
}

// die simulates the stream ending on its own, without a Stop call.
func (s *mockSession) die() {
	s.once.Do(func() { close(s.done) })
}

type mockFactory struct {
	mutex    sync.Mutex
	starts   int
	sessions []*mockSession
	err      error
}

func (f *mockFactory) Start(ctx context.Context, station directory.Station) (Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	session := &mockSession{done: make(chan struct{})}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *mockFactory) startCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.starts
}

type mockReporter struct {
	mutex sync.Mutex
	ids   []string
}

func (r *mockReporter) ReportClick(stationID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.ids = append(r.ids, stationID)
}

func (r *mockReporter) clicks() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.ids...)
}

func testStation(id, name string) directory.Station {
	return directory.Station{ID: id, Name: name, StreamURL: "http://stream.example/" + id}
}

func testController(factory SessionFactory, reporter ClickReporter) *Controller {
	sentry := sentryhelper.NewSentryHelper(false, slog.Default())
	return NewController(factory, reporter, slog.Default(), sentry)
}

func TestPlayStartsSession(t *testing.T) {
	factory := &mockFactory{}
	reporter := &mockReporter{}
	controller := testController(factory, reporter)
	defer controller.Stop()

	station := testStation("uuid-1", "Jazz FM")
	require.NoError(t, controller.Play(context.Background(), station))

	now, playing := controller.NowPlaying()
	require.True(t, playing)
	assert.Equal(t, "Jazz FM", now.Name)
	assert.Equal(t, 1, factory.startCount())
	assert.Equal(t, []string{"uuid-1"}, reporter.clicks())
}

func TestPlaySameStationTogglesOff(t *testing.T) {
	factory := &mockFactory{}
	reporter := &mockReporter{}
	controller := testController(factory, reporter)

	station := testStation("uuid-1", "Jazz FM")
	require.NoError(t, controller.Play(context.Background(), station))
	require.NoError(t, controller.Play(context.Background(), station))

	_, playing := controller.NowPlaying()
	assert.False(t, playing)
	assert.Equal(t, 1, factory.startCount(), "toggle must not start a second session")
	assert.Equal(t, int32(1), factory.sessions[0].stops.Load())
	assert.Equal(t, []string{"uuid-1"}, reporter.clicks(), "a toggle stop is not a play and reports no click")
}

func TestPlaySwitchesStations(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, &mockReporter{})
	defer controller.Stop()

	require.NoError(t, controller.Play(context.Background(), testStation("uuid-1", "Jazz FM")))
	require.NoError(t, controller.Play(context.Background(), testStation("uuid-2", "Rock FM")))

	now, playing := controller.NowPlaying()
	require.True(t, playing)
	assert.Equal(t, "Rock FM", now.Name)

	require.Len(t, factory.sessions, 2)
	assert.Equal(t, int32(1), factory.sessions[0].stops.Load(), "old session released on switch")
	assert.Equal(t, int32(0), factory.sessions[1].stops.Load())
}

func TestPlayRejectsInvalidStation(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, nil)

	err := controller.Play(context.Background(), directory.Station{ID: "uuid-1", Name: "No Stream"})
	require.Error(t, err)
	assert.Equal(t, 0, factory.startCount())
}

func TestPlayFailureClearsNowPlaying(t *testing.T) {
	factory := &mockFactory{err: errors.New("connection refused")}
	controller := testController(factory, &mockReporter{})

	err := controller.Play(context.Background(), testStation("uuid-1", "Dead Air"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dead Air", "error names the station for the UI")

	_, playing := controller.NowPlaying()
	assert.False(t, playing)
}

func TestSwitchToFailingStationStopsOldSession(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, &mockReporter{})

	require.NoError(t, controller.Play(context.Background(), testStation("uuid-1", "Jazz FM")))

	factory.err = errors.New("connection refused")
	err := controller.Play(context.Background(), testStation("uuid-2", "Dead Air"))
	require.Error(t, err)

	assert.Equal(t, int32(1), factory.sessions[0].stops.Load())
	_, playing := controller.NowPlaying()
	assert.False(t, playing, "failed switch leaves nothing playing")
}

func TestStopIsIdempotent(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, nil)

	controller.Stop()

	require.NoError(t, controller.Play(context.Background(), testStation("uuid-1", "Jazz FM")))
	controller.Stop()
	controller.Stop()

	assert.Equal(t, int32(1), factory.sessions[0].stops.Load())
	_, playing := controller.NowPlaying()
	assert.False(t, playing)
}

func TestSessionDyingClearsNowPlaying(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, nil)

	require.NoError(t, controller.Play(context.Background(), testStation("uuid-1", "Jazz FM")))

	// The stream dies without anyone calling Stop.
	factory.sessions[0].die()

	require.Eventually(t, func() bool {
		_, playing := controller.NowPlaying()
		return !playing
	}, time.Second, 10*time.Millisecond, "a dead session must not stay reported as current")

	assert.Equal(t, int32(1), factory.sessions[0].stops.Load(), "the dead session's resources are released")

	// The controller stays usable afterwards.
	require.NoError(t, controller.Play(context.Background(), testStation("uuid-2", "Rock FM")))
	controller.Stop()
}

func TestSessionDyingAfterReplacementIsIgnored(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, nil)
	defer controller.Stop()

	require.NoError(t, controller.Play(context.Background(), testStation("uuid-1", "Jazz FM")))
	require.NoError(t, controller.Play(context.Background(), testStation("uuid-2", "Rock FM")))

	// The replaced session's end must not clear the replacement.
	factory.sessions[0].die()
	time.Sleep(50 * time.Millisecond)

	now, playing := controller.NowPlaying()
	require.True(t, playing)
	assert.Equal(t, "Rock FM", now.Name)
}

func TestConcurrentPlayKeepsOneSession(t *testing.T) {
	factory := &mockFactory{}
	controller := testController(factory, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		station := testStation("uuid-1", "Jazz FM")
		if i%2 == 1 {
			station = testStation("uuid-2", "Rock FM")
		}
		wg.Add(1)
		go func(st directory.Station) {
			defer wg.Done()
			_ = controller.Play(context.Background(), st)
		}(station)
	}
	wg.Wait()
	controller.Stop()

	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	stopped := 0
	for _, session := range factory.sessions {
		stopped += int(session.stops.Load())
	}
	assert.Equal(t, len(factory.sessions), stopped, "every session started was also stopped")
}
