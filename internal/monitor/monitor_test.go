package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notespresence/internal/mainloop"
	"notespresence/internal/models"
	"notespresence/internal/reachability"
)

var epoch = time.Date(2025, 11, 18, 2, 36, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	reports []models.PresenceReport
	// hang keeps callbacks from ever firing.
	hang bool
	ok   bool
}

func (s *recordingSink) Submit(_ context.Context, report models.PresenceReport, callback func(bool, string)) {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
	if !s.hang && callback != nil {
		callback(s.ok, "done")
	}
}

func (s *recordingSink) onlineFlags() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.IsOnline)
	}
	return out
}

type recordingNotifier struct {
	prompts   int
	lastRetry func()
}

func (n *recordingNotifier) ShowOfflinePrompt(onRetry, _ func()) {
	n.prompts++
	n.lastRetry = onRetry
}

type countingSettings struct {
	opens int
	err   error
}

func (s *countingSettings) Open() error {
	s.opens++
	return s.err
}

type fixture struct {
	sched    *mainloop.Manual
	sink     *recordingSink
	notifier *recordingNotifier
	settings *countingSettings
}

func newMonitor(t *testing.T, probe reachability.Probe, token string, repeat bool) (*Monitor, *fixture) {
	t.Helper()
	f := &fixture{
		sched:    mainloop.NewManual(epoch),
		sink:     &recordingSink{ok: true},
		notifier: &recordingNotifier{},
		settings: &countingSettings{},
	}
	m := New(f.sched, probe, f.sink, f.notifier, f.settings, zap.NewNop().Sugar(), Options{
		Token:         token,
		RepeatPrompts: repeat,
		Now:           f.sched.Now,
	})
	return m, f
}

func TestFirstTickRunsImmediately(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	require.False(t, m.Running())

	m.Start()
	require.True(t, m.Running())
	f.sched.Flush()

	require.Equal(t, 1, probe.Calls())
	require.Equal(t, []bool{true}, f.sink.onlineFlags())
	require.Equal(t, "tok", f.sink.reports[0].Token)
	require.True(t, epoch.Equal(f.sink.reports[0].ObservedAt))
}

func TestTicksFollowFixedInterval(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()

	f.sched.Advance(DefaultInterval - time.Millisecond)
	require.Equal(t, 1, probe.Calls())

	f.sched.Advance(time.Millisecond)
	require.Equal(t, 2, probe.Calls())

	f.sched.Advance(3 * DefaultInterval)
	require.Equal(t, 5, probe.Calls())
}

func TestExactlyOnePathPerTick(t *testing.T) {
	probe := reachability.NewStatic(models.Online, models.Offline, models.Offline, models.Online)
	m, f := newMonitor(t, probe, "tok", true)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(3 * DefaultInterval)

	require.Equal(t, 4, probe.Calls())
	require.Equal(t, []bool{true, false, false, true}, f.sink.onlineFlags())
	require.Equal(t, 2, f.notifier.prompts)
}

func TestAlternatingProbeSubmitsInOrder(t *testing.T) {
	probe := reachability.NewStatic(models.Online, models.Offline, models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(2 * DefaultInterval)

	require.Equal(t, []bool{true, false, true}, f.sink.onlineFlags())
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()

	m.Stop()
	require.False(t, m.Running())
	f.sched.Advance(10 * DefaultInterval)

	require.Equal(t, 1, probe.Calls())
	require.Len(t, f.sink.onlineFlags(), 1)
	require.Equal(t, 0, f.sched.Pending())
}

func TestStopBeforeFirstTick(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	m.Stop()
	f.sched.Advance(DefaultInterval)

	require.Equal(t, 0, probe.Calls())
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, _ := newMonitor(t, probe, "tok", false)
	m.Stop()
	m.Stop()
	require.False(t, m.Running())
}

func TestStopDuringTickDoesNotReschedule(t *testing.T) {
	var m *Monitor
	probe := reachability.ProbeFunc(func() (models.ConnectivityState, error) {
		m.Stop()
		return models.Online, nil
	})
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(5 * DefaultInterval)

	require.Len(t, f.sink.onlineFlags(), 1)
	require.Equal(t, 0, f.sched.Pending())
}

func TestDoubleStartKeepsSingleChain(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	m.Start()
	f.sched.Flush()
	m.Start()
	f.sched.Advance(2 * DefaultInterval)

	require.Equal(t, 3, probe.Calls())
	require.Equal(t, 1, f.sched.Pending())
}

func TestRestartAfterStop(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "old", false)
	m.Start()
	f.sched.Flush()
	m.Stop()

	m.SetToken("new")
	m.Start()
	f.sched.Flush()
	f.sched.Advance(DefaultInterval)

	require.Equal(t, 3, probe.Calls())
	require.Equal(t, 1, f.sched.Pending())
	require.Equal(t, "old", f.sink.reports[0].Token)
	require.Equal(t, "new", f.sink.reports[2].Token)
}

func TestEmptyTokenSkipsSubmissionButStillPrompts(t *testing.T) {
	probe := reachability.NewStatic(models.Online, models.Offline)
	m, f := newMonitor(t, probe, "", false)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(DefaultInterval)

	require.Equal(t, 2, probe.Calls())
	require.Empty(t, f.sink.onlineFlags())
	require.Equal(t, 1, f.notifier.prompts)
}

func TestHungSinkDoesNotBlockLoop(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	f.sink.hang = true
	m.Start()
	f.sched.Flush()
	f.sched.Advance(2 * DefaultInterval)

	require.Equal(t, 3, probe.Calls())
	require.Len(t, f.sink.onlineFlags(), 3)
}

func TestFailedWriteDoesNotChangeState(t *testing.T) {
	probe := reachability.NewStatic(models.Online)
	m, f := newMonitor(t, probe, "tok", false)
	f.sink.ok = false
	m.Start()
	f.sched.Flush()
	f.sched.Advance(DefaultInterval)

	require.True(t, m.Running())
	require.Equal(t, []bool{true, true}, f.sink.onlineFlags())
}

func TestProbeErrorIsOffline(t *testing.T) {
	probe := reachability.ProbeFunc(func() (models.ConnectivityState, error) {
		return models.Online, errors.New("link state unavailable")
	})
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()

	require.Equal(t, []bool{false}, f.sink.onlineFlags())
	require.Equal(t, 1, f.notifier.prompts)
}

func TestPromptOncePerOfflineStreak(t *testing.T) {
	probe := reachability.NewStatic(models.Offline, models.Offline, models.Offline, models.Online, models.Offline)
	m, f := newMonitor(t, probe, "tok", false)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(4 * DefaultInterval)

	require.Equal(t, 5, probe.Calls())
	require.Equal(t, 2, f.notifier.prompts)
}

func TestPromptEveryTickWhenRepeating(t *testing.T) {
	probe := reachability.NewStatic(models.Offline)
	m, f := newMonitor(t, probe, "tok", true)
	m.Start()
	f.sched.Flush()
	f.sched.Advance(2 * DefaultInterval)

	require.Equal(t, 3, f.notifier.prompts)
}

func TestRetryOpensSettings(t *testing.T) {
	probe := reachability.NewStatic(models.Offline)
	m, f := newMonitor(t, probe, "tok", false)
	f.settings.err = errors.New("no settings app")
	m.Start()
	f.sched.Flush()

	require.NotNil(t, f.notifier.lastRetry)
	f.notifier.lastRetry()
	require.Equal(t, 1, f.settings.opens)
}
