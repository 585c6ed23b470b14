// Package monitor polls device reachability and mirrors it into the remote
// user profile.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"notespresence/internal/mainloop"
	"notespresence/internal/models"
	"notespresence/internal/reachability"
)

// DefaultInterval is the fixed delay between ticks.
const DefaultInterval = 3 * time.Second

// PresenceSink accepts reports fire-and-forget. The callback may never run.
type PresenceSink interface {
	Submit(ctx context.Context, report models.PresenceReport, callback func(ok bool, message string))
}

// Notifier shows the offline prompt.
type Notifier interface {
	ShowOfflinePrompt(onRetry, onDismiss func())
}

// SettingsOpener opens the system network settings.
type SettingsOpener interface {
	Open() error
}

// Options tune a Monitor. Zero values select defaults.
type Options struct {
	Interval time.Duration
	Token    string
	// RepeatPrompts shows the offline prompt on every offline tick instead of
	// once per offline streak.
	RepeatPrompts bool
	Now           func() time.Time
}

// Monitor is a two-state (Stopped, Polling) presence poller.
type Monitor struct {
	sched    mainloop.Scheduler
	probe    reachability.Probe
	sink     PresenceSink
	notifier Notifier
	settings SettingsOpener
	logger   *zap.SugaredLogger

	interval      time.Duration
	repeatPrompts bool
	now           func() time.Time

	mu       sync.Mutex
	token    string
	armed    bool
	gen      uint64
	cancel   mainloop.CancelFunc
	prompted bool
}

type chain struct {
	gen   uint64
	token string
}

// New wires a monitor. It starts in the Stopped state.
func New(sched mainloop.Scheduler, probe reachability.Probe, sink PresenceSink, notifier Notifier, settings SettingsOpener, logger *zap.SugaredLogger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		sched:         sched,
		probe:         probe,
		sink:          sink,
		notifier:      notifier,
		settings:      settings,
		logger:        logger,
		interval:      opts.Interval,
		repeatPrompts: opts.RepeatPrompts,
		now:           opts.Now,
		token:         opts.Token,
	}
}

// Start begins polling with an immediate first tick. Starting a running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		return
	}
	m.armed = true
	m.gen++
	m.prompted = false
	c := chain{gen: m.gen, token: m.token}
	m.logger.Infow("starting presence monitor", "interval", m.interval, "has_token", c.token != "")
	m.cancel = m.sched.ScheduleAfter(0, func() { m.tick(c) })
}

// Stop cancels the pending tick. A tick already executing finishes but does
// not reschedule. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return
	}
	m.armed = false
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.logger.Info("stopped presence monitor")
}

// Running reports whether the monitor is polling.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// SetToken replaces the session token. It applies from the next Start.
func (m *Monitor) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Monitor) current(c chain) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed && m.gen == c.gen
}

func (m *Monitor) tick(c chain) {
	if !m.current(c) {
		return
	}

	state, err := m.probe.Query()
	if err != nil {
		m.logger.Debugw("reachability query failed, treating as offline", "error", err)
		state = models.Offline
	}

	report := models.PresenceReport{
		Token:      c.token,
		IsOnline:   state == models.Online,
		ObservedAt: m.now().UTC(),
	}
	m.logger.Debugw("connectivity checked", "state", state.String())
	m.report(report)

	if report.IsOnline {
		m.mu.Lock()
		m.prompted = false
		m.mu.Unlock()
	} else {
		m.promptOffline()
	}

	m.mu.Lock()
	if m.armed && m.gen == c.gen {
		m.cancel = m.sched.ScheduleAfter(m.interval, func() { m.tick(c) })
	}
	m.mu.Unlock()
}

func (m *Monitor) report(report models.PresenceReport) {
	if report.Token == "" {
		return
	}
	online := report.IsOnline
	m.sink.Submit(context.Background(), report, func(ok bool, message string) {
		if ok {
			m.logger.Debugw("presence write finished", "online", online, "message", message)
			return
		}
		m.logger.Warnw("presence write failed", "online", online, "message", message)
	})
}

func (m *Monitor) promptOffline() {
	m.mu.Lock()
	skip := m.prompted && !m.repeatPrompts
	m.prompted = true
	m.mu.Unlock()
	if skip {
		return
	}
	m.notifier.ShowOfflinePrompt(m.openSettings, func() {
		m.logger.Debug("offline prompt dismissed")
	})
}

func (m *Monitor) openSettings() {
	if m.settings == nil {
		return
	}
	if err := m.settings.Open(); err != nil {
		m.logger.Warnw("open network settings", "error", err)
	}
}
