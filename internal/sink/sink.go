// Package sink delivers presence reports to the remote profile store.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"notespresence/internal/mainloop"
	"notespresence/internal/models"
)

// ErrUnknownToken means no profile is registered for the session token.
var ErrUnknownToken = errors.New("no profile for session token")

// Writer performs one blocking presence write.
type Writer interface {
	Write(ctx context.Context, report models.PresenceReport) error
}

// Callback receives the outcome of a submitted report.
type Callback = func(ok bool, message string)

// Dispatcher runs writes on a worker pool and hands results back to the main loop.
// Delivery is at most once and unordered across submissions.
type Dispatcher struct {
	writer  Writer
	poster  mainloop.Poster
	pool    *ants.Pool
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher with the given worker count and per-write timeout.
func NewDispatcher(writer Writer, poster mainloop.Poster, workers int, timeout time.Duration, logger *zap.SugaredLogger) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		logger.Errorf("presence write panicked: %v", p)
	}), ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Dispatcher{
		writer:  writer,
		poster:  poster,
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Submit queues report for writing and returns immediately. When every worker
// is busy the report is dropped and the callback receives the overload error.
func (d *Dispatcher) Submit(ctx context.Context, report models.PresenceReport, callback Callback) {
	err := d.pool.Submit(func() {
		writeCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		d.deliver(report, callback, d.writer.Write(writeCtx, report))
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			d.logger.Warnw("presence write pool overloaded", "workers", d.pool.Cap())
		}
		d.deliver(report, callback, fmt.Errorf("dispatch presence write: %w", err))
	}
}

// Close releases the worker pool. Writes already running are not interrupted.
func (d *Dispatcher) Close() {
	d.pool.Release()
}

func (d *Dispatcher) deliver(report models.PresenceReport, callback Callback, err error) {
	if callback == nil {
		return
	}
	ok := err == nil
	message := fmt.Sprintf("presence updated (%s)", stateLabel(report.IsOnline))
	if err != nil {
		message = err.Error()
	}
	if !d.poster.Post(func() { callback(ok, message) }) {
		d.logger.Debugw("dropping presence callback, main loop closed", "ok", ok)
	}
}

func stateLabel(online bool) string {
	if online {
		return models.Online.String()
	}
	return models.Offline.String()
}

// LogWriter only logs reports.
type LogWriter struct {
	Logger *zap.SugaredLogger
}

// Write logs the report and always succeeds.
func (w LogWriter) Write(_ context.Context, report models.PresenceReport) error {
	w.Logger.Infow("presence report", "online", report.IsOnline, "observed_at", report.ObservedAt)
	return nil
}
