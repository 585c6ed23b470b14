package mainloop

import (
	"sort"
	"sync"
	"time"
)

type manualTask struct {
	at        time.Time
	seq       int
	fn        func()
	cancelled bool
}

// Manual is a Scheduler driven by Advance instead of wall-clock time.
// Callbacks run on the goroutine calling Advance.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualTask
}

// NewManual returns a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now reports the scheduler's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// ScheduleAfter queues fn to run once the clock reaches now+d.
func (m *Manual) ScheduleAfter(d time.Duration, fn func()) CancelFunc {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	m.seq++
	task := &manualTask{at: m.now.Add(d), seq: m.seq, fn: fn}
	m.pending = append(m.pending, task)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		task.cancelled = true
		m.mu.Unlock()
	}
}

// Post queues fn at the current time; it runs on the next Advance or Flush.
func (m *Manual) Post(fn func()) bool {
	m.ScheduleAfter(0, fn)
	return true
}

// Pending counts callbacks that are scheduled and not cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.pending {
		if !task.cancelled {
			n++
		}
	}
	return n
}

// Flush runs everything due at the current time.
func (m *Manual) Flush() {
	m.Advance(0)
}

// Advance moves the clock forward by d, running due callbacks in time order.
// Callbacks scheduled while advancing run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		task := m.next(target)
		if task == nil {
			break
		}
		task.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) next(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.pending[:0]
	for _, task := range m.pending {
		if !task.cancelled {
			live = append(live, task)
		}
	}
	m.pending = live
	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].at.Equal(m.pending[j].at) {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].at.Before(m.pending[j].at)
	})
	head := m.pending[0]
	if head.at.After(target) {
		return nil
	}
	m.pending = m.pending[1:]
	m.now = head.at
	return head
}
