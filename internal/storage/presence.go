package storage

import (
	"sort"
	"sync"
	"time"

	"notespresence/internal/models"
)

// PresenceStorage persists a capped history of presence samples to disk.
type PresenceStorage struct {
	mu         sync.RWMutex
	path       string
	maxHistory int
	history    []models.PresenceSample
}

// NewPresenceStorage initialises storage and loads existing samples if present.
func NewPresenceStorage(path string, maxHistory int) (*PresenceStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if maxHistory <= 0 {
		maxHistory = 20000
	}
	s := &PresenceStorage{path: path, maxHistory: maxHistory}
	if _, err := readJSON(path, &s.history); err != nil {
		return nil, err
	}
	sort.SliceStable(s.history, func(i, j int) bool {
		return s.history[i].ReceivedAt.Before(s.history[j].ReceivedAt)
	})
	s.trimLocked()
	return s, nil
}

// Append records a sample in ReceivedAt order and persists the history.
func (s *PresenceStorage) Append(sample models.PresenceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.history), func(i int) bool {
		return s.history[i].ReceivedAt.After(sample.ReceivedAt)
	})
	s.history = append(s.history, models.PresenceSample{})
	copy(s.history[idx+1:], s.history[idx:])
	s.history[idx] = sample
	s.trimLocked()
	return writeJSON(s.path, s.history)
}

// History returns a copy of all samples.
func (s *PresenceStorage) History() []models.PresenceSample {
	return s.HistorySince(time.Time{})
}

// HistorySince returns samples received at or after cutoff.
func (s *PresenceStorage) HistorySince(cutoff time.Time) []models.PresenceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return nil
	}
	idx := 0
	if !cutoff.IsZero() {
		idx = sort.Search(len(s.history), func(i int) bool {
			return !s.history[i].ReceivedAt.Before(cutoff)
		})
	}
	if idx >= len(s.history) {
		return nil
	}
	out := make([]models.PresenceSample, len(s.history)-idx)
	copy(out, s.history[idx:])
	return out
}

// HistoryFor returns samples for one user received at or after cutoff.
func (s *PresenceStorage) HistoryFor(uid string, cutoff time.Time) []models.PresenceSample {
	all := s.HistorySince(cutoff)
	out := all[:0]
	for _, sample := range all {
		if sample.UID == uid {
			out = append(out, sample)
		}
	}
	return out
}

func (s *PresenceStorage) trimLocked() {
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}
