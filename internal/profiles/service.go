// Package profiles implements the profile store the presence agent reports to.
package profiles

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"notespresence/internal/models"
	"notespresence/internal/storage"
)

// ErrInvalidProfile is returned when registration input is incomplete.
var ErrInvalidProfile = errors.New("name and email are required")

// Service owns user profiles and their presence history.
type Service struct {
	profiles *storage.ProfileStorage
	presence *storage.PresenceStorage
	logger   *zap.SugaredLogger
	now      func() time.Time

	staleAfter    time.Duration
	sweepInterval time.Duration
	cron          *cron.Cron

	mu          sync.Mutex
	nextSubID   int
	subscribers map[int]chan struct{}
}

// NewService wires the stores. Users not heard from within staleAfter are
// marked offline by the sweep.
func NewService(profiles *storage.ProfileStorage, presence *storage.PresenceStorage, staleAfter, sweepInterval time.Duration, logger *zap.SugaredLogger) *Service {
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Service{
		profiles:      profiles,
		presence:      presence,
		logger:        logger,
		now:           time.Now,
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
		subscribers:   make(map[int]chan struct{}),
	}
}

// Start launches the periodic stale-presence sweep.
func (s *Service) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.sweepInterval), s.sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Register creates a profile with a fresh uid and bearer token.
func (s *Service) Register(name, email string) (models.UserProfile, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return models.UserProfile{}, ErrInvalidProfile
	}
	token, err := GenerateToken(name, DefaultTokenLength)
	if err != nil {
		return models.UserProfile{}, err
	}
	now := s.now().UnixMilli()
	profile := models.UserProfile{
		UID:         uuid.NewString(),
		Name:        name,
		Email:       email,
		Token:       token,
		CreatedTime: now,
		UpdatedTime: now,
		IsOnline:    true,
	}
	if err := s.profiles.Create(profile); err != nil {
		return models.UserProfile{}, fmt.Errorf("store profile: %w", err)
	}
	s.logger.Infow("registered profile", "uid", profile.UID)
	s.broadcast()
	return profile, nil
}

// Profile returns the profile for a session token.
func (s *Service) Profile(token string) (models.UserProfile, error) {
	return s.profiles.ByToken(token)
}

// Profiles lists every profile with tokens removed.
func (s *Service) Profiles() []models.UserProfile {
	list := s.profiles.List()
	for i := range list {
		list[i] = list[i].Redacted()
	}
	return list
}

// ReportPresence applies a presence update for token and records it.
// updatedTime follows the server clock so the stale sweep is not skewed by
// the client's; observedAt is kept on the sample.
func (s *Service) ReportPresence(token string, online bool, observedAt time.Time) (models.UserProfile, error) {
	received := s.now().UTC()
	if observedAt.IsZero() {
		observedAt = received
	}
	profile, err := s.profiles.SetPresence(token, online, received)
	if err != nil {
		return models.UserProfile{}, err
	}
	sample := models.PresenceSample{
		UID:        profile.UID,
		Online:     online,
		ObservedAt: observedAt.UTC(),
		ReceivedAt: received,
	}
	if err := s.presence.Append(sample); err != nil {
		s.logger.Warnw("record presence sample", "uid", profile.UID, "error", err)
	}
	s.broadcast()
	return profile, nil
}

// History returns presence samples received since cutoff.
func (s *Service) History(cutoff time.Time) []models.PresenceSample {
	return s.presence.HistorySince(cutoff)
}

// HistoryFor returns one user's presence samples received since cutoff.
func (s *Service) HistoryFor(uid string, cutoff time.Time) []models.PresenceSample {
	return s.presence.HistoryFor(uid, cutoff)
}

// Sweep marks users offline whose last update is older than the stale window.
func (s *Service) Sweep() ([]models.UserProfile, error) {
	now := s.now().UTC()
	changed, err := s.profiles.MarkStale(now.Add(-s.staleAfter), now)
	if err != nil {
		return changed, fmt.Errorf("mark stale profiles: %w", err)
	}
	for _, p := range changed {
		if err := s.presence.Append(models.PresenceSample{
			UID:        p.UID,
			Online:     false,
			ObservedAt: now,
			ReceivedAt: now,
		}); err != nil {
			s.logger.Warnw("record stale sample", "uid", p.UID, "error", err)
		}
	}
	if len(changed) > 0 {
		s.logger.Infow("marked stale profiles offline", "count", len(changed))
		s.broadcast()
	}
	return changed, nil
}

func (s *Service) sweep() {
	if _, err := s.Sweep(); err != nil {
		s.logger.Errorw("presence sweep failed", "error", err)
	}
}

// Subscribe returns a channel signalled after every change. Signals coalesce.
func (s *Service) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch
	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Service) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
