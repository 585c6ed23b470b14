package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"notespresence/internal/models"
)

// ErrDuplicateToken is returned when a token is already assigned to another user.
var ErrDuplicateToken = errors.New("token already in use")

// ProfileStorage keeps user profiles on disk, indexed by uid and token.
type ProfileStorage struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]models.UserProfile
	byToken  map[string]string
}

// NewProfileStorage creates a storage instance and loads existing profiles if present.
func NewProfileStorage(path string) (*ProfileStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	s := &ProfileStorage{
		path:     path,
		profiles: make(map[string]models.UserProfile),
		byToken:  make(map[string]string),
	}
	var list []models.UserProfile
	if _, err := readJSON(path, &list); err != nil {
		return nil, err
	}
	for _, p := range list {
		s.index(p)
	}
	return s, nil
}

// Create stores a new profile and persists it.
func (s *ProfileStorage) Create(p models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Token != "" {
		if _, taken := s.byToken[p.Token]; taken {
			return ErrDuplicateToken
		}
	}
	s.index(p)
	return s.persistLocked()
}

// Get returns the profile for uid.
func (s *ProfileStorage) Get(uid string) (models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[uid]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	return p, nil
}

// ByToken returns the profile holding token.
func (s *ProfileStorage) ByToken(token string) (models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if token == "" {
		return models.UserProfile{}, ErrNotFound
	}
	uid, ok := s.byToken[token]
	if !ok {
		return models.UserProfile{}, ErrNotFound
	}
	return s.profiles[uid], nil
}

// List returns all profiles sorted by name, then uid.
func (s *ProfileStorage) List() []models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a == b {
			return out[i].UID < out[j].UID
		}
		return a < b
	})
	return out
}

// SetPresence updates isOnline and updatedTime for the profile holding token.
func (s *ProfileStorage) SetPresence(token string, online bool, at time.Time) (models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byToken[token]
	if token == "" || !ok {
		return models.UserProfile{}, ErrNotFound
	}
	p := s.profiles[uid]
	p.IsOnline = online
	p.UpdatedTime = at.UnixMilli()
	s.profiles[uid] = p
	if err := s.persistLocked(); err != nil {
		return models.UserProfile{}, err
	}
	return p, nil
}

// MarkStale flips online users whose last update is before cutoff to offline
// and returns the changed profiles.
func (s *ProfileStorage) MarkStale(cutoff, now time.Time) ([]models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []models.UserProfile
	for uid, p := range s.profiles {
		if !p.IsOnline || !p.UpdatedAt().Before(cutoff) {
			continue
		}
		p.IsOnline = false
		p.UpdatedTime = now.UnixMilli()
		s.profiles[uid] = p
		changed = append(changed, p)
	}
	if len(changed) == 0 {
		return nil, nil
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].UID < changed[j].UID })
	return changed, s.persistLocked()
}

func (s *ProfileStorage) index(p models.UserProfile) {
	if old, ok := s.profiles[p.UID]; ok && old.Token != "" {
		delete(s.byToken, old.Token)
	}
	s.profiles[p.UID] = p
	if p.Token != "" {
		s.byToken[p.Token] = p.UID
	}
}

func (s *ProfileStorage) persistLocked() error {
	list := make([]models.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UID < list[j].UID })
	return writeJSON(s.path, list)
}
