package metrics

import (
	"math"
	"sort"
	"time"

	"notespresence/internal/models"
)

// UserUptime summarises how often a user reported being online.
type UserUptime struct {
	UID           string  `json:"uid"`
	Name          string  `json:"name"`
	OnlinePercent float64 `json:"online_percent"`
	TotalReports  int     `json:"total_reports"`
	Online        int     `json:"online"`
	Offline       int     `json:"offline"`
	LastState     string  `json:"last_state,omitempty"`
	LastUpdated   string  `json:"last_updated,omitempty"`
}

// ComputeUserUptime aggregates presence samples per user. Names come from
// profiles; users that never reported are omitted.
func ComputeUserUptime(profiles []models.UserProfile, samples []models.PresenceSample) []UserUptime {
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.UID] = p.Name
	}

	type acc struct {
		online   int
		offline  int
		lastOK   bool
		lastTime time.Time
	}
	state := make(map[string]*acc)
	for _, sample := range samples {
		target := state[sample.UID]
		if target == nil {
			target = &acc{}
			state[sample.UID] = target
		}
		if sample.Online {
			target.online++
		} else {
			target.offline++
		}
		if !sample.ObservedAt.Before(target.lastTime) {
			target.lastOK = sample.Online
			target.lastTime = sample.ObservedAt
		}
	}
	if len(state) == 0 {
		return nil
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]UserUptime, 0, len(keys))
	for _, uid := range keys {
		data := state[uid]
		total := data.online + data.offline
		percent := 0.0
		if total > 0 {
			percent = float64(data.online) / float64(total) * 100
		}
		result := UserUptime{
			UID:           uid,
			Name:          names[uid],
			OnlinePercent: round2(percent),
			TotalReports:  total,
			Online:        data.online,
			Offline:       data.offline,
			LastState:     models.Offline.String(),
		}
		if data.lastOK {
			result.LastState = models.Online.String()
		}
		if !data.lastTime.IsZero() {
			result.LastUpdated = data.lastTime.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}
	return results
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
