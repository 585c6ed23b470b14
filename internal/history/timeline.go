package history

import (
	"sort"
	"strings"
	"time"

	"notespresence/internal/models"
)

const (
	// DefaultTimelinePoints controls how many dots we generate per user.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4
)

// BuildUserTimelines converts presence history into compact per-user timelines.
// Users without samples still get a row of "No data" points.
func BuildUserTimelines(
	profiles []models.UserProfile,
	samples []models.PresenceSample,
	start, end time.Time,
	points int,
) []models.UserTimeline {
	nameMap := make(map[string]string)
	registerName := func(uid, name string) {
		if uid == "" {
			return
		}
		if name == "" {
			name = uid
		}
		if existing, ok := nameMap[uid]; !ok || existing == "" || existing == uid {
			nameMap[uid] = name
		}
	}
	for _, p := range profiles {
		registerName(p.UID, p.Name)
	}

	byUser := make(map[string][]models.PresenceSample)
	for _, sample := range samples {
		registerName(sample.UID, "")
		byUser[sample.UID] = append(byUser[sample.UID], sample)
	}
	if len(nameMap) == 0 {
		return nil
	}

	ids := make([]string, 0, len(nameMap))
	for id := range nameMap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := strings.ToLower(nameMap[ids[i]]), strings.ToLower(nameMap[ids[j]])
		if a == b {
			return ids[i] < ids[j]
		}
		return a < b
	})

	result := make([]models.UserTimeline, 0, len(ids))
	for _, id := range ids {
		result = append(result, models.UserTimeline{
			UID:      id,
			Name:     nameMap[id],
			Timeline: BuildPresenceTimeline(byUser[id], start, end, points),
		})
	}
	return result
}

// BuildPresenceTimeline reduces presence samples into compact timeline points.
// A bucket without samples inherits the previous state while the gap since that
// sample stays within twice the typical reporting interval.
func BuildPresenceTimeline(entries []models.PresenceSample, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.PresenceSample, 0, len(entries))
	for _, entry := range entries {
		if entry.ObservedAt.IsZero() {
			continue
		}
		samples = append(samples, entry)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ObservedAt.Before(samples[j].ObservedAt)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}

	gapThreshold := deriveGap(samples)

	result := make([]models.TimelinePoint, 0, points)
	idx := 0
	var last models.PresenceSample
	var haveLast bool
	for idx < len(samples) && samples[idx].ObservedAt.Before(start) {
		last = samples[idx]
		haveLast = true
		idx++
	}

	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}

		point := models.TimelinePoint{
			ClassName: "state-missing",
			Label:     "No data",
			Start:     bucketStart,
			End:       bucketEnd,
		}

		var bucketSamples []models.PresenceSample
		for idx < len(samples) && samples[idx].ObservedAt.Before(bucketEnd) {
			last = samples[idx]
			haveLast = true
			bucketSamples = append(bucketSamples, samples[idx])
			idx++
		}

		switch {
		case len(bucketSamples) > 0:
			point.ClassName, point.Label = presenceClass(bucketSamples)
			details := make([]models.TimelineDetail, 0, maxDetailsPerPoint)
			for _, sample := range bucketSamples {
				if len(details) >= maxDetailsPerPoint {
					break
				}
				details = append(details, presenceDetail(sample))
			}
			point.Details = details
		case haveLast && bucketStart.Sub(last.ObservedAt) <= gapThreshold:
			point.ClassName, point.Label = presenceClass([]models.PresenceSample{last})
			detail := presenceDetail(last)
			detail.Timestamp = bucketStart
			point.Details = []models.TimelineDetail{detail}
		}

		result = append(result, point)
	}
	return result
}

func deriveGap(samples []models.PresenceSample) time.Duration {
	const defaultGap = 5 * time.Minute
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	prev := samples[0].ObservedAt
	for i := 1; i < len(samples); i++ {
		curr := samples[i].ObservedAt
		if curr.After(prev) {
			diffs = append(diffs, curr.Sub(prev))
		}
		prev = curr
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i] < diffs[j]
	})
	median := diffs[len(diffs)/2]
	if median <= 0 {
		return defaultGap
	}
	gap := median * 2
	if gap < 10*time.Second {
		return 10 * time.Second
	}
	if gap > 2*time.Hour {
		return 2 * time.Hour
	}
	return gap
}

// presenceClass marks a bucket offline if any sample in it was offline.
func presenceClass(samples []models.PresenceSample) (className, label string) {
	for _, sample := range samples {
		if !sample.Online {
			return "state-error", "Offline"
		}
	}
	return "state-success", "Online"
}

func presenceDetail(sample models.PresenceSample) models.TimelineDetail {
	state := models.Offline.String()
	if sample.Online {
		state = models.Online.String()
	}
	return models.TimelineDetail{
		Timestamp: sample.ObservedAt,
		State:     state,
	}
}
