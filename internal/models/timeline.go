package models

import "time"

// TimelinePoint represents a single compact point in a presence timeline.
type TimelinePoint struct {
	ClassName string           `json:"className"`
	Label     string           `json:"label"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Details   []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail carries extra information for problematic buckets.
type TimelineDetail struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state,omitempty"`
}

// UserTimeline aggregates timeline points for a single user.
type UserTimeline struct {
	UID      string          `json:"uid"`
	Name     string          `json:"name"`
	Timeline []TimelinePoint `json:"timeline"`
}
