package models

import "time"

// UserProfile mirrors the remote user document. Times are epoch milliseconds.
type UserProfile struct {
	UID         string `json:"uid" bson:"uid"`
	Name        string `json:"name" bson:"name"`
	Email       string `json:"email" bson:"email"`
	Token       string `json:"token,omitempty" bson:"token"`
	CreatedTime int64  `json:"createdTime" bson:"createdTime"`
	UpdatedTime int64  `json:"updatedTime" bson:"updatedTime"`
	IsOnline    bool   `json:"isOnline" bson:"isOnline"`
}

// Redacted returns a copy without the session token.
func (p UserProfile) Redacted() UserProfile {
	p.Token = ""
	return p
}

// UpdatedAt converts UpdatedTime to a time value.
func (p UserProfile) UpdatedAt() time.Time {
	return time.UnixMilli(p.UpdatedTime).UTC()
}

// PresenceSample records one accepted presence update.
type PresenceSample struct {
	UID        string    `json:"uid"`
	Online     bool      `json:"online"`
	ObservedAt time.Time `json:"observed_at"`
	ReceivedAt time.Time `json:"received_at"`
}
