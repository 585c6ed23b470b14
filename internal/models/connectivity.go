package models

import "time"

// ConnectivityState is the result of a single reachability query.
type ConnectivityState int

const (
	Offline ConnectivityState = iota
	Online
)

func (s ConnectivityState) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Transport names a kind of network link that counts towards reachability.
type Transport string

const (
	TransportCellular Transport = "cellular"
	TransportWiFi     Transport = "wifi"
	TransportEthernet Transport = "ethernet"
)

// PresenceReport is the point-in-time status sent to the profile store.
type PresenceReport struct {
	Token      string    `json:"-"`
	IsOnline   bool      `json:"is_online"`
	ObservedAt time.Time `json:"observed_at"`
}
