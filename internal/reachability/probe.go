// Package reachability answers whether the device has an active network link.
// It inspects local link state only; no packets are sent.
package reachability

import (
	"fmt"
	"net"
	"runtime"
	"sort"
	"strings"
	"sync"

	"notespresence/internal/models"
)

// Probe reports the current connectivity state.
type Probe interface {
	Query() (models.ConnectivityState, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func() (models.ConnectivityState, error)

// Query calls f.
func (f ProbeFunc) Query() (models.ConnectivityState, error) { return f() }

// Link is the subset of interface state the probe looks at.
type Link struct {
	Name     string
	Up       bool
	Loopback bool
	HasAddr  bool
}

// InterfaceProbe derives reachability from the host's network interfaces.
type InterfaceProbe struct {
	links func() ([]Link, error)
}

// NewInterfaceProbe returns a probe backed by net.Interfaces.
func NewInterfaceProbe() *InterfaceProbe {
	return &InterfaceProbe{links: systemLinks}
}

// Query reports Online when any cellular, WiFi or ethernet link is up.
func (p *InterfaceProbe) Query() (models.ConnectivityState, error) {
	transports, err := p.Transports()
	if err != nil {
		return models.Offline, err
	}
	if len(transports) == 0 {
		return models.Offline, nil
	}
	return models.Online, nil
}

// Transports lists the distinct transports with an active link, sorted.
func (p *InterfaceProbe) Transports() ([]models.Transport, error) {
	links, err := p.links()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	seen := make(map[models.Transport]struct{})
	for _, link := range links {
		if !link.Up || link.Loopback || !link.HasAddr {
			continue
		}
		if transport, ok := Classify(link.Name); ok {
			seen[transport] = struct{}{}
		}
	}
	out := make([]models.Transport, 0, len(seen))
	for transport := range seen {
		out = append(out, transport)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

var (
	wifiPrefixes     = []string{"wlan", "wlp", "wlx", "wl", "wifi", "wi-fi", "wireless", "airport"}
	cellularPrefixes = []string{"wwan", "wwp", "rmnet", "ccmni", "pdp_ip", "ppp", "cellular", "mobile broadband"}
	ethernetPrefixes = []string{"eth", "en", "em", "local area connection"}
)

// Classify maps an interface name to a transport. Virtual links such as
// bridges, tunnels and container veths are not classified.
func Classify(name string) (models.Transport, bool) {
	return classify(runtime.GOOS, name)
}

// On darwin en0 is the built-in Wi-Fi interface; other enN links are wired.
func classify(goos, name string) (models.Transport, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "", false
	}
	switch {
	case goos == "darwin" && lower == "en0":
		return models.TransportWiFi, true
	case hasAnyPrefix(lower, wifiPrefixes):
		return models.TransportWiFi, true
	case hasAnyPrefix(lower, cellularPrefixes):
		return models.TransportCellular, true
	case hasAnyPrefix(lower, ethernetPrefixes):
		return models.TransportEthernet, true
	default:
		return "", false
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func systemLinks() ([]Link, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, len(ifaces))
	for _, iface := range ifaces {
		link := Link{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if link.Up && !link.Loopback {
			addrs, err := iface.Addrs()
			link.HasAddr = err == nil && len(addrs) > 0
		}
		links = append(links, link)
	}
	return links, nil
}

// Static replays a fixed sequence of states, repeating the last one.
type Static struct {
	mu     sync.Mutex
	states []models.ConnectivityState
	calls  int
}

// NewStatic returns a probe that yields states in order.
func NewStatic(states ...models.ConnectivityState) *Static {
	if len(states) == 0 {
		states = []models.ConnectivityState{models.Offline}
	}
	return &Static{states: states}
}

// Query returns the next state in the sequence.
func (s *Static) Query() (models.ConnectivityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.states) {
		idx = len(s.states) - 1
	}
	s.calls++
	return s.states[idx], nil
}

// Calls reports how many times Query ran.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
