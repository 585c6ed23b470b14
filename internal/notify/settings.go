package notify

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
)

// Settings opens the operating system's network settings panel.
type Settings struct {
	goos  string
	start func(name string, args ...string) error
}

// NewSettings returns an opener for the running platform.
func NewSettings() *Settings {
	return &Settings{goos: runtime.GOOS, start: startDetached}
}

// Open tries the network panel first and falls back to the general settings panel.
func (s *Settings) Open() error {
	primary, fallback := settingsCommands(s.goos)
	if len(primary) == 0 {
		return fmt.Errorf("no settings command for %s", s.goos)
	}
	err := s.start(primary[0], primary[1:]...)
	if err == nil {
		return nil
	}
	if len(fallback) == 0 {
		return err
	}
	if ferr := s.start(fallback[0], fallback[1:]...); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}

func settingsCommands(goos string) (primary, fallback []string) {
	switch goos {
	case "linux":
		return []string{"gnome-control-center", "network"}, []string{"xdg-open", "settings://"}
	case "darwin":
		return []string{"open", "x-apple.systempreferences:com.apple.preference.network"}, []string{"open", "-b", "com.apple.systempreferences"}
	case "windows":
		return []string{"cmd", "/c", "start", "ms-settings:network"}, []string{"cmd", "/c", "start", "ms-settings:"}
	default:
		return nil, nil
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
