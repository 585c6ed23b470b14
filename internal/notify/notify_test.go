package notify

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notespresence/internal/mainloop"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTerminalRetryAnswer(t *testing.T) {
	loop := mainloop.New()
	defer loop.Close()

	in, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	term := NewTerminal(in, out, loop, zap.NewNop().Sugar())

	choice := make(chan string, 2)
	term.ShowOfflinePrompt(func() { choice <- "retry" }, func() { choice <- "dismiss" })
	require.Contains(t, out.String(), "No internet connection")

	_, err := io.WriteString(inW, " R \n")
	require.NoError(t, err)

	select {
	case got := <-choice:
		require.Equal(t, "retry", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no answer delivered")
	}
}

func TestTerminalNewPromptReplacesPending(t *testing.T) {
	loop := mainloop.New()
	defer loop.Close()

	in, inW := io.Pipe()
	defer inW.Close()
	term := NewTerminal(in, &syncBuffer{}, loop, zap.NewNop().Sugar())

	choice := make(chan string, 4)
	term.ShowOfflinePrompt(func() { choice <- "first-retry" }, func() { choice <- "first-dismiss" })
	term.ShowOfflinePrompt(func() { choice <- "second-retry" }, func() { choice <- "second-dismiss" })

	_, err := io.WriteString(inW, "d\n")
	require.NoError(t, err)
	// A second answer with nothing pending is ignored.
	_, err = io.WriteString(inW, "r\n")
	require.NoError(t, err)

	select {
	case got := <-choice:
		require.Equal(t, "second-dismiss", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no answer delivered")
	}
	require.NoError(t, loop.Invoke(func() {}))
	require.Len(t, choice, 0)
}

func TestIsRetry(t *testing.T) {
	require.True(t, isRetry("r"))
	require.True(t, isRetry("Retry"))
	require.False(t, isRetry(""))
	require.False(t, isRetry("d"))
}

func TestSettingsFallsBack(t *testing.T) {
	var calls []string
	s := &Settings{goos: "linux", start: func(name string, args ...string) error {
		calls = append(calls, name)
		if len(calls) == 1 {
			return errors.New("not installed")
		}
		return nil
	}}
	require.NoError(t, s.Open())
	require.Equal(t, []string{"gnome-control-center", "xdg-open"}, calls)
}

func TestSettingsBothFail(t *testing.T) {
	s := &Settings{goos: "windows", start: func(string, ...string) error {
		return errors.New("boom")
	}}
	require.Error(t, s.Open())

	s = &Settings{goos: "plan9", start: func(string, ...string) error { return nil }}
	require.Error(t, s.Open())
}
