// Package notify surfaces the offline prompt to the person at the device.
package notify

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"notespresence/internal/mainloop"
)

const offlinePrompt = "No internet connection. [r]etry (open network settings) / [d]ismiss: "

type prompt struct {
	onRetry   func()
	onDismiss func()
}

// Terminal writes the offline prompt to out and reads the answer from in.
// An unanswered prompt is replaced by a newer one rather than stacked.
type Terminal struct {
	out    io.Writer
	poster mainloop.Poster
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pending *prompt
}

// NewTerminal starts reading answers from in. Callbacks run on poster.
func NewTerminal(in io.Reader, out io.Writer, poster mainloop.Poster, logger *zap.SugaredLogger) *Terminal {
	t := &Terminal{out: out, poster: poster, logger: logger}
	go t.readAnswers(in)
	return t
}

// ShowOfflinePrompt prints the prompt and arms the callbacks for the next answer.
func (t *Terminal) ShowOfflinePrompt(onRetry, onDismiss func()) {
	t.mu.Lock()
	replaced := t.pending != nil
	t.pending = &prompt{onRetry: onRetry, onDismiss: onDismiss}
	t.mu.Unlock()

	if replaced {
		t.logger.Debug("replacing unanswered offline prompt")
	}
	if _, err := fmt.Fprint(t.out, offlinePrompt); err != nil {
		t.logger.Warnw("offline prompt not shown", "error", err)
	}
}

func (t *Terminal) readAnswers(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.answer(scanner.Text())
	}
}

func (t *Terminal) answer(line string) {
	t.mu.Lock()
	p := t.pending
	t.pending = nil
	t.mu.Unlock()
	if p == nil {
		return
	}

	cb := p.onDismiss
	if isRetry(line) {
		t.logger.Info("retry chosen, opening network settings")
		cb = p.onRetry
	} else {
		t.logger.Info("offline prompt dismissed")
	}
	if cb != nil {
		t.poster.Post(cb)
	}
}

func isRetry(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "retry":
		return true
	}
	return false
}

// Log records offline prompts without waiting for an answer.
type Log struct {
	Logger *zap.SugaredLogger
}

// ShowOfflinePrompt logs that the device is offline.
func (l Log) ShowOfflinePrompt(_, _ func()) {
	l.Logger.Warn("device is offline; check network settings")
}
