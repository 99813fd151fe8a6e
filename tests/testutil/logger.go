package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/vaultcache/internal/logging"
)

// LogBuffer captures what a logging.Logger writes, so tests can check that
// errors are reported and that secrets never reach the log.
//
//	logger, logs := testutil.NewLogger(t, true)
//	mgr := manager.New(manager.WithLogger(logger))
//	...
//	logs.AssertNotContains(t, "xoxb-")
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset drops the captured output
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// AssertContains fails the test if substr was not logged
func (b *LogBuffer) AssertContains(t *testing.T, substr string) {
	t.Helper()
	out := b.String()
	assert.True(t, strings.Contains(out, substr), "expected log to contain %q, got:\n%s", substr, out)
}

// AssertNotContains fails the test if substr was logged
func (b *LogBuffer) AssertNotContains(t *testing.T, substr string) {
	t.Helper()
	out := b.String()
	assert.False(t, strings.Contains(out, substr), "log must not contain %q, got:\n%s", substr, out)
}

// NewLogger returns an uncolored logger writing into a fresh LogBuffer
func NewLogger(t *testing.T, debug bool) (*logging.Logger, *LogBuffer) {
	t.Helper()
	buf := &LogBuffer{}
	return logging.NewWithWriter(buf, debug, true), buf
}
