package web

import (
	"encoding/json"
	"sync"
)

// LogBuffer keeps the last N log lines in memory so operators can read
// recent activity over the API without shell access. It plugs into zerolog
// as an extra writer via zerolog.MultiLevelWriter.
type LogBuffer struct {
	mu    sync.Mutex
	lines []json.RawMessage
	next  int
	full  bool
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &LogBuffer{lines: make([]json.RawMessage, capacity)}
}

// Write stores one zerolog line. zerolog guarantees each call is a complete
// JSON event.
func (b *LogBuffer) Write(p []byte) (int, error) {
	cp := make(json.RawMessage, len(p))
	copy(cp, p)

	b.mu.Lock()
	b.lines[b.next] = cp
	b.next++
	if b.next == len(b.lines) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
	return len(p), nil
}

// Recent returns up to limit lines, oldest first.
func (b *LogBuffer) Recent(limit int) []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []json.RawMessage
	if b.full {
		ordered = append(ordered, b.lines[b.next:]...)
	}
	ordered = append(ordered, b.lines[:b.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	out := make([]json.RawMessage, len(ordered))
	copy(out, ordered)
	return out
}
