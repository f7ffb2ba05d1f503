package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Device    string    `json:"device,omitempty"`
	Raw       string    `json:"raw"`
}

// Buffer is a thread-safe ring buffer of zerolog output, served by /api/logs
type Buffer struct {
	entries []Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
	now     func() time.Time
}

// New creates a buffer holding the last size entries
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
		now:     time.Now,
	}
}

// Write implements io.Writer. Each call is expected to carry one zerolog JSON line.
func (b *Buffer) Write(p []byte) (n int, err error) {
	entry := parse(strings.TrimRight(string(p), "\n"))

	b.mu.Lock()
	defer b.mu.Unlock()

	entry.Timestamp = b.now()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}

	return len(p), nil
}

// Entries returns all entries, oldest first
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Entry, b.count)
	start := 0
	if b.count == b.size {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}
	return result
}

// Recent returns the most recent n entries, optionally only those for one device
func (b *Buffer) Recent(n int, device string) []Entry {
	entries := b.Entries()
	if device != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Device == device {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

// Clear drops all entries
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

func parse(raw string) Entry {
	entry := Entry{Level: "info", Message: raw, Raw: raw}

	var fields struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Device  string `json:"device"`
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return entry
	}
	if fields.Level != "" {
		entry.Level = fields.Level
	}
	if fields.Message != "" {
		entry.Message = fields.Message
	}
	entry.Device = fields.Device
	return entry
}
