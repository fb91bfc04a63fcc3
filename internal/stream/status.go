package stream

import (
	"fmt"
	"sync"
	"time"
)

// DefaultStatusLogSize is the number of status entries kept for scroll-back
const DefaultStatusLogSize = 200

// StatusEntry is one human-readable status message
type StatusEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// StatusLog keeps the most recent status messages and fans new ones out to subscribers.
// Slow subscribers miss entries rather than block writers.
type StatusLog struct {
	mu      sync.Mutex
	entries []StatusEntry
	max     int
	subs    map[int]chan StatusEntry
	nextID  int
}

// NewStatusLog creates a log keeping at most size entries
func NewStatusLog(size int) *StatusLog {
	if size < 1 {
		size = DefaultStatusLogSize
	}
	return &StatusLog{
		max:  size,
		subs: make(map[int]chan StatusEntry),
	}
}

// Add appends a message
func (l *StatusLog) Add(level, message string) {
	entry := StatusEntry{Time: time.Now(), Level: level, Message: message}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}

	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Infof appends an info-level message
func (l *StatusLog) Infof(format string, args ...any) {
	l.Add("info", fmt.Sprintf(format, args...))
}

// Errorf appends an error-level message
func (l *StatusLog) Errorf(format string, args ...any) {
	l.Add("error", fmt.Sprintf(format, args...))
}

// Entries returns a copy of the retained entries, oldest first
func (l *StatusLog) Entries() []StatusEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StatusEntry(nil), l.entries...)
}

// Subscribe returns a channel receiving new entries and a function to unsubscribe.
// The channel is closed by the unsubscribe function.
func (l *StatusLog) Subscribe(buffer int) (<-chan StatusEntry, func()) {
	_, ch, cancel := l.SubscribeWithBacklog(buffer)
	return ch, cancel
}

// SubscribeWithBacklog is Subscribe that also returns the retained entries.
// Every entry is in exactly one of backlog and the channel.
func (l *StatusLog) SubscribeWithBacklog(buffer int) ([]StatusEntry, <-chan StatusEntry, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan StatusEntry, buffer)

	l.mu.Lock()
	backlog := append([]StatusEntry(nil), l.entries...)
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return backlog, ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}
