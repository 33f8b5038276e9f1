// Package messagelog keeps the ordered, duplicate-free record of chat messages
// for one session.
package messagelog

import "sync"

// Origin tells where the first occurrence of a message came from.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginLocal
	OriginRemote
)

// String returns the string representation of Origin
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "LOCAL"
	case OriginRemote:
		return "REMOTE"
	default:
		return "UNKNOWN"
	}
}

// Entry is one message in the log.
type Entry struct {
	Content string
	Origin  Origin
}

// Log is an append-only ordered set of message contents.
// Two messages are the same entry when their contents are equal.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]struct{}
}

// New creates an empty Log.
func New() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// AppendIfAbsent appends content unless an equal content is already present.
// It reports whether the log changed.
func (l *Log) AppendIfAbsent(content string) bool {
	return l.append(content, OriginUnknown)
}

// AppendLocal is AppendIfAbsent for a message submitted by this client.
func (l *Log) AppendLocal(content string) bool {
	return l.append(content, OriginLocal)
}

// AppendRemote is AppendIfAbsent for a message received from the peer.
func (l *Log) AppendRemote(content string) bool {
	return l.append(content, OriginRemote)
}

func (l *Log) append(content string, origin Origin) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[content]; ok {
		return false
	}
	l.seen[content] = struct{}{}
	l.entries = append(l.entries, Entry{Content: content, Origin: origin})
	return true
}

// Snapshot returns the contents in order of first occurrence.
// The returned slice is a copy.
func (l *Log) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Content
	}
	return out
}

// Entries returns a copy of the entries with their origins.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log. Used at session teardown.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.seen = make(map[string]struct{})
}
