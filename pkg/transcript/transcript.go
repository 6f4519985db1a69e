// ABOUTME: Conversation transcript kept in sync with channel text fields
// ABOUTME: Streams deltas into open entries and finalizes them at turn end
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who spoke
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Entry is one utterance
type Entry struct {
	ID      string
	Role    Role
	Text    string
	Final   bool
	Started time.Time
}

// Log is an ordered transcript. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	now     func() time.Time
}

// New creates a log that keeps at most max entries (0 keeps all)
func New(max int) *Log {
	return &Log{max: max, now: time.Now}
}

// AppendUser adds a fragment of user speech
func (l *Log) AppendUser(text string) {
	l.append(RoleUser, text)
}

// AppendAgent adds a fragment of agent text
func (l *Log) AppendAgent(text string) {
	l.append(RoleAgent, text)
}

// AddUserText records a complete typed user message
func (l *Log) AddUserText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalizeLocked()
	l.push(Entry{ID: uuid.NewString(), Role: RoleUser, Text: text, Final: true, Started: l.now()})
}

func (l *Log) append(role Role, text string) {
	if text == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if open := l.openLocked(role); open != nil {
		open.Text += text
		return
	}
	l.push(Entry{ID: uuid.NewString(), Role: role, Text: text, Started: l.now()})
}

// openLocked returns role's open entry. Each role has at most one, so user
// and agent fragments can interleave without splitting either utterance.
func (l *Log) openLocked(role Role) *Entry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Role == role && !e.Final {
			return e
		}
	}
	return nil
}

func (l *Log) push(e Entry) {
	l.entries = append(l.entries, e)
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.max:]...)
	}
}

// Finalize closes any open entries; called when the agent's turn completes
func (l *Log) Finalize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalizeLocked()
}

func (l *Log) finalizeLocked() {
	for i := range l.entries {
		if !l.entries[i].Final {
			l.entries[i].Final = true
			l.entries[i].Text = strings.TrimSpace(l.entries[i].Text)
		}
	}
}

// Entries returns a copy of the transcript
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Tail returns a copy of the last n entries
func (l *Log) Tail(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]Entry(nil), l.entries[len(l.entries)-n:]...)
}

// Clear drops all entries
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
