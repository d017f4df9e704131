// Package progress is the append-only status log shown to whoever watches a
// benchmark run: the console, the HTTP API and the results browser.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/mwiater/edgebench/internal/logging"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of entries kept in memory.
const DefaultCapacity = 2000

// Level classifies an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one line of the log. Seq increases by one per entry.
type Entry struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Log keeps the most recent entries and fans every new one out to subscribers.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
	seq      int
	subs     map[int]func(Entry)
	nextSub  int
	zl       zerolog.Logger
}

// New returns an empty log keeping up to capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		subs:     make(map[int]func(Entry)),
		zl:       logging.Component("progress"),
	}
}

// Infof appends an info line.
func (l *Log) Infof(format string, args ...any) { l.add(LevelInfo, fmt.Sprintf(format, args...)) }

// Warnf appends a warning line.
func (l *Log) Warnf(format string, args ...any) { l.add(LevelWarn, fmt.Sprintf(format, args...)) }

// Errorf appends an error line.
func (l *Log) Errorf(format string, args ...any) { l.add(LevelError, fmt.Sprintf(format, args...)) }

func (l *Log) add(level Level, msg string) {
	l.mu.Lock()
	l.seq++
	e := Entry{Seq: l.seq, Time: time.Now(), Level: level, Message: msg}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
	subs := make([]func(Entry), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	switch level {
	case LevelWarn:
		l.zl.Warn().Int("seq", e.Seq).Msg(msg)
	case LevelError:
		l.zl.Error().Int("seq", e.Seq).Msg(msg)
	default:
		l.zl.Debug().Int("seq", e.Seq).Msg(msg)
	}
	for _, fn := range subs {
		fn(e)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	return l.Since(0)
}

// Since returns the retained entries with Seq greater than seq.
func (l *Log) Since(seq int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers fn for every future entry and returns a function that
// removes it. fn runs on the appending goroutine.
func (l *Log) Subscribe(fn func(Entry)) (cancel func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}
