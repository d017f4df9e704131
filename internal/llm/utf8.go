package llm

import (
	"strings"
	"unicode/utf8"
)

// utf8Assembler joins token pieces into text. Bytes that end in an unfinished
// multi-byte sequence stay buffered until the sequence completes.
type utf8Assembler struct {
	pending []byte
}

// Push adds raw bytes and returns whatever complete text is now available.
func (a *utf8Assembler) Push(piece []byte) string {
	a.pending = append(a.pending, piece...)
	cut := completePrefix(a.pending)
	if cut == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(a.pending[:cut]), "\uFFFD")
	a.pending = append(a.pending[:0], a.pending[cut:]...)
	return out
}

// Flush returns the buffered bytes, replacing any that never completed.
func (a *utf8Assembler) Flush() string {
	if len(a.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(a.pending), "\uFFFD")
	a.pending = a.pending[:0]
	return out
}

// Reset drops buffered bytes.
func (a *utf8Assembler) Reset() { a.pending = a.pending[:0] }

// completePrefix returns the length of p minus any trailing incomplete sequence.
func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		c := p[i]
		if c < utf8.RuneSelf {
			return len(p)
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}
