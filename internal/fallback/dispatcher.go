// Package fallback turns invocation results into the single reply string a user
// sees, and applies the input guardrails that run before an invocation.
package fallback

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/local/linerelay/internal/dispatcher"
)

// ErrEmptyInput means the user sent nothing but whitespace.
var ErrEmptyInput = errors.New("empty input")

// TruncationMarker is appended to input cut down to the maximum length.
const TruncationMarker = "\n…(message truncated)"

const DefaultMaxInputLength = 800

type Dispatcher struct {
	table  Table
	maxLen int
}

// New returns a Dispatcher. maxInputLength is counted in characters; values <= 0
// use DefaultMaxInputLength.
func New(table Table, maxInputLength int) *Dispatcher {
	if maxInputLength <= 0 {
		maxInputLength = DefaultMaxInputLength
	}
	return &Dispatcher{table: table, maxLen: maxInputLength}
}

func (d *Dispatcher) MaxInputLength() int { return d.maxLen }

// PrepareInput trims raw and truncates it to the maximum length, appending
// TruncationMarker when it cuts.
func (d *Dispatcher) PrepareInput(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyInput
	}
	if utf8.RuneCountInString(text) <= d.maxLen {
		return text, nil
	}
	runes := []rune(text)
	return string(runes[:d.maxLen]) + TruncationMarker, nil
}

// Resolve returns the reply text for r. It is pure and total.
func (d *Dispatcher) Resolve(r dispatcher.Result) string {
	if r.OK() {
		return r.Text
	}
	return d.table.Lookup(r.Failure.Kind)
}
