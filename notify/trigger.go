// Package notify implements the Notification Matcher (C10): user-defined
// pattern and token-threshold triggers evaluated against newly appended
// session records, with a first-sight policy so a trigger never fires
// retroactively against content that existed before it started watching a
// file. Desktop notification delivery itself is not part of this package;
// callers act on the entries CheckFile returns.
package notify

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kylesnowschwartz/claude-pipeline/parser"
)

// MaxPatternLength caps a trigger pattern's length, matching the validation
// rule from the original implementation's regex safety pass.
const MaxPatternLength = 100

// MaxHistory is the number of fired entries retained.
const MaxHistory = 200

var nestedQuantifierRe = regexp.MustCompile(`[+*?]\??[+*?]|(?:\{[^}]+\})[+*?]`)

// Trigger is one user-defined or built-in notification rule.
type Trigger struct {
	ID             string
	Name           string
	Enabled        bool
	Pattern        string   // empty disables pattern matching for this trigger
	MatchFields    []string // role values this trigger applies to; empty means all
	Color          string
	TokenThreshold int // fires when an assistant message's output tokens >= this; 0 disables
	MatchErrors    bool

	compiled *regexp.Regexp
}

// DefaultTriggers returns the three built-in triggers the teacher's
// notification manager seeds on first run.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{ID: "builtin-env-access", Name: ".env File Access", Enabled: true,
			Pattern: `\.env`, MatchFields: []string{"user", "assistant"}, Color: "#ef4444"},
		{ID: "builtin-tool-error", Name: "Tool Result Error", Enabled: true,
			Pattern: `(?i)error|exception|traceback`, MatchFields: []string{"assistant"},
			Color: "#f59e0b", MatchErrors: true},
		{ID: "builtin-high-tokens", Name: "High Token Usage (8000)", Enabled: true,
			Color: "#8b5cf6", TokenThreshold: 8000},
	}
}

// ValidateRegex reports whether pattern is safe and compilable: non-empty,
// under MaxPatternLength, balanced brackets/parens, and free of nested
// quantifiers. Go's regexp package compiles to RE2, which already guarantees
// linear-time matching with no catastrophic-backtracking risk, so this is a
// pattern-quality gate rather than a timeout-based safety net.
func ValidateRegex(pattern string) (bool, string) {
	if pattern == "" {
		return false, "pattern is empty"
	}
	if len(pattern) > MaxPatternLength {
		return false, "pattern exceeds maximum length"
	}
	if !bracketsBalanced(pattern) {
		return false, "unbalanced brackets or parentheses"
	}
	if nestedQuantifierRe.MatchString(pattern) {
		return false, "nested quantifiers detected"
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return false, "invalid regex: " + err.Error()
	}
	return true, ""
}

func bracketsBalanced(pattern string) bool {
	var stack []byte
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++ // skip escaped char
		case '(', '[':
			stack = append(stack, pattern[i])
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// Entry is one fired notification, recorded in history.
type Entry struct {
	ID           string
	TriggerID    string
	TriggerName  string
	TriggerColor string
	MatchedText  string
	FilePath     string
	Timestamp    time.Time
}

// Matcher evaluates triggers against newly appended records per file, using
// a first-sight policy: the first time a file is seen, its current size is
// recorded as the starting offset and nothing fires for pre-existing content.
type Matcher struct {
	mu       sync.Mutex
	triggers []Trigger
	offsets  map[string]int64
	history  []Entry
}

// NewMatcher creates a Matcher seeded with the given triggers (use
// DefaultTriggers() for the built-in set).
func NewMatcher(triggers []Trigger) *Matcher {
	compiled := make([]Trigger, len(triggers))
	for i, t := range triggers {
		if t.Pattern != "" {
			if re, err := regexp.Compile(t.Pattern); err == nil {
				t.compiled = re
			}
		}
		compiled[i] = t
	}
	return &Matcher{
		triggers: compiled,
		offsets:  make(map[string]int64),
	}
}

// AddTrigger appends a new user-defined trigger.
func (m *Matcher) AddTrigger(name, pattern, color string) Trigger {
	t := Trigger{
		ID:          uuid.NewString(),
		Name:        name,
		Enabled:     true,
		Pattern:     pattern,
		MatchFields: []string{"user", "assistant"},
		Color:       color,
	}
	if pattern != "" {
		if re, err := regexp.Compile(pattern); err == nil {
			t.compiled = re
		}
	}

	m.mu.Lock()
	m.triggers = append(m.triggers, t)
	m.mu.Unlock()
	return t
}

// RemoveTrigger deletes a trigger by id.
func (m *Matcher) RemoveTrigger(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.triggers[:0]
	for _, t := range m.triggers {
		if t.ID != id {
			out = append(out, t)
		}
	}
	m.triggers = out
}

// SetTriggerEnabled toggles a trigger's enabled state.
func (m *Matcher) SetTriggerEnabled(id string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.triggers {
		if m.triggers[i].ID == id {
			m.triggers[i].Enabled = enabled
			return
		}
	}
}

// Triggers returns a snapshot of the current trigger list.
func (m *Matcher) Triggers() []Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Trigger(nil), m.triggers...)
}

// History returns fired entries, newest first.
func (m *Matcher) History() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.history))
	for i, e := range m.history {
		out[len(m.history)-1-i] = e
	}
	return out
}

// ClearHistory discards all recorded entries.
func (m *Matcher) ClearHistory() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
}

// CheckFile evaluates newly classified messages appended to filePath since
// the last check, applying the first-sight policy: the very first call for
// a path records currentSize as the starting point and fires nothing.
func (m *Matcher) CheckFile(filePath string, currentSize int64, newMsgs []parser.ClassifiedMsg) []Entry {
	m.mu.Lock()
	_, seen := m.offsets[filePath]
	if !seen {
		m.offsets[filePath] = currentSize
		m.mu.Unlock()
		return nil
	}
	m.offsets[filePath] = currentSize
	m.mu.Unlock()

	var fired []Entry
	for _, msg := range newMsgs {
		fired = append(fired, m.checkMessage(msg, filePath)...)
	}
	return fired
}

func (m *Matcher) checkMessage(msg parser.ClassifiedMsg, filePath string) []Entry {
	role, text, outputTokens := matchableFields(msg)

	m.mu.Lock()
	triggers := append([]Trigger(nil), m.triggers...)
	m.mu.Unlock()

	var fired []Entry
	for _, t := range triggers {
		if !t.Enabled {
			continue
		}

		if t.TokenThreshold > 0 && outputTokens >= t.TokenThreshold {
			fired = append(fired, m.fire(t, "Output tokens: "+strconv.Itoa(outputTokens), filePath))
			continue
		}

		if t.Pattern == "" || t.compiled == nil {
			continue
		}
		if len(t.MatchFields) > 0 && !contains(t.MatchFields, role) {
			continue
		}
		if text == "" {
			continue
		}
		if matched := t.compiled.FindString(text); matched != "" {
			fired = append(fired, m.fire(t, matched, filePath))
		}
	}
	return fired
}

func (m *Matcher) fire(t Trigger, matchedText, filePath string) Entry {
	e := Entry{
		ID:           uuid.NewString(),
		TriggerID:    t.ID,
		TriggerName:  t.Name,
		TriggerColor: t.Color,
		MatchedText:  parser.Truncate(matchedText, 100),
		FilePath:     filePath,
	}
	m.mu.Lock()
	m.history = append(m.history, e)
	if len(m.history) > MaxHistory {
		m.history = m.history[len(m.history)-MaxHistory:]
	}
	m.mu.Unlock()
	return e
}

func matchableFields(msg parser.ClassifiedMsg) (role, text string, outputTokens int) {
	switch v := msg.(type) {
	case parser.UserMsg:
		return "user", v.Text, 0
	case parser.AIMsg:
		if v.IsMeta {
			return "assistant", "", 0
		}
		return "assistant", v.Text, v.Usage.OutputTokens
	case parser.SystemMsg:
		return "system", v.Output, 0
	default:
		return "", "", 0
	}
}

func contains(fields []string, role string) bool {
	for _, f := range fields {
		if f == role {
			return true
		}
	}
	return false
}

