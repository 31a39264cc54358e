// Package search implements the Search Engine (C9): literal, case-insensitive
// substring search across project display names and session content, with a
// fixed context window around each match.
package search

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kylesnowschwartz/claude-pipeline/parser"
)

// ContextWindow is the number of characters kept on either side of a match.
const ContextWindow = 50

// ProjectResult is a project display-name match.
type ProjectResult struct {
	ProjectID   string
	DisplayName string
}

// Result is one match inside a session's content.
type Result struct {
	ProjectID    string
	SessionID    string
	SessionTitle string
	MessageType  string // "user" or "assistant"
	MessageIndex int
	Timestamp    string
	Context      string // the matched text plus ContextWindow chars of surrounding context
}

// Engine searches a root directory of encoded project subdirectories.
type Engine struct {
	root string
}

// New creates an Engine rooted at the Claude projects directory.
func New(root string) *Engine {
	return &Engine{root: root}
}

// SearchProjectNames does a case-insensitive substring search over decoded
// project display names.
func (e *Engine) SearchProjectNames(query string) ([]ProjectResult, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, err
	}

	lowerQuery := strings.ToLower(query)
	var out []ProjectResult
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		name := parser.ExtractProjectDisplayName(de.Name())
		if strings.Contains(strings.ToLower(name), lowerQuery) {
			out = append(out, ProjectResult{ProjectID: de.Name(), DisplayName: name})
		}
	}
	return out, nil
}

// Search dispatches to a project-name search (no projectID given) or a
// session-content search scoped to one project.
func (e *Engine) Search(query, projectID string) ([]Result, error) {
	if projectID == "" {
		names, err := e.SearchProjectNames(query)
		if err != nil {
			return nil, err
		}
		out := make([]Result, 0, len(names))
		for _, n := range names {
			out = append(out, Result{ProjectID: n.ProjectID, SessionTitle: n.DisplayName})
		}
		return out, nil
	}
	return e.searchProjectSessions(query, projectID)
}

// searchProjectSessions streams every session file in a project, newest
// first, looking for a literal case-insensitive substring match in real
// user/assistant message text.
func (e *Engine) searchProjectSessions(query, projectID string) ([]Result, error) {
	projectDir := filepath.Join(e.root, projectID)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		path string
		mod  int64
	}
	var files []candidate
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") || strings.HasPrefix(de.Name(), "agent_") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, candidate{path: filepath.Join(projectDir, de.Name()), mod: info.ModTime().UnixNano()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod > files[j].mod })

	lowerQuery := strings.ToLower(query)
	var out []Result
	for _, f := range files {
		sessionID := strings.TrimSuffix(filepath.Base(f.path), ".jsonl")
		out = append(out, searchOneSession(f.path, sessionID, projectID, lowerQuery)...)
	}
	return out, nil
}

func searchOneSession(path, sessionID, projectID, lowerQuery string) []Result {
	msgs, _, err := parser.ReadSessionIncremental(path, 0)
	if err != nil {
		return nil
	}

	var title string
	var out []Result
	for i, msg := range msgs {
		role, text, ts, ok := searchableText(msg)
		if !ok {
			continue
		}
		if title == "" && role == "user" {
			title = parser.Truncate(text, 80)
		}

		lowerText := strings.ToLower(text)
		idx := strings.Index(lowerText, lowerQuery)
		if idx < 0 {
			continue
		}
		out = append(out, Result{
			ProjectID:    projectID,
			SessionID:    sessionID,
			SessionTitle: title,
			MessageType:  role,
			MessageIndex: i,
			Timestamp:    ts,
			Context:      contextWindow(text, idx, len(lowerQuery)),
		})
	}
	return out
}

// searchableText extracts (role, text, timestamp, ok) from a classified
// message, requiring role in (user, assistant) and excluding internal /
// meta messages — matches the original's _extract_searchable_text rule.
func searchableText(msg parser.ClassifiedMsg) (role, text, timestamp string, ok bool) {
	switch m := msg.(type) {
	case parser.UserMsg:
		return "user", m.Text, m.Timestamp.Format(timeLayout), true
	case parser.AIMsg:
		if m.IsMeta {
			return "", "", "", false
		}
		return "assistant", m.Text, m.Timestamp.Format(timeLayout), true
	default:
		return "", "", "", false
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// contextWindow returns up to ContextWindow characters on either side of the
// match at [idx, idx+matchLen) within text.
func contextWindow(text string, idx, matchLen int) string {
	start := idx - ContextWindow
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + ContextWindow
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
