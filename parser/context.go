package parser

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ContextCategory is the closed set of context-injection categories.
type ContextCategory string

const (
	CategoryConfigDoc        ContextCategory = "config-doc"
	CategoryMentionedFile     ContextCategory = "mentioned-file"
	CategoryToolOutput        ContextCategory = "tool-output"
	CategoryThinkingText      ContextCategory = "thinking-text"
	CategoryTaskCoordination  ContextCategory = "task-coordination"
	CategoryUserMessage       ContextCategory = "user-message"
)

// ToolBreakdownEntry is one line of an injection's input/output breakdown.
type ToolBreakdownEntry struct {
	Label  string
	Tokens int
}

// ContextInjection is one unit of content contributing to the AI's context window.
type ContextInjection struct {
	ID              string
	Category        ContextCategory
	EstimatedTokens int
	Path            string
	DisplayName     string
	TurnIndex       int
	ToolBreakdown   []ToolBreakdownEntry
}

// ContextStats is the per-chunk snapshot the context analyzer attaches.
type ContextStats struct {
	NewInjections        []ContextInjection
	AccumulatedInjections []ContextInjection
	TokensByCategory     map[ContextCategory]int
	TotalEstimatedTokens int
	PhaseNumber          int
}

// claudeMDPatterns are file-path suffixes treated as config-doc injections.
var claudeMDPatterns = []string{
	"CLAUDE.md",
	".claude/settings.json",
	".claude/settings.local.json",
	".clauderc",
}

// taskToolNames are tool invocations that constitute task coordination
// rather than ordinary tool output.
var taskToolNames = map[string]bool{
	"Task": true, "TaskCreate": true, "TaskUpdate": true,
	"TaskList": true, "TaskGet": true, "TaskOutput": true, "Skill": true,
}

// EstimateTokens implements the spec's token-estimation rule:
// max(1, floor(len(text)/4)) for non-empty text, 0 for empty.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// AnalyzeContext is a pure fold over the chunk list (the Context Analyzer,
// C5). It returns a new slice with each chunk's ContextStats populated;
// input chunks are not mutated in place. Running it twice on the same
// chunks yields identical stats.
func AnalyzeContext(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)

	phase := 1
	var accumulated []ContextInjection
	byCategory := make(map[ContextCategory]int)

	for i := range out {
		c := &out[i]

		switch c.Type {
		case CompactChunk:
			preTotal := 0
			for _, inj := range accumulated {
				preTotal += inj.EstimatedTokens
			}
			summaryTokens := EstimateTokens(c.Output)
			tokensFreed := preTotal - summaryTokens
			if tokensFreed < 0 {
				tokensFreed = 0
			}
			c.TokensFreed = tokensFreed

			c.ContextStats = ContextStats{
				AccumulatedInjections: append([]ContextInjection(nil), accumulated...),
				TokensByCategory:      copyCategoryMap(byCategory),
				TotalEstimatedTokens:  preTotal,
				PhaseNumber:           phase,
			}

			// Reset for the new phase.
			phase++
			accumulated = nil
			byCategory = make(map[ContextCategory]int)
			continue

		case AIChunk:
			prevUser := findPrecedingUserChunk(out, i)
			newInj := analyzeAIChunk(c, prevUser, i)
			accumulateInjections(&accumulated, byCategory, newInj)
			c.ContextStats = snapshotStats(newInj, accumulated, byCategory, phase)

		case UserChunk:
			var newInj []ContextInjection
			if tokens := EstimateTokens(c.UserText); tokens > 0 {
				newInj = []ContextInjection{{
					ID:              newInjectionID(),
					Category:        CategoryUserMessage,
					EstimatedTokens: tokens,
					DisplayName:     "User message",
					TurnIndex:       i,
				}}
			}
			accumulateInjections(&accumulated, byCategory, newInj)
			c.ContextStats = snapshotStats(newInj, accumulated, byCategory, phase)

		case SystemChunk:
			c.ContextStats = snapshotStats(nil, accumulated, byCategory, phase)
		}
	}

	return out
}

func accumulateInjections(accumulated *[]ContextInjection, byCategory map[ContextCategory]int, newInj []ContextInjection) {
	*accumulated = append(*accumulated, newInj...)
	for _, inj := range newInj {
		byCategory[inj.Category] += inj.EstimatedTokens
	}
}

func snapshotStats(newInj, accumulated []ContextInjection, byCategory map[ContextCategory]int, phase int) ContextStats {
	total := 0
	for _, inj := range accumulated {
		total += inj.EstimatedTokens
	}
	return ContextStats{
		NewInjections:         newInj,
		AccumulatedInjections: append([]ContextInjection(nil), accumulated...),
		TokensByCategory:      copyCategoryMap(byCategory),
		TotalEstimatedTokens:  total,
		PhaseNumber:           phase,
	}
}

func copyCategoryMap(m map[ContextCategory]int) map[ContextCategory]int {
	out := make(map[ContextCategory]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func findPrecedingUserChunk(chunks []Chunk, idx int) *Chunk {
	for i := idx - 1; i >= 0; i-- {
		if chunks[i].Type == UserChunk {
			return &chunks[i]
		}
	}
	return nil
}

// analyzeAIChunk derives new context injections from one AI chunk's
// display items, in the order the rules are specified: config-doc,
// mentioned-file, tool-output, thinking-text, task-coordination.
func analyzeAIChunk(c *Chunk, prevUser *Chunk, turnIndex int) []ContextInjection {
	var out []ContextInjection
	out = append(out, detectConfigDoc(c, turnIndex)...)
	out = append(out, detectMentionedFiles(c, prevUser, turnIndex)...)
	out = append(out, detectToolOutput(c, turnIndex)...)
	out = append(out, detectThinkingText(c, turnIndex)...)
	out = append(out, detectTaskCoordination(c, turnIndex)...)
	return out
}

func isClaudeMDPath(path string) bool {
	if path == "" {
		return false
	}
	for _, pat := range claudeMDPatterns {
		if strings.HasSuffix(path, pat) {
			return true
		}
	}
	return false
}

func toolFilePath(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	if v, ok := fields["file_path"].(string); ok {
		return v
	}
	return ""
}

func detectConfigDoc(c *Chunk, turnIndex int) []ContextInjection {
	var out []ContextInjection
	for _, it := range c.Items {
		if it.Type == ItemToolCall && it.ToolName == "Read" {
			path := toolFilePath(it.ToolInput)
			if isClaudeMDPath(path) {
				out = append(out, ContextInjection{
					ID:              newInjectionID(),
					Category:        CategoryConfigDoc,
					EstimatedTokens: EstimateTokens(it.ToolResult),
					Path:            path,
					DisplayName:     pathDisplayName(path),
					TurnIndex:       turnIndex,
				})
			}
		}
		if it.Type == ItemOutput && strings.Contains(it.Text, "system-reminder") {
			out = append(out, ContextInjection{
				ID:              newInjectionID(),
				Category:        CategoryConfigDoc,
				EstimatedTokens: EstimateTokens(it.Text),
				DisplayName:     "System reminder",
				TurnIndex:       turnIndex,
			})
		}
	}
	return out
}

func detectMentionedFiles(c *Chunk, prevUser *Chunk, turnIndex int) []ContextInjection {
	if prevUser == nil || prevUser.UserText == "" {
		return nil
	}
	mentions := ExtractFileMentions(prevUser.UserText)
	if len(mentions) == 0 {
		return nil
	}
	var out []ContextInjection
	for _, fp := range mentions {
		tokens := findReadTokensForPath(c, fp)
		if tokens == 0 {
			tokens = EstimateTokens(fp)
		}
		out = append(out, ContextInjection{
			ID:              newInjectionID(),
			Category:        CategoryMentionedFile,
			EstimatedTokens: tokens,
			Path:            fp,
			DisplayName:     pathDisplayName(fp),
			TurnIndex:       turnIndex,
		})
	}
	return out
}

func findReadTokensForPath(c *Chunk, mentioned string) int {
	for _, it := range c.Items {
		if it.Type == ItemToolCall && it.ToolName == "Read" {
			callPath := toolFilePath(it.ToolInput)
			if strings.HasSuffix(callPath, mentioned) || strings.HasSuffix(mentioned, callPath) {
				return EstimateTokens(it.ToolResult)
			}
		}
	}
	return 0
}

func detectToolOutput(c *Chunk, turnIndex int) []ContextInjection {
	var out []ContextInjection
	for _, it := range c.Items {
		if it.Type != ItemToolCall {
			continue
		}
		if taskToolNames[it.ToolName] {
			continue
		}
		if it.ToolName == "Read" && isClaudeMDPath(toolFilePath(it.ToolInput)) {
			continue
		}
		inputTokens := EstimateTokens(string(it.ToolInput))
		resultTokens := EstimateTokens(it.ToolResult)
		out = append(out, ContextInjection{
			ID:              newInjectionID(),
			Category:        CategoryToolOutput,
			EstimatedTokens: inputTokens + resultTokens,
			DisplayName:     it.ToolName,
			TurnIndex:       turnIndex,
			ToolBreakdown: []ToolBreakdownEntry{
				{Label: "input", Tokens: inputTokens},
				{Label: "output", Tokens: resultTokens},
			},
		})
	}
	return out
}

func detectThinkingText(c *Chunk, turnIndex int) []ContextInjection {
	var out []ContextInjection
	for _, it := range c.Items {
		if it.Type != ItemThinking {
			continue
		}
		tokens := EstimateTokens(it.Text)
		if tokens == 0 {
			continue
		}
		out = append(out, ContextInjection{
			ID:              newInjectionID(),
			Category:        CategoryThinkingText,
			EstimatedTokens: tokens,
			DisplayName:     "Extended thinking",
			TurnIndex:       turnIndex,
		})
	}
	return out
}

func detectTaskCoordination(c *Chunk, turnIndex int) []ContextInjection {
	var out []ContextInjection
	for _, it := range c.Items {
		name := it.ToolName
		isTaskItem := it.Type == ItemSubagent || (it.Type == ItemToolCall && taskToolNames[name])
		if !isTaskItem {
			continue
		}
		if name == "" {
			name = "Task"
		}
		inputTokens := EstimateTokens(string(it.ToolInput))
		resultTokens := EstimateTokens(it.ToolResult)
		out = append(out, ContextInjection{
			ID:              newInjectionID(),
			Category:        CategoryTaskCoordination,
			EstimatedTokens: inputTokens + resultTokens,
			DisplayName:     name,
			TurnIndex:       turnIndex,
			ToolBreakdown: []ToolBreakdownEntry{
				{Label: "input", Tokens: inputTokens},
				{Label: "output", Tokens: resultTokens},
			},
		})
	}
	return out
}

func pathDisplayName(path string) string {
	if path == "" {
		return ""
	}
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.TrimRight(p, "/")
	parts := strings.Split(p, "/")
	return parts[len(parts)-1]
}

func newInjectionID() string {
	return "ctx-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
