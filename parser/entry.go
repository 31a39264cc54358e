package parser

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// RecordKind is the closed set of record kinds the wire format carries.
// Unknown or missing kinds default to "system" per the defensive-default rule.
type RecordKind string

const (
	KindUser           RecordKind = "user"
	KindAssistant      RecordKind = "assistant"
	KindSystem         RecordKind = "system"
	KindSummary        RecordKind = "summary"
	KindFileHistory    RecordKind = "file-history-snapshot"
	KindQueueOperation RecordKind = "queue-operation"
	KindOther          RecordKind = "other"
)

// Entry represents a raw JSONL line from a Claude Code session file.
// Fields map directly to the on-disk format at ~/.claude/projects/{project}/{session}.jsonl.
type Entry struct {
	Type             string  `json:"type"`
	UUID             string  `json:"uuid"`
	ParentUUID       *string `json:"parentUuid"`
	Timestamp        string  `json:"timestamp"`
	Cwd              string  `json:"cwd"`
	IsSidechain      bool    `json:"isSidechain"`
	IsMeta           bool    `json:"isMeta"`
	IsCompactSummary bool    `json:"isCompactSummary"`
	AgentID          string  `json:"agentId"`
	PermissionMode   string  `json:"permissionMode"`
	ToolUseResult    map[string]json.RawMessage `json:"toolUseResult"`
	// SourceToolUseID is derived from ToolUseResult["tool_use_id"] in
	// ParseEntry, not unmarshaled directly — the subagent linker's primary
	// agentId -> tool_use_id path (scanAgentLinks).
	SourceToolUseID string `json:"-"`
	Message         struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		Model      string          `json:"model"`
		StopReason *string         `json:"stop_reason"`
		Usage      struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		} `json:"usage"`
		// Content blocks when content is an array (assistant messages).
		// The raw Content field covers both string and array forms; block-level
		// extraction happens in extractBlocks (classify.go).
		ID string `json:"id"`
	} `json:"message"`
}

// ParseEntry parses a single JSONL line into an Entry.
// Returns false if the JSON is invalid or the entry has no UUID (the id ≠ ""
// invariant — records with an empty id are dropped at this boundary).
// ParseEntry parses a single JSONL line into an Entry. It probes cheap
// top-level fields with gjson first so malformed JSON and id-less records
// are rejected without paying for a full struct unmarshal of potentially
// large content blocks — the same two-pass shape the pack's agentsview
// parser uses.
func ParseEntry(line []byte) (Entry, bool) {
	if !gjson.ValidBytes(line) {
		return Entry{}, false
	}
	if gjson.GetBytes(line, "uuid").Str == "" {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, false
	}
	if e.UUID == "" {
		return Entry{}, false
	}
	if raw, ok := e.ToolUseResult["tool_use_id"]; ok {
		json.Unmarshal(raw, &e.SourceToolUseID)
	}
	return e, true
}

// Kind normalizes the raw wire "type" into the closed RecordKind set,
// defaulting an unrecognized or missing value to KindSystem.
func (e Entry) Kind() RecordKind {
	switch e.Type {
	case string(KindUser), string(KindAssistant), string(KindSystem),
		string(KindSummary), string(KindFileHistory), string(KindQueueOperation):
		return RecordKind(e.Type)
	default:
		return KindSystem
	}
}
