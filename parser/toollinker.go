package parser

import "sort"

// LinkedInvocation pairs a tool invocation with its result, if one was
// observed in the same record sequence.
type LinkedInvocation struct {
	ToolID     string
	ToolName   string
	ToolInput  []byte
	Start      int64 // Unix millis of the invocation record
	HasResult  bool
	Result     string
	IsError    bool
	End        int64 // Unix millis of the result record, zero if HasResult is false
}

// LinkResult is the outcome of linking a record sequence's tool invocations
// to their results: matched pairs plus the two orphan lists.
type LinkResult struct {
	Linked          []LinkedInvocation
	OrphanInvocations []LinkedInvocation // no matching result
	OrphanResults     []string          // tool_use_id values with no matching invocation
}

// LinkTools is the standalone Tool Linker: given a raw record sequence, it
// returns every invocation matched to its result plus the orphan lists, used
// outside chunk-building context by tests and audits. Ordering is by
// invocation start time ascending.
func LinkTools(entries []Entry) LinkResult {
	type pending struct {
		inv LinkedInvocation
	}
	byID := make(map[string]*pending)
	var order []string

	for _, e := range entries {
		ts := parseTimestamp(e.Timestamp).UnixMilli()
		blocks := extractBlocks(e.Message.Content, e.IsMeta)
		for _, b := range blocks {
			switch b.Type {
			case "tool_use":
				p := &pending{inv: LinkedInvocation{
					ToolID:    b.ToolID,
					ToolName:  b.ToolName,
					ToolInput: b.ToolInput,
					Start:     ts,
				}}
				byID[b.ToolID] = p
				order = append(order, b.ToolID)
			case "tool_result":
				if p, ok := byID[b.ToolID]; ok {
					p.inv.HasResult = true
					p.inv.Result = b.Content
					p.inv.IsError = b.IsError
					p.inv.End = ts
				} else {
					// No invocation seen yet for this id; record as an orphan result.
					byID["__orphan_result__"+b.ToolID] = &pending{inv: LinkedInvocation{ToolID: b.ToolID}}
				}
			}
		}
	}

	var result LinkResult
	for _, id := range order {
		p := byID[id]
		if p.inv.HasResult {
			result.Linked = append(result.Linked, p.inv)
		} else {
			result.OrphanInvocations = append(result.OrphanInvocations, p.inv)
		}
	}
	for key, p := range byID {
		if len(key) > len("__orphan_result__") && key[:len("__orphan_result__")] == "__orphan_result__" {
			result.OrphanResults = append(result.OrphanResults, p.inv.ToolID)
		}
	}

	sort.Slice(result.Linked, func(i, j int) bool { return result.Linked[i].Start < result.Linked[j].Start })
	sort.Slice(result.OrphanInvocations, func(i, j int) bool { return result.OrphanInvocations[i].Start < result.OrphanInvocations[j].Start })
	sort.Strings(result.OrphanResults)

	return result
}
