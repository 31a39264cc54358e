package tui

import (
	"fmt"
	"strings"

	"github.com/kylesnowschwartz/claude-pipeline/parser"

	"charm.land/lipgloss/v2"
)

var (
	styleUserHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	styleAIHeader   = lipgloss.NewStyle().Bold(true)
	styleSystem     = lipgloss.NewStyle().Foreground(ColorTextDim).Italic(true)
	styleError      = lipgloss.NewStyle().Foreground(ColorError)
	styleDim        = lipgloss.NewStyle().Foreground(ColorTextDim)
	styleTool       = lipgloss.NewStyle().Foreground(ColorTextSecondary)
)

// renderSession joins every chunk's rendered form into the scrollback body,
// one blank line between chunks.
func renderSession(chunks []parser.Chunk, width int, md *mdRenderer, jh *jsonHL) string {
	blocks := make([]string, 0, len(chunks))
	for i := range chunks {
		blocks = append(blocks, renderChunk(chunks[i], width, md, jh))
	}
	return strings.Join(blocks, "\n\n")
}

// renderChunk renders a single chunk to a block of display lines.
func renderChunk(c parser.Chunk, width int, md *mdRenderer, jh *jsonHL) string {
	switch c.Type {
	case parser.UserChunk:
		return renderUserChunk(c, width, md)
	case parser.AIChunk:
		return renderAIChunk(c, width, md, jh)
	case parser.SystemChunk:
		return renderSystemChunk(c)
	case parser.CompactChunk:
		return styleSystem.Render(fmt.Sprintf("-- context compacted, %s tokens freed --", formatTokens(c.TokensFreed)))
	default:
		return ""
	}
}

func renderUserChunk(c parser.Chunk, width int, md *mdRenderer) string {
	header := styleUserHeader.Render(fmt.Sprintf("> %s", formatTime(c.Timestamp)))
	body := c.UserText
	if c.SlashName != "" {
		body = "/" + c.SlashName + " " + body
	}
	if len(c.FileMentions) > 0 {
		body += styleDim.Render(fmt.Sprintf(" (%d file mention(s))", len(c.FileMentions)))
	}
	return header + "\n" + md.renderMarkdown(body, width)
}

func renderAIChunk(c parser.Chunk, width int, md *mdRenderer, jh *jsonHL) string {
	meta := fmt.Sprintf("%s  %s", formatTime(c.Timestamp), shortModel(c.Model))
	if c.Usage.TotalTokens() > 0 {
		meta += styleDim.Render(fmt.Sprintf("  %s tok", formatTokens(c.Usage.TotalTokens())))
	}
	if c.DurationMs > 0 {
		meta += styleDim.Render(fmt.Sprintf("  %s", formatDuration(c.DurationMs)))
	}
	header := styleAIHeader.Foreground(modelColor(c.Model)).Render(meta)
	if c.Status == parser.StatusError {
		header += "  " + styleError.Render("error")
	} else if c.Status == parser.StatusInterrupted {
		header += "  " + styleDim.Render("interrupted")
	}

	var b strings.Builder
	b.WriteString(header)

	if c.ThinkingCount > 0 {
		b.WriteString("\n")
		b.WriteString(styleDim.Render(fmt.Sprintf("(%d thinking block(s))", c.ThinkingCount)))
	}

	if c.Text != "" {
		b.WriteString("\n")
		b.WriteString(md.renderMarkdown(c.Text, width))
	}

	teamColors := memberColors(c.SubagentProcesses)
	for i := range c.Items {
		switch c.Items[i].Type {
		case parser.ItemToolCall, parser.ItemSubagent, parser.ItemTeammateMessage:
			b.WriteString("\n")
			b.WriteString(renderItem(c.Items[i], width, jh, teamColors))
		}
	}

	return b.String()
}

// memberColors maps a team member name to its assigned color name, built
// from the processes the subagent resolver has linked onto this chunk.
func memberColors(procs []parser.SubagentProcess) map[string]string {
	m := make(map[string]string, len(procs))
	for i := range procs {
		if procs[i].AgentName != "" && procs[i].TeammateColor != "" {
			m[procs[i].AgentName] = procs[i].TeammateColor
		}
	}
	return m
}

func renderSystemChunk(c parser.Chunk) string {
	line := truncate(c.Output, 160)
	if c.IsError {
		return styleError.Render("! " + line)
	}
	return styleSystem.Render(line)
}

// renderItem renders one tool call, subagent spawn, or teammate message as a
// single indented line (plus an optional highlighted result body).
func renderItem(it parser.DisplayItem, width int, jh *jsonHL, teamColors map[string]string) string {
	switch it.Type {
	case parser.ItemSubagent:
		name := it.SubagentType
		if it.TeamMemberName != "" {
			name = it.TeamMemberName
		}
		line := fmt.Sprintf("  T %s: %s", name, truncate(it.SubagentDesc, width-20))
		if color, ok := teamColors[it.TeamMemberName]; ok {
			return lipgloss.NewStyle().Foreground(teamColor(color)).Render(line)
		}
		return styleTool.Render(line)

	case parser.ItemTeammateMessage:
		prefix := fmt.Sprintf("  @%s", it.TeammateID)
		return lipgloss.NewStyle().Foreground(teamColor(it.TeammateColor)).Render(prefix + ": " + truncate(it.Text, width-len(prefix)-2))

	default: // ItemToolCall
		glyph := styleTool.Render(fmt.Sprintf("  %s %s", toolCategoryGlyph(parser.CategorizeToolName(it.ToolName)), it.ToolName))
		summary := it.ToolSummary
		if summary == "" {
			summary = truncate(string(it.ToolInput), 80)
		}
		line := glyph + " " + summary
		if it.ToolError {
			line += "  " + styleError.Render("error")
		} else if it.DurationMs > 0 {
			line += styleDim.Render("  " + formatDuration(it.DurationMs))
		}

		var out strings.Builder
		out.WriteString(line)
		if it.ToolResult != "" {
			if hl, ok := jh.highlight(it.ToolResult); ok {
				out.WriteString("\n")
				out.WriteString(indent(hl, 4))
			} else {
				out.WriteString("\n")
				out.WriteString(indent(truncate(it.ToolResult, 4*width), 4))
			}
		}
		return out.String()
	}
}

// indent prefixes every line of s with n spaces.
func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}
