package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/kylesnowschwartz/claude-pipeline/parser"

	"charm.land/lipgloss/v2"
)

// truncate collapses newlines and shortens s for single-line display.
func truncate(s string, maxLen int) string {
	return parser.Truncate(s, maxLen)
}

// shortModel turns "claude-opus-4-6" into "opus4.6".
func shortModel(m string) string {
	m = strings.TrimPrefix(m, "claude-")
	parts := strings.SplitN(m, "-", 2)
	if len(parts) == 2 {
		modelFamily := parts[0]
		// Keep major-minor only, drop patch/build metadata (e.g. "4-6-20250101" -> "4-6").
		vParts := strings.SplitN(parts[1], "-", 3)
		modelVersion := vParts[0]
		if len(vParts) >= 2 {
			modelVersion = vParts[0] + "-" + vParts[1]
		}
		return modelFamily + strings.ReplaceAll(modelVersion, "-", ".")
	}
	return m
}

// modelColor returns a color based on the Claude model family.
func modelColor(model string) lipgloss.TerminalColor {
	switch {
	case strings.Contains(model, "opus"):
		return ColorModelOpus
	case strings.Contains(model, "sonnet"):
		return ColorModelSonnet
	case strings.Contains(model, "haiku"):
		return ColorModelHaiku
	default:
		return ColorTextSecondary
	}
}

// formatTime renders a timestamp for a block's header.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("3:04:05 PM")
}

// formatTokens formats a token count for display: 1234 -> "1.2k", 123456 -> "123.5k", 1234567 -> "1.2M"
func formatTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// formatDuration formats milliseconds into human-readable duration: 71000 -> "1m 11s", 3500 -> "3.5s"
func formatDuration(ms int64) string {
	secs := float64(ms) / 1000
	switch {
	case secs >= 60:
		mins := int(secs) / 60
		rem := int(secs) % 60
		return fmt.Sprintf("%dm %ds", mins, rem)
	case secs >= 9.95: // would otherwise print as "10.0s"
		return fmt.Sprintf("%.0fs", secs)
	default:
		return fmt.Sprintf("%.1fs", secs)
	}
}

// toolCategoryGlyph returns a short marker for a tool call's taxonomy
// category, used as a one-character prefix on its summary line.
func toolCategoryGlyph(cat parser.ToolCategory) string {
	switch cat {
	case parser.CategoryRead:
		return "R"
	case parser.CategoryEdit:
		return "E"
	case parser.CategoryWrite:
		return "W"
	case parser.CategoryBash:
		return "$"
	case parser.CategoryGrep, parser.CategoryGlob:
		return "?"
	case parser.CategoryTask:
		return "T"
	case parser.CategoryWeb:
		return "@"
	default:
		return "*"
	}
}
