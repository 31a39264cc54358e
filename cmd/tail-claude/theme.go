package tui

import "charm.land/lipgloss/v2"

// -- Colors ---------------------------------------------------------------
// All colors use AdaptiveColor for dark/light terminal support.
// Light values use ANSI base 16 (0-15) which adapt to the terminal's palette.
// Dark values use ANSI 256-color codes tuned for dark backgrounds.

// Text hierarchy
var (
	ColorTextPrimary   = lipgloss.AdaptiveColor{Light: "0", Dark: "252"}
	ColorTextSecondary = lipgloss.AdaptiveColor{Light: "8", Dark: "245"}
	ColorTextDim       = lipgloss.AdaptiveColor{Light: "8", Dark: "243"}
)

// Accents
var (
	ColorAccent  = lipgloss.AdaptiveColor{Light: "4", Dark: "75"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "2", Dark: "76"}
	ColorError   = lipgloss.AdaptiveColor{Light: "1", Dark: "196"}
	ColorOngoing = lipgloss.AdaptiveColor{Light: "2", Dark: "76"}
)

// Surfaces
var (
	ColorBorder      = lipgloss.AdaptiveColor{Light: "7", Dark: "60"}
	ColorStatusBarBg = lipgloss.AdaptiveColor{Light: "7", Dark: "236"}
)

// Model family badges
var (
	ColorModelOpus   = lipgloss.AdaptiveColor{Light: "5", Dark: "212"}
	ColorModelSonnet = lipgloss.AdaptiveColor{Light: "4", Dark: "75"}
	ColorModelHaiku  = lipgloss.AdaptiveColor{Light: "6", Dark: "80"}
)

// Team member colors, keyed by the color name Claude Code assigns a teammate
// (e.g. TeamCreate's member list). Unknown names fall back to ColorTextSecondary.
var teamColors = map[string]lipgloss.AdaptiveColor{
	"red":    {Light: "1", Dark: "203"},
	"orange": {Light: "3", Dark: "208"},
	"yellow": {Light: "3", Dark: "221"},
	"green":  {Light: "2", Dark: "76"},
	"cyan":   {Light: "6", Dark: "80"},
	"blue":   {Light: "4", Dark: "75"},
	"purple": {Light: "5", Dark: "141"},
	"pink":   {Light: "5", Dark: "212"},
}

// teamColor resolves a team member's assigned color name to a renderable
// color, falling back to the default secondary text color for unknown names.
func teamColor(name string) lipgloss.TerminalColor {
	if c, ok := teamColors[name]; ok {
		return c
	}
	return ColorTextSecondary
}
