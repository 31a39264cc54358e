package parser

import (
	"regexp"
	"strings"
)

// compositeSuffixRe matches the "::<8 hex chars>" suffix Claude appends to
// some composite project directory names.
var compositeSuffixRe = regexp.MustCompile(`^(.+?)::[0-9a-fA-F]{8}$`)

// EncodeProjectPath converts a filesystem path to the directory name Claude
// uses under ~/.claude/projects/, replacing every path separator with a
// hyphen: /home/wiz/AI/LLM -> -home-wiz-AI-LLM.
func EncodeProjectPath(path string) string {
	if path == "" {
		return ""
	}
	encoded := strings.ReplaceAll(path, "/", "-")
	encoded = strings.ReplaceAll(encoded, "\\", "-")
	return encoded
}

// DecodeProjectPath reverses EncodeProjectPath, first stripping any
// composite-id suffix: -home-wiz-AI-LLM -> /home/wiz/AI/LLM.
func DecodeProjectPath(encoded string) string {
	if encoded == "" {
		return ""
	}
	encoded = StripCompositeSuffix(encoded)
	return strings.ReplaceAll(encoded, "-", "/")
}

// StripCompositeSuffix removes a trailing "::<8 hex chars>" composite-id
// suffix, if present: -home-wiz-project::a1b2c3d4 -> -home-wiz-project.
func StripCompositeSuffix(projectID string) string {
	if m := compositeSuffixRe.FindStringSubmatch(projectID); m != nil {
		return m[1]
	}
	return projectID
}

// ExtractProjectDisplayName returns the last path segment of a decoded
// project id, for use as a display name: -home-wiz-AI-LLM -> LLM.
func ExtractProjectDisplayName(projectID string) string {
	path := DecodeProjectPath(projectID)
	if path == "" {
		return ""
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
