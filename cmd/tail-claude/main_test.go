package tui

import (
	"strings"
	"testing"

	"github.com/kylesnowschwartz/claude-pipeline/parser"
)

func TestContentWidth(t *testing.T) {
	if got := contentWidth(0); got != 80 {
		t.Errorf("contentWidth(0) = %d, want 80", got)
	}
	if got := contentWidth(100); got != 98 {
		t.Errorf("contentWidth(100) = %d, want 98", got)
	}
}

func TestBodyHeight(t *testing.T) {
	if got := bodyHeight(1); got != 1 {
		t.Errorf("bodyHeight(1) = %d, want 1", got)
	}
	if got := bodyHeight(24); got != 23 {
		t.Errorf("bodyHeight(24) = %d, want 23", got)
	}
}

func newTestModel() *model {
	m := &model{
		md: &mdRenderer{},
		jh: newJSONHL(false),
	}
	m.width, m.height = 100, 10
	m.chunks = []parser.Chunk{
		{Type: parser.UserChunk, UserText: "line one"},
		{Type: parser.SystemChunk, Output: "line two"},
		{Type: parser.SystemChunk, Output: "line three"},
	}
	m.renderedDirty = true
	return m
}

func TestModelScrollClampsToBounds(t *testing.T) {
	m := newTestModel()
	m.scrollBy(-5)
	if m.scroll != 0 {
		t.Errorf("scroll went negative: %d", m.scroll)
	}
	m.scrollBy(1000)
	if m.scroll != m.maxScroll() {
		t.Errorf("scroll = %d, want clamped max %d", m.scroll, m.maxScroll())
	}
}

func TestModelViewContainsRenderedChunks(t *testing.T) {
	m := newTestModel()
	out := m.View()
	if !strings.Contains(out, "line one") {
		t.Errorf("View() missing user chunk text: %q", out)
	}
}

func TestStatusLineShowsOngoing(t *testing.T) {
	got := statusLine(true, 3, 0, 0)
	if !strings.Contains(got, "ongoing") {
		t.Errorf("statusLine missing ongoing marker: %q", got)
	}
	if !strings.Contains(got, "3 chunks") {
		t.Errorf("statusLine missing chunk count: %q", got)
	}
}

func TestStatusLineShowsIdle(t *testing.T) {
	got := statusLine(false, 0, 0, 0)
	if !strings.Contains(got, "idle") {
		t.Errorf("statusLine missing idle marker: %q", got)
	}
}
