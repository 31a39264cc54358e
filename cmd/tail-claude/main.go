// Package tui is a thin scrolling viewer over the Session Coordinator's read
// model: it subscribes to Loaded/Updated/ActivityChanged events for one
// session and renders its chunks, instead of reimplementing discovery,
// parsing, or file-watching itself.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kylesnowschwartz/claude-pipeline/cache"
	"github.com/kylesnowschwartz/claude-pipeline/coordinator"
	"github.com/kylesnowschwartz/claude-pipeline/internal/config"
	"github.com/kylesnowschwartz/claude-pipeline/internal/logging"
	"github.com/kylesnowschwartz/claude-pipeline/parser"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/muesli/termenv"
)

var log = logging.For("tail")

// Options configures a tail run.
type Options struct {
	// SessionPath is the JSONL file to tail. Empty means auto-discover the
	// most recently modified session under the configured root.
	SessionPath string

	// Dump renders the session once to stdout and exits, with no live
	// tailing and no interactive keybindings.
	Dump bool
}

// Run starts the viewer and blocks until the user quits (or, in Dump mode,
// until the session has been rendered once).
func Run(opts Options) error {
	path := opts.SessionPath
	if path == "" {
		latest, err := parser.DiscoverLatestSession()
		if err != nil {
			return fmt.Errorf("discovering latest session: %w", err)
		}
		path = latest
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	metaCache, err := cache.Open(cfg.CacheDBPath)
	if err != nil {
		return fmt.Errorf("opening metadata cache: %w", err)
	}
	defer metaCache.Close()

	coord, err := coordinator.New(cfg.Root, metaCache, cfg.ExtraRoots, cfg.FollowLatest)
	if err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer coord.Close()

	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	if err := coord.SelectSession(sessionID, path); err != nil {
		return fmt.Errorf("selecting session %s: %w", sessionID, err)
	}
	log.Debug("tailing session", "sessionID", sessionID, "path", path)

	if opts.Dump {
		return runDump(coord)
	}

	m := newModel(coord)
	program := tea.NewProgram(m, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// runDump waits for the first full load and prints it once, for piping to a
// pager or another process instead of opening the interactive viewer.
func runDump(coord *coordinator.Coordinator) error {
	for ev := range coord.Events() {
		loaded, ok := ev.(coordinator.Loaded)
		if !ok {
			continue
		}
		md := &mdRenderer{}
		jh := newJSONHL(termenv.HasDarkBackground())
		fmt.Println(renderSession(loaded.Chunks, 100, md, jh))
		return nil
	}
	return fmt.Errorf("coordinator closed before the session loaded")
}

// model is the Bubble Tea v2 model: it owns no parsing or file-watching
// state of its own, only the last chunk list the coordinator published and
// a scroll position over its rendered form.
type model struct {
	coord *coordinator.Coordinator

	chunks  []parser.Chunk
	ongoing bool

	width, height int
	scroll        int

	md *mdRenderer
	jh *jsonHL

	rendered      string
	renderedAtW   int
	renderedDirty bool
}

func newModel(coord *coordinator.Coordinator) *model {
	return &model{
		coord: coord,
		md:    &mdRenderer{},
		jh:    newJSONHL(termenv.HasDarkBackground()),
	}
}

// coordEventMsg wraps a coordinator.Event for the Bubble Tea update loop.
type coordEventMsg struct{ event coordinator.Event }

func waitForCoordEvent(events <-chan coordinator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return coordEventMsg{event: ev}
	}
}

func (m *model) Init() tea.Cmd {
	return waitForCoordEvent(m.coord.Events())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderedDirty = true
		return m, nil

	case coordEventMsg:
		switch ev := msg.event.(type) {
		case coordinator.Loaded:
			m.chunks = ev.Chunks
			m.renderedDirty = true
			m.scroll = m.maxScroll()
		case coordinator.Updated:
			m.chunks = ev.Chunks
			m.renderedDirty = true
			m.scroll = m.maxScroll()
		case coordinator.ActivityChanged:
			m.ongoing = ev.Ongoing
		}
		return m, waitForCoordEvent(m.coord.Events())

	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.scrollBy(-1)
		case "down", "j":
			m.scrollBy(1)
		case "pgup":
			m.scrollBy(-m.height)
		case "pgdown", " ":
			m.scrollBy(m.height)
		case "g":
			m.scroll = 0
		case "G":
			m.scroll = m.maxScroll()
		}
		return m, nil
	}
	return m, nil
}

func (m *model) scrollBy(delta int) {
	m.scroll += delta
	if m.scroll < 0 {
		m.scroll = 0
	}
	if max := m.maxScroll(); m.scroll > max {
		m.scroll = max
	}
}

func (m *model) body() string {
	if m.renderedDirty || m.renderedAtW != m.width {
		m.rendered = renderSession(m.chunks, contentWidth(m.width), m.md, m.jh)
		m.renderedAtW = m.width
		m.renderedDirty = false
	}
	return m.rendered
}

func (m *model) maxScroll() int {
	lines := strings.Count(m.body(), "\n") + 1
	max := lines - bodyHeight(m.height)
	if max < 0 {
		return 0
	}
	return max
}

func contentWidth(w int) int {
	if w <= 4 {
		return 80
	}
	return w - 2
}

func bodyHeight(h int) int {
	if h <= 2 {
		return 1
	}
	return h - 1
}

func (m *model) View() string {
	lines := strings.Split(m.body(), "\n")
	height := bodyHeight(m.height)
	start := m.scroll
	if start > len(lines) {
		start = len(lines)
	}
	end := start + height
	if end > len(lines) {
		end = len(lines)
	}

	status := statusLine(m.ongoing, len(m.chunks), m.scroll, m.maxScroll())
	return strings.Join(lines[start:end], "\n") + "\n" + status
}

func statusLine(ongoing bool, chunkCount, scroll, maxScroll int) string {
	state := "idle"
	style := styleDim
	if ongoing {
		state = "ongoing"
		style = lipgloss.NewStyle().Foreground(ColorOngoing)
	}
	pos := "bottom"
	if scroll < maxScroll {
		pos = fmt.Sprintf("%d%%", scroll*100/max(maxScroll, 1))
	}
	return lipgloss.NewStyle().
		Background(ColorStatusBarBg).
		Foreground(ColorTextPrimary).
		Render(fmt.Sprintf(" %s | %d chunks | %s | q to quit ", style.Render(state), chunkCount, pos))
}

