// Package coordinator implements the Session Coordinator (C8) and, inside
// the same address space, the Activity Tracker (C11): it owns the set of
// discovered Projects and Sessions, drives full and incremental session
// loads on a single background parse worker, and sweeps tracked sessions for
// staleness so "ongoing" status reflects wall-clock write recency rather
// than just the last-parsed chunk content.
package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kylesnowschwartz/claude-pipeline/cache"
	"github.com/kylesnowschwartz/claude-pipeline/internal/sandbox"
	"github.com/kylesnowschwartz/claude-pipeline/parser"
	"github.com/kylesnowschwartz/claude-pipeline/watch"
)

// ActivityStaleness is how long a session may go without a write before it
// is swept back to idle.
const ActivityStaleness = 30 * time.Second

// SweepInterval is how often the activity sweep timer runs.
const SweepInterval = 5 * time.Second

// Project is a discovered top-level project directory.
type Project struct {
	ID           string // encoded directory name
	Path         string // decoded filesystem path
	DisplayName  string
	SessionCount int
}

// Event is the closed set of notifications the coordinator publishes.
type Event interface{ isEvent() }

// Loaded fires when a full session parse completes and becomes current.
type Loaded struct {
	SessionID string
	Chunks    []parser.Chunk
}

// Updated fires on a successful incremental re-parse; distinct from Loaded
// so a read model can diff instead of replacing wholesale.
type Updated struct {
	SessionID string
	Chunks    []parser.Chunk
}

// ActivityChanged fires once per ongoing/idle transition for a session.
type ActivityChanged struct {
	SessionID string
	Ongoing   bool
}

func (Loaded) isEvent()          {}
func (Updated) isEvent()         {}
func (ActivityChanged) isEvent() {}

// trackedSession is the coordinator's live bookkeeping for one session file.
type trackedSession struct {
	path        string
	projectID   string
	classified  []parser.ClassifiedMsg
	lastOffset  int64
	ongoing     bool
	lastWriteAt time.Time
}

// Coordinator owns project/session discovery and the active load.
type Coordinator struct {
	root        string
	extraRoots  []string
	followLatest bool

	cache *cache.Cache

	mu       sync.Mutex
	sessions map[string]*trackedSession // sessionID -> tracked state
	curProj  string
	curSess  string

	generation int64 // bumped on every SelectSession to discard stale loads

	jobs   chan parseJob
	events chan Event
	done   chan struct{}
	once   sync.Once

	watcher     *watch.Watcher
	watchedPath string
}

type parseJob struct {
	generation int64
	sessionID  string
	path       string
	full       bool
}

// New creates a Coordinator rooted at root (typically ~/.claude/projects).
func New(root string, metaCache *cache.Cache, extraRoots []string, followLatest bool) (*Coordinator, error) {
	w, err := watch.New()
	if err != nil {
		return nil, fmt.Errorf("coordinator: new watcher: %w", err)
	}

	c := &Coordinator{
		root:         root,
		extraRoots:   extraRoots,
		followLatest: followLatest,
		cache:        metaCache,
		sessions:     make(map[string]*trackedSession),
		jobs:         make(chan parseJob, 1),
		events:       make(chan Event, 16),
		done:         make(chan struct{}),
		watcher:      w,
	}

	go c.parseWorker()
	go c.watchLoop()
	go c.sweepLoop()

	if err := w.Add(root); err != nil {
		// Non-fatal: the root may not exist yet.
	}

	return c, nil
}

// Events returns the coordinator's event stream.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Close stops all background goroutines.
func (c *Coordinator) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.watcher.Close()
	})
	return err
}

// ScanProjects enumerates immediate subdirectories of root and decodes each
// into a Project summary.
func (c *Coordinator) ScanProjects() ([]Project, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("coordinator: scan projects: %w", err)
	}

	var projects []Project
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		id := de.Name()
		path := parser.DecodeProjectPath(id)

		count := 0
		if sub, err := os.ReadDir(filepath.Join(c.root, id)); err == nil {
			for _, f := range sub {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
					count++
				}
			}
		}

		projects = append(projects, Project{
			ID:           id,
			Path:         path,
			DisplayName:  parser.ExtractProjectDisplayName(id),
			SessionCount: count,
		})
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].DisplayName < projects[j].DisplayName })
	return projects, nil
}

// SelectProject loads or rebuilds a project's session summaries, preferring
// fresh cache rows over a re-scan.
func (c *Coordinator) SelectProject(projectID string) ([]parser.SessionInfo, error) {
	c.mu.Lock()
	c.curProj = projectID
	c.mu.Unlock()

	projectDir := filepath.Join(c.root, projectID)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("coordinator: select project %s: %w", projectID, err)
	}

	var sessions []parser.SessionInfo
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") || strings.HasPrefix(de.Name(), "agent_") {
			continue
		}
		path := filepath.Join(projectDir, de.Name())
		if err := sandbox.ValidateSessionPath(path, c.extraRoots...); err != nil {
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}
		sessionID := strings.TrimSuffix(de.Name(), ".jsonl")

		sessions = append(sessions, c.sessionInfoFromCacheOrScan(sessionID, projectID, path, info))
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ModTime.After(sessions[j].ModTime) })
	return sessions, nil
}

func (c *Coordinator) sessionInfoFromCacheOrScan(sessionID, projectID, path string, info os.FileInfo) parser.SessionInfo {
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	size := info.Size()

	if c.cache != nil {
		if stale, err := c.cache.IsStale(sessionID, size, mtime); err == nil && !stale {
			if rec, ok, err := c.cache.Get(sessionID); err == nil && ok {
				return sessionInfoFromRecord(rec, info.ModTime())
			}
		}
	}

	sess, err := parser.ReadSession(path)
	var result parser.SessionInfo
	result.Path = path
	result.SessionID = sessionID
	result.ModTime = info.ModTime()
	if err == nil {
		result = summarizeChunks(path, sessionID, info.ModTime(), sess)
	}

	if c.cache != nil {
		_ = c.cache.Put(cache.Record{
			SessionID:    sessionID,
			ProjectID:    projectID,
			FilePath:     path,
			FileSize:     size,
			Mtime:        mtime,
			FirstMessage: result.FirstMessage,
			MessageCount: result.TurnCount,
			IsOngoing:    result.IsOngoing,
			CreatedAt:    mtime,
			ModifiedAt:   mtime,
		})
	}

	return result
}

func sessionInfoFromRecord(r cache.Record, modTime time.Time) parser.SessionInfo {
	return parser.SessionInfo{
		Path:         r.FilePath,
		SessionID:    r.SessionID,
		ModTime:      modTime,
		FirstMessage: r.FirstMessage,
		TurnCount:    r.MessageCount,
		IsOngoing:    r.IsOngoing,
	}
}

func summarizeChunks(path, sessionID string, modTime time.Time, chunks []parser.Chunk) parser.SessionInfo {
	info := parser.SessionInfo{Path: path, SessionID: sessionID, ModTime: modTime}
	for _, ch := range chunks {
		if ch.Type == parser.UserChunk && info.FirstMessage == "" && ch.UserText != "" {
			info.FirstMessage = parser.Truncate(ch.UserText, 200)
		}
		if ch.Type == parser.UserChunk || ch.Type == parser.AIChunk {
			info.TurnCount++
		}
		if ch.Type == parser.AIChunk {
			info.TotalTokens += ch.Usage.TotalTokens()
			if info.Model == "" {
				info.Model = ch.Model
			}
		}
	}
	info.IsOngoing = parser.IsOngoing(chunks)
	return info
}

// SelectSession cancels any in-flight load, switches the watched file, and
// spawns a background full parse. The result is discarded if the current
// session changes again before the parse completes.
func (c *Coordinator) SelectSession(sessionID, path string) error {
	if err := sandbox.ValidateSessionPath(path, c.extraRoots...); err != nil {
		return err
	}

	c.mu.Lock()
	if c.watchedPath != "" {
		_ = c.watcher.Remove(c.watchedPath)
	}
	c.watchedPath = path
	c.curSess = sessionID
	gen := atomic.AddInt64(&c.generation, 1)
	c.mu.Unlock()

	if err := c.watcher.Add(path); err != nil {
		return fmt.Errorf("coordinator: watch session %s: %w", sessionID, err)
	}

	c.enqueue(parseJob{generation: gen, sessionID: sessionID, path: path, full: true})
	return nil
}

func (c *Coordinator) enqueue(job parseJob) {
	select {
	case c.jobs <- job:
	default:
		// A job is already pending; drain it and enqueue the latest
		// request so only the most recent selection survives.
		select {
		case <-c.jobs:
		default:
		}
		c.jobs <- job
	}
}

// parseWorker is the single task-at-a-time background parser: one job in
// flight at a time, buffered-1 queue, generation comparison discards stale
// results from a selection that has since moved on.
func (c *Coordinator) parseWorker() {
	for {
		select {
		case <-c.done:
			return
		case job := <-c.jobs:
			c.runParseJob(job)
		}
	}
}

func (c *Coordinator) runParseJob(job parseJob) {
	if job.full {
		msgs, offset, err := parser.ReadSessionIncremental(job.path, 0)
		if err != nil {
			return
		}
		chunks := parser.BuildChunks(msgs)
		subagents, _ := parser.DiscoverSubagents(job.path)
		parser.LinkSubagents(subagents, chunks, job.path)
		chunks = parser.AnalyzeContext(chunks)

		if atomic.LoadInt64(&c.generation) != job.generation {
			return // superseded by a newer selection
		}

		c.mu.Lock()
		c.sessions[job.sessionID] = &trackedSession{
			path:       job.path,
			projectID:  c.curProj,
			classified: msgs,
			lastOffset: offset,
		}
		c.mu.Unlock()

		c.publish(Loaded{SessionID: job.sessionID, Chunks: chunks})
		return
	}

	// Incremental: parse only new bytes from the tracked offset.
	c.mu.Lock()
	tracked, ok := c.sessions[job.sessionID]
	c.mu.Unlock()
	if !ok {
		// No cached message list -- fall back to a full reload.
		c.runParseJob(parseJob{generation: job.generation, sessionID: job.sessionID, path: job.path, full: true})
		return
	}

	newMsgs, newOffset, err := parser.ReadSessionIncremental(job.path, tracked.lastOffset)
	if err != nil {
		return
	}
	if len(newMsgs) == 0 && newOffset == tracked.lastOffset {
		return
	}

	c.mu.Lock()
	tracked.classified = append(tracked.classified, newMsgs...)
	tracked.lastOffset = newOffset
	merged := append([]parser.ClassifiedMsg(nil), tracked.classified...)
	c.mu.Unlock()

	chunks := parser.BuildChunks(merged)
	subagents, _ := parser.DiscoverSubagents(job.path)
	parser.LinkSubagents(subagents, chunks, job.path)
	chunks = parser.AnalyzeContext(chunks)

	if atomic.LoadInt64(&c.generation) != job.generation {
		return
	}

	c.publish(Updated{SessionID: job.sessionID, Chunks: chunks})
}

// watchLoop reacts to file-change events: triggers incremental parses and
// marks the written session as ongoing for the activity tracker.
func (c *Coordinator) watchLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			if ev.Kind != watch.FileChanged {
				continue
			}
			c.onSessionFileChanged(ev.Path)
		}
	}
}

func (c *Coordinator) onSessionFileChanged(path string) {
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")

	c.mu.Lock()
	tracked, ok := c.sessions[sessionID]
	wasOngoing := ok && tracked.ongoing
	if ok {
		tracked.ongoing = true
		tracked.lastWriteAt = time.Now()
	} else {
		c.sessions[sessionID] = &trackedSession{path: path, ongoing: true, lastWriteAt: time.Now()}
	}
	gen := atomic.LoadInt64(&c.generation)
	isCurrent := c.curSess == sessionID
	followLatest := c.followLatest
	c.mu.Unlock()

	if !wasOngoing {
		c.publish(ActivityChanged{SessionID: sessionID, Ongoing: true})
	}

	if followLatest && !isCurrent {
		_ = c.SelectSession(sessionID, path)
		return
	}

	if isCurrent {
		c.enqueue(parseJob{generation: gen, sessionID: sessionID, path: path, full: false})
	}
}

// sweepLoop flips sessions whose last write is older than ActivityStaleness
// back to idle, emitting one transition event per session.
func (c *Coordinator) sweepLoop() {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Coordinator) sweep() {
	now := time.Now()
	var transitioned []string

	c.mu.Lock()
	for id, s := range c.sessions {
		if s.ongoing && now.Sub(s.lastWriteAt) > ActivityStaleness {
			s.ongoing = false
			transitioned = append(transitioned, id)
		}
	}
	c.mu.Unlock()

	for _, id := range transitioned {
		c.publish(ActivityChanged{SessionID: id, Ongoing: false})
	}
}

func (c *Coordinator) publish(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
