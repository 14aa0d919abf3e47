package callbacks

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/mcp-ollama/tools"
)

// TimeNowFn is the clock used by Stats
var TimeNowFn = time.Now

// ToolStats is the summary of calls of one tool.
type ToolStats struct {
	Tool      string
	Calls     uint32
	Succeeded uint32
	Failed    uint32
	// Running is the number of calls not completed yet.
	Running uint32
	// Duration is the total time of completed calls.
	Duration time.Duration
}

// Stats is a callback handler that accumulates per tool counters
// for the lifetime of the server.
type Stats struct {
	started time.Time
	tools   map[string]*toolRun
	lock    sync.Mutex
}

type toolRun struct {
	stats ToolStats
	// start times of the running calls, by call ID
	pending map[string]time.Time
}

func NewStats() *Stats {
	return &Stats{
		started: TimeNowFn(),
		tools:   make(map[string]*toolRun),
	}
}

func (l *Stats) get(name string) *toolRun {
	r := l.tools[name]
	if r == nil {
		r = &toolRun{
			stats:   ToolStats{Tool: name},
			pending: make(map[string]time.Time),
		}
		l.tools[name] = r
	}
	return r
}

func (l *Stats) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	r := l.get(tool.Name())
	r.stats.Calls++
	r.stats.Running++
	r.pending[tools.CallID(ctx)] = TimeNowFn()
}

func (l *Stats) OnToolEnd(ctx context.Context, tool tools.ITool, input, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	r := l.get(tool.Name())
	r.stats.Succeeded++
	r.done(tools.CallID(ctx))
}

func (l *Stats) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	r := l.get(tool.Name())
	r.stats.Failed++
	r.done(tools.CallID(ctx))
}

// done accounts the running call as completed
func (r *toolRun) done(id string) {
	started, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	r.stats.Duration += TimeNowFn().Sub(started)
	r.stats.Running--
}

// Uptime returns the time since the Stats were created.
func (l *Stats) Uptime() time.Duration {
	return TimeNowFn().Sub(l.started)
}

// Snapshot returns the stats of every called tool, ordered by name.
func (l *Stats) Snapshot() []ToolStats {
	l.lock.Lock()
	defer l.lock.Unlock()

	list := make([]ToolStats, 0, len(l.tools))
	for _, r := range l.tools {
		list = append(list, r.stats)
	}
	slices.SortFunc(list, func(a, b ToolStats) int {
		return strings.Compare(a.Tool, b.Tool)
	})
	return list
}
