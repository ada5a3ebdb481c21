package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tfgraph-io/tfgraph/pkg/graph"
)

// NodeResult is the final outcome for one directory.
type NodeResult struct {
	Path   string
	Status graph.Status

	// Output is the captured tool stream, init included. Empty for skipped
	// directories, which are never invoked.
	Output []byte

	// HasDiff reports a successful plan with pending changes or an apply
	// that changed resources.
	HasDiff bool

	// IAMChanges reports privilege-sensitive changes found by the output
	// scan. Only set when the caller asked for the scan.
	IAMChanges bool

	// SkipCause names the failed or skipped ancestor that blocked this
	// directory. Empty unless Status is skipped.
	SkipCause string

	// Err carries the invocation error for failed directories.
	Err error
}

// RunSummary accumulates per-directory outcomes for one invocation. It is
// created when execution starts, mutated only through Record while the run
// is in flight, and read-only afterwards. Safe for concurrent use.
type RunSummary struct {
	RunID     string
	StartedAt time.Time

	mu      sync.Mutex
	results map[string]*NodeResult
}

// NewRunSummary creates an empty summary with a fresh run id.
func NewRunSummary() *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		results:   make(map[string]*NodeResult),
	}
}

// Record stores one directory's final outcome.
func (s *RunSummary) Record(res *NodeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.Path] = res
}

// Result returns the recorded outcome for a directory, or nil.
func (s *RunSummary) Result(path string) *NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[path]
}

// Results returns every recorded outcome sorted by path.
func (s *RunSummary) Results() []*NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*NodeResult, 0, len(s.results))
	for _, res := range s.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Failed returns the directories whose tool invocation failed, sorted.
func (s *RunSummary) Failed() []string {
	return s.withStatus(graph.StatusFailed)
}

// NotApplied returns the directories skipped because an ancestor failed or
// was skipped, sorted.
func (s *RunSummary) NotApplied() []string {
	return s.withStatus(graph.StatusSkipped)
}

// Succeeded returns the directories that completed successfully, sorted.
func (s *RunSummary) Succeeded() []string {
	return s.withStatus(graph.StatusSucceeded)
}

// HasFailures reports whether any directory failed.
func (s *RunSummary) HasFailures() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.results {
		if res.Status == graph.StatusFailed {
			return true
		}
	}
	return false
}

// HasIAMChanges reports whether any directory's scan flagged
// privilege-sensitive changes.
func (s *RunSummary) HasIAMChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range s.results {
		if res.IAMChanges {
			return true
		}
	}
	return false
}

func (s *RunSummary) withStatus(status graph.Status) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var paths []string
	for path, res := range s.results {
		if res.Status == status {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}
