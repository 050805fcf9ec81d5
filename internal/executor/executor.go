// Package executor implements the depth-first single-cursor tree executor
// (spec.md 4.4): one composition at a time, block order depth-first,
// respecting depends_on edges and cascading failures.
package executor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
)

// HookRunner is the subset of hooks.Pipeline the executor depends on.
// internal/events wraps it to add per-stage timing without the executor
// needing to know about timing at all.
type HookRunner interface {
	Execute(hookName string, ctx *model.HookContext) *model.HookResult
}

// QueueEntry is one flat, ordered unit of work.
type QueueEntry struct {
	BlockPath      string
	CompositionIdx int
	ParentKey      string // "block_path:idx", empty for roots
}

// ProgressFunc receives executor lifecycle events. args mirror the Python
// original's positional _emit(event_type, *args) convention.
type ProgressFunc func(eventType string, args ...interface{})

// ArtifactSink receives a completed block's artifacts for on-disk flushing.
// Implemented by internal/artifacts.Store; nil disables flushing.
type ArtifactSink interface {
	FlushBlock(blockPath string, artifacts []model.Artifact, block *model.Block) error
}

// Stats is the snapshot returned by Executor.Stats.
type Stats struct {
	State                model.BlockState
	TotalCompositions    int
	CompletedCompositions int
	QueuePosition        int
	BlocksTotal          int
	BlocksComplete       int
	BlocksFailed         int
	BlocksFailedDetail   map[string]FailedDetail
	BlocksBlocked        int
	ArtifactsTotal       int
	ArtifactsByBlock     map[string]int
}

// FailedDetail records partial completion of a failed block.
type FailedDetail struct {
	Completed int
	Total     int
}

// Executor runs one composition tree to completion (or to stop()).
type Executor struct {
	blocks map[string]*model.Block

	queue         []QueueEntry
	queuePosition int
	state         model.BlockState

	visitedBlocks  map[string]bool
	failedBlocks   map[string]bool
	blockedBlocks  map[string]bool
	blockStates    map[string]model.BlockState
	blockCompleted map[string]int
	resolveCache   map[string]*model.HookResult

	variationResults      map[string]*model.HookResult
	completedCompositions int
	stopRequested          bool
	blockArtifacts         map[string][]model.Artifact

	pipeline   HookRunner
	onProgress ProgressFunc
	sink       ArtifactSink
}

// New builds an executor over the complete, unfiltered output of the
// expander. jobs must carry a uniform Cartesian distribution of child
// compositions across parents (see spec.md 4.2's invariant); a partial or
// filtered job list produces an incorrect queue order.
func New(jobs []*model.JobRecord, pipeline HookRunner, onProgress ProgressFunc, sink ArtifactSink) *Executor {
	e := &Executor{
		pipeline:       pipeline,
		onProgress:     onProgress,
		sink:           sink,
		state:          model.StateIdle,
		visitedBlocks:  map[string]bool{},
		failedBlocks:   map[string]bool{},
		blockedBlocks:  map[string]bool{},
		blockStates:    map[string]model.BlockState{},
		blockCompleted: map[string]int{},
		resolveCache:   map[string]*model.HookResult{},
		variationResults: map[string]*model.HookResult{},
		blockArtifacts: map[string][]model.Artifact{},
	}
	e.blocks = e.buildBlockTree(jobs)
	return e
}

func (e *Executor) buildBlockTree(jobs []*model.JobRecord) map[string]*model.Block {
	blocks := map[string]*model.Block{}
	for _, job := range jobs {
		path := job.BlockPath
		if path == "" {
			path = "0"
		}
		b, ok := blocks[path]
		if !ok {
			dependsOn := append([]string{}, job.DependsOn...)
			if annDeps, ok := job.Prompt.Annotations["_depends_on"]; ok {
				dependsOn = append(dependsOn, mergeAnnotationDeps(dependsOn, annDeps)...)
			}
			b = &model.Block{Path: path, ParentPath: job.ParentPath, DependsOn: dependsOn}
			blocks[path] = b
		}
		b.Jobs = append(b.Jobs, job)
	}
	return blocks
}

func mergeAnnotationDeps(existing []string, raw interface{}) []string {
	seen := map[string]bool{}
	for _, d := range existing {
		seen[d] = true
	}
	var extra []string
	switch v := raw.(type) {
	case string:
		if !seen[v] {
			extra = append(extra, v)
		}
	case []string:
		for _, d := range v {
			if !seen[d] {
				extra = append(extra, d)
				seen[d] = true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && !seen[s] {
				extra = append(extra, s)
				seen[s] = true
			}
		}
	}
	return extra
}

// hasBlock reports whether parentPath names a block with standalone jobs.
func (e *Executor) hasBlock(path string) bool {
	_, ok := e.blocks[path]
	return ok
}

// BuildQueue builds the flat depth-first execution queue, respecting
// depends_on ordering among root blocks (spec.md 4.4).
func (e *Executor) BuildQueue() []QueueEntry {
	var queue []QueueEntry

	var enqueueSubtree func(blockPath string, idx int, parentKey string)
	enqueueSubtree = func(blockPath string, idx int, parentKey string) {
		queue = append(queue, QueueEntry{BlockPath: blockPath, CompositionIdx: idx, ParentKey: parentKey})

		var children []*model.Block
		for _, b := range e.blocks {
			if b.ParentPath == blockPath {
				children = append(children, b)
			}
		}
		sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })

		parentBlock := e.blocks[blockPath]
		for _, child := range children {
			var perParent int
			if parentBlock.Compositions() > 0 {
				perParent = child.Compositions() / parentBlock.Compositions()
			}
			start := idx * perParent
			for c := 0; c < perParent; c++ {
				childIdx := start + c
				if childIdx < child.Compositions() {
					enqueueSubtree(child.Path, childIdx, blockPath+":"+strconv.Itoa(idx))
				}
			}
		}
	}

	var roots []*model.Block
	for _, b := range e.blocks {
		if b.ParentPath == "" || !e.hasBlock(b.ParentPath) {
			roots = append(roots, b)
		}
	}
	roots = e.topoSortRoots(roots)

	for _, root := range roots {
		for i := 0; i < root.Compositions(); i++ {
			enqueueSubtree(root.Path, i, "")
		}
	}

	e.queue = queue
	return queue
}

// topoSortRoots runs Kahn's algorithm over root-level depends_on edges,
// falling back to lexicographic order on a cycle (spec.md 9, open question).
func (e *Executor) topoSortRoots(roots []*model.Block) []*model.Block {
	rootPaths := map[string]bool{}
	rootByPath := map[string]*model.Block{}
	for _, r := range roots {
		rootPaths[r.Path] = true
		rootByPath[r.Path] = r
	}

	findRootFor := func(depPath string) string {
		if rootPaths[depPath] {
			return depPath
		}
		parts := strings.Split(depPath, ".")
		for len(parts) > 0 {
			candidate := strings.Join(parts, ".")
			if rootPaths[candidate] {
				return candidate
			}
			for rp := range rootPaths {
				if strings.HasPrefix(rp, candidate+".") || rp == candidate {
					return rp
				}
			}
			parts = parts[:len(parts)-1]
		}
		for rp := range rootPaths {
			if strings.HasPrefix(rp, depPath+".") || rp == depPath {
				return rp
			}
		}
		return ""
	}

	deps := map[string]map[string]bool{}
	for _, r := range roots {
		deps[r.Path] = map[string]bool{}
	}
	for _, r := range roots {
		for _, dep := range r.DependsOn {
			target := findRootFor(dep)
			if target != "" && target != r.Path {
				deps[r.Path][target] = true
			}
		}
	}

	inDegree := map[string]int{}
	for rp, d := range deps {
		inDegree[rp] = len(d)
	}
	var ready []string
	for rp, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, rp)
		}
	}
	sort.Strings(ready)

	var result []*model.Block
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		result = append(result, rootByPath[node])
		for rp, d := range deps {
			if d[node] {
				delete(d, node)
				inDegree[rp]--
				if inDegree[rp] == 0 {
					insertSorted(&ready, rp)
				}
			}
		}
	}

	if len(result) < len(roots) {
		sorted := append([]*model.Block{}, roots...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
		return sorted
	}
	return result
}

func insertSorted(list *[]string, v string) {
	i := sort.SearchStrings(*list, v)
	*list = append(*list, "")
	copy((*list)[i+1:], (*list)[i:])
	(*list)[i] = v
}

