// Package events implements the canonical event stream (spec.md 4.5):
// both the CLI and HTTP/SSE surface are thin consumers of this stream. It
// wraps internal/executor's untyped progress callback into a typed event
// catalog and adds lifecycle events the executor doesn't emit natively
// (init, run_complete, error, per-stage timing).
package events

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cybervaldez/promptyui/internal/executor"
	"github.com/cybervaldez/promptyui/internal/model"
)

// Event is one entry of the canonical event stream.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
	TS   float64                `json:"ts"`
}

// RunMeta is the run metadata carried by the "init" event.
type RunMeta struct {
	JobID      string
	PromptID   string
	BlockPaths []string
	TotalJobs  int
}

// Handler receives every event in order.
type Handler func(Event)

// Stream wraps a HookRunner + executor.Executor, normalizing progress
// callbacks into typed events and adding run-level lifecycle events.
type Stream struct {
	pipeline       executor.HookRunner
	runMeta        RunMeta
	outputPath     string
	withStageTimes bool
	onEvent        Handler

	stageTimes map[string]map[string][]float64
	executor   *executor.Executor
	lockPath   string
}

// New builds a Stream over a job record list and run metadata. jobs is the
// complete, unfiltered expander output (see executor.New).
func New(pipeline executor.HookRunner, jobs []*model.JobRecord, runMeta RunMeta, outputPath string, withStageTiming bool, sink executor.ArtifactSink) *Stream {
	s := &Stream{
		pipeline:       pipeline,
		runMeta:        runMeta,
		outputPath:     outputPath,
		withStageTimes: withStageTiming,
		stageTimes:     map[string]map[string][]float64{},
	}

	runner := pipeline
	if withStageTiming {
		runner = &timedRunner{inner: pipeline, stream: s}
	}

	s.executor = executor.New(jobs, runner, s.handleProgress, sink)
	if outputPath != "" {
		s.lockPath = filepath.Join(outputPath, "_artifacts", ".lock")
	}
	return s
}

// OnEvent registers the stream's sole event consumer.
func (s *Stream) OnEvent(h Handler) { s.onEvent = h }

// Run executes the pipeline to completion (or until Stop), emitting
// init → ... → run_complete.
func (s *Stream) Run() (executor.Stats, error) {
	s.acquireLock()
	defer s.releaseLock()

	s.emit("init", map[string]interface{}{
		"job_id":      s.runMeta.JobID,
		"prompt_id":   s.runMeta.PromptID,
		"block_paths": s.runMeta.BlockPaths,
		"total_jobs":  s.runMeta.TotalJobs,
		"run_token":   uuid.NewString(),
	})

	s.pipeline.Execute("job_start", &model.HookContext{Data: map[string]interface{}{"job_name": s.runMeta.JobID}})

	s.executor.Execute()

	stats := s.executor.Stats()
	s.pipeline.Execute("job_end", &model.HookContext{Data: map[string]interface{}{"job_name": s.runMeta.JobID, "stats": stats}})

	s.emit("run_complete", map[string]interface{}{"stats": stats})
	return stats, nil
}

// Stop requests a pause at the next composition boundary.
func (s *Stream) Stop() { s.executor.Stop() }

// Resume continues a previously stopped run and re-emits run_complete.
func (s *Stream) Resume() executor.Stats {
	s.executor.Resume()
	stats := s.executor.Stats()
	s.emit("run_complete", map[string]interface{}{"stats": stats})
	return stats
}

func (s *Stream) handleProgress(eventType string, args ...interface{}) {
	switch eventType {
	case "block_start":
		blockPath := args[0].(string)
		s.stageTimes[blockPath] = map[string][]float64{}
		s.emit("block_start", map[string]interface{}{"block_path": blockPath})

	case "composition_complete":
		blockPath, idx := args[0].(string), args[1].(int)
		s.emit("composition_complete", map[string]interface{}{
			"block_path":       blockPath,
			"composition_idx":  idx,
			"block_completed":  s.executor.BlockCompleted(blockPath),
			"block_total":      s.executor.BlockCompositions(blockPath),
			"global_completed": s.executor.Stats().CompletedCompositions,
			"global_total":     s.executor.Stats().TotalCompositions,
		})

	case "block_complete":
		blockPath := args[0].(string)
		s.emit("block_complete", map[string]interface{}{
			"block_path":      blockPath,
			"stage_times":     s.stageTimes[blockPath],
			"artifacts_count": s.executor.BlockArtifactCount(blockPath),
		})

	case "block_failed":
		blockPath := args[0].(string)
		msg := "Unknown error"
		if len(args) > 1 {
			if m, ok := args[1].(string); ok && m != "" {
				msg = m
			}
		}
		s.emit("block_failed", map[string]interface{}{"block_path": blockPath, "error": msg})

	case "block_blocked":
		s.emit("block_blocked", map[string]interface{}{"block_path": args[0]})

	case "artifact":
		blockPath, idx, artifact := args[0].(string), args[1].(int), args[2].(model.Artifact)
		s.emit("artifact", map[string]interface{}{
			"block_path":      blockPath,
			"composition_idx": idx,
			"artifact": map[string]interface{}{
				"name":      artifact.Name,
				"type":      artifact.Type,
				"mod_id":    artifact.ModID,
				"preview":   artifact.Preview,
				"disk_path": artifact.DiskPath,
				"disk_line": artifact.DiskLine,
			},
		})

	case "artifact_consumed":
		s.emit("artifact_consumed", map[string]interface{}{
			"consuming_block": args[0],
			"source_block":    args[1],
			"artifact_count":  args[2],
		})
	}
}

func (s *Stream) emit(eventType string, data map[string]interface{}) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(Event{Type: eventType, Data: data, TS: float64(time.Now().UnixNano()) / 1e9})
}

func (s *Stream) recordStage(blockPath, stage string, elapsedMs float64) {
	if times, ok := s.stageTimes[blockPath]; ok {
		times[stage] = append(times[stage], elapsedMs)
	}
	s.emit("stage", map[string]interface{}{
		"block_path": blockPath,
		"stage":      stage,
		"time_ms":    elapsedMs,
	})
}

func (s *Stream) acquireLock() {
	if s.lockPath == "" {
		return
	}
	os.MkdirAll(filepath.Dir(s.lockPath), 0o755)
	os.WriteFile(s.lockPath, []byte(strconv.FormatInt(time.Now().Unix(), 10)), 0o644)
}

func (s *Stream) releaseLock() {
	if s.lockPath == "" {
		return
	}
	os.Remove(s.lockPath)
}

// timedRunner wraps a HookRunner, recording per-stage elapsed time against
// the owning Stream (spec.md 9, "stage_times in block_complete").
type timedRunner struct {
	inner  executor.HookRunner
	stream *Stream
}

func (t *timedRunner) Execute(hookName string, ctx *model.HookContext) *model.HookResult {
	start := time.Now()
	result := t.inner.Execute(hookName, ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	t.stream.recordStage(ctx.BlockPath, hookName, elapsed)
	return result
}
