package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cybervaldez/promptyui/internal/hooks"
	"github.com/cybervaldez/promptyui/internal/model"
)

func job(blockPath, parentPath string, dependsOn ...string) *model.JobRecord {
	return &model.JobRecord{
		Prompt:    model.ResolvedPrompt{ID: "p", Text: "hi"},
		BlockPath: blockPath, ParentPath: parentPath, DependsOn: dependsOn,
	}
}

func noopPipeline() *hooks.Pipeline {
	return hooks.NewPipeline(map[string][]model.HookSpec{}, hooks.NewRegistry())
}

func TestBuildQueue_NestedAfterTwoChildren(t *testing.T) {
	jobs := []*model.JobRecord{
		job("0.0", "0"), job("0.0", "0"), job("0.0", "0"),
		job("0.1", "0"), job("0.1", "0"), job("0.1", "0"),
	}
	e := New(jobs, noopPipeline(), nil, nil)
	queue := e.BuildQueue()

	require.Len(t, queue, 6)
	var got []string
	for _, q := range queue {
		got = append(got, q.BlockPath)
	}
	require.Equal(t, []string{"0.0", "0.0", "0.0", "0.1", "0.1", "0.1"}, got)
}

func TestExecute_SingleComposition(t *testing.T) {
	var events []string
	onProgress := func(eventType string, args ...interface{}) { events = append(events, eventType) }

	e := New([]*model.JobRecord{job("0", "")}, noopPipeline(), onProgress, nil)
	e.Execute()

	stats := e.Stats()
	require.Equal(t, model.StateComplete, stats.State)
	require.Equal(t, 1, stats.CompletedCompositions)
	require.Contains(t, events, "block_start")
	require.Contains(t, events, "composition_complete")
	require.Contains(t, events, "block_complete")
}

func TestExecute_FailureCascadesToDependentBlock(t *testing.T) {
	registry := hooks.NewRegistry()
	registry.Register("fails_on_second", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		if ctx.CompositionIndex == 1 {
			return &model.HookResult{Status: model.StatusError, Error: &model.HookError{Code: "X", Message: "boom"}}
		}
		return &model.HookResult{Status: model.StatusSuccess}
	})
	config := map[string][]model.HookSpec{"generate": {{Script: "fails_on_second"}}}
	pipeline := hooks.NewPipeline(config, registry)

	jobs := []*model.JobRecord{
		job("0", ""), job("0", ""), job("0", ""),
		job("0.0", "0"),
	}
	// block "0.0" depends on "0"
	jobs[3].DependsOn = []string{"0"}

	var events []string
	onProgress := func(eventType string, args ...interface{}) { events = append(events, eventType) }

	e := New(jobs, pipeline, onProgress, nil)
	e.Execute()

	stats := e.Stats()
	require.Equal(t, 1, stats.BlocksFailed)
	require.Equal(t, 1, stats.BlocksBlocked)
	require.Equal(t, 1, stats.BlocksFailedDetail["0"].Completed)
	require.Equal(t, 3, stats.BlocksFailedDetail["0"].Total)
	require.Contains(t, events, "block_failed")
	require.Contains(t, events, "block_blocked")
}

func TestExecute_StopAndResume(t *testing.T) {
	var completions int
	registry := hooks.NewRegistry()
	registry.Register("count", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		return &model.HookResult{Status: model.StatusSuccess}
	})
	config := map[string][]model.HookSpec{"generate": {{Script: "count"}}}
	pipeline := hooks.NewPipeline(config, registry)

	var jobs []*model.JobRecord
	for i := 0; i < 10; i++ {
		jobs = append(jobs, job("0", ""))
	}

	var e *Executor
	onProgress := func(eventType string, args ...interface{}) {
		if eventType == "composition_complete" {
			completions++
			if completions == 4 {
				e.Stop()
			}
		}
	}
	e = New(jobs, pipeline, onProgress, nil)
	e.Execute()

	require.Equal(t, model.StatePaused, e.Stats().State)
	require.Equal(t, 5, e.Stats().QueuePosition)
	require.Equal(t, 4, completions)

	e.Resume()
	require.Equal(t, model.StateComplete, e.Stats().State)
	require.Equal(t, 10, e.Stats().CompletedCompositions)
	require.Equal(t, 10, completions)
}
