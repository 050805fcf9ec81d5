package executor

import (
	"strconv"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
)

// Execute runs the queue to completion, one composition at a time, in
// depth-first block order. It builds the queue on first call if Stop/Resume
// hasn't already done so.
func (e *Executor) Execute() {
	if len(e.queue) == 0 {
		e.BuildQueue()
	}
	e.state = model.StateRunning

	for e.queuePosition < len(e.queue) && !e.stopRequested {
		entry := e.queue[e.queuePosition]
		blockPath := entry.BlockPath
		idx := entry.CompositionIdx
		parentKey := entry.ParentKey

		if e.failedBlocks[blockPath] || e.blockedBlocks[blockPath] {
			e.queuePosition++
			continue
		}

		if parentKey != "" {
			parentBlockPath := strings.SplitN(parentKey, ":", 2)[0]
			if e.failedBlocks[parentBlockPath] {
				e.blockedBlocks[blockPath] = true
				e.blockStates[blockPath] = model.StateBlocked
				e.emit("block_blocked", blockPath)
				e.queuePosition++
				continue
			}
		}

		block := e.blocks[blockPath]

		if len(block.DependsOn) > 0 && !e.visitedBlocks[blockPath] {
			blocked := false
			for _, d := range block.DependsOn {
				if e.failedBlocks[d] {
					blocked = true
					break
				}
			}
			if blocked {
				e.blockedBlocks[blockPath] = true
				e.blockStates[blockPath] = model.StateBlocked
				e.emit("block_blocked", blockPath)
				e.queuePosition++
				continue
			}
		}

		var parentResult *model.HookResult
		if parentKey != "" {
			parentResult = e.variationResults[parentKey]
		}
		job := block.Jobs[0]
		if idx < len(block.Jobs) {
			job = block.Jobs[idx]
		}

		ctx := &model.HookContext{
			BlockPath:        blockPath,
			ParentPath:       block.ParentPath,
			CompositionIndex: idx,
			CompositionTotal: block.Compositions(),
			ParentResult:     parentResult,
			ResolvedText:     job.Prompt.Text,
			PromptID:         job.Prompt.ID,
			Annotations:      job.Prompt.Annotations,
			Job:              job,
			UpstreamArtifacts: e.snapshotArtifacts(),
			BlockStates:      e.snapshotBlockStates(),
			BlockCompleted:   e.snapshotBlockCompleted(),
			Data:             map[string]interface{}{},
		}

		if !e.visitedBlocks[blockPath] {
			e.visitedBlocks[blockPath] = true
			e.blockStates[blockPath] = model.StateRunning
			e.emit("block_start", blockPath)

			e.pipeline.Execute("node_start", ctx)
			if e.stopRequested {
				break
			}

			resolveResult := e.pipeline.Execute("resolve", ctx)
			if e.stopRequested {
				break
			}
			if !hookSuccess(resolveResult) {
				e.handleFailure(blockPath, idx, resolveResult)
				e.queuePosition++
				continue
			}
			e.resolveCache[blockPath] = resolveResult
		}

		if cached, ok := e.resolveCache[blockPath]; ok {
			ctx.ResolveData = cached
		}

		compositionFailed := false
		compositionData := map[string]interface{}{}
		for _, stage := range []string{"pre", "generate", "post"} {
			result := e.pipeline.Execute(stage, ctx)
			if e.stopRequested {
				break
			}
			if !hookSuccess(result) {
				e.handleFailure(blockPath, idx, result)
				compositionFailed = true
				break
			}
			for k, v := range result.Data {
				compositionData[k] = v
			}
		}
		if e.stopRequested {
			break
		}

		if !compositionFailed {
			artifacts := extractArtifacts(compositionData, idx, blockPath)
			delete(compositionData, "artifacts")
			if len(artifacts) > 0 {
				e.blockArtifacts[blockPath] = append(e.blockArtifacts[blockPath], artifacts...)
				for _, a := range artifacts {
					e.emit("artifact", blockPath, idx, a)
				}
			}

			e.blockCompleted[blockPath]++
			e.completedCompositions++
			e.variationResults[blockPath+":"+strconv.Itoa(idx)] = &model.HookResult{Status: model.StatusSuccess, Data: compositionData}
			e.emit("composition_complete", blockPath, idx)

			if e.blockCompleted[blockPath] == block.Compositions() {
				e.pipeline.Execute("node_end", ctx)
				e.blockStates[blockPath] = model.StateComplete

				if e.sink != nil && len(e.blockArtifacts[blockPath]) > 0 {
					e.sink.FlushBlock(blockPath, e.blockArtifacts[blockPath], block)
				}

				if len(e.blockArtifacts[blockPath]) > 0 {
					for _, b := range e.blocks {
						if contains(b.DependsOn, blockPath) {
							e.emit("artifact_consumed", b.Path, blockPath, len(e.blockArtifacts[blockPath]))
						}
					}
				}

				e.emit("block_complete", blockPath)
			}
		}

		e.queuePosition++
	}

	switch {
	case e.stopRequested:
		e.state = model.StatePaused
	case len(e.failedBlocks) > 0:
		e.state = model.StateFailed
	default:
		e.state = model.StateComplete
	}
}

// Stop requests a pause at the next composition boundary.
func (e *Executor) Stop() { e.stopRequested = true }

// Resume clears the stop flag and continues from the current queue
// position.
func (e *Executor) Resume() {
	e.stopRequested = false
	e.Execute()
}

func (e *Executor) handleFailure(blockPath string, idx int, result *model.HookResult) {
	e.failedBlocks[blockPath] = true
	e.blockStates[blockPath] = model.StateFailed
	e.variationResults[blockPath+":"+strconv.Itoa(idx)] = result

	msg := result.Message
	if msg == "" && result.Error != nil {
		msg = result.Error.Message
	}
	e.emit("block_failed", blockPath, msg)

	var cascade func(failedPath string)
	cascade = func(failedPath string) {
		var toBlock []*model.Block
		for _, b := range e.blocks {
			if b.ParentPath == failedPath || contains(b.DependsOn, failedPath) {
				toBlock = append(toBlock, b)
			}
		}
		for _, b := range toBlock {
			if !e.blockedBlocks[b.Path] {
				e.blockedBlocks[b.Path] = true
				e.blockStates[b.Path] = model.StateBlocked
				e.emit("block_blocked", b.Path)
				cascade(b.Path)
			}
		}
	}
	cascade(blockPath)
}

func (e *Executor) emit(eventType string, args ...interface{}) {
	if e.onProgress != nil {
		e.onProgress(eventType, args...)
	}
}

// Stats returns a snapshot of execution progress and outcome.
func (e *Executor) Stats() Stats {
	failedDetail := map[string]FailedDetail{}
	for bp := range e.failedBlocks {
		if block, ok := e.blocks[bp]; ok {
			failedDetail[bp] = FailedDetail{Completed: e.blockCompleted[bp], Total: block.Compositions()}
		}
	}

	artifactsTotal := 0
	artifactsByBlock := map[string]int{}
	for bp, arts := range e.blockArtifacts {
		artifactsByBlock[bp] = len(arts)
		artifactsTotal += len(arts)
	}

	blocksComplete := 0
	for _, s := range e.blockStates {
		if s == model.StateComplete {
			blocksComplete++
		}
	}

	return Stats{
		State:                 e.state,
		TotalCompositions:     len(e.queue),
		CompletedCompositions: e.completedCompositions,
		QueuePosition:         e.queuePosition,
		BlocksTotal:           len(e.blocks),
		BlocksComplete:        blocksComplete,
		BlocksFailed:          len(e.failedBlocks),
		BlocksFailedDetail:    failedDetail,
		BlocksBlocked:         len(e.blockedBlocks),
		ArtifactsTotal:        artifactsTotal,
		ArtifactsByBlock:      artifactsByBlock,
	}
}

// BlockCompleted returns how many compositions of blockPath have finished.
func (e *Executor) BlockCompleted(blockPath string) int {
	return e.blockCompleted[blockPath]
}

// BlockCompositions returns the total composition count of blockPath, or 0
// if blockPath names no block.
func (e *Executor) BlockCompositions(blockPath string) int {
	if b, ok := e.blocks[blockPath]; ok {
		return b.Compositions()
	}
	return 0
}

// BlockArtifactCount returns how many artifacts blockPath has produced.
func (e *Executor) BlockArtifactCount(blockPath string) int {
	return len(e.blockArtifacts[blockPath])
}

func hookSuccess(r *model.HookResult) bool {
	return r.Status == model.StatusSuccess || r.Status == model.StatusSkip
}

func (e *Executor) snapshotArtifacts() map[string][]model.Artifact {
	out := make(map[string][]model.Artifact, len(e.blockArtifacts))
	for k, v := range e.blockArtifacts {
		out[k] = append([]model.Artifact{}, v...)
	}
	return out
}

func (e *Executor) snapshotBlockStates() map[string]model.BlockState {
	out := make(map[string]model.BlockState, len(e.blockStates))
	for k, v := range e.blockStates {
		out[k] = v
	}
	return out
}

func (e *Executor) snapshotBlockCompleted() map[string]int {
	out := make(map[string]int, len(e.blockCompleted))
	for k, v := range e.blockCompleted {
		out[k] = v
	}
	return out
}

func extractArtifacts(data map[string]interface{}, idx int, blockPath string) []model.Artifact {
	raw, ok := data["artifacts"]
	if !ok {
		return nil
	}
	var list []model.Artifact
	switch v := raw.(type) {
	case []model.Artifact:
		list = v
	case model.Artifact:
		list = []model.Artifact{v}
	}
	for i := range list {
		if list[i].CompositionIdx == 0 {
			list[i].CompositionIdx = idx
		}
		if list[i].BlockPath == "" {
			list[i].BlockPath = blockPath
		}
	}
	return list
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
