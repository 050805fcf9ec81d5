// Package hooks implements the hook pipeline (spec.md 4.3): a named
// dispatch point where every script registered under a hook name runs in
// order, sharing one mutable context. The engine is dumb — it looks up
// hooks_config[hook_name] and executes; stage names are caller convention,
// not engine code.
package hooks

import (
	"fmt"
	"time"

	"github.com/cybervaldez/promptyui/internal/model"
)

// Func is the universal hook call convention: input a context, output a
// tagged HookResult. A language with ahead-of-time compilation trades the
// original's dynamic script loading for a plug-in registry of named
// functions (spec.md 9, "Dynamic hook scripts").
type Func func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult

// Registry is a named lookup table of hook functions, scoped to one
// pipeline instance rather than process-global (spec.md 9, "Module-level
// caches").
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: map[string]Func{}}
}

// Register adds a named hook function. Re-registering a name overwrites it.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup returns the function registered under name, if any.
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Pipeline orchestrates hook execution throughout one job's lifecycle.
type Pipeline struct {
	config   map[string][]model.HookSpec
	registry *Registry
}

// NewPipeline builds a pipeline over an already-merged hook configuration
// (see MergeHooks) and a function registry.
func NewPipeline(config map[string][]model.HookSpec, registry *Registry) *Pipeline {
	return &Pipeline{config: config, registry: registry}
}

// Execute runs every script configured under hookName, in order, against
// one shared context. A script returning StatusError short-circuits the
// remaining scripts under this hook name and triggers the "error" hook
// chain. The returned result's ModifyContext is the full accumulated
// context data after every script has run — not a diff — matching the
// Python original's ctx.update(...) accumulation.
func (p *Pipeline) Execute(hookName string, ctx *model.HookContext) *model.HookResult {
	ctx.Hook = hookName

	var lastData map[string]interface{}

	for _, spec := range p.config[hookName] {
		result := p.runOne(spec, ctx)

		if result.Status == model.StatusError {
			p.handleError(hookName, result, ctx)
			return result
		}
		if len(result.ModifyContext) > 0 {
			if ctx.Data == nil {
				ctx.Data = map[string]interface{}{}
			}
			for k, v := range result.ModifyContext {
				ctx.Data[k] = v
			}
		}
		if len(result.Data) > 0 {
			lastData = result.Data
		}
	}

	return &model.HookResult{
		Status:        model.StatusSuccess,
		Data:          lastData,
		ModifyContext: cloneMap(ctx.Data),
	}
}

// ExecuteTimed runs Execute and reports elapsed time. The event stream
// times its stages with its own wrapper and does not call it.
func (p *Pipeline) ExecuteTimed(hookName string, ctx *model.HookContext) (*model.HookResult, time.Duration) {
	start := time.Now()
	result := p.Execute(hookName, ctx)
	return result, time.Since(start)
}

func (p *Pipeline) runOne(spec model.HookSpec, ctx *model.HookContext) *model.HookResult {
	if spec.Script == "" {
		return &model.HookResult{Status: model.StatusSuccess}
	}

	fn, ok := p.registry.Lookup(spec.Script)
	if !ok {
		return &model.HookResult{
			Status: model.StatusError,
			Error:  &model.HookError{Code: "SCRIPT_NOT_FOUND", Message: fmt.Sprintf("hook %q not registered", spec.Script)},
		}
	}

	result := func() (res *model.HookResult) {
		defer func() {
			if r := recover(); r != nil {
				res = &model.HookResult{
					Status: model.StatusError,
					Error:  &model.HookError{Code: "SCRIPT_PANIC", Message: fmt.Sprintf("%v", r)},
				}
			}
		}()
		// Each script gets its own copy of Data; only ModifyContext is merged forward.
		local := *ctx
		local.Data = cloneMap(ctx.Data)
		return fn(&local, spec.Params)
	}()

	if result == nil {
		return &model.HookResult{Status: model.StatusSuccess}
	}
	return result
}

// handleError runs the "error" hook chain. Failures within error hooks are
// swallowed — they must never mask the original error.
func (p *Pipeline) handleError(hookName string, result *model.HookResult, ctx *model.HookContext) {
	errorCtx := *ctx
	errorCtx.Hook = "error"
	if errorCtx.Data == nil {
		errorCtx.Data = map[string]interface{}{}
	} else {
		errorCtx.Data = cloneMap(ctx.Data)
	}
	errorCtx.Data["error_type"] = "HookError"
	errorCtx.Data["hook_name"] = hookName
	if result.Error != nil {
		errorCtx.Data["error_code"] = result.Error.Code
		errorCtx.Data["error_message"] = result.Error.Message
	}

	for _, spec := range p.config["error"] {
		func() {
			defer func() { recover() }()
			p.runOne(spec, &errorCtx)
		}()
	}
}

// MergeHooks implements the 3-layer hook resolution (spec.md 4.3):
// defaults.hooks → prompt.hooks, appended per stage name; a stage name
// listed in nullStages is removed entirely (the prompt's null sentinel).
func MergeHooks(defaults, promptHooks map[string][]model.HookSpec, nullStages map[string]bool) map[string][]model.HookSpec {
	merged := map[string][]model.HookSpec{}
	for name, scripts := range defaults {
		if nullStages[name] {
			continue
		}
		merged[name] = append(merged[name], scripts...)
	}
	for name, scripts := range promptHooks {
		if nullStages[name] {
			continue
		}
		merged[name] = append(merged[name], scripts...)
	}
	return merged
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
