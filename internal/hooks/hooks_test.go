package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cybervaldez/promptyui/internal/model"
)

func TestPipeline_ExecuteRunsScriptsInOrder(t *testing.T) {
	var order []string

	registry := NewRegistry()
	registry.Register("first", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		order = append(order, "first")
		return &model.HookResult{Status: model.StatusSuccess, ModifyContext: map[string]interface{}{"a": 1}}
	})
	registry.Register("second", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		order = append(order, "second")
		require.Equal(t, 1, ctx.Data["a"])
		return &model.HookResult{Status: model.StatusSuccess, Data: map[string]interface{}{"b": 2}}
	})

	config := map[string][]model.HookSpec{
		"pre": {{Script: "first"}, {Script: "second"}},
	}
	pipeline := NewPipeline(config, registry)

	result := pipeline.Execute("pre", &model.HookContext{})

	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, model.StatusSuccess, result.Status)
	require.Equal(t, 2, result.Data["b"])
	require.Equal(t, 1, result.ModifyContext["a"])
}

func TestPipeline_ExecuteShortCircuitsOnError(t *testing.T) {
	var ran []string

	registry := NewRegistry()
	registry.Register("fails", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		ran = append(ran, "fails")
		return &model.HookResult{Status: model.StatusError, Error: &model.HookError{Code: "BOOM", Message: "kaboom"}}
	})
	registry.Register("never", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		ran = append(ran, "never")
		return &model.HookResult{Status: model.StatusSuccess}
	})

	config := map[string][]model.HookSpec{
		"generate": {{Script: "fails"}, {Script: "never"}},
	}
	pipeline := NewPipeline(config, registry)

	result := pipeline.Execute("generate", &model.HookContext{})

	require.Equal(t, []string{"fails"}, ran)
	require.Equal(t, model.StatusError, result.Status)
	require.Equal(t, "BOOM", result.Error.Code)
}

func TestPipeline_ExecuteRunsErrorHooksOnFailure(t *testing.T) {
	var errorHookCalled bool

	registry := NewRegistry()
	registry.Register("fails", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		return &model.HookResult{Status: model.StatusError, Error: &model.HookError{Code: "BOOM", Message: "kaboom"}}
	})
	registry.Register("log_error", func(ctx *model.HookContext, params map[string]interface{}) *model.HookResult {
		errorHookCalled = true
		require.Equal(t, "BOOM", ctx.Data["error_code"])
		require.Equal(t, "generate", ctx.Data["hook_name"])
		return &model.HookResult{Status: model.StatusSuccess}
	})

	config := map[string][]model.HookSpec{
		"generate": {{Script: "fails"}},
		"error":    {{Script: "log_error"}},
	}
	pipeline := NewPipeline(config, registry)
	pipeline.Execute("generate", &model.HookContext{})

	require.True(t, errorHookCalled)
}

func TestPipeline_UnregisteredScriptIsScriptNotFoundError(t *testing.T) {
	registry := NewRegistry()
	config := map[string][]model.HookSpec{"pre": {{Script: "missing"}}}
	pipeline := NewPipeline(config, registry)

	result := pipeline.Execute("pre", &model.HookContext{})

	require.Equal(t, model.StatusError, result.Status)
	require.Equal(t, "SCRIPT_NOT_FOUND", result.Error.Code)
}

func TestMergeHooks_NullSentinelRemovesStage(t *testing.T) {
	defaults := map[string][]model.HookSpec{
		"pre":  {{Script: "validator"}},
		"post": {{Script: "quality_check"}},
	}
	promptHooks := map[string][]model.HookSpec{
		"pre": {{Script: "translator"}},
	}
	nullStages := map[string]bool{"post": true}

	merged := MergeHooks(defaults, promptHooks, nullStages)

	require.Len(t, merged["pre"], 2)
	require.Equal(t, "validator", merged["pre"][0].Script)
	require.Equal(t, "translator", merged["pre"][1].Script)
	require.Empty(t, merged["post"])
}
