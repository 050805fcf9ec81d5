// Command promptyctl is the CLI front-end for the prompt-pipeline engine:
// it expands a job document, runs it through the tree executor, and
// renders the canonical event stream to stdout (internal/cliconsumer).
// Exit code is 0 on a fully completed run, 1 on any fatal error during
// expansion or execution (spec.md 6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cybervaldez/promptyui/internal/api"
	"github.com/cybervaldez/promptyui/internal/artifacts"
	"github.com/cybervaldez/promptyui/internal/bootstrap"
	"github.com/cybervaldez/promptyui/internal/cliconsumer"
	"github.com/cybervaldez/promptyui/internal/events"
	"github.com/cybervaldez/promptyui/internal/expander"
	"github.com/cybervaldez/promptyui/internal/hooks"
	"github.com/cybervaldez/promptyui/internal/model"
)

var (
	promptID string
	jobsRoot string
	extRoot  string
)

var rootCmd = &cobra.Command{
	Use:   "promptyctl [job-id]",
	Short: "Run a prompt-pipeline job from the command line",
}

var cmdRun = &cobra.Command{
	Use:          "run [job-id]",
	Short:        "Expand and execute a job document, streaming progress to stdout",
	Args:         cobra.ExactArgs(1),
	RunE:         runJob,
	SilenceUsage: true,
}

func init() {
	cmdRun.Flags().StringVar(&promptID, "prompt-id", "", "run a single prompt by id instead of the whole job")
	cmdRun.Flags().StringVar(&jobsRoot, "jobs-root", "", "override PROMPTY_JOBS_ROOT")
	cmdRun.Flags().StringVar(&extRoot, "extensions-root", "", "override PROMPTY_EXTENSIONS_ROOT")
	rootCmd.AddCommand(cmdRun)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runJob(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	components, err := bootstrap.Setup()
	if err != nil {
		return fmt.Errorf("bootstrapping: %w", err)
	}

	if jobsRoot != "" {
		components.Config.Storage.JobsRoot = jobsRoot
	}
	if extRoot != "" {
		components.Config.Storage.ExtensionsRoot = extRoot
	}

	store := api.NewStore(components.Config.Storage.JobsRoot, components.Config.Storage.ExtensionsRoot)

	def, err := store.LoadJob(jobID)
	if err != nil {
		return fmt.Errorf("loading job %q: %w", jobID, err)
	}

	if promptID != "" {
		prompt, err := findPrompt(def, promptID)
		if err != nil {
			return err
		}
		filtered := *def
		filtered.Prompts = []model.PromptDef{*prompt}
		def = &filtered
	}

	extensions, err := store.LoadExtensions()
	if err != nil {
		return fmt.Errorf("loading extensions: %w", err)
	}
	global := &expander.GlobalConfig{Extensions: extensions}

	opts := expander.Options{
		RangeIncrement:   components.Config.Engine.RangeIncrement,
		WildcardsMax:     components.Config.Engine.WildcardsMax,
		ExtTextMax:       components.Config.Engine.ExtTextMax,
		PromptsDelimiter: components.Config.Engine.PromptsDelimiter,
	}
	if len(def.Model.Sampler) > 0 {
		opts.Samplers = def.Model.Sampler
	}

	jobs, err := expander.Expand(def, global, opts)
	if err != nil {
		return fmt.Errorf("expanding job %q: %w", jobID, err)
	}

	blockPaths := make([]string, 0, len(jobs))
	seen := map[string]bool{}
	for _, j := range jobs {
		if !seen[j.BlockPath] {
			blockPaths = append(blockPaths, j.BlockPath)
		}
		seen[j.BlockPath] = true
	}

	outputDir := store.JobOutputDir(jobID)
	sink := artifacts.New(outputDir, len(seen))

	merged := map[string][]model.HookSpec{}
	for k, v := range def.Defaults.Hooks {
		merged[k] = v
	}
	for _, p := range def.Prompts {
		merged = hooks.MergeHooks(merged, p.Hooks, p.HooksNull)
	}
	pipeline := hooks.NewPipeline(merged, components.Registry)

	stream := events.New(pipeline, jobs, events.RunMeta{
		JobID: jobID, PromptID: promptID, BlockPaths: blockPaths, TotalJobs: len(jobs),
	}, outputDir, true, sink)

	consumer := cliconsumer.NewStdoutConsumer(outputDir)
	stream.OnEvent(consumer.Handle)

	components.Logger.Info("running job", "job_id", jobID, "prompt_id", promptID, "total_jobs", len(jobs))

	stats, err := stream.Run()
	if err != nil {
		return fmt.Errorf("running job %q: %w", jobID, err)
	}
	if stats.State == model.StateFailed {
		return fmt.Errorf("job %q finished with %d failed block(s)", jobID, stats.BlocksFailed)
	}
	return nil
}

func findPrompt(def *model.JobDefinition, id string) (*model.PromptDef, error) {
	for _, p := range def.Prompts {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("prompt %q not found in job", id)
}
