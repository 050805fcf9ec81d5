// Package cliconsumer is the CLI's event consumer: it renders
// internal/events' typed event stream to stdout, the same stream the HTTP
// surface renders as Server-Sent Events (spec.md 4.5). Output formatting
// and terminal hyperlinks are the packaging/CLI-ergonomics concern spec.md
// 1 names as deliberately out of the engine's core, so this package is kept
// thin: format one line per event, nothing more.
package cliconsumer

import (
	"fmt"
	"io"
	"os"

	"github.com/cybervaldez/promptyui/internal/events"
)

// Consumer renders each event.Event to an io.Writer as a single line.
type Consumer struct {
	out       io.Writer
	outputDir string
}

// NewConsumer builds a Consumer writing to out. outputDir is the job's run
// directory, used to resolve artifact disk_path into an absolute file://
// link.
func NewConsumer(out io.Writer, outputDir string) *Consumer {
	return &Consumer{out: out, outputDir: outputDir}
}

// NewStdoutConsumer is the common case: render to os.Stdout.
func NewStdoutConsumer(outputDir string) *Consumer {
	return NewConsumer(os.Stdout, outputDir)
}

// Handle implements events.Handler.
func (c *Consumer) Handle(e events.Event) {
	switch e.Type {
	case "init":
		fmt.Fprintf(c.out, "▶ run %v: %v compositions across %v\n",
			e.Data["job_id"], e.Data["total_jobs"], formatBlockPaths(e.Data["block_paths"]))

	case "block_start":
		fmt.Fprintf(c.out, "  block %v started\n", e.Data["block_path"])

	case "composition_complete":
		fmt.Fprintf(c.out, "    [%v/%v] %v composition %v complete\n",
			e.Data["global_completed"], e.Data["global_total"], e.Data["block_path"], e.Data["composition_idx"])

	case "artifact":
		link := c.formatArtifact(e.Data["artifact"])
		fmt.Fprintf(c.out, "      saved: %s\n", link)

	case "artifact_consumed":
		fmt.Fprintf(c.out, "    %v consumed %v artifact(s) from %v\n",
			e.Data["consuming_block"], e.Data["artifact_count"], e.Data["source_block"])

	case "block_complete":
		fmt.Fprintf(c.out, "  ✔ block %v complete\n", e.Data["block_path"])

	case "block_failed":
		fmt.Fprintf(c.out, "  ✗ block %v failed: %v\n", e.Data["block_path"], e.Data["error"])

	case "block_blocked":
		fmt.Fprintf(c.out, "  ▪ block %v blocked by an unmet dependency\n", e.Data["block_path"])

	case "stage":
		fmt.Fprintf(c.out, "      %v/%v %vms\n", e.Data["block_path"], e.Data["stage"], e.Data["time_ms"])

	case "run_complete":
		fmt.Fprintf(c.out, "■ run complete: %+v\n", e.Data["stats"])

	case "error":
		fmt.Fprintf(c.out, "✗ error: %v\n", e.Data["message"])
	}
}

func (c *Consumer) formatArtifact(raw interface{}) string {
	artifact, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", raw)
	}
	name, _ := artifact["name"].(string)
	diskPath, _ := artifact["disk_path"].(string)
	if link := artifactLink(c.outputDir, diskPath); link != "" {
		return link
	}
	return name
}

func formatBlockPaths(raw interface{}) string {
	paths, ok := raw.([]string)
	if !ok || len(paths) == 0 {
		return "0 blocks"
	}
	return fmt.Sprintf("%d block(s)", len(paths))
}
