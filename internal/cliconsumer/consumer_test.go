package cliconsumer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cybervaldez/promptyui/internal/events"
)

func TestConsumer_Handle_RendersInitAndRunComplete(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&buf, "")

	c.Handle(events.Event{Type: "init", Data: map[string]interface{}{
		"job_id": "demo", "total_jobs": 4, "block_paths": []string{"0", "0.1"},
	}})
	c.Handle(events.Event{Type: "run_complete", Data: map[string]interface{}{
		"stats": "4/4 complete",
	}})

	out := buf.String()
	require.Contains(t, out, "demo")
	require.Contains(t, out, "4 compositions")
	require.Contains(t, out, "run complete")
}

func TestConsumer_Handle_BlockLifecycle(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&buf, "")

	c.Handle(events.Event{Type: "block_start", Data: map[string]interface{}{"block_path": "0.1"}})
	c.Handle(events.Event{Type: "block_complete", Data: map[string]interface{}{"block_path": "0.1"}})
	c.Handle(events.Event{Type: "block_failed", Data: map[string]interface{}{"block_path": "0.2", "error": "boom"}})
	c.Handle(events.Event{Type: "block_blocked", Data: map[string]interface{}{"block_path": "0.3"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "started")
	require.Contains(t, lines[1], "complete")
	require.Contains(t, lines[2], "boom")
	require.Contains(t, lines[3], "blocked")
}

func TestConsumer_Handle_ArtifactWithoutDiskPathFallsBackToName(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&buf, "/out")

	c.Handle(events.Event{Type: "artifact", Data: map[string]interface{}{
		"block_path": "0",
		"artifact": map[string]interface{}{
			"name": "preview-only",
		},
	}})

	require.Contains(t, buf.String(), "preview-only")
}

func TestConsumer_Handle_ArtifactWithDiskPathEmitsLink(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&buf, "/out")

	c.Handle(events.Event{Type: "artifact", Data: map[string]interface{}{
		"block_path": "0",
		"artifact": map[string]interface{}{
			"name":      "gen0001.png",
			"disk_path": "0/gen0001.png",
		},
	}})

	out := buf.String()
	require.Contains(t, out, "/out/0/gen0001.png")
}

func TestConsumer_Handle_UnknownEventTypeIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&buf, "")

	c.Handle(events.Event{Type: "something_new", Data: map[string]interface{}{}})

	require.Empty(t, buf.String())
}
