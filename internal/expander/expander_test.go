package expander

import (
	"testing"

	"github.com/cybervaldez/promptyui/internal/model"
)

func baseOptions() Options {
	return Options{
		RangeIncrement:   0.1,
		WildcardsMax:     0,
		ExtTextMax:       0,
		PromptsDelimiter: ", ",
		DefaultExt:       "",
		CompositionID:    42,
	}
}

func TestExpand_SinglePromptNoWildcards(t *testing.T) {
	jobDef := &model.JobDefinition{
		Prompts: []model.PromptDef{
			{ID: "p1", Text: []model.TextNode{{Content: "a cat sitting on a wall"}}},
		},
	}
	jobs, err := Expand(jobDef, &GlobalConfig{}, baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job record, got %d", len(jobs))
	}
	if jobs[0].BlockPath != "0" {
		t.Errorf("expected block path \"0\", got %q", jobs[0].BlockPath)
	}
	if jobs[0].Prompt.Text != "a cat sitting on a wall" {
		t.Errorf("unexpected resolved text: %q", jobs[0].Prompt.Text)
	}
	if jobs[0].OriginalIndex != 1 {
		t.Errorf("expected original_index 1, got %d", jobs[0].OriginalIndex)
	}
}

func TestExpand_TwoWildcardsIterateMode(t *testing.T) {
	jobDef := &model.JobDefinition{
		Prompts: []model.PromptDef{
			{
				ID:   "p1",
				Text: []model.TextNode{{Content: "a __x__ and __y__"}},
				Wildcards: []model.Wildcard{
					{Name: "x", Values: []string{"1", "2"}},
					{Name: "y", Values: []string{"3", "4"}},
				},
			},
		},
	}
	jobs, err := Expand(jobDef, &GlobalConfig{}, baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 4 {
		t.Fatalf("expected 4 job records, got %d", len(jobs))
	}
	want := map[string]bool{
		"a 1 and 3": true, "a 1 and 4": true, "a 2 and 3": true, "a 2 and 4": true,
	}
	for _, j := range jobs {
		if !want[j.Prompt.Text] {
			t.Errorf("unexpected resolved text: %q", j.Prompt.Text)
		}
		if j.BlockPath != "0" {
			t.Errorf("expected all compositions at block \"0\", got %q", j.BlockPath)
		}
		delete(want, j.Prompt.Text)
	}
	if len(want) != 0 {
		t.Errorf("missing expected combinations: %v", want)
	}
}

func TestExpand_NestedAfterTwoChildren(t *testing.T) {
	jobDef := &model.JobDefinition{
		Prompts: []model.PromptDef{
			{
				ID: "p1",
				Text: []model.TextNode{
					{
						Content: "a portrait",
						After: []model.TextNode{
							{Content: "__x__", Checkpoint: boolPtr(true)},
							{Content: "__y__", Checkpoint: boolPtr(true)},
						},
					},
				},
				Wildcards: []model.Wildcard{
					{Name: "x", Values: []string{"v1", "v2", "v3"}},
					{Name: "y", Values: []string{"w1", "w2", "w3"}},
				},
			},
		},
	}
	jobs, err := Expand(jobDef, &GlobalConfig{}, baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 6 {
		t.Fatalf("expected 6 compositions, got %d", len(jobs))
	}
	counts := map[string]int{}
	for _, j := range jobs {
		counts[j.BlockPath]++
		if j.ParentPath != "0" {
			t.Errorf("expected parent path \"0\" for block %q, got %q", j.BlockPath, j.ParentPath)
		}
	}
	if counts["0.0"] != 3 || counts["0.1"] != 3 {
		t.Fatalf("expected 3 compositions at each child block, got %v", counts)
	}
}

func TestExpand_Determinism(t *testing.T) {
	jobDef := &model.JobDefinition{
		Prompts: []model.PromptDef{
			{
				ID:   "p1",
				Text: []model.TextNode{{Content: "a __x__ scene"}},
				Wildcards: []model.Wildcard{
					{Name: "x", Values: []string{"one", "two", "three", "four", "five"}},
				},
			},
		},
	}
	opts := baseOptions()
	opts.WildcardsMax = 2 // sample-N mode exercises the seeded rand.Perm path

	first, err := Expand(jobDef, &GlobalConfig{}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Expand(jobDef, &GlobalConfig{}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical job counts across runs, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Prompt.Text != second[i].Prompt.Text {
			t.Errorf("expected identical resolved text at index %d for the same composition id, got %q vs %q", i, first[i].Prompt.Text, second[i].Prompt.Text)
		}
	}
}

func TestExpand_OriginalIndexDenseAndUnique(t *testing.T) {
	jobDef := &model.JobDefinition{
		Loras: []model.LoraEntry{
			{Alias: "l1", Name: "/loras/l1.safetensors", Strength: 1.0},
		},
		Prompts: []model.PromptDef{
			{ID: "p1", Text: []model.TextNode{{Content: "a scene"}}, Loras: []string{"l1:0.2~~0.4"}},
		},
	}
	jobs, err := Expand(jobDef, &GlobalConfig{}, baseOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[int]bool{}
	for _, j := range jobs {
		if seen[j.OriginalIndex] {
			t.Fatalf("duplicate original_index %d", j.OriginalIndex)
		}
		seen[j.OriginalIndex] = true
	}
	for i := 1; i <= len(jobs); i++ {
		if !seen[i] {
			t.Fatalf("original_index is not dense 1..N: missing %d", i)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
