package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cybervaldez/promptyui/internal/model"
)

func TestStore_FlushBlock_ConsolidatesTextArtifactsIntoJSONL(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, 2)

	block := &model.Block{Path: "0", Jobs: []*model.JobRecord{{}, {}}}
	artifacts := []model.Artifact{
		{Name: "out-0.txt", Type: model.ArtifactText, ModID: "translator", Content: "hello", CompositionIdx: 0, BlockPath: "0"},
		{Name: "out-1.txt", Type: model.ArtifactText, ModID: "translator", Content: "world", CompositionIdx: 1, BlockPath: "0"},
	}

	err := store.FlushBlock("0", artifacts, block)
	require.NoError(t, err)

	jsonlPath := filepath.Join(dir, "_artifacts", "translator", "0.jsonl")
	data, err := os.ReadFile(jsonlPath)
	require.NoError(t, err)

	lines := splitLines(string(data))
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "hello", first["content"])
}

func TestStore_FlushBlock_WritesBinaryArtifactAsIndividualFile(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, 1)
	block := &model.Block{Path: "0", Jobs: []*model.JobRecord{{}}}

	artifacts := []model.Artifact{
		{Name: "image.png", Type: model.ArtifactImage, ModID: "generator", ContentBytes: []byte{0x89, 0x50, 0x4e, 0x47}, CompositionIdx: 0, BlockPath: "0"},
	}
	err := store.FlushBlock("0", artifacts, block)
	require.NoError(t, err)

	path := filepath.Join(dir, "_artifacts", "generator", "0", "image.png")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, data)
}

func TestStore_FlushBlock_WritesParseableManifest(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, 1)
	block := &model.Block{Path: "0", Jobs: []*model.JobRecord{{}}}
	artifacts := []model.Artifact{{Name: "a.txt", Type: model.ArtifactText, ModID: "m", Content: "x"}}

	require.NoError(t, store.FlushBlock("0", artifacts, block))

	manifestPath := filepath.Join(dir, "_artifacts", "manifest.json")
	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	var manifest model.Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Equal(t, 1, manifest.Run.BlocksComplete)
	require.Equal(t, 1, manifest.Run.BlocksTotal)
	require.Contains(t, manifest.Blocks, "0")
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
