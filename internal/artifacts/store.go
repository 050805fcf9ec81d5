// Package artifacts implements the artifact store (spec.md 4.6): text
// artifacts are consolidated into one NDJSON file per (mod, block) to
// prevent file explosion at scale; binary artifacts get individual files;
// a manifest.json is rewritten after every block flush.
package artifacts

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cybervaldez/promptyui/internal/model"
)

// Store implements executor.ArtifactSink, writing a completed block's
// artifacts to disk and keeping the run-wide manifest current.
type Store struct {
	mu          sync.Mutex
	outputPath  string
	totalBlocks int
	blocks      map[string][]model.Artifact
	blockMeta   map[string]*model.Block
}

// New returns a Store rooted at outputPath (the job directory; artifacts
// land under outputPath/_artifacts). totalBlocks is the run's total block
// count (executor.Stats().BlocksTotal), carried into manifest.json's
// run.blocks_total field.
func New(outputPath string, totalBlocks int) *Store {
	return &Store{
		outputPath:  outputPath,
		totalBlocks: totalBlocks,
		blocks:      map[string][]model.Artifact{},
		blockMeta:   map[string]*model.Block{},
	}
}

func (s *Store) artifactsRoot() string {
	return filepath.Join(s.outputPath, "_artifacts")
}

// FlushBlock writes one completed block's artifacts to disk: binary
// artifacts as individual files, text artifacts consolidated into
// {mod_id}/{block_path}.jsonl (one line per composition), then rewrites
// manifest.json. Satisfies executor.ArtifactSink.
func (s *Store) FlushBlock(blockPath string, blockArtifacts []model.Artifact, block *model.Block) error {
	if s.outputPath == "" || len(blockArtifacts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMod := map[string][]model.Artifact{}
	for _, a := range blockArtifacts {
		modID := a.ModID
		if modID == "" {
			modID = "_unknown"
		}
		byMod[modID] = append(byMod[modID], a)
	}

	stored := make([]model.Artifact, 0, len(blockArtifacts))
	for modID, artifacts := range byMod {
		modDir := filepath.Join(s.artifactsRoot(), modID)
		if err := os.MkdirAll(modDir, 0o755); err != nil {
			return fmt.Errorf("creating mod artifact dir %q: %w", modDir, err)
		}

		var textArtifacts []model.Artifact
		for _, a := range artifacts {
			if a.IsBinary() {
				if a.Name == "" {
					continue
				}
				artifactDir := filepath.Join(modDir, blockPath)
				if err := os.MkdirAll(artifactDir, 0o755); err != nil {
					return fmt.Errorf("creating binary artifact dir %q: %w", artifactDir, err)
				}
				path := filepath.Join(artifactDir, a.Name)
				if err := os.WriteFile(path, a.ContentBytes, 0o644); err != nil {
					return fmt.Errorf("writing binary artifact %q: %w", path, err)
				}
				rel, _ := filepath.Rel(s.outputPath, path)
				a.DiskPath = rel
				stored = append(stored, a)
				continue
			}
			textArtifacts = append(textArtifacts, a)
		}

		if len(textArtifacts) > 0 {
			written, err := s.writeTextArtifacts(modDir, blockPath, textArtifacts)
			if err != nil {
				return err
			}
			stored = append(stored, written...)
		}
	}

	s.blocks[blockPath] = append(s.blocks[blockPath], stored...)
	s.blockMeta[blockPath] = block

	return s.writeManifest()
}

func (s *Store) writeTextArtifacts(modDir, blockPath string, textArtifacts []model.Artifact) ([]model.Artifact, error) {
	jsonlPath := filepath.Join(modDir, blockPath+".jsonl")
	f, err := os.Create(jsonlPath)
	if err != nil {
		return nil, fmt.Errorf("creating artifact jsonl %q: %w", jsonlPath, err)
	}
	defer f.Close()

	rel, _ := filepath.Rel(s.outputPath, jsonlPath)

	writer := bufio.NewWriter(f)
	out := make([]model.Artifact, len(textArtifacts))
	for i, a := range textArtifacts {
		content := a.Content
		if content == "" {
			content = a.Preview
		}
		line := map[string]interface{}{
			"composition_idx": a.CompositionIdx,
			"name":            a.Name,
			"content":         content,
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("encoding artifact line: %w", err)
		}
		if _, err := writer.Write(append(encoded, '\n')); err != nil {
			return nil, fmt.Errorf("writing artifact jsonl %q: %w", jsonlPath, err)
		}

		a.DiskPath = rel
		lineIdx := i
		a.DiskLine = &lineIdx
		out[i] = a
	}
	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("flushing artifact jsonl %q: %w", jsonlPath, err)
	}
	return out, nil
}

// writeManifest rewrites _artifacts/manifest.json from the store's current
// in-memory state. Must be called with s.mu held.
func (s *Store) writeManifest() error {
	// FlushBlock is only called once a block's composition count reaches
	// its total (see executor.Executor.Execute), so every distinct key in
	// s.blocks represents one fully completed block.
	manifest := model.Manifest{
		Version: 3,
		Format:  "jsonl",
		Run: model.ManifestRun{
			Timestamp:      time.Now().Unix(),
			BlocksComplete: len(s.blocks),
			BlocksTotal:    s.totalBlocks,
		},
		Blocks: map[string]*model.ManifestBlock{},
	}
	for path, arts := range s.blocks {
		meta := s.blockMeta[path]
		mb := &model.ManifestBlock{Artifacts: arts, Count: len(arts)}
		if meta != nil {
			mb.DependsOn = meta.DependsOn
			mb.CompositionTotal = meta.Compositions()
		}
		manifest.Blocks[path] = mb
	}

	dir := s.artifactsRoot()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifacts dir %q: %w", dir, err)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing manifest %q: %w", path, err)
	}
	return nil
}

// BlocksComplete reports how many blocks currently have at least one
// flushed artifact, for manifest idempotence checks.
func (s *Store) BlocksComplete() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}
