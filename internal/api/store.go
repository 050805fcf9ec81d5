// Package api implements the HTTP/SSE surface spec.md section 6 describes:
// job listing, preview/validate/export, per-prompt session state, operation
// files, and the live pipeline SSE stream plus its artifact manifest.
package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cybervaldez/promptyui/internal/model"
)

// JobSummary is the per-job entry returned by GET /jobs.
type JobSummary struct {
	ID          string   `json:"id"`
	Valid       bool     `json:"valid"`
	Error       string   `json:"error,omitempty"`
	PromptIDs   []string `json:"prompt_ids"`
	LoraAliases []string `json:"lora_aliases"`
	Defaults    model.Defaults `json:"defaults"`
}

// ExtensionNode is one entry of the tree GET /extensions returns.
type ExtensionNode struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	IsDir    bool            `json:"is_dir"`
	Children []ExtensionNode `json:"children,omitempty"`
}

// Store reads and writes the file-backed state spec.md 1 calls "deliberately
// out of scope" for the engine proper (YAML file I/O) but that the HTTP
// surface must still own, since it fronts that state for a UI.
type Store struct {
	jobsRoot       string
	extensionsRoot string
}

// NewStore roots a Store at the given jobs and extensions directories.
func NewStore(jobsRoot, extensionsRoot string) *Store {
	return &Store{jobsRoot: jobsRoot, extensionsRoot: extensionsRoot}
}

func (s *Store) jobDir(id string) string { return filepath.Join(s.jobsRoot, id) }

// ListJobIDs lists every directory under the jobs root containing a job.yaml.
func (s *Store) ListJobIDs() ([]string, error) {
	entries, err := os.ReadDir(s.jobsRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading jobs root %q: %w", s.jobsRoot, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.jobDir(e.Name()), "job.yaml")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadJob parses {jobsRoot}/{id}/job.yaml into a model.JobDefinition.
func (s *Store) LoadJob(id string) (*model.JobDefinition, error) {
	path := filepath.Join(s.jobDir(id), "job.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job %q: %w", id, err)
	}
	var def model.JobDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing job %q: %w", id, err)
	}
	return &def, nil
}

// SaveJob writes def as YAML to {jobsRoot}/{id}/job.yaml. When backup is
// true, the previous document (if any) is preserved alongside a Unix-time
// suffix before being overwritten.
func (s *Store) SaveJob(id string, def *model.JobDefinition, backup bool) error {
	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating job dir %q: %w", dir, err)
	}
	path := filepath.Join(dir, "job.yaml")

	if backup {
		if existing, err := os.ReadFile(path); err == nil {
			backupPath := filepath.Join(dir, fmt.Sprintf("job.%d.yaml.bak", time.Now().Unix()))
			if err := os.WriteFile(backupPath, existing, 0o644); err != nil {
				return fmt.Errorf("writing job backup %q: %w", backupPath, err)
			}
		}
	}

	encoded, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding job %q: %w", id, err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing job %q: %w", id, err)
	}
	return nil
}

// ExtensionTree walks the extensions root into a nested node list.
func (s *Store) ExtensionTree() ([]ExtensionNode, error) {
	return s.walkExtensions(s.extensionsRoot, "")
}

func (s *Store) walkExtensions(dir, relPrefix string) ([]ExtensionNode, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading extensions dir %q: %w", dir, err)
	}
	var nodes []ExtensionNode
	for _, e := range entries {
		rel := e.Name()
		if relPrefix != "" {
			rel = relPrefix + "/" + e.Name()
		}
		if e.IsDir() {
			children, err := s.walkExtensions(filepath.Join(dir, e.Name()), rel)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, ExtensionNode{Name: e.Name(), Path: rel, IsDir: true, Children: children})
			continue
		}
		if !strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml") {
			continue
		}
		nodes = append(nodes, ExtensionNode{Name: e.Name(), Path: rel})
	}
	return nodes, nil
}

// ReadExtension returns the raw content of one extension file, addressed by
// its tree-relative path.
func (s *Store) ReadExtension(path string) ([]byte, error) {
	clean := filepath.Clean(filepath.Join(s.extensionsRoot, path))
	if !strings.HasPrefix(clean, filepath.Clean(s.extensionsRoot)) {
		return nil, fmt.Errorf("extension path %q escapes extensions root", path)
	}
	raw, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("reading extension %q: %w", path, err)
	}
	return raw, nil
}

// LoadExtensions parses every extension file under the extensions root into
// a flat model.Extension list, for expander.GlobalConfig.
func (s *Store) LoadExtensions() ([]model.Extension, error) {
	var out []model.Extension
	err := filepath.Walk(s.extensionsRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() || (!strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml")) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading extension %q: %w", path, err)
		}
		var ext model.Extension
		if err := yaml.Unmarshal(raw, &ext); err != nil {
			return fmt.Errorf("parsing extension %q: %w", path, err)
		}
		out = append(out, ext)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// LoadSession reads {jobsRoot}/{id}/session.json, defaulting to an empty map.
func (s *Store) LoadSession(jobID string) (map[string]interface{}, error) {
	path := filepath.Join(s.jobDir(jobID), "session.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %q: %w", jobID, err)
	}
	var session map[string]interface{}
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("parsing session %q: %w", jobID, err)
	}
	return session, nil
}

// WriteSession persists the full session map for a job.
func (s *Store) WriteSession(jobID string, session map[string]interface{}) error {
	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating job dir %q: %w", dir, err)
	}
	encoded, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %q: %w", jobID, err)
	}
	return os.WriteFile(filepath.Join(dir, "session.json"), encoded, 0o644)
}

// ListOperations lists operation file names (without extension) under a
// job's operations directory.
func (s *Store) ListOperations(jobID string) ([]string, error) {
	dir := filepath.Join(s.jobDir(jobID), "operations")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading operations dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) operationPath(jobID, name string) string {
	return filepath.Join(s.jobDir(jobID), "operations", name+".yaml")
}

// LoadOperation parses one operation file's mappings.
func (s *Store) LoadOperation(jobID, name string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(s.operationPath(jobID, name))
	if err != nil {
		return nil, fmt.Errorf("reading operation %q: %w", name, err)
	}
	var mapping map[string]interface{}
	if err := yaml.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parsing operation %q: %w", name, err)
	}
	return mapping, nil
}

// SaveOperation writes one operation file's mappings.
func (s *Store) SaveOperation(jobID, name string, mapping map[string]interface{}) error {
	dir := filepath.Join(s.jobDir(jobID), "operations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating operations dir %q: %w", dir, err)
	}
	encoded, err := yaml.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("encoding operation %q: %w", name, err)
	}
	return os.WriteFile(s.operationPath(jobID, name), encoded, 0o644)
}

// JobOutputDir is where a job's run artifacts (and _artifacts/manifest.json)
// live, per internal/artifacts.Store's outputPath convention.
func (s *Store) JobOutputDir(jobID string) string { return s.jobDir(jobID) }
