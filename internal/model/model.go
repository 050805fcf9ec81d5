// Package model holds the data types shared by every stage of the prompt
// pipeline: wildcards and extensions loaded at job-build time, the flat job
// records produced by the expander, the block tree built by the executor,
// and the artifacts/manifest written to disk.
package model

// Wildcard is a named, ordered list of substitution values. Immutable once
// a job is loaded. Referenced in templates as __name__.
type Wildcard struct {
	Name   string   `json:"name" yaml:"name"`
	Values []string `json:"values" yaml:"values"`
}

// Extension is a reusable bundle of text snippets, wildcards and LoRA
// combination strings, scoped to a namespace.
type Extension struct {
	ID        string              `json:"id" yaml:"id"`
	Namespace string              `json:"namespace" yaml:"namespace"`
	TextLists map[string][]string `json:"text_lists,omitempty" yaml:"text_lists,omitempty"`
	Wildcards []Wildcard          `json:"wildcards,omitempty" yaml:"wildcards,omitempty"`
	Loras     []string            `json:"loras,omitempty" yaml:"loras,omitempty"`
}

// TextNode is one node of a nested content/after prompt text tree.
type TextNode struct {
	Content     string                 `json:"content,omitempty" yaml:"content,omitempty"`
	ExtText     string                 `json:"ext_text,omitempty" yaml:"ext_text,omitempty"`
	After       []TextNode             `json:"after,omitempty" yaml:"after,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	Checkpoint  *bool                  `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// PromptDef is a single entry under a job definition's "prompts" list.
type PromptDef struct {
	ID          string                 `json:"id" yaml:"id"`
	Ext         string                 `json:"ext,omitempty" yaml:"ext,omitempty"`
	Extends     []string               `json:"extends,omitempty" yaml:"extends,omitempty"`
	Wildcards   []Wildcard             `json:"wildcards,omitempty" yaml:"wildcards,omitempty"`
	Loras       []string               `json:"loras,omitempty" yaml:"loras,omitempty"`
	Text        []TextNode             `json:"text,omitempty" yaml:"text,omitempty"`
	Resolutions [][2]string            `json:"resolutions,omitempty" yaml:"resolutions,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	DependsOn   []string               `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Hooks       map[string][]HookSpec  `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	HooksNull   map[string]bool        `json:"-" yaml:"-"` // hook names the prompt removes via a null sentinel
	Mods        ModOverride            `json:"mods,omitempty" yaml:"mods,omitempty"`
	Skip        bool                   `json:"skip,omitempty" yaml:"skip,omitempty"`
	ExtTextMax  *int                   `json:"ext_text_max,omitempty" yaml:"ext_text_max,omitempty"`
	WildcardMax *int                   `json:"wildcards_max,omitempty" yaml:"wildcards_max,omitempty"`
	Checkpoint  *bool                  `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// ModOverride is the per-prompt enable/disable list for mod hooks.
type ModOverride struct {
	Enable  []string `json:"enable,omitempty" yaml:"enable,omitempty"`
	Disable []string `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// HookSpec names a registered hook function and its parameters.
type HookSpec struct {
	Script string                 `json:"script" yaml:"script"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// LoraEntry is one entry of a job definition's top-level "loras" library.
type LoraEntry struct {
	Alias               string   `json:"alias" yaml:"alias"`
	Name                string   `json:"name" yaml:"name"`
	Strength            float64  `json:"strength" yaml:"strength"`
	Triggers            []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	ExcludeFromDefaults bool     `json:"exclude_from_defaults,omitempty" yaml:"exclude_from_defaults,omitempty"`
}

// SamplerEntry is one entry of a job definition's "model.sampler" list. It
// may be a bare name (Name set, Config nil) or a mapping with fixed and/or
// list-valued (permutable) parameters.
type SamplerEntry struct {
	Name   string
	Config map[string]interface{}
	Skip   bool
}

// Defaults mirrors the job definition's top-level "defaults" block.
type Defaults struct {
	Ext              string                `json:"ext,omitempty" yaml:"ext,omitempty"`
	ExtTextMax       int                   `json:"ext_text_max,omitempty" yaml:"ext_text_max,omitempty"`
	WildcardsMax     int                   `json:"wildcards_max,omitempty" yaml:"wildcards_max,omitempty"`
	PromptsDelimiter string                `json:"prompts_delimiter,omitempty" yaml:"prompts_delimiter,omitempty"`
	TriggerDelimiter string                `json:"trigger_delimiter,omitempty" yaml:"trigger_delimiter,omitempty"`
	Hooks            map[string][]HookSpec `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	Width, Height    int                   `yaml:"-"`
	Steps            int                   `yaml:"-"`
	Cfg              float64               `yaml:"-"`
}

// JobDefinition is the parsed, in-memory form of a user-authored job
// document.
type JobDefinition struct {
	Defaults Defaults    `json:"defaults" yaml:"defaults"`
	Loras    []LoraEntry `json:"loras,omitempty" yaml:"loras,omitempty"`
	Model    ModelConfig `json:"model,omitempty" yaml:"model,omitempty"`
	Prompts  []PromptDef `json:"prompts" yaml:"prompts"`
}

// ModelConfig is the job definition's "model" block.
type ModelConfig struct {
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Sampler []SamplerEntry `json:"sampler,omitempty" yaml:"sampler,omitempty"`
}

// LoraConfig is a single resolved LoRA application within a job record.
type LoraConfig struct {
	Alias      string  `json:"alias"`
	Path       string  `json:"path"`
	Strength   float64 `json:"strength"`
	Trigger    string  `json:"trigger"`
	TriggerIdx int     `json:"trigger_idx"`
	Off        bool    `json:"off"`
}

// Params holds the resolved generation parameters of a job record.
type Params struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Steps  int     `json:"steps"`
	Cfg    float64 `json:"cfg"`
}

// ResolvedPrompt carries the final composed text and provenance for one
// job record.
type ResolvedPrompt struct {
	ID                string                 `json:"id"`
	Text              string                 `json:"text"`
	OriginalTemplate  string                 `json:"original_template,omitempty"`
	Annotations       map[string]interface{} `json:"annotations,omitempty"`
}

// JobRecord is one fully-expanded unit produced by the expander; one input
// to the tree executor.
type JobRecord struct {
	Prompt               ResolvedPrompt         `json:"prompt"`
	Loras                []LoraConfig           `json:"loras"`
	FilenameSuffix       string                 `json:"filename_suffix"`
	Sampler              string                 `json:"sampler,omitempty"`
	Scheduler            string                 `json:"scheduler,omitempty"`
	Params               Params                 `json:"params"`
	SamplerParams        map[string]interface{} `json:"sampler_params,omitempty"`
	OriginalIndex        int                    `json:"original_index"`
	BlockPath            string                 `json:"block_path"`
	ParentPath           string                 `json:"parent_path,omitempty"`
	DependsOn            []string               `json:"depends_on,omitempty"`
	WildcardUsage        map[string]WildcardPick `json:"wildcard_usage,omitempty"`
	ExtIndices           map[string]int         `json:"ext_indices,omitempty"`
	IsLeaf               bool                   `json:"is_leaf"`
	ResolutionExpression *[2]string             `json:"resolution_expressions,omitempty"`
	Hooks                map[string][]HookSpec  `json:"-"`
	Mods                 ModOverride            `json:"-"`
}

// WildcardPick records the value and 1-based index chosen for a wildcard
// during resolution, for deterministic filename/identity construction.
type WildcardPick struct {
	Value string `json:"value"`
	Index int    `json:"index"`
}

// Block is derived at executor-init time: one per distinct block path.
type Block struct {
	Path         string
	ParentPath   string
	DependsOn    []string
	Jobs         []*JobRecord
}

// Compositions returns the number of compositions (jobs) in the block.
func (b *Block) Compositions() int { return len(b.Jobs) }

// BlockState is the lifecycle state of a block as tracked by the executor.
type BlockState string

const (
	StateIdle     BlockState = "idle"
	StateDormant  BlockState = "dormant"
	StateRunning  BlockState = "running"
	StatePartial  BlockState = "partial"
	StatePaused   BlockState = "paused"
	StateComplete BlockState = "complete"
	StateFailed   BlockState = "failed"
	StateBlocked  BlockState = "blocked"
)

// HookStatus is the tagged status of a HookResult.
type HookStatus string

const (
	StatusSuccess   HookStatus = "success"
	StatusError     HookStatus = "error"
	StatusSkip      HookStatus = "skip"
	StatusStreaming HookStatus = "streaming"
)

// HookError carries a code/message pair for a failing HookResult.
type HookError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HookResult is the normalised return value of any hook script / function.
type HookResult struct {
	Status        HookStatus             `json:"status"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Error         *HookError             `json:"error,omitempty"`
	ModifyContext map[string]interface{} `json:"modify_context,omitempty"`
	Message       string                 `json:"message,omitempty"`
}

// HookContext is the value threaded through one composition's hook stages.
type HookContext struct {
	// Identity
	BlockPath         string
	ParentPath        string
	IsLeaf            bool
	BlockDepth        int
	CompositionIndex  int
	CompositionTotal  int

	// Content
	ResolvedText string
	PromptID     string
	Job          *JobRecord

	// Inheritance
	ParentResult *HookResult
	ResolveData  *HookResult

	// Namespaces
	Annotations map[string]interface{}
	Meta        map[string]interface{}

	// Cross-block read-only snapshots
	UpstreamArtifacts map[string][]Artifact
	BlockStates       map[string]BlockState
	BlockCompleted    map[string]int

	Hook string

	// User data map a hook may read/write locally; only ModifyContext from
	// the returned HookResult propagates to later hooks.
	Data map[string]interface{}
}

// ArtifactKind is the type tag of an Artifact.
type ArtifactKind string

const (
	ArtifactText  ArtifactKind = "text"
	ArtifactData  ArtifactKind = "data"
	ArtifactImage ArtifactKind = "image"
	ArtifactVideo ArtifactKind = "video"
	ArtifactFile  ArtifactKind = "file"
)

// Artifact is one output produced by a generate/post hook.
type Artifact struct {
	Name            string       `json:"name"`
	Type            ArtifactKind `json:"type"`
	ModID           string       `json:"mod_id"`
	CompositionIdx  int          `json:"composition_idx"`
	BlockPath       string       `json:"block_path"`
	Preview         string       `json:"preview,omitempty"`
	Content         string       `json:"content,omitempty"`
	ContentBytes    []byte       `json:"content_bytes,omitempty"`
	DiskPath        string       `json:"disk_path,omitempty"`
	DiskLine        *int         `json:"disk_line,omitempty"`
}

// IsBinary reports whether the artifact carries raw bytes rather than text.
func (a *Artifact) IsBinary() bool { return len(a.ContentBytes) > 0 }

// ManifestRun is the manifest's run header.
type ManifestRun struct {
	Timestamp      int64 `json:"timestamp"`
	BlocksComplete int   `json:"blocks_complete"`
	BlocksTotal    int   `json:"blocks_total"`
}

// ManifestBlock is one entry of the manifest's "blocks" mapping.
type ManifestBlock struct {
	Artifacts        []Artifact `json:"artifacts"`
	Count            int        `json:"count"`
	DependsOn        []string   `json:"depends_on,omitempty"`
	CompositionTotal int        `json:"composition_total"`
}

// Manifest is the on-disk summary of all artifacts for a run.
type Manifest struct {
	Version int                      `json:"version"`
	Format  string                   `json:"format"`
	Run     ManifestRun              `json:"run"`
	Blocks  map[string]*ManifestBlock `json:"blocks"`
}

// Session is per-prompt UI-side state; the engine never reads it, only the
// external API persists it.
type Session struct {
	PromptID       string                 `json:"prompt_id"`
	Composition    int                    `json:"composition"`
	LockedValues   map[string]interface{} `json:"locked_values,omitempty"`
	ActiveOperation string                `json:"active_operation,omitempty"`
	Shortlist      []int                  `json:"shortlist,omitempty"`
}

// Operation is a build-time wildcard-value rewrite applied before
// generation.
type Operation struct {
	Name     string                       `json:"name"`
	Mappings map[string]map[string]string `json:"mappings"`
}
