package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/labstack/echo/v4"

	"github.com/cybervaldez/promptyui/internal/artifacts"
	"github.com/cybervaldez/promptyui/internal/events"
	"github.com/cybervaldez/promptyui/internal/expander"
	"github.com/cybervaldez/promptyui/internal/hooks"
	"github.com/cybervaldez/promptyui/internal/logging"
	"github.com/cybervaldez/promptyui/internal/model"
)

// Handler implements the spec section 6 HTTP/SSE surface.
type Handler struct {
	store    *Store
	registry *hooks.Registry
	opts     expander.Options
	logger   *logging.Logger
	streams  *StreamRegistry
}

// NewHandler builds a Handler over a Store, the process's hook function
// registry and expander tuning knobs (internal/config.EngineConfig).
func NewHandler(store *Store, registry *hooks.Registry, opts expander.Options, logger *logging.Logger) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		opts:     opts,
		logger:   logger,
		streams:  NewStreamRegistry(),
	}
}

func httpError(status int, format string, args ...interface{}) error {
	return echo.NewHTTPError(status, map[string]interface{}{"error": fmt.Sprintf(format, args...)})
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(c echo.Context) error {
	ids, err := h.store.ListJobIDs()
	if err != nil {
		return httpError(http.StatusInternalServerError, "listing jobs: %v", err)
	}

	summaries := make([]JobSummary, 0, len(ids))
	for _, id := range ids {
		def, err := h.store.LoadJob(id)
		if err != nil {
			summaries = append(summaries, JobSummary{ID: id, Valid: false, Error: err.Error()})
			continue
		}
		aliases := make([]string, 0, len(def.Loras))
		for _, l := range def.Loras {
			aliases = append(aliases, l.Alias)
		}
		promptIDs := make([]string, 0, len(def.Prompts))
		for _, p := range def.Prompts {
			promptIDs = append(promptIDs, p.ID)
		}
		summaries = append(summaries, JobSummary{
			ID: id, Valid: true, PromptIDs: promptIDs,
			LoraAliases: aliases, Defaults: def.Defaults,
		})
	}
	return c.JSON(http.StatusOK, summaries)
}

// GetJob handles GET /job/{id}.
func (h *Handler) GetJob(c echo.Context) error {
	id := c.Param("id")
	def, err := h.store.LoadJob(id)
	if err != nil {
		return httpError(http.StatusNotFound, "job %q: %v", id, err)
	}
	return c.JSON(http.StatusOK, def)
}

// ListExtensions handles GET /extensions.
func (h *Handler) ListExtensions(c echo.Context) error {
	tree, err := h.store.ExtensionTree()
	if err != nil {
		return httpError(http.StatusInternalServerError, "listing extensions: %v", err)
	}
	return c.JSON(http.StatusOK, tree)
}

// GetExtension handles GET /extension/{path}.
func (h *Handler) GetExtension(c echo.Context) error {
	path := c.Param("*")
	raw, err := h.store.ReadExtension(path)
	if err != nil {
		return httpError(http.StatusNotFound, "extension %q: %v", path, err)
	}
	return c.Blob(http.StatusOK, "application/x-yaml", raw)
}

// PreviewRequest is the body of POST /preview.
type PreviewRequest struct {
	JobID          string              `json:"job_id"`
	PromptID       string              `json:"prompt_id,omitempty"`
	Text           string              `json:"text,omitempty"`
	Wildcards      map[string][]string `json:"wildcards,omitempty"`
	IncludeNested  bool                `json:"include_nested"`
	Limit          int                 `json:"limit"`
}

// PreviewItem is one resolved variation returned by POST /preview.
type PreviewItem struct {
	Path           string                 `json:"path"`
	WildcardValues map[string]model.WildcardPick `json:"wildcard_values,omitempty"`
	ExtIndices     map[string]int         `json:"ext_indices,omitempty"`
	Annotations    map[string]interface{} `json:"annotations,omitempty"`
}

// PreviewResponse is POST /preview's response body.
type PreviewResponse struct {
	Items     []PreviewItem  `json:"items"`
	Total     int            `json:"total"`
	Breakdown map[string]int `json:"breakdown"`
}

// Preview handles POST /preview: expand one prompt (optionally with an
// overridden text/wildcards) and return up to limit resolved variations.
func (h *Handler) Preview(c echo.Context) error {
	var req PreviewRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "invalid preview request: %v", err)
	}

	def, err := h.store.LoadJob(req.JobID)
	if err != nil {
		return httpError(http.StatusNotFound, "job %q: %v", req.JobID, err)
	}

	prompt, err := selectPrompt(def, req.PromptID)
	if err != nil {
		return httpError(http.StatusBadRequest, "%v", err)
	}
	if req.Text != "" {
		prompt.Text = []model.TextNode{{Content: req.Text}}
	}
	for name, values := range req.Wildcards {
		prompt.Wildcards = append(prompt.Wildcards, model.Wildcard{Name: name, Values: values})
	}

	global, err := h.globalConfig()
	if err != nil {
		return httpError(http.StatusInternalServerError, "loading extensions: %v", err)
	}

	single := *def
	single.Prompts = []model.PromptDef{*prompt}
	opts := h.opts
	opts.CompositionID = time.Now().UnixNano()
	if len(def.Model.Sampler) > 0 {
		opts.Samplers = def.Model.Sampler
	}

	jobs, err := expander.Expand(&single, global, opts)
	if err != nil {
		return httpError(http.StatusBadRequest, "expansion failed: %v", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > len(jobs) {
		limit = len(jobs)
	}

	items := make([]PreviewItem, 0, limit)
	breakdown := map[string]int{}
	for _, j := range jobs {
		root := j.BlockPath
		if idx := strings.IndexByte(root, '.'); idx >= 0 {
			root = root[:idx]
		}
		breakdown[root]++
	}
	for _, j := range jobs[:limit] {
		items = append(items, PreviewItem{
			Path:           j.BlockPath,
			WildcardValues: j.WildcardUsage,
			ExtIndices:     j.ExtIndices,
			Annotations:    j.Prompt.Annotations,
		})
	}

	return c.JSON(http.StatusOK, PreviewResponse{Items: items, Total: len(jobs), Breakdown: breakdown})
}

// ValidateRequest is the body of POST /validate.
type ValidateRequest struct {
	JobID string              `json:"job_id,omitempty"`
	Job   *model.JobDefinition `json:"job,omitempty"`
}

// ValidateResponse is POST /validate's response body.
type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// Validate handles POST /validate: syntactic validation via a dry-run
// expansion, plus semantic checks (dangling extends/depends_on/lora
// references, resolution-expression syntax).
func (h *Handler) Validate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "invalid validate request: %v", err)
	}

	def := req.Job
	if def == nil {
		if req.JobID == "" {
			return httpError(http.StatusBadRequest, "job_id or job is required")
		}
		loaded, err := h.store.LoadJob(req.JobID)
		if err != nil {
			return httpError(http.StatusNotFound, "job %q: %v", req.JobID, err)
		}
		def = loaded
	}

	resp := ValidateResponse{Valid: true, Warnings: []string{}, Errors: []string{}}

	global, err := h.globalConfig()
	if err != nil {
		return httpError(http.StatusInternalServerError, "loading extensions: %v", err)
	}
	opts := h.opts
	opts.CompositionID = 1
	if len(def.Model.Sampler) > 0 {
		opts.Samplers = def.Model.Sampler
	}
	if _, err := expander.Expand(def, global, opts); err != nil {
		resp.Valid = false
		resp.Errors = append(resp.Errors, err.Error())
	}

	ids := map[string]bool{}
	for _, p := range def.Prompts {
		ids[p.ID] = true
	}
	aliases := map[string]bool{}
	for _, l := range def.Loras {
		aliases[l.Alias] = true
	}

	for _, p := range def.Prompts {
		for _, dep := range p.DependsOn {
			target := dep
			if idx := strings.IndexByte(target, ':'); idx >= 0 {
				target = target[:idx]
			}
			if !ids[target] && !strings.Contains(target, ".") {
				resp.Warnings = append(resp.Warnings, fmt.Sprintf("prompt %q depends_on unknown id %q", p.ID, dep))
			}
		}
		for _, combo := range p.Loras {
			for _, part := range strings.Split(combo, "+") {
				alias := part
				if idx := strings.IndexByte(alias, ':'); idx >= 0 {
					alias = alias[:idx]
				}
				if !aliases[alias] {
					resp.Warnings = append(resp.Warnings, fmt.Sprintf("prompt %q references unknown lora alias %q", p.ID, alias))
				}
			}
		}
		for _, r := range p.Resolutions {
			for _, expr := range r {
				if expr == "" {
					continue
				}
				if err := validateCELExpression(expr); err != nil {
					resp.Errors = append(resp.Errors, fmt.Sprintf("prompt %q resolution expression %q: %v", p.ID, expr, err))
					resp.Valid = false
				}
			}
		}
	}

	if len(resp.Errors) > 0 {
		resp.Valid = false
	}
	return c.JSON(http.StatusOK, resp)
}

func validateCELExpression(expr string) error {
	env, err := cel.NewEnv(cel.Variable("width", cel.IntType), cel.Variable("height", cel.IntType))
	if err != nil {
		return err
	}
	_, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

// ExportRequest is the body of POST /export.
type ExportRequest struct {
	JobID string               `json:"job_id"`
	Job   model.JobDefinition  `json:"job"`
	Save  bool                 `json:"save"`
	Backup bool                `json:"backup"`
}

// Export handles POST /export: serializes (and optionally persists, with a
// timestamped backup) a modified job document.
func (h *Handler) Export(c echo.Context) error {
	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return httpError(http.StatusBadRequest, "invalid export request: %v", err)
	}
	if req.Save {
		if req.JobID == "" {
			return httpError(http.StatusBadRequest, "job_id is required to save")
		}
		if err := h.store.SaveJob(req.JobID, &req.Job, req.Backup); err != nil {
			return httpError(http.StatusInternalServerError, "saving job %q: %v", req.JobID, err)
		}
		if h.logger != nil {
			h.logger.Info("exported job", "job_id", req.JobID, "backup", req.Backup)
		}
	}
	return c.JSON(http.StatusOK, req.Job)
}

// GetSession handles GET /job/{id}/session.
func (h *Handler) GetSession(c echo.Context) error {
	id := c.Param("id")
	session, err := h.store.LoadSession(id)
	if err != nil {
		return httpError(http.StatusInternalServerError, "loading session %q: %v", id, err)
	}
	return c.JSON(http.StatusOK, session)
}

// PostSession handles POST /job/{id}/session: a JSON merge-patch (RFC 7396)
// against the existing session document.
func (h *Handler) PostSession(c echo.Context) error {
	id := c.Param("id")
	patch, err := readBody(c)
	if err != nil {
		return httpError(http.StatusBadRequest, "reading patch body: %v", err)
	}

	session, err := h.store.LoadSession(id)
	if err != nil {
		return httpError(http.StatusInternalServerError, "loading session %q: %v", id, err)
	}
	current, err := jsonMarshal(session)
	if err != nil {
		return httpError(http.StatusInternalServerError, "encoding session %q: %v", id, err)
	}
	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return httpError(http.StatusBadRequest, "applying session merge-patch: %v", err)
	}
	var mergedSession map[string]interface{}
	if err := jsonUnmarshalInto(merged, &mergedSession); err != nil {
		return httpError(http.StatusInternalServerError, "parsing merged session: %v", err)
	}
	if err := h.store.WriteSession(id, mergedSession); err != nil {
		return httpError(http.StatusInternalServerError, "saving session %q: %v", id, err)
	}
	return c.JSON(http.StatusOK, mergedSession)
}

// ListOperations handles GET /job/{id}/operations.
func (h *Handler) ListOperations(c echo.Context) error {
	id := c.Param("id")
	names, err := h.store.ListOperations(id)
	if err != nil {
		return httpError(http.StatusInternalServerError, "listing operations for %q: %v", id, err)
	}
	return c.JSON(http.StatusOK, names)
}

// GetOperation handles GET /job/{id}/operation/{name}.
func (h *Handler) GetOperation(c echo.Context) error {
	id, name := c.Param("id"), c.Param("name")
	mapping, err := h.store.LoadOperation(id, name)
	if err != nil {
		return httpError(http.StatusNotFound, "operation %q: %v", name, err)
	}
	return c.JSON(http.StatusOK, mapping)
}

// PostOperation handles POST /job/{id}/operation/{name}.
func (h *Handler) PostOperation(c echo.Context) error {
	id, name := c.Param("id"), c.Param("name")
	var mapping map[string]interface{}
	if err := c.Bind(&mapping); err != nil {
		return httpError(http.StatusBadRequest, "invalid operation body: %v", err)
	}
	if err := h.store.SaveOperation(id, name, mapping); err != nil {
		return httpError(http.StatusInternalServerError, "saving operation %q: %v", name, err)
	}
	return c.JSON(http.StatusOK, mapping)
}

// RunPipeline handles GET /job/{id}/pipeline/run?prompt_id=...: an SSE
// stream of the canonical event catalog (internal/events).
func (h *Handler) RunPipeline(c echo.Context) error {
	id := c.Param("id")
	promptID := c.QueryParam("prompt_id")

	if h.streams.Active(id) {
		return httpError(http.StatusConflict, "job %q already has an active pipeline stream", id)
	}

	def, err := h.store.LoadJob(id)
	if err != nil {
		return httpError(http.StatusNotFound, "job %q: %v", id, err)
	}
	if promptID != "" {
		prompt, err := selectPrompt(def, promptID)
		if err != nil {
			return httpError(http.StatusBadRequest, "%v", err)
		}
		filtered := *def
		filtered.Prompts = []model.PromptDef{*prompt}
		def = &filtered
	}

	global, err := h.globalConfig()
	if err != nil {
		return httpError(http.StatusInternalServerError, "loading extensions: %v", err)
	}
	opts := h.opts
	opts.CompositionID = time.Now().UnixNano()
	if len(def.Model.Sampler) > 0 {
		opts.Samplers = def.Model.Sampler
	}

	jobs, err := expander.Expand(def, global, opts)
	if err != nil {
		return httpError(http.StatusBadRequest, "expansion failed: %v", err)
	}

	blockPaths := make([]string, 0, len(jobs))
	seenPaths := map[string]bool{}
	for _, j := range jobs {
		if !seenPaths[j.BlockPath] {
			seenPaths[j.BlockPath] = true
			blockPaths = append(blockPaths, j.BlockPath)
		}
	}

	outputDir := h.store.JobOutputDir(id)
	sink := artifacts.New(outputDir, countBlocks(jobs))
	pipeline := hooks.NewPipeline(mergedHookConfig(def), h.registry)

	stream := events.New(pipeline, jobs, events.RunMeta{
		JobID: id, PromptID: promptID, BlockPaths: blockPaths, TotalJobs: len(jobs),
	}, outputDir, true, sink)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	stream.OnEvent(func(e events.Event) {
		writeSSEEvent(res, e)
	})

	h.streams.Register(id, stream.Stop)
	defer h.streams.Unregister(id)

	if h.logger != nil {
		h.logger.Info("pipeline run started", "job_id", id, "prompt_id", promptID, "total_jobs", len(jobs))
	}
	if _, err := stream.Run(); err != nil {
		writeSSEEvent(res, events.Event{Type: "error", Data: map[string]interface{}{"message": err.Error()}})
	}
	return nil
}

func writeSSEEvent(res *echo.Response, e events.Event) {
	payload, err := jsonMarshal(e.Data)
	if err != nil {
		payload = []byte("{}")
	}
	fmt.Fprintf(res, "event: %s\ndata: %s\n\n", e.Type, payload)
	res.Flush()
}

// StopPipeline handles GET /job/{id}/pipeline/stop.
func (h *Handler) StopPipeline(c echo.Context) error {
	id := c.Param("id")
	if !h.streams.Stop(id) {
		return httpError(http.StatusNotFound, "job %q has no active pipeline stream", id)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"stopped": true})
}

// GetArtifactsManifest handles GET /job/{id}/artifacts.
func (h *Handler) GetArtifactsManifest(c echo.Context) error {
	id := c.Param("id")
	path := filepath.Join(h.store.JobOutputDir(id), "_artifacts", "manifest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return httpError(http.StatusNotFound, "manifest for job %q: %v", id, err)
	}
	return c.Blob(http.StatusOK, "application/json", raw)
}

// GetArtifactFile handles GET /job/{id}/artifacts/{mod_id}/{filename}. A
// ?line=N query on an NDJSON file returns that 0-indexed line's JSON object
// instead of the whole file, per spec.md section 6.
func (h *Handler) GetArtifactFile(c echo.Context) error {
	id, modID, filename := c.Param("id"), c.Param("mod_id"), c.Param("filename")
	path := filepath.Join(h.store.JobOutputDir(id), "_artifacts", modID, filename)

	lineParam := c.QueryParam("line")
	if lineParam == "" || !strings.HasSuffix(filename, ".jsonl") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return httpError(http.StatusNotFound, "artifact %q: %v", filename, err)
		}
		return c.Blob(http.StatusOK, contentTypeFor(filename), raw)
	}

	lineNum, err := strconv.Atoi(lineParam)
	if err != nil || lineNum < 0 {
		return httpError(http.StatusBadRequest, "invalid line %q", lineParam)
	}
	line, err := readNDJSONLine(path, lineNum)
	if err != nil {
		return httpError(http.StatusNotFound, "artifact %q line %d: %v", filename, lineNum, err)
	}
	return c.Blob(http.StatusOK, "application/json", line)
}

func contentTypeFor(filename string) string {
	switch filepath.Ext(filename) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json", ".jsonl":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func readNDJSONLine(path string, n int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx := 0
	start := 0
	for i, b := range raw {
		if b != '\n' {
			continue
		}
		if idx == n {
			return raw[start:i], nil
		}
		idx++
		start = i + 1
	}
	if idx == n && start < len(raw) {
		return raw[start:], nil
	}
	return nil, fmt.Errorf("line %d not found", n)
}

func selectPrompt(def *model.JobDefinition, promptID string) (*model.PromptDef, error) {
	if promptID == "" {
		if len(def.Prompts) == 0 {
			return nil, fmt.Errorf("job has no prompts")
		}
		p := def.Prompts[0]
		return &p, nil
	}
	for _, p := range def.Prompts {
		if p.ID == promptID {
			cp := p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("prompt %q not found", promptID)
}

func (h *Handler) globalConfig() (*expander.GlobalConfig, error) {
	extensions, err := h.store.LoadExtensions()
	if err != nil {
		return nil, err
	}
	return &expander.GlobalConfig{Extensions: extensions}, nil
}

func mergedHookConfig(def *model.JobDefinition) map[string][]model.HookSpec {
	merged := map[string][]model.HookSpec{}
	for k, v := range def.Defaults.Hooks {
		merged[k] = v
	}
	for _, p := range def.Prompts {
		nullStages := p.HooksNull
		merged = hooks.MergeHooks(merged, p.Hooks, nullStages)
	}
	return merged
}

func countBlocks(jobs []*model.JobRecord) int {
	seen := map[string]bool{}
	for _, j := range jobs {
		seen[j.BlockPath] = true
	}
	return len(seen)
}
