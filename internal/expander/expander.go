// Package expander implements the job expander (spec.md 4.2): turning a
// declarative job definition into a flat, ordered list of model.JobRecord
// values tagged with block-path metadata, ready for the tree executor.
package expander

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
	"github.com/cybervaldez/promptyui/internal/resolver"
)

// GlobalConfig carries every loaded extension plus system-level settings
// (the filename-suffix field configuration) available to every job.
type GlobalConfig struct {
	Extensions   []model.Extension
	SuffixFields []SuffixFieldConfig
}

// Options are the tuning knobs spec.md 4.2 requires as expander input.
type Options struct {
	RangeIncrement   float64
	WildcardsMax     int
	ExtTextMax       int
	PromptsDelimiter string
	DefaultExt       string
	CompositionID    int64
	Samplers         []model.SamplerEntry
	DefaultParams    model.Params
}

// Expand is the main entry point: it runs Phase 1 (per-prompt text/wildcard
// expansion), Phase 2 (LoRA/sampler/resolution permutation) and Phase 3
// (finalization) and returns the flat, sorted job record list.
func Expand(jobDef *model.JobDefinition, global *GlobalConfig, opts Options) ([]*model.JobRecord, error) {
	rnd := rand.New(rand.NewSource(opts.CompositionID))

	library, defaultLoras := buildLibrary(jobDef.Loras)

	type expandedPrompt struct {
		prompt     model.PromptDef
		loras      []string
		variation  variation
	}

	var expanded []expandedPrompt

	rootIndex := 0
	for _, p := range jobDef.Prompts {
		if p.Skip {
			continue
		}
		root := strconv.Itoa(rootIndex)
		rootIndex++

		currentWildcards := append([]model.Wildcard{}, p.Wildcards...)
		currentLoras := append([]string{}, p.Loras...)
		textComponents := map[string][]string{}

		if err := processExtends(&p, global, opts, rnd, &currentWildcards, &currentLoras, textComponents); err != nil {
			return nil, err
		}

		lookup := resolver.NewLookup(currentWildcards)
		extTexts := collectExtTexts(p.Text, global.Extensions, pickNamespace(p, opts))

		wildcardsMax := opts.WildcardsMax
		if p.WildcardMax != nil {
			wildcardsMax = *p.WildcardMax
		}
		extTextMax := opts.ExtTextMax
		if p.ExtTextMax != nil {
			extTextMax = *p.ExtTextMax
		}
		defaultLeaf := false
		if p.Checkpoint != nil {
			defaultLeaf = *p.Checkpoint
		}

		variations, err := buildTextVariations(rnd, p.Text, extTexts, extTextMax, wildcardsMax, lookup, root, defaultLeaf)
		if err != nil {
			return nil, fmt.Errorf("expanding prompt %q: %w", p.ID, err)
		}

		// Fold in any extension-merged flat text components (legacy-style
		// "extends" targeting a text* key) via simple Cartesian-join onto
		// every variation produced above.
		if len(textComponents) > 0 {
			variations = joinExtendedTextComponents(variations, textComponents, opts.PromptsDelimiter)
		}

		for _, v := range variations {
			expanded = append(expanded, expandedPrompt{prompt: p, loras: pickLoras(currentLoras, defaultLoras), variation: v})
		}
	}

	var temp []*model.JobRecord
	for _, ep := range expanded {
		jobs, err := expandLoras(ep.prompt, ep.variation, ep.loras, library, opts)
		if err != nil {
			return nil, err
		}
		jobs = expandResolutionsForPrompt(jobs, ep.prompt.Resolutions)
		temp = append(temp, jobs...)
	}

	withSamplers := expandSamplers(temp, opts)
	return assignIndicesAndSort(withSamplers), nil
}

func buildLibrary(entries []model.LoraEntry) (map[string]libraryEntry, []string) {
	library := map[string]libraryEntry{}
	var defaults []string
	for _, e := range entries {
		if e.Alias == "" || e.Name == "" {
			continue
		}
		library[e.Alias] = libraryEntry{Path: e.Name, Strength: e.Strength, Triggers: e.Triggers}
		if !e.ExcludeFromDefaults {
			defaults = append(defaults, e.Alias)
		}
	}
	return library, defaults
}

func pickLoras(promptLoras, defaultLoras []string) []string {
	if len(promptLoras) > 0 {
		return promptLoras
	}
	return defaultLoras
}

func pickNamespace(p model.PromptDef, opts Options) string {
	if p.Ext != "" {
		return p.Ext
	}
	return opts.DefaultExt
}

func findExtension(extensions []model.Extension, id, namespace string) *model.Extension {
	for i := range extensions {
		if extensions[i].ID == id && extensions[i].Namespace == namespace {
			return &extensions[i]
		}
	}
	for i := range extensions {
		if extensions[i].ID == id {
			return &extensions[i]
		}
	}
	return nil
}

// processExtends resolves the "extends" directive list (spec.md 4.2 step 1)
// into the prompt's local wildcard/lora lists and text components.
func processExtends(p *model.PromptDef, global *GlobalConfig, opts Options, rnd *rand.Rand, wildcards *[]model.Wildcard, loras *[]string, textComponents map[string][]string) error {
	if len(p.Extends) == 0 {
		return nil
	}
	namespace := pickNamespace(*p, opts)

	for _, pathStr := range p.Extends {
		sourcePath := pathStr
		explicitTarget := ""
		if idx := strings.Index(pathStr, ":"); idx >= 0 {
			sourcePath = strings.TrimSpace(pathStr[:idx])
			explicitTarget = strings.TrimSpace(pathStr[idx+1:])
		}

		parts := strings.Split(sourcePath, ".")
		isRandomMode := len(parts) > 0 && parts[len(parts)-1] == "one"
		base := parts
		if isRandomMode {
			base = parts[:len(parts)-1]
		}

		var extID, extKey string
		switch len(base) {
		case 1:
			extID = base[0]
		case 2:
			extID, extKey = base[0], base[1]
		default:
			return &ExtensionError{Msg: fmt.Sprintf("invalid extension source path: %q", sourcePath)}
		}

		found := findExtension(global.Extensions, extID, namespace)
		if found == nil {
			return &ExtensionError{Msg: fmt.Sprintf("extension id %q not found in namespace %q or global config", extID, namespace)}
		}

		isWildcardTarget := extKey == "wildcards" || (extKey == "" && !isRandomMode)
		if isWildcardTarget && found.Wildcards != nil {
			mergeWildcards(wildcards, found.Wildcards)
		}

		isLoraTarget := extKey == "loras" || extKey == ""
		if isLoraTarget && found.Loras != nil {
			if isRandomMode && extKey == "loras" {
				*loras = append(*loras, found.Loras[rnd.Intn(len(found.Loras))])
			} else if extKey == "loras" || (extKey == "" && !isRandomMode) {
				*loras = append(*loras, found.Loras...)
			}
		}

		if extKey != "wildcards" && extKey != "loras" {
			textValues := found.TextLists["text"]
			if extKey != "" {
				textValues = found.TextLists[extKey]
			}
			extTextMax := opts.ExtTextMax
			if p.ExtTextMax != nil {
				extTextMax = *p.ExtTextMax
			}
			textValues = resolver.ApplyTextConsumptionMode(rnd, textValues, extTextMax)

			target := "text"
			if explicitTarget != "" {
				target = explicitTarget
			} else if extKey != "" {
				target = extKey
			}
			textComponents[target] = append(textComponents[target], textValues...)
		}
	}
	return nil
}

func mergeWildcards(current *[]model.Wildcard, incoming []model.Wildcard) {
	index := map[string]int{}
	for i, wc := range *current {
		index[wc.Name] = i
	}
	for _, wc := range incoming {
		if i, ok := index[wc.Name]; ok {
			existing := (*current)[i]
			seen := map[string]bool{}
			for _, v := range existing.Values {
				seen[v] = true
			}
			for _, v := range wc.Values {
				if !seen[v] {
					existing.Values = append(existing.Values, v)
					seen[v] = true
				}
			}
			(*current)[i] = existing
		} else {
			index[wc.Name] = len(*current)
			*current = append(*current, wc)
		}
	}
}

func collectExtTexts(items []model.TextNode, extensions []model.Extension, namespace string) map[string][]string {
	names := map[string]bool{}
	var collect func([]model.TextNode)
	collect = func(nodes []model.TextNode) {
		for _, n := range nodes {
			if n.ExtText != "" {
				names[n.ExtText] = true
			}
			if len(n.After) > 0 {
				collect(n.After)
			}
		}
	}
	collect(items)

	out := map[string][]string{}
	for name := range names {
		if ext := findExtension(extensions, name, namespace); ext != nil {
			out[name] = ext.TextLists["text"]
		}
	}
	return out
}

// joinExtendedTextComponents Cartesian-joins legacy extends-merged text
// components (keyed by a dynamic text* name) onto every existing variation.
func joinExtendedTextComponents(variations []variation, components map[string][]string, delimiter string) []variation {
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "text" {
			return true
		}
		if keys[j] == "text" {
			return false
		}
		return keys[i] < keys[j]
	})

	lists := make([][]string, 0, len(keys))
	for _, k := range keys {
		if len(components[k]) > 0 {
			lists = append(lists, components[k])
		}
	}
	if len(lists) == 0 {
		return variations
	}

	combos := cartesianStrings(lists)
	var out []variation
	for _, v := range variations {
		for _, combo := range combos {
			joined := v
			extra := strings.Join(combo, delimiter)
			if v.Text != "" {
				joined.Text = strings.TrimSpace(v.Text + delimiter + extra)
			} else {
				joined.Text = strings.TrimSpace(extra)
			}
			out = append(out, joined)
		}
	}
	return out
}

func cartesianStrings(lists [][]string) [][]string {
	result := [][]string{{}}
	for _, list := range lists {
		var next [][]string
		for _, prefix := range result {
			for _, v := range list {
				combo := append(append([]string{}, prefix...), v)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

// expandLoras applies the LoRA combination permutation (spec.md 4.2
// Phase 2, steps 1-3) to one text variation, producing one job record per
// (lora combination) permutation.
func expandLoras(p model.PromptDef, v variation, loraCombos []string, library map[string]libraryEntry, opts Options) ([]*model.JobRecord, error) {
	prompt := model.ResolvedPrompt{ID: p.ID, Text: v.Text, OriginalTemplate: v.Template, Annotations: p.Annotations}

	parentPath := ""
	if idx := strings.LastIndex(v.BlockPath, "."); idx >= 0 {
		parentPath = v.BlockPath[:idx]
	}

	base := func() *model.JobRecord {
		return &model.JobRecord{
			Prompt:     prompt,
			BlockPath:  v.BlockPath,
			ParentPath: parentPath,
			IsLeaf:     v.IsLeaf,
			ExtIndices: v.ExtIndices,
			DependsOn:  p.DependsOn,
			Hooks:      p.Hooks,
			Mods:       p.Mods,
		}
	}

	if len(loraCombos) == 0 {
		job := base()
		job.FilenameSuffix = "base"
		return []*model.JobRecord{job}, nil
	}

	var out []*model.JobRecord
	for _, combo := range loraCombos {
		arrays, err := parseLoraComboString(combo, library, opts.RangeIncrement)
		if err != nil {
			return nil, fmt.Errorf("parsing lora combo %q for prompt %q: %w", combo, p.ID, err)
		}
		for _, perm := range loraPermutations(arrays) {
			job := base()
			job.Loras = perm.Loras
			job.FilenameSuffix = perm.Suffix
			out = append(out, job)
		}
	}
	return out, nil
}

// expandSamplers applies the sampler permutation (spec.md 4.2 Phase 2,
// step 4) to every job record.
func expandSamplers(jobs []*model.JobRecord, opts Options) []*model.JobRecord {
	samplers := opts.Samplers
	if len(samplers) == 0 {
		samplers = []model.SamplerEntry{{}}
	}

	defaultParams := opts.DefaultParams
	if defaultParams == (model.Params{}) {
		defaultParams = model.Params{Width: 1024, Height: 1024, Steps: 9, Cfg: 1.0}
	}

	var out []*model.JobRecord
	for _, job := range jobs {
		for _, s := range samplers {
			if s.Skip {
				continue
			}
			for _, variantJob := range applySampler(job, s, defaultParams) {
				out = append(out, variantJob)
			}
		}
	}
	return out
}

func applySampler(job *model.JobRecord, s model.SamplerEntry, defaults model.Params) []*model.JobRecord {
	permutable := map[string][]interface{}{}
	fixed := map[string]interface{}{}
	for k, v := range s.Config {
		if list, ok := v.([]interface{}); ok {
			permutable[k] = list
		} else {
			fixed[k] = v
		}
	}

	combos := []map[string]interface{}{fixed}
	if len(permutable) > 0 {
		keys := make([]string, 0, len(permutable))
		for k := range permutable {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lists := make([][]interface{}, len(keys))
		for i, k := range keys {
			lists[i] = permutable[k]
		}
		combos = nil
		for _, combo := range cartesianAny(lists) {
			merged := map[string]interface{}{}
			for k, v := range fixed {
				merged[k] = v
			}
			for i, k := range keys {
				merged[k] = combo[i]
			}
			combos = append(combos, merged)
		}
	}

	var out []*model.JobRecord
	for _, combo := range combos {
		clone := *job
		params := defaults
		samplerParams := map[string]interface{}{}
		standard := map[string]bool{"sampler": true, "scheduler": true, "width": true, "height": true, "steps": true, "cfg": true}

		if v, ok := combo["width"]; ok {
			params.Width = toInt(v)
		}
		if v, ok := combo["height"]; ok {
			params.Height = toInt(v)
		}
		if v, ok := combo["steps"]; ok {
			params.Steps = toInt(v)
		}
		if v, ok := combo["cfg"]; ok {
			params.Cfg = toFloat(v)
		}
		for k, v := range combo {
			if !standard[k] {
				samplerParams[k] = v
			}
		}

		scheduler, _ := combo["scheduler"].(string)
		clone.Sampler = s.Name
		clone.Scheduler = scheduler
		clone.Params = params
		clone.SamplerParams = samplerParams

		if s.Name != "" {
			schedName := scheduler
			if schedName == "" {
				schedName = "simple"
			}
			clone.FilenameSuffix += fmt.Sprintf("_%s_%s", s.Name, schedName)
			clone.FilenameSuffix += buildSuffixString(params, samplerParams, nil)
		}

		out = append(out, &clone)
	}
	return out
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func cartesianAny(lists [][]interface{}) [][]interface{} {
	result := [][]interface{}{{}}
	for _, list := range lists {
		var next [][]interface{}
		for _, prefix := range result {
			for _, v := range list {
				combo := append(append([]interface{}{}, prefix...), v)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

// assignIndicesAndSort is the finalization phase (spec.md 4.2 Phase 3):
// assign 1-based original_index in emission order, then sort by
// (lora_signature, sampler_name) for model-loading locality.
func assignIndicesAndSort(jobs []*model.JobRecord) []*model.JobRecord {
	for i, j := range jobs {
		j.OriginalIndex = i + 1
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return sortKey(jobs[i]) < sortKey(jobs[k])
	})
	return jobs
}

func sortKey(j *model.JobRecord) string {
	var parts []string
	for _, l := range j.Loras {
		parts = append(parts, fmt.Sprintf("%s%.3g", l.Alias, l.Strength))
	}
	return strings.Join(parts, "_") + "_" + j.Sampler
}

// expandResolutionsForPrompt applies the resolution permutation (spec.md
// 4.2 Phase 2, step 5) across one prompt's already lora-expanded records.
func expandResolutionsForPrompt(jobs []*model.JobRecord, resolutions [][2]string) []*model.JobRecord {
	if len(resolutions) == 0 {
		return jobs
	}
	out := make([]*model.JobRecord, 0, len(jobs)*len(resolutions))
	for _, job := range jobs {
		for _, r := range resolutions {
			clone := *job
			expr := r
			clone.ResolutionExpression = &expr
			out = append(out, &clone)
		}
	}
	return out
}

// ExtensionError is returned when extends-resolution fails (unknown
// extension id, malformed source path).
type ExtensionError struct{ Msg string }

func (e *ExtensionError) Error() string { return e.Msg }
