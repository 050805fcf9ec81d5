package expander

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
)

// ComboError is returned for a malformed LoRA combination string.
type ComboError struct{ Msg string }

func (e *ComboError) Error() string { return e.Msg }

// libraryEntry is a resolved LoRA from the job definition's "loras" block.
type libraryEntry struct {
	Path     string
	Strength float64
	Triggers []string
}

// generateRangeValues linearly interpolates from start to end inclusive,
// rounded to 3 decimal places. See SPEC_FULL.md's "LoRA combination grammar
// detail" for the abs(diff) < increment special case.
func generateRangeValues(start, end, increment float64) []float64 {
	if start == end {
		return []float64{round3(start)}
	}
	if increment < 0.001 {
		increment = 0.001
	}

	diff := end - start
	var numSteps int
	if math.Abs(diff) < increment {
		numSteps = 2
	} else {
		numSteps = int(math.Round(math.Abs(diff)/increment)) + 1
	}

	if numSteps == 1 {
		return []float64{round3(start)}
	}

	values := make([]float64, numSteps)
	for i := 0; i < numSteps; i++ {
		values[i] = round3(start + float64(i)*(end-start)/float64(numSteps-1))
	}
	return values
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// precisionFromIncrement returns the number of decimal places to use when
// formatting a strength value, derived from the configured range increment.
func precisionFromIncrement(increment float64) int {
	s := strconv.FormatFloat(increment, 'f', -1, 64)
	parts := strings.SplitN(s, ".", 2)
	if len(parts) > 1 {
		trimmed := strings.TrimRight(parts[1], "0")
		if len(trimmed) > 0 {
			return len(trimmed)
		}
	}
	return 1
}

// loraConfigCandidate is one entry of the per-LoRA permutation array fed
// into the Cartesian product across LoRAs in a combination string.
type loraConfigCandidate struct {
	model.LoraConfig
	SuffixPart string
}

// parseLoraComboString parses a combination string ("alias[:spec]
// [+alias[:spec]]...") into one candidate array per LoRA, ready for a
// Cartesian product across LoRAs.
func parseLoraComboString(combo string, library map[string]libraryEntry, rangeIncrement float64) ([][]loraConfigCandidate, error) {
	precision := precisionFromIncrement(rangeIncrement)

	var arrays [][]loraConfigCandidate

	for _, part := range strings.Split(combo, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		alias := part
		var specStr string
		hasSpec := false
		if idx := strings.Index(part, ":"); idx >= 0 {
			alias = part[:idx]
			specStr = strings.ToLower(strings.TrimSpace(part[idx+1:]))
			hasSpec = true
		}

		entry, ok := library[alias]
		if !ok {
			continue // unknown alias: skipped silently
		}

		var strengths []float64
		switch {
		case hasSpec && strings.Contains(specStr, "~~"):
			bounds := strings.SplitN(specStr, "~~", 2)
			if len(bounds) != 2 {
				return nil, &ComboError{Msg: fmt.Sprintf("malformed range in lora combo %q", combo)}
			}
			start, err1 := strconv.ParseFloat(strings.TrimSpace(bounds[0]), 64)
			end, err2 := strconv.ParseFloat(strings.TrimSpace(bounds[1]), 64)
			if err1 != nil || err2 != nil {
				return nil, &ComboError{Msg: fmt.Sprintf("malformed range bounds in lora combo %q", combo)}
			}
			strengths = generateRangeValues(start, end, rangeIncrement)
		case hasSpec && (specStr == "off" || specStr == "0" || specStr == "0.0"):
			strengths = []float64{0.0}
		case hasSpec:
			v, err := strconv.ParseFloat(specStr, 64)
			if err != nil {
				strengths = []float64{entry.Strength}
			} else {
				strengths = []float64{v}
			}
		default:
			strengths = []float64{entry.Strength}
		}

		isOff := hasSpec && specStr == "off"

		triggers := entry.Triggers
		if len(triggers) == 0 {
			triggers = []string{""}
		}

		var candidates []loraConfigCandidate
		for _, strength := range strengths {
			baseSuffix := fmt.Sprintf("lora_%s[%s]", alias, formatStrength(strength, precision))
			if isOff {
				baseSuffix = fmt.Sprintf("lora_%s[off]", alias)
			}

			if isOff {
				candidates = append(candidates, loraConfigCandidate{
					LoraConfig: model.LoraConfig{
						Alias: alias, Path: entry.Path, Strength: strength,
						Triggers: nil, Off: true,
					},
					SuffixPart: baseSuffix,
				})
				continue
			}

			for idx, trigger := range triggers {
				candidates = append(candidates, loraConfigCandidate{
					LoraConfig: model.LoraConfig{
						Alias: alias, Path: entry.Path, Strength: strength,
						Trigger: trigger, TriggerIdx: idx + 1, Off: false,
					},
					SuffixPart: fmt.Sprintf("%s[%d]", baseSuffix, idx+1),
				})
			}
		}

		if len(candidates) > 0 {
			arrays = append(arrays, candidates)
		}
	}

	return arrays, nil
}

func formatStrength(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// buildSuffixString renders the generation-parameter filename suffix using
// an (optional) ordered suffix configuration of {name, alias, show}.
func buildSuffixString(params model.Params, samplerParams map[string]interface{}, suffixConfig []SuffixFieldConfig) string {
	if len(suffixConfig) == 0 {
		suffix := fmt.Sprintf("_cfg[%v]_steps[%d]_width[%d]_height[%d]", params.Cfg, params.Steps, params.Width, params.Height)
		if shift, ok := samplerParams["shift"]; ok {
			suffix += fmt.Sprintf("_shift[%v]", shift)
		}
		return suffix
	}

	lookup := map[string]SuffixFieldConfig{}
	for _, c := range suffixConfig {
		lookup[c.Name] = c
	}

	standard := map[string]interface{}{
		"cfg": params.Cfg, "steps": params.Steps, "width": params.Width, "height": params.Height,
	}

	var parts []string
	for _, name := range []string{"cfg", "steps", "width", "height"} {
		if conf, ok := lookup[name]; ok {
			if conf.Show {
				parts = append(parts, fmt.Sprintf("%s[%v]", conf.Alias, standard[name]))
			}
		} else {
			parts = append(parts, fmt.Sprintf("%s[%v]", name, standard[name]))
		}
	}

	for name, value := range samplerParams {
		if conf, ok := lookup[name]; ok {
			if conf.Show {
				parts = append(parts, fmt.Sprintf("%s[%v]", conf.Alias, value))
			}
		} else {
			parts = append(parts, fmt.Sprintf("%s[%v]", name, value))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "_" + strings.Join(parts, "_")
}

// SuffixFieldConfig is one entry of the configurable filename-suffix list
// (spec.md 4.2 step 4: "suffix key set is configurable").
type SuffixFieldConfig struct {
	Name  string
	Alias string
	Show  bool
}

// loraPermutations runs the Cartesian product across the per-LoRA candidate
// arrays, producing one (loras, filenameSuffix) pair per combination.
func loraPermutations(arrays [][]loraConfigCandidate) []struct {
	Loras  []model.LoraConfig
	Suffix string
} {
	combos := cartesianCandidates(arrays)
	out := make([]struct {
		Loras  []model.LoraConfig
		Suffix string
	}, 0, len(combos))

	for _, combo := range combos {
		loras := make([]model.LoraConfig, len(combo))
		parts := make([]string, len(combo))
		for i, c := range combo {
			loras[i] = c.LoraConfig
			parts[i] = c.SuffixPart
		}
		out = append(out, struct {
			Loras  []model.LoraConfig
			Suffix string
		}{Loras: loras, Suffix: strings.Join(parts, "_")})
	}
	return out
}

func cartesianCandidates(arrays [][]loraConfigCandidate) [][]loraConfigCandidate {
	result := [][]loraConfigCandidate{{}}
	for _, list := range arrays {
		var next [][]loraConfigCandidate
		for _, prefix := range result {
			for _, v := range list {
				combo := append(append([]loraConfigCandidate{}, prefix...), v)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}
