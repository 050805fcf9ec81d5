// Package resolver implements the value resolver (spec.md 4.1): resolving
// __name__ placeholders against wildcard lookup tables under the iterate /
// random-single / sample-N consumption modes, and the equivalent filtering
// of extension text lists.
package resolver

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
)

// WildcardError is returned when a template references an undefined or
// empty wildcard.
type WildcardError struct{ Msg string }

func (e *WildcardError) Error() string { return e.Msg }

// ExtensionError describes a structured-data extension key (wildcards,
// loras) referenced as plain text. No function in this package returns it.
type ExtensionError struct{ Msg string }

func (e *ExtensionError) Error() string { return e.Msg }

var placeholderPattern = regexp.MustCompile(`__([a-zA-Z0-9_-]+)__`)

// Lookup maps a wildcard name to its ordered value list.
type Lookup map[string][]string

// NewLookup builds a Lookup from a list of Wildcard definitions.
func NewLookup(wildcards []model.Wildcard) Lookup {
	l := make(Lookup, len(wildcards))
	for _, wc := range wildcards {
		if wc.Name != "" {
			l[wc.Name] = wc.Values
		}
	}
	return l
}

// ResolveWildcards performs random wildcard substitution across a list of
// text templates, consuming rnd deterministically in sorted-placeholder-name
// order per template (spec.md 4.2 "Determinism"). When trackUsage is true
// it also returns, per input text, the map of wildcard name to the value
// and 1-based index chosen.
func ResolveWildcards(rnd *rand.Rand, textList []string, lookup Lookup, trackUsage bool) ([]string, []map[string]model.WildcardPick, error) {
	resolved := make([]string, 0, len(textList))
	var usage []map[string]model.WildcardPick
	if trackUsage {
		usage = make([]map[string]model.WildcardPick, 0, len(textList))
	}

	for _, template := range textList {
		names := uniqueSortedNames(placeholderPattern.FindAllStringSubmatch(template, -1))
		used := map[string]model.WildcardPick{}

		resolvedText := template
		for _, name := range names {
			choices, ok := lookup[name]
			if !ok {
				return nil, nil, &WildcardError{Msg: fmt.Sprintf("wildcard '__%s__' referenced in prompt but not defined in the 'wildcards' section", name)}
			}
			if len(choices) == 0 {
				return nil, nil, &WildcardError{Msg: fmt.Sprintf("wildcard '__%s__' found but has an empty text list", name)}
			}
			idx := rnd.Intn(len(choices))
			choice := choices[idx]
			if trackUsage {
				used[name] = model.WildcardPick{Value: choice, Index: idx + 1}
			}
			resolvedText = strings.ReplaceAll(resolvedText, "__"+name+"__", choice)
		}

		resolved = append(resolved, resolvedText)
		if trackUsage {
			usage = append(usage, used)
		}
	}

	return resolved, usage, nil
}

// ProcessTextVariant expands one template string according to a
// consumption mode: 0 iterates the Cartesian product of every placeholder's
// values, 1 keeps placeholders unresolved (deferred to a later resolve
// step), N samples N unique values per placeholder before the product.
func ProcessTextVariant(rnd *rand.Rand, template string, lookup Lookup, mode int) ([]string, error) {
	names := uniqueSortedNames(placeholderPattern.FindAllStringSubmatch(template, -1))
	if len(names) == 0 {
		return []string{template}, nil
	}

	valuesMap := make(map[string][]string, len(names))
	for _, name := range names {
		definitions, ok := lookup[name]
		if !ok {
			return nil, &WildcardError{Msg: fmt.Sprintf("wildcard '__%s__' referenced in structured prompt but not defined", name)}
		}
		switch {
		case mode == 0:
			valuesMap[name] = definitions
		case mode == 1:
			valuesMap[name] = []string{"__" + name + "__"}
		default:
			if len(definitions) < mode {
				valuesMap[name] = definitions
			} else {
				valuesMap[name] = sampleN(rnd, definitions, mode)
			}
		}
	}

	lists := make([][]string, len(names))
	for i, name := range names {
		lists[i] = valuesMap[name]
	}

	var out []string
	for _, combo := range cartesianProduct(lists) {
		text := template
		for i, name := range names {
			text = strings.ReplaceAll(text, "__"+name+"__", combo[i])
		}
		out = append(out, text)
	}
	return out, nil
}

// ApplyTextConsumptionMode filters an extension text list per the same
// 0/1/N modes, applied at the list level rather than per-placeholder.
func ApplyTextConsumptionMode(rnd *rand.Rand, items []string, mode int) []string {
	if len(items) == 0 {
		return items
	}
	switch {
	case mode == 0:
		return items
	case mode == 1:
		return []string{items[rnd.Intn(len(items))]}
	default:
		if len(items) < mode {
			return items
		}
		return sampleN(rnd, items, mode)
	}
}

func uniqueSortedNames(matches [][]string) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func sampleN(rnd *rand.Rand, items []string, n int) []string {
	idx := rnd.Perm(len(items))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}

func cartesianProduct(lists [][]string) [][]string {
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
