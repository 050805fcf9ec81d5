package expander

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/cybervaldez/promptyui/internal/model"
	"github.com/cybervaldez/promptyui/internal/resolver"
)

// variation is one expanded (text, template, provenance) tuple produced by
// walking a prompt's nested content/after text tree, or by the flat
// Cartesian product over legacy text* components.
type variation struct {
	Text              string
	Template          string
	ExtIndices        map[string]int
	WildcardIndices   map[string]int
	WildcardPositions map[string]int
	IsLeaf            bool
	BlockPath         string
}

// buildTextVariations recursively expands a nested content/after text tree
// into a flat list of variations, assigning each a block path as it
// descends (see DESIGN.md for the block-path synthesis rationale).
func buildTextVariations(rnd *rand.Rand, items []model.TextNode, extTexts map[string][]string, extTextMax, wildcardsMax int, lookup resolver.Lookup, pathPrefix string, defaultLeaf bool) ([]variation, error) {
	if len(items) == 0 {
		return []variation{{BlockPath: pathPrefix}}, nil
	}

	var results []variation

	for i, item := range items {
		itemPath := pathPrefix
		if len(items) > 1 || pathPrefix == "" {
			if pathPrefix == "" {
				itemPath = strconv.Itoa(i)
			} else {
				itemPath = pathPrefix + "." + strconv.Itoa(i)
			}
		}

		var base []variation
		var err error

		switch {
		case item.Content != "":
			base, err = expandContentNode(rnd, item.Content, wildcardsMax, lookup, itemPath)
		case item.ExtText != "":
			base, err = expandExtTextNode(rnd, item.ExtText, extTexts, extTextMax, wildcardsMax, lookup, itemPath)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		itemIsLeaf := defaultLeaf
		if item.Checkpoint != nil {
			itemIsLeaf = *item.Checkpoint
		}

		if len(item.After) > 0 {
			suffixes, err := buildTextVariations(rnd, item.After, extTexts, extTextMax, wildcardsMax, lookup, itemPath, defaultLeaf)
			if err != nil {
				return nil, err
			}
			if len(item.After) == 1 {
				// A lone after child shares itemPath in the recursive call,
				// so its ".0" segment is inserted here.
				for i := range suffixes {
					suffixes[i].BlockPath = itemPath + ".0" + strings.TrimPrefix(suffixes[i].BlockPath, itemPath)
				}
			}

			var joined []variation
			for _, b := range base {
				for _, s := range suffixes {
					joined = append(joined, variation{
						Text:              smartJoin(b.Text, s.Text),
						Template:          smartJoin(b.Template, s.Template),
						ExtIndices:        mergeIntMaps(b.ExtIndices, s.ExtIndices),
						WildcardIndices:   mergeIntMaps(b.WildcardIndices, s.WildcardIndices),
						WildcardPositions: mergeIntMaps(b.WildcardPositions, s.WildcardPositions),
						IsLeaf:            s.IsLeaf,
						BlockPath:         s.BlockPath,
					})
				}
			}

			if itemIsLeaf {
				for i := range base {
					base[i].IsLeaf = true
					base[i].BlockPath = itemPath
				}
				results = append(results, base...)
				results = append(results, joined...)
			} else {
				results = append(results, joined...)
			}
		} else {
			for i := range base {
				base[i].IsLeaf = true // terminal nodes default to checkpoint=true
				if item.Checkpoint != nil {
					base[i].IsLeaf = *item.Checkpoint
				}
				base[i].BlockPath = itemPath
			}
			results = append(results, base...)
		}
	}

	if len(results) == 0 {
		return []variation{{BlockPath: pathPrefix}}, nil
	}
	return results, nil
}

func expandContentNode(rnd *rand.Rand, content string, wildcardsMax int, lookup resolver.Lookup, path string) ([]variation, error) {
	expanded, err := resolver.ProcessTextVariant(rnd, content, lookup, wildcardsMax)
	if err != nil {
		return nil, err
	}
	out := make([]variation, 0, len(expanded))
	for _, text := range expanded {
		out = append(out, variation{Text: text, Template: content, BlockPath: path})
	}
	return out, nil
}

func expandExtTextNode(rnd *rand.Rand, extName string, extTexts map[string][]string, extTextMax, wildcardsMax int, lookup resolver.Lookup, path string) ([]variation, error) {
	values := extTexts[extName]
	if len(values) == 0 {
		return []variation{{Text: "", Template: "", BlockPath: path}}, nil
	}

	// Deterministic first-N cap: unlike processExtends' legacy merge, this
	// node keeps the original order and the true original index, so
	// ExtIndices stays stable across runs regardless of ext_text_max.
	n := len(values)
	if extTextMax > 0 && n > extTextMax {
		n = extTextMax
	}

	var out []variation
	for idx := 0; idx < n; idx++ {
		v := values[idx]
		expanded, err := resolver.ProcessTextVariant(rnd, v, lookup, wildcardsMax)
		if err != nil {
			return nil, err
		}
		for _, text := range expanded {
			out = append(out, variation{
				Text:       text,
				Template:   v,
				ExtIndices: map[string]int{extName: idx + 1},
				BlockPath:  path,
			})
		}
	}
	return out, nil
}

// smartJoin concatenates two text segments. When either side has a comma at
// the boundary (ignoring whitespace there) the segments are joined as they
// are; otherwise boundary whitespace is trimmed and a single space inserted
// (spec.md 4.2 step 3).
func smartJoin(a, b string) string {
	if a == "" || b == "" {
		return a + b
	}
	if endsWithComma(a) || startsWithComma(b) {
		return a + b
	}
	return strings.TrimRight(a, " \t\n") + " " + strings.TrimLeft(b, " \t\n")
}

func endsWithComma(s string) bool {
	trimmed := strings.TrimRight(s, " \t\n")
	return strings.HasSuffix(trimmed, ",")
}

func startsWithComma(s string) bool {
	trimmed := strings.TrimLeft(s, " \t\n")
	return strings.HasPrefix(trimmed, ",")
}

func mergeIntMaps(a, b map[string]int) map[string]int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
