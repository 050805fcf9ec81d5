package model

import "gopkg.in/yaml.v3"

// UnmarshalYAML lets a prompt's "text" node be authored as a bare scalar
// string, a flat list of strings, or the full nested content/after tree
// (spec.md section 6: "text: <string | list of strings | nested tree>").
func (n *TextNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		n.Content = value.Value
		return nil
	}
	type plain TextNode
	return value.Decode((*plain)(n))
}

// UnmarshalYAML normalizes PromptDef.Text into []TextNode regardless of
// whether the author wrote a bare string, a flat string list, or a nested
// tree under the "text" key: a bare scalar or mapping is wrapped into a
// single-element sequence before the field's own []TextNode decode runs
// (each element already tolerates a scalar via TextNode.UnmarshalYAML). It
// also pulls literal `null` hook-stage values out of the "hooks" mapping
// into HooksNull before decoding, since a plain map[string][]HookSpec
// field can't represent "this stage is explicitly nulled out" (spec.md
// section 6: a prompt's hooks entry removes an inherited stage by mapping
// its name to null).
func (p *PromptDef) UnmarshalYAML(value *yaml.Node) error {
	var nullStages map[string]bool

	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			switch key.Value {
			case "text":
				if val.Kind == yaml.ScalarNode || val.Kind == yaml.MappingNode {
					wrapped := &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{val}}
					value.Content[i+1] = wrapped
				}
			case "hooks":
				nullStages = extractNullStages(val)
			}
		}
	}

	type plain PromptDef
	if err := value.Decode((*plain)(p)); err != nil {
		return err
	}
	p.HooksNull = nullStages
	return nil
}

// UnmarshalYAML lets a model.sampler entry be authored as a bare sampler
// name or a mapping of fixed/list-valued (permutable) parameters, with an
// optional "name" and "skip" key pulled out of the mapping into their own
// fields before the rest falls through to Config.
func (s *SamplerEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		s.Name = value.Value
		return nil
	}

	var raw map[string]interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if name, ok := raw["name"].(string); ok {
		s.Name = name
		delete(raw, "name")
	}
	if skip, ok := raw["skip"].(bool); ok {
		s.Skip = skip
		delete(raw, "skip")
	}
	if len(raw) > 0 {
		s.Config = raw
	}
	return nil
}

// extractNullStages removes any `stageName: null` pair from a hooks
// mapping node in place (so the remaining map[string][]HookSpec decode
// doesn't choke on a null value) and returns the removed stage names.
func extractNullStages(hooks *yaml.Node) map[string]bool {
	if hooks == nil || hooks.Kind != yaml.MappingNode {
		return nil
	}

	var nullStages map[string]bool
	kept := hooks.Content[:0]
	for i := 0; i+1 < len(hooks.Content); i += 2 {
		key, val := hooks.Content[i], hooks.Content[i+1]
		if val.Kind == yaml.ScalarNode && val.Tag == "!!null" {
			if nullStages == nil {
				nullStages = map[string]bool{}
			}
			nullStages[key.Value] = true
			continue
		}
		kept = append(kept, key, val)
	}
	hooks.Content = kept
	return nullStages
}
