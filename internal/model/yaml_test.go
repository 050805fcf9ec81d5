package model

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPromptDef_UnmarshalYAML_BareStringText(t *testing.T) {
	var p PromptDef
	err := yaml.Unmarshal([]byte(`
id: p1
text: a cat
`), &p)

	require.NoError(t, err)
	require.Equal(t, []TextNode{{Content: "a cat"}}, p.Text)
}

func TestPromptDef_UnmarshalYAML_FlatStringListText(t *testing.T) {
	var p PromptDef
	err := yaml.Unmarshal([]byte(`
id: p1
text:
  - a cat
  - a dog
`), &p)

	require.NoError(t, err)
	require.Len(t, p.Text, 2)
	require.Equal(t, "a cat", p.Text[0].Content)
	require.Equal(t, "a dog", p.Text[1].Content)
}

func TestPromptDef_UnmarshalYAML_NullHookStageTracked(t *testing.T) {
	var p PromptDef
	err := yaml.Unmarshal([]byte(`
id: p1
text: a cat
hooks:
  generate:
    - script: noop
  upscale: null
`), &p)

	require.NoError(t, err)
	require.Contains(t, p.Hooks, "generate")
	require.NotContains(t, p.Hooks, "upscale")
	require.True(t, p.HooksNull["upscale"])
}

func TestPromptDef_UnmarshalYAML_NoHooksLeavesHooksNullEmpty(t *testing.T) {
	var p PromptDef
	err := yaml.Unmarshal([]byte(`
id: p1
text: a cat
`), &p)

	require.NoError(t, err)
	require.Empty(t, p.HooksNull)
}

func TestPromptDef_UnmarshalYAML_DependsOnUsesSnakeCaseKey(t *testing.T) {
	var p PromptDef
	err := yaml.Unmarshal([]byte(`
id: p1
text: a cat
depends_on: ["p0"]
`), &p)

	require.NoError(t, err)
	require.Equal(t, []string{"p0"}, p.DependsOn)
}

func TestSamplerEntry_UnmarshalYAML_BareName(t *testing.T) {
	var s SamplerEntry
	require.NoError(t, yaml.Unmarshal([]byte(`euler`), &s))
	require.Equal(t, "euler", s.Name)
	require.Nil(t, s.Config)
}

func TestSamplerEntry_UnmarshalYAML_MappingWithPermutableParams(t *testing.T) {
	var s SamplerEntry
	err := yaml.Unmarshal([]byte(`
name: dpmpp_2m
skip: false
cfg: [4, 7]
steps: 20
`), &s)

	require.NoError(t, err)
	require.Equal(t, "dpmpp_2m", s.Name)
	require.False(t, s.Skip)
	require.Equal(t, 20, s.Config["steps"])
	require.Equal(t, []interface{}{4, 7}, s.Config["cfg"])
}
