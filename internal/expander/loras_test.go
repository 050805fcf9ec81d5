package expander

import "testing"

func TestGenerateRangeValues(t *testing.T) {
	values := generateRangeValues(0.5, 1.0, 0.1)
	if len(values) != 6 {
		t.Fatalf("expected 6 steps, got %d: %v", len(values), values)
	}
	if values[0] != 0.5 || values[len(values)-1] != 1.0 {
		t.Errorf("expected endpoints 0.5 and 1.0, got %v", values)
	}
}

func TestGenerateRangeValues_SmallDiffForcesTwoSteps(t *testing.T) {
	values := generateRangeValues(0.5, 0.55, 0.1)
	if len(values) != 2 {
		t.Fatalf("expected 2 steps when abs(diff) < increment, got %d: %v", len(values), values)
	}
}

func TestGenerateRangeValues_SameStartEnd(t *testing.T) {
	values := generateRangeValues(0.3, 0.3, 0.1)
	if len(values) != 1 || values[0] != 0.3 {
		t.Fatalf("expected single value 0.3, got %v", values)
	}
}

func TestPrecisionFromIncrement(t *testing.T) {
	cases := map[float64]int{0.1: 1, 0.05: 2, 0.25: 2, 1.0: 1}
	for inc, want := range cases {
		if got := precisionFromIncrement(inc); got != want {
			t.Errorf("precisionFromIncrement(%v) = %d, want %d", inc, got, want)
		}
	}
}

func TestParseLoraComboString_Off(t *testing.T) {
	library := map[string]libraryEntry{
		"l1": {Path: "/loras/l1.safetensors", Strength: 1.0, Triggers: []string{"trig"}},
	}
	arrays, err := parseLoraComboString("l1:off", library, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arrays) != 1 || len(arrays[0]) != 1 {
		t.Fatalf("expected one candidate for off, got %v", arrays)
	}
	if !arrays[0][0].Off || arrays[0][0].Strength != 0.0 {
		t.Errorf("expected off candidate with zero strength, got %+v", arrays[0][0])
	}
}

func TestParseLoraComboString_RangeAndCombination(t *testing.T) {
	library := map[string]libraryEntry{
		"l1": {Path: "/loras/l1.safetensors", Strength: 1.0, Triggers: []string{"a", "b"}},
		"l2": {Path: "/loras/l2.safetensors", Strength: 0.8, Triggers: nil},
	}
	arrays, err := parseLoraComboString("l1:0.5~~0.7+l2", library, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arrays) != 2 {
		t.Fatalf("expected 2 per-lora arrays, got %d", len(arrays))
	}
	// l1 range 0.5~~0.7 step 0.1 -> 3 strengths x 2 triggers = 6 candidates
	if len(arrays[0]) != 6 {
		t.Errorf("expected 6 l1 candidates, got %d", len(arrays[0]))
	}
	if len(arrays[1]) != 1 {
		t.Errorf("expected 1 l2 candidate (default strength, empty trigger), got %d", len(arrays[1]))
	}
}

func TestLoraPermutations(t *testing.T) {
	library := map[string]libraryEntry{
		"l1": {Path: "/p1", Strength: 1.0, Triggers: []string{"t1"}},
		"l2": {Path: "/p2", Strength: 0.5, Triggers: []string{"t2"}},
	}
	arrays, err := parseLoraComboString("l1+l2", library, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	perms := loraPermutations(arrays)
	if len(perms) != 1 {
		t.Fatalf("expected 1 permutation for two single-valued loras, got %d", len(perms))
	}
	if len(perms[0].Loras) != 2 {
		t.Errorf("expected 2 loras in permutation, got %d", len(perms[0].Loras))
	}
}
