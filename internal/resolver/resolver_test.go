package resolver

import (
	"math/rand"
	"testing"

	"github.com/cybervaldez/promptyui/internal/model"
)

func TestProcessTextVariant_ModeZeroIterates(t *testing.T) {
	lookup := Lookup{
		"x": {"1", "2"},
		"y": {"3", "4"},
	}
	rnd := rand.New(rand.NewSource(1))

	out, err := ProcessTextVariant(rnd, "a __x__ and __y__", lookup, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{
		"a 1 and 3": true, "a 1 and 4": true,
		"a 2 and 3": true, "a 2 and 4": true,
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 combinations, got %d: %v", len(out), out)
	}
	for _, text := range out {
		if !want[text] {
			t.Errorf("unexpected combination: %q", text)
		}
	}
}

func TestProcessTextVariant_ModeOneKeepsPlaceholder(t *testing.T) {
	lookup := Lookup{"x": {"1", "2"}}
	rnd := rand.New(rand.NewSource(1))

	out, err := ProcessTextVariant(rnd, "a __x__", lookup, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != "a __x__" {
		t.Fatalf("expected placeholder preserved, got %v", out)
	}
}

func TestProcessTextVariant_UndefinedWildcardErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	_, err := ProcessTextVariant(rnd, "a __missing__", Lookup{}, 0)
	if err == nil {
		t.Fatal("expected WildcardError")
	}
	if _, ok := err.(*WildcardError); !ok {
		t.Fatalf("expected *WildcardError, got %T", err)
	}
}

func TestResolveWildcards_TracksUsage(t *testing.T) {
	lookup := Lookup{"pose": {"standing", "sitting"}}
	rnd := rand.New(rand.NewSource(42))

	resolved, usage, err := ResolveWildcards(rnd, []string{"A __pose__ woman"}, lookup, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved text, got %d", len(resolved))
	}

	pick, ok := usage[0]["pose"]
	if !ok {
		t.Fatal("expected usage entry for 'pose'")
	}
	if pick.Index < 1 || pick.Index > 2 {
		t.Errorf("expected 1-based index in [1,2], got %d", pick.Index)
	}
}

func TestResolveWildcards_EmptyWildcardErrors(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	_, _, err := ResolveWildcards(rnd, []string{"a __pose__"}, Lookup{"pose": {}}, false)
	if err == nil {
		t.Fatal("expected WildcardError for empty wildcard list")
	}
}

func TestApplyTextConsumptionMode(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	items := []string{"a", "b", "c", "d", "e"}

	if got := ApplyTextConsumptionMode(rnd, items, 0); len(got) != 5 {
		t.Errorf("mode 0 should return all items, got %v", got)
	}
	if got := ApplyTextConsumptionMode(rnd, items, 1); len(got) != 1 {
		t.Errorf("mode 1 should return exactly 1 item, got %v", got)
	}
	if got := ApplyTextConsumptionMode(rnd, items, 3); len(got) != 3 {
		t.Errorf("mode 3 should return exactly 3 items, got %v", got)
	}
}

func TestNewLookup(t *testing.T) {
	l := NewLookup([]model.Wildcard{{Name: "pose", Values: []string{"a", "b"}}})
	if len(l["pose"]) != 2 {
		t.Fatalf("expected lookup built from wildcard list")
	}
}
