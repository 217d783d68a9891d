package constraint

import (
	"testing"

	"github.com/kilianp07/foundry/core/model"
)

func ptr(f float64) *float64 { return &f }

func familyLine(id string, families ...string) model.Line {
	return model.Line{ID: id, Rules: []model.Rule{{Attribute: model.AttrFamilyID, Kind: model.RuleOneOf, Values: families}}}
}

func TestMatchesRules(t *testing.T) {
	part := model.Part{
		MaterialID:   "M1",
		FamilyID:     "A",
		UnitWeightKg: 40,
		Flags:        map[string]bool{"inclined_drilling": true},
	}
	checks := []struct {
		name string
		rule model.Rule
		want bool
	}{
		{"equals hit", model.Rule{Attribute: "family_id", Kind: model.RuleEquals, Value: "A"}, true},
		{"equals miss", model.Rule{Attribute: "family_id", Kind: model.RuleEquals, Value: "B"}, false},
		{"one of hit", model.Rule{Attribute: "family_id", Kind: model.RuleOneOf, Values: []string{"B", "A"}}, true},
		{"one of miss", model.Rule{Attribute: "family_id", Kind: model.RuleOneOf, Values: []string{"B"}}, false},
		{"range inside", model.Rule{Attribute: "unit_weight_kg", Kind: model.RuleRange, Min: ptr(10), Max: ptr(40)}, true},
		{"range above", model.Rule{Attribute: "unit_weight_kg", Kind: model.RuleRange, Max: ptr(39.9)}, false},
		{"range below", model.Rule{Attribute: "unit_weight_kg", Kind: model.RuleRange, Min: ptr(41)}, false},
		{"range on text", model.Rule{Attribute: "family_id", Kind: model.RuleRange, Min: ptr(0)}, false},
		{"capability required and absent", model.Rule{Attribute: "inclined_drilling", Kind: model.RuleCapability}, false},
		{"capability required and present", model.Rule{Attribute: "inclined_drilling", Kind: model.RuleCapability, Allowed: true}, true},
		{"capability not required", model.Rule{Attribute: "oversize_machining", Kind: model.RuleCapability, Allowed: true}, true},
		{"capability not required, line lacks it", model.Rule{Attribute: "oversize_machining", Kind: model.RuleCapability}, true},
		{"missing attribute fails closed", model.Rule{Attribute: "hardness", Kind: model.RuleEquals, Value: "x"}, false},
	}
	for _, c := range checks {
		line := model.Line{ID: "L", Rules: []model.Rule{c.rule}}
		if got := Matches(line, part); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}

func TestMatchesOrderInvariant(t *testing.T) {
	part := model.Part{FamilyID: "A", UnitWeightKg: 25, Flags: map[string]bool{"oversize_machining": true}}
	rules := []model.Rule{
		{Attribute: "family_id", Kind: model.RuleOneOf, Values: []string{"A", "B"}},
		{Attribute: "unit_weight_kg", Kind: model.RuleRange, Min: ptr(0), Max: ptr(30)},
		{Attribute: "oversize_machining", Kind: model.RuleCapability, Allowed: true},
	}
	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		line := model.Line{ID: "L"}
		for _, i := range p {
			line.Rules = append(line.Rules, rules[i])
		}
		if !Matches(line, part) {
			t.Fatalf("permutation %v rejected part", p)
		}
	}
	part.UnitWeightKg = 31
	for _, p := range perms {
		line := model.Line{ID: "L"}
		for _, i := range p {
			line.Rules = append(line.Rules, rules[i])
		}
		ok, attr := Explain(line, part)
		if ok || attr != "unit_weight_kg" {
			t.Fatalf("permutation %v: got %v %q", p, ok, attr)
		}
	}
}

func TestMatchesDuplicateLastWins(t *testing.T) {
	part := model.Part{FamilyID: "B"}
	line := model.Line{ID: "L", Rules: []model.Rule{
		{Attribute: "family_id", Kind: model.RuleEquals, Value: "A"},
		{Attribute: "family_id", Kind: model.RuleEquals, Value: "B"},
	}}
	if !Matches(line, part) {
		t.Fatalf("last declaration should win")
	}
	line.Rules[0], line.Rules[1] = line.Rules[1], line.Rules[0]
	if Matches(line, part) {
		t.Fatalf("swapped duplicates should reject")
	}
}

func TestEligible(t *testing.T) {
	lines := []model.Line{familyLine("L1", "A"), familyLine("L2", "A", "B"), familyLine("L3", "C")}
	got := Eligible(lines, model.Part{FamilyID: "A"})
	if len(got) != 2 || got[0].ID != "L1" || got[1].ID != "L2" {
		t.Fatalf("unexpected eligible lines %+v", got)
	}
	if got := Eligible(lines, model.Part{FamilyID: "Z"}); len(got) != 0 {
		t.Fatalf("expected none, got %+v", got)
	}
	if !Matches(model.Line{ID: "open"}, model.Part{}) {
		t.Fatalf("line without rules accepts everything")
	}
}
