// Package constraint decides whether a part may run on a finishing line.
package constraint

import (
	"sort"

	"github.com/kilianp07/foundry/core/model"
)

// Matches reports whether every rule declared on the line accepts the part.
// Rules are evaluated on the line's effective rule set, so declaration order
// does not matter and a repeated attribute keeps its last declaration.
func Matches(line model.Line, part model.Part) bool {
	ok, _ := Explain(line, part)
	return ok
}

// Explain is Matches that also names the first rejecting attribute, in
// attribute order so the answer is stable.
func Explain(line model.Line, part model.Part) (bool, string) {
	set := line.RuleSet()
	attrs := make([]string, 0, len(set))
	for a := range set {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	for _, a := range attrs {
		if !evaluate(set[a], part) {
			return false, a
		}
	}
	return true, ""
}

// Eligible returns the lines accepting the part, keeping input order.
func Eligible(lines []model.Line, part model.Part) []model.Line {
	var out []model.Line
	for _, l := range lines {
		if Matches(l, part) {
			out = append(out, l)
		}
	}
	return out
}

func evaluate(r model.Rule, part model.Part) bool {
	if r.Kind == model.RuleCapability {
		// A capable line takes ordinary parts too; only parts needing the
		// capability are turned away from lines lacking it.
		return !part.Requires(r.Attribute) || r.Allowed
	}
	v, ok := part.Attribute(r.Attribute)
	if !ok {
		return false
	}
	switch r.Kind {
	case model.RuleEquals:
		return v.EqualsRaw(r.Value)
	case model.RuleOneOf:
		for _, want := range r.Values {
			if v.EqualsRaw(want) {
				return true
			}
		}
		return false
	case model.RuleRange:
		if v.Kind != model.KindNumber {
			return false
		}
		if r.Min != nil && v.Num < *r.Min {
			return false
		}
		if r.Max != nil && v.Num > *r.Max {
			return false
		}
		return true
	}
	return false
}
