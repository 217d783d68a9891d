package model

import (
	"errors"
	"fmt"
	"strconv"
)

// RuleKind selects how a line rule is evaluated against a part attribute.
type RuleKind string

const (
	// RuleEquals requires the attribute to equal Value.
	RuleEquals RuleKind = "equals"
	// RuleOneOf requires the attribute to be one of Values.
	RuleOneOf RuleKind = "one_of"
	// RuleRange requires a numeric attribute inside the closed interval [Min, Max].
	RuleRange RuleKind = "range"
	// RuleCapability declares whether the line can perform a special process.
	// It only rejects parts whose matching flag is set when Allowed is false.
	RuleCapability RuleKind = "capability"
)

// Rule is one constraint a line declares on the parts it accepts.
type Rule struct {
	Attribute string   `json:"attribute" yaml:"attribute"`
	Kind      RuleKind `json:"kind" yaml:"kind"`
	Value     string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values    []string `json:"values,omitempty" yaml:"values,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Allowed   bool     `json:"allowed,omitempty" yaml:"allowed,omitempty"`
}

// Validate reports malformed rule declarations.
func (r Rule) Validate() error {
	if r.Attribute == "" {
		return errors.New("rule attribute is required")
	}
	switch r.Kind {
	case RuleEquals:
		if r.Value == "" {
			return fmt.Errorf("rule %s: equals needs a value", r.Attribute)
		}
	case RuleOneOf:
		if len(r.Values) == 0 {
			return fmt.Errorf("rule %s: one_of needs at least one value", r.Attribute)
		}
	case RuleRange:
		if r.Min == nil && r.Max == nil {
			return fmt.Errorf("rule %s: range needs min or max", r.Attribute)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("rule %s: min %v greater than max %v", r.Attribute, *r.Min, *r.Max)
		}
	case RuleCapability:
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.Attribute, r.Kind)
	}
	return nil
}

// Line is a finishing line able to run parts that satisfy all of its rules.
type Line struct {
	ID      string `json:"id" yaml:"id"`
	Process string `json:"process" yaml:"process"`
	Rules   []Rule `json:"rules" yaml:"rules"`
	// Capacity caps the total quantity queued on the line. Zero means unlimited.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// Validate checks the line declaration, including every rule.
func (l Line) Validate() error {
	if l.ID == "" {
		return errors.New("line id is required")
	}
	if l.Capacity < 0 {
		return fmt.Errorf("line %s: negative capacity", l.ID)
	}
	for _, r := range l.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("line %s: %w", l.ID, err)
		}
	}
	return nil
}

// RuleSet returns the effective rules keyed by attribute. When an attribute is
// declared more than once the last declaration wins.
func (l Line) RuleSet() map[string]Rule {
	set := make(map[string]Rule, len(l.Rules))
	for _, r := range l.Rules {
		set[r.Attribute] = r
	}
	return set
}

// ValueKind is the type carried by a Value.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindBool
)

// Value is a typed part attribute.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

// EqualsRaw compares the value with a raw rule operand, parsing the operand in
// the value's own kind. Operands that do not parse never match.
func (v Value) EqualsRaw(raw string) bool {
	switch v.Kind {
	case KindString:
		return v.Str == raw
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		return err == nil && f == v.Num
	case KindBool:
		b, err := strconv.ParseBool(raw)
		return err == nil && b == v.Bool
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}
