package model

// Built-in part attribute names usable in line rules.
const (
	AttrFamilyID        = "family_id"
	AttrMaterialID      = "material_id"
	AttrUnitWeightKg    = "unit_weight_kg"
	AttrVulcanizingDays = "vulcanizing_days"
	AttrMachiningDays   = "machining_days"
	AttrInspectionDays  = "inspection_days"
)

// Part is the master data of a material as seen by the dispatcher.
type Part struct {
	MaterialID      string  `json:"material_id" yaml:"material_id"`
	FamilyID        string  `json:"family_id" yaml:"family_id"`
	VulcanizingDays int     `json:"vulcanizing_days" yaml:"vulcanizing_days"`
	MachiningDays   int     `json:"machining_days" yaml:"machining_days"`
	InspectionDays  int     `json:"inspection_days" yaml:"inspection_days"`
	UnitWeightKg    float64 `json:"unit_weight_kg" yaml:"unit_weight_kg"`

	// Flags lists capabilities the part requires (e.g. inclined_drilling).
	Flags map[string]bool `json:"flags,omitempty" yaml:"flags,omitempty"`
	// Numbers and Texts carry extra typed attributes validated at ingestion.
	Numbers map[string]float64 `json:"numbers,omitempty" yaml:"numbers,omitempty"`
	Texts   map[string]string  `json:"texts,omitempty" yaml:"texts,omitempty"`
}

// LeadTimeDays is the sum of the downstream process lead times.
func (p Part) LeadTimeDays() int {
	return p.VulcanizingDays + p.MachiningDays + p.InspectionDays
}

// Requires reports whether the part needs the named capability.
func (p Part) Requires(flag string) bool {
	return p.Flags[flag]
}

// Attribute looks up a typed attribute by name. The boolean is false when the
// part does not carry the attribute at all.
func (p Part) Attribute(name string) (Value, bool) {
	switch name {
	case AttrFamilyID:
		return StringValue(p.FamilyID), p.FamilyID != ""
	case AttrMaterialID:
		return StringValue(p.MaterialID), p.MaterialID != ""
	case AttrUnitWeightKg:
		return NumberValue(p.UnitWeightKg), p.UnitWeightKg > 0
	case AttrVulcanizingDays:
		return NumberValue(float64(p.VulcanizingDays)), true
	case AttrMachiningDays:
		return NumberValue(float64(p.MachiningDays)), true
	case AttrInspectionDays:
		return NumberValue(float64(p.InspectionDays)), true
	}
	if v, ok := p.Flags[name]; ok {
		return BoolValue(v), true
	}
	if v, ok := p.Numbers[name]; ok {
		return NumberValue(v), true
	}
	if v, ok := p.Texts[name]; ok {
		return StringValue(v), true
	}
	return Value{}, false
}
