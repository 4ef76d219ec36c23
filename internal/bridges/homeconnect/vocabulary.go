package homeconnect

import (
	"fmt"
	"sort"
)

// vocabulary is everything that differs between appliance types.
type vocabulary struct {
	kind      ApplianceType
	namespace string
	programs  []ProgramEntry
	rules     *RuleTable

	// resetStates are operation states that zero progress attributes.
	resetStates map[string]bool

	friendlyStatus func(AttributeView) string
	snapshotFields []string

	// metricFields are numeric attributes exported as time-series points.
	metricFields []string

	commands map[string]commandFunc

	// onReset clears appliance-specific progress attributes.
	onReset func(d *Device)
}

var vocabularies = map[ApplianceType]*vocabulary{}

func registerVocabulary(v *vocabulary) {
	if _, dup := vocabularies[v.kind]; dup {
		panic(fmt.Sprintf("homeconnect: vocabulary %s registered twice", v.kind))
	}
	vocabularies[v.kind] = v
}

func lookupVocabulary(t ApplianceType) (*vocabulary, error) {
	v, ok := vocabularies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApplianceType, t)
	}
	return v, nil
}

// SupportedTypes returns the registered appliance types, sorted.
func SupportedTypes() []ApplianceType {
	out := make([]ApplianceType, 0, len(vocabularies))
	for t := range vocabularies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rules returns the event rule table of an appliance type.
func Rules(t ApplianceType) (*RuleTable, error) {
	v, err := lookupVocabulary(t)
	if err != nil {
		return nil, err
	}
	return v.rules, nil
}

// Commands returns the command names an appliance type accepts, sorted.
func Commands(t ApplianceType) ([]string, error) {
	v, err := lookupVocabulary(t)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(v.commands))
	for name := range v.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// StaticPrograms returns the built-in program table of an appliance type.
func StaticPrograms(t ApplianceType) ([]ProgramEntry, error) {
	v, err := lookupVocabulary(t)
	if err != nil {
		return nil, err
	}
	return copyEntries(v.programs), nil
}

// SnapshotFields returns the curated snapshot field list of an appliance type.
func SnapshotFields(t ApplianceType) ([]string, error) {
	v, err := lookupVocabulary(t)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(v.snapshotFields))
	copy(out, v.snapshotFields)
	return out, nil
}
