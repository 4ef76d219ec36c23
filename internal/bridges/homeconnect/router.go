package homeconnect

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchKind reports how a key was matched against a RuleTable.
type MatchKind int

// Match kinds, in precedence order.
const (
	MatchExact MatchKind = iota
	MatchPattern
	MatchDefault
)

// ruleFunc applies one event to a device. It runs with the device lock held.
type ruleFunc func(d *Device, ev RawEvent) error

// Rule normalises one family of event keys.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string

	// Derived marks rules that change friendly status inputs.
	Derived bool

	// Snapshot marks rules that change snapshot fields.
	Snapshot bool

	apply ruleFunc
}

type patternRule struct {
	pattern string
	rule    Rule
}

// RuleTable is an ordered rule set: exact keys, then glob patterns in
// declaration order, then the default rule. Built once per vocabulary.
type RuleTable struct {
	exact    map[string]Rule
	patterns []patternRule
	fallback Rule
}

// Match returns the rule for key and how it matched.
func (t *RuleTable) Match(key string) (Rule, MatchKind) {
	if r, ok := t.exact[key]; ok {
		return r, MatchExact
	}
	for _, p := range t.patterns {
		if ok, err := path.Match(p.pattern, key); err == nil && ok {
			return p.rule, MatchPattern
		}
	}
	return t.fallback, MatchDefault
}

// Len returns the number of exact and pattern rules.
func (t *RuleTable) Len() int {
	return len(t.exact) + len(t.patterns)
}

// ruleBuilder assembles a RuleTable.
type ruleBuilder struct {
	table *RuleTable
}

func newRuleBuilder() *ruleBuilder {
	return &ruleBuilder{table: &RuleTable{
		exact:    make(map[string]Rule),
		fallback: Rule{Name: "unhandled", apply: handleUnhandled},
	}}
}

func (b *ruleBuilder) exact(key string, r Rule) *ruleBuilder {
	if _, dup := b.table.exact[key]; dup {
		panic(fmt.Sprintf("homeconnect: duplicate rule for %s", key))
	}
	b.table.exact[key] = r
	return b
}

func (b *ruleBuilder) pattern(glob string, r Rule) *ruleBuilder {
	if _, err := path.Match(glob, ""); err != nil {
		panic(fmt.Sprintf("homeconnect: bad rule pattern %q: %v", glob, err))
	}
	b.table.patterns = append(b.table.patterns, patternRule{pattern: glob, rule: r})
	return b
}

func (b *ruleBuilder) build() *RuleTable {
	return b.table
}

// =============================================================================
// Shared rules
// =============================================================================

// handleOperationState sets operationState and the switch, fires the
// completion signal on Run -> Finished, and resets progress on idle states.
func handleOperationState(d *Device, ev RawEvent) error {
	state, err := ev.Value.Enum()
	if err != nil {
		return err
	}
	previous := d.attrs().String(AttrOperationState)

	d.set(AttrOperationState, state)
	if state == StateRun {
		d.set(AttrSwitch, "on")
	} else {
		d.set(AttrSwitch, "off")
	}

	if previous == StateRun && state == StateFinished {
		d.emit(Signal{
			Kind:    SignalCompletion,
			Name:    AttrOperationState,
			Value:   state,
			Message: fmt.Sprintf("%s has finished", d.displayName()),
		})
	}

	if d.vocab.resetStates[state] {
		d.resetProgress()
	}
	return nil
}

// handleDoorState sets doorState and the open/closed contact.
func handleDoorState(d *Device, ev RawEvent) error {
	state, err := ev.Value.Enum()
	if err != nil {
		return err
	}
	d.set(AttrDoorState, state)
	if state == "Open" {
		d.set(AttrContact, "open")
	} else {
		d.set(AttrContact, "closed")
	}
	return nil
}

// durationRule stores a seconds value and its "H:MM"/"MM:SS" rendering.
// When estimate is set, a positive value also refreshes estimatedEndTime.
func durationRule(attr string, estimate bool) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		seconds, err := ev.Value.Int()
		if err != nil {
			return err
		}
		d.set(attr, seconds)
		d.set(attr+"Formatted", FormatDuration(seconds))
		if estimate && seconds > 0 {
			end := d.now().Add(secondsToDuration(seconds)).In(d.location())
			d.set(AttrEstimatedEndTime, end.Format(endTimeLayout))
		}
		return nil
	}
}

// progressRule stores a percentage and its "N%" rendering.
func progressRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		pct, err := ev.Value.Int()
		if err != nil {
			return err
		}
		d.set(attr, pct)
		d.set(attr+"Formatted", fmt.Sprintf("%d%%", pct))
		return nil
	}
}

// enumRule stores the terminal segment of the value, remapped for display.
func enumRule(attr string, display map[string]string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		v, err := ev.Value.Enum()
		if err != nil {
			return err
		}
		if friendly, ok := display[v]; ok {
			v = friendly
		}
		d.set(attr, v)
		return nil
	}
}

// boolRule stores a boolean.
func boolRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		b, err := ev.Value.Bool()
		if err != nil {
			return err
		}
		d.set(attr, b)
		return nil
	}
}

// onOffRule stores a boolean as "On" or "Off".
func onOffRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		b, err := ev.Value.Bool()
		if err != nil {
			return err
		}
		if b {
			d.set(attr, "On")
		} else {
			d.set(attr, "Off")
		}
		return nil
	}
}

// intRule stores an integer.
func intRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		n, err := ev.Value.Int()
		if err != nil {
			return err
		}
		d.set(attr, n)
		return nil
	}
}

// textRule stores the value verbatim.
func textRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		s, err := ev.Value.Text()
		if err != nil {
			return err
		}
		d.set(attr, s)
		return nil
	}
}

// programRule stores the display name of a program key. An empty key
// (no program) clears the attribute.
func programRule(attr string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		if ev.Value.IsNull() {
			d.set(attr, "")
			return nil
		}
		key, err := ev.Value.Text()
		if err != nil {
			return err
		}
		if key == "" {
			d.set(attr, "")
			return nil
		}
		d.set(attr, d.catalog.NameForKey(key))
		return nil
	}
}

// alertRule sets a maintenance status attribute. A "Present" value also
// pulses button and records lastAlert/lastAlertTime.
func alertRule(attr string, button int, message string) ruleFunc {
	return func(d *Device, ev RawEvent) error {
		v, err := ev.Value.Enum()
		if err != nil {
			return err
		}
		d.set(attr, v)
		if v != EventPresent {
			return nil
		}
		now := d.now()
		d.emit(Signal{
			Kind:    SignalButton,
			Name:    attr,
			Button:  button,
			Message: message,
		})
		d.set(AttrLastAlert, message)
		d.set(AttrLastAlertTime, d.timestamp(now))
		return nil
	}
}

// handleGenericSetting writes the key's terminal segment as a same-named
// attribute. Booleans and numbers keep their type.
func handleGenericSetting(d *Device, ev RawEvent) error {
	name := lowerFirst(ExtractEnum(ev.Key))
	if name == "" {
		return fmt.Errorf("%w: key %q has no terminal segment", ErrCoercion, ev.Key)
	}
	switch ev.Value.Kind() {
	case KindNull:
		return ErrNullValue
	case KindBool:
		b, _ := ev.Value.Bool() //nolint:errcheck // kind checked above
		d.set(name, b)
	case KindNumber:
		n, err := ev.Value.Int()
		if err != nil {
			return err
		}
		d.set(name, n)
	default:
		v, _ := ev.Value.Enum() //nolint:errcheck // kind checked above
		d.set(name, v)
	}
	return nil
}

// handleUnhandled records keys no rule covers. Status and event keys are
// vocabulary gaps and raise a diagnostic signal; options and settings are
// routine and only logged at debug.
func handleUnhandled(d *Device, ev RawEvent) error {
	now := d.now()
	d.set(AttrLastUnhandledEvent, truncate(ev.Key+"="+ev.Value.String(), maxValueLength))
	d.set(AttrLastUnhandledEventTime, d.timestamp(now))

	if strings.Contains(ev.Key, "Event.") || strings.Contains(ev.Key, "Status.") {
		d.logger.Warn("unhandled appliance key",
			"device_id", d.id,
			"key", ev.Key,
			"value", ev.Value.String())
		d.emit(Signal{
			Kind:    SignalDiagnostic,
			Name:    ev.Key,
			Value:   ev.Value.Any(),
			Message: "unhandled status or event key",
		})
		return nil
	}

	d.logger.Debug("unhandled appliance key",
		"device_id", d.id,
		"key", ev.Key)
	return nil
}

// lowerFirst lower-cases the first rune of s.
func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
