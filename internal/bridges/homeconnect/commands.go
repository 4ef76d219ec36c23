package homeconnect

import (
	"fmt"
	"strings"
)

// Vendor keys shared by every appliance.
const (
	KeyOperationState      = "BSH.Common.Status.OperationState"
	KeyDoorState           = "BSH.Common.Status.DoorState"
	KeyRemoteControlActive = "BSH.Common.Status.RemoteControlActive"
	KeyRemoteStartAllowed  = "BSH.Common.Status.RemoteControlStartAllowed"
	KeyLocalControlActive  = "BSH.Common.Status.LocalControlActive"
	KeyPowerState          = "BSH.Common.Setting.PowerState"
	KeyChildLock           = "BSH.Common.Setting.ChildLock"
	KeyActiveProgram       = "BSH.Common.Root.ActiveProgram"
	KeySelectedProgram     = "BSH.Common.Root.SelectedProgram"
	KeyRemainingTime       = "BSH.Common.Option.RemainingProgramTime"
	KeyElapsedTime         = "BSH.Common.Option.ElapsedProgramTime"
	KeyProgramProgress     = "BSH.Common.Option.ProgramProgress"
	KeyStartInRelative     = "BSH.Common.Option.StartInRelative"
	KeyDuration            = "BSH.Common.Option.Duration"
	KeyProgramFinished     = "BSH.Common.Event.ProgramFinished"
	KeyProgramAborted      = "BSH.Common.Event.ProgramAborted"
)

// UnitSeconds is the unit attached to duration options.
const UnitSeconds = "seconds"

// CallAction names one Connector method.
type CallAction string

// Connector calls.
const (
	CallStartProgram  CallAction = "startProgram"
	CallStopProgram   CallAction = "stopProgram"
	CallSetSetting    CallAction = "setSetting"
	CallSetOption     CallAction = "setSelectedProgramOption"
	CallSetPower      CallAction = "setPowerState"
	CallFetchPrograms CallAction = "requestAvailablePrograms"
)

// Call is one outbound Connector invocation.
type Call struct {
	Action  CallAction `json:"action"`
	Key     string     `json:"key,omitempty"`
	Options []Option   `json:"options,omitempty"`
	Value   any        `json:"value,omitempty"`
	On      bool       `json:"on,omitempty"`
}

func (c Call) send(conn Connector, ref string) {
	switch c.Action {
	case CallStartProgram:
		conn.StartProgram(ref, c.Key, c.Options)
	case CallStopProgram:
		conn.StopProgram(ref)
	case CallSetSetting:
		conn.SetSetting(ref, c.Key, c.Value)
	case CallSetOption:
		conn.SetSelectedProgramOption(ref, c.Key, c.Value)
	case CallSetPower:
		conn.SetPowerState(ref, c.On)
	case CallFetchPrograms:
		conn.RequestAvailablePrograms(ref)
	}
}

// Dispatch is the result of translating one command.
type Dispatch struct {
	Calls []Call

	// Program is the display name of the program involved, if any.
	Program string

	// Detail is appended to lastCommand (e.g. the program name).
	Detail string

	// Dropped lists optional parameters rejected by a constraint table.
	Dropped []string
}

// commandFunc translates parameters into connector calls. It must not
// mutate the catalog.
type commandFunc func(c *ProgramCatalog, p Params) (Dispatch, error)

// Params are the arguments of a semantic command, as decoded from JSON.
type Params map[string]any

// Has reports whether name is present and not null or blank.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// Text returns name as a trimmed string.
func (p Params) Text(name string) (string, bool) {
	if !p.Has(name) {
		return "", false
	}
	return strings.TrimSpace(ValueOf(p[name]).String()), true
}

// Int returns name as an integer.
func (p Params) Int(name string) (int, bool, error) {
	if !p.Has(name) {
		return 0, false, nil
	}
	n, err := ValueOf(p[name]).Int()
	if err != nil {
		return 0, true, fmt.Errorf("parameter %s: %w", name, err)
	}
	return n, true, nil
}

// Bool returns name as a boolean. "on" is accepted alongside "true".
func (p Params) Bool(name string) (bool, bool, error) {
	if !p.Has(name) {
		return false, false, nil
	}
	v := ValueOf(p[name])
	if v.Kind() == KindString && strings.EqualFold(strings.TrimSpace(v.String()), "on") {
		return true, true, nil
	}
	b, err := v.Bool()
	if err != nil {
		return false, true, fmt.Errorf("parameter %s: %w", name, err)
	}
	return b, true, nil
}

func (p Params) requireText(name string) (string, error) {
	s, ok := p.Text(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	return s, nil
}

func (p Params) requireInt(name string) (int, error) {
	n, ok, err := p.Int(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	return n, nil
}

func (p Params) requireBool(name string) (bool, error) {
	b, ok, err := p.Bool(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	return b, nil
}

// requireMinutes reads a minute count and returns it in whole seconds.
func (p Params) requireMinutes(name string) (int, error) {
	if !p.Has(name) {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	minutes, err := ValueOf(p[name]).Float()
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %w", name, err)
	}
	if minutes < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, name)
	}
	return int(minutes * secondsPerMinute), nil
}

// =============================================================================
// Constraint tables
// =============================================================================

// constraintTable maps user input to the allowed vendor enum values of one
// parameter. Input matching ignores case, spaces, '-' and '_'; full vendor
// keys are accepted too.
type constraintTable struct {
	name    string
	values  []string
	byInput map[string]string
}

func newConstraintTable(name, prefix string, values ...string) *constraintTable {
	t := &constraintTable{name: name, byInput: make(map[string]string)}
	for _, v := range values {
		key := prefix + "." + v
		t.values = append(t.values, key)
		t.byInput[normaliseInput(v)] = key
		t.byInput[normaliseInput(key)] = key
	}
	return t
}

// alias accepts input as another spelling of the value with terminal segment v.
func (t *constraintTable) alias(input, v string) *constraintTable {
	key, ok := t.byInput[normaliseInput(v)]
	if !ok {
		panic(fmt.Sprintf("homeconnect: alias %q for unknown %s value %q", input, t.name, v))
	}
	t.byInput[normaliseInput(input)] = key
	return t
}

// lookup returns the vendor key for input.
func (t *constraintTable) lookup(input any) (string, bool) {
	if input == nil {
		return "", false
	}
	key, ok := t.byInput[normaliseInput(ValueOf(input).String())]
	return key, ok
}

// Values returns the allowed vendor keys in declaration order.
func (t *constraintTable) Values() []string {
	out := make([]string, len(t.values))
	copy(out, t.values)
	return out
}

func normaliseInput(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

// optionList accumulates ordered program options, dropping values a
// constraint table rejects.
type optionList struct {
	options []Option
	dropped []string
}

// constrained appends key=table(p[param]) when param is present and allowed.
func (l *optionList) constrained(p Params, param, key string, table *constraintTable) {
	if !p.Has(param) {
		return
	}
	v, ok := table.lookup(p[param])
	if !ok {
		l.dropped = append(l.dropped, fmt.Sprintf("%s=%v", param, p[param]))
		return
	}
	l.options = append(l.options, Option{Key: key, Value: v})
}

func (l *optionList) add(key string, value any, unit string) {
	l.options = append(l.options, Option{Key: key, Value: value, Unit: unit})
}

// soleValue validates the only parameter of a command.
func soleValue(p Params, param string, table *constraintTable) (string, error) {
	if !p.Has(param) {
		return "", fmt.Errorf("%w: %s", ErrMissingParameter, param)
	}
	v, ok := table.lookup(p[param])
	if !ok {
		return "", fmt.Errorf("%w: %s %v", ErrInvalidValue, table.name, p[param])
	}
	return v, nil
}

// =============================================================================
// Shared translators
// =============================================================================

// startProgram resolves name and builds a start call.
func startProgram(c *ProgramCatalog, name string, opts *optionList) Dispatch {
	key := c.Resolve(name)
	display := c.NameForKey(key)
	d := Dispatch{
		Calls:   []Call{{Action: CallStartProgram, Key: key, Options: opts.options}},
		Program: display,
		Detail:  display,
		Dropped: opts.dropped,
	}
	if d.Calls[0].Options == nil {
		d.Calls[0].Options = []Option{}
	}
	return d
}

func stopProgramCommand(*ProgramCatalog, Params) (Dispatch, error) {
	return Dispatch{Calls: []Call{{Action: CallStopProgram}}}, nil
}

func setPowerCommand(_ *ProgramCatalog, p Params) (Dispatch, error) {
	on, err := p.requireBool("on")
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		Calls:  []Call{{Action: CallSetPower, On: on}},
		Detail: onOff(on),
	}, nil
}

func refreshProgramsCommand(*ProgramCatalog, Params) (Dispatch, error) {
	return Dispatch{Calls: []Call{{Action: CallFetchPrograms}}}, nil
}

// boolSettingCommand writes p["on"] to a boolean setting.
func boolSettingCommand(settingKey string) commandFunc {
	return func(_ *ProgramCatalog, p Params) (Dispatch, error) {
		on, err := p.requireBool("on")
		if err != nil {
			return Dispatch{}, err
		}
		return Dispatch{
			Calls:  []Call{{Action: CallSetSetting, Key: settingKey, Value: on}},
			Detail: onOff(on),
		}, nil
	}
}

// percentSettingCommand writes p["level"] to a brightness setting after a
// range check.
func percentSettingCommand(settingKey string, minimum, maximum int) commandFunc {
	return func(_ *ProgramCatalog, p Params) (Dispatch, error) {
		level, err := p.requireInt("level")
		if err != nil {
			return Dispatch{}, err
		}
		if level < minimum || level > maximum {
			return Dispatch{}, fmt.Errorf("%w: level %d outside %d-%d", ErrInvalidValue, level, minimum, maximum)
		}
		return Dispatch{
			Calls:  []Call{{Action: CallSetSetting, Key: settingKey, Value: level}},
			Detail: fmt.Sprintf("%d%%", level),
		}, nil
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
