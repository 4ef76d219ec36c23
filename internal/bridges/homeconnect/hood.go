package homeconnect

import (
	"fmt"
	"strconv"
	"strings"
)

// Hood vendor keys.
const (
	HoodNamespace = "Cooking.Common"

	KeyVentingLevel            = "Cooking.Common.Option.Hood.VentingLevel"
	KeyIntensiveLevel          = "Cooking.Common.Option.Hood.IntensiveLevel"
	KeyLighting                = "Cooking.Common.Setting.Lighting"
	KeyLightingBrightness      = "Cooking.Common.Setting.LightingBrightness"
	KeyAmbientLightEnabled     = "BSH.Common.Setting.AmbientLightEnabled"
	KeyAmbientLightBrightness  = "BSH.Common.Setting.AmbientLightBrightness"
	KeyAmbientLightColor       = "BSH.Common.Setting.AmbientLightColor"
	KeyAmbientLightCustomColor = "BSH.Common.Setting.AmbientLightCustomColor"
	KeyGreaseFilterNearlyFull  = "Cooking.Common.Event.Hood.GreaseFilterMaxSaturationNearlyReached"
	KeyGreaseFilterFull        = "Cooking.Common.Event.Hood.GreaseFilterMaxSaturationReached"

	ProgramHoodAutomatic      = "Cooking.Common.Program.Hood.Automatic"
	ProgramHoodVenting        = "Cooking.Common.Program.Hood.Venting"
	ProgramHoodDelayedShutOff = "Cooking.Common.Program.Hood.DelayedShutOff"
)

// Hood attribute names.
const (
	AttrVentingLevel              = "ventingLevel"
	AttrIntensiveLevel            = "intensiveLevel"
	AttrVentingStage              = "ventingStage"
	AttrIntensiveStage            = "intensiveStage"
	AttrFanLevel                  = "fanLevel"
	AttrFunctionalLightState      = "functionalLightState"
	AttrFunctionalLightBrightness = "functionalLightBrightness"
	AttrAmbientLightState         = "ambientLightState"
	AttrAmbientLightBrightness    = "ambientLightBrightness"
	AttrAmbientLightColor         = "ambientLightColor"
	AttrAmbientLightCustomColor   = "ambientLightCustomColor"
	AttrGreaseFilter              = "greaseFilterStatus"
)

// Grease filter alert buttons.
const (
	ButtonGreaseFilterNearlyFull = 1
	ButtonGreaseFilterFull       = 2
)

const maxAmbientColor = 99

var hoodPrograms = []ProgramEntry{
	{Name: "Automatic", Key: ProgramHoodAutomatic},
	{Name: "Venting", Key: ProgramHoodVenting},
	{Name: "DelayedShutOff", Key: ProgramHoodDelayedShutOff},
}

var (
	ventingStages = newConstraintTable("venting stage", "Cooking.Hood.EnumType.Stage",
		"FanOff", "FanStage01", "FanStage02", "FanStage03", "FanStage04", "FanStage05").
		alias("off", "FanOff").
		alias("0", "FanOff").
		alias("1", "FanStage01").
		alias("2", "FanStage02").
		alias("3", "FanStage03").
		alias("4", "FanStage04").
		alias("5", "FanStage05")

	intensiveStages = newConstraintTable("intensive stage", "Cooking.Hood.EnumType.IntensiveStage",
		"IntensiveStageOff", "IntensiveStage1", "IntensiveStage2").
		alias("off", "IntensiveStageOff").
		alias("0", "IntensiveStageOff").
		alias("1", "IntensiveStage1").
		alias("2", "IntensiveStage2")

	ambientColors = newConstraintTable("ambient colour", "BSH.Common.EnumType.AmbientLightColor",
		ambientColorValues()...)
)

// Stage numbers by enum terminal segment.
var (
	ventingStageNumbers = map[string]int{
		"FanOff":     0,
		"FanStage01": 1,
		"FanStage02": 2,
		"FanStage03": 3,
		"FanStage04": 4,
		"FanStage05": 5,
	}

	intensiveStageNumbers = map[string]int{
		"IntensiveStageOff": 0,
		"IntensiveStage1":   1,
		"IntensiveStage2":   2,
	}
)

func ambientColorValues() []string {
	values := make([]string, 0, maxAmbientColor+1)
	values = append(values, "CustomColor")
	for i := 1; i <= maxAmbientColor; i++ {
		values = append(values, "Color"+strconv.Itoa(i))
	}
	return values
}

func init() {
	registerVocabulary(&vocabulary{
		kind:      ApplianceHood,
		namespace: HoodNamespace,
		programs:  hoodPrograms,
		rules:     hoodRules(),
		resetStates: map[string]bool{
			StateReady:    true,
			StateInactive: true,
		},
		friendlyStatus: HoodFriendlyStatus,
		snapshotFields: []string{
			AttrOperationState,
			AttrFriendlyStatus,
			AttrPowerState,
			AttrActiveProgram,
			AttrFanLevel,
			AttrVentingLevel,
			AttrIntensiveLevel,
			AttrRemainingProgramTime,
			AttrRemainingProgramTimeFormat,
			AttrEstimatedEndTime,
			AttrFunctionalLightState,
			AttrFunctionalLightBrightness,
			AttrAmbientLightState,
			AttrAmbientLightBrightness,
			AttrAmbientLightColor,
			AttrGreaseFilter,
			AttrLastAlert,
		},
		metricFields: []string{
			AttrFanLevel,
			AttrRemainingProgramTime,
			AttrFunctionalLightBrightness,
		},
		commands: map[string]commandFunc{
			"startProgram":                 hoodStartProgram,
			"setFanStage":                  hoodSetFanStage,
			"setIntensiveStage":            hoodSetIntensiveStage,
			"setDelayedShutOff":            hoodSetDelayedShutOff,
			"stopProgram":                  stopProgramCommand,
			"setFunctionalLight":           boolSettingCommand(KeyLighting),
			"setFunctionalLightBrightness": percentSettingCommand(KeyLightingBrightness, 10, 100),
			"setAmbientLight":              boolSettingCommand(KeyAmbientLightEnabled),
			"setAmbientLightBrightness":    percentSettingCommand(KeyAmbientLightBrightness, 10, 100),
			"setAmbientColor":              hoodSetAmbientColor,
			"setPower":                     setPowerCommand,
			"refreshPrograms":              refreshProgramsCommand,
		},
		onReset: func(d *Device) {
			d.set(AttrVentingStage, 0)
			d.set(AttrVentingLevel, "Off")
			d.set(AttrIntensiveStage, 0)
			d.set(AttrIntensiveLevel, "Off")
			d.set(AttrFanLevel, 0)
		},
	})
}

func hoodRules() *RuleTable {
	return commonRules(newRuleBuilder()).
		exact(KeyVentingLevel, Rule{Name: "ventingLevel", Derived: true, Snapshot: true,
			apply: handleVentingLevel}).
		exact(KeyIntensiveLevel, Rule{Name: "intensiveLevel", Derived: true, Snapshot: true,
			apply: handleIntensiveLevel}).
		exact(KeyLighting, Rule{Name: "functionalLight", Derived: true, Snapshot: true,
			apply: onOffRule(AttrFunctionalLightState)}).
		exact(KeyLightingBrightness, Rule{Name: "functionalLightBrightness", Snapshot: true,
			apply: intRule(AttrFunctionalLightBrightness)}).
		exact(KeyAmbientLightEnabled, Rule{Name: "ambientLight", Snapshot: true,
			apply: onOffRule(AttrAmbientLightState)}).
		exact(KeyAmbientLightBrightness, Rule{Name: "ambientLightBrightness", Snapshot: true,
			apply: intRule(AttrAmbientLightBrightness)}).
		exact(KeyAmbientLightColor, Rule{Name: "ambientLightColor", Snapshot: true,
			apply: enumRule(AttrAmbientLightColor, nil)}).
		exact(KeyAmbientLightCustomColor, Rule{Name: "ambientLightCustomColor",
			apply: textRule(AttrAmbientLightCustomColor)}).
		exact(KeyGreaseFilterNearlyFull, Rule{Name: "greaseFilterNearlyFull", Snapshot: true,
			apply: alertRule(AttrGreaseFilter, ButtonGreaseFilterNearlyFull, "Grease filter nearly saturated")}).
		exact(KeyGreaseFilterFull, Rule{Name: "greaseFilterFull", Snapshot: true,
			apply: alertRule(AttrGreaseFilter, ButtonGreaseFilterFull, "Grease filter saturated, clean it now")}).
		pattern("Cooking.Hood.Setting.*", Rule{Name: "hoodSetting", apply: handleGenericSetting}).
		pattern("Cooking.Common.Option.Hood.*", Rule{Name: "hoodOption", apply: handleGenericSetting}).
		pattern("BSH.Common.Setting.*", Rule{Name: "commonSetting", apply: handleGenericSetting}).
		build()
}

func handleVentingLevel(d *Device, ev RawEvent) error {
	v, err := ev.Value.Enum()
	if err != nil {
		return err
	}
	stage, ok := ventingStageNumbers[v]
	if !ok {
		return fmt.Errorf("%w: unknown venting stage %q", ErrCoercion, v)
	}
	d.set(AttrVentingStage, stage)
	if stage == 0 {
		d.set(AttrVentingLevel, "Off")
	} else {
		d.set(AttrVentingLevel, fmt.Sprintf("Stage %d", stage))
	}
	updateFanLevel(d)
	return nil
}

func handleIntensiveLevel(d *Device, ev RawEvent) error {
	v, err := ev.Value.Enum()
	if err != nil {
		return err
	}
	stage, ok := intensiveStageNumbers[v]
	if !ok {
		return fmt.Errorf("%w: unknown intensive stage %q", ErrCoercion, v)
	}
	d.set(AttrIntensiveStage, stage)
	if stage == 0 {
		d.set(AttrIntensiveLevel, "Off")
	} else {
		d.set(AttrIntensiveLevel, fmt.Sprintf("Intensive %d", stage))
	}
	updateFanLevel(d)
	return nil
}

// updateFanLevel folds venting and intensive stages into one 0-7 scale.
func updateFanLevel(d *Device) {
	attrs := d.attrs()
	if intensive := attrs.Int(AttrIntensiveStage); intensive > 0 {
		d.set(AttrFanLevel, len(ventingStageNumbers)-1+intensive)
		return
	}
	d.set(AttrFanLevel, attrs.Int(AttrVentingStage))
}

func hoodStartProgram(c *ProgramCatalog, p Params) (Dispatch, error) {
	name, err := p.requireText("program")
	if err != nil {
		return Dispatch{}, err
	}
	var opts optionList
	opts.constrained(p, "fanStage", KeyVentingLevel, ventingStages)
	opts.constrained(p, "intensiveStage", KeyIntensiveLevel, intensiveStages)
	return startProgram(c, name, &opts), nil
}

// hoodSetFanStage runs the venting program at p["stage"]; stage 0 stops it.
func hoodSetFanStage(c *ProgramCatalog, p Params) (Dispatch, error) {
	v, err := soleValue(p, "stage", ventingStages)
	if err != nil {
		return Dispatch{}, err
	}
	if ExtractEnum(v) == "FanOff" {
		return Dispatch{Calls: []Call{{Action: CallStopProgram}}, Detail: "off"}, nil
	}
	opts := optionList{options: []Option{{Key: KeyVentingLevel, Value: v}}}
	d := startProgram(c, ProgramHoodVenting, &opts)
	d.Detail = ExtractEnum(v)
	return d, nil
}

func hoodSetIntensiveStage(c *ProgramCatalog, p Params) (Dispatch, error) {
	v, err := soleValue(p, "stage", intensiveStages)
	if err != nil {
		return Dispatch{}, err
	}
	opts := optionList{options: []Option{{Key: KeyIntensiveLevel, Value: v}}}
	d := startProgram(c, ProgramHoodVenting, &opts)
	d.Detail = ExtractEnum(v)
	return d, nil
}

// hoodSetDelayedShutOff runs the fan for p["minutes"] then stops; zero cancels.
func hoodSetDelayedShutOff(c *ProgramCatalog, p Params) (Dispatch, error) {
	seconds, err := p.requireMinutes("minutes")
	if err != nil {
		return Dispatch{}, err
	}
	if seconds == 0 {
		return Dispatch{Calls: []Call{{Action: CallStopProgram}}, Detail: "cancel"}, nil
	}
	var opts optionList
	opts.add(KeyDuration, seconds, UnitSeconds)
	d := startProgram(c, ProgramHoodDelayedShutOff, &opts)
	d.Detail = FormatDuration(seconds)
	return d, nil
}

// hoodSetAmbientColor accepts a palette entry (e.g. "Color12") or a
// "#RRGGBB" custom colour.
func hoodSetAmbientColor(_ *ProgramCatalog, p Params) (Dispatch, error) {
	raw, err := p.requireText("color")
	if err != nil {
		return Dispatch{}, err
	}
	if isHexColor(raw) {
		custom := ambientColors.byInput[normaliseInput("CustomColor")]
		return Dispatch{
			Calls: []Call{
				{Action: CallSetSetting, Key: KeyAmbientLightColor, Value: custom},
				{Action: CallSetSetting, Key: KeyAmbientLightCustomColor, Value: strings.ToLower(raw)},
			},
			Detail: strings.ToLower(raw),
		}, nil
	}
	v, err := soleValue(p, "color", ambientColors)
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		Calls:  []Call{{Action: CallSetSetting, Key: KeyAmbientLightColor, Value: v}},
		Detail: ExtractEnum(v),
	}, nil
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
