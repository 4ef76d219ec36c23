package homeconnect

// Dryer vendor keys.
const (
	DryerNamespace = "LaundryCare.Dryer"

	KeyDryingTarget     = "LaundryCare.Dryer.Option.DryingTarget"
	KeyDryerTemperature = "LaundryCare.Dryer.Option.Temperature"
	KeyWrinkleGuard     = "LaundryCare.Dryer.Option.WrinkleGuard"
	KeyProcessPhase     = "LaundryCare.Common.Option.ProcessPhase"

	KeyLintFilterAlert = "LaundryCare.Dryer.Event.CleanLintFilter"
	KeyCondenserAlert  = "LaundryCare.Dryer.Event.CleanCondenser"
	KeyContainerAlert  = "LaundryCare.Dryer.Event.EmptyCondensationContainer"
)

// Dryer attribute names.
const (
	AttrProgramPhase     = "programPhase"
	AttrDryingTarget     = "dryingTarget"
	AttrDryerTemperature = "temperature"
	AttrWrinkleGuard     = "wrinkleGuard"
	AttrLintFilter       = "lintFilterStatus"
	AttrCondenser        = "condenserStatus"
	AttrContainer        = "containerStatus"
)

// Maintenance alert buttons.
const (
	ButtonLintFilter = 1
	ButtonCondenser  = 2
	ButtonContainer  = 3
)

var dryerPrograms = []ProgramEntry{
	{Name: "Cotton", Key: "LaundryCare.Dryer.Program.Cotton"},
	{Name: "Synthetic", Key: "LaundryCare.Dryer.Program.Synthetic"},
	{Name: "Mix", Key: "LaundryCare.Dryer.Program.Mix"},
	{Name: "Blankets", Key: "LaundryCare.Dryer.Program.Blankets"},
	{Name: "BusinessShirts", Key: "LaundryCare.Dryer.Program.BusinessShirts"},
	{Name: "DownFeathers", Key: "LaundryCare.Dryer.Program.DownFeathers"},
	{Name: "Hygiene", Key: "LaundryCare.Dryer.Program.Hygiene"},
	{Name: "Jeans", Key: "LaundryCare.Dryer.Program.Jeans"},
	{Name: "Outdoor", Key: "LaundryCare.Dryer.Program.Outdoor"},
	{Name: "SyntheticRefresh", Key: "LaundryCare.Dryer.Program.SyntheticRefresh"},
	{Name: "Towels", Key: "LaundryCare.Dryer.Program.Towels"},
	{Name: "Delicates", Key: "LaundryCare.Dryer.Program.Delicates"},
	{Name: "Super40", Key: "LaundryCare.Dryer.Program.Super40"},
	{Name: "Shirts15", Key: "LaundryCare.Dryer.Program.Shirts15"},
	{Name: "Pillow", Key: "LaundryCare.Dryer.Program.Pillow"},
	{Name: "AntiShrink", Key: "LaundryCare.Dryer.Program.AntiShrink"},
	{Name: "MyDryingTime", Key: "LaundryCare.Dryer.Program.MyTime.MyDryingTime"},
	{Name: "TimeCold", Key: "LaundryCare.Dryer.Program.TimeCold"},
	{Name: "TimeWarm", Key: "LaundryCare.Dryer.Program.TimeWarm"},
	{Name: "InBasket", Key: "LaundryCare.Dryer.Program.InBasket"},
	{Name: "TimeCold20", Key: "LaundryCare.Dryer.Program.TimeColdFix.TimeCold20"},
	{Name: "TimeCold30", Key: "LaundryCare.Dryer.Program.TimeColdFix.TimeCold30"},
	{Name: "TimeCold60", Key: "LaundryCare.Dryer.Program.TimeColdFix.TimeCold60"},
	{Name: "TimeWarm30", Key: "LaundryCare.Dryer.Program.TimeWarmFix.TimeWarm30"},
	{Name: "TimeWarm40", Key: "LaundryCare.Dryer.Program.TimeWarmFix.TimeWarm40"},
	{Name: "TimeWarm60", Key: "LaundryCare.Dryer.Program.TimeWarmFix.TimeWarm60"},
	{Name: "Dessous", Key: "LaundryCare.Dryer.Program.Dessous"},
}

var (
	dryingTargets = newConstraintTable("drying target", "LaundryCare.Dryer.EnumType.DryingTarget",
		"IronDry", "GentleDry", "CupboardDry", "CupboardDryPlus", "ExtraDry")

	dryerTemperatures = newConstraintTable("temperature", "LaundryCare.Dryer.EnumType.Temperature",
		"Low", "Medium", "High").
		alias("Low heat", "Low").
		alias("Medium heat", "Medium").
		alias("High heat", "High")

	wrinkleGuards = newConstraintTable("wrinkle guard", "LaundryCare.Dryer.EnumType.WrinkleGuard",
		"Off", "Min60", "Min120").
		alias("0", "Off").
		alias("60", "Min60").
		alias("120", "Min120")
)

var (
	dryingTargetDisplay = map[string]string{
		"IronDry":         "Iron Dry",
		"GentleDry":       "Gentle Dry",
		"CupboardDry":     "Cupboard Dry",
		"CupboardDryPlus": "Cupboard Dry Plus",
		"ExtraDry":        "Extra Dry",
	}

	temperatureDisplay = map[string]string{
		"Low":    "Low Heat",
		"Medium": "Medium Heat",
		"High":   "High Heat",
	}

	wrinkleGuardDisplay = map[string]string{
		"Off":    "Off",
		"Min60":  "60 min",
		"Min120": "120 min",
	}

	processPhaseDisplay = map[string]string{
		"AntiCrease": "Anti-Crease",
		"CoolDown":   "Cooling Down",
		"PreHeat":    "Pre-Heat",
	}
)

func init() {
	registerVocabulary(&vocabulary{
		kind:      ApplianceDryer,
		namespace: DryerNamespace,
		programs:  dryerPrograms,
		rules:     dryerRules(),
		resetStates: map[string]bool{
			StateReady:    true,
			StateInactive: true,
			StateFinished: true,
		},
		friendlyStatus: DryerFriendlyStatus,
		snapshotFields: []string{
			AttrOperationState,
			AttrFriendlyStatus,
			AttrDoorState,
			AttrPowerState,
			AttrActiveProgram,
			AttrSelectedProgram,
			AttrProgramPhase,
			AttrProgramProgress,
			AttrRemainingProgramTime,
			AttrRemainingProgramTimeFormat,
			AttrElapsedProgramTimeFormat,
			AttrStartInRelativeFormat,
			AttrEstimatedEndTime,
			AttrDryingTarget,
			AttrDryerTemperature,
			AttrWrinkleGuard,
			AttrChildLock,
			AttrRemoteStartAllowed,
			AttrLintFilter,
			AttrCondenser,
			AttrContainer,
			AttrLastAlert,
		},
		metricFields: []string{
			AttrRemainingProgramTime,
			AttrElapsedProgramTime,
			AttrProgramProgress,
		},
		commands: map[string]commandFunc{
			"startProgram":    dryerStartProgram,
			"startTimedDry":   dryerStartTimedDry,
			"startDelayed":    dryerStartDelayed,
			"stopProgram":     stopProgramCommand,
			"setDryingTarget": dryerSetDryingTarget,
			"setWrinkleGuard": dryerSetWrinkleGuard,
			"setPower":        setPowerCommand,
			"setChildLock":    boolSettingCommand(KeyChildLock),
			"refreshPrograms": refreshProgramsCommand,
		},
		onReset: func(d *Device) {
			d.set(AttrProgramPhase, "")
		},
	})
}

func dryerRules() *RuleTable {
	return commonRules(newRuleBuilder()).
		exact(KeyDoorState, Rule{Name: "doorState", Snapshot: true, apply: handleDoorState}).
		exact(KeyStartInRelative, Rule{Name: "startInRelative", Derived: true, Snapshot: true,
			apply: durationRule(AttrStartInRelative, false)}).
		exact(KeyProcessPhase, Rule{Name: "programPhase", Derived: true, Snapshot: true,
			apply: enumRule(AttrProgramPhase, processPhaseDisplay)}).
		exact(KeyDryingTarget, Rule{Name: "dryingTarget", Snapshot: true,
			apply: enumRule(AttrDryingTarget, dryingTargetDisplay)}).
		exact(KeyDryerTemperature, Rule{Name: "temperature", Snapshot: true,
			apply: enumRule(AttrDryerTemperature, temperatureDisplay)}).
		exact(KeyWrinkleGuard, Rule{Name: "wrinkleGuard", Snapshot: true,
			apply: enumRule(AttrWrinkleGuard, wrinkleGuardDisplay)}).
		exact(KeyLintFilterAlert, Rule{Name: "lintFilterAlert", Snapshot: true,
			apply: alertRule(AttrLintFilter, ButtonLintFilter, "Clean the lint filter")}).
		exact(KeyCondenserAlert, Rule{Name: "condenserAlert", Snapshot: true,
			apply: alertRule(AttrCondenser, ButtonCondenser, "Clean the condenser")}).
		exact(KeyContainerAlert, Rule{Name: "containerAlert", Snapshot: true,
			apply: alertRule(AttrContainer, ButtonContainer, "Empty the condensation container")}).
		pattern("LaundryCare.Dryer.Option.*", Rule{Name: "dryerOption", apply: handleGenericSetting}).
		pattern("LaundryCare.Dryer.Setting.*", Rule{Name: "dryerSetting", apply: handleGenericSetting}).
		pattern("BSH.Common.Setting.*", Rule{Name: "commonSetting", apply: handleGenericSetting}).
		build()
}

// commonRules adds the rules every appliance shares.
func commonRules(b *ruleBuilder) *ruleBuilder {
	return b.
		exact(KeyOperationState, Rule{Name: "operationState", Derived: true, Snapshot: true,
			apply: handleOperationState}).
		exact(KeyActiveProgram, Rule{Name: "activeProgram", Derived: true, Snapshot: true,
			apply: programRule(AttrActiveProgram)}).
		exact(KeySelectedProgram, Rule{Name: "selectedProgram", Snapshot: true,
			apply: programRule(AttrSelectedProgram)}).
		exact(KeyRemainingTime, Rule{Name: "remainingProgramTime", Snapshot: true,
			apply: durationRule(AttrRemainingProgramTime, true)}).
		exact(KeyElapsedTime, Rule{Name: "elapsedProgramTime", Snapshot: true,
			apply: durationRule(AttrElapsedProgramTime, false)}).
		exact(KeyProgramProgress, Rule{Name: "programProgress", Derived: true, Snapshot: true,
			apply: progressRule(AttrProgramProgress)}).
		exact(KeyPowerState, Rule{Name: "powerState", Snapshot: true,
			apply: enumRule(AttrPowerState, nil)}).
		exact(KeyChildLock, Rule{Name: "childLock", Snapshot: true,
			apply: boolRule(AttrChildLock)}).
		exact(KeyRemoteControlActive, Rule{Name: "remoteControlActive",
			apply: boolRule(AttrRemoteControlActive)}).
		exact(KeyRemoteStartAllowed, Rule{Name: "remoteControlStartAllowed", Snapshot: true,
			apply: boolRule(AttrRemoteStartAllowed)}).
		exact(KeyLocalControlActive, Rule{Name: "localControlActive",
			apply: boolRule(AttrLocalControlActive)}).
		exact(KeyProgramFinished, Rule{Name: "programFinished",
			apply: enumRule(AttrProgramFinished, nil)}).
		exact(KeyProgramAborted, Rule{Name: "programAborted",
			apply: enumRule(AttrProgramAborted, nil)})
}

func dryerStartProgram(c *ProgramCatalog, p Params) (Dispatch, error) {
	name, err := p.requireText("program")
	if err != nil {
		return Dispatch{}, err
	}
	var opts optionList
	opts.constrained(p, "dryingTarget", KeyDryingTarget, dryingTargets)
	opts.constrained(p, "temperature", KeyDryerTemperature, dryerTemperatures)
	opts.constrained(p, "wrinkleGuard", KeyWrinkleGuard, wrinkleGuards)
	return startProgram(c, name, &opts), nil
}

// dryerStartTimedDry runs a timed program (TimeWarm unless program is given)
// for p["minutes"].
func dryerStartTimedDry(c *ProgramCatalog, p Params) (Dispatch, error) {
	seconds, err := p.requireMinutes("minutes")
	if err != nil {
		return Dispatch{}, err
	}
	name, ok := p.Text("program")
	if !ok {
		name = "TimeWarm"
	}
	var opts optionList
	opts.constrained(p, "temperature", KeyDryerTemperature, dryerTemperatures)
	opts.add(KeyDuration, seconds, UnitSeconds)
	return startProgram(c, name, &opts), nil
}

// dryerStartDelayed starts a program after p["delay"] minutes.
func dryerStartDelayed(c *ProgramCatalog, p Params) (Dispatch, error) {
	name, err := p.requireText("program")
	if err != nil {
		return Dispatch{}, err
	}
	seconds, err := p.requireMinutes("delay")
	if err != nil {
		return Dispatch{}, err
	}
	var opts optionList
	opts.constrained(p, "dryingTarget", KeyDryingTarget, dryingTargets)
	opts.constrained(p, "temperature", KeyDryerTemperature, dryerTemperatures)
	opts.constrained(p, "wrinkleGuard", KeyWrinkleGuard, wrinkleGuards)
	opts.add(KeyStartInRelative, seconds, UnitSeconds)
	return startProgram(c, name, &opts), nil
}

func dryerSetDryingTarget(_ *ProgramCatalog, p Params) (Dispatch, error) {
	v, err := soleValue(p, "dryingTarget", dryingTargets)
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		Calls:  []Call{{Action: CallSetOption, Key: KeyDryingTarget, Value: v}},
		Detail: dryingTargetDisplay[ExtractEnum(v)],
	}, nil
}

func dryerSetWrinkleGuard(_ *ProgramCatalog, p Params) (Dispatch, error) {
	v, err := soleValue(p, "wrinkleGuard", wrinkleGuards)
	if err != nil {
		return Dispatch{}, err
	}
	return Dispatch{
		Calls:  []Call{{Action: CallSetOption, Key: KeyWrinkleGuard, Value: v}},
		Detail: wrinkleGuardDisplay[ExtractEnum(v)],
	}, nil
}
