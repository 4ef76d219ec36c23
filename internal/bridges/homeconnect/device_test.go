package homeconnect

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceValidation(t *testing.T) {
	_, err := NewDevice(DeviceOptions{Config: DeviceConfig{Type: ApplianceDryer}})
	assert.Error(t, err)

	_, err = NewDevice(DeviceOptions{Config: DeviceConfig{ID: "x", Type: "oven"}})
	assert.ErrorIs(t, err, ErrUnknownApplianceType)

	d, err := NewDevice(DeviceOptions{Config: DeviceConfig{ID: "dryer-9", Type: ApplianceDryer}})
	require.NoError(t, err)
	assert.Equal(t, "dryer-9", d.Ref(), "ref defaults to id")
}

func TestInstalledResetsState(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	assert.Equal(t, "off", td.str(AttrSwitch))
	assert.Equal(t, 0, td.num(AttrProgramProgress))
	assert.Equal(t, "00:00", td.str(AttrRemainingProgramTimeFormat))
	assert.Equal(t, "Unknown", td.str(AttrFriendlyStatus))
	assert.Len(t, td.sink.ofKind(SignalSnapshot), 1)

	require.Len(t, td.sched.delays, 1)
	assert.Equal(t, DefaultProgramFetchDelay, td.sched.delays[0])

	td.sched.run()
	calls := td.conn.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, CallFetchPrograms, calls[0].Action)
	assert.Equal(t, "HA-dryer", calls[0].Ref)
}

func TestDryerFriendlyStatusFromEvents(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvents([]RawEvent{
		ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Run"),
		ev(KeyProcessPhase, "LaundryCare.Common.EnumType.ProcessPhase.Drying"),
		ev(KeyProgramProgress, 42),
	})

	assert.Equal(t, "Drying (42%)", td.str(AttrFriendlyStatus))
	assert.Equal(t, "on", td.str(AttrSwitch))
	assert.Equal(t, "42%", td.str(AttrProgramProgressFormat))
}

func TestDryerFriendlyStatus(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{"run with phase", map[string]any{AttrOperationState: StateRun, AttrProgramPhase: "Drying", AttrProgramProgress: 42}, "Drying (42%)"},
		{"run with program", map[string]any{AttrOperationState: StateRun, AttrActiveProgram: "Cotton", AttrProgramProgress: 10}, "Cotton (10%)"},
		{"run bare", map[string]any{AttrOperationState: StateRun}, "Drying"},
		{"delayed with countdown", map[string]any{AttrOperationState: StateDelayedStart, AttrStartInRelativeFormat: "1:30"}, "Starting in 1:30"},
		{"delayed without countdown", map[string]any{AttrOperationState: StateDelayedStart, AttrStartInRelativeFormat: "00:00"}, "Delayed Start"},
		{"finished", map[string]any{AttrOperationState: StateFinished}, "Done - Ready to Unload"},
		{"ready", map[string]any{AttrOperationState: StateReady}, "Ready"},
		{"unknown", map[string]any{}, "Unknown"},
		{"unrecognised state passes through", map[string]any{AttrOperationState: "Sleeping"}, "Sleeping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAttributeStore()
			for k, v := range tt.attrs {
				s.Set(k, v)
			}
			assert.Equal(t, tt.want, DryerFriendlyStatus(s))
		})
	}
}

func TestHoodFriendlyStatus(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{"light only", map[string]any{AttrFanLevel: 0, AttrFunctionalLightState: "On"}, "Light Only"},
		{"off", map[string]any{AttrFanLevel: 0, AttrFunctionalLightState: "Off"}, "Off"},
		{"low", map[string]any{AttrFanLevel: 2}, "Low"},
		{"medium", map[string]any{AttrFanLevel: 3}, "Medium"},
		{"high", map[string]any{AttrFanLevel: 5}, "High"},
		{"intensive", map[string]any{AttrFanLevel: 7}, "Intensive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAttributeStore()
			for k, v := range tt.attrs {
				s.Set(k, v)
			}
			assert.Equal(t, tt.want, HoodFriendlyStatus(s))
		})
	}
}

func TestHoodFanLevelFromEvents(t *testing.T) {
	td := newTestDevice(t, ApplianceHood)

	td.HandleEvent(ev(KeyLighting, true))
	assert.Equal(t, "Light Only", td.str(AttrFriendlyStatus))

	td.HandleEvent(ev(KeyVentingLevel, "Cooking.Hood.EnumType.Stage.FanStage03"))
	assert.Equal(t, 3, td.num(AttrFanLevel))
	assert.Equal(t, "Stage 3", td.str(AttrVentingLevel))
	assert.Equal(t, "Medium", td.str(AttrFriendlyStatus))

	td.HandleEvent(ev(KeyIntensiveLevel, "Cooking.Hood.EnumType.IntensiveStage.IntensiveStage2"))
	assert.Equal(t, 7, td.num(AttrFanLevel))
	assert.Equal(t, "Intensive 2", td.str(AttrIntensiveLevel))
	assert.Equal(t, "Intensive", td.str(AttrFriendlyStatus))

	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Inactive"))
	assert.Equal(t, 0, td.num(AttrFanLevel))
	assert.Equal(t, "Off", td.str(AttrVentingLevel))
	assert.Equal(t, "Off", td.str(AttrIntensiveLevel))
	assert.Equal(t, "Light Only", td.str(AttrFriendlyStatus))
}

func TestHoodIdleResetClearsLevelsInSnapshot(t *testing.T) {
	td := newTestDevice(t, ApplianceHood)
	td.HandleEvents([]RawEvent{
		ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Run"),
		ev(KeyVentingLevel, "Cooking.Hood.EnumType.Stage.FanStage03"),
		ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Inactive"),
	})

	data, err := td.Snapshot()
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))

	assert.EqualValues(t, 0, snap[AttrFanLevel])
	assert.Equal(t, "Off", snap[AttrVentingLevel])
	assert.Equal(t, "Off", snap[AttrIntensiveLevel])
	assert.Equal(t, "Off", snap[AttrFriendlyStatus])
}

func TestHoodUnknownStageIsSkipped(t *testing.T) {
	td := newTestDevice(t, ApplianceHood)
	td.HandleEvent(ev(KeyVentingLevel, "Cooking.Hood.EnumType.Stage.FanStage09"))

	assert.Equal(t, "Off", td.str(AttrVentingLevel))
	assert.Equal(t, 0, td.num(AttrVentingStage))
	assert.Equal(t, 1, td.logger.count("warn"))
}

func TestRunToFinishedFiresCompletionOnce(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvents([]RawEvent{
		ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Run"),
		ev(KeyProgramProgress, 80),
		ev(KeyRemainingTime, 600),
	})
	require.Equal(t, "10:00", td.str(AttrRemainingProgramTimeFormat))

	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Finished"))
	// A repeated Finished report must not fire again.
	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Finished"))

	completions := td.sink.ofKind(SignalCompletion)
	require.Len(t, completions, 1)
	assert.Equal(t, "dryer-1", completions[0].DeviceID)
	assert.Contains(t, completions[0].Message, "Utility dryer")

	assert.Equal(t, 0, td.num(AttrProgramProgress))
	assert.Equal(t, "00:00", td.str(AttrRemainingProgramTimeFormat))
	assert.Equal(t, "off", td.str(AttrSwitch))
	assert.Equal(t, "Done - Ready to Unload", td.str(AttrFriendlyStatus))
}

func TestPauseDoesNotFireCompletion(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Pause"))
	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Finished"))
	assert.Empty(t, td.sink.ofKind(SignalCompletion))
}

func TestUnknownKeyIsRecorded(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvent(ev("Vendor.Experimental.Thing", 7))

	keys := td.DiscoveredKeys()
	require.Len(t, keys, 1)
	assert.Equal(t, "Vendor.Experimental.Thing", keys[0].Key)

	recent := td.RecentEvents()
	require.NotEmpty(t, recent)
	assert.Equal(t, "Vendor.Experimental.Thing", recent[0].Key)

	assert.Equal(t, "Vendor.Experimental.Thing=7", td.str(AttrLastUnhandledEvent))
	assert.Equal(t, "2026-03-01T14:00:00Z", td.str(AttrLastUnhandledEventTime))
	assert.Empty(t, td.sink.ofKind(SignalDiagnostic), "non status keys are routine")
}

func TestUnknownStatusKeyRaisesDiagnostic(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev("BSH.Common.Status.Mystery", "x"))

	diags := td.sink.ofKind(SignalDiagnostic)
	require.Len(t, diags, 1)
	assert.Equal(t, "BSH.Common.Status.Mystery", diags[0].Name)
	assert.Equal(t, 1, td.logger.count("warn"))
}

func TestEmptyKeyIsDiscarded(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	before := td.Attributes()

	td.HandleEvent(ev("  ", "x"))

	assert.Equal(t, before, td.Attributes())
	assert.Empty(t, td.DiscoveredKeys())
	assert.Empty(t, td.RecentEvents())
}

func TestNullAndCoercionFailuresSkipUpdate(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvent(ev(KeyDoorState, nil))
	_, ok := td.Attribute(AttrDoorState)
	assert.False(t, ok, "null value must not set the attribute")

	td.HandleEvent(ev(KeyRemainingTime, "soon"))
	assert.Equal(t, 0, td.num(AttrRemainingProgramTime))

	td.HandleEvent(ev(KeyChildLock, nil))
	_, ok = td.Attribute(AttrChildLock)
	assert.False(t, ok)

	assert.Equal(t, 3, td.logger.count("warn"))
	// The events are still booked.
	assert.Len(t, td.DiscoveredKeys(), 3)
}

func TestDoorStateAndContact(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvent(ev(KeyDoorState, "BSH.Common.EnumType.DoorState.Open"))
	assert.Equal(t, "Open", td.str(AttrDoorState))
	assert.Equal(t, "open", td.str(AttrContact))

	td.HandleEvent(ev(KeyDoorState, "BSH.Common.EnumType.DoorState.Locked"))
	assert.Equal(t, "closed", td.str(AttrContact))
}

func TestRemainingTimeSetsEstimatedEnd(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev(KeyRemainingTime, 5400))

	assert.Equal(t, 5400, td.num(AttrRemainingProgramTime))
	assert.Equal(t, "1:30", td.str(AttrRemainingProgramTimeFormat))
	assert.Equal(t, "3:30 PM", td.str(AttrEstimatedEndTime))
}

func TestProgramKeysUseDisplayNames(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvent(ev(KeyActiveProgram, "LaundryCare.Dryer.Program.TimeWarmFix.TimeWarm30"))
	assert.Equal(t, "TimeWarm30", td.str(AttrActiveProgram))

	td.HandleEvent(ev(KeyActiveProgram, nil))
	assert.Equal(t, "", td.str(AttrActiveProgram))
}

func TestEnumDisplayMapping(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvents([]RawEvent{
		ev(KeyDryingTarget, "LaundryCare.Dryer.EnumType.DryingTarget.CupboardDryPlus"),
		ev(KeyWrinkleGuard, "LaundryCare.Dryer.EnumType.WrinkleGuard.Min60"),
		ev(KeyProcessPhase, "LaundryCare.Common.EnumType.ProcessPhase.AntiCrease"),
	})
	assert.Equal(t, "Cupboard Dry Plus", td.str(AttrDryingTarget))
	assert.Equal(t, "60 min", td.str(AttrWrinkleGuard))
	assert.Equal(t, "Anti-Crease", td.str(AttrProgramPhase))
}

func TestPatternRulesWriteGenericAttributes(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvents([]RawEvent{
		ev("LaundryCare.Dryer.Option.Gentle", true),
		ev("LaundryCare.Dryer.Setting.Brightness", 3),
		ev("BSH.Common.Setting.TemperatureUnit", "BSH.Common.EnumType.TemperatureUnit.Celsius"),
	})

	v, _ := td.Attribute("gentle")
	assert.Equal(t, true, v)
	assert.Equal(t, 3, td.num("brightness"))
	assert.Equal(t, "Celsius", td.str("temperatureUnit"))
	_, ok := td.Attribute(AttrLastUnhandledEvent)
	assert.False(t, ok)
}

func TestRuleTableMatch(t *testing.T) {
	table, err := Rules(ApplianceDryer)
	require.NoError(t, err)

	rule, kind := table.Match(KeyDryingTarget)
	assert.Equal(t, MatchExact, kind)
	assert.Equal(t, "dryingTarget", rule.Name)

	rule, kind = table.Match("LaundryCare.Dryer.Option.Unknown")
	assert.Equal(t, MatchPattern, kind)
	assert.Equal(t, "dryerOption", rule.Name)

	rule, kind = table.Match("Something.Else")
	assert.Equal(t, MatchDefault, kind)
	assert.Equal(t, "unhandled", rule.Name)

	hood, err := Rules(ApplianceHood)
	require.NoError(t, err)
	_, kind = hood.Match(KeyAmbientLightColor)
	assert.Equal(t, MatchExact, kind, "exact rules win over BSH.Common.Setting.*")
}

func TestDryerAlertsPulseButtons(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	td.HandleEvent(ev(KeyContainerAlert, "BSH.Common.EnumType.EventPresentState.Present"))

	buttons := td.sink.ofKind(SignalButton)
	require.Len(t, buttons, 1)
	assert.Equal(t, ButtonContainer, buttons[0].Button)
	assert.Equal(t, "Present", td.str(AttrContainer))
	assert.Equal(t, "Empty the condensation container", td.str(AttrLastAlert))
	assert.Equal(t, "2026-03-01T14:00:00Z", td.str(AttrLastAlertTime))

	td.HandleEvent(ev(KeyContainerAlert, "BSH.Common.EnumType.EventPresentState.Off"))
	assert.Len(t, td.sink.ofKind(SignalButton), 1)
	assert.Equal(t, "Off", td.str(AttrContainer))
}

func TestHoodGreaseFilterAlert(t *testing.T) {
	td := newTestDevice(t, ApplianceHood)
	td.HandleEvent(ev(KeyGreaseFilterFull, "BSH.Common.EnumType.EventPresentState.Present"))

	buttons := td.sink.ofKind(SignalButton)
	require.Len(t, buttons, 1)
	assert.Equal(t, ButtonGreaseFilterFull, buttons[0].Button)
}

func TestAttributeSignalsOnlyOnChange(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.sink.reset()

	td.HandleEvent(ev(KeyChildLock, true))
	td.HandleEvent(ev(KeyChildLock, true))

	var lockSignals int
	for _, sig := range td.sink.ofKind(SignalAttribute) {
		if sig.Name == AttrChildLock {
			lockSignals++
		}
	}
	assert.Equal(t, 1, lockSignals)
}

func TestSnapshotContents(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Run"))

	data, err := td.Snapshot()
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "Run", snap[AttrOperationState])
	assert.Equal(t, "2026-03-01T14:00:00Z", snap[SnapshotLastUpdate])
	assert.Contains(t, snap, AttrDryingTarget)
	assert.Nil(t, snap[AttrDryingTarget])

	fields, err := SnapshotFields(ApplianceDryer)
	require.NoError(t, err)
	assert.Len(t, snap, len(fields)+1)
}

func TestMetrics(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev(KeyProgramProgress, 55))

	m := td.Metrics()
	assert.Equal(t, 55, m[AttrProgramProgress])
	assert.Contains(t, m, AttrRemainingProgramTime)
}

func TestExportRestoreState(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvents([]RawEvent{
		ev(KeyOperationState, "BSH.Common.EnumType.OperationState.Run"),
		ev(KeyProgramProgress, 30),
		ev("Vendor.Key", "x"),
	})
	td.SetAvailablePrograms([]ProgramEntry{{Name: "Wool", Key: "LaundryCare.Dryer.Program.Wool"}})

	data, err := td.ExportState()
	require.NoError(t, err)

	restored, err := NewDevice(DeviceOptions{
		Config: DeviceConfig{ID: "dryer-1", Type: ApplianceDryer, Location: time.UTC, MaxRecentEvents: -1},
		Clock:  func() time.Time { return testNow },
	})
	require.NoError(t, err)
	require.NoError(t, restored.RestoreState(data))
	restored.Updated()

	v, _ := restored.Attribute(AttrProgramProgress)
	assert.Equal(t, 30, v)
	assert.Equal(t, "Run", restored.Info().OperationState)
	assert.Len(t, restored.DiscoveredKeys(), 3)
	assert.Len(t, restored.RecentEvents(), 3)

	_, discovered := restored.Programs()
	require.Len(t, discovered, 1)
	assert.Equal(t, "Wool", discovered[0].Name)
}

func TestRestoreStateRepairsMissingParts(t *testing.T) {
	d, err := NewDevice(DeviceOptions{
		Config: DeviceConfig{ID: "hood-1", Type: ApplianceHood, MaxRecentEvents: -1},
		Clock:  func() time.Time { return testNow },
	})
	require.NoError(t, err)

	require.NoError(t, d.RestoreState([]byte(`{"attributes":{"fanLevel":4}}`)))
	d.Updated()

	assert.Equal(t, "Medium", d.Info().FriendlyStatus)
	d.HandleEvent(ev("Vendor.Key", 1))
	assert.Len(t, d.RecentEvents(), 1)

	assert.Error(t, d.RestoreState([]byte(`not json`)))
}

func TestConfigure(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)

	assert.Error(t, td.Configure(DeviceConfig{Type: ApplianceHood}))
	assert.Error(t, td.Configure(DeviceConfig{ID: "other"}))

	for i := 0; i < 5; i++ {
		td.HandleEvent(ev("Vendor.Key", i))
	}
	require.NoError(t, td.Configure(DeviceConfig{Name: "Basement dryer", MaxRecentEvents: 2}))
	assert.Len(t, td.RecentEvents(), 2)
	assert.Equal(t, "Basement dryer", td.Info().Name)
}

func TestClearDiscoveredKeys(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	td.HandleEvent(ev("Vendor.Key", 1))
	td.ClearDiscoveredKeys()
	assert.Empty(t, td.DiscoveredKeys())
	assert.Equal(t, 0, td.Info().DiscoveredKeys)
}

func TestHandlePayload(t *testing.T) {
	td := newTestDevice(t, ApplianceDryer)
	require.NoError(t, td.HandlePayload([]byte(`[{"key":"BSH.Common.Option.ProgramProgress","value":12}]`)))
	assert.Equal(t, 12, td.num(AttrProgramProgress))

	assert.ErrorIs(t, td.HandlePayload([]byte(`oops`)), ErrInvalidPayload)
}
