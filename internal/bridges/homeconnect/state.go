package homeconnect

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApplianceType identifies a vocabulary.
type ApplianceType string

// Supported appliance types.
const (
	ApplianceDryer ApplianceType = "dryer"
	ApplianceHood  ApplianceType = "hood"
)

// Attribute names shared by every appliance.
const (
	AttrOperationState             = "operationState"
	AttrSwitch                     = "switch"
	AttrDoorState                  = "doorState"
	AttrContact                    = "contact"
	AttrFriendlyStatus             = "friendlyStatus"
	AttrActiveProgram              = "activeProgram"
	AttrSelectedProgram            = "selectedProgram"
	AttrRemainingProgramTime       = "remainingProgramTime"
	AttrElapsedProgramTime         = "elapsedProgramTime"
	AttrProgramProgress            = "programProgress"
	AttrStartInRelative            = "startInRelative"
	AttrEstimatedEndTime           = "estimatedEndTime"
	AttrPowerState                 = "powerState"
	AttrRemoteControlActive        = "remoteControlActive"
	AttrRemoteStartAllowed         = "remoteControlStartAllowed"
	AttrLocalControlActive         = "localControlActive"
	AttrChildLock                  = "childLock"
	AttrProgramFinished            = "programFinished"
	AttrProgramAborted             = "programAborted"
	AttrLastAlert                  = "lastAlert"
	AttrLastAlertTime              = "lastAlertTime"
	AttrLastUnhandledEvent         = "lastUnhandledEvent"
	AttrLastUnhandledEventTime     = "lastUnhandledEventTime"
	AttrLastCommand                = "lastCommand"
	AttrLastCommandTime            = "lastCommandTime"
	AttrLastSelectedProgram        = "lastSelectedProgram"
	AttrRemainingProgramTimeFormat = AttrRemainingProgramTime + "Formatted"
	AttrElapsedProgramTimeFormat   = AttrElapsedProgramTime + "Formatted"
	AttrProgramProgressFormat      = AttrProgramProgress + "Formatted"
	AttrStartInRelativeFormat      = AttrStartInRelative + "Formatted"
)

// Operation state enum values (terminal segments).
const (
	StateInactive       = "Inactive"
	StateReady          = "Ready"
	StateDelayedStart   = "DelayedStart"
	StateRun            = "Run"
	StatePause          = "Pause"
	StateActionRequired = "ActionRequired"
	StateFinished       = "Finished"
	StateError          = "Error"
	StateAborting       = "Aborting"
)

// EventPresent is the terminal segment of an active appliance event.
const EventPresent = "Present"

// endTimeLayout renders the estimated end time.
const endTimeLayout = "3:04 PM"

// DeviceState is the persisted aggregate for one device.
type DeviceState struct {
	Attributes *AttributeStore    `json:"attributes"`
	Telemetry  *TelemetryRecorder `json:"telemetry"`
	Programs   []ProgramEntry     `json:"discovered_programs"`
	Installed  time.Time          `json:"installed_at"`
}

// newDeviceState returns an empty state bounded to maxRecent events.
func newDeviceState(maxRecent int, now time.Time) *DeviceState {
	return &DeviceState{
		Attributes: NewAttributeStore(),
		Telemetry:  NewTelemetryRecorder(maxRecent),
		Programs:   []ProgramEntry{},
		Installed:  now,
	}
}

// ensure initialises any nil member. It reports whether anything was missing.
func (s *DeviceState) ensure(maxRecent int) bool {
	repaired := false
	if s.Attributes == nil {
		s.Attributes = NewAttributeStore()
		repaired = true
	}
	if s.Telemetry == nil {
		s.Telemetry = NewTelemetryRecorder(maxRecent)
		repaired = true
	} else {
		s.Telemetry.ensure()
	}
	if s.Programs == nil {
		s.Programs = []ProgramEntry{}
		repaired = true
	}
	return repaired
}

// decodeDeviceState parses a persisted state blob.
func decodeDeviceState(data []byte) (*DeviceState, error) {
	var s DeviceState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding device state: %w", err)
	}
	return &s, nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
