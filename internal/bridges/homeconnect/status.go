package homeconnect

import "fmt"

// AttributeView is the read side of an AttributeStore.
type AttributeView interface {
	String(name string) string
	Int(name string) int
}

// DryerFriendlyStatus summarises a dryer's state in one string.
func DryerFriendlyStatus(a AttributeView) string {
	state := a.String(AttrOperationState)
	switch state {
	case StateReady, StateInactive:
		return "Ready"
	case StateDelayedStart:
		if delay := a.String(AttrStartInRelativeFormat); delay != "" && delay != "00:00" {
			return "Starting in " + delay
		}
		return "Delayed Start"
	case StateRun:
		pct := a.Int(AttrProgramProgress)
		if phase := a.String(AttrProgramPhase); phase != "" {
			return fmt.Sprintf("%s (%d%%)", phase, pct)
		}
		if program := a.String(AttrActiveProgram); program != "" {
			return fmt.Sprintf("%s (%d%%)", program, pct)
		}
		return "Drying"
	case StatePause:
		return "Paused"
	case StateFinished:
		return "Done - Ready to Unload"
	case StateActionRequired:
		return "Action Required"
	case StateAborting:
		return "Stopping"
	case StateError:
		return "Error"
	case "":
		return "Unknown"
	default:
		return state
	}
}

// HoodFriendlyStatus summarises a hood's fan and light in one string.
func HoodFriendlyStatus(a AttributeView) string {
	level := a.Int(AttrFanLevel)
	switch {
	case level >= 6:
		return "Intensive"
	case level >= 5:
		return "High"
	case level >= 3:
		return "Medium"
	case level > 0:
		return "Low"
	case a.String(AttrFunctionalLightState) == "On":
		return "Light Only"
	default:
		return "Off"
	}
}
