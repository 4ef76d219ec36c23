package homeconnect

import "time"

// Option is one vendor option triple sent with a program or setting.
type Option struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Connector is the outbound side of the appliance cloud. Every call is
// fire-and-forget: the device never waits for, or receives, a result.
//
// deviceRef is the cloud's appliance identifier (haId).
type Connector interface {
	// StartProgram starts programKey with the given ordered options.
	StartProgram(deviceRef, programKey string, options []Option)

	// StopProgram stops the active program.
	StopProgram(deviceRef string)

	// SetSetting writes an appliance setting (e.g. lighting).
	SetSetting(deviceRef, settingKey string, value any)

	// SetSelectedProgramOption changes an option of the selected program.
	SetSelectedProgramOption(deviceRef, optionKey string, value any)

	// SetPowerState switches the appliance on or off.
	SetPowerState(deviceRef string, on bool)

	// RequestAvailablePrograms asks the cloud for the appliance's program
	// list. The answer arrives later through Device.SetAvailablePrograms.
	RequestAvailablePrograms(deviceRef string)
}

// NoopConnector discards every dispatch. It stands in when no cloud
// connector is configured.
type NoopConnector struct{}

// StartProgram implements Connector.
func (NoopConnector) StartProgram(string, string, []Option) {}

// StopProgram implements Connector.
func (NoopConnector) StopProgram(string) {}

// SetSetting implements Connector.
func (NoopConnector) SetSetting(string, string, any) {}

// SetSelectedProgramOption implements Connector.
func (NoopConnector) SetSelectedProgramOption(string, string, any) {}

// SetPowerState implements Connector.
func (NoopConnector) SetPowerState(string, bool) {}

// RequestAvailablePrograms implements Connector.
func (NoopConnector) RequestAvailablePrograms(string) {}

// Scheduler runs a callback once after a delay. Cancellation is not needed.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler implements Scheduler with time.AfterFunc.
type TimerScheduler struct{}

// After implements Scheduler.
func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
