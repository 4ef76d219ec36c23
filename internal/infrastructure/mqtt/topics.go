package mqtt

import "fmt"

// Topic prefixes.
//
// Hub-facing topics use the flat scheme graylogic/{category}/{protocol}/{id}.
// The cloud connector process exchanges raw appliance traffic under
// homeconnect/{category}/{haId}.
const (
	// TopicPrefixBridge is the base for all hub-facing bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixCore is the base for core event topics.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixCloud is the base for cloud connector topics.
	TopicPrefixCloud = "homeconnect"
)

// Topics provides builders for the MQTT topics the bridge uses.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState("homeconnect", "dryer-1")
//	// Returns: "graylogic/state/homeconnect/dryer-1"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeState returns the topic for retained device snapshots.
//
// Example: graylogic/state/homeconnect/dryer-1
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeCommand returns the topic for hub commands to a device.
//
// Example: graylogic/command/homeconnect/dryer-1
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeAck returns the topic for command acknowledgements.
//
// Example: graylogic/ack/homeconnect/dryer-1
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeHealth returns the topic for bridge health status and its LWT.
//
// Example: graylogic/health/homeconnect
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// CoreEvent returns the topic for hub events of the given kind.
//
// Example: graylogic/core/event/button
func (Topics) CoreEvent(kind string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, kind)
}

// =============================================================================
// Cloud Connector Topics
// =============================================================================

// CloudEvent returns the topic the cloud connector publishes appliance
// events on.
//
// Example: homeconnect/event/SIEMENS-WT47-1
func (Topics) CloudEvent(haID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCloud, haID)
}

// CloudPrograms returns the topic for available-program lists.
//
// Example: homeconnect/programs/SIEMENS-WT47-1
func (Topics) CloudPrograms(haID string) string {
	return fmt.Sprintf("%s/programs/%s", TopicPrefixCloud, haID)
}

// CloudRequest returns the topic the bridge publishes cloud calls on.
//
// Example: homeconnect/request/SIEMENS-WT47-1
func (Topics) CloudRequest(haID string) string {
	return fmt.Sprintf("%s/request/%s", TopicPrefixCloud, haID)
}

// =============================================================================
// Wildcard Subscriptions
// =============================================================================

// AllBridgeCommands returns a wildcard for every device command of a protocol.
func (t Topics) AllBridgeCommands(protocol string) string {
	return t.BridgeCommand(protocol, "+")
}

// AllBridgeHealth returns a wildcard for the health of every bridge.
func (Topics) AllBridgeHealth() string {
	return TopicPrefixBridge + "/health/+"
}

// AllCloudEvents returns a wildcard for events from every appliance.
func (t Topics) AllCloudEvents() string {
	return t.CloudEvent("+")
}

// AllCloudPrograms returns a wildcard for program lists from every appliance.
func (t Topics) AllCloudPrograms() string {
	return t.CloudPrograms("+")
}
