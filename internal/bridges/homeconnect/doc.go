// Package homeconnect implements the appliance bridge for Gray Logic.
//
// It normalises telemetry reported by the appliance cloud (tumble dryers and
// range hoods) into hub attributes, derives a human-readable status, and
// translates semantic commands back into vendor program and option keys.
//
// # Architecture
//
//	┌─────────────────┐          ┌──────────────────────┐   MQTT    ┌──────────────┐
//	│   Gray Logic    │   MQTT   │   Appliance Bridge   │◄─────────►│ Cloud        │
//	│      Core       │◄────────►│     (this pkg)       │           │ connector    │
//	└─────────────────┘          └──────────────────────┘           └──────────────┘
//
// Each configured appliance is a Device. A Device owns a DeviceState
// aggregate (attributes, discovered keys, recent events, discovered
// programs) and serialises every entry point behind one mutex, so events are
// applied strictly in arrival order.
//
// # Event Pipeline
//
// For every raw event the device:
//
//  1. records the key in the telemetry recorder
//  2. matches the key against the vocabulary's rule table
//     (exact key, then ordered patterns, then the default rule)
//  3. applies the rule to the attribute store
//  4. recomputes the friendly status when a derived input changed
//  5. re-serialises the snapshot when a snapshot field changed
//
// Unknown keys never fail the pipeline; they surface as lastUnhandledEvent
// and, for status and event keys, as a diagnostic signal.
//
// # Vocabularies
//
// Vendor keys (BSH.Common.*, LaundryCare.Dryer.*, Cooking.Hood.*,
// Cooking.Common.*) are the wire contract with the cloud API. They are kept
// verbatim in dryer.go and hood.go.
//
// # Thread Safety
//
// Device, Bridge and SQLiteStateStore are safe for concurrent use.
package homeconnect
