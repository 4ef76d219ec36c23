package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-appliances/internal/bridges/homeconnect"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/mqtt"
)

// startBridge builds the appliance bridge from configuration and starts it.
// influxClient may be nil.
func startBridge(ctx context.Context, cfg *config.Config, mqttClient *mqtt.Client, store homeconnect.StateStore, influxClient *influxdb.Client, log *logging.Logger) (*homeconnect.Bridge, error) {
	opts := homeconnect.BridgeOptions{
		Config:     bridgeConfig(cfg),
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Store:      store,
		Logger:     log.Component("homeconnect"),
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if influxClient != nil {
		opts.Metrics = influxClient
	}

	bridge, err := homeconnect.NewBridge(opts)
	if err != nil {
		return nil, fmt.Errorf("creating appliance bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, fmt.Errorf("starting appliance bridge: %w", err)
	}
	log.Info("appliance bridge started",
		"bridge_id", cfg.Appliances.BridgeID,
		"devices", len(bridge.Devices()),
	)
	return bridge, nil
}

// bridgeConfig maps the appliances section onto the bridge configuration.
func bridgeConfig(cfg *config.Config) homeconnect.BridgeConfig {
	ac := &cfg.Appliances
	devices := make([]homeconnect.DeviceConfig, 0, len(ac.Devices))
	for _, d := range ac.Devices {
		devices = append(devices, homeconnect.DeviceConfig{
			ID:                d.ID,
			Name:              d.Name,
			Ref:               d.Ref(),
			Type:              homeconnect.ApplianceType(d.Type),
			Location:          d.Location(cfg.Site.Timezone),
			MaxRecentEvents:   ac.RecentEventsLimit(d),
			ProgramFetchDelay: ac.GetProgramFetchDelay(),
		})
	}
	return homeconnect.BridgeConfig{
		BridgeID:         ac.BridgeID,
		Version:          version,
		HealthInterval:   ac.GetHealthInterval(),
		PersistState:     ac.PersistState,
		HistoryRetention: ac.GetHistoryRetention(),
		Devices:          devices,
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. Infrastructure handlers return an error; bridge
// handlers do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements homeconnect.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements homeconnect.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements homeconnect.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
