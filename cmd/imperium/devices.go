package main

import (
	"fmt"
	"strings"

	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
)

// loadDevices registers the configured devices. The first failure stops
// loading.
func loadDevices(registry *device.Registry, devices []config.DeviceConfig) error {
	for _, d := range devices {
		kind, err := device.ParseKind(d.Kind)
		if err != nil {
			return fmt.Errorf("device %q: %w", d.Key, err)
		}
		configJSON, err := d.ConfigJSON()
		if err != nil {
			return err
		}

		defs := make([]device.PointDefinition, 0, len(d.Points))
		for _, p := range d.Points {
			defs = append(defs, device.PointDefinition{
				Key:          p.Key,
				FriendlyName: p.FriendlyName,
				NativeType:   p.NativeType,
				ReadOnly:     p.ReadOnly,
				InitialValue: p.InitialValue,
			})
		}

		if _, err := device.AddDeviceInstance(d.Key, d.Controller, kind, configJSON, defs, registry,
			device.WithEnabled(d.IsEnabled()),
			device.WithOfflineTimeout(d.OfflineTimeout),
		); err != nil {
			return fmt.Errorf("loading devices: %w", err)
		}
	}
	return nil
}

// hostsFromConfig converts the configured brokers to bridge host settings.
func hostsFromConfig(c config.MQTTConfig) map[string]bridge.Host {
	out := make(map[string]bridge.Host, len(c.Hosts))
	for key, h := range c.Hosts {
		out[strings.ToLower(key)] = bridge.Host{
			Host:     h.Host,
			Port:     h.Port,
			TLS:      h.TLS,
			ClientID: h.ClientID,
			Username: h.Username,
			Password: h.Password,
		}
	}
	return out
}
