package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
	"github.com/mekatrol/imperium-core/internal/infrastructure/logging"
)

// watchReload reloads the configuration on SIGHUP until ctx ends.
func watchReload(ctx context.Context, path string, hosts *bridge.HostSettings, log *logging.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			reload(path, hosts, log)
		}
	}
}

// reload applies the log level and MQTT hosts from the file at path.
// Device definitions and other settings need a restart. An invalid file
// leaves the running settings unchanged.
func reload(path string, hosts *bridge.HostSettings, log *logging.Logger) bool {
	cfg, err := config.Load(path)
	if err != nil {
		log.Error("config reload failed, keeping current settings", "path", path, "error", err)
		return false
	}

	log.SetLevel(cfg.Logging.Level)
	changed := hosts.Replace(hostsFromConfig(cfg.MQTT))
	log.Info("configuration reloaded", "path", path, "mqtt_hosts_changed", changed, "mqtt_version", hosts.Version())
	return changed
}
