package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/point"
)

// deviceView is the JSON shape of a device instance.
type deviceView struct {
	Key               string         `json:"key"`
	Controller        string         `json:"controller"`
	Kind              string         `json:"kind"`
	Enabled           bool           `json:"enabled"`
	Online            bool           `json:"online"`
	OfflineTimeout    string         `json:"offlineTimeout,omitempty"`
	LastCommunication *time.Time     `json:"lastCommunication"`
	Points            []*point.Point `json:"points,omitempty"`
}

func newDeviceView(inst *device.Instance) deviceView {
	v := deviceView{
		Key:        inst.Key,
		Controller: inst.ControllerKey,
		Kind:       inst.Kind.String(),
		Enabled:    inst.Enabled,
		Online:     inst.Online,
		Points:     inst.Points,
	}
	if inst.OfflineTimeout > 0 {
		v.OfflineTimeout = inst.OfflineTimeout.String()
	}
	if !inst.LastCommunication.IsZero() {
		ts := inst.LastCommunication.UTC()
		v.LastCommunication = &ts
	}
	return v
}

// handleListDevices returns all devices without their points.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	instances := s.registry.GetDeviceInstances(false)
	views := make([]deviceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, newDeviceView(inst))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns one device with its points.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	inst, err := s.registry.GetDeviceInstance(chi.URLParam(r, "key"), true)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(inst))
}

// handleGetDevicePoints returns a device's points.
func (s *Server) handleGetDevicePoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.registry.GetDevicePoints(chi.URLParam(r, "key"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points, "count": len(points)})
}

// devicePatch is the body of PATCH /devices/{key}.
type devicePatch struct {
	Enabled *bool `json:"enabled"`
}

// handlePatchDevice enables or disables a device.
func (s *Server) handlePatchDevice(w http.ResponseWriter, r *http.Request) {
	var patch devicePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if patch.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.registry.SetDeviceEnabled(key, *patch.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	s.logger.Info("device enabled flag changed", "device", key, "enabled", *patch.Enabled)

	inst, err := s.registry.GetDeviceInstance(key, false)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(inst))
}
