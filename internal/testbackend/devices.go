package testbackend

import (
	"cmp"
	"net/http"
	"net/netip"
	"slices"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
)

func (b *Backend) stamp() iotrac.Timestamp {
	return iotrac.Timestamp{Time: b.now().UTC()}
}

func (b *Backend) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, iotrac.RootInfo{
		Message: "IOTRAC - Camada 3 de Defesa",
		Version: "1.0.0",
		Status:  "online",
	})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	writeJSON(w, http.StatusOK, iotrac.ProtectionStatus{
		ProtectionEnabled: b.protection,
		Timestamp:         b.stamp(),
	})
}

func (b *Backend) toggleProtection(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.protection = !b.protection
	msg := "Protection disabled"
	if b.protection {
		msg = "Protection enabled"
	}
	writeJSON(w, http.StatusOK, iotrac.ToggleResponse{
		ProtectionEnabled: b.protection,
		Message:           msg,
		Timestamp:         b.stamp(),
	})
}

func (b *Backend) listLogs(w http.ResponseWriter, r *http.Request) {
	limit := iotrac.DefaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetailList(w, http.StatusBadRequest, "limit: value is not a valid integer")
			return
		}
		limit = n
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]iotrac.LogEntry, 0, min(limit, len(b.logs)))
	for i := len(b.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.logs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) command(w http.ResponseWriter, r *http.Request) {
	var req iotrac.CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Command.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid command: "+string(req.Command))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dev, ok := b.devices[req.DeviceID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Device not found")
		return
	}

	protected := b.protection && dev.ProtectionEnabled
	b.appendLog(dev, string(req.Command), iotrac.StatusSuccess)

	msg := "Command sent to device"
	if protected {
		msg = "Command sent to device through the protection layer"
	}
	writeJSON(w, http.StatusOK, iotrac.CommandResponse{
		Success:           true,
		Message:           msg,
		DeviceID:          dev.ID,
		Command:           req.Command,
		Timestamp:         b.stamp(),
		ProtectionEnabled: protected,
	})
}

func (b *Backend) listDevices(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]iotrac.Device, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, c iotrac.Device) int { return cmp.Compare(a.ID, c.ID) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req iotrac.DeviceRegister
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.DeviceType.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid device type")
		return
	}
	if _, err := netip.ParseAddr(req.IPAddress); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid IP address")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, d := range b.devices {
		if d.IPAddress == req.IPAddress {
			writeDetail(w, http.StatusConflict, "A device with this IP address is already registered")
			return
		}
	}
	dev := b.addDevice(req.DeviceType, req.IPAddress)
	writeJSON(w, http.StatusOK, *dev)
}

func (b *Backend) getDevice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev := b.deviceFromPath(w, r)
	if dev == nil {
		return
	}
	writeJSON(w, http.StatusOK, *dev)
}

func (b *Backend) deleteDevice(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev := b.deviceFromPath(w, r)
	if dev == nil {
		return
	}
	delete(b.devices, dev.ID)
	writeJSON(w, http.StatusOK, iotrac.MessageResponse{Message: "Device removed"})
}

func (b *Backend) deviceProtection(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev := b.deviceFromPath(w, r)
	if dev == nil {
		return
	}
	writeJSON(w, http.StatusOK, iotrac.DeviceProtectionStatus{
		DeviceID:          dev.ID,
		ProtectionEnabled: dev.ProtectionEnabled,
		Timestamp:         b.stamp(),
	})
}

func (b *Backend) toggleDeviceProtection(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev := b.deviceFromPath(w, r)
	if dev == nil {
		return
	}
	dev.ProtectionEnabled = !dev.ProtectionEnabled
	msg := "Device protection disabled"
	if dev.ProtectionEnabled {
		msg = "Device protection enabled"
	}
	writeJSON(w, http.StatusOK, iotrac.DeviceToggleResponse{
		DeviceID:          dev.ID,
		ProtectionEnabled: dev.ProtectionEnabled,
		Message:           msg,
		Timestamp:         b.stamp(),
	})
}

func (b *Backend) aiQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	b.mu.Lock()
	up := b.assistantUp
	b.mu.Unlock()

	if !up {
		writeDetail(w, http.StatusServiceUnavailable, "AI service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"response": map[string]string{
			"message": "Analysis for: " + req.Query,
		},
	})
}

// deviceFromPath resolves {id} or writes a 404. Callers hold b.mu.
func (b *Backend) deviceFromPath(w http.ResponseWriter, r *http.Request) *iotrac.Device {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	dev, ok := b.devices[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Device not found")
		return nil
	}
	return dev
}

func (b *Backend) addDevice(t iotrac.DeviceType, ip string) *iotrac.Device {
	b.nextDeviceID++
	dev := &iotrac.Device{
		ID:                b.nextDeviceID,
		DeviceType:        t,
		IPAddress:         ip,
		RegisteredAt:      b.stamp(),
		ProtectionEnabled: true,
	}
	b.devices[dev.ID] = dev
	return dev
}

func (b *Backend) appendLog(dev *iotrac.Device, command, status string) iotrac.LogEntry {
	b.nextLogID++
	entry := iotrac.LogEntry{
		ID:         b.nextLogID,
		DeviceID:   dev.ID,
		DeviceType: dev.DeviceType,
		IPAddress:  dev.IPAddress,
		Command:    command,
		Timestamp:  b.stamp(),
		Status:     status,
	}
	b.logs = append(b.logs, entry)
	return entry
}
