package iotrac

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type DeviceType string

const (
	DeviceDrone           DeviceType = "drone"
	DeviceVehicle         DeviceType = "veículo"
	DeviceSmartLamp       DeviceType = "smart-lamp"
	DeviceSmartLock       DeviceType = "smart-lock"
	DeviceSecurityCamera  DeviceType = "security-camera"
	DeviceSmartTV         DeviceType = "smart-tv"
	DeviceSmartThermostat DeviceType = "smart-thermostat"
)

// DeviceTypes lists the types the backend registers, in display order.
var DeviceTypes = []DeviceType{
	DeviceDrone,
	DeviceVehicle,
	DeviceSmartLamp,
	DeviceSmartLock,
	DeviceSecurityCamera,
	DeviceSmartTV,
	DeviceSmartThermostat,
}

var deviceLabels = map[DeviceType]string{
	DeviceDrone:           "Drone",
	DeviceVehicle:         "Vehicle",
	DeviceSmartLamp:       "Smart Wi-Fi Lamp",
	DeviceSmartLock:       "Smart Lock",
	DeviceSecurityCamera:  "Security Camera",
	DeviceSmartTV:         "Smart TV",
	DeviceSmartThermostat: "Smart Thermostat",
}

func (t DeviceType) Valid() bool {
	_, ok := deviceLabels[t]
	return ok
}

// Label is the human-readable name, or the raw value for unknown types.
func (t DeviceType) Label() string {
	if l, ok := deviceLabels[t]; ok {
		return l
	}
	return string(t)
}

type Command string

const (
	CmdMoveUp        Command = "move_up"
	CmdMoveDown      Command = "move_down"
	CmdMoveLeft      Command = "move_left"
	CmdMoveRight     Command = "move_right"
	CmdMoveForward   Command = "move_forward"
	CmdMoveBackward  Command = "move_backward"
	CmdTurnOn        Command = "turn_on"
	CmdTurnOff       Command = "turn_off"
	CmdSetSpeed      Command = "set_speed"
	CmdGetStatus     Command = "get_status"
	CmdEmergencyStop Command = "emergency_stop"
)

var Commands = []Command{
	CmdMoveUp, CmdMoveDown, CmdMoveLeft, CmdMoveRight,
	CmdMoveForward, CmdMoveBackward, CmdTurnOn, CmdTurnOff,
	CmdSetSpeed, CmdGetStatus, CmdEmergencyStop,
}

func (c Command) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// Log statuses the backend writes.
const (
	StatusSuccess = "success"
	StatusBlocked = "blocked"
	StatusError   = "error"
	StatusWarning = "warning"
	StatusInfo    = "info"
)

// Timestamp accepts the backend's timestamps, which may lack a zone
// offset (naive UTC), as well as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("iotrac: unrecognised timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func Now() Timestamp { return Timestamp{time.Now().UTC()} }

type Device struct {
	ID                int64      `json:"id"`
	DeviceType        DeviceType `json:"device_type"`
	IPAddress         string     `json:"ip_address"`
	RegisteredAt      Timestamp  `json:"registered_at"`
	ProtectionEnabled bool       `json:"protection_enabled"`
}

type DeviceRegister struct {
	DeviceType DeviceType `json:"device_type"`
	IPAddress  string     `json:"ip_address"`
}

type RootInfo struct {
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
	Status  string `json:"status,omitempty"`
}

type ProtectionStatus struct {
	ProtectionEnabled bool      `json:"protection_enabled"`
	Timestamp         Timestamp `json:"timestamp"`
}

type ToggleResponse struct {
	ProtectionEnabled bool      `json:"protection_enabled"`
	Message           string    `json:"message"`
	Timestamp         Timestamp `json:"timestamp"`
}

type LogEntry struct {
	ID         int64      `json:"id"`
	DeviceID   int64      `json:"device_id"`
	DeviceType DeviceType `json:"device_type"`
	IPAddress  string     `json:"ip_address"`
	Command    string     `json:"command"`
	Timestamp  Timestamp  `json:"timestamp"`
	Status     string     `json:"status"`
}

type CommandRequest struct {
	DeviceID int64          `json:"device_id"`
	Command  Command        `json:"command"`
	Params   map[string]any `json:"params,omitempty"`
}

type CommandResponse struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message"`
	DeviceID          int64     `json:"device_id"`
	Command           Command   `json:"command"`
	Timestamp         Timestamp `json:"timestamp"`
	ProtectionEnabled bool      `json:"protection_enabled"`
}

type DeviceProtectionStatus struct {
	DeviceID          int64     `json:"device_id"`
	ProtectionEnabled bool      `json:"protection_enabled"`
	Timestamp         Timestamp `json:"timestamp"`
}

type DeviceToggleResponse struct {
	DeviceID          int64     `json:"device_id"`
	ProtectionEnabled bool      `json:"protection_enabled"`
	Message           string    `json:"message"`
	Timestamp         Timestamp `json:"timestamp"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
