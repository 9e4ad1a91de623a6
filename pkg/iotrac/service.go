// Package iotrac wraps the IOTRAC backend's device, protection, log and
// command endpoints.
package iotrac

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var (
	ErrUnknownDeviceType = errors.New("iotrac: unknown device type")
	ErrUnknownCommand    = errors.New("iotrac: unknown command")
	ErrInvalidIP         = errors.New("iotrac: invalid IP address")
	ErrInvalidDeviceID   = errors.New("iotrac: invalid device id")
)

// DefaultLogLimit matches the log screen's page size.
const DefaultLogLimit = 100

// Doer is the part of apiclient.Client the service uses.
type Doer interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

type Service struct {
	client Doer
}

func NewService(client Doer) *Service {
	return &Service{client: client}
}

// Root checks the backend is reachable.
func (s *Service) Root(ctx context.Context) (RootInfo, error) {
	var out RootInfo
	err := s.client.Get(ctx, "/", &out)
	return out, err
}

func (s *Service) ProtectionStatus(ctx context.Context) (ProtectionStatus, error) {
	var out ProtectionStatus
	err := s.client.Get(ctx, "/status", &out)
	return out, err
}

func (s *Service) ToggleProtection(ctx context.Context) (ToggleResponse, error) {
	var out ToggleResponse
	err := s.client.Post(ctx, "/toggle_protection", nil, &out)
	return out, err
}

// Logs returns the most recent entries. limit <= 0 means DefaultLogLimit.
func (s *Service) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	var out []LogEntry
	err := s.client.Get(ctx, "/logs?limit="+strconv.Itoa(limit), &out)
	return out, err
}

// SendCommand rejects unknown commands locally.
func (s *Service) SendCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	if !req.Command.Valid() {
		return CommandResponse{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	if req.DeviceID <= 0 {
		return CommandResponse{}, ErrInvalidDeviceID
	}

	var out CommandResponse
	err := s.client.Post(ctx, "/command", req, &out)
	return out, err
}

func (s *Service) Devices(ctx context.Context) ([]Device, error) {
	var out []Device
	err := s.client.Get(ctx, "/devices", &out)
	return out, err
}

func (s *Service) Device(ctx context.Context, id int64) (Device, error) {
	var out Device
	err := s.client.Get(ctx, devicePath(id), &out)
	return out, err
}

// RegisterDevice validates the type and IP address locally before calling
// the backend. The stored IP is the canonical form of the input.
func (s *Service) RegisterDevice(ctx context.Context, req DeviceRegister) (Device, error) {
	if !req.DeviceType.Valid() {
		return Device{}, fmt.Errorf("%w: %q", ErrUnknownDeviceType, req.DeviceType)
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(req.IPAddress))
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrInvalidIP, err)
	}
	req.IPAddress = addr.String()

	var out Device
	err = s.client.Post(ctx, "/device/register", req, &out)
	return out, err
}

func (s *Service) DeleteDevice(ctx context.Context, id int64) (MessageResponse, error) {
	var out MessageResponse
	err := s.client.Delete(ctx, devicePath(id), &out)
	return out, err
}

func (s *Service) DeviceProtection(ctx context.Context, id int64) (DeviceProtectionStatus, error) {
	var out DeviceProtectionStatus
	err := s.client.Get(ctx, devicePath(id)+"/protection", &out)
	return out, err
}

func (s *Service) ToggleDeviceProtection(ctx context.Context, id int64) (DeviceToggleResponse, error) {
	var out DeviceToggleResponse
	err := s.client.Post(ctx, devicePath(id)+"/protection/toggle", nil, &out)
	return out, err
}

func devicePath(id int64) string {
	return "/devices/" + strconv.FormatInt(id, 10)
}
