package iotrac_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
)

func sampleLogs() []iotrac.LogEntry {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []iotrac.LogEntry{
		{ID: 1, DeviceType: iotrac.DeviceDrone, IPAddress: "192.168.1.10", Command: "move_up", Status: iotrac.StatusSuccess, Timestamp: iotrac.Timestamp{Time: base}},
		{ID: 2, DeviceType: iotrac.DeviceSmartLock, IPAddress: "10.0.0.7", Command: "turn_off", Status: iotrac.StatusBlocked, Timestamp: iotrac.Timestamp{Time: base.Add(time.Hour)}},
		{ID: 3, DeviceType: iotrac.DeviceSmartTV, IPAddress: "10.0.0.8", Command: "TURN_ON", Status: iotrac.StatusError, Timestamp: iotrac.Timestamp{Time: base.Add(2 * time.Hour)}},
	}
}

func ids(logs []iotrac.LogEntry) []int64 {
	out := make([]int64, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ID)
	}
	return out
}

func TestFilterLogs(t *testing.T) {
	t.Parallel()
	logs := sampleLogs()

	tests := []struct {
		name   string
		text   string
		status string
		want   []int64
	}{
		{"everything", "", iotrac.StatusAll, []int64{1, 2, 3}},
		{"empty status", "", "", []int64{1, 2, 3}},
		{"command is case-insensitive", "turn", "", []int64{2, 3}},
		{"ip substring", "10.0.0", "", []int64{2, 3}},
		{"device type", "SMART", "", []int64{2, 3}},
		{"status only", "", iotrac.StatusBlocked, []int64{2}},
		{"text and status", "turn", iotrac.StatusError, []int64{3}},
		{"no match", "reboot", "", []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ids(iotrac.FilterLogs(logs, tt.text, tt.status)))
		})
	}
}

func TestCounts(t *testing.T) {
	t.Parallel()
	logs := sampleLogs()

	counts := iotrac.CountByStatus(logs)
	require.Equal(t, 1, counts[iotrac.StatusSuccess])
	require.Equal(t, 1, counts[iotrac.StatusBlocked])
	require.Zero(t, counts[iotrac.StatusWarning])

	require.Equal(t, 2, iotrac.CountSince(logs, logs[0].Timestamp.Time))
}

func TestTimestampParsing(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`"2026-03-01T10:00:00Z"`,
		`"2026-03-01T10:00:00.123456"`,
		`"2026-03-01T10:00:00"`,
	} {
		var ts iotrac.Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		require.Equal(t, 2026, ts.Year())
		require.Equal(t, 10, ts.Hour())
	}

	var ts iotrac.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	require.True(t, ts.IsZero())
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestDeviceTypeLabels(t *testing.T) {
	t.Parallel()

	for _, dt := range iotrac.DeviceTypes {
		require.True(t, dt.Valid())
		require.NotEqual(t, string(dt), dt.Label())
	}
	require.False(t, iotrac.DeviceType("toaster").Valid())
	require.Equal(t, "toaster", iotrac.DeviceType("toaster").Label())
}
