package iotrac

import (
	"strings"
	"time"
)

// StatusAll matches every log status in FilterLogs.
const StatusAll = "all"

// FilterLogs keeps entries whose command or device type contains text
// (case-insensitive) or whose IP address contains text, and whose status
// equals status. An empty text or status of "" / StatusAll matches all.
func FilterLogs(logs []LogEntry, text, status string) []LogEntry {
	text = strings.TrimSpace(text)
	needle := strings.ToLower(text)

	out := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		if status != "" && status != StatusAll && l.Status != status {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(l.Command), needle) &&
			!strings.Contains(l.IPAddress, text) &&
			!strings.Contains(strings.ToLower(string(l.DeviceType)), needle) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// CountByStatus tallies entries per status.
func CountByStatus(logs []LogEntry) map[string]int {
	counts := make(map[string]int)
	for _, l := range logs {
		counts[l.Status]++
	}
	return counts
}

// CountSince returns how many entries are newer than since.
func CountSince(logs []LogEntry, since time.Time) int {
	n := 0
	for _, l := range logs {
		if l.Timestamp.After(since) {
			n++
		}
	}
	return n
}
