// Package netinfo estimates network quality from observed request
// latencies and turns the estimate into content-sizing hints.
package netinfo

import (
	"sort"
	"sync"
	"time"
)

// Snapshot describes the current network quality estimate.
type Snapshot struct {
	EffectiveType string
	DownlinkMbps  float64
	RTTMillis     int
	SaveData      bool
}

// Default is the conservative estimate used before any samples arrive.
var Default = Snapshot{
	EffectiveType: "4g",
	DownlinkMbps:  10,
	RTTMillis:     50,
	SaveData:      false,
}

// IsSlow reports whether the connection should be treated as
// constrained: explicit data-saver preference, a slow effective type,
// high round-trip time, or low downlink.
func (s Snapshot) IsSlow() bool {
	if s.SaveData {
		return true
	}
	switch s.EffectiveType {
	case "slow-2g", "2g":
		return true
	}
	return s.RTTMillis > 500 || s.DownlinkMbps < 1
}

// ThumbSize picks a thumbnail variant for the connection.
func (s Snapshot) ThumbSize() string {
	if s.IsSlow() {
		return "small"
	}
	return "big"
}

// PerPage picks a result page size for the connection.
func (s Snapshot) PerPage() int {
	if s.IsSlow() {
		return 15
	}
	return 30
}

const maxSamples = 10

// Monitor collects request latency samples and derives Snapshots.
// Methods are safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	samples  []time.Duration
	saveData bool
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Observe records one request latency. Only the most recent samples
// are kept.
func (m *Monitor) Observe(latency time.Duration) {
	if latency < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, latency)
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
}

// SetSaveData records an explicit data-saver preference.
func (m *Monitor) SetSaveData(on bool) {
	m.mu.Lock()
	m.saveData = on
	m.mu.Unlock()
}

// Snapshot derives the current estimate. With no samples it returns
// the conservative default.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Default
	snap.SaveData = m.saveData
	if len(m.samples) == 0 {
		return snap
	}

	snap.RTTMillis = int(median(m.samples) / time.Millisecond)
	switch {
	case snap.RTTMillis > 2000:
		snap.EffectiveType, snap.DownlinkMbps = "slow-2g", 0.05
	case snap.RTTMillis > 1400:
		snap.EffectiveType, snap.DownlinkMbps = "2g", 0.4
	case snap.RTTMillis > 270:
		snap.EffectiveType, snap.DownlinkMbps = "3g", 1.5
	default:
		snap.EffectiveType, snap.DownlinkMbps = "4g", 10
	}
	return snap
}

func median(samples []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
