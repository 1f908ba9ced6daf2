// Package quality keeps rolling connection statistics and grades the connection.
package quality

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// Tier is the grade of a connection
type Tier string

// Connection tiers, from best to worst
const (
	Excellent Tier = "excellent"
	Good      Tier = "good"
	Fair      Tier = "fair"
	Poor      Tier = "poor"
)

type tierThreshold struct {
	tier    Tier
	latency float64 // ms
	loss    float64 // ratio
	jitter  float64 // ms
}

// checked in order, first match wins
var tierThresholds = []tierThreshold{
	{Poor, 200, 0.10, 100},
	{Fair, 100, 0.05, 50},
	{Good, 50, 0.02, 20},
}

// RecommendedInterval returns the update interval recommended for a tier
func RecommendedInterval(tier Tier) time.Duration {
	switch tier {
	case Poor:
		return time.Millisecond * 200 // 5Hz
	case Fair:
		return time.Millisecond * 100 // 10Hz
	case Good:
		return time.Millisecond * 66 // 15Hz
	default:
		return time.Millisecond * 50 // 20Hz
	}
}

// Transport media reported by clients
const (
	ConnWifi     = "wifi"
	ConnEthernet = "ethernet"
	Conn4G       = "4g"
	Conn3G       = "3g"
	Conn2G       = "2g"
	ConnSlow2G   = "slow-2g"
)

// EstimateBandwidth returns the estimated bandwidth in Mbps of a transport medium
func EstimateBandwidth(connectionType string) float64 {
	switch strings.ToLower(connectionType) {
	case ConnWifi, ConnEthernet:
		return 50
	case Conn4G:
		return 10
	case Conn3G:
		return 2
	case Conn2G, ConnSlow2G:
		return 0.5
	default:
		return 10
	}
}

// ConnectionQuality is one evaluation of the connection
type ConnectionQuality struct {
	Latency                   float64       `json:"latency"`
	PacketLoss                float64       `json:"packetLoss"`
	Jitter                    float64       `json:"jitter"`
	Bandwidth                 float64       `json:"bandwidth"`
	ConnectionType            string        `json:"connectionType"`
	Quality                   Tier          `json:"quality"`
	RecommendedUpdateInterval time.Duration `json:"recommendedUpdateInterval"`
}

func (q ConnectionQuality) String() string {
	return fmt.Sprintf("ConnectionQuality<%s|lat=%.1fms|loss=%.1f%%|jitter=%.1fms|%s>",
		q.Quality, q.Latency, q.PacketLoss*100, q.Jitter, q.RecommendedUpdateInterval)
}

// Monitor keeps bounded rolling histories of latency, jitter and packet loss.
//
// Monitor is owned by the loop serving its connection and is not goroutine-safe.
type Monitor struct {
	historySize    int
	connectionType string
	latencies      []float64
	jitters        []float64
	received       []bool
	subscribers    []func(ConnectionQuality)
}

// NewMonitor creates a Monitor, historySize <= 0 means the default size
func NewMonitor(historySize int) *Monitor {
	if historySize <= 0 {
		historySize = consts.QUALITY_HISTORY_SIZE
	}
	return &Monitor{
		historySize: historySize,
	}
}

// SetConnectionType sets the transport medium used for bandwidth estimation
func (m *Monitor) SetConnectionType(connectionType string) {
	m.connectionType = strings.ToLower(connectionType)
}

// ConnectionType returns the transport medium
func (m *Monitor) ConnectionType() string {
	return m.connectionType
}

func appendBounded(hist []float64, v float64, size int) []float64 {
	hist = append(hist, v)
	if len(hist) > size {
		hist = hist[len(hist)-size:]
	}
	return hist
}

func (m *Monitor) markReceived(received bool) {
	m.received = append(m.received, received)
	if len(m.received) > m.historySize {
		m.received = m.received[len(m.received)-m.historySize:]
	}
}

// RecordPacket records a received packet with its latency in milliseconds
func (m *Monitor) RecordPacket(latency float64) {
	if latency < 0 || math.IsNaN(latency) || math.IsInf(latency, 0) {
		gwlog.Warnf("quality: ignored invalid latency sample %v", latency)
		return
	}
	if n := len(m.latencies); n > 0 {
		m.jitters = appendBounded(m.jitters, math.Abs(latency-m.latencies[n-1]), m.historySize)
	}
	m.latencies = appendBounded(m.latencies, latency, m.historySize)
	m.markReceived(true)
}

// RecordPacketLoss records a lost packet
func (m *Monitor) RecordPacketLoss() {
	m.markReceived(false)
}

// Samples returns the number of latency samples in history
func (m *Monitor) Samples() int {
	return len(m.latencies)
}

func mean(vals []float64, def float64) float64 {
	if len(vals) == 0 {
		return def
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// GetQuality evaluates the connection and notifies all subscribers
func (m *Monitor) GetQuality() ConnectionQuality {
	q := ConnectionQuality{
		Latency:        mean(m.latencies, consts.ASSUMED_AVERAGE_LATENCY),
		Jitter:         mean(m.jitters, 0),
		Bandwidth:      EstimateBandwidth(m.connectionType),
		ConnectionType: m.connectionType,
	}
	if len(m.received) > 0 {
		lost := 0
		for _, ok := range m.received {
			if !ok {
				lost += 1
			}
		}
		q.PacketLoss = float64(lost) / float64(len(m.received))
	}

	q.Quality = Excellent
	for _, th := range tierThresholds {
		if q.Latency > th.latency || q.PacketLoss > th.loss || q.Jitter > th.jitter {
			q.Quality = th.tier
			break
		}
	}
	q.RecommendedUpdateInterval = RecommendedInterval(q.Quality)

	for _, cb := range m.subscribers {
		cb := cb
		gwutils.RunPanicless(func() {
			cb(q)
		})
	}
	return q
}

// OnQualityChange registers a subscriber called on every quality evaluation
func (m *Monitor) OnQualityChange(cb func(ConnectionQuality)) {
	m.subscribers = append(m.subscribers, cb)
}

// Reset clears all histories
func (m *Monitor) Reset() {
	m.latencies = nil
	m.jitters = nil
	m.received = nil
}
