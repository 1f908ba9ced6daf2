package quality

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestPoorLatency(t *testing.T) {
	m := NewMonitor(0)
	for _, lat := range []float64{300, 250, 280} {
		m.RecordPacket(lat)
	}
	q := m.GetQuality()
	assert.Equal(t, Poor, q.Quality)
	assert.Equal(t, time.Millisecond*200, q.RecommendedUpdateInterval)
	assert.Equal(t, 0.0, q.PacketLoss)
	assert.Equal(t, 830.0/3, q.Latency)
	assert.Equal(t, 40.0, q.Jitter) // |250-300|, |280-250|
}

func TestNoHistory(t *testing.T) {
	q := NewMonitor(10).GetQuality()
	assert.Equal(t, 50.0, q.Latency)
	assert.Equal(t, 0.0, q.PacketLoss)
	assert.Equal(t, Excellent, q.Quality)
	assert.Equal(t, time.Millisecond*50, q.RecommendedUpdateInterval)
	assert.Equal(t, 10.0, q.Bandwidth)
}

func TestTiers(t *testing.T) {
	cases := []struct {
		latencies []float64
		losses    int
		tier      Tier
	}{
		{[]float64{20, 20, 20}, 0, Excellent},
		{[]float64{60, 60, 60}, 0, Good},
		{[]float64{120, 120, 120}, 0, Fair},
		{[]float64{10, 40, 10, 40}, 0, Good},   // jitter 30
		{[]float64{10, 70, 10, 70}, 0, Fair},   // jitter 60
		{[]float64{10, 150, 10, 150}, 0, Poor}, // jitter 140
		{[]float64{10, 10, 10, 10, 10, 10, 10, 10, 10}, 1, Fair},
		{[]float64{10, 10, 10, 10, 10, 10, 10, 10}, 2, Poor},
	}
	for _, c := range cases {
		m := NewMonitor(50)
		for _, lat := range c.latencies {
			m.RecordPacket(lat)
		}
		for i := 0; i < c.losses; i++ {
			m.RecordPacketLoss()
		}
		q := m.GetQuality()
		assert.Tf(t, q.Quality == c.tier, "%v with %d losses: expected %s, got %s", c.latencies, c.losses, c.tier, q)
	}
}

func TestLossRatio(t *testing.T) {
	m := NewMonitor(50)
	m.RecordPacket(10)
	m.RecordPacket(10)
	m.RecordPacket(10)
	m.RecordPacketLoss()
	assert.Equal(t, 0.25, m.GetQuality().PacketLoss)
}

func TestBoundedHistory(t *testing.T) {
	m := NewMonitor(5)
	for i := 0; i < 100; i++ {
		m.RecordPacketLoss()
	}
	for i := 0; i < 5; i++ {
		m.RecordPacket(300)
	}
	for i := 0; i < 5; i++ {
		m.RecordPacket(10)
	}
	assert.Equal(t, 5, m.Samples())
	q := m.GetQuality()
	assert.Equal(t, 10.0, q.Latency)
	assert.Equal(t, 0.0, q.PacketLoss)

	m.RecordPacket(-1)
	assert.Equal(t, 5, m.Samples())
	m.Reset()
	assert.Equal(t, 0, m.Samples())
}

func TestBandwidth(t *testing.T) {
	m := NewMonitor(0)
	expected := map[string]float64{
		"wifi":     50,
		"ethernet": 50,
		"4G":       10,
		"3g":       2,
		"2g":       0.5,
		"slow-2g":  0.5,
		"":         10,
		"carrier":  10,
	}
	for conn, bw := range expected {
		m.SetConnectionType(conn)
		assert.Tf(t, m.GetQuality().Bandwidth == bw, "%s: expected %v", conn, bw)
	}
}

func TestSubscribersIsolated(t *testing.T) {
	m := NewMonitor(0)
	var calls []Tier
	m.OnQualityChange(func(q ConnectionQuality) {
		panic("bad subscriber")
	})
	m.OnQualityChange(func(q ConnectionQuality) {
		calls = append(calls, q.Quality)
	})

	m.GetQuality()
	m.RecordPacket(500)
	q := m.GetQuality()
	assert.Equal(t, Poor, q.Quality)
	assert.Equal(t, []Tier{Excellent, Poor}, calls)
}
