package batch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/xiaonanln/worldsync/engine/proto"
	"github.com/xiaonanln/worldsync/engine/quality"
)

func priorities(packet *proto.NetworkPacket) []int {
	var res []int
	for _, m := range packet.Messages {
		res = append(res, m.Priority)
	}
	return res
}

func TestPriorityOrder(t *testing.T) {
	b := NewBatcher(100, time.Millisecond*50)
	for _, p := range []int{1, 10, 5} {
		b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, p, 0), p)
	}
	packet := b.Flush(time.Time{})
	assert.Equal(t, []int{10, 5, 1}, priorities(packet))
	assert.T(t, b.Flush(time.Time{}) == nil, "flush of empty batcher should be nil")
}

func TestStableOrder(t *testing.T) {
	b := NewBatcher(100, 0)
	for i := 0; i < 20; i++ {
		b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, i, 0), i%3)
	}
	packet := b.Flush(time.Time{})
	last := map[int]int{}
	for i, m := range packet.Messages {
		if i > 0 {
			assert.T(t, packet.Messages[i-1].Priority >= m.Priority, "not sorted")
		}
		if prev, ok := last[m.Priority]; ok {
			assert.T(t, prev < m.Data.(int), "not stable")
		}
		last[m.Priority] = m.Data.(int)
	}
}

func TestRandomOrder(t *testing.T) {
	b := NewBatcher(50, 0)
	for i := 0; i < 80; i++ {
		p := rand.Intn(16) - 3
		b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, nil, 0), p)
	}
	for b.Pending() > 0 {
		packet := b.Flush(time.Time{})
		assert.T(t, len(packet.Messages) <= 50, "batch too large")
		for i, m := range packet.Messages {
			assert.T(t, m.Priority >= 0 && m.Priority <= 10, "priority not clamped")
			if i > 0 {
				assert.T(t, packet.Messages[i-1].Priority >= m.Priority, "not sorted")
			}
		}
	}
}

func TestQueueCap(t *testing.T) {
	b := NewBatcher(5, 0)
	for i := 0; i < 10; i++ {
		b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, i, 0), proto.PriorityNormal)
	}
	assert.Equal(t, 10, b.Pending())
	b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, 10, 0), proto.PriorityNormal)
	assert.Equal(t, 5, b.Pending())
	assert.Equal(t, 6, b.Dropped())

	packet := b.Flush(time.Time{})
	assert.Equal(t, 5, len(packet.Messages))
	assert.Equal(t, 0, b.Pending())
}

func TestFlushLimit(t *testing.T) {
	b := NewBatcher(3, 0)
	for i := 0; i < 5; i++ {
		b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, i, 0), proto.PriorityNormal)
	}
	assert.Equal(t, 3, len(b.Flush(time.Time{}).Messages))
	assert.Equal(t, 2, b.Pending())
	packet := b.Flush(time.Time{})
	assert.Equal(t, 3, packet.Messages[0].Data)
	assert.Equal(t, 4, packet.Messages[1].Data)
}

func TestCriticalPath(t *testing.T) {
	b := NewBatcher(10, time.Second)
	var sent []*proto.NetworkPacket
	b.SetImmediateSender(func(packet *proto.NetworkPacket) {
		sent = append(sent, packet)
	})
	b.Add(proto.NewMessage(proto.MT_ENTITY_DELTA, nil, 0), proto.PriorityNormal)
	b.Add(proto.NewMessage(proto.MT_DISCONNECT, nil, 0), proto.PriorityCritical)
	b.Add(proto.NewMessage(proto.MT_DISCONNECT, nil, 0), 42)
	assert.Equal(t, 2, len(sent))
	assert.Equal(t, proto.MT_DISCONNECT, sent[0].Messages[0].Type)
	assert.Equal(t, 10, sent[1].Messages[0].Priority)
	assert.Equal(t, 1, b.Pending())

	b.SetImmediateSender(nil)
	b.Add(proto.NewMessage(proto.MT_DISCONNECT, nil, 0), proto.PriorityCritical)
	assert.Equal(t, 2, b.Pending())
	assert.Equal(t, proto.MT_DISCONNECT, b.Flush(time.Time{}).Messages[0].Type)
}

func TestDue(t *testing.T) {
	b := NewBatcher(10, time.Millisecond*100)
	now := time.Now()
	assert.T(t, b.Due(now), "new batcher should be due")
	b.Flush(now)
	assert.T(t, !b.Due(now), "should not be due")
	assert.T(t, b.Due(now.Add(time.Millisecond*100)), "should be due")
	b.SetInterval(0)
	assert.Equal(t, time.Millisecond*50, b.Interval())
	b.SetMaxBatchSize(-1)
	assert.Equal(t, 100, b.MaxBatchSize())
}

func TestAdaptiveInterval(t *testing.T) {
	mb := NewMobileBatcher(100, time.Millisecond*50, true, false)
	monitor := quality.NewMonitor(0)
	mb.Watch(monitor)

	for _, lat := range []float64{300, 250, 280} {
		monitor.RecordPacket(lat)
	}
	monitor.GetQuality()
	assert.Equal(t, time.Millisecond*200, mb.Interval())

	monitor.Reset()
	for _, lat := range []float64{120, 120} {
		monitor.RecordPacket(lat)
	}
	monitor.GetQuality()
	assert.Equal(t, time.Millisecond*100, mb.Interval())

	monitor.Reset()
	monitor.RecordPacket(10)
	monitor.GetQuality()
	assert.Equal(t, time.Millisecond*50, mb.Interval())

	monitor.SetConnectionType("3g")
	monitor.GetQuality()
	assert.Equal(t, time.Millisecond*100, mb.Interval())

	fixed := NewMobileBatcher(100, time.Millisecond*70, false, false)
	fixed.OnQualityChange(quality.ConnectionQuality{Quality: quality.Poor})
	assert.Equal(t, time.Millisecond*70, fixed.Interval())
}

func TestIntervalFor(t *testing.T) {
	assert.Equal(t, time.Millisecond*200, IntervalFor(quality.Poor, ""))
	assert.Equal(t, time.Millisecond*100, IntervalFor(quality.Fair, "wifi"))
	assert.Equal(t, time.Millisecond*50, IntervalFor(quality.Good, "4g"))
	assert.Equal(t, time.Millisecond*50, IntervalFor(quality.Excellent, ""))
	assert.Equal(t, time.Millisecond*200, IntervalFor(quality.Excellent, "2g"))
}

func TestDedup(t *testing.T) {
	mb := NewMobileBatcher(100, 0, false, true)
	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, map[string]interface{}{"x": 1.0, "y": 2.0}, 0), proto.PriorityOwnState)
	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, map[string]interface{}{"x": 1.0, "y": 2.0}, 0), proto.PriorityOwnState)
	assert.Equal(t, 1, mb.Pending())
	assert.Equal(t, 1, mb.Deduped())

	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, map[string]interface{}{"x": 1.5, "y": 2.0}, 0), proto.PriorityOwnState)
	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, map[string]interface{}{"x": 1.0, "y": 2.0}, 0), proto.PriorityOwnState)
	assert.Equal(t, 3, mb.Pending())

	// other types are tracked separately
	mb.Add(proto.NewMessage(proto.MT_PING, proto.Ping{Seq: 1}, 0), proto.PriorityNormal)
	mb.Add(proto.NewMessage(proto.MT_PING, proto.Ping{Seq: 1}, 0), proto.PriorityNormal)
	mb.Add(proto.NewMessage(proto.MT_PING, &proto.Ping{Seq: 2}, 0), proto.PriorityNormal)
	assert.Equal(t, 5, mb.Pending())
	assert.Equal(t, 2, mb.Deduped())

	// enter and leave repeat legitimately and are never dropped
	mb.Add(proto.NewMessage(proto.MT_ENTITY_LEAVE, proto.EntityLeave{EntityID: "e1"}, 0), proto.PriorityLeave)
	mb.Add(proto.NewMessage(proto.MT_ENTITY_LEAVE, proto.EntityLeave{EntityID: "e1"}, 0), proto.PriorityLeave)
	assert.Equal(t, 7, mb.Pending())
	assert.Equal(t, 2, mb.Deduped())

	// critical messages are never deduplicated
	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, "bye", 0), proto.PriorityCritical)
	mb.Add(proto.NewMessage(proto.MT_OWN_STATE, "bye", 0), proto.PriorityCritical)
	assert.Equal(t, 9, mb.Pending())

	plain := NewMobileBatcher(100, 0, false, false)
	plain.Add(proto.NewMessage(proto.MT_PING, 1, 0), proto.PriorityNormal)
	plain.Add(proto.NewMessage(proto.MT_PING, 1, 0), proto.PriorityNormal)
	assert.Equal(t, 2, plain.Pending())
}

func TestShallowEqual(t *testing.T) {
	nested := map[string]interface{}{"a": 1}
	assert.T(t, shallowEqual(nil, nil), "nil")
	assert.T(t, !shallowEqual(nil, 1), "nil vs 1")
	assert.T(t, shallowEqual(map[string]interface{}{"n": nested}, map[string]interface{}{"n": nested}), "same nested instance")
	assert.T(t, !shallowEqual(map[string]interface{}{"n": nested}, map[string]interface{}{"n": map[string]interface{}{"a": 1}}), "different nested instance")
	assert.T(t, !shallowEqual(map[string]interface{}{"a": 1}, map[string]interface{}{"a": 1, "b": 2}), "different size")
	assert.T(t, !shallowEqual(map[string]interface{}{"a": 1}, map[string]interface{}{"a": 1.0}), "different types")
	assert.T(t, shallowEqual(proto.Ping{Seq: 1, Timestamp: 2}, proto.Ping{Seq: 1, Timestamp: 2}), "same struct")
	assert.T(t, !shallowEqual(proto.Ping{Seq: 1}, proto.Ping{Seq: 2}), "different struct")
}
