// Package batch queues outgoing messages per client and emits them as prioritized packets.
package batch

import (
	"time"

	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/gwutils"
	"github.com/xiaonanln/worldsync/engine/proto"
)

// PacketSender sends a packet to the client owning the batcher
type PacketSender func(packet *proto.NetworkPacket)

// Batcher queues messages in priority order.
//
// Messages of equal priority keep their insertion order. Critical messages bypass
// the queue when an immediate sender is installed.
type Batcher struct {
	queue        []*proto.NetworkMessage
	maxBatchSize int
	interval     time.Duration
	lastFlush    time.Time
	immediate    PacketSender
	dropped      int
}

// NewBatcher creates a Batcher
func NewBatcher(maxBatchSize int, interval time.Duration) *Batcher {
	b := &Batcher{}
	b.SetMaxBatchSize(maxBatchSize)
	b.SetInterval(interval)
	return b
}

// SetMaxBatchSize sets the maximum number of messages in one packet
func (b *Batcher) SetMaxBatchSize(maxBatchSize int) {
	if maxBatchSize <= 0 {
		maxBatchSize = consts.DEFAULT_MAX_BATCH_SIZE
	}
	b.maxBatchSize = maxBatchSize
}

// MaxBatchSize returns the maximum number of messages in one packet
func (b *Batcher) MaxBatchSize() int {
	return b.maxBatchSize
}

// SetInterval sets the flush interval
func (b *Batcher) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = consts.DEFAULT_BATCH_INTERVAL
	}
	b.interval = interval
}

// Interval returns the flush interval
func (b *Batcher) Interval() time.Duration {
	return b.interval
}

// SetImmediateSender installs the sender used for critical messages
func (b *Batcher) SetImmediateSender(sender PacketSender) {
	b.immediate = sender
}

// Add queues a message with the given priority, clamped into [0, 10]
func (b *Batcher) Add(msg *proto.NetworkMessage, priority int) {
	if msg == nil {
		return
	}
	priority = gwutils.ClampInt(priority, proto.PriorityMin, proto.PriorityMax)
	msg.Priority = priority
	if msg.Timestamp == 0 {
		msg.Timestamp = proto.NowMillis()
	}

	if msg.IsCritical() && b.immediate != nil {
		packet := &proto.NetworkPacket{
			Messages:  []*proto.NetworkMessage{msg},
			Timestamp: proto.NowMillis(),
		}
		sender := b.immediate
		gwutils.RunPanicless(func() {
			sender(packet)
		})
		return
	}

	// insert after every message with priority >= the new one
	idx := len(b.queue)
	for i, m := range b.queue {
		if m.Priority < priority {
			idx = i
			break
		}
	}
	b.queue = append(b.queue, nil)
	copy(b.queue[idx+1:], b.queue[idx:])
	b.queue[idx] = msg

	if len(b.queue) > b.maxBatchSize*2 {
		n := len(b.queue) - b.maxBatchSize
		for i := b.maxBatchSize; i < len(b.queue); i++ {
			b.queue[i] = nil
		}
		b.queue = b.queue[:b.maxBatchSize]
		b.dropped += n
		gwlog.Warnf("batcher: queue overflow, dropped %d low priority messages", n)
	}
}

// Pending returns the number of queued messages
func (b *Batcher) Pending() int {
	return len(b.queue)
}

// Dropped returns the number of messages dropped by queue overflow
func (b *Batcher) Dropped() int {
	return b.dropped
}

// Due returns if the flush interval has elapsed since last flush.
// A batcher that never flushed is always due.
func (b *Batcher) Due(now time.Time) bool {
	return now.Sub(b.lastFlush) >= b.interval
}

// Flush removes up to MaxBatchSize messages from the front of the queue and returns them as a packet.
//
// now is recorded as the flush time checked by Due. Returns nil when the queue is empty.
func (b *Batcher) Flush(now time.Time) *proto.NetworkPacket {
	b.lastFlush = now
	if len(b.queue) == 0 {
		return nil
	}

	n := len(b.queue)
	if n > b.maxBatchSize {
		n = b.maxBatchSize
	}
	msgs := make([]*proto.NetworkMessage, n)
	copy(msgs, b.queue)
	rest := copy(b.queue, b.queue[n:])
	for i := rest; i < len(b.queue); i++ {
		b.queue[i] = nil
	}
	b.queue = b.queue[:rest]

	return &proto.NetworkPacket{
		Messages:  msgs,
		Timestamp: proto.NowMillis(),
	}
}

// Clear drops all queued messages
func (b *Batcher) Clear() {
	b.queue = nil
}
