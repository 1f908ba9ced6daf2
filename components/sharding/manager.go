package sharding

import (
	"sort"
	"time"

	"github.com/petar/GoLLRB/llrb"
	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/config"
	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/gwutils"
)

// HealthListener is notified when the health of a shard changes
type HealthListener func(shard RoomShard, old Health)

// Manager owns the shard table and the per-zone load index.
//
// Manager is not goroutine-safe: it is used from the loop that ticks goTimer.
type Manager struct {
	cfg         config.ShardingConfig
	shards      map[common.RoomID]*RoomShard
	zones       map[string]*zoneIndex
	now         func() time.Time
	healthTimer *timer.Timer
	sampler     *LoadSampler
	listeners   []HealthListener
}

// NewManager creates a Manager
func NewManager(cfg config.ShardingConfig) *Manager {
	if cfg.UnhealthyThreshold < cfg.ShardThreshold {
		cfg.UnhealthyThreshold = cfg.ShardThreshold
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = cfg.MaxPlayersPerRoom
	}
	return &Manager{
		cfg:    cfg,
		shards: map[common.RoomID]*RoomShard{},
		zones:  map[string]*zoneIndex{},
		now:    time.Now,
	}
}

// SetClock replaces the clock used for heartbeats and staleness
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetLoadSampler attaches the process load sampler reported in Status
func (m *Manager) SetLoadSampler(sampler *LoadSampler) {
	m.sampler = sampler
}

// OnHealthChange registers a listener of health changes
func (m *Manager) OnHealthChange(cb HealthListener) {
	m.listeners = append(m.listeners, cb)
}

// Config returns the sharding config
func (m *Manager) Config() config.ShardingConfig {
	return m.cfg
}

func (m *Manager) healthOf(count int) Health {
	if count >= m.cfg.UnhealthyThreshold {
		return Unhealthy
	} else if count >= m.cfg.ShardThreshold {
		return Degraded
	}
	return Healthy
}

func (m *Manager) zone(zone string) *zoneIndex {
	zi := m.zones[zone]
	if zi == nil {
		zi = newZoneIndex()
		m.zones[zone] = zi
	}
	return zi
}

func (m *Manager) setHealth(shard *RoomShard, health Health) {
	old := shard.Health
	if old == health {
		return
	}
	shard.Health = health
	gwlog.Infof("%s: health %s -> %s", shard, old, health)
	snapshot := *shard
	for _, cb := range m.listeners {
		cb := cb
		gwutils.RunPanicless(func() {
			cb(snapshot, old)
		})
	}
}

func (m *Manager) recomputeHealth(shard *RoomShard) {
	if shard.Stale {
		m.setHealth(shard, Unhealthy)
	} else {
		m.setHealth(shard, m.healthOf(shard.PlayerCount))
	}
}

// RegisterShard adds a room shard, capacity <= 0 means the default capacity.
// Registering an existing room updates its zone and capacity.
func (m *Manager) RegisterShard(roomID common.RoomID, zone string, capacity int) *RoomShard {
	if capacity <= 0 {
		capacity = m.cfg.DefaultCapacity
	}
	if capacity > m.cfg.MaxPlayersPerRoom {
		capacity = m.cfg.MaxPlayersPerRoom
	}

	shard := m.shards[roomID]
	if shard != nil {
		m.zone(shard.Zone).remove(shard)
		m.dropZoneIfEmpty(shard.Zone)
	} else {
		shard = &RoomShard{
			RoomID: roomID,
			Health: Healthy,
		}
		m.shards[roomID] = shard
	}
	shard.Zone = zone
	shard.Capacity = capacity
	shard.LastHealthCheck = m.now()
	shard.Stale = false
	m.zone(zone).insert(shard)
	m.recomputeHealth(shard)
	gwlog.Infof("sharding: registered %s", shard)
	return shard
}

// CreateShard registers a new room with a generated ID
func (m *Manager) CreateShard(zone string, capacity int) *RoomShard {
	return m.RegisterShard(common.GenRoomID(), zone, capacity)
}

// UnregisterShard removes a room shard
func (m *Manager) UnregisterShard(roomID common.RoomID) {
	shard := m.shards[roomID]
	if shard == nil {
		return
	}
	delete(m.shards, roomID)
	m.zone(shard.Zone).remove(shard)
	m.dropZoneIfEmpty(shard.Zone)
	gwlog.Infof("sharding: unregistered %s", shard)
}

func (m *Manager) dropZoneIfEmpty(zone string) {
	if zi := m.zones[zone]; zi != nil && len(zi.rooms) == 0 {
		delete(m.zones, zone)
	}
}

// UpdatePlayerCount sets the player count of the shard, recomputes its health and refreshes its heartbeat
func (m *Manager) UpdatePlayerCount(roomID common.RoomID, count int) {
	shard := m.shards[roomID]
	if shard == nil {
		gwlog.Warnf("sharding: update player count of unknown room %s", roomID)
		return
	}
	if count < 0 {
		count = 0
	}

	zi := m.zone(shard.Zone)
	zi.remove(shard)
	shard.PlayerCount = count
	zi.insert(shard)
	m.heartbeat(shard)
}

// Heartbeat marks the shard alive
func (m *Manager) Heartbeat(roomID common.RoomID) {
	shard := m.shards[roomID]
	if shard == nil {
		return
	}
	m.heartbeat(shard)
}

func (m *Manager) heartbeat(shard *RoomShard) {
	shard.LastHealthCheck = m.now()
	if shard.Stale {
		gwlog.Infof("%s: heartbeat resumed", shard)
		shard.Stale = false
	}
	m.recomputeHealth(shard)
}

// FindBestRoom selects the room a joining player should land in.
//
// The preferred room is returned if it is in the zone and accepts players. Otherwise the least
// loaded room of the zone accepting players is returned, then the least loaded one of all zones.
// Returns an empty RoomID if no room qualifies.
func (m *Manager) FindBestRoom(zone string, preferred common.RoomID) common.RoomID {
	if !preferred.IsNil() {
		if shard := m.shards[preferred]; shard != nil && shard.Zone == zone && shard.acceptsPlayers() {
			return shard.RoomID
		}
	}

	if zi := m.zones[zone]; zi != nil {
		if best := zi.leastLoaded(); best != nil {
			return best.RoomID
		}
	}

	var best *RoomShard
	for _, zi := range m.zones {
		cand := zi.leastLoaded()
		if cand == nil {
			continue
		}
		if best == nil || cand.PlayerCount < best.PlayerCount || (cand.PlayerCount == best.PlayerCount && cand.RoomID < best.RoomID) {
			best = cand
		}
	}
	if best == nil {
		return ""
	}
	return best.RoomID
}

// ShouldCreateShard returns if any room in the zone reached the shard threshold
func (m *Manager) ShouldCreateShard(zone string) bool {
	zi := m.zones[zone]
	if zi == nil {
		return false
	}
	max := zi.btree.Max()
	return max != nil && max.(*loadItem).count >= m.cfg.ShardThreshold
}

// CheckHealth demotes shards without heartbeat for 2 health check intervals and returns how many were demoted
func (m *Manager) CheckHealth() int {
	now := m.now()
	staleAfter := m.cfg.HealthCheckInterval * 2
	demoted := 0
	for _, shard := range m.shards {
		if shard.Stale || now.Sub(shard.LastHealthCheck) <= staleAfter {
			continue
		}
		gwlog.Warnf("%s: no heartbeat since %s, marked unhealthy", shard, shard.LastHealthCheck.Format(time.RFC3339))
		shard.Stale = true
		m.recomputeHealth(shard)
		demoted += 1
	}
	return demoted
}

// StartHealthMonitor runs CheckHealth every health check interval on goTimer
func (m *Manager) StartHealthMonitor() {
	if m.healthTimer != nil || m.cfg.HealthCheckInterval <= 0 {
		return
	}
	m.healthTimer = timer.AddTimer(m.cfg.HealthCheckInterval, func() {
		m.CheckHealth()
	})
}

// StopHealthMonitor stops the periodic health check
func (m *Manager) StopHealthMonitor() {
	if m.healthTimer != nil {
		m.healthTimer.Cancel()
		m.healthTimer = nil
	}
}

// Shard returns a copy of the shard
func (m *Manager) Shard(roomID common.RoomID) (RoomShard, bool) {
	shard := m.shards[roomID]
	if shard == nil {
		return RoomShard{}, false
	}
	return *shard, true
}

// Shards returns copies of all shards of the zone ordered by load
func (m *Manager) Shards(zone string) []RoomShard {
	zi := m.zones[zone]
	if zi == nil {
		return nil
	}
	shards := make([]RoomShard, 0, len(zi.rooms))
	zi.btree.AscendGreaterOrEqual(llrb.Inf(-1), func(_item llrb.Item) bool {
		shards = append(shards, *_item.(*loadItem).shard)
		return true
	})
	return shards
}

// ShardStatus is a RoomShard with the load of the hosting process
type ShardStatus struct {
	RoomShard
	CPUPercent float64 `json:"cpuPercent"`
}

// Status returns the status of all shards ordered by zone and room ID
func (m *Manager) Status() []ShardStatus {
	cpu := 0.0
	if m.sampler != nil {
		cpu = m.sampler.CPUPercent()
	}
	status := make([]ShardStatus, 0, len(m.shards))
	for _, shard := range m.shards {
		status = append(status, ShardStatus{
			RoomShard:  *shard,
			CPUPercent: cpu,
		})
	}
	sort.Slice(status, func(i, j int) bool {
		if status[i].Zone != status[j].Zone {
			return status[i].Zone < status[j].Zone
		}
		return status[i].RoomID < status[j].RoomID
	})
	return status
}
