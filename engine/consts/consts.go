package consts

import "time"

// Interest management
const (
	// DEFAULT_CELL_SIZE is the edge length of spatial hash grid cells
	DEFAULT_CELL_SIZE = 50
	// DEFAULT_INTEREST_RADIUS is the radius used when an observer does not specify one
	DEFAULT_INTEREST_RADIUS = 50
)

// Message batching
const (
	// DEFAULT_MAX_BATCH_SIZE is the maximum number of messages in one packet
	DEFAULT_MAX_BATCH_SIZE = 100
	// DEFAULT_BATCH_INTERVAL is the flush interval of batchers (20Hz)
	DEFAULT_BATCH_INTERVAL = time.Millisecond * 50
	// MIN_PRIORITY and MAX_PRIORITY bound message priorities
	MIN_PRIORITY = 0
	MAX_PRIORITY = 10
	// CRITICAL_PRIORITY messages bypass batching
	CRITICAL_PRIORITY = 9
)

// Connection quality
const (
	// QUALITY_HISTORY_SIZE is the maximum length of rolling quality histories
	QUALITY_HISTORY_SIZE = 50
	// QUALITY_RECOMPUTE_INTERVAL is how often rooms recompute client connection quality
	QUALITY_RECOMPUTE_INTERVAL = time.Second
	// ASSUMED_AVERAGE_LATENCY is used when no latency has been sampled yet
	ASSUMED_AVERAGE_LATENCY = 50
)

// Client smoothing
const (
	// INTERPOLATION_DELAY is the fixed render delay of remote entities
	INTERPOLATION_DELAY = time.Millisecond * 100
	// SNAPSHOT_BUFFER_SIZE is the number of snapshots kept per remote entity
	SNAPSHOT_BUFFER_SIZE = 3
	// PREDICTION_HISTORY_SIZE is the maximum number of unconfirmed local inputs
	PREDICTION_HISTORY_SIZE = 64
	// PREDICTION_TOLERANCE is the discrepancy blended away without a snap
	PREDICTION_TOLERANCE = 0.5
	// PREDICTION_SNAP_THRESHOLD is the discrepancy above which predictions are discarded
	PREDICTION_SNAP_THRESHOLD = 5
	// PREDICTION_BLEND_FACTOR is the fraction of the error corrected per reconcile
	PREDICTION_BLEND_FACTOR = 0.3
)

// Room sharding
const (
	DEFAULT_MAX_PLAYERS_PER_ROOM  = 500
	DEFAULT_SHARD_THRESHOLD       = 400
	DEFAULT_HEALTH_CHECK_INTERVAL = time.Millisecond * 30000
	DEFAULT_UNHEALTHY_THRESHOLD   = 450
)

// Service loop
const (
	// ROOM_SERVICE_PACKET_QUEUE_SIZE is the max packet queue length of the room service
	ROOM_SERVICE_PACKET_QUEUE_SIZE = 10000
	// ROOM_SERVICE_TICK_INTERVAL is the tick interval to tick timers in room service
	ROOM_SERVICE_TICK_INTERVAL = time.Millisecond * 10
	// PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD is the minimal packet payload length that should be compressed
	PACKET_PAYLOAD_LEN_COMPRESS_THRESHOLD = 512
	// CLIENT_PROXY_SEND_QUEUE_SIZE is the number of encoded packets buffered per websocket client
	CLIENT_PROXY_SEND_QUEUE_SIZE = 256
	// CLIENT_PROXY_WRITE_TIMEOUT is the deadline of writing one packet to a websocket client
	CLIENT_PROXY_WRITE_TIMEOUT = time.Second * 5
	// STATUS_QUERY_TIMEOUT is how long the status endpoint waits for the room service
	STATUS_QUERY_TIMEOUT = time.Second * 3
	// PING_INTERVAL is the interval between latency probes sent to clients
	PING_INTERVAL = time.Millisecond * 500
	// OPMON_DUMP_INTERVAL is the interval of dumping operation statistics, 0 disables dumping
	OPMON_DUMP_INTERVAL = time.Minute
)
