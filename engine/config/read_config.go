package config

import (
	"encoding/json"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/worldsync/engine/consts"
	"github.com/xiaonanln/worldsync/engine/gwlog"
)

const (
	_DEFAULT_CONFIG_FILE = "worldsync.ini"
	_DEFAULT_LISTEN_ADDR = ":8080"
	_DEFAULT_LOG_LEVEL   = "debug"
	_DEFAULT_CODEC       = "msgpack"
	_DEFAULT_COMPRESS    = "snappy"
	_DEFAULT_ZONE        = "default"
)

var (
	configFilePath  = _DEFAULT_CONFIG_FILE
	worldSyncConfig *WorldSyncConfig
	configLock      sync.Mutex
)

// InterestConfig defines fields of interest management config
type InterestConfig struct {
	Mode          string
	CellSize      float64
	DefaultRadius float64
}

// BatcherConfig defines fields of message batcher config
type BatcherConfig struct {
	MaxBatchSize  int
	BatchInterval time.Duration
	Adaptive      bool
	Dedup         bool
}

// QualityConfig defines fields of connection quality monitor config
type QualityConfig struct {
	HistorySize       int
	ConnectionType    string
	RecomputeInterval time.Duration
}

// InterpolationConfig defines fields of snapshot interpolation config
type InterpolationConfig struct {
	Delay      time.Duration
	BufferSize int
}

// PredictionConfig defines fields of client prediction config
type PredictionConfig struct {
	Tolerance     float64
	SnapThreshold float64
	BlendFactor   float64
	HistorySize   int
}

// ShardingConfig defines fields of room sharding config
type ShardingConfig struct {
	MaxPlayersPerRoom   int
	ShardThreshold      int
	HealthCheckInterval time.Duration
	UnhealthyThreshold  int
	DefaultCapacity     int
}

// ServerConfig defines fields of the worldsync server process
type ServerConfig struct {
	ListenAddr     string
	HTTPAddr       string
	LogLevel       string
	LogFile        string
	LogStderr      bool
	TickInterval   time.Duration
	Codec          string
	Compress       bool
	CompressFormat string
	Zone           string
}

// WorldSyncConfig defines the total worldsync config file structure
type WorldSyncConfig struct {
	Interest      InterestConfig
	Batcher       BatcherConfig
	Quality       QualityConfig
	Interpolation InterpolationConfig
	Prediction    PredictionConfig
	Sharding      ShardingConfig
	Server        ServerConfig
}

// SetConfigFile sets the config file path (worldsync.ini by default)
func SetConfigFile(f string) {
	configLock.Lock()
	configFilePath = f
	configLock.Unlock()
}

// GetConfigDir returns the directory of worldsync.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total worldsync config
func Get() *WorldSyncConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if worldSyncConfig == nil {
		worldSyncConfig = readWorldSyncConfig()
	}
	return worldSyncConfig
}

// Reload forces worldsync to reload the whole config
func Reload() *WorldSyncConfig {
	configLock.Lock()
	worldSyncConfig = nil
	configLock.Unlock()

	return Get()
}

// GetSharding returns the sharding config
func GetSharding() *ShardingConfig {
	return &Get().Sharding
}

// GetServer returns the server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Default returns the config with every field set to its default
func Default() *WorldSyncConfig {
	config := &WorldSyncConfig{}
	readInterestConfig(nil, &config.Interest)
	readBatcherConfig(nil, &config.Batcher)
	readQualityConfig(nil, &config.Quality)
	readInterpolationConfig(nil, &config.Interpolation)
	readPredictionConfig(nil, &config.Prediction)
	readShardingConfig(nil, &config.Sharding)
	readServerConfig(nil, &config.Server)
	return config
}

func readWorldSyncConfig() *WorldSyncConfig {
	gwlog.Infof("Using config file: %s", configFilePath)
	if _, err := os.Stat(configFilePath); err != nil {
		gwlog.Warnf("config file %s not readable (%s), using defaults", configFilePath, err)
	}

	config, err := load(ini.LooseLoad(configFilePath))
	if err != nil {
		gwlog.Errorf("%s", errors.Wrapf(err, "load config %s", configFilePath))
		return Default()
	}
	return config
}

// Parse reads config from ini content
func Parse(data []byte) (*WorldSyncConfig, error) {
	return load(ini.Load(data))
}

func load(iniFile *ini.File, err error) (*WorldSyncConfig, error) {
	if err != nil {
		return nil, err
	}

	config := Default()
	for _, sec := range iniFile.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		secName := strings.ToLower(sec.Name())
		switch secName {
		case "interest":
			readInterestConfig(sec, &config.Interest)
		case "batcher":
			readBatcherConfig(sec, &config.Batcher)
		case "quality":
			readQualityConfig(sec, &config.Quality)
		case "interpolation":
			readInterpolationConfig(sec, &config.Interpolation)
		case "prediction":
			readPredictionConfig(sec, &config.Prediction)
		case "sharding":
			readShardingConfig(sec, &config.Sharding)
		case "server":
			readServerConfig(sec, &config.Server)
		default:
			gwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(config)
	return config, nil
}

func keysOf(sec *ini.Section) []*ini.Key {
	if sec == nil {
		return nil
	}
	return sec.Keys()
}

func millis(key *ini.Key, def time.Duration) time.Duration {
	return time.Millisecond * time.Duration(key.MustInt(int(def/time.Millisecond)))
}

func readInterestConfig(sec *ini.Section, ic *InterestConfig) {
	if sec == nil {
		ic.Mode = "grid"
		ic.CellSize = consts.DEFAULT_CELL_SIZE
		ic.DefaultRadius = consts.DEFAULT_INTEREST_RADIUS
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "mode" {
			ic.Mode = strings.ToLower(key.MustString(ic.Mode))
		} else if name == "cell_size" {
			ic.CellSize = key.MustFloat64(ic.CellSize)
		} else if name == "default_radius" {
			ic.DefaultRadius = key.MustFloat64(ic.DefaultRadius)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readBatcherConfig(sec *ini.Section, bc *BatcherConfig) {
	if sec == nil {
		bc.MaxBatchSize = consts.DEFAULT_MAX_BATCH_SIZE
		bc.BatchInterval = consts.DEFAULT_BATCH_INTERVAL
		bc.Adaptive = true
		bc.Dedup = true
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "max_batch_size" {
			bc.MaxBatchSize = key.MustInt(bc.MaxBatchSize)
		} else if name == "batch_interval_ms" {
			bc.BatchInterval = millis(key, bc.BatchInterval)
		} else if name == "adaptive" {
			bc.Adaptive = key.MustBool(bc.Adaptive)
		} else if name == "dedup" {
			bc.Dedup = key.MustBool(bc.Dedup)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readQualityConfig(sec *ini.Section, qc *QualityConfig) {
	if sec == nil {
		qc.HistorySize = consts.QUALITY_HISTORY_SIZE
		qc.RecomputeInterval = consts.QUALITY_RECOMPUTE_INTERVAL
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "history_size" {
			qc.HistorySize = key.MustInt(qc.HistorySize)
		} else if name == "connection_type" {
			qc.ConnectionType = strings.ToLower(key.MustString(qc.ConnectionType))
		} else if name == "recompute_interval_ms" {
			qc.RecomputeInterval = millis(key, qc.RecomputeInterval)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readInterpolationConfig(sec *ini.Section, ic *InterpolationConfig) {
	if sec == nil {
		ic.Delay = consts.INTERPOLATION_DELAY
		ic.BufferSize = consts.SNAPSHOT_BUFFER_SIZE
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "delay_ms" {
			ic.Delay = millis(key, ic.Delay)
		} else if name == "buffer_size" {
			ic.BufferSize = key.MustInt(ic.BufferSize)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readPredictionConfig(sec *ini.Section, pc *PredictionConfig) {
	if sec == nil {
		pc.Tolerance = consts.PREDICTION_TOLERANCE
		pc.SnapThreshold = consts.PREDICTION_SNAP_THRESHOLD
		pc.BlendFactor = consts.PREDICTION_BLEND_FACTOR
		pc.HistorySize = consts.PREDICTION_HISTORY_SIZE
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "tolerance" {
			pc.Tolerance = key.MustFloat64(pc.Tolerance)
		} else if name == "snap_threshold" {
			pc.SnapThreshold = key.MustFloat64(pc.SnapThreshold)
		} else if name == "blend_factor" {
			pc.BlendFactor = key.MustFloat64(pc.BlendFactor)
		} else if name == "history_size" {
			pc.HistorySize = key.MustInt(pc.HistorySize)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readShardingConfig(sec *ini.Section, sc *ShardingConfig) {
	if sec == nil {
		sc.MaxPlayersPerRoom = consts.DEFAULT_MAX_PLAYERS_PER_ROOM
		sc.ShardThreshold = consts.DEFAULT_SHARD_THRESHOLD
		sc.HealthCheckInterval = consts.DEFAULT_HEALTH_CHECK_INTERVAL
		sc.UnhealthyThreshold = consts.DEFAULT_UNHEALTHY_THRESHOLD
		sc.DefaultCapacity = consts.DEFAULT_MAX_PLAYERS_PER_ROOM
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "max_players_per_room" {
			sc.MaxPlayersPerRoom = key.MustInt(sc.MaxPlayersPerRoom)
		} else if name == "shard_threshold" {
			sc.ShardThreshold = key.MustInt(sc.ShardThreshold)
		} else if name == "health_check_interval_ms" {
			sc.HealthCheckInterval = millis(key, sc.HealthCheckInterval)
		} else if name == "unhealthy_threshold" {
			sc.UnhealthyThreshold = key.MustInt(sc.UnhealthyThreshold)
		} else if name == "default_capacity" {
			sc.DefaultCapacity = key.MustInt(sc.DefaultCapacity)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	if sec == nil {
		sc.ListenAddr = _DEFAULT_LISTEN_ADDR
		sc.LogLevel = _DEFAULT_LOG_LEVEL
		sc.LogStderr = true
		sc.TickInterval = consts.ROOM_SERVICE_TICK_INTERVAL
		sc.Codec = _DEFAULT_CODEC
		sc.Compress = true
		sc.CompressFormat = _DEFAULT_COMPRESS
		sc.Zone = _DEFAULT_ZONE
	}
	for _, key := range keysOf(sec) {
		name := strings.ToLower(key.Name())
		if name == "listen_addr" {
			sc.ListenAddr = key.MustString(sc.ListenAddr)
		} else if name == "http_addr" {
			sc.HTTPAddr = key.MustString(sc.HTTPAddr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "tick_interval_ms" {
			sc.TickInterval = millis(key, sc.TickInterval)
		} else if name == "codec" {
			sc.Codec = strings.ToLower(key.MustString(sc.Codec))
		} else if name == "compress" {
			sc.Compress = key.MustBool(sc.Compress)
		} else if name == "compress_format" {
			sc.CompressFormat = strings.ToLower(key.MustString(sc.CompressFormat))
		} else if name == "zone" {
			sc.Zone = key.MustString(sc.Zone)
		} else {
			gwlog.Errorf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func validateConfig(config *WorldSyncConfig) {
	if config.Interest.CellSize <= 0 {
		gwlog.Errorf("interest cell_size must be positive, got %v", config.Interest.CellSize)
		config.Interest.CellSize = consts.DEFAULT_CELL_SIZE
	}
	if config.Batcher.MaxBatchSize <= 0 {
		gwlog.Errorf("batcher max_batch_size must be positive, got %d", config.Batcher.MaxBatchSize)
		config.Batcher.MaxBatchSize = consts.DEFAULT_MAX_BATCH_SIZE
	}
	if config.Interpolation.BufferSize < 2 {
		gwlog.Errorf("interpolation buffer_size must be at least 2, got %d", config.Interpolation.BufferSize)
		config.Interpolation.BufferSize = consts.SNAPSHOT_BUFFER_SIZE
	}

	sc := &config.Sharding
	if sc.UnhealthyThreshold < sc.ShardThreshold {
		gwlog.Warnf("sharding unhealthy_threshold %d < shard_threshold %d, raised", sc.UnhealthyThreshold, sc.ShardThreshold)
		sc.UnhealthyThreshold = sc.ShardThreshold
	}
	if sc.DefaultCapacity <= 0 || sc.DefaultCapacity > sc.MaxPlayersPerRoom {
		sc.DefaultCapacity = sc.MaxPlayersPerRoom
	}
	if config.Server.Codec != "msgpack" && config.Server.Codec != "json" {
		gwlog.Errorf("unknown codec %s, using %s", config.Server.Codec, _DEFAULT_CODEC)
		config.Server.Codec = _DEFAULT_CODEC
	}
	if config.Server.TickInterval <= 0 {
		gwlog.Errorf("server tick_interval_ms must be positive, got %s", config.Server.TickInterval)
		config.Server.TickInterval = consts.ROOM_SERVICE_TICK_INTERVAL
	}
	if config.Server.CompressFormat != "snappy" && config.Server.CompressFormat != "flate" {
		gwlog.Errorf("unknown compress_format %s, using %s", config.Server.CompressFormat, _DEFAULT_COMPRESS)
		config.Server.CompressFormat = _DEFAULT_COMPRESS
	}
}
