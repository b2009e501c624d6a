package config

import (
	"encoding/json"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"

	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
)

const (
	_DEFAULT_CONFIG_FILE  = "worldmesh.ini"
	_DEFAULT_LOG_LEVEL    = "debug"
	_DEFAULT_HTTP_IP      = "127.0.0.1"
	_DEFAULT_CHANNEL_NAME = "wmesh:main"
	_DEFAULT_STORAGE_DIR  = "_world_storage"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	worldmeshCfg   *WorldmeshConfig
	configLock     sync.Mutex
)

// ServerConfig defines fields of the [worldmesh] section
type ServerConfig struct {
	ServerName        string // name of this server as known by the proxy
	WorldsServer      string // designated server hosting world resources in cross-server mode
	CrossServer       bool
	StorageRoot       string // plugin-managed world storage tree
	WorldsDirectory   string // primary directory the engine loads worlds from
	FallbackWorld     string // world players are relocated to before unload/delete
	MaxWorldsPerOwner int    // 0 = unlimited
	LogFile           string
	LogStderr         bool
	LogLevel          string
	HTTPIp            string
	HTTPPort          int
	GoMaxProcs        int
}

// StorageConfig defines fields of the [storage] section
type StorageConfig struct {
	Type      string // Type of storage (mysql, sqlite, filesystem)
	Driver    string // database/sql driver name (mysql, sqlite)
	Url       string // Connection URL / DSN (mysql, sqlite)
	Directory string // Directory of filesystem storage (filesystem)
}

// ProxyConfig defines fields of the [proxy] section
type ProxyConfig struct {
	Ip                 string
	Port               int
	KCP                bool
	CompressConnection bool
	ChannelName        string // plugin sub-channel tag on the forwarding channel
}

// RelocationConfig defines fields of the [relocation] section
type RelocationConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	SettleDelay time.Duration
}

// WorldDefaultsConfig is the settings template new worlds inherit, [defaults] section
type WorldDefaultsConfig struct {
	GameMode        string
	Pvp             bool
	MobSpawning     bool
	TimeCycle       bool
	FixedTime       int64
	Weather         bool
	Physics         bool
	Redstone        bool
	FluidFlow       bool
	TickSpeed       int32
	KeepInventory   bool
	AnnounceDeaths  bool
	FallDamage      bool
	HungerDepletion bool
	FireSpread      bool
	LeafDecay       bool
	BlockUpdates    bool
}

// WorldmeshConfig defines the total config file structure
type WorldmeshConfig struct {
	Server     ServerConfig
	Storage    StorageConfig
	Proxy      ProxyConfig
	Relocation RelocationConfig
	Defaults   WorldDefaultsConfig
}

// SetConfigFile sets the config file path (worldmesh.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of worldmesh.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total worldmesh config
func Get() *WorldmeshConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if worldmeshCfg == nil {
		worldmeshCfg = readWorldmeshConfig()
	}
	return worldmeshCfg
}

// Reload forces worldmesh to reload the whole config
func Reload() *WorldmeshConfig {
	configLock.Lock()
	worldmeshCfg = nil
	configLock.Unlock()

	return Get()
}

// GetServer gets the [worldmesh] section config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetStorage gets the [storage] section config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// GetProxy gets the [proxy] section config
func GetProxy() *ProxyConfig {
	return &Get().Proxy
}

// GetRelocation gets the [relocation] section config
func GetRelocation() *RelocationConfig {
	return &Get().Relocation
}

// GetDefaults gets the [defaults] section config
func GetDefaults() *WorldDefaultsConfig {
	return &Get().Defaults
}

// DumpPretty format config to string of pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readWorldmeshConfig() *WorldmeshConfig {
	config := WorldmeshConfig{}
	wmlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	// missing sections read as empty, leaving every key at its default
	readServerConfig(iniFile.Section("worldmesh"), &config.Server)
	readStorageConfig(iniFile.Section("storage"), &config.Storage)
	readProxyConfig(iniFile.Section("proxy"), &config.Proxy)
	readRelocationConfig(iniFile.Section("relocation"), &config.Relocation)
	readWorldDefaultsConfig(iniFile.Section("defaults"), &config.Defaults)

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		switch secName {
		case "default", "worldmesh", "storage", "proxy", "relocation", "defaults":
		default:
			wmlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	// setup default values
	sc.ServerName = ""
	sc.WorldsServer = ""
	sc.CrossServer = false
	sc.StorageRoot = _DEFAULT_STORAGE_DIR
	sc.WorldsDirectory = "."
	sc.FallbackWorld = "world"
	sc.MaxWorldsPerOwner = 0
	sc.LogFile = "worldmesh.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.HTTPPort = 0 // pprof not enabled by default
	sc.GoMaxProcs = 0

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "server_name" {
			sc.ServerName = key.MustString(sc.ServerName)
		} else if name == "worlds_server" {
			sc.WorldsServer = key.MustString(sc.WorldsServer)
		} else if name == "cross_server" {
			sc.CrossServer = key.MustBool(sc.CrossServer)
		} else if name == "storage_root" {
			sc.StorageRoot = key.MustString(sc.StorageRoot)
		} else if name == "worlds_directory" {
			sc.WorldsDirectory = key.MustString(sc.WorldsDirectory)
		} else if name == "fallback_world" {
			sc.FallbackWorld = key.MustString(sc.FallbackWorld)
		} else if name == "max_worlds_per_owner" {
			sc.MaxWorldsPerOwner = key.MustInt(sc.MaxWorldsPerOwner)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else {
			wmlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readStorageConfig(sec *ini.Section, config *StorageConfig) {
	// setup default values
	config.Type = "filesystem"
	config.Driver = ""
	config.Url = ""
	config.Directory = _DEFAULT_STORAGE_DIR

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "driver" {
			config.Driver = key.MustString(config.Driver)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "directory" {
			config.Directory = key.MustString(config.Directory)
		} else {
			wmlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	validateStorageConfig(config)
}

func readProxyConfig(sec *ini.Section, config *ProxyConfig) {
	config.Ip = "127.0.0.1"
	config.Port = 0
	config.KCP = false
	config.CompressConnection = false
	config.ChannelName = _DEFAULT_CHANNEL_NAME

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			config.Ip = key.MustString(config.Ip)
		} else if name == "port" {
			config.Port = key.MustInt(config.Port)
		} else if name == "kcp" {
			config.KCP = key.MustBool(config.KCP)
		} else if name == "compress_connection" {
			config.CompressConnection = key.MustBool(config.CompressConnection)
		} else if name == "channel_name" {
			config.ChannelName = key.MustString(config.ChannelName)
		} else {
			wmlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readRelocationConfig(sec *ini.Section, config *RelocationConfig) {
	config.MaxAttempts = consts.RELOCATION_DEFAULT_MAX_ATTEMPTS
	config.RetryDelay = consts.RELOCATION_DEFAULT_RETRY_DELAY
	config.SettleDelay = consts.RELOCATION_DEFAULT_SETTLE_DELAY

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "max_attempts" {
			config.MaxAttempts = key.MustInt(config.MaxAttempts)
		} else if name == "retry_delay_ms" {
			config.RetryDelay = time.Millisecond * time.Duration(key.MustInt(int(config.RetryDelay/time.Millisecond)))
		} else if name == "settle_delay_ms" {
			config.SettleDelay = time.Millisecond * time.Duration(key.MustInt(int(config.SettleDelay/time.Millisecond)))
		} else {
			wmlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if config.MaxAttempts <= 0 {
		wmlog.Panicf("relocation max_attempts must be positive")
	}
}

func readWorldDefaultsConfig(sec *ini.Section, config *WorldDefaultsConfig) {
	// template defaults match a plain survival world
	config.GameMode = "survival"
	config.Pvp = false
	config.MobSpawning = true
	config.TimeCycle = true
	config.FixedTime = 6000
	config.Weather = true
	config.Physics = true
	config.Redstone = true
	config.FluidFlow = true
	config.TickSpeed = 3
	config.KeepInventory = true
	config.AnnounceDeaths = false
	config.FallDamage = true
	config.HungerDepletion = true
	config.FireSpread = true
	config.LeafDecay = true
	config.BlockUpdates = true

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "game_mode" {
			config.GameMode = key.MustString(config.GameMode)
		} else if name == "pvp" {
			config.Pvp = key.MustBool(config.Pvp)
		} else if name == "mob_spawning" {
			config.MobSpawning = key.MustBool(config.MobSpawning)
		} else if name == "time_cycle" {
			config.TimeCycle = key.MustBool(config.TimeCycle)
		} else if name == "fixed_time" {
			config.FixedTime = key.MustInt64(config.FixedTime)
		} else if name == "weather" {
			config.Weather = key.MustBool(config.Weather)
		} else if name == "physics" {
			config.Physics = key.MustBool(config.Physics)
		} else if name == "redstone" {
			config.Redstone = key.MustBool(config.Redstone)
		} else if name == "fluid_flow" {
			config.FluidFlow = key.MustBool(config.FluidFlow)
		} else if name == "tick_speed" {
			config.TickSpeed = int32(key.MustInt(int(config.TickSpeed)))
		} else if name == "keep_inventory" {
			config.KeepInventory = key.MustBool(config.KeepInventory)
		} else if name == "announce_deaths" {
			config.AnnounceDeaths = key.MustBool(config.AnnounceDeaths)
		} else if name == "fall_damage" {
			config.FallDamage = key.MustBool(config.FallDamage)
		} else if name == "hunger_depletion" {
			config.HungerDepletion = key.MustBool(config.HungerDepletion)
		} else if name == "fire_spread" {
			config.FireSpread = key.MustBool(config.FireSpread)
		} else if name == "leaf_decay" {
			config.LeafDecay = key.MustBool(config.LeafDecay)
		} else if name == "block_updates" {
			config.BlockUpdates = key.MustBool(config.BlockUpdates)
		} else {
			wmlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if !config.TimeCycle && (config.FixedTime < 0 || config.FixedTime >= 24000) {
		wmlog.Panicf("fixed_time must be in [0, 24000) when time_cycle is off, got %d", config.FixedTime)
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		wmlog.Panicf("read config error: %s", msg)
	}
}

func validateStorageConfig(config *StorageConfig) {
	if config.Type == "filesystem" {
		// directory must be set
		if config.Directory == "" {
			wmlog.Panicf("directory is not set in %s storage config", config.Type)
		}
	} else if config.Type == "mysql" {
		if config.Driver == "" {
			config.Driver = "mysql"
		}
		if config.Url == "" {
			wmlog.Panicf("url is not set in %s storage config", config.Type)
		}
	} else if config.Type == "sqlite" {
		if config.Driver == "" {
			config.Driver = "sqlite"
		}
		if config.Url == "" {
			wmlog.Panicf("url is not set in %s storage config", config.Type)
		}
	} else {
		wmlog.Panicf("unknown storage type: %s", config.Type)
	}
}

func validateConfig(config *WorldmeshConfig) {
	if config.Server.ServerName == "" {
		wmlog.Panicf("server_name is not set in [worldmesh] config")
	}

	if config.Server.CrossServer {
		if config.Server.WorldsServer == "" {
			wmlog.Panicf("worlds_server must be set in cross-server mode")
		}
		if config.Proxy.Port == 0 {
			wmlog.Panicf("[proxy] port must be set in cross-server mode")
		}
	}

	if config.Relocation.MaxAttempts == 0 {
		config.Relocation.MaxAttempts = consts.RELOCATION_DEFAULT_MAX_ATTEMPTS
	}
	if config.Relocation.RetryDelay == 0 {
		config.Relocation.RetryDelay = consts.RELOCATION_DEFAULT_RETRY_DELAY
	}
	if config.Relocation.SettleDelay == 0 {
		config.Relocation.SettleDelay = consts.RELOCATION_DEFAULT_SETTLE_DELAY
	}
}
