// Package config loads the recorder's YAML configuration file and layers
// environment variable overrides on top, the same two-stage shape the
// teacher server used for its own config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SerialConfig describes how to open and frame the serial line.
type SerialConfig struct {
	Port           string `yaml:"serial_port"`
	BaudRate       int    `yaml:"baud_rate"`
	ByteSize       int    `yaml:"byte_size"`
	Parity         string `yaml:"parity"` // none|even|odd
	StopBits       int    `yaml:"stop_bits"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	RTSCTS         bool   `yaml:"rts_cts"`
	DSRDTR         bool   `yaml:"dsr_dtr"`
	XonXoff        bool   `yaml:"xon_xoff"`
}

// FrameConfig tunes the frame assembler / binary-mode detector.
type FrameConfig struct {
	BinaryThresholdBytes int `yaml:"binary_threshold_bytes"`
	BinaryQuietMs        int `yaml:"binary_quiet_ms"`
}

// SupervisorConfig tunes liveness checking and shutdown.
type SupervisorConfig struct {
	HeartbeatTimeoutMs     int `yaml:"heartbeat_timeout_ms"`
	HeartbeatIntervalMs    int `yaml:"heartbeat_interval_ms"`
	RespawnWindowMs        int `yaml:"respawn_window_ms"`
	RespawnLimit           int `yaml:"respawn_limit"`
	RespawnCooldownMs      int `yaml:"respawn_cooldown_ms"`
	ShutdownGracePeriodMs  int `yaml:"shutdown_grace_period_ms"`
}

// ReconnectConfig tunes the producer's backoff schedule.
type ReconnectConfig struct {
	BackoffMsMin int `yaml:"reconnect_backoff_ms_min"`
	BackoffMsMax int `yaml:"reconnect_backoff_ms_max"`
}

// ParserConfig tunes field-level validation behavior in pkg/nortek.
type ParserConfig struct {
	HeadIDMaxLen int `yaml:"head_id_max_len"`
}

// Config is the complete recorder configuration, one YAML document. The
// serial, frame, supervisor, reconnect and parser settings are nested under
// those section keys; output_dir, db_path, queue_capacity, log_level and
// metrics_addr sit at the top level. A nested setting written at the top
// level of the document is not read into its section.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Frame      FrameConfig      `yaml:"frame"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Parser     ParserConfig     `yaml:"parser"`

	OutputDir     string `yaml:"output_dir"`
	DBPath        string `yaml:"db_path"`
	QueueCapacity int    `yaml:"queue_capacity"`
	LogLevel      string `yaml:"log_level"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Defaults returns a Config populated with the spec's default values, used
// as the base that file and env layers are applied over.
func Defaults() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:           "/dev/ttyUSB0",
			BaudRate:       9600,
			ByteSize:       8,
			Parity:         "none",
			StopBits:       1,
			ReadTimeoutMs:  500,
			WriteTimeoutMs: 500,
		},
		Frame: FrameConfig{
			BinaryThresholdBytes: 1024,
			BinaryQuietMs:        2000,
		},
		Supervisor: SupervisorConfig{
			HeartbeatTimeoutMs:    30000,
			HeartbeatIntervalMs:   2000,
			RespawnWindowMs:       60000,
			RespawnLimit:          3,
			RespawnCooldownMs:     30000,
			ShutdownGracePeriodMs: 30000,
		},
		Reconnect: ReconnectConfig{
			BackoffMsMin: 1000,
			BackoffMsMax: 60000,
		},
		Parser: ParserConfig{
			HeadIDMaxLen: 30,
		},
		OutputDir:     "./recorder-data",
		DBPath:        "./recorder-data/store",
		QueueCapacity: 1024,
		LogLevel:      "info",
	}
}

// Load reads and parses a YAML config file, starting from Defaults() so
// unset keys keep their default values.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, err
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds parsed command-line flag values and which were explicitly set.
type Flags struct {
	Config string
	Set    map[string]bool
}

// ParseFlags defines and parses the recorder's minimal flag surface: just
// where to find the config file. This is process wiring, not the external
// CLI the spec excludes — no subcommands, no per-field flags.
func ParseFlags() Flags {
	cfgPtr := flag.String("config", "./config.yaml", "path to recorder config file")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Config: *cfgPtr, Set: set}
}

// ResolveConfigPath decides the config file path: explicit flag wins, then
// RECORDER_CONFIG, then the flag's default.
func ResolveConfigPath(flags Flags) string {
	if flags.Set["config"] {
		return flags.Config
	}
	if p := os.Getenv("RECORDER_CONFIG"); p != "" {
		return p
	}
	return flags.Config
}

// LoadEnvOverrides applies RECORDER_* environment variables onto cfg,
// mirroring the teacher's layered env-override approach.
func LoadEnvOverrides(cfg *Config) {
	str := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	i := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	b := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "yes":
				*dst = true
			case "0", "false", "no":
				*dst = false
			}
		}
	}

	str("RECORDER_SERIAL_PORT", &cfg.Serial.Port)
	i("RECORDER_BAUD_RATE", &cfg.Serial.BaudRate)
	i("RECORDER_BYTE_SIZE", &cfg.Serial.ByteSize)
	str("RECORDER_PARITY", &cfg.Serial.Parity)
	i("RECORDER_STOP_BITS", &cfg.Serial.StopBits)
	i("RECORDER_READ_TIMEOUT_MS", &cfg.Serial.ReadTimeoutMs)
	i("RECORDER_WRITE_TIMEOUT_MS", &cfg.Serial.WriteTimeoutMs)
	b("RECORDER_RTS_CTS", &cfg.Serial.RTSCTS)
	b("RECORDER_DSR_DTR", &cfg.Serial.DSRDTR)
	b("RECORDER_XON_XOFF", &cfg.Serial.XonXoff)

	i("RECORDER_BINARY_THRESHOLD_BYTES", &cfg.Frame.BinaryThresholdBytes)
	i("RECORDER_BINARY_QUIET_MS", &cfg.Frame.BinaryQuietMs)

	i("RECORDER_HEARTBEAT_TIMEOUT_MS", &cfg.Supervisor.HeartbeatTimeoutMs)
	i("RECORDER_RESPAWN_LIMIT", &cfg.Supervisor.RespawnLimit)
	i("RECORDER_RESPAWN_WINDOW_MS", &cfg.Supervisor.RespawnWindowMs)
	i("RECORDER_RESPAWN_COOLDOWN_MS", &cfg.Supervisor.RespawnCooldownMs)
	i("RECORDER_SHUTDOWN_GRACE_PERIOD_MS", &cfg.Supervisor.ShutdownGracePeriodMs)

	i("RECORDER_RECONNECT_BACKOFF_MS_MIN", &cfg.Reconnect.BackoffMsMin)
	i("RECORDER_RECONNECT_BACKOFF_MS_MAX", &cfg.Reconnect.BackoffMsMax)

	i("RECORDER_HEAD_ID_MAX_LEN", &cfg.Parser.HeadIDMaxLen)

	str("RECORDER_OUTPUT_DIR", &cfg.OutputDir)
	str("RECORDER_DB_PATH", &cfg.DBPath)
	i("RECORDER_QUEUE_CAPACITY", &cfg.QueueCapacity)
	str("RECORDER_LOG_LEVEL", &cfg.LogLevel)
	str("RECORDER_METRICS_ADDR", &cfg.MetricsAddr)
}

// EffectiveConfigResult is the fully resolved configuration plus where it
// came from, used for the startup banner and diagnostics.
type EffectiveConfigResult struct {
	Config     *Config
	Source     string // "defaults+env" or "file+env"
	ConfigPath string
}

// LoadEffective resolves the config path, loads the file (tolerating a
// missing file by falling back to defaults), and layers env overrides on
// top.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	path := ResolveConfigPath(flags)
	cfg, err := Load(path)
	source := "file"
	if err != nil {
		if !os.IsNotExist(err) {
			return EffectiveConfigResult{}, err
		}
		source = "defaults"
	}
	LoadEnvOverrides(cfg)
	if source == "defaults" {
		source = "defaults+env"
	} else {
		source = "file+env"
	}
	if err := Validate(cfg); err != nil {
		return EffectiveConfigResult{}, err
	}
	return EffectiveConfigResult{Config: cfg, Source: source, ConfigPath: path}, nil
}

// Validate checks structural constraints spec.md §7 treats as startup-fatal
// configuration errors.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial.serial_port must not be empty")
	}
	switch strings.ToLower(cfg.Serial.Parity) {
	case "none", "even", "odd":
	default:
		return fmt.Errorf("serial.parity must be one of none|even|odd, got %q", cfg.Serial.Parity)
	}
	if cfg.Serial.ByteSize < 5 || cfg.Serial.ByteSize > 8 {
		return fmt.Errorf("serial.byte_size must be 5-8, got %d", cfg.Serial.ByteSize)
	}
	if cfg.Serial.StopBits != 1 && cfg.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2, got %d", cfg.Serial.StopBits)
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if cfg.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.Reconnect.BackoffMsMin <= 0 || cfg.Reconnect.BackoffMsMax < cfg.Reconnect.BackoffMsMin {
		return fmt.Errorf("reconnect backoff bounds invalid: min=%d max=%d", cfg.Reconnect.BackoffMsMin, cfg.Reconnect.BackoffMsMax)
	}
	return nil
}
