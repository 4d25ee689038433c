package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete bridge configuration. It is read once at startup
// and never reloaded.
type Config struct {
	Display DisplayConfig
	Bus     BusConfig
	Refresh RefreshConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// DisplayConfig selects the serial link to the HMI display.
type DisplayConfig struct {
	// Device is a tty path such as /dev/ttyS2.
	Device string
	// Address is host:port of a TCP display simulator; used instead of
	// Device when set.
	Address  string
	BaudRate int
	// ReadTimeout bounds one poll of the serial port so shutdown is
	// noticed; the receive task simply polls again on timeout.
	ReadTimeout time.Duration
}

// BusConfig selects the vehicle bus interface.
type BusConfig struct {
	Interface string
	Disabled  bool
}

// RefreshConfig paces the display refresh task.
type RefreshConfig struct {
	Interval   time.Duration
	ClearDelay time.Duration
}

// MetricsConfig enables the Prometheus endpoint. An empty Address turns
// it off.
type MetricsConfig struct {
	Address string
}

// LogConfig configures the diagnostic log.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Default returns the configuration used for any option the file omits.
func Default() Config {
	return Config{
		Display: DisplayConfig{
			Device:      "/dev/ttyS2",
			BaudRate:    115200,
			ReadTimeout: 200 * time.Millisecond,
		},
		Bus: BusConfig{
			Interface: "can0",
		},
		Refresh: RefreshConfig{
			Interval:   50 * time.Millisecond,
			ClearDelay: time.Millisecond,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  4,
			MaxBackups: 3,
		},
	}
}

type fileConfig struct {
	Display struct {
		Device      string `toml:"device"`
		Address     string `toml:"address"`
		BaudRate    int    `toml:"baud_rate"`
		ReadTimeout string `toml:"read_timeout"`
	} `toml:"display"`
	Bus struct {
		Interface string `toml:"interface"`
		Disabled  bool   `toml:"disabled"`
	} `toml:"bus"`
	Refresh struct {
		Interval   string `toml:"interval"`
		ClearDelay string `toml:"clear_delay"`
	} `toml:"refresh"`
	Log struct {
		Level      string `toml:"level"`
		Format     string `toml:"format"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`
	Metrics struct {
		Address string `toml:"address"`
	} `toml:"metrics"`
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return build(raw, meta)
}

// LoadString parses configuration from a string.
func LoadString(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return build(raw, meta)
}

func build(raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, &ConfigError{Message: "unknown options: " + strings.Join(keys, ", ")}
	}

	cfg := Default()

	if meta.IsDefined("display", "device") {
		cfg.Display.Device = strings.TrimSpace(raw.Display.Device)
	}
	if meta.IsDefined("display", "address") {
		cfg.Display.Address = strings.TrimSpace(raw.Display.Address)
	}
	if meta.IsDefined("display", "baud_rate") {
		cfg.Display.BaudRate = raw.Display.BaudRate
	}
	if meta.IsDefined("display", "read_timeout") {
		d, err := parseDuration("display", "read_timeout", raw.Display.ReadTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Display.ReadTimeout = d
	}

	if meta.IsDefined("bus", "interface") {
		cfg.Bus.Interface = strings.TrimSpace(raw.Bus.Interface)
	}
	if meta.IsDefined("bus", "disabled") {
		cfg.Bus.Disabled = raw.Bus.Disabled
	}

	if meta.IsDefined("refresh", "interval") {
		d, err := parseDuration("refresh", "interval", raw.Refresh.Interval)
		if err != nil {
			return Config{}, err
		}
		cfg.Refresh.Interval = d
	}
	if meta.IsDefined("refresh", "clear_delay") {
		d, err := parseDuration("refresh", "clear_delay", raw.Refresh.ClearDelay)
		if err != nil {
			return Config{}, err
		}
		cfg.Refresh.ClearDelay = d
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}

	if meta.IsDefined("metrics", "address") {
		cfg.Metrics.Address = strings.TrimSpace(raw.Metrics.Address)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(section, option, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, parseError(section, option, err)
	}
	return d, nil
}

// Validate checks option ranges.
func Validate(cfg Config) error {
	if cfg.Display.Device == "" && cfg.Display.Address == "" {
		return missing("display", "device")
	}
	if cfg.Display.BaudRate <= 0 {
		return rejected("display", "baud_rate", cfg.Display.BaudRate, "must be positive")
	}
	if cfg.Display.ReadTimeout <= 0 {
		return rejected("display", "read_timeout", cfg.Display.ReadTimeout, "must be positive")
	}
	if !cfg.Bus.Disabled && cfg.Bus.Interface == "" {
		return missing("bus", "interface")
	}
	if cfg.Refresh.Interval <= 0 {
		return rejected("refresh", "interval", cfg.Refresh.Interval, "must be positive")
	}
	if cfg.Refresh.ClearDelay < 0 {
		return rejected("refresh", "clear_delay", cfg.Refresh.ClearDelay, "must not be negative")
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return rejected("log", "format", cfg.Log.Format, "must be text or json")
	}
	return nil
}
