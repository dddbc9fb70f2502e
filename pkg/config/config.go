// Package config loads the daemon's effective configuration from, in
// increasing precedence: environment variables, an optional YAML config
// file, and explicit command-line flags. A .env file in the working
// directory (if present) is loaded into the process environment first.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SizeBytes decodes human-friendly sizes ("4128", "4KB", "1MiB") from YAML
// via dustin/go-humanize.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	n, err := humanize.ParseBytes(str)
	if err != nil {
		return fmt.Errorf("config: invalid size %q: %w", str, err)
	}
	*s = SizeBytes(n)
	return nil
}

// Duration decodes Go duration strings ("2s", "500ms") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", str, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon's full effective configuration.
type Config struct {
	Addr       string `yaml:"addr"`
	ServerName string `yaml:"server_name"`
	ServerPort string `yaml:"server_port"`
	Workers    int    `yaml:"workers"`
	Transport  string `yaml:"transport"` // "http" or "queue"

	SupervisorInterval Duration  `yaml:"supervisor_interval"`
	MaxHeaderSize      SizeBytes `yaml:"max_header_size"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	RollingRestartCron string `yaml:"rolling_restart_cron"`

	LogLevel  string `yaml:"log_level"`
	SentryDSN string `yaml:"sentry_dsn"`
	AdminAddr string `yaml:"admin_addr"`
}

// Default returns the configuration used when neither a file, flag, nor
// environment variable overrides a field.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ServerName:         "localhost",
		ServerPort:         "8080",
		Workers:            4,
		Transport:          "http",
		SupervisorInterval: Duration(2 * time.Second),
		MaxHeaderSize:      4128,
		RateLimitRPS:       0,
		RateLimitBurst:     0,
		LogLevel:           "info",
		AdminAddr:          ":9090",
	}
}

// Flags holds parsed command-line flags plus which of them were explicitly
// set, since an unset flag must not shadow a config-file value.
type Flags struct {
	ConfigPath string

	Addr      string
	Workers   int
	Transport string
	LogLevel  string
	AdminAddr string

	fs  *flag.FlagSet
	set map[string]bool
}

// ParseFlags parses args (typically os.Args[1:]) into Flags.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{fs: flag.NewFlagSet("corehttpd", flag.ContinueOnError)}
	f.fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML config file")
	f.fs.StringVar(&f.Addr, "addr", "", "HTTP listen address (e.g. :8080)")
	f.fs.IntVar(&f.Workers, "workers", 0, "number of prefork worker processes")
	f.fs.StringVar(&f.Transport, "transport", "", "worker transport: http or queue")
	f.fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	f.fs.StringVar(&f.AdminAddr, "admin-addr", "", "admin/metrics listen address")
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	f.set = make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// Load builds the effective Config: defaults, then a loaded .env file's
// environment variables, then an optional YAML config file, then explicit
// flags — each layer only overriding fields the previous layer actually
// set.
func Load(flags *Flags) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("config: loading .env: %w", err)
	}
	applyEnv(&cfg)

	path := ""
	if flags != nil {
		path = flags.ConfigPath
	}
	if path == "" {
		if _, err := os.Stat("corehttpd.yaml"); err == nil {
			path = "corehttpd.yaml"
		}
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if flags != nil {
		applyFlags(&cfg, flags)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("COREHTTPD_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("COREHTTPD_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v, ok := os.LookupEnv("COREHTTPD_TRANSPORT"); ok {
		cfg.Transport = v
	}
	if v, ok := os.LookupEnv("COREHTTPD_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("COREHTTPD_SENTRY_DSN"); ok {
		cfg.SentryDSN = v
	}
	if v, ok := os.LookupEnv("COREHTTPD_ADMIN_ADDR"); ok {
		cfg.AdminAddr = v
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func applyFlags(cfg *Config, flags *Flags) {
	if flags.set["addr"] {
		cfg.Addr = flags.Addr
	}
	if flags.set["workers"] {
		cfg.Workers = flags.Workers
	}
	if flags.set["transport"] {
		cfg.Transport = flags.Transport
	}
	if flags.set["log-level"] {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.set["admin-addr"] {
		cfg.AdminAddr = flags.AdminAddr
	}
}
