package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ODE"

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "configs/config.yaml"

// DefaultFile returns DefaultPath if that file exists relative to the
// working directory, and "" otherwise.
func DefaultFile() string {
	if info, err := os.Stat(DefaultPath); err == nil && !info.IsDir() {
		return DefaultPath
	}
	return ""
}

type Config struct {
	Emulator     EmulatorConfig     `mapstructure:"emulator"`
	Dictionaries DictionariesConfig `mapstructure:"dictionaries"`
	API          APIConfig          `mapstructure:"api"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	ProtocolLog  ProtocolLogConfig  `mapstructure:"protocol_log"`
}

type EmulatorConfig struct {
	BindAddress   string        `mapstructure:"bind_address"`
	Mode          string        `mapstructure:"mode"`
	ListenTimeout time.Duration `mapstructure:"listen_timeout"`
}

// DictionariesConfig names the description sources. Relative names are
// resolved against SearchPaths.
type DictionariesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
	Subnode0    string   `mapstructure:"subnode0"`
	Subnode1    string   `mapstructure:"subnode1"`
	Defaults    string   `mapstructure:"defaults"`
}

type APIConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	HTTPPort int  `mapstructure:"http_port"`
}

type ServerConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ProtocolLogConfig struct {
	Path string `mapstructure:"path"`
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"xml-file":     "dictionaries.subnode0",
	"virtual-xml":  "dictionaries.subnode1",
	"defaults":     "dictionaries.defaults",
	"mode":         "emulator.mode",
	"bind":         "emulator.bind_address",
	"http-port":    "api.http_port",
	"log-level":    "logging.level",
	"protocol-log": "protocol_log.path",
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to a YAML config file")
	fs.StringP("xml-file", "x", "", "XDF dictionary for sub-node 0")
	fs.StringP("virtual-xml", "v", "", "XDF dictionary for sub-node 1")
	fs.StringP("defaults", "d", "", "XCF file with register defaults")
	fs.StringP("mode", "m", "extended", "MCB mode (extended|standard)")
	fs.String("bind", "", "UDP address to serve MCB on")
	fs.Int("http-port", 0, "HTTP port of the inspection API")
	fs.String("log-level", "", "log level (debug|info|warn|error)")
	fs.String("protocol-log", "", "CBOR capture file, empty disables capture")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("emulator.bind_address", "127.0.0.2:1061")
	v.SetDefault("emulator.mode", "extended")
	v.SetDefault("emulator.listen_timeout", "100ms")
	v.SetDefault("dictionaries.search_paths", []string{"."})
	v.SetDefault("dictionaries.subnode0", "")
	v.SetDefault("dictionaries.subnode1", "")
	v.SetDefault("dictionaries.defaults", "")
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("protocol_log.path", "")
}

// Load builds the configuration from defaults, an optional YAML file,
// ODE_ environment variables and flags, in increasing precedence. The file
// is taken from the --config flag when fs is given, otherwise from path.
// An explicit file that cannot be read is an error.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			// Only explicitly set flags override file and environment.
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate reports settings the emulator cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Dictionaries.Subnode0 == "" {
		errs = append(errs, errors.New("dictionaries.subnode0 (--xml-file) is required"))
	}
	if c.Dictionaries.Subnode1 == "" {
		errs = append(errs, errors.New("dictionaries.subnode1 (--virtual-xml) is required"))
	}
	if c.Dictionaries.Defaults == "" {
		errs = append(errs, errors.New("dictionaries.defaults (--defaults) is required"))
	}
	switch strings.ToLower(c.Emulator.Mode) {
	case "", "extended", "standard":
	default:
		errs = append(errs, fmt.Errorf("emulator.mode %q is not extended or standard", c.Emulator.Mode))
	}
	if c.Emulator.BindAddress == "" {
		errs = append(errs, errors.New("emulator.bind_address is required"))
	}
	if c.API.Enabled && (c.API.HTTPPort < 0 || c.API.HTTPPort > 65535) {
		errs = append(errs, fmt.Errorf("api.http_port %d out of range", c.API.HTTPPort))
	}
	if c.Emulator.ListenTimeout <= 0 {
		errs = append(errs, errors.New("emulator.listen_timeout must be positive"))
	}

	return errors.Join(errs...)
}
