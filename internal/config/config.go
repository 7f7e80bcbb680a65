package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Engine   EngineConfig `mapstructure:"engine"`
	Input    InputConfig  `mapstructure:"input"`
	LogLevel string       `mapstructure:"log_level"`
}

// PathsConfig locates the topology/weights pair. ModelPath is a base path
// from which both files are derived; the explicit paths override it.
type PathsConfig struct {
	ModelPath    string `mapstructure:"model_path"`
	TopologyPath string `mapstructure:"topology_path"`
	WeightsPath  string `mapstructure:"weights_path"`
}

type EngineConfig struct {
	Device         string `mapstructure:"device"`
	NumRequests    int    `mapstructure:"num_requests"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

type InputConfig struct {
	ChannelOrder string `mapstructure:"channel_order"`
	Resize       string `mapstructure:"resize"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath: "models/model.onnx",
		},
		Engine: EngineConfig{
			Device:        DeviceCPU,
			NumRequests:   4,
			ORTAPIVersion: 23,
		},
		Input: InputConfig{
			ChannelOrder: "bgr",
			Resize:       "bilinear",
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Model base path; topology (.json) and weights (.onnx) share its name")
	fs.String("paths-topology-path", defaults.Paths.TopologyPath, "Explicit topology file (overrides the model base path)")
	fs.String("paths-weights-path", defaults.Paths.WeightsPath, "Explicit weights file (overrides the model base path)")
	fs.String("engine-device", defaults.Engine.Device, "Target device identifier")
	fs.Int("engine-num-requests", defaults.Engine.NumRequests, "Number of reusable inference request slots")
	fs.String("engine-ort-library-path", defaults.Engine.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("engine-ort-version", defaults.Engine.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("engine-ort-api-version", defaults.Engine.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("input-channel-order", defaults.Input.ChannelOrder, "Channel order of planar image tensors: bgr|rgb")
	fs.String("input-resize", defaults.Input.Resize, "Image resize filter: bilinear|nearest")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("IESCHED")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("engine.ort_library_path", "IESCHED_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("iesched")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	device, err := NormalizeDevice(cfg.Engine.Device)
	if err != nil {
		return Config{}, err
	}
	cfg.Engine.Device = device

	if cfg.Engine.NumRequests < 1 {
		return Config{}, fmt.Errorf("engine.num_requests must be >= 1, got %d", cfg.Engine.NumRequests)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.topology_path", c.Paths.TopologyPath)
	v.SetDefault("paths.weights_path", c.Paths.WeightsPath)
	v.SetDefault("engine.device", c.Engine.Device)
	v.SetDefault("engine.num_requests", c.Engine.NumRequests)
	v.SetDefault("engine.ort_library_path", c.Engine.ORTLibraryPath)
	v.SetDefault("engine.ort_version", c.Engine.ORTVersion)
	v.SetDefault("engine.ort_api_version", c.Engine.ORTAPIVersion)
	v.SetDefault("input.channel_order", c.Input.ChannelOrder)
	v.SetDefault("input.resize", c.Input.Resize)
	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"paths-model-path":        "paths.model_path",
	"paths-topology-path":     "paths.topology_path",
	"paths-weights-path":      "paths.weights_path",
	"engine-device":           "engine.device",
	"engine-num-requests":     "engine.num_requests",
	"engine-ort-library-path": "engine.ort_library_path",
	"engine-ort-version":      "engine.ort_version",
	"engine-ort-api-version":  "engine.ort_api_version",
	"input-channel-order":     "input.channel_order",
	"input-resize":            "input.resize",
	"log-level":               "log_level",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}

	return nil
}
