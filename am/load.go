package am

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/featsmith/errors"
)

// ProjectConfigName is the file searched for from the working directory upwards
const ProjectConfigName = "featsmith.toml"

// EnvPrefix prefixes every environment override (FEATSMITH_COMPILE_REPAIR=true)
const EnvPrefix = "FEATSMITH"

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	explicitFile  string

	// ConfigSources records which file supplied each key during the last load
	ConfigSources = map[string]SourceInfo{}
)

// SetConfigFile registers an explicit config file (the --config flag).
// It is merged last among files and must exist.
func SetConfigFile(path string) {
	explicitFile = path
	globalConfig = nil
	viperInstance = nil
}

// Load reads the featsmith configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the
// defaults, ignoring the cascade and the environment
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	explicitFile = ""
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	if err := mergeConfigFiles(v); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// findProjectConfig searches for featsmith.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// UserConfigPath returns ~/.featsmith/featsmith.toml, or "" without a home directory
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".featsmith", ProjectConfigName)
}

type configFile struct {
	path     string
	source   ConfigSource
	required bool
}

// mergeConfigFiles merges configuration files in precedence order.
// Precedence (lowest to highest): user < project < explicit < env vars
func mergeConfigFiles(v *viper.Viper) error {
	ConfigSources = map[string]SourceInfo{}

	var files []configFile
	if user := UserConfigPath(); user != "" {
		files = append(files, configFile{path: user, source: SourceUser})
	}
	if project := findProjectConfig(); project != "" && project != UserConfigPath() {
		files = append(files, configFile{path: project, source: SourceProject})
	}
	if explicitFile != "" {
		files = append(files, configFile{path: explicitFile, source: SourceExplicit, required: true})
	}

	for _, f := range files {
		if _, err := os.Stat(f.path); err != nil {
			if f.required {
				return errors.WithHint(
					errors.Wrapf(err, "config file %s", f.path),
					"run 'featsmith am init' to create one",
				)
			}
			continue
		}

		tmp := viper.New()
		tmp.SetConfigFile(f.path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to parse config file %s", f.path)
		}

		settings := tmp.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			return errors.Wrapf(err, "failed to merge config file %s", f.path)
		}
		for _, key := range flattenKeys(settings, "") {
			ConfigSources[key] = SourceInfo{Source: f.source, Path: f.path}
		}
	}

	return nil
}

func flattenKeys(settings map[string]interface{}, prefix string) []string {
	var keys []string
	for k, val := range settings {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := val.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, full)...)
			continue
		}
		keys = append(keys, full)
	}
	sort.Strings(keys)
	return keys
}
