package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "CINEGRAPH_"

// ConfigPathEnvVar names the config file when no path is passed to Load.
const ConfigPathEnvVar = EnvPrefix + "CONFIG"

// DefaultConfigPaths are tried in order when neither a path nor
// ConfigPathEnvVar is given.
var DefaultConfigPaths = []string{
	"cinegraph.yaml",
	"cinegraph.yml",
}

// envKeys maps lowercased variable names (prefix stripped) to config keys.
// Unmapped CINEGRAPH_* variables are ignored.
var envKeys = map[string]string{
	"data_dir":                 "data.dir",
	"log_level":                "log.level",
	"log_format":               "log.format",
	"log_caller":               "log.caller",
	"index_prune_on_delete":    "index.prune_on_delete",
	"snapshot_dir":             "snapshot.dir",
	"snapshot_sync_writes":     "snapshot.sync_writes",
	"metrics_file":             "metrics.file",
	"report_format":            "report.format",
	"update_delete_below":      "update.delete_below",
	"update_movie_bump_factor": "update.movie_bump_factor",
	"update_movie_bump_seed":   "update.movie_bump_seed",
}

func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envKeys[key]
}

// Load merges defaults, the YAML file at path (or the discovered one) and
// the environment, then validates the result.
//
// An explicitly named file that does not exist is an error; discovered
// defaults that do not exist are skipped.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
