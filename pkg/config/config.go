// Package config loads CineGraph configuration.
//
// Configuration is layered, later sources overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A YAML file: the --config flag, else $CINEGRAPH_CONFIG, else the first
//     of DefaultConfigPaths that exists
//  3. CINEGRAPH_* environment variables
//
// The merged result is validated before it is returned.
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//	logging.Init(cfg.Log.LoggingConfig())
//
// Example cinegraph.yaml:
//
//	data:
//	  dir: ./data/imdb
//	log:
//	  level: debug
//	  format: json
//	index:
//	  prune_on_delete: true
//	snapshot:
//	  dir: ./data/snapshot
//	report:
//	  format: yaml
//	update:
//	  delete_below: 4.0
//	  year_bumps:
//	    - {year: 1970, factor: 0.2}
//
// Environment Variables:
//   - CINEGRAPH_CONFIG: path to the YAML file
//   - CINEGRAPH_DATA_DIR: dataset directory
//   - CINEGRAPH_LOG_LEVEL, CINEGRAPH_LOG_FORMAT, CINEGRAPH_LOG_CALLER
//   - CINEGRAPH_INDEX_PRUNE_ON_DELETE: drop deleted actors from the name index
//   - CINEGRAPH_SNAPSHOT_DIR, CINEGRAPH_SNAPSHOT_SYNC_WRITES
//   - CINEGRAPH_METRICS_FILE: write Prometheus text metrics here after a run
//   - CINEGRAPH_REPORT_FORMAT: text, json or yaml
//   - CINEGRAPH_UPDATE_DELETE_BELOW, CINEGRAPH_UPDATE_MOVIE_BUMP_FACTOR,
//     CINEGRAPH_UPDATE_MOVIE_BUMP_SEED
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/orneryd/cinegraph/pkg/logging"
	"github.com/orneryd/cinegraph/pkg/storage"
	"github.com/orneryd/cinegraph/pkg/update"
)

// Config is the full CineGraph configuration.
type Config struct {
	Data     DataConfig     `koanf:"data"`
	Log      LogConfig      `koanf:"log"`
	Index    IndexConfig    `koanf:"index"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Report   ReportConfig   `koanf:"report"`
	Update   update.Plan    `koanf:"update"`
}

// DataConfig locates the CSV dataset.
type DataConfig struct {
	// Dir is used when a command is not given an input directory.
	Dir string `koanf:"dir"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// LoggingConfig converts to the logging package's config, writing to stderr.
func (c LogConfig) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Level,
		Format: c.Format,
		Caller: c.Caller,
		Output: os.Stderr,
	}
}

// IndexConfig configures the actor name index.
type IndexConfig struct {
	PruneOnDelete bool `koanf:"prune_on_delete"`
}

// StoreOptions returns the storage options implied by the config.
func (c *Config) StoreOptions() storage.Options {
	return storage.Options{PruneNameIndex: c.Index.PruneOnDelete}
}

// SnapshotConfig configures the snapshot archive.
type SnapshotConfig struct {
	Dir        string `koanf:"dir" validate:"required"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// MetricsConfig configures the metrics dump.
type MetricsConfig struct {
	// File receives Prometheus text exposition output after a run. Empty
	// disables the dump.
	File string `koanf:"file"`
}

// ReportConfig selects how run reports are printed.
type ReportConfig struct {
	Format string `koanf:"format" validate:"oneof=text json yaml"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{Dir: ""},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Snapshot: SnapshotConfig{Dir: "./data/snapshot"},
		Report:   ReportConfig{Format: "text"},
		Update:   update.DefaultPlan(),
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validatorInstance().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// String returns a one-line summary for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DataDir: %s, Log: %s/%s, PruneIndex: %v, SnapshotDir: %s, Report: %s}",
		c.Data.Dir, c.Log.Level, c.Log.Format, c.Index.PruneOnDelete, c.Snapshot.Dir, c.Report.Format)
}
