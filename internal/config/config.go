// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads depvec configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// DEPVEC_* environment variables. The result is validated before use.
//
//	cfg, err := config.Load("depvec.yaml")
//	if err != nil {
//	    return err
//	}
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up when --config is not given.
const DefaultFileName = "depvec.yaml"

// Config is the full depvec configuration.
type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Worker     WorkerConfig     `yaml:"worker"`
	Trainer    TrainerConfig    `yaml:"trainer"`
	Index      IndexConfig      `yaml:"index"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// RedisConfig locates the shared queue and status store.
type RedisConfig struct {
	Addr        string        `yaml:"addr" validate:"required,hostname_port"`
	Password    string        `yaml:"password,omitempty"`
	DB          int           `yaml:"db" validate:"gte=0"`
	QueueKey    string        `yaml:"queue_key" validate:"required"`
	StatusKey   string        `yaml:"status_key" validate:"required"`
	HistoryKey  string        `yaml:"history_key" validate:"required"`
	DialTimeout time.Duration `yaml:"dial_timeout" validate:"gte=0"`
}

// DispatcherConfig configures the control plane.
type DispatcherConfig struct {
	ListenAddr      string        `yaml:"listen_addr" validate:"required"`
	AdminToken      string        `yaml:"admin_token,omitempty" validate:"omitempty,min=16"`
	QueueCap        int           `yaml:"queue_cap" validate:"gte=1"`
	TaskTTL         time.Duration `yaml:"task_ttl" validate:"gte=0"`
	QueueExpiry     time.Duration `yaml:"queue_expiry" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// WorkerConfig configures the compute plane.
type WorkerConfig struct {
	ID               string        `yaml:"id,omitempty" validate:"omitempty,max=64,hostname_rfc1123"`
	IdleInterval     time.Duration `yaml:"idle_interval" validate:"gt=0"`
	PopTimeout       time.Duration `yaml:"pop_timeout" validate:"gte=0"`
	WorkDir          string        `yaml:"work_dir,omitempty"`
	MaxFileSize      int64         `yaml:"max_file_size" validate:"gt=0"`
	ExcludeGlobs     []string      `yaml:"exclude_globs,omitempty"`
	ParseConcurrency int           `yaml:"parse_concurrency" validate:"gte=1,lte=256"`
	CloneTimeout     time.Duration `yaml:"clone_timeout" validate:"gte=0"`
	StoreTimeout     time.Duration `yaml:"store_timeout" validate:"gt=0"`
}

// TrainerConfig holds the embedding hyperparameters.
type TrainerConfig struct {
	Dim             int     `yaml:"dim" validate:"gte=2,lte=4096"`
	WalkLength      int     `yaml:"walk_length" validate:"gte=2"`
	Window          int     `yaml:"window" validate:"gte=1"`
	WalksPerNode    int     `yaml:"walks_per_node" validate:"gte=1"`
	Epochs          int     `yaml:"epochs" validate:"gte=10"`
	LearningRate    float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`
	NegativeSamples int     `yaml:"negative_samples" validate:"gte=1,lte=64"`
	P               float64 `yaml:"p" validate:"gt=0"`
	Q               float64 `yaml:"q" validate:"gt=0"`
	Seed            uint64  `yaml:"seed"`
	MaxNodes        int     `yaml:"max_nodes" validate:"gte=1"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Backend        string        `yaml:"backend" validate:"oneof=qdrant embedded"`
	URL            string        `yaml:"url,omitempty" validate:"required_if=Backend qdrant,omitempty,url"`
	APIKey         string        `yaml:"api_key,omitempty"`
	Path           string        `yaml:"path,omitempty" validate:"required_if=Backend embedded"`
	Collection     string        `yaml:"collection" validate:"required"`
	BatchSize      int           `yaml:"batch_size" validate:"gte=1,lte=1000"`
	MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1,lte=10"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gte=0"`
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
}

// MetricsConfig enables the Prometheus endpoint of the worker.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			QueueKey:    "depvec:queue",
			StatusKey:   "depvec:worker:status",
			HistoryKey:  "depvec:jobs:history",
			DialTimeout: 5 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			ListenAddr:      ":8080",
			QueueCap:        10,
			TaskTTL:         86400 * time.Second,
			QueueExpiry:     86400 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			IdleInterval:     2 * time.Second,
			MaxFileSize:      1 << 20,
			ParseConcurrency: 8,
			CloneTimeout:     10 * time.Minute,
			StoreTimeout:     5 * time.Second,
		},
		Trainer: TrainerConfig{
			Dim:             64,
			WalkLength:      20,
			Window:          10,
			WalksPerNode:    10,
			Epochs:          10,
			LearningRate:    0.01,
			NegativeSamples: 1,
			P:               1,
			Q:               1,
			Seed:            42,
			MaxNodes:        200000,
		},
		Index: IndexConfig{
			Backend:        "qdrant",
			URL:            "http://localhost:6333",
			Path:           "depvec-index.db",
			Collection:     "depvec_structural",
			BatchSize:      100,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     4 * time.Second,
			Timeout:        30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path skips the file; a missing DefaultFileName is
// not an error, any other missing path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
		switch {
		case errors.Is(err, fs.ErrNotExist) && path == DefaultFileName:
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decodeYAML(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return &ValidationError{Problems: msgs}
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q (value %v)", field, fe.Tag(), fe.Value())
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# depvec configuration. Environment variables (DEPVEC_*) override these values.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the configuration to path with owner-only permissions, since
// it may carry the admin token.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
