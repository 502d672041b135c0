// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"DEPVEC_REDIS_ADDR", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"DEPVEC_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"DEPVEC_REDIS_DB", integer(func(c *Config) *int { return &c.Redis.DB })},
	{"DEPVEC_QUEUE_KEY", str(func(c *Config) *string { return &c.Redis.QueueKey })},
	{"DEPVEC_STATUS_KEY", str(func(c *Config) *string { return &c.Redis.StatusKey })},
	{"DEPVEC_HISTORY_KEY", str(func(c *Config) *string { return &c.Redis.HistoryKey })},

	{"DEPVEC_LISTEN_ADDR", str(func(c *Config) *string { return &c.Dispatcher.ListenAddr })},
	{"DEPVEC_ADMIN_TOKEN", str(func(c *Config) *string { return &c.Dispatcher.AdminToken })},
	{"DEPVEC_QUEUE_CAP", integer(func(c *Config) *int { return &c.Dispatcher.QueueCap })},
	{"DEPVEC_TASK_TTL", duration(func(c *Config) *time.Duration { return &c.Dispatcher.TaskTTL })},
	{"DEPVEC_QUEUE_EXPIRY", duration(func(c *Config) *time.Duration { return &c.Dispatcher.QueueExpiry })},

	{"DEPVEC_WORKER_ID", str(func(c *Config) *string { return &c.Worker.ID })},
	{"DEPVEC_IDLE_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Worker.IdleInterval })},
	{"DEPVEC_POP_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Worker.PopTimeout })},
	{"DEPVEC_WORK_DIR", str(func(c *Config) *string { return &c.Worker.WorkDir })},
	{"DEPVEC_CLONE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Worker.CloneTimeout })},
	{"DEPVEC_STORE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Worker.StoreTimeout })},
	{"DEPVEC_EXCLUDE_GLOBS", func(c *Config, v string) error {
		c.Worker.ExcludeGlobs = splitList(v)
		return nil
	}},

	{"DEPVEC_EMBED_DIM", integer(func(c *Config) *int { return &c.Trainer.Dim })},
	{"DEPVEC_WALK_LENGTH", integer(func(c *Config) *int { return &c.Trainer.WalkLength })},
	{"DEPVEC_WINDOW", integer(func(c *Config) *int { return &c.Trainer.Window })},
	{"DEPVEC_WALKS_PER_NODE", integer(func(c *Config) *int { return &c.Trainer.WalksPerNode })},
	{"DEPVEC_EPOCHS", integer(func(c *Config) *int { return &c.Trainer.Epochs })},
	{"DEPVEC_LEARNING_RATE", float(func(c *Config) *float64 { return &c.Trainer.LearningRate })},
	{"DEPVEC_SEED", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.Trainer.Seed = n
		return nil
	}},

	{"DEPVEC_INDEX_BACKEND", str(func(c *Config) *string { return &c.Index.Backend })},
	{"DEPVEC_INDEX_URL", str(func(c *Config) *string { return &c.Index.URL })},
	{"DEPVEC_INDEX_API_KEY", str(func(c *Config) *string { return &c.Index.APIKey })},
	{"DEPVEC_INDEX_PATH", str(func(c *Config) *string { return &c.Index.Path })},
	{"DEPVEC_INDEX_COLLECTION", str(func(c *Config) *string { return &c.Index.Collection })},
	{"DEPVEC_INDEX_BATCH_SIZE", integer(func(c *Config) *int { return &c.Index.BatchSize })},

	{"DEPVEC_METRICS_ADDR", str(func(c *Config) *string { return &c.Metrics.Addr })},
	{"DEPVEC_LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"DEPVEC_LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
}

// ApplyEnv overrides fields from environment variables. Empty values are
// ignored. All malformed values are reported together.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.key, err))
		}
	}
	return errors.Join(errs...)
}

// EnvKeys lists the recognised environment variables.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = b.key
	}
	return keys
}

// ParseDuration accepts a Go duration ("24h", "90s") or a bare number of
// seconds ("86400").
func ParseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
