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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kraklabs/depvec/internal/config"
	"github.com/kraklabs/depvec/pkg/dispatch"
	"github.com/kraklabs/depvec/pkg/embedding"
	"github.com/kraklabs/depvec/pkg/ingestion"
	"github.com/kraklabs/depvec/pkg/publish"
	"github.com/kraklabs/depvec/pkg/queue"
	"github.com/kraklabs/depvec/pkg/storage"
	"github.com/kraklabs/depvec/pkg/worker"
)

// NewLogger builds the process logger from cfg. debug forces the debug
// level.
func NewLogger(cfg config.LogConfig, w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore connects to Redis and checks the connection.
func OpenStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*queue.RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	store := queue.NewRedisStore(client, queue.Keys{
		Queue:   cfg.QueueKey,
		Status:  cfg.StatusKey,
		History: cfg.HistoryKey,
	})
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	logger.Debug("bootstrap.redis.connected", "addr", cfg.Addr, "db", cfg.DB)
	return store, nil
}

// OpenIndex opens the configured vector index backend.
func OpenIndex(cfg config.IndexConfig, logger *slog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "embedded":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create index dir: %w", err)
			}
		}
		b, err := storage.NewEmbeddedBackend(storage.EmbeddedConfig{Path: cfg.Path})
		if err != nil {
			return nil, err
		}
		logger.Debug("bootstrap.index.open", "backend", "embedded", "path", cfg.Path)
		return b, nil
	case "qdrant", "":
		b, err := storage.NewQdrantBackend(storage.QdrantConfig{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("bootstrap.index.open", "backend", "qdrant", "url", cfg.URL)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// NewDispatcher builds the control plane from cfg.
func NewDispatcher(cfg *config.Config, store queue.Store, logger *slog.Logger) *dispatch.Dispatcher {
	return dispatch.New(store, dispatch.Config{
		AdminToken:     cfg.Dispatcher.AdminToken,
		QueueCap:       cfg.Dispatcher.QueueCap,
		TaskTTL:        cfg.Dispatcher.TaskTTL,
		QueueExpiry:    cfg.Dispatcher.QueueExpiry,
		StatusWorkerID: cfg.Worker.ID,
	}, logger)
}

// TrainerConfig maps the trainer section onto embedding.Config.
func TrainerConfig(cfg config.TrainerConfig) embedding.Config {
	return embedding.Config{
		Dim:             cfg.Dim,
		WalkLength:      cfg.WalkLength,
		Window:          cfg.Window,
		WalksPerNode:    cfg.WalksPerNode,
		Epochs:          cfg.Epochs,
		LearningRate:    cfg.LearningRate,
		NegativeSamples: cfg.NegativeSamples,
		P:               cfg.P,
		Q:               cfg.Q,
		Seed:            cfg.Seed,
		MaxNodes:        cfg.MaxNodes,
	}
}

// Pipeline holds the concrete pipeline stages. It is shared by the poll
// loop and the inline "run" command.
type Pipeline struct {
	Fetcher   *ingestion.Fetcher
	Builder   *ingestion.GraphBuilder
	Trainer   *embedding.Trainer
	Publisher *publish.Publisher
}

// NewPipeline wires the stages against index.
func NewPipeline(cfg *config.Config, index storage.Backend, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		Fetcher: ingestion.NewFetcher(ingestion.FetcherConfig{
			WorkDir:      cfg.Worker.WorkDir,
			ExcludeGlobs: cfg.Worker.ExcludeGlobs,
			MaxFileSize:  cfg.Worker.MaxFileSize,
			CloneTimeout: cfg.Worker.CloneTimeout,
		}, logger),
		Builder: ingestion.NewGraphBuilder(nil, cfg.Worker.ParseConcurrency, logger),
		Trainer: embedding.NewTrainer(TrainerConfig(cfg.Trainer), logger),
		Publisher: publish.NewPublisher(index, publish.Config{
			Collection:     cfg.Index.Collection,
			BatchSize:      cfg.Index.BatchSize,
			MaxAttempts:    cfg.Index.MaxAttempts,
			InitialBackoff: cfg.Index.InitialBackoff,
			MaxBackoff:     cfg.Index.MaxBackoff,
		}, logger),
	}
}

// Stages returns the pipeline as worker stages.
func (p *Pipeline) Stages() worker.Stages {
	return worker.Stages{
		Fetcher:   p.Fetcher,
		Builder:   p.Builder,
		Trainer:   p.Trainer,
		Publisher: p.Publisher,
	}
}

// NewWorker builds the compute plane from cfg.
func NewWorker(cfg *config.Config, store queue.Store, index storage.Backend, logger *slog.Logger) (*worker.Worker, error) {
	return worker.New(store, NewPipeline(cfg, index, logger).Stages(), worker.Config{
		ID:           cfg.Worker.ID,
		IdleInterval: cfg.Worker.IdleInterval,
		PopTimeout:   cfg.Worker.PopTimeout,
		StoreTimeout: cfg.Worker.StoreTimeout,
	}, logger)
}

// ProjectInfo describes the result of InitProject.
type ProjectInfo struct {
	ConfigPath string
	Created    bool
	IndexPath  string // set for the embedded backend
}

// ErrConfigExists is returned by InitProject when the file exists and
// force is false.
var ErrConfigExists = errors.New("config file already exists")

// InitProject writes cfg to path. An existing file is only replaced when
// force is set. For the embedded index backend the index file is created
// too, so a first run fails early on an unwritable location.
func InitProject(path string, cfg *config.Config, force bool, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	info := &ProjectInfo{ConfigPath: path}
	_, err := os.Stat(path)
	switch {
	case err == nil && !force:
		return info, fmt.Errorf("%s: %w", path, ErrConfigExists)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	logger.Info("bootstrap.project.init.start", "config", path, "backend", cfg.Index.Backend)
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	info.Created = true

	if cfg.Index.Backend == "embedded" {
		index, err := OpenIndex(cfg.Index, logger)
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		defer func() { _ = index.Close() }()
		if err := index.EnsureCollection(context.Background(), cfg.Index.Collection, cfg.Trainer.Dim); err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
		info.IndexPath = cfg.Index.Path
	}

	logger.Info("bootstrap.project.init.success", "config", path)
	return info, nil
}
