/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/codetran/internal"
	"github.com/valpere/codetran/internal/chunker"
	"github.com/valpere/codetran/internal/contextstore"
	"github.com/valpere/codetran/internal/metrics"
	"github.com/valpere/codetran/internal/orchestrator"
	"github.com/valpere/codetran/internal/progress"
	"github.com/valpere/codetran/internal/prompt"
	"github.com/valpere/codetran/internal/store"
	"github.com/valpere/codetran/internal/translator"
	"github.com/valpere/codetran/internal/validator"
)

// session bundles what one command run owns.
type session struct {
	db    *store.Store
	coord *orchestrator.Coordinator
	stop  context.CancelFunc
}

func (s *session) Close() {
	if s.stop != nil {
		s.stop()
	}
	if s.db != nil {
		s.db.Close()
	}
}

type sessionOptions struct {
	targetFunctions []string
	noCache         bool
	outputDir       string
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.Store.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func newPlanner() *chunker.Planner {
	var det chunker.BoundaryDetector = chunker.TreeSitterDetector{}
	if cfg.Chunking.Detector == "regex" {
		det = chunker.RegexDetector{}
	}
	return chunker.NewPlanner(det, cfg.Chunking.FunctionThreshold)
}

func newEmbedder() (contextstore.Embedder, error) {
	cs := cfg.ContextStore
	switch cs.EmbedProvider {
	case "openai":
		return contextstore.NewOpenAIEmbedder(cs.EmbedURL, cs.EmbedAPIKey, cs.EmbedModel)
	default:
		return contextstore.NewOllamaEmbedder(cs.EmbedURL, cs.EmbedModel), nil
	}
}

const preflightTimeout = 10 * time.Second

// newSession binds the configured provider, checker and stores once for
// the whole command run.
func newSession(ctx context.Context, opts sessionOptions) (*session, error) {
	tr, err := translator.New(ctx, cfg.Translator.Config)
	if err != nil {
		return nil, err
	}
	if err := translator.Preflight(ctx, tr, preflightTimeout); err != nil {
		return nil, err
	}

	db, err := openStore()
	if err != nil {
		return nil, err
	}
	s := &session{db: db}

	deps := orchestrator.Deps{
		Translator: tr,
		Checker:    validator.NewCommandChecker(cfg.Checker.Command, cfg.Checker.Args, cfg.Checker.Timeout, cfg.Checker.MaxDiagnostic, logger),
		Prompts:    prompt.NewFileProvider(cfg.Prompts.Dir),
		Planner:    newPlanner(),
		Tracker:    progress.New(db, logger),
		History:    db,
		Memory:     db,
		Logger:     logger,
	}

	if cfg.ContextStore.Enabled {
		cs, err := contextstore.NewChromemStore(contextstore.Config{Path: cfg.ContextStore.Path}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		emb, err := newEmbedder()
		if err != nil {
			s.Close()
			return nil, err
		}
		deps.Context = cs
		deps.Embedder = emb
	}

	if cfg.Metrics.Addr != "" {
		m := metrics.New()
		deps.Metrics = m
		mctx, cancel := context.WithCancel(ctx)
		s.stop = cancel
		go func() {
			if err := m.Serve(mctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	outputDir := cfg.Output.Dir
	if opts.outputDir != "" {
		outputDir = opts.outputDir
	}
	s.coord = orchestrator.New(deps, orchestrator.Config{
		OutputDir:           outputDir,
		TargetLang:          cfg.Output.TargetLang,
		MaxAttempts:         cfg.Retry.MaxAttempts,
		BaseDelay:           cfg.Retry.BaseDelay,
		CallTimeout:         cfg.Translator.Timeout,
		MaxLines:            cfg.Chunking.MaxLines,
		ChunkThresholdLines: cfg.Chunking.ChunkThresholdLines,
		Workers:             cfg.Chunking.Workers,
		Concurrency:         cfg.Batch.Concurrency,
		MaxPromptTokens:     cfg.Translator.MaxPromptTokens,
		MaxTokens:           cfg.Translator.MaxTokens,
		SystemInstruction:   cfg.Translator.SystemInstruction,
		ContextResults:      cfg.ContextStore.Results,
		NoCache:             opts.noCache || cfg.Store.NoCache,
		TargetFunctions:     opts.targetFunctions,
	})
	return s, nil
}

func readUnit(path string) (internal.Unit, error) {
	return orchestrator.LoadUnit(path, cfg.Output.TargetLang)
}

// discoverUnits lists .c files under root, skipping hidden directories.
func discoverUnits(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".c") {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return internal.Clip(s, n-3) + "..."
}
