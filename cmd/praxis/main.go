// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Command praxis runs the agent engine from the terminal: one-shot with
// -prompt, or as an interactive REPL on a TTY.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/jllopis/praxis/pkg/config"
	"github.com/jllopis/praxis/pkg/core"
	"github.com/jllopis/praxis/pkg/llm"
	"github.com/jllopis/praxis/pkg/mcp/pool"
	"github.com/jllopis/praxis/pkg/memory"
	ollamamem "github.com/jllopis/praxis/pkg/memory/ollama"
	"github.com/jllopis/praxis/pkg/memory/qdrant"
	"github.com/jllopis/praxis/pkg/planner"
	"github.com/jllopis/praxis/pkg/skills"
	"github.com/jllopis/praxis/pkg/store"
	"github.com/jllopis/praxis/pkg/telemetry"
	"github.com/jllopis/praxis/pkg/tenant"
	"github.com/jllopis/praxis/pkg/tools"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "Path to the YAML config file")
	profile := flag.String("profile", "", "Config profile to load (dev, prod)")
	tenantID := flag.String("tenant", "default", "Tenant to run as")
	prompt := flag.String("prompt", "", "Single prompt to run (non-interactive)")
	conversation := flag.String("conversation", "", "Conversation ID to continue")
	skillsDir := flag.String("skills", "", "Directory containing skill definitions")
	planPath := flag.String("plan", "", "Path to a fixed plan file (YAML/JSON), bypassing the generator")
	watch := flag.Bool("watch", false, "Watch config files for changes and hot-reload")
	noTelemetry := flag.Bool("no-telemetry", false, "Disable telemetry output")
	asJSON := flag.Bool("json", false, "Print the full response as JSON")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("praxis %s\n", version)
		return
	}

	path := *configPath
	if *profile != "" {
		profilePath := fmt.Sprintf("./config/config.%s.yaml", *profile)
		if _, err := os.Stat(profilePath); err == nil {
			path = profilePath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if !*noTelemetry {
		shutdown, err := telemetry.InitWithConfig("praxis", version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			fatal(fmt.Errorf("init telemetry: %w", err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry.shutdown.failed", "error", err)
			}
		}()
	}

	eng := &engine{}
	svc, cleanup, err := buildService(ctx, cfg, *tenantID, *skillsDir, *planPath)
	if err != nil {
		fatal(err)
	}
	eng.swap(svc, cleanup)
	defer eng.close()

	// With -watch, a config edit rebuilds the whole tenant service so the
	// next prompt runs with the new model, providers and skills.
	if *watch && path != "" {
		watcher, _, err := config.WatchConfig(ctx, path,
			config.WithWatchInterval(1*time.Second),
		)
		if err != nil {
			slog.Warn("config.watch.failed", "error", err)
		} else {
			watcher.OnChange(func(next *config.Config) {
				rebuilt, nextCleanup, err := buildService(ctx, next, *tenantID, *skillsDir, *planPath)
				if err != nil {
					slog.Error("config.reload.rebuild_failed", "error", err)
					return
				}
				eng.swap(rebuilt, nextCleanup)
				slog.Info("config.reloaded", "path", path, "model", next.LLM.Model)
			})
			defer watcher.Stop()
		}
	}

	if *prompt != "" {
		if err := runOnce(ctx, eng, *tenantID, *conversation, *prompt, *asJSON); err != nil {
			fatal(err)
		}
		return
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fatal(fmt.Errorf("no -prompt given and stdin is not a terminal"))
	}
	runREPL(ctx, eng, *tenantID, *conversation, *asJSON)
}

// buildService assembles the shared components and builds one tenant service.
func buildService(ctx context.Context, cfg *config.Config, tenantID, skillsDir, planPath string) (*tenant.Service, func(), error) {
	registry := tools.NewRegistry()
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	registry.Register(tools.ReadFile(wd))
	registry.Register(tools.CurrentTime())

	dir := skillsDir
	if dir == "" {
		dir = cfg.Skills.Dir
	}
	var catalog []skills.Spec
	if dir != "" {
		catalog, err = skills.LoadDir(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("load skills from %s: %w", dir, err)
		}
		slog.Info("skills.loaded", "dir", dir, "count", len(catalog))
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}

	providers := make([]pool.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, pool.Provider{
			Name:      p.Name,
			Transport: pool.Transport(p.Transport),
			Command:   p.Command,
			Args:      p.Args,
			URL:       p.URL,
		})
	}
	var poolOpts []pool.Option
	if cfg.Pool.PositiveTTL > 0 {
		poolOpts = append(poolOpts, pool.WithPositiveTTL(cfg.Pool.PositiveTTL))
	}
	if cfg.Pool.NegativeTTL > 0 {
		poolOpts = append(poolOpts, pool.WithNegativeTTL(cfg.Pool.NegativeTTL))
	}
	if cfg.Pool.ConnectTimeout > 0 {
		poolOpts = append(poolOpts, pool.WithConnectTimeout(cfg.Pool.ConnectTimeout))
	}
	connections := pool.New(providers, poolOpts...)

	if cfg.LLM.Provider != "ollama" {
		db.Close()
		connections.Close()
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	provider := llm.NewOllama(cfg.LLM.BaseURL)

	metrics, err := telemetry.NewEngineMetrics()
	if err != nil {
		db.Close()
		connections.Close()
		return nil, nil, fmt.Errorf("init metrics: %w", err)
	}

	opts := []tenant.Option{
		tenant.WithPool(connections),
		tenant.WithPermissions(db),
		tenant.WithSkillOverlays(db),
		tenant.WithConversations(db),
		tenant.WithEmitter(metrics),
	}
	if cfg.Executor.MaxReplans > 0 {
		opts = append(opts, tenant.WithMaxReplans(cfg.Executor.MaxReplans))
	}

	var vectorStore memory.VectorStore
	if cfg.Memory.Enabled {
		switch cfg.Memory.Provider {
		case "qdrant":
			qs, err := qdrant.New(cfg.Memory.QdrantAddr)
			if err != nil {
				db.Close()
				connections.Close()
				return nil, nil, fmt.Errorf("connect qdrant at %s: %w", cfg.Memory.QdrantAddr, err)
			}
			vectorStore = qs
		case "inmemory":
			vectorStore = memory.NewInMemoryStore()
		default:
			db.Close()
			connections.Close()
			return nil, nil, fmt.Errorf("unknown memory provider %q", cfg.Memory.Provider)
		}
		embedder := ollamamem.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
		opts = append(opts, tenant.WithMemory(vectorStore, embedder))
	}

	if planPath != "" {
		plan, err := planner.LoadFile(planPath)
		if err != nil {
			db.Close()
			connections.Close()
			return nil, nil, fmt.Errorf("load plan %s: %w", planPath, err)
		}
		opts = append(opts, tenant.WithPlanner(planner.Fixed(plan)))
	}

	builder := tenant.NewBuilder(registry, skills.NewRegistry(catalog...), provider, cfg.LLM.Model, opts...)
	svc, err := builder.Build(ctx, tenantID)
	if err != nil {
		db.Close()
		connections.Close()
		return nil, nil, fmt.Errorf("build tenant service: %w", err)
	}

	cleanup := func() {
		connections.Close()
		if err := db.Close(); err != nil {
			slog.Warn("store.close.failed", "error", err)
		}
	}
	return svc, cleanup, nil
}

func runOnce(ctx context.Context, eng *engine, tenantID, conversationID, prompt string, asJSON bool) error {
	resp, err := eng.current().Run(ctx, core.AgentRequest{
		Tenant:         tenantID,
		Prompt:         prompt,
		ConversationID: conversationID,
	})
	if err != nil {
		return err
	}
	printResponse(resp, asJSON)
	return nil
}

func runREPL(ctx context.Context, eng *engine, tenantID, conversationID string, asJSON bool) {
	fmt.Printf("praxis %s — tenant %s (ctrl-d to quit)\n", version, tenantID)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		resp, err := eng.current().Run(ctx, core.AgentRequest{
			Tenant:         tenantID,
			Prompt:         line,
			ConversationID: conversationID,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		// Keep the thread across turns.
		conversationID = resp.ConversationID
		printResponse(resp, asJSON)
	}
}

func printResponse(resp *core.AgentResponse, asJSON bool) {
	if asJSON {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		fmt.Println(string(out))
		return
	}
	fmt.Println(resp.Text)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "praxis: %v\n", err)
	os.Exit(1)
}
