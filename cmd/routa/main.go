// Package main wires the core engine packages into a runnable CLI: load
// config/presets, construct stores/bus/providers/coordinator, run one
// orchestration pass for a user request, and print the terminal result.
// This shell is deliberately thin: every decision of substance (planning,
// task registration, crafter execution, gate verification) lives in the
// core packages under internal/.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/routa-dev/routa/internal/agenttools"
	"github.com/routa-dev/routa/internal/common/logger"
	"github.com/routa-dev/routa/internal/coordinator"
	"github.com/routa-dev/routa/internal/eventbus"
	"github.com/routa-dev/routa/internal/mcpserver"
	"github.com/routa-dev/routa/internal/orchestrator"
	"github.com/routa-dev/routa/internal/pipeline"
	"github.com/routa-dev/routa/internal/provider"
	"github.com/routa-dev/routa/internal/provider/llm"
	"github.com/routa-dev/routa/internal/provider/resilient"
	"github.com/routa-dev/routa/internal/provider/router"
	"github.com/routa-dev/routa/internal/store"
)

func main() {
	requestFlag := flag.String("request", "", "natural-language request to plan and execute")
	workspaceFlag := flag.String("workspace", "default", "workspace id this run operates under")
	configPath := flag.String("config", "", "directory containing config.yaml")
	flag.Parse()
	os.Exit(run(*requestFlag, *workspaceFlag, *configPath))
}

func run(userRequest, workspaceID, configPath string) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "routa: load config:", err)
		return 1
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "routa: init logger:", err)
		return 1
	}
	logger.SetDefault(log)
	defer log.Sync()

	if userRequest == "" {
		log.Error("missing -request")
		return 1
	}

	agents := store.NewMemoryAgentStore()
	tasks := store.NewMemoryTaskStore()
	convos := store.NewMemoryConversationStore()
	bus := eventbus.New(256)

	rtr := router.New()
	spawner := &storeSpawner{agents: agents}

	// The Agent Tools surface takes no provider at all, since tools never
	// invoke the model directly; they only read/write stores, the bus, and
	// the filesystem.
	tools := agenttools.New(agents, tasks, convos, bus, spawner, cfg.Engine.WorkspaceRoot)

	registerProviders(rtr, cfg, tools, convos, log)

	coord := coordinator.New(agents, tasks, convos, rtr, bus)
	orch := orchestrator.New(coord, cfg.Engine.MaxWaves)

	var rel *relay
	if cfg.Relay.Enabled {
		rel = newRelay(log)
		if err := rel.start(cfg.Relay.Port); err != nil {
			log.Error("relay failed to start", zap.Error(err))
		}
		defer rel.stop(context.Background())
	}

	var mcp *mcpserver.Server
	defer func() {
		if mcp != nil {
			mcp.Stop(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	routaAgent, err := coord.Initialize(ctx, workspaceID)
	if err != nil {
		log.Error("coordinator initialize failed", zap.Error(err))
		return 1
	}

	if cfg.MCP.Enabled {
		mcp = mcpserver.New(mcpserver.Config{Port: cfg.MCP.Port}, routaAgent.ID, tools, log)
		if err := mcp.Start(ctx); err != nil {
			log.Error("mcp server failed to start", zap.Error(err))
		}
	}

	pc := pipeline.NewContext(workspaceID, userRequest)
	pc.Agents = agents
	pc.Tasks = tasks
	pc.Conversations = convos
	pc.Router = rtr
	pc.Tools = tools
	pc.Coordinator = coord
	pc.Bus = bus
	pc.Log = log
	pc.RoutaAgentID = routaAgent.ID
	pc.ParallelCrafters = cfg.Engine.ParallelCrafters
	pc.MaxParallelism = cfg.Engine.MaxParallelism

	if rel != nil {
		pc.OnPhaseChange = rel.onPhaseChange
		pc.OnStreamChunk = rel.onStreamChunk
	}

	go func() {
		<-sigCh
		log.Warn("received interrupt signal, cancelling run")
		pc.Cancellation.Cancel()
		cancelRun(rtr, pc)
		cancel()
	}()

	result := orch.Execute(ctx, pc)
	return report(log, result)
}

// cancelRun best-effort interrupts and releases every agent this run
// created: in-flight provider calls are interrupted, then per-agent
// provider state is released.
func cancelRun(p provider.Provider, pc *pipeline.Context) {
	p.Interrupt(pc.RoutaAgentID)
	p.Cleanup(pc.RoutaAgentID)
	for _, agentID := range pc.Delegations {
		p.Interrupt(agentID)
		p.Cleanup(agentID)
	}
	if pc.GateAgentID != "" {
		p.Interrupt(pc.GateAgentID)
		p.Cleanup(pc.GateAgentID)
	}
}

// registerProviders builds and registers every configured provider with the
// router: the direct Anthropic LLM provider (if an API key is present) and
// one ACP subprocess-backed provider per preset entry, each wrapped in the
// resilient retry/circuit-breaker layer so every role sees the same
// failure handling regardless of which concrete backend serves it.
func registerProviders(rtr *router.Router, cfg *Config, tools *agenttools.Toolset, convos store.ConversationStore, log *logger.Logger) {
	if cfg.Anthropic.APIKey != "" {
		p := llm.NewFromAPIKey(cfg.Anthropic.APIKey, llm.Options{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		}, tools, log)
		rtr.Register(resilient.New(p, convos, log.WithFields(zap.String("provider", "anthropic-llm"))))
	}

	presets, err := loadPresets(cfg.PresetFile)
	if err != nil {
		log.Warn("loading provider presets", zap.Error(err))
		presets = nil
	}
	for _, pp := range presets {
		p := buildACPProvider(pp, log.WithFields(zap.String("provider", pp.Name)))
		rtr.Register(resilient.New(p, convos, log.WithFields(zap.String("provider", pp.Name))))
	}
}

// report renders the orchestrator's terminal result and maps it to a
// process exit code.
func report(log *logger.Logger, res orchestrator.Result) int {
	switch res.Kind {
	case orchestrator.OutcomeSuccess:
		log.Info("orchestration succeeded", zap.Int("waves", res.WaveCount), zap.Int("tasks", len(res.TaskIDs)))
		return 0
	case orchestrator.OutcomeNoTasks:
		log.Info("orchestration produced no tasks", zap.String("message", res.Message))
		return 0
	case orchestrator.OutcomeMaxWavesReached:
		log.Warn("orchestration exhausted its wave budget", zap.Int("waves", res.WaveCount))
		return 2
	default:
		log.Error("orchestration failed", zap.Error(res.Err))
		return 1
	}
}
