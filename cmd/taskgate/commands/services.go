package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MEKXH/taskgate/internal/agent"
	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/metrics"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/MEKXH/taskgate/internal/provider"
	"github.com/MEKXH/taskgate/internal/tools"
)

// services is everything a command needs to dispatch actions.
type services struct {
	cfg        *config.Config
	gate       *policy.Gate
	metrics    *metrics.RuntimeMetrics
	dispatcher *dispatch.Dispatcher
}

func buildServices(cfg *config.Config) (*services, error) {
	gate, err := policy.NewGate(cfg.Sandbox.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid sandbox: %w", err)
	}

	reg := dispatch.NewRegistry()
	if err := tools.RegisterDefaults(reg, tools.DepsFromConfig(cfg)); err != nil {
		return nil, err
	}
	reg.Freeze()

	m := metrics.NewRuntimeMetrics()
	d := dispatch.NewDispatcher(reg, gate,
		dispatch.WithTimeout(time.Duration(cfg.Actions.TimeoutSeconds)*time.Second),
		dispatch.WithMetrics(m),
	)
	return &services{cfg: cfg, gate: gate, metrics: m, dispatcher: d}, nil
}

// newAgent returns nil when no provider is configured.
func (rt *services) newAgent(ctx context.Context) (*agent.Loop, error) {
	if !provider.Configured(rt.cfg) {
		return nil, nil
	}
	chatModel, err := provider.NewChatModel(ctx, rt.cfg)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	loop, err := agent.NewLoop(ctx, chatModel, rt.dispatcher, agent.Options{
		MaxIterations: rt.cfg.Agent.MaxToolIterations,
		SandboxRoot:   rt.gate.Root(),
	})
	if err != nil {
		return nil, err
	}
	loop.OnToolStart = func(name, args string) {
		slog.Debug("agent tool call", "action", name, "args", args)
	}
	return loop, nil
}
