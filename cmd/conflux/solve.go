package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dusk-indust/conflux/internal/approval"
	"github.com/dusk-indust/conflux/internal/bridge"
	"github.com/dusk-indust/conflux/internal/budget"
	"github.com/dusk-indust/conflux/internal/config"
	"github.com/dusk-indust/conflux/internal/gitx"
	"github.com/dusk-indust/conflux/internal/lang"
	"github.com/dusk-indust/conflux/internal/logx"
	"github.com/dusk-indust/conflux/internal/mcptools"
	"github.com/dusk-indust/conflux/internal/orchestrator"
	"github.com/dusk-indust/conflux/internal/plan"
	"github.com/dusk-indust/conflux/internal/session"
)

// solveOnce wires the full engine and runs one resolution pass.
func solveOnce(ctx context.Context, flags cliFlags, cfg *config.ProjectConfig, log *logx.Logger) error {
	report, err := solve(ctx, flags, cfg, log, flags.Workdir, cfg.Model, !flags.Quiet)
	if err != nil {
		return err
	}

	switch report.State {
	case orchestrator.StateClean:
		if report.Conflicts == 0 {
			fmt.Println("working tree is clean, nothing to resolve")
		} else {
			fmt.Printf("resolved %d conflict(s), all files staged\n", len(report.Resolved))
		}
		return nil
	default:
		for path, reason := range report.Failures {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", path, reason)
		}
		return fmt.Errorf("resolution aborted, merge rolled back")
	}
}

// solve builds and runs one solver instance.
func solve(ctx context.Context, flags cliFlags, cfg *config.ProjectConfig, log *logx.Logger, workdir, model string, showProgress bool) (*orchestrator.Report, error) {
	inspector := gitx.NewInspector(workdir, log.With("inspector"))
	if err := checkExcluded(ctx, inspector, cfg.ExcludePaths); err != nil {
		return nil, err
	}
	monitor := budget.NewMonitor(log.With("budget"))

	// The bridge comes up first; worker subprocesses need its discovery
	// artifacts in their environment. Connections can arrive before the
	// gate exists, so the handler loads it atomically.
	var gate atomic.Pointer[approval.Gate]
	br := bridge.New(approvalHandler(cfg, &gate), log.With("bridge"))
	info, err := br.Start(ctx, workdir)
	if err != nil {
		return nil, err
	}
	defer br.Stop()

	env := append(info.Env, "CONFLUX_SANDBOX="+string(cfg.Sandbox))
	runtime := session.NewExecRuntime(flags.Reasoner, nil, env, log.With("sessions"))
	manager := session.NewManager(runtime, monitor, log.With("sessions"))

	coordSess, err := manager.Start(ctx, session.Options{
		Label:        "coordinator",
		Model:        model,
		Instructions: plan.CoordinatorInstructions,
	})
	if err != nil {
		return nil, err
	}
	defer coordSess.Close()

	g := approval.NewGate(manager, coordSess, model, log.With("supervisor"))
	g.Start(ctx)
	gate.Store(g)

	solver := orchestrator.NewSolver(orchestrator.Options{
		Inspector:      inspector,
		Planner:        plan.NewCoordinator(coordSess, monitor, log.With("coordinator")),
		Resolver:       orchestrator.NewSessionResolver(manager, monitor, model, log.With("resolver")),
		Checker:        lang.NewChecker(),
		Gate:           g,
		Log:            log.With("solver"),
		Workdir:        workdir,
		MaxConcurrency: cfg.MaxConcurrency,
		VerifyCommand:  cfg.VerifyCommand,
	})

	// Interrupt lands here via context cancellation; the cleanup path aborts
	// any in-progress merge exactly once.
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		<-ctx.Done()
		solver.Cleanup(context.Background())
	}()

	if showProgress {
		go func() {
			for event := range solver.Progress() {
				fmt.Println(orchestrator.FormatProgress(event))
			}
		}()
	}

	report, err := solver.Run(ctx)
	return report, err
}

// approvalHandler routes bridge requests through the sandbox policy and the
// approval gate. A request arriving before the gate is stored denies.
func approvalHandler(cfg *config.ProjectConfig, gate *atomic.Pointer[approval.Gate]) bridge.Handler {
	return func(ctx context.Context, p bridge.Payload) (any, error) {
		if p.Action == approval.ActionFileWrite && cfg.Sandbox.AllowsWrites() {
			return approval.Response{Approved: true, Reason: "workspace writes permitted by sandbox mode"}, nil
		}
		if cfg.Sandbox == config.SandboxFull {
			return approval.Response{Approved: true, Reason: "full sandbox mode, nothing gated"}, nil
		}
		g := gate.Load()
		if g == nil {
			return approval.Response{Reason: "approval gate not ready"}, nil
		}
		return g.HandleApproval(ctx, approval.Request{
			Action:  p.Action,
			Details: p.Details,
			Context: p.Context,
		}), nil
	}
}

// checkExcluded refuses to run when a conflicting file matches an exclude
// pattern. Excluded files are reserved for manual resolution, and a partial
// automated run would leave the merge half-finished.
func checkExcluded(ctx context.Context, in *gitx.Inspector, patterns []string) error {
	if len(patterns) == 0 {
		return nil
	}
	paths, err := in.UnmergedPaths(ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		for _, pattern := range patterns {
			matched, err := filepath.Match(pattern, path)
			if err != nil {
				return fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
			}
			if matched {
				return fmt.Errorf("conflict in %s matches exclude pattern %q, resolve it manually first", path, pattern)
			}
		}
	}
	return nil
}

// serveMCP exposes the engine as MCP tools over HTTP.
func serveMCP(ctx context.Context, flags cliFlags, cfg *config.ProjectConfig, log *logx.Logger) error {
	svc := mcptools.NewMergeService(
		flags.Workdir,
		func(dir string) orchestrator.Inspector {
			return gitx.NewInspector(dir, log.With("inspector"))
		},
		func(ctx context.Context, dir, model string) (*orchestrator.Report, error) {
			if model == "" {
				model = cfg.Model
			}
			return solve(ctx, flags, cfg, log, dir, model, false)
		},
	)
	log.With("mcp").Infof("serving merge tools on %s", flags.MCPAddr)
	return mcptools.RunMCPServer(ctx, svc, flags.MCPAddr)
}
