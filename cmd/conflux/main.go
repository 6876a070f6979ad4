package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusk-indust/conflux/internal/config"
	"github.com/dusk-indust/conflux/internal/logx"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Workdir  string
	Model    string
	Reasoner string
	Status   bool
	ServeMCP bool
	MCPAddr  string
	Quiet    bool
	Verbose  bool
	Version  bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("conflux", flag.ContinueOnError)
	fs.StringVar(&flags.Workdir, "workdir", ".", "repository to operate on")
	fs.StringVar(&flags.Model, "model", "", "model identifier for reasoning sessions")
	fs.StringVar(&flags.Reasoner, "reasoner", "conflux-reason", "reasoning backend command")
	fs.BoolVar(&flags.Status, "status", false, "print merge status and exit")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server instead of solving once")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", "localhost:8737", "listen address for -serve-mcp")
	fs.BoolVar(&flags.Quiet, "quiet", false, "suppress progress output")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.Workdir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Normalize()
	if flags.Model != "" {
		cfg.Model = flags.Model
	}
	if flags.Verbose {
		cfg.Verbose = true
	}

	level := logx.LevelInfo
	switch {
	case flags.Quiet:
		level = logx.LevelWarn
	case cfg.Verbose:
		level = logx.LevelDebug
	}
	log := logx.New(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.Status:
		return printStatus(ctx, flags.Workdir, log)
	case flags.ServeMCP:
		return serveMCP(ctx, flags, cfg, log)
	default:
		return solveOnce(ctx, flags, cfg, log)
	}
}
