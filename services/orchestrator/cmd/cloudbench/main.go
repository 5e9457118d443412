package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cloudbench/pkg/telemetry"
	"cloudbench/services/orchestrator"
	"cloudbench/services/orchestrator/internal/config"
)

const serviceName = "cloudbench"

// Exit codes.
const (
	exitOK        = 0
	exitRunFailed = 1
	exitError     = 2
)

// runFailedError marks a run that completed with a failed stage.
type runFailedError struct {
	err error
}

func (e *runFailedError) Error() string { return e.err.Error() }
func (e *runFailedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout}
	defer a.teardown()

	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var failed *runFailedError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &failed):
		return exitRunFailed
	default:
		return exitError
	}
}

// app carries the state shared by every subcommand once configuration is loaded.
type app struct {
	stdout   io.Writer
	planFile string

	cfg               config.Config
	logger            zerolog.Logger
	shutdownTelemetry func(context.Context) error
}

func (a *app) setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Init(cmd.Context(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.shutdownTelemetry = shutdown
	if a.planFile == "" {
		a.planFile = cfg.PlanFile
	}
	return nil
}

func (a *app) teardown() {
	if a.shutdownTelemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.logger.Error().Err(err).Msg("telemetry shutdown")
	}
}

func (a *app) plan() (*orchestrator.Plan, error) {
	if a.planFile != "" {
		return orchestrator.LoadPlan(a.planFile)
	}
	return orchestrator.DefaultPlan(a.cfg.TerraformDir), nil
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cloudbench",
		Short:         "Benchmark cloud provisioning, workload and teardown times",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.planFile, "plan", "", "Stage plan YAML file (default: built-in plan)")

	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newPlanCommand(a))
	cmd.AddCommand(newHistoryCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newSecretsCommand(a))
	return cmd
}
