package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cloudbench/pkg/artifact"
	"cloudbench/pkg/bus"
	"cloudbench/pkg/db"
	"cloudbench/pkg/render"
	"cloudbench/services/history"
	"cloudbench/services/infra"
	"cloudbench/services/orchestrator"
	"cloudbench/services/orchestrator/internal/secrets"
	"cloudbench/services/workload"
)

const runStream = "CLOUDBENCH_RUNS"

func newRunCommand(a *app) *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision, run the workload, tear down and write the timing report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reportPath == "" {
				reportPath = a.cfg.ReportPath
			}
			return a.run(cmd.Context(), reportPath)
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "Markdown report output path (default CLOUDBENCH_REPORT_PATH)")
	return cmd
}

func (a *app) run(ctx context.Context, reportPath string) error {
	plan, err := a.plan()
	if err != nil {
		return err
	}

	creds, err := secrets.Resolve(secrets.Source{
		Env:          secrets.Environ(),
		File:         a.cfg.SecretsFile,
		IdentityFile: a.cfg.AgeIdentityFile,
	})
	if err != nil {
		return err
	}

	controller, err := infra.NewController(infra.TerraformRunners(a.cfg.TerraformPath, a.logger), creds, a.logger)
	if err != nil {
		return err
	}

	actions := &orchestrator.Actions{
		Provisioner:   controller,
		Pusher:        workload.NewPusher(nil),
		Probers:       newProberFactory(creds),
		NotifySubject: a.cfg.NotifySubject,
		Logger:        a.logger,
	}
	if a.cfg.NATSURL != "" {
		b, err := bus.New(a.cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		if subjects := plan.NotifySubjects(a.cfg.NotifySubject); len(subjects) > 0 {
			if err := b.EnsureStream(runStream, subjects...); err != nil {
				return err
			}
		}
		actions.Notifier = b
	}

	seq, err := orchestrator.NewSequencer(actions.Registry(), a.logger)
	if err != nil {
		return err
	}

	initial := orchestrator.Outputs{}
	initial.Set(orchestrator.KeyBlobName, a.cfg.BlobNameFor(time.Now()))

	report, runErr := seq.Run(ctx, plan, initial)
	if report == nil {
		return runErr
	}

	// The report is written even for failed runs; post-run errors never mask runErr.
	postErr := a.publish(ctx, report, reportPath)
	if runErr != nil {
		if postErr != nil {
			a.logger.Error().Err(postErr).Msg("publish report")
		}
		return &runFailedError{err: runErr}
	}
	return postErr
}

// publish writes the Markdown report and hands the run to every configured sink.
func (a *app) publish(ctx context.Context, report *orchestrator.BenchmarkReport, reportPath string) error {
	engine, err := render.New()
	if err != nil {
		return err
	}
	md, err := report.Markdown(engine)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	a.logger.Info().
		Str("run_id", report.RunID).
		Str("outcome", report.Outcome()).
		Str("path", reportPath).
		Msg("report written")

	// Sinks run on a fresh context so an interrupted run still records its report.
	sinkCtx := context.WithoutCancel(ctx)
	var errs []error

	if a.cfg.ReportUpload {
		if err := a.uploadReport(sinkCtx, report.RunID, md); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cfg.DatabaseURL != "" {
		if err := a.saveHistory(sinkCtx, report, md); err != nil {
			errs = append(errs, err)
		}
	}
	if a.cfg.PushgatewayURL != "" {
		metrics := orchestrator.NewRunMetrics()
		metrics.Observe(report)
		if err := metrics.Push(sinkCtx, a.cfg.PushgatewayURL, a.cfg.PushgatewayJob, report); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) uploadReport(ctx context.Context, runID, md string) error {
	store, err := artifact.Open(ctx, a.cfg.ArtifactSettings())
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	name := runID + ".md"
	if err := artifact.Upload(ctx, store, a.cfg.ReportContainer, name, []byte(md)); err != nil {
		return err
	}
	a.logger.Info().Str("container", a.cfg.ReportContainer).Str("blob", name).Msg("report uploaded")
	return nil
}

func (a *app) saveHistory(ctx context.Context, report *orchestrator.BenchmarkReport, md string) error {
	store, closeStore, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.Save(ctx, report, md); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// openHistory connects, migrates and returns the run history store.
func (a *app) openHistory(ctx context.Context) (*history.Store, func(), error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	orm, err := db.ORM(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	store, err := history.NewStore(pool, orm)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func newProberFactory(creds infra.Credentials) orchestrator.ProberFactory {
	return func(ctx context.Context, kind string, rc orchestrator.RunContext) (workload.Prober, error) {
		switch kind {
		case "blob":
			conn := rc.String(orchestrator.KeyStorageConnectionString)
			if conn == "" {
				return nil, fmt.Errorf("%s missing from run context", orchestrator.KeyStorageConnectionString)
			}
			store, err := artifact.NewAzureStore(conn)
			if err != nil {
				return nil, err
			}
			return workload.NewBlobProber(store, rc.String(orchestrator.KeyBlobContainer))
		case "aci":
			return workload.NewContainerGroupProber(workload.AzureCredentials{
				ClientID:       creds.ClientID,
				ClientSecret:   creds.ClientSecret,
				TenantID:       creds.TenantID,
				SubscriptionID: creds.SubscriptionID,
			}, rc.String(orchestrator.KeyResourceGroup))
		default:
			return nil, fmt.Errorf("unknown prober %q", kind)
		}
	}
}
