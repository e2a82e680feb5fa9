package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/config"
	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
	"github.com/alfredjeanlab/tutorsheets/internal/events"
	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
	"github.com/alfredjeanlab/tutorsheets/internal/model"
	"github.com/alfredjeanlab/tutorsheets/internal/registry"
	"github.com/alfredjeanlab/tutorsheets/internal/repository"
	"github.com/alfredjeanlab/tutorsheets/internal/service"
	"github.com/alfredjeanlab/tutorsheets/internal/store"
	"github.com/alfredjeanlab/tutorsheets/internal/store/memory"
	"github.com/alfredjeanlab/tutorsheets/internal/store/postgres"
	"github.com/alfredjeanlab/tutorsheets/internal/store/sheets"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	promReg   *prometheus.Registry
	metrics   *metrics.Metrics
	registry  *registry.Registry
	raw       store.Store // the backend before instrumentation
	store     store.Store
	publisher events.Publisher
	svc       *service.Service
}

// getApp loads configuration and wires the application once per process.
func getApp(cmd *cobra.Command) (*app, error) {
	if application != nil {
		return application, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	a, err := newApp(cmd.Context(), cfg, config.NewLogger(os.Stderr, cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	application = a
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, promReg: prometheus.NewRegistry()}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.promReg)

	reg, err := registry.Open(cfg.RegistryPath, registry.WithObserver(a.metrics.RegistryObserver()))
	if err != nil {
		return nil, err
	}
	a.registry = reg

	raw, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.raw = raw
	a.store = store.Instrument(raw, cfg.Backend, a.metrics)

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		a.publisher = pub
		logger.Debug("events enabled", "nats_url", cfg.NATSURL)
	} else {
		a.publisher = &events.NoopPublisher{}
	}

	repo := repository.New(a.store, repository.WithLogger(logger), repository.WithMetrics(a.metrics))
	a.svc = service.New(reg, repo,
		service.WithPublisher(a.publisher),
		service.WithLogger(logger),
		service.WithMetrics(a.metrics))
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return sheets.New(ctx, cfg.CredentialsPath)
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("TUTOR_DATABASE_URL is required for the postgres backend")
		}
		return postgres.New(cfg.DatabaseURL)
	case config.BackendMemory:
		m := memory.New()
		m.AutoCreate = true
		return m, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("closing publisher", "err", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", "err", err)
	}
}

// identity returns the --as identity or an error telling how to set one.
func identity() (string, error) {
	if asIdentity == "" {
		return "", errors.New("no identity: pass --as <id> or run 'tutor identity add'")
	}
	return asIdentity, nil
}

// workspace resolves the workspace a command works on: --workspace, then the
// registered workspace of the identity, then the active profile's workspace.
func (a *app) workspace() (string, error) {
	if workspaceFlag != "" {
		ref, ok := model.NormalizeWorkspaceRef(workspaceFlag)
		if !ok {
			return "", fmt.Errorf("--workspace %q is not a workspace link or ref", workspaceFlag)
		}
		return ref, nil
	}
	if asIdentity != "" {
		ws, err := a.svc.WorkspaceFor(asIdentity)
		if err == nil {
			return ws, nil
		}
		if !errors.Is(err, service.ErrNotRegistered) {
			return "", err
		}
	}
	if ws := loadActiveProfile().Workspace; ws != "" {
		return ws, nil
	}
	return "", errors.New("no workspace: register first, or pass --workspace")
}

// newEngine builds the conversation engine over the service. Finished flows
// are published as tutors.flow.finished.
func (a *app) newEngine() *conversation.Engine {
	return conversation.New(conversation.DefaultFlows(a.svc),
		conversation.WithLogger(a.logger),
		conversation.WithMetrics(a.metrics),
		conversation.WithFinishHook(func(ctx context.Context, identity, flow string, outcome conversation.Outcome) {
			a.svc.Publish(ctx, events.TopicFlowFinished, events.FlowFinished{
				Identity: identity,
				Flow:     flow,
				Outcome:  string(outcome),
			})
		}))
}
