package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/conversation"
	"github.com/alfredjeanlab/tutorsheets/internal/server"
	tutorsync "github.com/alfredjeanlab/tutorsheets/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the conversation API, health checks, metrics and backups",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		logger := a.logger

		engine := a.newEngine()
		engine.StartReaper(&conversation.ReaperConfig{IdleTimeout: a.cfg.SessionIdle})
		defer engine.Stop()

		if a.cfg.SyncEnabled() {
			scheduler, err := a.newScheduler(ctx)
			if err != nil {
				return err
			}
			if scheduler != nil {
				scheduler.Start()
				defer scheduler.Stop()
				logger.Info("sync scheduler started", "interval", a.cfg.SyncInterval)
			}
		}

		handler := server.NewHTTPHandler(server.HTTPOptions{
			Logger:    logger,
			Gatherer:  a.promReg,
			Engine:    engine,
			Ready:     func(context.Context) error { _, err := a.registry.List(); return err },
			AuthToken: a.cfg.AuthToken,
		})
		srv := server.New(logger, a.cfg.AuthToken, handler)

		grpcLis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return err
		}
		httpLis, err := net.Listen("tcp", a.cfg.HTTPAddr)
		if err != nil {
			grpcLis.Close()
			return err
		}

		logger.Info("tutorsheets server started",
			"backend", a.cfg.Backend,
			"grpc_addr", grpcLis.Addr().String(),
			"http_addr", httpLis.Addr().String(),
			"auth", a.cfg.AuthToken != "",
		)
		if err := srv.Serve(ctx, grpcLis, httpLis); err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	Short:   "Export the tutor registry to the configured backup destinations now",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd)
		if err != nil {
			return err
		}
		scheduler, err := a.newScheduler(cmd.Context())
		if err != nil {
			return err
		}
		if scheduler == nil {
			return fmt.Errorf("no backup destination configured: set TUTOR_SYNC_FILE, TUTOR_SYNC_S3_BUCKET or TUTOR_SYNC_GIT_REPO")
		}
		if err := scheduler.RunOnce(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Backup complete")
		return nil
	},
}

// newScheduler returns a scheduler for the configured destinations, or nil
// when none are configured.
func (a *app) newScheduler(ctx context.Context) (*tutorsync.Scheduler, error) {
	var dests []tutorsync.Destination
	cfg := a.cfg

	if cfg.SyncFile != "" {
		dests = append(dests, tutorsync.NewFileDestination(cfg.SyncFile))
		a.logger.Info("sync file destination enabled", "path", cfg.SyncFile)
	}
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := tutorsync.NewS3Destination(ctx, tutorsync.S3Config{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("S3 sync destination: %w", err)
		}
		dests = append(dests, s3Dest)
		a.logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, tutorsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		a.logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	if len(dests) == 0 {
		return nil, nil
	}
	return tutorsync.NewScheduler(a.registry, dests, cfg.SyncInterval, a.logger,
		tutorsync.WithMetrics(a.metrics)), nil
}
