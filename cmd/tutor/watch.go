package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tutorsheets/internal/config"
	"github.com/alfredjeanlab/tutorsheets/internal/events"
	"github.com/alfredjeanlab/tutorsheets/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream tutor events from NATS",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return errors.New("TUTOR_NATS_URL is not set")
		}
		logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats: disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		return watchEvents(cmd.Context(), sub, topic, cmd.OutOrStdout(), logger)
	},
}

// watchEvents prints every message on topic until ctx is done or the
// subscription closes.
func watchEvents(ctx context.Context, sub events.Subscriber, topic string, w io.Writer, logger *slog.Logger) error {
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return err
	}
	defer cancel()
	logger.Debug("watching", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printEvent(w, msg, time.Now())
		}
	}
}

func printEvent(w io.Writer, msg events.Message, at time.Time) {
	if jsonOutput {
		if !json.Valid(msg.Data) {
			data, _ := json.Marshal(string(msg.Data))
			msg.Data = data
		}
		fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", msg.Topic, msg.Data)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderMuted(at.Format("15:04:05")), ui.RenderAccent(msg.Topic), msg.Data)
}

func init() {
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
}
