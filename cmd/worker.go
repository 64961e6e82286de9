/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/messagely/apiserver/config"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// workerCmd consumes account events from the configured broker.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume account events and log them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer broker.Close()

		log.WithFields(logrus.Fields{
			"backend": cfg.MQ.Backend,
			"channel": cfg.MQ.EventsChannel,
		}).Info("consuming account events")

		err = mq.SubscribeAccountEvents(ctx, broker, cfg.MQ.EventsChannel, logAccountEvent(log), func(msg mq.Message, err error) {
			log.WithField("message_id", msg.ID).WithError(err).Warn("dropping invalid account event")
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func logAccountEvent(log logrus.FieldLogger) func(context.Context, types.AccountEvent) error {
	return func(ctx context.Context, event types.AccountEvent) error {
		log.WithFields(logrus.Fields{
			"event":       event.Type,
			"username":    event.Username,
			"occurred_at": event.OccurredAt,
		}).Info("account event")
		return nil
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
