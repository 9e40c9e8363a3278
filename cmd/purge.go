package cmd

import (
	"context"

	"github.com/psds-microservice/assist-service/internal/application"
	"github.com/psds-microservice/assist-service/internal/kafka"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge-excluded",
	Short: "Permanently delete every ticket in EXCLUIDO, in one transaction",
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	st, err := application.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicTicket, log)
	defer producer.Close()

	svc := service.NewTicketService(service.TicketDeps{Tickets: st, Drivers: st, Events: producer, Log: log})
	ids, err := svc.PurgeExcluded(context.Background(), service.Actor{ID: "cli", Role: model.RoleAdmin})
	svc.Close()
	if err != nil {
		return err
	}
	log.Info("purge-excluded: done", "deleted", len(ids))
	return nil
}
