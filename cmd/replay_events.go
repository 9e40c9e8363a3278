package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/assist-service/internal/application"
	"github.com/psds-microservice/assist-service/internal/kafka"
	"github.com/psds-microservice/assist-service/internal/store"
	"github.com/spf13/cobra"
)

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "Publish the current state of every ticket to Kafka so consumers can rebuild their views",
	RunE:  runReplayEvents,
}

func init() {
	rootCmd.AddCommand(replayEventsCmd)
}

func runReplayEvents(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicTicket, log)
	defer producer.Close()
	if !producer.Enabled() {
		return errors.New("replay-events: KAFKA_BROKERS and KAFKA_TOPIC_TICKET must be set")
	}
	st, err := application.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	tickets, err := st.ListTickets(ctx, store.TicketFilter{})
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Info("replay-events: found tickets", "count", len(tickets))
	for i := range tickets {
		t := &tickets[i]
		producer.ProduceTicketEvent(ctx, kafka.TicketEvent{
			Event:      kafka.EventTicketSnapshot,
			TicketID:   t.ID,
			Status:     string(t.Status),
			AssignedTo: t.Assignee(),
			Hub:        t.Hub,
			Urgency:    string(t.Urgency),
			At:         t.UpdatedAt.UTC(),
		})
		if (i+1)%50 == 0 || i == len(tickets)-1 {
			log.Info("replay-events: progress", "sent", i+1, "total", len(tickets))
		}
	}
	log.Info("replay-events: done", "sent", len(tickets))
	return nil
}
