package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Ticket event names.
const (
	EventTicketCreated       = "ticket.created"
	EventTicketStatusChanged = "ticket.status_changed"
	EventTicketDeleted       = "ticket.deleted"
	EventTicketPurged        = "ticket.purged"
	// EventTicketSnapshot carries the current state of a ticket during a replay.
	EventTicketSnapshot = "ticket.snapshot"
)

// TicketEvent is the message body written to the ticket topic.
type TicketEvent struct {
	Event      string    `json:"event"`
	TicketID   string    `json:"ticket_id"`
	Status     string    `json:"status,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Hub        string    `json:"hub,omitempty"`
	Urgency    string    `json:"urgency,omitempty"`
	At         time.Time `json:"at"`
}

// TicketEventProducer — интерфейс для отправки событий тикета в Kafka (для подмены в тестах).
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, ev TicketEvent)
}

// Producer пишет события тикетов в топик Kafka (best-effort, не блокирует API).
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *slog.Logger
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой — методы no-op.
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "kafka")
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTicketEvent отправляет событие в топик. Ключ сообщения — ticket_id, поэтому
// события одного тикета попадают в одну партицию.
func (p *Producer) ProduceTicketEvent(ctx context.Context, ev TicketEvent) {
	if p.writer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal ticket event", "error", err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.TicketID), Value: body}); err != nil {
		p.log.Warn("write ticket event", "event", ev.Event, "ticket_id", ev.TicketID, "error", err)
	}
}

// Close закрывает writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
