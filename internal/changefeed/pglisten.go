package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Channel is the Postgres NOTIFY channel fed by the change triggers.
const Channel = "assist_changes"

// Notifier is anything that can be told its collection changed.
type Notifier interface {
	Name() string
	Notify()
}

// Router maps collection names to hubs.
type Router map[string]Notifier

func NewRouter(hubs ...Notifier) Router {
	r := make(Router, len(hubs))
	for _, h := range hubs {
		r[h.Name()] = h
	}
	return r
}

// Dispatch notifies the hub for collection. Unknown names are ignored.
func (r Router) Dispatch(collection string) {
	if h, ok := r[collection]; ok {
		h.Notify()
	}
}

func (r Router) All() {
	for _, h := range r {
		h.Notify()
	}
}

// PGListener forwards Postgres notifications on Channel to a Router.
type PGListener struct {
	listener *pq.Listener
	router   Router
	log      *slog.Logger
}

// ListenPostgres opens a dedicated LISTEN connection. dsn accepts both URL
// and key=value forms.
func ListenPostgres(dsn string, router Router, log *slog.Logger) (*PGListener, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "pglisten")
	l := pq.NewListener(dsn, time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.Warn("listener disconnected", "error", err)
		case pq.ListenerEventReconnected:
			log.Info("listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Warn("listener connection attempt failed", "error", err)
		}
	})
	if err := l.Listen(Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	return &PGListener{listener: l, router: router, log: log}, nil
}

// Close releases the LISTEN connection of a listener that never ran.
func (p *PGListener) Close() error {
	return p.listener.Close()
}

// Run dispatches notifications until ctx is done.
func (p *PGListener) Run(ctx context.Context) error {
	defer p.listener.Close()
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-p.listener.Notify:
			if n == nil {
				// reconnected: notifications may have been missed
				p.router.All()
				continue
			}
			p.router.Dispatch(n.Extra)
		case <-ping.C:
			if err := p.listener.Ping(); err != nil {
				p.log.Warn("listener ping failed", "error", err)
			}
		}
	}
}
