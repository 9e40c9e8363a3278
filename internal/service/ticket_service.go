package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/kafka"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/store"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role model.Role
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// TicketServicer — интерфейс жизненного цикла тикета для HTTP-слоя (Dependency Inversion).
type TicketServicer interface {
	Create(ctx context.Context, actor Actor, in CreateTicketInput) (*model.Ticket, error)
	Get(ctx context.Context, id string) (*model.Ticket, error)
	List(ctx context.Context, filter store.TicketFilter) ([]model.Ticket, error)
	Assign(ctx context.Context, actor Actor, id, driverID string) (*model.Ticket, error)
	SubmitForApproval(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Approve(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Reject(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Conclude(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	MoveBack(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Archive(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	SoftDelete(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Cancel(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Restore(ctx context.Context, actor Actor, id string) (*model.Ticket, error)
	Delete(ctx context.Context, actor Actor, id string) error
	PurgeExcluded(ctx context.Context, actor Actor) ([]string, error)
}

type CreateTicketInput struct {
	Requester       *model.Requester
	Location        string
	Hub             string
	VehicleType     string
	RouteID         string
	Urgency         model.Urgency
	PackageCount    *int
	DeliveryRegions []string
	IsBulky         bool
	Prompt          string
}

// TicketDeps — зависимости TicketService.
type TicketDeps struct {
	Tickets  store.TicketStore
	Drivers  store.DriverStore
	Describe Describer
	Events   kafka.TicketEventProducer
	Log      *slog.Logger
	// ExclusiveAssign makes a second Assign on an in-progress ticket fail
	// instead of overwriting the assignee.
	ExclusiveAssign bool
}

// eventBuffer bounds the events queued for the producer before publish blocks.
const eventBuffer = 256

type TicketService struct {
	TicketDeps
	now func() time.Time

	// events are sent by a single goroutine so one ticket's events keep
	// the order of the operations that produced them
	outMu     sync.RWMutex
	outbox    chan kafka.TicketEvent
	outClosed bool
	drainOnce sync.Once
	drained   chan struct{}
}

func NewTicketService(deps TicketDeps) *TicketService {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	deps.Log = deps.Log.With("component", "tickets")
	return &TicketService{
		TicketDeps: deps,
		now:        time.Now,
		outbox:     make(chan kafka.TicketEvent, eventBuffer),
		drained:    make(chan struct{}),
	}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errs.ErrValidation, fmt.Sprintf(format, args...))
}

func (s *TicketService) Create(ctx context.Context, actor Actor, in CreateTicketInput) (*model.Ticket, error) {
	var missing []string
	if in.Requester == nil {
		missing = append(missing, "solicitante")
	}
	if strings.TrimSpace(in.Location) == "" {
		missing = append(missing, "location")
	}
	if strings.TrimSpace(in.Hub) == "" {
		missing = append(missing, "hub")
	}
	if in.Urgency == "" {
		missing = append(missing, "urgency")
	}
	if strings.TrimSpace(in.RouteID) == "" {
		missing = append(missing, "routeId")
	}
	if in.PackageCount == nil {
		missing = append(missing, "packageCount")
	}
	regions := make([]string, 0, len(in.DeliveryRegions))
	for _, r := range in.DeliveryRegions {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	if len(regions) == 0 {
		missing = append(missing, "deliveryRegions")
	}
	if len(missing) > 0 {
		return nil, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !in.Urgency.Valid() {
		return nil, validationError("urgency %q is not one of URGENTE, ALTA, MEDIA, BAIXA", in.Urgency)
	}
	if *in.PackageCount < 0 {
		return nil, validationError("packageCount must not be negative")
	}

	requester := *in.Requester
	if !actor.IsAdmin() {
		if requester.ID == "" {
			requester.ID = actor.ID
		}
		if requester.ID != actor.ID {
			return nil, fmt.Errorf("%w: drivers may only open tickets for themselves", errs.ErrForbidden)
		}
	}
	if strings.TrimSpace(requester.ID) == "" || strings.TrimSpace(requester.Name) == "" {
		return nil, validationError("solicitante id and name are required")
	}
	if requester.Initials == "" {
		requester.Initials = model.Initials(requester.Name)
	}

	t := &model.Ticket{
		Requester:       requester,
		Location:        strings.TrimSpace(in.Location),
		Hub:             strings.TrimSpace(in.Hub),
		VehicleType:     strings.TrimSpace(in.VehicleType),
		RouteID:         strings.TrimSpace(in.RouteID),
		PackageCount:    *in.PackageCount,
		DeliveryRegions: regions,
		IsBulky:         in.IsBulky,
		Urgency:         in.Urgency,
		Status:          model.TicketStatusOpen,
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		prompt = summarize(t)
	}
	if s.Describe != nil {
		t.Description = s.Describe.Describe(ctx, prompt)
	} else {
		t.Description = Clip(prompt, MaxDescriptionLength)
	}

	if err := s.Tickets.CreateTicket(ctx, t); err != nil {
		if !errors.Is(err, errs.ErrValidation) {
			s.Log.Error("create ticket", "error", err)
		}
		return nil, err
	}
	s.Log.Info("ticket created", "ticket_id", t.ID, "requester_id", t.Requester.ID, "urgency", t.Urgency, "hub", t.Hub)
	s.publish(kafka.TicketEvent{
		Event:    kafka.EventTicketCreated,
		TicketID: t.ID,
		Status:   string(t.Status),
		ActorID:  actor.ID,
		Hub:      t.Hub,
		Urgency:  string(t.Urgency),
	})
	return t, nil
}

// summarize builds a deterministic prompt from structured ticket fields.
func summarize(t *model.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Apoio solicitado em %s (hub %s), rota %s, %d pacote(s) para %s, urgência %s",
		t.Location, t.Hub, t.RouteID, t.PackageCount, strings.Join(t.DeliveryRegions, ", "), t.Urgency)
	if t.VehicleType != "" {
		fmt.Fprintf(&b, ", veículo %s", t.VehicleType)
	}
	if t.IsBulky {
		b.WriteString(", carga volumosa")
	}
	return b.String()
}

func (s *TicketService) Get(ctx context.Context, id string) (*model.Ticket, error) {
	return s.Tickets.GetTicket(ctx, id)
}

func (s *TicketService) List(ctx context.Context, filter store.TicketFilter) ([]model.Ticket, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, validationError("status %q is not a known ticket status", st)
		}
	}
	return s.Tickets.ListTickets(ctx, filter)
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin only", errs.ErrForbidden)
	}
	return nil
}

func invalidTransition(op string, from model.TicketStatus) error {
	return fmt.Errorf("%w: %s from %s", errs.ErrInvalidTransition, op, from)
}

// apply writes change guarded on the status read in cur and publishes the result.
func (s *TicketService) apply(ctx context.Context, actor Actor, op string, cur *model.Ticket, change store.StatusChange) (*model.Ticket, error) {
	if len(change.From) == 0 {
		change.From = []model.TicketStatus{cur.Status}
	}
	t, err := s.Tickets.ApplyStatusChange(ctx, cur.ID, change)
	if err != nil {
		if !errors.Is(err, errs.ErrStatusConflict) && !errors.Is(err, errs.ErrTicketNotFound) && !errors.Is(err, errs.ErrValidation) {
			s.Log.Error("status change failed", "op", op, "ticket_id", cur.ID, "error", err)
		}
		return nil, err
	}
	s.Log.Info("ticket status changed", "op", op, "ticket_id", t.ID, "from", cur.Status, "to", t.Status, "actor_id", actor.ID)
	s.publish(kafka.TicketEvent{
		Event:      kafka.EventTicketStatusChanged,
		TicketID:   t.ID,
		Status:     string(t.Status),
		FromStatus: string(cur.Status),
		AssignedTo: t.Assignee(),
		ActorID:    actor.ID,
		Hub:        t.Hub,
		Urgency:    string(t.Urgency),
	})
	return t, nil
}

func (s *TicketService) Assign(ctx context.Context, actor Actor, id, driverID string) (*model.Ticket, error) {
	switch {
	case actor.IsAdmin():
		if driverID == "" {
			return nil, validationError("driverId is required")
		}
	case actor.Role == model.RoleDriver:
		if driverID != "" && driverID != actor.ID {
			return nil, fmt.Errorf("%w: drivers may only assign themselves", errs.ErrForbidden)
		}
		driverID = actor.ID
	default:
		return nil, errs.ErrForbidden
	}
	if _, err := s.Drivers.GetDriver(ctx, driverID); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	from := []model.TicketStatus{model.TicketStatusOpen}
	if !s.ExclusiveAssign {
		from = append(from, model.TicketStatusInProgress)
	}
	allowed := false
	for _, f := range from {
		allowed = allowed || cur.Status == f
	}
	if !allowed {
		if cur.Status == model.TicketStatusInProgress {
			return nil, fmt.Errorf("%w: ticket already assigned", errs.ErrStatusConflict)
		}
		return nil, invalidTransition("assign", cur.Status)
	}
	t, err := s.apply(ctx, actor, "assign", cur, store.StatusChange{
		From:       from,
		To:         model.TicketStatusInProgress,
		AssignedTo: &driverID,
	})
	if err != nil {
		return nil, err
	}
	// independent write: other clients may see it before or after the ticket change
	s.setDriverStatus(ctx, driverID, model.DriverStatusAssisting)
	if prev := cur.Assignee(); prev != "" && prev != driverID {
		s.Log.Warn("assignee overwritten", "ticket_id", id, "previous", prev, "current", driverID)
		s.setDriverStatus(ctx, prev, model.DriverStatusAvailable)
	}
	return t, nil
}

func (s *TicketService) SubmitForApproval(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && cur.Assignee() != actor.ID {
		return nil, fmt.Errorf("%w: only an admin or the assigned driver may submit", errs.ErrForbidden)
	}
	if cur.Status != model.TicketStatusInProgress {
		return nil, invalidTransition("submit", cur.Status)
	}
	return s.apply(ctx, actor, "submit", cur, store.StatusChange{To: model.TicketStatusAwaitingApproval})
}

func (s *TicketService) Approve(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.TicketStatusAwaitingApproval {
		return nil, invalidTransition("approve", cur.Status)
	}
	t, err := s.apply(ctx, actor, "approve", cur, store.StatusChange{To: model.TicketStatusApproved})
	if err != nil {
		return nil, err
	}
	s.releaseDriver(ctx, cur.Assignee())
	return t, nil
}

func (s *TicketService) Reject(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.TicketStatusAwaitingApproval {
		return nil, invalidTransition("reject", cur.Status)
	}
	return s.apply(ctx, actor, "reject", cur, store.StatusChange{To: model.TicketStatusInProgress})
}

func (s *TicketService) Conclude(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.TicketStatusInProgress && cur.Status != model.TicketStatusAwaitingApproval {
		return nil, invalidTransition("conclude", cur.Status)
	}
	t, err := s.apply(ctx, actor, "conclude", cur, store.StatusChange{To: model.TicketStatusConcluded})
	if err != nil {
		return nil, err
	}
	s.releaseDriver(ctx, cur.Assignee())
	return t, nil
}

// backStep is the kanban column one step behind each status.
var backStep = map[model.TicketStatus]model.TicketStatus{
	model.TicketStatusInProgress:       model.TicketStatusOpen,
	model.TicketStatusAwaitingApproval: model.TicketStatusInProgress,
	model.TicketStatusApproved:         model.TicketStatusAwaitingApproval,
	model.TicketStatusConcluded:        model.TicketStatusInProgress,
	model.TicketStatusArchived:         model.TicketStatusConcluded,
}

func (s *TicketService) MoveBack(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	to, ok := backStep[cur.Status]
	if !ok {
		return nil, invalidTransition("move back", cur.Status)
	}
	if to.RequiresAssignee() && cur.Assignee() == "" {
		return nil, fmt.Errorf("%w: %s needs an assignee and the ticket has none", errs.ErrInvalidTransition, to)
	}
	change := store.StatusChange{To: to}
	if to == model.TicketStatusOpen {
		unassigned := ""
		change.AssignedTo = &unassigned
	}
	t, err := s.apply(ctx, actor, "move_back", cur, change)
	if err != nil {
		return nil, err
	}
	if to == model.TicketStatusOpen {
		s.releaseDriver(ctx, cur.Assignee())
	}
	return t, nil
}

func (s *TicketService) Archive(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.Concluded() {
		return nil, invalidTransition("archive", cur.Status)
	}
	unassigned := ""
	return s.apply(ctx, actor, "archive", cur, store.StatusChange{To: model.TicketStatusArchived, AssignedTo: &unassigned})
}

func (s *TicketService) SoftDelete(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exclude(ctx, actor, "soft_delete", cur)
}

// Cancel lets the requester withdraw a ticket nobody has picked up yet.
func (s *TicketService) Cancel(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && cur.Requester.ID != actor.ID {
		return nil, fmt.Errorf("%w: only the requester may cancel", errs.ErrForbidden)
	}
	if cur.Status != model.TicketStatusOpen {
		return nil, invalidTransition("cancel", cur.Status)
	}
	return s.exclude(ctx, actor, "cancel", cur)
}

func (s *TicketService) exclude(ctx context.Context, actor Actor, op string, cur *model.Ticket) (*model.Ticket, error) {
	if cur.Status == model.TicketStatusExcluded {
		return nil, invalidTransition(op, cur.Status)
	}
	now := s.now()
	prev := cur.Status
	unassigned := ""
	t, err := s.apply(ctx, actor, op, cur, store.StatusChange{
		To:             model.TicketStatusExcluded,
		AssignedTo:     &unassigned,
		PreviousStatus: &prev,
		DeletedAt:      &now,
	})
	if err != nil {
		return nil, err
	}
	if cur.Status.RequiresAssignee() {
		s.releaseDriver(ctx, cur.Assignee())
	}
	return t, nil
}

// Restore returns an excluded ticket to the status it held before deletion.
// States that need an assignee go back to ABERTO since exclusion dropped it.
func (s *TicketService) Restore(ctx context.Context, actor Actor, id string) (*model.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.TicketStatusExcluded {
		return nil, invalidTransition("restore", cur.Status)
	}
	to := model.TicketStatusOpen
	if cur.PreviousStatus != nil {
		prev := *cur.PreviousStatus
		if prev.Valid() && prev != model.TicketStatusExcluded && !prev.RequiresAssignee() {
			to = prev
		}
	}
	return s.apply(ctx, actor, "restore", cur, store.StatusChange{
		To:                  to,
		ClearDeletedAt:      true,
		ClearPreviousStatus: true,
	})
}

func (s *TicketService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	cur, err := s.Tickets.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status != model.TicketStatusExcluded {
		return invalidTransition("permanent delete", cur.Status)
	}
	if err := s.Tickets.DeleteTicket(ctx, id); err != nil {
		if !errors.Is(err, errs.ErrTicketNotFound) && !errors.Is(err, errs.ErrStatusConflict) {
			s.Log.Error("delete ticket", "ticket_id", id, "error", err)
		}
		return err
	}
	s.Log.Info("ticket deleted", "ticket_id", id, "actor_id", actor.ID)
	s.publish(kafka.TicketEvent{Event: kafka.EventTicketDeleted, TicketID: id, ActorID: actor.ID})
	return nil
}

func (s *TicketService) PurgeExcluded(ctx context.Context, actor Actor) ([]string, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	ids, err := s.Tickets.PurgeExcluded(ctx)
	if err != nil {
		s.Log.Error("purge excluded tickets", "error", err)
		return nil, err
	}
	s.Log.Info("excluded tickets purged", "count", len(ids), "actor_id", actor.ID)
	for _, id := range ids {
		s.publish(kafka.TicketEvent{Event: kafka.EventTicketPurged, TicketID: id, ActorID: actor.ID})
	}
	return ids, nil
}

func (s *TicketService) releaseDriver(ctx context.Context, driverID string) {
	if driverID != "" {
		s.setDriverStatus(ctx, driverID, model.DriverStatusAvailable)
	}
}

func (s *TicketService) setDriverStatus(ctx context.Context, driverID string, status model.DriverStatus) {
	if _, err := s.Drivers.SetDriverStatus(ctx, driverID, status); err != nil {
		s.Log.Warn("driver status side effect failed", "driver_id", driverID, "status", status, "error", err)
	}
}

// publish ставит событие в очередь фоновой отправки: событие должно уйти даже при отмене запроса.
func (s *TicketService) publish(ev kafka.TicketEvent) {
	if s.Events == nil {
		return
	}
	ev.At = s.now().UTC()
	s.outMu.RLock()
	defer s.outMu.RUnlock()
	if s.outClosed {
		s.Log.Warn("ticket event dropped after close", "event", ev.Event, "ticket_id", ev.TicketID)
		return
	}
	s.drainOnce.Do(func() { go s.drain() })
	s.outbox <- ev
}

func (s *TicketService) drain() {
	defer close(s.drained)
	for ev := range s.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.Events.ProduceTicketEvent(ctx, ev)
		cancel()
	}
}

// Close stops accepting events and blocks until every queued one has been
// sent or dropped by the producer. Lifecycle operations keep working after
// Close but publish nothing.
func (s *TicketService) Close() {
	s.outMu.Lock()
	if !s.outClosed {
		s.outClosed = true
		close(s.outbox)
	}
	s.outMu.Unlock()
	s.drainOnce.Do(func() { close(s.drained) })
	<-s.drained
}

var _ TicketServicer = (*TicketService)(nil)
