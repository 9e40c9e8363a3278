// Package store persists tickets, drivers and user accounts.
//
// Every implementation validates records before writing them, so enum
// closure and the assignment invariant hold at the write boundary no
// matter which caller issued the write.
package store

import (
	"context"
	"time"

	"github.com/psds-microservice/assist-service/internal/model"
)

// Collection names, shared with the change feed and the database triggers.
const (
	CollectionTickets = "tickets"
	CollectionDrivers = "drivers"
)

type TicketFilter struct {
	Statuses    []model.TicketStatus
	AssignedTo  string
	RequesterID string
}

// StatusChange is a guarded field-level update of a ticket.
//
// The update applies only while the stored status is one of From. Nil
// pointer fields are left untouched; a pointer to "" clears AssignedTo.
type StatusChange struct {
	From []model.TicketStatus
	To   model.TicketStatus

	AssignedTo          *string
	PreviousStatus      *model.TicketStatus
	ClearPreviousStatus bool
	DeletedAt           *time.Time
	ClearDeletedAt      bool
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t *model.Ticket) error
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error)
	ApplyStatusChange(ctx context.Context, id string, change StatusChange) (*model.Ticket, error)
	// DeleteTicket permanently removes a ticket that is already EXCLUIDO.
	DeleteTicket(ctx context.Context, id string) error
	// PurgeExcluded removes every EXCLUIDO ticket in one all-or-nothing batch.
	PurgeExcluded(ctx context.Context) ([]string, error)
}

type DriverProfile struct {
	Name        *string
	Phone       *string
	Hub         *string
	VehicleType *string
	Avatar      *string
}

type DriverStore interface {
	CreateDriver(ctx context.Context, d *model.Driver) error
	GetDriver(ctx context.Context, id string) (*model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)
	UpdateDriverProfile(ctx context.Context, id string, p DriverProfile) (*model.Driver, error)
	SetDriverStatus(ctx context.Context, id string, status model.DriverStatus) (*model.Driver, error)
	// DeleteDriver removes the driver together with its login account. It
	// fails with ErrDriverBusy while a ticket in progress names the driver.
	DeleteDriver(ctx context.Context, id string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// RegisterDriver creates the account and its driver profile together.
	RegisterDriver(ctx context.Context, u *model.User, d *model.Driver) error
}

// Store bundles every collection behind one handle.
type Store interface {
	TicketStore
	DriverStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

// apply mutates t according to c. The caller has already checked the guard.
func (c StatusChange) apply(t *model.Ticket, now time.Time) {
	t.Status = c.To
	if c.AssignedTo != nil {
		if *c.AssignedTo == "" {
			t.AssignedTo = nil
		} else {
			v := *c.AssignedTo
			t.AssignedTo = &v
		}
	}
	if c.ClearPreviousStatus {
		t.PreviousStatus = nil
	} else if c.PreviousStatus != nil {
		v := *c.PreviousStatus
		t.PreviousStatus = &v
	}
	if c.ClearDeletedAt {
		t.DeletedAt = nil
	} else if c.DeletedAt != nil {
		v := *c.DeletedAt
		t.DeletedAt = &v
	}
	t.UpdatedAt = now
}

// activeStatuses are the ticket states whose assignee cannot be removed.
var activeStatuses = []model.TicketStatus{model.TicketStatusInProgress, model.TicketStatusAwaitingApproval}

func (c StatusChange) allows(s model.TicketStatus) bool {
	for _, f := range c.From {
		if f == s {
			return true
		}
	}
	return false
}
