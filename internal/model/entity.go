package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Urgency string

const (
	UrgencyUrgent Urgency = "URGENTE"
	UrgencyHigh   Urgency = "ALTA"
	UrgencyMedium Urgency = "MEDIA"
	UrgencyLow    Urgency = "BAIXA"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyUrgent, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// Rank orders urgencies by severity, URGENTE first. Unknown values sort last.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 3
	}
	return 4
}

type TicketStatus string

const (
	TicketStatusOpen             TicketStatus = "ABERTO"
	TicketStatusInProgress       TicketStatus = "EM_ANDAMENTO"
	TicketStatusAwaitingApproval TicketStatus = "AGUARDANDO_APROVACAO"
	TicketStatusApproved         TicketStatus = "APROVADO"
	TicketStatusConcluded        TicketStatus = "CONCLUIDO"
	TicketStatusExcluded         TicketStatus = "EXCLUIDO"
	TicketStatusArchived         TicketStatus = "ARQUIVADO"
)

// TicketStatuses lists every lifecycle state in kanban order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusAwaitingApproval,
	TicketStatusApproved,
	TicketStatusConcluded,
	TicketStatusExcluded,
	TicketStatusArchived,
}

func (s TicketStatus) Valid() bool {
	for _, v := range TicketStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// RequiresAssignee reports whether a ticket in this state must carry an assignee.
func (s TicketStatus) RequiresAssignee() bool {
	return s == TicketStatusInProgress || s == TicketStatusAwaitingApproval
}

// RetainsAssignee reports whether the last assignee may be kept for audit display.
func (s TicketStatus) RetainsAssignee() bool {
	return s == TicketStatusApproved || s == TicketStatusConcluded
}

func (s TicketStatus) Concluded() bool {
	return s == TicketStatusApproved || s == TicketStatusConcluded
}

type DriverStatus string

const (
	DriverStatusAvailable   DriverStatus = "DISPONIVEL"
	DriverStatusUnavailable DriverStatus = "INDISPONIVEL"
	DriverStatusOnRoute     DriverStatus = "EM_ROTA"
	DriverStatusPaused      DriverStatus = "PAUSADO"
	DriverStatusOffline     DriverStatus = "OFFLINE"
	DriverStatusAssisting   DriverStatus = "EM_ATENDIMENTO"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusAvailable, DriverStatusUnavailable, DriverStatusOnRoute,
		DriverStatusPaused, DriverStatusOffline, DriverStatusAssisting:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleDriver Role = "DRIVER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDriver
}

// Requester is a copy of the person who filed the ticket, taken at creation time.
type Requester struct {
	ID       string `gorm:"type:varchar(64);index" json:"id"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	Avatar   string `gorm:"type:text" json:"avatar,omitempty"`
	Initials string `gorm:"type:varchar(8)" json:"initials,omitempty"`
	Phone    string `gorm:"type:varchar(32)" json:"phone,omitempty"`
}

type Ticket struct {
	ID              string        `gorm:"type:uuid;primaryKey" json:"id"`
	Requester       Requester     `gorm:"embedded;embeddedPrefix:requester_" json:"solicitante"`
	Description     string        `gorm:"type:text" json:"description"`
	Location        string        `gorm:"type:varchar(255);not null" json:"location"`
	Hub             string        `gorm:"type:varchar(64);index;not null" json:"hub"`
	VehicleType     string        `gorm:"type:varchar(64)" json:"vehicleType,omitempty"`
	RouteID         string        `gorm:"type:varchar(64);not null" json:"routeId"`
	PackageCount    int           `gorm:"not null" json:"packageCount"`
	DeliveryRegions []string      `gorm:"type:jsonb;serializer:json;not null" json:"deliveryRegions"`
	IsBulky         bool          `gorm:"not null;default:false" json:"isBulky"`
	Urgency         Urgency       `gorm:"type:varchar(16);index;not null" json:"urgency"`
	Status          TicketStatus  `gorm:"type:varchar(32);index;not null" json:"status"`
	AssignedTo      *string       `gorm:"type:varchar(64);index" json:"assignedTo,omitempty"`
	PreviousStatus  *TicketStatus `gorm:"type:varchar(32)" json:"previousStatus,omitempty"`

	CreatedAt time.Time  `json:"timestamp"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// Assignee returns the assigned driver id, or "" when unassigned.
func (t *Ticket) Assignee() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

// Validate checks enum closure, required creation fields and the assignment invariant.
func (t *Ticket) Validate() error {
	var problems []string
	if !t.Status.Valid() {
		problems = append(problems, fmt.Sprintf("status %q is not a known ticket status", t.Status))
	}
	if !t.Urgency.Valid() {
		problems = append(problems, fmt.Sprintf("urgency %q is not a known urgency", t.Urgency))
	}
	if t.PreviousStatus != nil && !t.PreviousStatus.Valid() {
		problems = append(problems, fmt.Sprintf("previousStatus %q is not a known ticket status", *t.PreviousStatus))
	}
	if strings.TrimSpace(t.Requester.ID) == "" || strings.TrimSpace(t.Requester.Name) == "" {
		problems = append(problems, "solicitante id and name are required")
	}
	if strings.TrimSpace(t.Location) == "" {
		problems = append(problems, "location is required")
	}
	if strings.TrimSpace(t.Hub) == "" {
		problems = append(problems, "hub is required")
	}
	if strings.TrimSpace(t.RouteID) == "" {
		problems = append(problems, "routeId is required")
	}
	if t.PackageCount < 0 {
		problems = append(problems, "packageCount must not be negative")
	}
	if len(t.DeliveryRegions) == 0 {
		problems = append(problems, "deliveryRegions must not be empty")
	}
	assigned := t.Assignee() != ""
	switch {
	case t.Status.RequiresAssignee() && !assigned:
		problems = append(problems, fmt.Sprintf("status %s requires assignedTo", t.Status))
	case assigned && !t.Status.RequiresAssignee() && !t.Status.RetainsAssignee():
		problems = append(problems, fmt.Sprintf("status %s must not carry assignedTo", t.Status))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type Driver struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(255);not null" json:"name"`
	Phone       string       `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Hub         string       `gorm:"type:varchar(64);index" json:"hub,omitempty"`
	VehicleType string       `gorm:"type:varchar(64)" json:"vehicleType,omitempty"`
	Avatar      string       `gorm:"type:text" json:"avatar,omitempty"`
	Initials    string       `gorm:"type:varchar(8)" json:"initials,omitempty"`
	Status      DriverStatus `gorm:"type:varchar(32);index;not null" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Driver) TableName() string {
	return "drivers"
}

func (d *Driver) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("status %q is not a known driver status", d.Status)
	}
	return nil
}

// User is a login account. Drivers share their id with their Driver record.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Role         Role   `gorm:"type:varchar(16);not null" json:"role"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// Initials derives up to two uppercase initials from a display name.
func Initials(name string) string {
	var out []rune
	for _, part := range strings.Fields(name) {
		r := []rune(part)
		out = append(out, r[0])
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}
