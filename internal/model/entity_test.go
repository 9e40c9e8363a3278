package model

import (
	"strings"
	"testing"
)

func validTicket() Ticket {
	return Ticket{
		Requester:       Requester{ID: "D1", Name: "Ana Souza"},
		Location:        "Rua A, 10",
		Hub:             "SP-01",
		RouteID:         "R-77",
		PackageCount:    12,
		DeliveryRegions: []string{"Centro"},
		Urgency:         UrgencyHigh,
		Status:          TicketStatusOpen,
	}
}

func TestTicketValidateAssignment(t *testing.T) {
	d := "D2"
	tests := []struct {
		status   TicketStatus
		assignee *string
		wantErr  bool
	}{
		{TicketStatusOpen, nil, false},
		{TicketStatusOpen, &d, true},
		{TicketStatusInProgress, nil, true},
		{TicketStatusInProgress, &d, false},
		{TicketStatusAwaitingApproval, nil, true},
		{TicketStatusApproved, &d, false},
		{TicketStatusApproved, nil, false},
		{TicketStatusConcluded, &d, false},
		{TicketStatusExcluded, &d, true},
		{TicketStatusArchived, &d, true},
	}
	for _, tt := range tests {
		tk := validTicket()
		tk.Status = tt.status
		tk.AssignedTo = tt.assignee
		err := tk.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("status %s assigned=%v: err = %v, wantErr %v", tt.status, tt.assignee != nil, err, tt.wantErr)
		}
	}
}

func TestTicketValidateCollectsProblems(t *testing.T) {
	tk := validTicket()
	tk.Urgency = "CRITICA"
	tk.Hub = " "
	tk.DeliveryRegions = nil
	err := tk.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"urgency", "hub", "deliveryRegions"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestUrgencyRank(t *testing.T) {
	order := []Urgency{UrgencyUrgent, UrgencyHigh, UrgencyMedium, UrgencyLow, "X"}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("%s should rank before %s", order[i-1], order[i])
		}
	}
}

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"ana souza":          "AS",
		"Bruno":              "B",
		"  maria da silva  ": "MD",
		"":                   "",
		"élio ramos":         "ÉR",
	}
	for in, want := range tests {
		if got := Initials(in); got != want {
			t.Errorf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnumClosure(t *testing.T) {
	if TicketStatus("FECHADO").Valid() {
		t.Error("unknown ticket status accepted")
	}
	if DriverStatus("DORMINDO").Valid() {
		t.Error("unknown driver status accepted")
	}
	if Role("ROOT").Valid() {
		t.Error("unknown role accepted")
	}
	for _, s := range TicketStatuses {
		if !s.Valid() {
			t.Errorf("%s not valid", s)
		}
	}
}
