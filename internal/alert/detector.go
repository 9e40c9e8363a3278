// Package alert decides when a client should be told about newly opened tickets.
package alert

import "github.com/psds-microservice/assist-service/internal/model"

// Detector compares successive ticket snapshots of one subscription.
// The first snapshot only establishes the baseline.
type Detector struct {
	open   map[string]struct{}
	primed bool
}

func NewDetector() *Detector {
	return &Detector{open: make(map[string]struct{})}
}

// Observe records a snapshot and returns the tickets that became ABERTO
// since the previous one, in snapshot order.
func (d *Detector) Observe(tickets []model.Ticket) []model.Ticket {
	current := make(map[string]struct{}, len(tickets))
	var fresh []model.Ticket
	for _, t := range tickets {
		if t.Status != model.TicketStatusOpen {
			continue
		}
		current[t.ID] = struct{}{}
		if _, seen := d.open[t.ID]; !seen && d.primed {
			fresh = append(fresh, t)
		}
	}
	d.open = current
	d.primed = true
	return fresh
}

type Viewer struct {
	Role         model.Role
	DriverStatus model.DriverStatus
}

// ShouldAlert is true for admins and for drivers who are available.
func ShouldAlert(v Viewer) bool {
	switch v.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDriver:
		return v.DriverStatus == model.DriverStatusAvailable
	}
	return false
}
