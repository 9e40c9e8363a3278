package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/model"
)

// Memory keeps every collection in process. Used with STORE_DRIVER=memory and in tests.
type Memory struct {
	mu       sync.RWMutex
	tickets  map[string]model.Ticket
	drivers  map[string]model.Driver
	users    map[string]model.User
	onChange func(collection string)
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tickets:  make(map[string]model.Ticket),
		drivers:  make(map[string]model.Driver),
		users:    make(map[string]model.User),
		onChange: func(string) {},
		now:      time.Now,
	}
}

// OnChange registers the hook called after every committed write.
func (m *Memory) OnChange(fn func(collection string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = func(string) {}
	}
	m.onChange = fn
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) changed(collection string) {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	fn(collection)
}

func cloneTicket(t model.Ticket) model.Ticket {
	t.DeliveryRegions = slices.Clone(t.DeliveryRegions)
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		t.AssignedTo = &v
	}
	if t.PreviousStatus != nil {
		v := *t.PreviousStatus
		t.PreviousStatus = &v
	}
	if t.DeletedAt != nil {
		v := *t.DeletedAt
		t.DeletedAt = &v
	}
	return t
}

func (m *Memory) CreateTicket(_ context.Context, t *model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := m.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	m.mu.Lock()
	m.tickets[t.ID] = cloneTicket(*t)
	m.mu.Unlock()
	m.changed(CollectionTickets)
	return nil
}

func (m *Memory) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, errs.ErrTicketNotFound
	}
	out := cloneTicket(t)
	return &out, nil
}

func (m *Memory) ListTickets(_ context.Context, filter TicketFilter) ([]model.Ticket, error) {
	m.mu.RLock()
	out := make([]model.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		if filter.AssignedTo != "" && t.Assignee() != filter.AssignedTo {
			continue
		}
		if filter.RequesterID != "" && t.Requester.ID != filter.RequesterID {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ApplyStatusChange(_ context.Context, id string, change StatusChange) (*model.Ticket, error) {
	m.mu.Lock()
	cur, ok := m.tickets[id]
	if !ok {
		m.mu.Unlock()
		return nil, errs.ErrTicketNotFound
	}
	if !change.allows(cur.Status) {
		m.mu.Unlock()
		return nil, errs.ErrStatusConflict
	}
	next := cloneTicket(cur)
	change.apply(&next, m.now())
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	m.tickets[id] = next
	m.mu.Unlock()
	m.changed(CollectionTickets)
	out := cloneTicket(next)
	return &out, nil
}

func (m *Memory) DeleteTicket(_ context.Context, id string) error {
	m.mu.Lock()
	cur, ok := m.tickets[id]
	if !ok {
		m.mu.Unlock()
		return errs.ErrTicketNotFound
	}
	if cur.Status != model.TicketStatusExcluded {
		m.mu.Unlock()
		return errs.ErrStatusConflict
	}
	delete(m.tickets, id)
	m.mu.Unlock()
	m.changed(CollectionTickets)
	return nil
}

func (m *Memory) PurgeExcluded(_ context.Context) ([]string, error) {
	m.mu.Lock()
	var ids []string
	for id, t := range m.tickets {
		if t.Status == model.TicketStatusExcluded {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(m.tickets, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	if len(ids) > 0 {
		m.changed(CollectionTickets)
	}
	return ids, nil
}

func (m *Memory) CreateDriver(_ context.Context, d *model.Driver) error {
	if err := m.insertDriver(d); err != nil {
		return err
	}
	m.changed(CollectionDrivers)
	return nil
}

func (m *Memory) insertDriver(d *model.Driver) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := m.now()
	d.CreatedAt, d.UpdatedAt = now, now
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	m.mu.Lock()
	m.drivers[d.ID] = *d
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetDriver(_ context.Context, id string) (*model.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, errs.ErrDriverNotFound
	}
	return &d, nil
}

func (m *Memory) ListDrivers(_ context.Context) ([]model.Driver, error) {
	m.mu.RLock()
	out := make([]model.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) UpdateDriverProfile(_ context.Context, id string, p DriverProfile) (*model.Driver, error) {
	m.mu.Lock()
	d, ok := m.drivers[id]
	if !ok {
		m.mu.Unlock()
		return nil, errs.ErrDriverNotFound
	}
	p.applyTo(&d)
	d.UpdatedAt = m.now()
	if err := d.Validate(); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	m.drivers[id] = d
	m.mu.Unlock()
	m.changed(CollectionDrivers)
	return &d, nil
}

func (m *Memory) SetDriverStatus(_ context.Context, id string, status model.DriverStatus) (*model.Driver, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q is not a known driver status", errs.ErrValidation, status)
	}
	m.mu.Lock()
	d, ok := m.drivers[id]
	if !ok {
		m.mu.Unlock()
		return nil, errs.ErrDriverNotFound
	}
	d.Status = status
	d.UpdatedAt = m.now()
	m.drivers[id] = d
	m.mu.Unlock()
	m.changed(CollectionDrivers)
	return &d, nil
}

func (m *Memory) DeleteDriver(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.drivers[id]; !ok {
		m.mu.Unlock()
		return errs.ErrDriverNotFound
	}
	for _, t := range m.tickets {
		if t.Assignee() == id && slices.Contains(activeStatuses, t.Status) {
			m.mu.Unlock()
			return errs.ErrDriverBusy
		}
	}
	delete(m.drivers, id)
	if u, ok := m.users[id]; ok && u.Role == model.RoleDriver {
		delete(m.users, id)
	}
	m.mu.Unlock()
	m.changed(CollectionDrivers)
	return nil
}

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	return m.insertUser(u)
}

func (m *Memory) insertUser(u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if !u.Role.Valid() {
		return fmt.Errorf("%w: role %q is not a known role", errs.ErrValidation, u.Role)
	}
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return errs.ErrEmailTaken
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, errs.ErrUserNotFound
}

func (m *Memory) RegisterDriver(_ context.Context, u *model.User, d *model.Driver) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := m.insertUser(u); err != nil {
		return err
	}
	d.ID = u.ID
	if err := m.insertDriver(d); err != nil {
		m.mu.Lock()
		delete(m.users, u.ID)
		m.mu.Unlock()
		return err
	}
	m.changed(CollectionDrivers)
	return nil
}

func (p DriverProfile) applyTo(d *model.Driver) {
	if p.Name != nil {
		d.Name = *p.Name
		d.Initials = model.Initials(*p.Name)
	}
	if p.Phone != nil {
		d.Phone = *p.Phone
	}
	if p.Hub != nil {
		d.Hub = *p.Hub
	}
	if p.VehicleType != nil {
		d.VehicleType = *p.VehicleType
	}
	if p.Avatar != nil {
		d.Avatar = *p.Avatar
	}
}

var _ Store = (*Memory)(nil)
