package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres is the gorm-backed store. Change notifications come from
// database triggers, not from this type.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Postgres) CreateTicket(ctx context.Context, t *model.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *Postgres) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &t, nil
}

func (s *Postgres) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	if len(filter.Statuses) > 0 {
		tx = tx.Where("status IN ?", filter.Statuses)
	}
	if filter.AssignedTo != "" {
		tx = tx.Where("assigned_to = ?", filter.AssignedTo)
	}
	if filter.RequesterID != "" {
		tx = tx.Where("requester_id = ?", filter.RequesterID)
	}
	var items []model.Ticket
	if err := tx.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return items, nil
}

func (s *Postgres) ApplyStatusChange(ctx context.Context, id string, change StatusChange) (*model.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrTicketNotFound
	}
	if !change.To.Valid() {
		return nil, fmt.Errorf("%w: status %q is not a known ticket status", errs.ErrValidation, change.To)
	}
	var out model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.Ticket
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrTicketNotFound
			}
			return err
		}
		if !change.allows(cur.Status) {
			return errs.ErrStatusConflict
		}
		now := time.Now()
		next := cur
		change.apply(&next, now)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		if err := tx.Model(&model.Ticket{}).Where("id = ?", id).Updates(change.columns(now)).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) || errors.Is(err, errs.ErrStatusConflict) || errors.Is(err, errs.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("update ticket status: %w", err)
	}
	return &out, nil
}

// columns lists only the fields the change touches.
func (c StatusChange) columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{
		"status":     c.To,
		"updated_at": now,
	}
	if c.AssignedTo != nil {
		if *c.AssignedTo == "" {
			cols["assigned_to"] = nil
		} else {
			cols["assigned_to"] = *c.AssignedTo
		}
	}
	if c.ClearPreviousStatus {
		cols["previous_status"] = nil
	} else if c.PreviousStatus != nil {
		cols["previous_status"] = *c.PreviousStatus
	}
	if c.ClearDeletedAt {
		cols["deleted_at"] = nil
	} else if c.DeletedAt != nil {
		cols["deleted_at"] = *c.DeletedAt
	}
	return cols
}

func (s *Postgres) DeleteTicket(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrTicketNotFound
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.TicketStatusExcluded).
		Delete(&model.Ticket{})
	if res.Error != nil {
		return fmt.Errorf("delete ticket: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetTicket(ctx, id); err != nil {
			return err
		}
		return errs.ErrStatusConflict
	}
	return nil
}

func (s *Postgres) PurgeExcluded(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Ticket{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ?", model.TicketStatusExcluded).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Where("id IN ? AND status = ?", ids, model.TicketStatusExcluded).Delete(&model.Ticket{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(ids)) {
			return fmt.Errorf("purge removed %d of %d tickets", res.RowsAffected, len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("purge excluded tickets: %w", err)
	}
	return ids, nil
}

func (s *Postgres) CreateDriver(ctx context.Context, d *model.Driver) error {
	return createDriver(s.db.WithContext(ctx), d)
}

func createDriver(tx *gorm.DB, d *model.Driver) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := tx.Create(d).Error; err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

func (s *Postgres) GetDriver(ctx context.Context, id string) (*model.Driver, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrDriverNotFound
	}
	var d model.Driver
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrDriverNotFound
		}
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}

func (s *Postgres) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	var items []model.Driver
	if err := s.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	return items, nil
}

func (s *Postgres) UpdateDriverProfile(ctx context.Context, id string, p DriverProfile) (*model.Driver, error) {
	d, err := s.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	p.applyTo(d)
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	changes := map[string]interface{}{"updated_at": time.Now()}
	if p.Name != nil {
		changes["name"] = d.Name
		changes["initials"] = d.Initials
	}
	if p.Phone != nil {
		changes["phone"] = d.Phone
	}
	if p.Hub != nil {
		changes["hub"] = d.Hub
	}
	if p.VehicleType != nil {
		changes["vehicle_type"] = d.VehicleType
	}
	if p.Avatar != nil {
		changes["avatar"] = d.Avatar
	}
	if err := s.db.WithContext(ctx).Model(&model.Driver{}).Where("id = ?", id).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update driver: %w", err)
	}
	return d, nil
}

func (s *Postgres) SetDriverStatus(ctx context.Context, id string, status model.DriverStatus) (*model.Driver, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q is not a known driver status", errs.ErrValidation, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrDriverNotFound
	}
	res := s.db.WithContext(ctx).Model(&model.Driver{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, fmt.Errorf("set driver status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrDriverNotFound
	}
	return s.GetDriver(ctx, id)
}

func (s *Postgres) DeleteDriver(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrDriverNotFound
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d model.Driver
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrDriverNotFound
			}
			return err
		}
		var active int64
		if err := tx.Model(&model.Ticket{}).
			Where("assigned_to = ? AND status IN ?", id, activeStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return errs.ErrDriverBusy
		}
		if err := tx.Where("id = ?", id).Delete(&model.Driver{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND role = ?", id, model.RoleDriver).Delete(&model.User{}).Error
	})
	if err != nil {
		if errors.Is(err, errs.ErrDriverNotFound) || errors.Is(err, errs.ErrDriverBusy) {
			return err
		}
		return fmt.Errorf("delete driver: %w", err)
	}
	return nil
}

func (s *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	return createUser(s.db.WithContext(ctx), u)
}

func createUser(tx *gorm.DB, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if !u.Role.Valid() {
		return fmt.Errorf("%w: role %q is not a known role", errs.ErrValidation, u.Role)
	}
	if err := tx.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrUserNotFound
	}
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *Postgres) RegisterDriver(ctx context.Context, u *model.User, d *model.Driver) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createUser(tx, u); err != nil {
			return err
		}
		d.ID = u.ID
		return createDriver(tx, d)
	})
}

var _ Store = (*Postgres)(nil)
