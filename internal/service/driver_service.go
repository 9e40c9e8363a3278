package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/store"
)

type DriverServicer interface {
	List(ctx context.Context) ([]model.Driver, error)
	Get(ctx context.Context, id string) (*model.Driver, error)
	UpdateProfile(ctx context.Context, actor Actor, id string, p store.DriverProfile) (*model.Driver, error)
	SetStatus(ctx context.Context, actor Actor, id string, status model.DriverStatus) (*model.Driver, error)
	Delete(ctx context.Context, actor Actor, id string) error
}

type DriverService struct {
	drivers store.DriverStore
	log     *slog.Logger
}

func NewDriverService(drivers store.DriverStore, log *slog.Logger) *DriverService {
	if log == nil {
		log = slog.Default()
	}
	return &DriverService{drivers: drivers, log: log.With("component", "drivers")}
}

func (s *DriverService) List(ctx context.Context) ([]model.Driver, error) {
	return s.drivers.ListDrivers(ctx)
}

func (s *DriverService) Get(ctx context.Context, id string) (*model.Driver, error) {
	return s.drivers.GetDriver(ctx, id)
}

func selfOrAdmin(actor Actor, id string) error {
	if actor.IsAdmin() || actor.ID == id {
		return nil
	}
	return fmt.Errorf("%w: drivers may only change their own profile", errs.ErrForbidden)
}

func (s *DriverService) UpdateProfile(ctx context.Context, actor Actor, id string, p store.DriverProfile) (*model.Driver, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	if p.Name == nil && p.Phone == nil && p.Hub == nil && p.VehicleType == nil && p.Avatar == nil {
		return nil, validationError("no changes")
	}
	d, err := s.drivers.UpdateDriverProfile(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.log.Info("driver profile updated", "driver_id", id, "actor_id", actor.ID)
	return d, nil
}

// SetStatus is the availability toggle.
func (s *DriverService) SetStatus(ctx context.Context, actor Actor, id string, status model.DriverStatus) (*model.Driver, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, validationError("status %q is not a known driver status", status)
	}
	d, err := s.drivers.SetDriverStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.Info("driver status changed", "driver_id", id, "status", status, "actor_id", actor.ID)
	return d, nil
}

func (s *DriverService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.drivers.DeleteDriver(ctx, id); err != nil {
		return err
	}
	s.log.Info("driver deleted", "driver_id", id, "actor_id", actor.ID)
	return nil
}

var _ DriverServicer = (*DriverService)(nil)
