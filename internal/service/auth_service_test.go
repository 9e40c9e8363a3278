package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/store"
)

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID string, role model.Role) (string, error) {
	return string(role) + ":" + userID, nil
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := NewAuthService(mem, fakeIssuer{}, nil)

	sess, err := svc.Register(ctx, RegisterInput{
		Name:     "Bruno Lima",
		Email:    "Bruno@Example.com",
		Password: "s3nha-forte",
		Hub:      "H1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.User.Role != model.RoleDriver || sess.Token != "DRIVER:"+sess.User.ID {
		t.Errorf("session = %+v", sess)
	}
	if sess.User.PasswordHash == "s3nha-forte" {
		t.Error("password stored in clear")
	}
	d, err := mem.GetDriver(ctx, sess.User.ID)
	if err != nil {
		t.Fatalf("driver profile not created: %v", err)
	}
	if d.Status != model.DriverStatusOffline || d.Initials != "BL" || d.Hub != "H1" {
		t.Errorf("driver = %+v", d)
	}

	if _, err := svc.Register(ctx, RegisterInput{Name: "Outro", Email: "bruno@example.com", Password: "12345678"}); !errors.Is(err, errs.ErrEmailTaken) {
		t.Errorf("duplicate email: err = %v", err)
	}

	got, err := svc.Login(ctx, "bruno@example.com", "s3nha-forte")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.User.ID != sess.User.ID {
		t.Errorf("login user = %s, want %s", got.User.ID, sess.User.ID)
	}
	if _, err := svc.Login(ctx, "bruno@example.com", "errada123"); !errors.Is(err, errs.ErrBadCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := svc.Login(ctx, "ninguem@example.com", "s3nha-forte"); !errors.Is(err, errs.ErrBadCredentials) {
		t.Errorf("unknown email: err = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewAuthService(store.NewMemory(), fakeIssuer{}, nil)
	cases := []RegisterInput{
		{Name: "", Email: "a@b.com", Password: "12345678"},
		{Name: "Ana", Email: "not-an-email", Password: "12345678"},
		{Name: "Ana", Email: "a@b.com", Password: "short"},
		{Name: "Ana", Email: "a@b.com", Password: strings.Repeat("x", 80)},
		// 40 runes but 80 bytes
		{Name: "Ana", Email: "a@b.com", Password: strings.Repeat("é", 40)},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("Register(%+v): err = %v, want ErrValidation", in, err)
		}
	}
}

func TestCreateAccountRejectsLongPassword(t *testing.T) {
	svc := NewAuthService(store.NewMemory(), nil, nil)
	_, err := svc.CreateAccount(context.Background(), "Ops", "ops@example.com", strings.Repeat("p", 73), model.RoleAdmin)
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("73-byte password: err = %v, want ErrValidation", err)
	}
	if _, err := svc.CreateAccount(context.Background(), "Ops", "ops@example.com", strings.Repeat("p", 72), model.RoleAdmin); err != nil {
		t.Errorf("72-byte password: %v", err)
	}
}

func TestCreateAdminAccount(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := NewAuthService(mem, fakeIssuer{}, nil)
	u, err := svc.CreateAccount(ctx, "Ops", "ops@example.com", "admin-pass", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := mem.GetDriver(ctx, u.ID); !errors.Is(err, errs.ErrDriverNotFound) {
		t.Errorf("admin got a driver profile: err = %v", err)
	}
	sess, err := svc.Login(ctx, "ops@example.com", "admin-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token != "ADMIN:"+u.ID {
		t.Errorf("token = %q", sess.Token)
	}
	if _, err := svc.CreateAccount(ctx, "X", "x@example.com", "12345678", "ROOT"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unknown role: err = %v", err)
	}
}

func TestDeletedDriverCannotLogIn(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	auth := NewAuthService(mem, fakeIssuer{}, nil)
	sess, err := auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "s3nha-forte"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	drivers := NewDriverService(mem, nil)
	admin := Actor{ID: "A1", Role: model.RoleAdmin}
	if err := drivers.Delete(ctx, admin, sess.User.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := auth.Login(ctx, "ana@example.com", "s3nha-forte"); !errors.Is(err, errs.ErrBadCredentials) {
		t.Errorf("login after delete: err = %v", err)
	}
}
