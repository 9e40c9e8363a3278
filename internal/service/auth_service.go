package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/psds-microservice/assist-service/internal/errs"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordBytes = 72
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// TokenIssuer signs identity tokens.
type TokenIssuer interface {
	Issue(userID string, role model.Role) (string, error)
}

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	Phone       string
	Hub         string
	VehicleType string
	Avatar      string
}

type Session struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type AuthService struct {
	users  store.UserStore
	tokens TokenIssuer
	log    *slog.Logger
}

func NewAuthService(users store.UserStore, tokens TokenIssuer, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, tokens: tokens, log: log.With("component", "auth")}
}

func checkCredentials(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return validationError("name is required")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return validationError("email is invalid")
	}
	if len(password) < minPasswordLength {
		return validationError("password must have at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return validationError("password must have at most %d bytes", maxPasswordBytes)
	}
	return nil
}

// Register creates a driver account together with its driver profile.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	u, err := s.registerDriver(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

func (s *AuthService) registerDriver(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := checkCredentials(in.Name, in.Email, in.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	u := &model.User{
		Email:        in.Email,
		Name:         name,
		Role:         model.RoleDriver,
		PasswordHash: string(hash),
	}
	d := &model.Driver{
		Name:        name,
		Phone:       strings.TrimSpace(in.Phone),
		Hub:         strings.TrimSpace(in.Hub),
		VehicleType: strings.TrimSpace(in.VehicleType),
		Avatar:      in.Avatar,
		Initials:    model.Initials(name),
		Status:      model.DriverStatusOffline,
	}
	if err := s.users.RegisterDriver(ctx, u, d); err != nil {
		return nil, err
	}
	s.log.Info("driver registered", "user_id", u.ID)
	return u, nil
}

// CreateAccount creates an account without opening a session, used to seed
// administrators from the command line.
func (s *AuthService) CreateAccount(ctx context.Context, name, email, password string, role model.Role) (*model.User, error) {
	if role == model.RoleDriver {
		return s.registerDriver(ctx, RegisterInput{Name: name, Email: email, Password: password})
	}
	if !role.Valid() {
		return nil, validationError("role %q is not a known role", role)
	}
	if err := checkCredentials(name, email, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{Email: email, Name: strings.TrimSpace(name), Role: role, PasswordHash: string(hash)}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("account created", "user_id", u.ID, "role", role)
	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			return nil, errs.ErrBadCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errs.ErrBadCredentials
	}
	return s.session(u)
}

func (s *AuthService) session(u *model.User) (*Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{User: u, Token: token}, nil
}
