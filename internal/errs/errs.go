package errs

import "errors"

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrDriverNotFound = errors.New("driver not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	// ErrDriverBusy blocks removing a driver who still holds active tickets.
	ErrDriverBusy = errors.New("driver has tickets in progress")

	// ErrValidation wraps every rejected input; callers see the wrapped message.
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	// ErrStatusConflict means the ticket changed status between read and write.
	ErrStatusConflict  = errors.New("ticket status changed concurrently")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrBadCredentials  = errors.New("invalid email or password")
	// ErrUpstream marks a failure of the generative-language collaborator.
	ErrUpstream = errors.New("assistant unavailable")
)
