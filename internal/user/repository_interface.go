package user

import "context"

// Directory is what the billing flows need from the user store: identity and
// contact details for bill creation.
type Directory interface {
	Create(ctx context.Context, name, email, phone, passwordHash, role string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

var _ Directory = (*Repository)(nil)
