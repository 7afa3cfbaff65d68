package accounts

import (
	"context"
	"io"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Account, error)
	Authenticate(ctx context.Context, name, password string) (*Account, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Account, error)
	GetAccount(ctx context.Context, name string) (*Account, error)
}

// Repository stores accounts. Implementations enforce unique names and emails
// natively and report violations as *ConstraintError.
type Repository interface {
	FindByName(ctx context.Context, name string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Store(ctx context.Context, acc *Account) error
	// UpdateByName replaces the record currently named name whose ID is acc.ID.
	UpdateByName(ctx context.Context, name string, acc *Account) error
}

type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// AssetStore persists uploaded profile pictures and turns stored references
// into URLs.
type AssetStore interface {
	Store(ctx context.Context, r io.Reader, nameHint string) (string, error)
	Discard(ctx context.Context, ref string) error
	Resolve(ref string) string
}

type RegisterRequest struct {
	Name       string
	Email      string
	Password   string
	ProfilePic string
}

type UpdateProfileRequest struct {
	Name       string
	NewName    string
	ProfilePic string
	// Biography is left unchanged when nil; a pointer to "" clears it.
	Biography *string
}
