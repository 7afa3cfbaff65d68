package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Directory owns the account records and enforces name and email uniqueness
// on top of the repository's own constraints.
type Directory struct {
	accounts Repository
	hasher   Hasher
	logger   *slog.Logger
}

func NewDirectory(accounts Repository, hasher Hasher, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		accounts: accounts,
		hasher:   hasher,
		logger:   log.With(slog.String("service", "accounts")),
	}
}

func (d *Directory) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	acc, err := NewAccount(req.Name, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	if err := d.verifyNotInUse(ctx, acc.Name, acc.Email); err != nil {
		return nil, err
	}

	hash, err := d.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	now := time.Now().UTC()
	acc.ID = nextID()
	acc.PasswordHash = hash
	acc.ProfilePic = req.ProfilePic
	acc.CreatedAt = now
	acc.UpdatedAt = now

	if err := d.accounts.Store(ctx, acc); err != nil {
		return nil, translateStoreError(err, "error saving account")
	}

	d.logger.InfoContext(ctx, "account registered", slog.String("id", string(acc.ID)), slog.String("name", acc.Name))
	return acc, nil
}

// verifyNotInUse checks the name before the email, so a request colliding on
// both reports ErrDuplicateName.
func (d *Directory) verifyNotInUse(ctx context.Context, name, email string) error {
	if _, err := d.accounts.FindByName(ctx, name); err == nil {
		return ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error looking up name: %w", err)
	}

	if _, err := d.accounts.FindByEmail(ctx, email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error looking up email: %w", err)
	}

	return nil
}

func (d *Directory) Authenticate(ctx context.Context, name, password string) (*Account, error) {
	acc, err := d.find(ctx, name)
	if err != nil {
		return nil, err
	}

	ok, err := d.hasher.Verify(password, acc.PasswordHash)
	if err != nil {
		d.logger.ErrorContext(ctx, "unreadable password hash", slog.String("id", string(acc.ID)), slog.Any("error", err))
		return nil, fmt.Errorf("%w: account %s: %v", ErrDataCorruption, acc.ID, err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	return acc, nil
}

func (d *Directory) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*Account, error) {
	var bio string
	if req.Biography != nil {
		b, err := normalizeBio(*req.Biography)
		if err != nil {
			return nil, err
		}
		bio = b
	}

	acc, err := d.find(ctx, req.Name)
	if err != nil {
		return nil, err
	}

	updated := *acc
	if req.NewName != "" && req.NewName != acc.Name {
		other, err := d.accounts.FindByName(ctx, req.NewName)
		switch {
		case err == nil && other.ID != acc.ID:
			return nil, ErrDuplicateName
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("error looking up name: %w", err)
		}
		updated.Name = req.NewName
	}

	// a profile picture is only ever replaced, never cleared
	if req.ProfilePic != "" {
		updated.ProfilePic = req.ProfilePic
	}
	if req.Biography != nil {
		updated.Biography = bio
	}

	if updated.Name == acc.Name && updated.ProfilePic == acc.ProfilePic && updated.Biography == acc.Biography {
		return acc, ErrNoOpUpdate
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := d.accounts.UpdateByName(ctx, acc.Name, &updated); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, translateStoreError(err, "error updating account")
	}

	d.logger.InfoContext(ctx, "profile updated", slog.String("id", string(acc.ID)), slog.String("name", updated.Name))
	return &updated, nil
}

func (d *Directory) GetAccount(ctx context.Context, name string) (*Account, error) {
	return d.find(ctx, name)
}

func (d *Directory) find(ctx context.Context, name string) (*Account, error) {
	acc, err := d.accounts.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("error finding account: %w", err)
	}
	return acc, nil
}

// translateStoreError turns a store-level uniqueness violation into the
// matching duplicate error. Anything else is an infrastructure failure.
func translateStoreError(err error, msg string) error {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		if ce.Field == FieldEmail {
			return ErrDuplicateEmail
		}
		return ErrDuplicateName
	}
	return fmt.Errorf("%s: %w", msg, err)
}
