package accounts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"
)

const (
	// MaxPasswordBytes mirrors the bcrypt input limit.
	MaxPasswordBytes = 72
	MaxBioLength     = 140
)

// Field names reported by ValidationError and ConstraintError.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldPassword   = "password"
	FieldBiography  = "biography"
	FieldProfilePic = "profilePic"
)

type ID string

type Account struct {
	ID           ID        `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ProfilePic   string    `json:"profilePic,omitempty"`
	Biography    string    `json:"biography,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	ErrValidation          = errors.New("invalid input")
	ErrDuplicateName       = errors.New("username in use")
	ErrDuplicateEmail      = errors.New("email in use")
	ErrUnknownUser         = errors.New("account not found")
	ErrBadCredentials      = errors.New("wrong password")
	ErrNoOpUpdate          = errors.New("nothing to update")
	ErrDataCorruption      = errors.New("stored account data is corrupt")
	ErrConstraintViolation = errors.New("unique constraint violated")
	ErrNotFound            = errors.New("record not found")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConstraintError is returned by a Repository when a write would break
// uniqueness of Field. It matches ErrConstraintViolation.
type ConstraintError struct {
	Field string
	Err   error
}

func (e *ConstraintError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unique %s constraint violated: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("unique %s constraint violated", e.Field)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}

func (e *ConstraintError) Unwrap() error { return e.Err }

var emailRegexp = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// NewAccount validates the registration fields and returns an Account without
// an ID or password hash.
func NewAccount(name, email, password string) (*Account, error) {
	if name == "" {
		return nil, &ValidationError{Field: FieldName, Reason: "required"}
	}

	if email == "" {
		return nil, &ValidationError{Field: FieldEmail, Reason: "required"}
	}
	if !emailRegexp.MatchString(email) {
		return nil, &ValidationError{Field: FieldEmail, Reason: "malformed address"}
	}

	if err := validatePassword(password); err != nil {
		return nil, err
	}

	return &Account{Name: name, Email: email}, nil
}

func validatePassword(p string) error {
	if p == "" {
		return &ValidationError{Field: FieldPassword, Reason: "required"}
	}
	if len(p) > MaxPasswordBytes {
		return &ValidationError{Field: FieldPassword, Reason: fmt.Sprintf("longer than %d bytes", MaxPasswordBytes)}
	}
	return nil
}

// normalizeBio trims surrounding space and enforces the length limit.
func normalizeBio(bio string) (string, error) {
	b := strings.TrimSpace(bio)
	if utf8.RuneCountInString(b) > MaxBioLength {
		return "", &ValidationError{Field: FieldBiography, Reason: fmt.Sprintf("more than %d characters", MaxBioLength)}
	}
	return b, nil
}

func nextID() ID {
	return ID(xid.New().String())
}

// IsValidID checks if id was produced by nextID.
func IsValidID(id string) bool {
	if _, err := xid.FromString(id); err != nil {
		return false
	}
	return true
}
