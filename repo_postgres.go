package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jimiolaniyan/accounts/migrations"
)

const (
	pgUniqueViolation = "23505"
	pgEmailConstraint = "accounts_email_key"

	pgAccountsSelection = `SELECT id, name, email, password_hash, profile_pic, biography, created_at, updated_at FROM accounts`
)

// DBTX is the subset of database/sql used by the repository. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type postgresAccountRepository struct {
	db DBTX
}

func NewPostgresAccountRepository(db DBTX) Repository {
	return &postgresAccountRepository{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("error running migrations: %w", err)
	}
	return nil
}

func (r *postgresAccountRepository) FindByName(ctx context.Context, name string) (*Account, error) {
	return r.findAccountBy(ctx, pgAccountsSelection+` WHERE name = $1`, name)
}

func (r *postgresAccountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findAccountBy(ctx, pgAccountsSelection+` WHERE email = $1`, email)
}

func (r *postgresAccountRepository) findAccountBy(ctx context.Context, query string, val string) (*Account, error) {
	var (
		acc      Account
		pic, bio sql.NullString
		id       string
	)
	err := r.db.QueryRowContext(ctx, query, val).Scan(&id, &acc.Name, &acc.Email, &acc.PasswordHash, &pic, &bio, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	acc.ID = ID(id)
	acc.ProfilePic = pic.String
	acc.Biography = bio.String
	return &acc, nil
}

func (r *postgresAccountRepository) Store(ctx context.Context, acc *Account) error {
	query :=
		`INSERT INTO accounts (id, name, email, password_hash, profile_pic, biography, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		string(acc.ID), acc.Name, acc.Email, acc.PasswordHash,
		nullString(acc.ProfilePic), nullString(acc.Biography), acc.CreatedAt, acc.UpdatedAt)
	return pgWriteError(err)
}

// UpdateByName writes the mutable profile fields. Email and password hash are
// never changed after creation.
func (r *postgresAccountRepository) UpdateByName(ctx context.Context, name string, acc *Account) error {
	query :=
		`UPDATE accounts SET name = $1, profile_pic = $2, biography = $3, updated_at = $4
		 WHERE id = $5 AND name = $6`

	res, err := r.db.ExecContext(ctx, query,
		acc.Name, nullString(acc.ProfilePic), nullString(acc.Biography), acc.UpdatedAt, string(acc.ID), name)
	if err != nil {
		return pgWriteError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func pgWriteError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == pgEmailConstraint {
			return &ConstraintError{Field: FieldEmail, Err: err}
		}
		return &ConstraintError{Field: FieldName, Err: err}
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
