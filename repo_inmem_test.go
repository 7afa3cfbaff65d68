package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_StoreAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	acc := &Account{ID: nextID(), Name: "alice", Email: "alice@x.com", PasswordHash: "h"}

	require.NoError(t, repo.Store(ctx, acc))

	byName, err := repo.FindByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc, byName)

	byEmail, err := repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, acc, byEmail)

	_, err = repo.FindByName(ctx, "Alice")
	assert.Equal(t, ErrNotFound, err)
	_, err = repo.FindByEmail(ctx, "nobody@x.com")
	assert.Equal(t, ErrNotFound, err)
}

func TestAccountRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	acc := &Account{ID: nextID(), Name: "alice", Email: "alice@x.com"}
	require.NoError(t, repo.Store(ctx, acc))

	acc.Biography = "changed after store"
	found, _ := repo.FindByName(ctx, "alice")
	found.Name = "mallory"

	again, _ := repo.FindByName(ctx, "alice")
	assert.Empty(t, again.Biography)
	assert.Equal(t, "alice", again.Name)
}

func TestAccountRepository_StoreEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	require.NoError(t, repo.Store(ctx, &Account{ID: nextID(), Name: "alice", Email: "alice@x.com"}))

	err := repo.Store(ctx, &Account{ID: nextID(), Name: "alice", Email: "other@x.com"})
	assert.Equal(t, &ConstraintError{Field: FieldName}, err)

	err = repo.Store(ctx, &Account{ID: nextID(), Name: "bob", Email: "alice@x.com"})
	assert.Equal(t, &ConstraintError{Field: FieldEmail}, err)
	assert.ErrorIs(t, err, ErrConstraintViolation)

	_, err = repo.FindByName(ctx, "bob")
	assert.Equal(t, ErrNotFound, err)
}

func TestAccountRepository_UpdateByName(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	alice := &Account{ID: nextID(), Name: "alice", Email: "alice@x.com"}
	bob := &Account{ID: nextID(), Name: "bob", Email: "bob@x.com"}
	require.NoError(t, repo.Store(ctx, alice))
	require.NoError(t, repo.Store(ctx, bob))

	renamed := *alice
	renamed.Name = "alicia"
	renamed.Biography = "hi"
	require.NoError(t, repo.UpdateByName(ctx, "alice", &renamed))

	_, err := repo.FindByName(ctx, "alice")
	assert.Equal(t, ErrNotFound, err)
	got, err := repo.FindByName(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, &renamed, got)
	got, err = repo.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alicia", got.Name)

	clash := renamed
	clash.Name = "bob"
	assert.Equal(t, &ConstraintError{Field: FieldName}, repo.UpdateByName(ctx, "alicia", &clash))

	assert.Equal(t, ErrNotFound, repo.UpdateByName(ctx, "alice", &renamed))

	// a record with the right name but another id is never overwritten
	impostor := *bob
	impostor.ID = nextID()
	assert.Equal(t, ErrNotFound, repo.UpdateByName(ctx, "bob", &impostor))
}
