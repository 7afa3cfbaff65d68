package accounts

import (
	"context"
	"sync"
)

type accountRepository struct {
	mu      sync.RWMutex
	byID    map[ID]*Account
	byName  map[string]ID
	byEmail map[string]ID
}

// NewAccountRepository returns a Repository kept in memory. Names and emails
// are indexed so uniqueness is checked under the same lock as the write.
func NewAccountRepository() Repository {
	return &accountRepository{
		byID:    map[ID]*Account{},
		byName:  map[string]ID{},
		byEmail: map[string]ID{},
	}
}

func (repo *accountRepository) FindByName(_ context.Context, name string) (*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	return repo.lookup(repo.byName, name)
}

func (repo *accountRepository) FindByEmail(_ context.Context, email string) (*Account, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	return repo.lookup(repo.byEmail, email)
}

func (repo *accountRepository) lookup(index map[string]ID, key string) (*Account, error) {
	id, ok := index[key]
	if !ok {
		return nil, ErrNotFound
	}
	acc := *repo.byID[id]
	return &acc, nil
}

func (repo *accountRepository) Store(_ context.Context, acc *Account) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.byName[acc.Name]; ok {
		return &ConstraintError{Field: FieldName}
	}
	if _, ok := repo.byEmail[acc.Email]; ok {
		return &ConstraintError{Field: FieldEmail}
	}

	a := *acc
	repo.byID[a.ID] = &a
	repo.byName[a.Name] = a.ID
	repo.byEmail[a.Email] = a.ID
	return nil
}

func (repo *accountRepository) UpdateByName(_ context.Context, name string, acc *Account) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	id, ok := repo.byName[name]
	if !ok || id != acc.ID {
		return ErrNotFound
	}
	if owner, ok := repo.byName[acc.Name]; ok && owner != acc.ID {
		return &ConstraintError{Field: FieldName}
	}
	if owner, ok := repo.byEmail[acc.Email]; ok && owner != acc.ID {
		return &ConstraintError{Field: FieldEmail}
	}

	old := repo.byID[id]
	delete(repo.byName, old.Name)
	delete(repo.byEmail, old.Email)

	a := *acc
	repo.byID[id] = &a
	repo.byName[a.Name] = id
	repo.byEmail[a.Email] = id
	return nil
}
