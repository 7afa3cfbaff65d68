package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/jimiolaniyan/accounts/auth"
)

func newTestDirectory() (*Directory, Repository) {
	repo := NewAccountRepository()
	return NewDirectory(repo, auth.NewBcryptHasher(bcrypt.MinCost), nil), repo
}

// duplicateAccount stores a copy of acc under a new id, name and email.
func duplicateAccount(repo Repository, acc Account, name string) *Account {
	a := acc
	a.ID = nextID()
	a.Name = name
	a.Email = name + "@app.com"
	_ = repo.Store(context.Background(), &a)

	return &a
}

func strPtr(s string) *string { return &s }

// repoSpy wraps a Repository, injects failures and counts writes.
type repoSpy struct {
	Repository
	findErr   error
	storeErr  error
	updateErr error
	stores    int
	updates   int
}

func (r *repoSpy) FindByName(ctx context.Context, name string) (*Account, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.Repository.FindByName(ctx, name)
}

func (r *repoSpy) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.Repository.FindByEmail(ctx, email)
}

func (r *repoSpy) Store(ctx context.Context, acc *Account) error {
	r.stores++
	if r.storeErr != nil {
		return r.storeErr
	}
	return r.Repository.Store(ctx, acc)
}

func (r *repoSpy) UpdateByName(ctx context.Context, name string, acc *Account) error {
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.Repository.UpdateByName(ctx, name, acc)
}

type hasherSpy struct {
	verifyErr error
	hashErr   error
}

func (h *hasherSpy) Hash(p string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + p, nil
}

func (h *hasherSpy) Verify(p, hash string) (bool, error) {
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	return hash == "hashed:"+p, nil
}

// assetSpy is an in-memory AssetStore.
type assetSpy struct {
	mu        sync.Mutex
	n         int
	stored    map[string]string
	discarded []string
	storeErr  error
}

func newAssetSpy() *assetSpy {
	return &assetSpy{stored: map[string]string{}}
}

func (a *assetSpy) Store(_ context.Context, r io.Reader, hint string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.storeErr != nil {
		return "", a.storeErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	a.n++
	ref := fmt.Sprintf("%d-%s", a.n, hint)
	a.stored[ref] = string(b)
	return ref, nil
}

func (a *assetSpy) Discard(_ context.Context, ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.stored[ref]; !ok {
		return errors.New("no such asset")
	}
	delete(a.stored, ref)
	a.discarded = append(a.discarded, ref)
	return nil
}

func (a *assetSpy) Resolve(ref string) string {
	if ref == "" {
		return ""
	}
	return "/uploads/" + ref
}
