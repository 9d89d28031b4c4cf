package tokenfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-gateway/token"
)

var _ token.Store = (*FakeTokenRepo)(nil)

// FakeTokenRepo keeps token values in memory, keyed like durable storage.
type FakeTokenRepo struct {
	values map[string]string
	lock   sync.RWMutex

	// Optional failure injection for tests
	SaveErr  error
	LoadErr  error
	ClearErr error
}

func NewFakeTokensRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		values: make(map[string]string),
	}
}

func (tr *FakeTokenRepo) Load(_ context.Context) (token.Set, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	if tr.LoadErr != nil {
		return token.Set{}, tr.LoadErr
	}
	return token.SetFromValues(tr.values), nil
}

func (tr *FakeTokenRepo) Save(_ context.Context, set token.Set) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.SaveErr != nil {
		return tr.SaveErr
	}
	for key, value := range set.Values() {
		if value == "" {
			delete(tr.values, key)
			continue
		}
		tr.values[key] = value
	}
	return nil
}

func (tr *FakeTokenRepo) Clear(_ context.Context) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.ClearErr != nil {
		return tr.ClearErr
	}
	clear(tr.values)
	return nil
}

// Get returns the raw stored value for key.
func (tr *FakeTokenRepo) Get(key string) (string, bool) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	v, ok := tr.values[key]
	return v, ok
}

// Len returns the number of stored keys.
func (tr *FakeTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.values)
}
