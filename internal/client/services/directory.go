package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dmitrijs2005/gophchat/internal/client/models"
	"github.com/dmitrijs2005/gophchat/internal/client/repositories/records"
	"github.com/dmitrijs2005/gophchat/internal/common"
)

// UsersKey holds the user directory: a JSON object mapping usernames to
// accounts, in registration order.
const UsersKey = "userData"

// Directory caches the registered accounts. Reads are served from the cache;
// every write re-reads the stored document first and refreshes the cache
// from what it wrote.
type Directory struct {
	repo records.Repository

	writeMu sync.Mutex

	mu       sync.RWMutex
	accounts []models.Account
}

func NewDirectory(repo records.Repository) *Directory {
	return &Directory{repo: repo}
}

// Refresh reloads the cache from the store.
func (d *Directory) Refresh(ctx context.Context) error {
	raw, err := d.repo.Get(ctx, UsersKey)
	if err != nil {
		return err
	}

	accounts, err := decodeAccounts(raw)
	if err != nil {
		return err
	}

	d.setCache(accounts)
	return nil
}

// List returns the accounts with a non-empty username in store order.
func (d *Directory) List() []models.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Account, len(d.accounts))
	copy(out, d.accounts)
	return out
}

// Online returns the accounts currently flagged online.
func (d *Directory) Online() []models.Account {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []models.Account
	for _, a := range d.accounts {
		if a.IsOnline {
			out = append(out, a)
		}
	}
	return out
}

func (d *Directory) Find(username string) (models.Account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, a := range d.accounts {
		if a.Username == username {
			return a, true
		}
	}
	return models.Account{}, false
}

// Create stores a new account and fails with ErrDuplicateUsername when the
// username is already registered.
func (d *Directory) Create(ctx context.Context, account models.Account) error {
	return d.mutate(ctx, func(doc []byte) ([]byte, error) {
		if _, ok := findKey(doc, account.Username); ok {
			return nil, common.ErrDuplicateUsername
		}
		return setAccount(doc, account.Username, account)
	})
}

// Save inserts or replaces one account.
func (d *Directory) Save(ctx context.Context, account models.Account) error {
	return d.mutate(ctx, func(doc []byte) ([]byte, error) {
		key, ok := findKey(doc, account.Username)
		if !ok {
			key = account.Username
		}
		return setAccount(doc, key, account)
	})
}

// Update merges patch into the stored account. A username change moves the
// account to the new key in the same write. It reports false when the
// account does not exist.
func (d *Directory) Update(ctx context.Context, username string, patch models.AccountPatch) (models.Account, bool, error) {
	var (
		updated models.Account
		found   bool
	)

	err := d.mutate(ctx, func(doc []byte) ([]byte, error) {
		key, ok := findKey(doc, username)
		if !ok {
			return nil, nil
		}
		found = true

		current, err := models.DecodeAccount([]byte(gjson.GetBytes(doc, escapeKey(key)).Raw))
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %v", common.ErrCorruptDocument, username, err)
		}
		updated = patch.Apply(current)

		if updated.Username == username {
			return setAccount(doc, key, updated)
		}

		if _, taken := findKey(doc, updated.Username); taken {
			return nil, common.ErrDuplicateUsername
		}
		doc, err = setAccount(doc, updated.Username, updated)
		if err != nil {
			return nil, err
		}
		return sjson.DeleteBytes(doc, escapeKey(key))
	})
	if err != nil {
		return models.Account{}, false, err
	}
	return updated, found, nil
}

// Remove deletes an account; removing an unknown username is a no-op.
func (d *Directory) Remove(ctx context.Context, username string) error {
	return d.mutate(ctx, func(doc []byte) ([]byte, error) {
		key, ok := findKey(doc, username)
		if !ok {
			return nil, nil
		}
		return sjson.DeleteBytes(doc, escapeKey(key))
	})
}

// mutate runs fn over a fresh copy of the stored document and persists the
// result. A nil result skips the write.
func (d *Directory) mutate(ctx context.Context, fn func(doc []byte) ([]byte, error)) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	doc, err := d.repo.Get(ctx, UsersKey)
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		doc = []byte(`{}`)
	}
	if _, err := decodeAccounts(doc); err != nil {
		return err
	}

	next, err := fn(doc)
	if err != nil {
		return err
	}
	if next == nil {
		next = doc
	} else if err := d.repo.Set(ctx, UsersKey, next); err != nil {
		return err
	}

	accounts, err := decodeAccounts(next)
	if err != nil {
		return err
	}
	d.setCache(accounts)
	return nil
}

func (d *Directory) setCache(accounts []models.Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts = accounts
}

// decodeAccounts parses the directory document in key order, skipping
// entries that are not objects or have no username.
func decodeAccounts(raw []byte) ([]models.Account, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", common.ErrCorruptDocument, UsersKey)
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: %s is not an object", common.ErrCorruptDocument, UsersKey)
	}

	var accounts []models.Account
	doc.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		acc, err := models.DecodeAccount([]byte(value.Raw))
		if err != nil || acc.Username == "" {
			return true
		}
		accounts = append(accounts, acc)
		return true
	})
	return accounts, nil
}

// findKey returns the document key holding username.
func findKey(doc []byte, username string) (string, bool) {
	var (
		key   string
		found bool
	)
	gjson.ParseBytes(doc).ForEach(func(k, value gjson.Result) bool {
		if value.IsObject() && value.Get("username").String() == username {
			key, found = k.String(), true
			return false
		}
		return true
	})
	return key, found
}

func setAccount(doc []byte, key string, account models.Account) ([]byte, error) {
	raw, err := json.Marshal(account)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(doc, escapeKey(key), raw)
}

// escapeKey turns an arbitrary username into a single-component path.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r > '~') {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
