package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/voyz/tokenauth"
	"golang.org/x/crypto/bcrypt"
)

var errBadUserSpec = errors.New("user spec must be username:password[:role[:store name[:store category]]]")

type directoryEntry struct {
	hash      []byte
	principal tokenauth.Principal
}

// Directory is an in-memory credential store that turns a username and
// password into a verified principal. The engine itself never sees
// passwords.
type Directory struct {
	mu    sync.RWMutex
	users map[string]directoryEntry
	cost  int
}

// NewDirectory returns an empty directory hashing with bcrypt at cost. A
// cost of zero selects bcrypt.DefaultCost.
func NewDirectory(cost int) *Directory {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Directory{users: make(map[string]directoryEntry), cost: cost}
}

// Add stores a user. The principal id defaults to the username.
func (d *Directory) Add(username, password string, p tokenauth.Principal) error {
	if username == "" || password == "" {
		return errBadUserSpec
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return fmt.Errorf("hashing password for %s: %w", username, err)
	}
	if p.ID == "" {
		p.ID = username
	}
	if p.Name == "" {
		p.Name = username
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = directoryEntry{hash: hash, principal: p}
	return nil
}

// AddSpec parses and stores a user given as
// username:password[:role[:store name[:store category]]].
func (d *Directory) AddSpec(spec string) error {
	parts := strings.SplitN(spec, ":", 5)
	if len(parts) < 2 {
		return errBadUserSpec
	}
	p := tokenauth.Principal{}
	if len(parts) > 2 {
		p.Role = parts[2]
	}
	if len(parts) > 3 {
		p.StoreName = parts[3]
	}
	if len(parts) > 4 {
		p.StoreCategory = parts[4]
	}
	return d.Add(parts[0], parts[1], p)
}

// Authenticate returns the principal for valid credentials.
func (d *Directory) Authenticate(username, password string) (tokenauth.Principal, bool) {
	d.mu.RLock()
	entry, ok := d.users[username]
	d.mu.RUnlock()
	if !ok {
		return tokenauth.Principal{}, false
	}
	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(password)); err != nil {
		return tokenauth.Principal{}, false
	}
	return entry.principal, true
}

// Len reports how many users are stored.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
