package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/password"
	"github.com/google/uuid"
)

type memoryUser struct {
	user      tokengate.User
	hash      string
	lastLogin time.Time
}

// MemoryDirectory is an in-process directory. Data is lost on restart.
type MemoryDirectory struct {
	hasher *password.Argon2

	mu         sync.RWMutex
	byID       map[string]*memoryUser
	byEmail    map[string]string
	byUsername map[string]string
	identities map[string]string // provider + "\x00" + subject -> user id
}

func NewMemoryDirectory(hasher *password.Argon2) *MemoryDirectory {
	return &MemoryDirectory{
		hasher:     hasher,
		byID:       make(map[string]*memoryUser),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		identities: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func identityKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (d *MemoryDirectory) VerifyCredentials(_ context.Context, email, plaintext string) (tokengate.User, error) {
	d.mu.RLock()
	var rec memoryUser
	id, ok := d.byEmail[emailKey(email)]
	if ok {
		rec = *d.byID[id]
	}
	d.mu.RUnlock()

	if !ok || rec.hash == "" {
		d.hasher.VerifyDummy(plaintext)
		return tokengate.User{}, tokengate.ErrInvalidCredentials
	}

	match, err := d.hasher.Verify(plaintext, rec.hash)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return tokengate.User{}, tokengate.ErrInvalidCredentials
		}
		return tokengate.User{}, fmt.Errorf("users: verify password: %w", err)
	}
	if !match {
		return tokengate.User{}, tokengate.ErrInvalidCredentials
	}
	return rec.user, nil
}

func (d *MemoryDirectory) GetUserByID(_ context.Context, id string) (tokengate.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.byID[id]
	if !ok {
		return tokengate.User{}, tokengate.ErrUserNotFound
	}
	return rec.user, nil
}

func (d *MemoryDirectory) CreateUser(_ context.Context, in tokengate.NewUser) (tokengate.User, error) {
	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		return tokengate.User{}, fmt.Errorf("%w: %v", tokengate.ErrInvalidRequest, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.insertLocked(in, hash)
}

func (d *MemoryDirectory) insertLocked(in tokengate.NewUser, hash string) (tokengate.User, error) {
	email := emailKey(in.Email)
	username := strings.TrimSpace(in.Username)
	if _, ok := d.byEmail[email]; ok {
		return tokengate.User{}, tokengate.ErrAccountExists
	}
	if _, ok := d.byUsername[username]; ok {
		return tokengate.User{}, tokengate.ErrAccountExists
	}

	u := tokengate.User{
		ID:       uuid.NewString(),
		Email:    strings.TrimSpace(in.Email),
		Username: username,
		FullName: strings.TrimSpace(in.FullName),
		Role:     in.Role,
		Active:   true,
	}
	d.byID[u.ID] = &memoryUser{user: u, hash: hash}
	d.byEmail[email] = u.ID
	d.byUsername[username] = u.ID
	return u, nil
}

func (d *MemoryDirectory) ResolveExternal(_ context.Context, provider string, id tokengate.ExternalIdentity, defaultRole string) (tokengate.User, error) {
	key := identityKey(provider, id.SubjectID)

	d.mu.Lock()
	defer d.mu.Unlock()

	if userID, ok := d.identities[key]; ok {
		if rec, ok := d.byID[userID]; ok {
			return rec.user, nil
		}
	}

	var u tokengate.User
	if userID, ok := d.byEmail[emailKey(id.Email)]; ok {
		u = d.byID[userID].user
	} else {
		in := tokengate.NewUser{
			Email:    id.Email,
			Username: baseUsername(id.DisplayName, id.Email),
			FullName: id.DisplayName,
			Role:     defaultRole,
		}
		if _, taken := d.byUsername[in.Username]; taken {
			in.Username = withSuffix(in.Username)
		}
		var err error
		if u, err = d.insertLocked(in, ""); err != nil {
			return tokengate.User{}, err
		}
	}

	d.identities[key] = u.ID
	return u, nil
}

func (d *MemoryDirectory) RecordLogin(_ context.Context, id string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[id]
	if !ok {
		return tokengate.ErrUserNotFound
	}
	rec.lastLogin = at
	return nil
}

// LastLogin returns the recorded last login of id, or the zero time.
func (d *MemoryDirectory) LastLogin(id string) time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if rec, ok := d.byID[id]; ok {
		return rec.lastLogin
	}
	return time.Time{}
}

// SetActive toggles an account. Inactive accounts are refused at login and refresh.
func (d *MemoryDirectory) SetActive(id string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[id]
	if !ok {
		return tokengate.ErrUserNotFound
	}
	rec.user.Active = active
	return nil
}

// SetRole changes an owner's role. Outstanding access tokens keep the old role until
// they expire.
func (d *MemoryDirectory) SetRole(id, role string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.byID[id]
	if !ok {
		return tokengate.ErrUserNotFound
	}
	rec.user.Role = role
	return nil
}
