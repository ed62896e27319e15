// Package userdir implements the UserDirectory registry: nickname to
// hashed password plus last-delivered message cursor.
package userdir

import (
	"sync"

	"mdchat/internal/chaterr"
)

// Hasher is the pluggable password hash capability. It is never
// required to be a real KDF by the protocol; bcrypt is this
// repository's default (see DESIGN.md Open Questions).
type Hasher interface {
	Hash(password []byte) ([]byte, error)
	Verify(password, hash []byte) bool
}

type user struct {
	passwordHash   []byte
	lastDelivered  uint64
	hasDelivered   bool
}

// Directory is the process-wide UserDirectory singleton. Zero value is
// not usable; construct with New.
type Directory struct {
	hasher Hasher

	mu    sync.RWMutex
	users map[string]*user
}

// New constructs an empty Directory using hasher for password hashing.
func New(hasher Hasher) *Directory {
	return &Directory{hasher: hasher, users: make(map[string]*user)}
}

// Exists reports whether nick is a registered user.
func (d *Directory) Exists(nick string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[nick]
	return ok
}

// isValidNickname reports whether every byte of nick is printable
// ASCII (0x20-0x7E inclusive), mirroring the original's
// is_valid_nickname.
func isValidNickname(nick string) bool {
	for i := 0; i < len(nick); i++ {
		b := nick[i]
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}

// Add registers a new user. Fails with chaterr.ErrInvalidInput if nick
// contains a byte outside printable ASCII (0x20-0x7E) — a defensive
// re-check performed here regardless of what the caller's own
// AdmissionPolicy check already found — and chaterr.ErrAlreadyExists
// if nick is already taken.
func (d *Directory) Add(nick string, password []byte) error {
	if !isValidNickname(nick) {
		return chaterr.ErrInvalidInput
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return chaterr.Wrap(chaterr.ErrIO, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[nick]; ok {
		return chaterr.ErrAlreadyExists
	}
	d.users[nick] = &user{passwordHash: hash}
	return nil
}

// Verify reports whether password matches nick's stored hash. Unknown
// users and mismatched passwords are indistinguishable to the caller:
// both return false, nil.
func (d *Directory) Verify(nick string, password []byte) (bool, error) {
	d.mu.RLock()
	u, ok := d.users[nick]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return d.hasher.Verify(password, u.passwordHash), nil
}

// LastDelivered returns the largest MessageLog id delivered to nick,
// and false if nothing has ever been delivered or nick is unknown.
func (d *Directory) LastDelivered(nick string) (id uint64, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, exists := d.users[nick]
	if !exists || !u.hasDelivered {
		return 0, false
	}
	return u.lastDelivered, true
}

// SetLastDelivered advances nick's delivery cursor to id. An id not
// strictly greater than the current value is a silent no-op, so
// cursors never regress under concurrent delivery; an unknown nick
// fails with chaterr.ErrNotFound.
func (d *Directory) SetLastDelivered(nick string, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[nick]
	if !ok {
		return chaterr.ErrNotFound
	}
	if u.hasDelivered && id <= u.lastDelivered {
		return nil
	}
	u.lastDelivered = id
	u.hasDelivered = true
	return nil
}
