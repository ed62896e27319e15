package userdir

import "golang.org/x/crypto/bcrypt"

// BcryptHasher is the default Hasher: golang.org/x/crypto/bcrypt at
// its standard cost. Deployments that need a different KDF or an
// authenticated cipher altogether substitute their own Hasher — the
// protocol treats hashing as pluggable, see spec's Open Questions.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a BcryptHasher at bcrypt's default cost.
func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h BcryptHasher) Hash(password []byte) ([]byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword(password, cost)
}

func (h BcryptHasher) Verify(password, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, password) == nil
}
