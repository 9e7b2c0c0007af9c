package auth

import (
	"github.com/go-authgate/budgetgate/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies user passwords and client secrets with bcrypt.
type Hasher struct {
	cost  int
	dummy []byte
}

// DefaultHashCost is the work factor used when the configured cost is out of
// bcrypt's range.
const DefaultHashCost = 12

// NewHasher creates a hasher with the given bcrypt cost.
// Production configuration enforces a cost of at least 12.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	// Compared against when the account does not exist so failures take the same time
	dummy, _ := bcrypt.GenerateFromPassword([]byte("budgetgate-timing-equalizer"), cost)
	return &Hasher{cost: cost, dummy: dummy}
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. The external-identity sentinel never matches.
func (h *Hasher) Verify(plain, hash string) bool {
	if hash == "" || hash == models.ExternalPasswordHash {
		h.burn(plain)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// burn spends one bcrypt comparison.
func (h *Hasher) burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
