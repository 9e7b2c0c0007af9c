package ledger

import (
	"strings"

	"github.com/google/uuid"
)

// RefreshSuffix is appended to an access JTI to form its paired refresh JTI.
const RefreshSuffix = "-refresh"

// NewJTI returns a fresh random (version 4) token identifier.
func NewJTI() string {
	return uuid.New().String()
}

// RefreshJTI derives the refresh identifier paired with accessJTI.
func RefreshJTI(accessJTI string) string {
	return accessJTI + RefreshSuffix
}

// AccessJTI returns the access identifier a refresh identifier was derived from.
func AccessJTI(refreshJTI string) string {
	return strings.TrimSuffix(refreshJTI, RefreshSuffix)
}

// IsRefreshJTI reports whether jti carries the refresh suffix.
func IsRefreshJTI(jti string) bool {
	return strings.HasSuffix(jti, RefreshSuffix)
}

// ValidJTI reports whether jti is a canonical lowercase UUIDv4, optionally
// followed by RefreshSuffix. Anything else is treated as hostile.
func ValidJTI(jti string) bool {
	base := AccessJTI(jti)
	if len(base) != 36 {
		return false
	}
	id, err := uuid.Parse(base)
	if err != nil {
		return false
	}
	return id.Version() == 4 && id.Variant() == uuid.RFC4122 && id.String() == base
}
