package netlink

import (
	"strings"

	"failsafe-go/x/strx"

	"github.com/google/uuid"
)

// NewClientID returns a generator of collision-resistant client ids:
// prefix followed by eight random hex digits.
func NewClientID(prefix string) func() string {
	prefix = strx.Coalesce(prefix, "failsafe-")
	return func() string {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")
		return prefix + id[:8]
	}
}
