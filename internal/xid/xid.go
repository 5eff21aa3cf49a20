package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an opaque id such as "trx-3f2a9c0e41b84d52a7f1c9d0e6b2a8f4".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
