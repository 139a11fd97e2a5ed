package query

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

// keyJSON serializes structured keys deterministically: map keys are
// sorted, struct fields follow declaration order.
var keyJSON = jsoniter.Config{
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()

// Key is the canonical identity of a query in a client's cache.
type Key struct {
	// Canonical is the stable string form used as the cache map key.
	Canonical string

	// Hash is a stable 64-bit digest of Canonical.
	Hash uint64
}

// Canonicalize derives a Key from any value. Strings pass through
// untouched; other values are serialized with sorted map keys so
// semantically equal structures produce the same key. Values that cannot
// be serialized fall back to their Go-syntax representation.
func Canonicalize(key any) Key {
	var canonical string
	switch k := key.(type) {
	case string:
		canonical = k
	case fmt.Stringer:
		canonical = k.String()
	default:
		if b, err := keyJSON.Marshal(key); err == nil {
			canonical = string(b)
		} else {
			canonical = fmt.Sprintf("%#v", key)
		}
	}

	return Key{
		Canonical: canonical,
		Hash:      xxhash.Sum64String(canonical),
	}
}
