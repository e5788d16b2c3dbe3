// Package keys builds the stable keys under which check results are cached,
// and the selectors used to invalidate them.
package keys

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/evansims/fgacache/pkg/tuple"
)

// CheckKeyPrefix is the namespace prefix shared by every cached check result.
const CheckKeyPrefix = "check"

// CheckKey identifies a single cached check result. Two check requests that
// could return different answers never produce the same key.
type CheckKey struct {
	Connection  string
	User        string
	Relation    string
	Object      string
	ContextHash string
}

// NewCheckKey returns the key for a check of the given tuple over the named
// connection. contextHash is the value returned by ContextHash, or empty when
// the check carries no contextual tuples and no context.
func NewCheckKey(connection string, t tuple.TupleKey, contextHash string) CheckKey {
	return CheckKey{
		Connection:  connection,
		User:        t.User,
		Relation:    t.Relation,
		Object:      t.Object,
		ContextHash: contextHash,
	}
}

// String renders the key as "check/<connection>/<object>#<relation>@<user>/<hash>".
func (k CheckKey) String() string {
	var sb strings.Builder
	sb.WriteString(CheckKeyPrefix)
	sb.WriteByte('/')
	sb.WriteString(k.Connection)
	sb.WriteByte('/')
	sb.WriteString(k.Object)
	sb.WriteByte('#')
	sb.WriteString(k.Relation)
	sb.WriteByte('@')
	sb.WriteString(k.User)
	sb.WriteByte('/')
	sb.WriteString(k.ContextHash)
	return sb.String()
}

// Tuple returns the relationship part of the key.
func (k CheckKey) Tuple() tuple.TupleKey {
	return tuple.TupleKey{User: k.User, Relation: k.Relation, Object: k.Object}
}

// cacheKeyHasher accumulates key material into a stable 64-bit sum.
type cacheKeyHasher struct {
	digest *xxhash.Digest
}

// NewCacheKeyHasher returns a hasher for string values.
func NewCacheKeyHasher(digest *xxhash.Digest) *cacheKeyHasher {
	return &cacheKeyHasher{digest: digest}
}

// WriteString writes the provided string to the hash.
func (c *cacheKeyHasher) WriteString(value string) error {
	// xxhash.Digest.WriteString never returns an error
	_, _ = c.digest.WriteString(value)

	return nil
}

// Sum returns the accumulated hash in its stable decimal form.
func (c *cacheKeyHasher) Sum() string {
	return strconv.FormatUint(c.digest.Sum64(), 10)
}

// Selector matches cached check results by any combination of tuple fields.
// A nil field matches every value.
type Selector struct {
	User     *string
	Relation *string
	Object   *string
}

// ForTuple returns the selector matching exactly one tuple, across every
// context hash it was cached under.
func ForTuple(t tuple.TupleKey) Selector {
	return Selector{User: &t.User, Relation: &t.Relation, Object: &t.Object}
}

// IsZero reports whether the selector has no fields set, which makes it
// match every key.
func (s Selector) IsZero() bool {
	return s.User == nil && s.Relation == nil && s.Object == nil
}

// Matches reports whether the key satisfies every set field of the selector.
func (s Selector) Matches(k CheckKey) bool {
	if s.User != nil && *s.User != k.User {
		return false
	}
	if s.Relation != nil && *s.Relation != k.Relation {
		return false
	}
	if s.Object != nil && *s.Object != k.Object {
		return false
	}
	return true
}

// Pattern renders the selector as a Redis MATCH glob scoped to one
// connection. Unset fields become "*" and glob metacharacters in set fields
// are escaped so they only match literally.
func (s Selector) Pattern(connection string) string {
	var sb strings.Builder
	sb.WriteString(CheckKeyPrefix)
	sb.WriteByte('/')
	sb.WriteString(escapeGlob(connection))
	sb.WriteByte('/')
	sb.WriteString(globPart(s.Object))
	sb.WriteByte('#')
	sb.WriteString(globPart(s.Relation))
	sb.WriteByte('@')
	sb.WriteString(globPart(s.User))
	sb.WriteString("/*")
	return sb.String()
}

func globPart(field *string) string {
	if field == nil {
		return "*"
	}
	return escapeGlob(*field)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
