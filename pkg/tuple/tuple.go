// Package tuple contains the relationship tuple value type and helpers for
// working with its string forms.
package tuple

import (
	"fmt"
	"regexp"
	"strings"
)

// Wildcard matches every user of a type in the remote store.
const Wildcard = "*"

var (
	userIDRegex   = regexp.MustCompile(`^[^:#\s]+$`)
	objectRegex   = regexp.MustCompile(`^[^:#\s]+:[^#:\s]+$`)
	userSetRegex  = regexp.MustCompile(`^[^:#\s]+:[^#\s]+#[^:#\s]+$`)
	relationRegex = regexp.MustCompile(`^[^:#@\s]+$`)
)

// TupleKey identifies a single relationship fact: user has relation on
// object. It is a plain value type with structural equality, so it can be
// used directly as a map key.
type TupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// NewTupleKey returns the tuple (user, relation, object).
func NewTupleKey(user, relation, object string) TupleKey {
	return TupleKey{User: user, Relation: relation, Object: object}
}

// String renders the tuple in its canonical "object#relation@user" form.
func (t TupleKey) String() string {
	return t.Object + "#" + t.Relation + "@" + t.User
}

// Validate reports the first malformed component of the tuple, if any.
func (t TupleKey) Validate() error {
	if !IsValidObject(t.Object) {
		return fmt.Errorf("invalid object %q: expected the form type:id", t.Object)
	}
	if !IsValidRelation(t.Relation) {
		return fmt.Errorf("invalid relation %q", t.Relation)
	}
	if !IsValidUser(t.User) {
		return fmt.Errorf("invalid user %q", t.User)
	}
	return nil
}

// Parse is the inverse of TupleKey.String.
func Parse(s string) (TupleKey, error) {
	objRest, user, ok := strings.Cut(s, "@")
	if !ok {
		return TupleKey{}, fmt.Errorf("invalid tuple %q: missing '@'", s)
	}

	object, relation, ok := strings.Cut(objRest, "#")
	if !ok {
		return TupleKey{}, fmt.Errorf("invalid tuple %q: missing '#'", s)
	}

	t := TupleKey{User: user, Relation: relation, Object: object}
	if err := t.Validate(); err != nil {
		return TupleKey{}, err
	}

	return t, nil
}

// SplitObject splits an object into its type and id parts. If there is no
// type prefix the whole input is returned as the id.
func SplitObject(object string) (string, string) {
	switch i := strings.IndexByte(object, ':'); i {
	case -1:
		return "", object
	case len(object) - 1:
		return object[0 : len(object)-1], ""
	default:
		return object[0:i], object[i+1:]
	}
}

// BuildObject joins an object type and id into the form "type:id".
func BuildObject(objectType, objectID string) string {
	return fmt.Sprintf("%s:%s", objectType, objectID)
}

// IsValidObject determines if a string is a valid object of the form
// "type:id". It does not contain any `#` or spaces, and exactly one `:`.
func IsValidObject(s string) bool {
	return objectRegex.MatchString(s)
}

// IsValidRelation determines if a string is a valid relation. This means it
// does not contain any `:`, `#`, `@`, or spaces.
func IsValidRelation(s string) bool {
	return relationRegex.MatchString(s)
}

// IsValidUser determines if a string is a valid user. A valid user is the
// wildcard, a plain id, an object, or a userset, containing at most one
// `:`, at most one `#` and no spaces.
func IsValidUser(user string) bool {
	if user == Wildcard || userIDRegex.MatchString(user) || objectRegex.MatchString(user) || userSetRegex.MatchString(user) {
		return true
	}

	return false
}
