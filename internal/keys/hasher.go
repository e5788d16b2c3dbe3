package keys

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/evansims/fgacache/pkg/tuple"
)

type hasher interface {
	WriteString(value string) error
}

// ContextHash returns a stable hash covering everything beyond the tuple
// itself that can change a check answer: the contextual tuples and the
// request context. It returns the empty string when there is nothing to
// cover, and an error if the context holds a value outside the JSON shapes.
func ContextHash(contextualTuples []tuple.TupleKey, context map[string]any) (string, error) {
	if len(contextualTuples) == 0 && len(context) == 0 {
		return "", nil
	}

	h := NewCacheKeyHasher(xxhash.New())

	if err := NewTupleKeysHasher(contextualTuples...).Append(h); err != nil {
		return "", err
	}
	if err := NewContextHasher(context).Append(h); err != nil {
		return "", err
	}

	return h.Sum(), nil
}

// NewTupleKeysHasher returns a hasher for a set of tuples. It sorts the
// tuples first to guarantee that two sets that are identical except for the
// ordering return the same hash.
func NewTupleKeysHasher(tuples ...tuple.TupleKey) *tupleKeysHasher {
	return &tupleKeysHasher{tuples}
}

type tupleKeysHasher struct {
	tuples []tuple.TupleKey
}

func (t *tupleKeysHasher) Append(h hasher) error {
	sorted := append([]tuple.TupleKey(nil), t.tuples...) // Copy input to avoid mutating it

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Object != sorted[j].Object {
			return sorted[i].Object < sorted[j].Object
		}
		if sorted[i].Relation != sorted[j].Relation {
			return sorted[i].Relation < sorted[j].Relation
		}
		return sorted[i].User < sorted[j].User
	})

	// prefix to avoid overlap with previous strings written
	if err := h.WriteString("/"); err != nil {
		return err
	}

	for _, tk := range sorted {
		// tuple with a separator at the end
		if err := h.WriteString(tk.String() + ","); err != nil {
			return err
		}
	}

	return nil
}

// NewContextHasher returns a hasher for a request context. Map keys are
// visited in sorted order at every level so iteration order never changes
// the hash.
func NewContextHasher(context map[string]any) *contextHasher {
	return &contextHasher{context}
}

type contextHasher struct {
	context map[string]any
}

func (c *contextHasher) Append(h hasher) error {
	// prefix to avoid overlap with the tuples written before
	if err := h.WriteString("/"); err != nil {
		return err
	}

	return writeContextMap(h, c.context)
}

func writeContextMap(h hasher, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := h.WriteString("'" + key + ":'"); err != nil {
			return err
		}

		if err := writeContextValue(h, m[key]); err != nil {
			return err
		}

		if err := h.WriteString(","); err != nil {
			return err
		}
	}

	return nil
}

func writeContextValue(h hasher, value any) error {
	switch v := value.(type) {
	case nil:
		return h.WriteString("null")
	case bool:
		return h.WriteString(strconv.FormatBool(v))
	case string:
		return h.WriteString(v)
	case float64:
		return h.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		return h.WriteString(strconv.Itoa(v))
	case int64:
		return h.WriteString(strconv.FormatInt(v, 10))
	case []any:
		for _, item := range v {
			if err := writeContextValue(h, item); err != nil {
				return err
			}
			if err := h.WriteString(","); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return writeContextMap(h, v)
	default:
		return fmt.Errorf("context value of unsupported type %T", value)
	}
}
