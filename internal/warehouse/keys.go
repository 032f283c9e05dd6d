// Package warehouse loads and reads the dwh star schema.
package warehouse

// KeyMap is an immutable natural-id to surrogate-key lookup built from one
// read-back of a dimension table.
type KeyMap[K comparable] struct {
	keys map[K]int64
}

func NewKeyMap[K comparable](m map[K]int64) KeyMap[K] {
	keys := make(map[K]int64, len(m))
	for k, v := range m {
		keys[k] = v
	}
	return KeyMap[K]{keys: keys}
}

func (m KeyMap[K]) Lookup(k K) (int64, bool) {
	v, ok := m.keys[k]
	return v, ok
}

func (m KeyMap[K]) Len() int {
	return len(m.keys)
}

// Keys is everything the fact recipes resolve against. It is produced once by
// LoadDimensions and only read afterwards.
type Keys struct {
	Status   KeyMap[string]
	Project  KeyMap[int64]
	Employee KeyMap[int64]
	Resource KeyMap[int64]
	Task     KeyMap[int64]
}
