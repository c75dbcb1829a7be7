package value

// Store is the mutable name→Value environment an evaluation runs
// against. Insertion order of keys is tracked only so Keys() is stable
// within one run (§4.1); it carries no other semantics.
type Store struct {
	order []string
	data  map[string]Value
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]Value)}
}

// Get returns the value bound to name. The returned Value may alias the
// store's own Array/Object backing data; callers must not rely on that
// alias surviving a later Set at the same key (§4.1).
func (s *Store) Get(name string) (Value, bool) {
	v, ok := s.data[name]
	return v, ok
}

// Set inserts or replaces the binding for name.
func (s *Store) Set(name string, v Value) {
	if _, exists := s.data[name]; !exists {
		s.order = append(s.order, name)
	}
	s.data[name] = v
}

// Remove deletes the binding for name, if any.
func (s *Store) Remove(name string) {
	if _, exists := s.data[name]; !exists {
		return
	}
	delete(s.data, name)
	for i, k := range s.order {
		if k == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Keys returns a freshly allocated list of bound names, in insertion
// order. The order is arbitrary with respect to the original spec's
// contract but stable across repeated calls within one run.
func (s *Store) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clear removes every binding.
func (s *Store) Clear() {
	s.order = nil
	s.data = make(map[string]Value)
}

// Len reports the number of bound names.
func (s *Store) Len() int { return len(s.order) }

// Snapshot is an opaque, deep-copied capture of store state suitable for
// Restore. It is produced by Store.Snapshot and consumed by
// Store.Restore — used by the loop evaluator (§4.3) to isolate each
// iteration's side effects.
type Snapshot struct {
	order []string
	data  map[string]Value
}

// Snapshot deep-copies every entry whose key is not exclude, for later
// restoration. exclude is typically the loop variable name: its value is
// intentionally left out so Restore does not clobber whatever the loop
// body or the next iteration's bind did to it.
func (s *Store) Snapshot(exclude string) *Snapshot {
	snap := &Snapshot{
		order: make([]string, 0, len(s.order)),
		data:  make(map[string]Value, len(s.data)),
	}
	for _, k := range s.order {
		if k == exclude {
			continue
		}
		snap.order = append(snap.order, k)
		snap.data[k] = s.data[k].DeepCopy()
	}
	return snap
}

// Restore atomically replaces the store's contents with snap, except
// that exclude's current binding (if any) is preserved untouched. Any
// key added to the store since the snapshot — other than exclude — is
// dropped, matching the scope-isolation invariant (§8, property 3).
func (s *Store) Restore(snap *Snapshot, exclude string) {
	var excludedVal Value
	hadExcluded := false
	if exclude != "" {
		excludedVal, hadExcluded = s.Get(exclude)
	}

	s.order = nil
	s.data = make(map[string]Value, len(snap.data))
	for _, k := range snap.order {
		s.Set(k, snap.data[k])
	}
	if hadExcluded {
		s.Set(exclude, excludedVal)
	}
}
