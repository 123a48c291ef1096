package ecs

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Store is a typed map from entity to component value. Reads may run on
// worker goroutines only while no system writes to the store; writes belong
// to the tick goroutine.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{data: make(map[EntityID]*T, 256)}
}

func (s *Store[T]) Set(id EntityID, c *T) { s.data[id] = c }
func (s *Store[T]) Remove(id EntityID)    { delete(s.data, id) }
func (s *Store[T]) Len() int              { return len(s.data) }

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// Snapshot copies the store into dense parallel slices. Jobs index into the
// copy so they never touch the live map.
func (s *Store[T]) Snapshot() ([]EntityID, []T) {
	ids := make([]EntityID, 0, len(s.data))
	vals := make([]T, 0, len(s.data))
	for id, c := range s.data {
		ids = append(ids, id)
		vals = append(vals, *c)
	}
	return ids, vals
}
