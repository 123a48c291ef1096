package ecs

// Registry is the set of stores a destroyed entity is purged from.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry { return &Registry{} }

// Register adds store. Stores are purged in registration order.
func (r *Registry) Register(store Removable) {
	if store != nil {
		r.stores = append(r.stores, store)
	}
}

// Len is the number of registered stores.
func (r *Registry) Len() int { return len(r.stores) }

// RemoveAll drops id from every registered store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
