package ecs

// Registry is the set of component stores one World clears on destroy.
// Stores are visited in registration order.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{stores: make([]Removable, 0, 8)}
}

func (r *Registry) Register(s Removable) {
	r.stores = append(r.stores, s)
}

// Len reports how many stores are registered.
func (r *Registry) Len() int { return len(r.stores) }

// Purge drops id from every registered store.
func (r *Registry) Purge(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
