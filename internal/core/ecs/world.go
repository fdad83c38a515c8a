package ecs

// World is the top-level ECS container. It owns the entity pool, the component
// registry, and a deferred destruction queue flushed at the end of each tick.
type World struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 16),
	}
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateEntity() (EntityID, error) {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Queuing the
// same entity twice is harmless.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// PendingDestruction reports whether id is queued for cleanup this tick.
func (w *World) PendingDestruction(id EntityID) bool {
	for _, q := range w.destroyQueue {
		if q == id {
			return true
		}
	}
	return false
}

// FlushDestroyQueue destroys all queued entities and clears their components.
func (w *World) FlushDestroyQueue() {
	for _, id := range w.destroyQueue {
		w.registry.Purge(id)
		w.pool.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
}

// CloneEmpty copies the entity pool and pending destruction queue into a
// world with an empty registry. The caller registers cloned stores.
func (w *World) CloneEmpty() *World {
	q := make([]EntityID, len(w.destroyQueue), cap(w.destroyQueue))
	copy(q, w.destroyQueue)
	return &World{
		pool:         w.pool.Clone(),
		registry:     NewRegistry(),
		destroyQueue: q,
	}
}
