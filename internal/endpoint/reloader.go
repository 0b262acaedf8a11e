package endpoint

import "context"

// Reloader re-reads a single agent from a Store. It is the state source the
// confirmation poller uses to watch the agent's keep-alive.
type Reloader struct {
	store Store
	id    string
}

// NewReloader binds a Store to one agent ID.
func NewReloader(store Store, id string) *Reloader {
	return &Reloader{store: store, id: id}
}

// Reload returns a fresh copy of the agent record.
func (r *Reloader) Reload(ctx context.Context) (*Endpoint, error) {
	return r.store.Get(ctx, r.id)
}
