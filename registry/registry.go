// Package registry is an in-process, in-memory directory of named live
// buddy allocators, pools, and brokers, for introspection (debugsrv reads
// it). Grounded on the teacher's xreg (xaction registry)
// package — xact/xs/tcb.go renews/looks up running xactions by name the
// same way this package renews/looks up running allocators by name — but
// backed by buntdb's in-memory mode instead of the teacher's in-process
// map, since we also want Ascend-ordered listing for free.
package registry

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
)

// Snapshot is a point-in-time stats dump for one registered instance.
type Snapshot map[string]any

// Registry is a process-wide directory of named instances. Registration
// carries no allocator/pool state itself (names, kinds, and a stats
// callback only), so it does not reintroduce the persistence Non-goal.
type Registry struct {
	db *buntdb.DB

	mu    sync.Mutex
	stats map[string]func() Snapshot
}

// New opens an in-memory registry.
func New() (*Registry, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errors.WithMessage(err, "registry: opening in-memory store")
	}
	return &Registry{db: db, stats: make(map[string]func() Snapshot)}, nil
}

// Register records name under kind (e.g. "buddy", "pool", "broker", "relay"),
// with statsFn called on demand to produce a Snapshot. Re-registering an
// existing name overwrites it.
func (r *Registry) Register(name, kind string, statsFn func() Snapshot) error {
	r.mu.Lock()
	r.stats[name] = statsFn
	r.mu.Unlock()

	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(name, kind, nil)
		return err
	})
}

// Unregister removes name from the registry. A no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.stats, name)
	r.mu.Unlock()

	_ = r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(name)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Lookup returns a fresh Snapshot for name, if registered.
func (r *Registry) Lookup(name string) (Snapshot, bool) {
	r.mu.Lock()
	fn, ok := r.stats[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Entry names one registered instance and its kind.
type Entry struct {
	Name string
	Kind string
}

// List returns all registered instances, ordered by name.
func (r *Registry) List() ([]Entry, error) {
	var out []Entry
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			out = append(out, Entry{Name: key, Kind: value})
			return true
		})
	})
	if err != nil {
		return nil, errors.WithMessage(err, "registry: listing")
	}
	return out, nil
}

// Close releases the underlying store.
func (r *Registry) Close() error { return r.db.Close() }
