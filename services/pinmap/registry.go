package pinmap

import (
	"sync"

	"mcuplan/errcode"
	"mcuplan/types"
)

// Registry is the runtime pin claim table for one MCU: pin -> owner.
// A pin has at most one owning instance at a time.
type Registry struct {
	mu        sync.Mutex
	known     map[string]struct{}
	pinOwners map[string]types.Owner
}

// NewRegistry builds a registry over the given pin inventory. An empty
// inventory accepts any pin name.
func NewRegistry(inventory []string) *Registry {
	r := &Registry{
		known:     make(map[string]struct{}, len(inventory)),
		pinOwners: make(map[string]types.Owner),
	}
	for _, p := range inventory {
		r.known[p] = struct{}{}
	}
	return r
}

// caller holds lock
func (r *Registry) inInventory(pin string) bool {
	if len(r.known) == 0 {
		return pin != ""
	}
	_, ok := r.known[pin]
	return ok
}

// claim records o as the owner of pin. Re-claiming by the same instance is
// idempotent (the owning field is updated). Caller holds the lock.
func (r *Registry) claim(o types.Owner, pin string) error {
	if !r.inInventory(pin) {
		return errcode.Wrap(errcode.UnknownPin, "claim", pin, nil)
	}
	if cur, inUse := r.pinOwners[pin]; inUse && !cur.SameInstance(o) {
		return errcode.Wrap(errcode.PinInUse, "claim", pin+" held by "+cur.String(), nil)
	}
	r.pinOwners[pin] = o
	return nil
}

// Snapshot returns the current claims as sorted assignments.
func (r *Registry) Snapshot() []types.PinAssignment {
	r.mu.Lock()
	pins := make([]string, 0, len(r.pinOwners))
	for p := range r.pinOwners {
		pins = append(pins, p)
	}
	owners := make(map[string]types.Owner, len(r.pinOwners))
	for p, o := range r.pinOwners {
		owners[p] = o
	}
	r.mu.Unlock()

	types.SortPins(pins)
	out := make([]types.PinAssignment, 0, len(pins))
	for _, p := range pins {
		out = append(out, types.PinAssignment{Pin: p, Owners: []types.Owner{owners[p]}})
	}
	return out
}

type claimUndo struct {
	pin  string
	prev types.Owner
	had  bool
}

// Apply claims every pin of cfg's enabled instances. It is all-or-nothing:
// on the first failure every claim made by this call is rolled back.
func (r *Registry) Apply(cfg *types.Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var done []claimUndo
	claimed := map[string]types.Owner{}
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			u := done[i]
			if u.had {
				r.pinOwners[u.pin] = u.prev
			} else {
				delete(r.pinOwners, u.pin)
			}
		}
	}

	for _, in := range cfg.Instances() {
		if !in.Fields.Enabled() {
			continue
		}
		for _, pf := range in.Fields.PinFields() {
			o := types.Owner{Peripheral: in.Type, Instance: in.Instance, Field: pf.Field, Function: pf.Function}
			// Two fields of one instance on the same pin is still a collision.
			if first, ok := claimed[pf.Pin]; ok {
				rollback()
				return errcode.Wrap(errcode.PinInUse, "apply", pf.Pin+" held by "+first.String(), nil)
			}
			prev, had := r.pinOwners[pf.Pin]
			if err := r.claim(o, pf.Pin); err != nil {
				rollback()
				return err
			}
			claimed[pf.Pin] = o
			done = append(done, claimUndo{pin: pf.Pin, prev: prev, had: had})
		}
	}
	return nil
}
