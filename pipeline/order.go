package pipeline

import "sync"

// idOrder chains persist calls per object id: a call waits until every
// earlier call touching one of its ids has settled. Calls on disjoint ids
// run concurrently.
type idOrder struct {
	mu        sync.Mutex
	tails     map[string]chan struct{}
	abandoned map[string]bool
}

func newIDOrder() *idOrder {
	return &idOrder{
		tails:     make(map[string]chan struct{}),
		abandoned: make(map[string]bool),
	}
}

// enqueue must be called in apply order. It returns the predecessors to wait
// for and a release func to call once this call has settled.
func (o *idOrder) enqueue(ids []string) (prev []<-chan struct{}, release func()) {
	mine := make(chan struct{})

	o.mu.Lock()
	for _, id := range ids {
		if tail, ok := o.tails[id]; ok {
			prev = append(prev, tail)
		}
		o.tails[id] = mine
	}
	o.mu.Unlock()

	return prev, func() {
		o.mu.Lock()
		for _, id := range ids {
			if o.tails[id] == mine {
				delete(o.tails, id)
				delete(o.abandoned, id)
			}
		}
		o.mu.Unlock()
		close(mine)
	}
}

// abandon marks id as rolled back at creation. Calls still queued behind the
// create are dropped instead of sent.
func (o *idOrder) abandon(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, queued := o.tails[id]; queued {
		o.abandoned[id] = true
	}
}

// live returns the ids that have not been abandoned.
func (o *idOrder) live(ids []string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !o.abandoned[id] {
			kept = append(kept, id)
		}
	}
	return kept
}
